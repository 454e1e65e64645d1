// Package gateway abstrae el host del proxy: handles de conexión, scheduler
// de tareas y el main context single-thread donde se muta estado de
// conexiones. El core nunca habla con el protocolo del juego directamente.
package gateway

import (
	"context"
	"net/netip"

	"github.com/google/uuid"
)

// Profile es la identidad pública visible de una conexión.
type Profile struct {
	ID   uuid.UUID
	Name string
}

// Conn es el handle de una conexión activa que expone el host.
// Mutarla (SendMessage, SetProfile, Disconnect) solo es válido desde el
// main context; los getters son seguros desde cualquier goroutine.
// Connect es la excepción: bloquea hasta que la transferencia resuelve,
// así que debe llamarse fuera del main context.
type Conn interface {
	// ID es el id permanente que asignó el host.
	ID() uuid.UUID
	// Username es el display name actual (anonimizado pre-auth, canónico post-auth).
	Username() string
	RemoteAddr() netip.Addr
	ProtocolVersion() int
	// Secure indica transporte verificado (online mode).
	Secure() bool
	Active() bool

	SetProfile(p Profile)
	SendMessage(msg string)
	Disconnect(reason string)

	// CurrentBackend devuelve el backend actual, ok=false si todavía no hay.
	CurrentBackend() (string, bool)
	// Connect inicia la transferencia a un backend registrado. Respeta el
	// deadline del ctx; una transferencia vencida cuenta como fallida.
	Connect(ctx context.Context, backend string) error
}

// Proxy expone el conocimiento del host sobre backends registrados.
type Proxy interface {
	HasBackend(name string) bool
}

// StaticProxy es un Proxy fijo por configuración.
type StaticProxy struct{ names map[string]struct{} }

func NewStaticProxy(names ...string) *StaticProxy {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[n] = struct{}{}
	}
	return &StaticProxy{names: m}
}

func (p *StaticProxy) HasBackend(name string) bool {
	_, ok := p.names[name]
	return ok
}
