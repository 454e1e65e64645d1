// Package bridge define el Identity Bridge: el proveedor de identidad
// numérica estable para clientes que no tipean contraseñas (consola/mobile).
package bridge

import "github.com/google/uuid"

type Bridge interface {
	// IsExternalClient indica si la conexión entró por el bridge.
	IsExternalClient(connID uuid.UUID) bool
	// ExternalIDOf devuelve el id externo estable de la conexión.
	ExternalIDOf(connID uuid.UUID) (string, bool)
}

// Disabled es el bridge nulo: ninguna conexión es externa.
var Disabled Bridge = disabled{}

type disabled struct{}

func (disabled) IsExternalClient(uuid.UUID) bool       { return false }
func (disabled) ExternalIDOf(uuid.UUID) (string, bool) { return "", false }

// Static mapea connID→externalID fijo; se usa en dev y tests.
type Static struct {
	IDs map[uuid.UUID]string
}

func (s *Static) IsExternalClient(connID uuid.UUID) bool {
	_, ok := s.IDs[connID]
	return ok
}

func (s *Static) ExternalIDOf(connID uuid.UUID) (string, bool) {
	id, ok := s.IDs[connID]
	return id, ok
}
