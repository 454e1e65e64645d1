// Package gatewaytest provee fakes del host para tests del core.
package gatewaytest

import (
	"context"
	"net/netip"
	"sync"

	"github.com/google/uuid"

	"github.com/kawaismp/authgate/internal/gateway"
)

// Conn es un gateway.Conn en memoria que registra lo que el core le hace.
type Conn struct {
	mu sync.Mutex

	ConnID   uuid.UUID
	Name     string
	Addr     netip.Addr
	Proto    int
	IsSecure bool

	profile      gateway.Profile
	messages     []string
	disconnected bool
	kickReason   string
	backend      string

	// FailBackends hace fallar Connect hacia esos backends.
	FailBackends map[string]bool
}

var _ gateway.Conn = (*Conn)(nil)

func NewConn(name string, proto int) *Conn {
	return &Conn{
		ConnID: uuid.New(),
		Name:   name,
		Addr:   netip.MustParseAddr("192.0.2.10"),
		Proto:  proto,
	}
}

func (c *Conn) ID() uuid.UUID            { return c.ConnID }
func (c *Conn) RemoteAddr() netip.Addr   { return c.Addr }
func (c *Conn) ProtocolVersion() int     { return c.Proto }
func (c *Conn) Secure() bool             { return c.IsSecure }

func (c *Conn) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.profile.Name != "" {
		return c.profile.Name
	}
	return c.Name
}

func (c *Conn) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.disconnected
}

func (c *Conn) SetProfile(p gateway.Profile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profile = p
}

func (c *Conn) Profile() gateway.Profile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.profile
}

func (c *Conn) SendMessage(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
}

func (c *Conn) Messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Conn) Disconnect(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
	c.kickReason = reason
}

func (c *Conn) Disconnected() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected, c.kickReason
}

func (c *Conn) CurrentBackend() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backend, c.backend != ""
}

func (c *Conn) SetBackend(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backend = name
}

func (c *Conn) Connect(ctx context.Context, backend string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailBackends[backend] {
		return context.DeadlineExceeded
	}
	c.backend = backend
	return nil
}
