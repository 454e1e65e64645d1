// Package session implementa el cache de sesiones de reconexión: tokens
// por fingerprint id con gracia post-desconexión y revalidación estricta
// de atributos.
package session

import (
	"net/netip"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Token es la sesión resuelta de una conexión autenticada.
type Token struct {
	Username        string
	AccountID       string
	ProtocolVersion int
	SourceAddr      netip.Addr
	Secure          bool
	CreatedAt       time.Time
}

type entry struct {
	tok Token
	// deadline cero = token "vivo": la conexión sigue abierta (o acaba de
	// reconectar) y el token no se ofrece a otras conexiones.
	deadline time.Time
}

type Cache struct {
	mu     sync.Mutex
	tokens map[uuid.UUID]*entry

	grace time.Duration
	log   *zap.Logger
	stop  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
}

// NewCache arranca el sweep de fondo (cada sweepEvery; <=0 lo desactiva).
func NewCache(grace, sweepEvery time.Duration, log *zap.Logger) *Cache {
	c := &Cache{
		tokens: make(map[uuid.UUID]*entry),
		grace:  grace,
		log:    log,
		stop:   make(chan struct{}),
	}
	if sweepEvery > 0 {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			t := time.NewTicker(sweepEvery)
			defer t.Stop()
			for {
				select {
				case <-t.C:
					c.sweep()
				case <-c.stop:
					return
				}
			}
		}()
	}
	return c
}

// CreateOrRefresh upserta un token vivo (sin deadline). Last-write-wins por
// fingerprint.
func (c *Cache) CreateOrRefresh(fp uuid.UUID, username, accountID string, proto int, addr netip.Addr, secure bool) {
	c.mu.Lock()
	c.tokens[fp] = &entry{tok: Token{
		Username:        username,
		AccountID:       accountID,
		ProtocolVersion: proto,
		SourceAddr:      addr,
		Secure:          secure,
		CreatedAt:       time.Now(),
	}}
	c.mu.Unlock()

	c.log.Debug("session token upserted", zap.String("fingerprint", fp.String()), zap.String("username", username))
}

// MarkForExpiration arranca la gracia: deadline = now + grace. No-op si no
// hay token.
func (c *Cache) MarkForExpiration(fp uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.tokens[fp]; ok {
		e.deadline = time.Now().Add(c.grace)
	}
}

// Validate devuelve el token solo si:
//   - existe,
//   - el deadline no pasó (los tokens vivos no tienen deadline y no
//     expiran nunca; solo el sweep o un mismatch los saca),
//   - protocolo, source address y trust flag coinciden exacto.
//
// Éxito limpia el deadline (el token vuelve a vivo). Cualquier mismatch o
// expiración elimina el token; nada se reescribe sobre campos que sí
// coincidían.
func (c *Cache) Validate(fp uuid.UUID, proto int, addr netip.Addr, secure bool) (Token, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.tokens[fp]
	if !ok {
		return Token{}, false
	}

	if !e.deadline.IsZero() && time.Now().After(e.deadline) {
		delete(c.tokens, fp)
		c.log.Debug("session expired", zap.String("fingerprint", fp.String()))
		return Token{}, false
	}

	if e.tok.ProtocolVersion != proto || e.tok.SourceAddr != addr || e.tok.Secure != secure {
		delete(c.tokens, fp)
		c.log.Debug("session fingerprint mismatch",
			zap.String("fingerprint", fp.String()),
			zap.Int("proto_want", e.tok.ProtocolVersion), zap.Int("proto_got", proto))
		return Token{}, false
	}

	e.deadline = time.Time{}
	return e.tok, true
}

// Remove descarta un token explícitamente.
func (c *Cache) Remove(fp uuid.UUID) {
	c.mu.Lock()
	delete(c.tokens, fp)
	c.mu.Unlock()
}

// Stats devuelve (total, en gracia).
func (c *Cache) Stats() (total, expiring int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.tokens {
		if !e.deadline.IsZero() {
			expiring++
		}
	}
	return len(c.tokens), expiring
}

func (c *Cache) sweep() {
	now := time.Now()
	removed := 0

	c.mu.Lock()
	for fp, e := range c.tokens {
		if !e.deadline.IsZero() && now.After(e.deadline) {
			delete(c.tokens, fp)
			removed++
		}
	}
	c.mu.Unlock()

	if removed > 0 {
		c.log.Debug("cleaned up expired sessions", zap.Int("count", removed))
	}
}

// Close frena el sweep. Idempotente.
func (c *Cache) Close() {
	c.once.Do(func() { close(c.stop) })
	c.wg.Wait()
}
