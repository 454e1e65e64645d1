// Package staging puentea las dos fases del pipeline de conexión: antes de
// autenticar la identidad se anonimiza (solo existe un display name
// temporal), después el host asigna el id permanente. Los registros se
// stagean bajo la clave temporal y se mueven —nunca se copian— a la tabla
// permanente cuando el id aparece. También guarda las decisiones de
// auto-login precomputadas para consumirlas exactamente una vez en fase 2.
package staging

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kawaismp/authgate/internal/store/core"
)

// Record es la información original de la conexión previa a la
// anonimización.
type Record struct {
	FingerprintID   uuid.UUID
	RequestedName   string
	ProtocolVersion int
	CreatedAt       time.Time
}

// Method es el método con el que se resolvió un login.
type Method string

const (
	MethodPassword Method = "password"
	MethodBridge   Method = "bridge"
	MethodSession  Method = "session"
)

// Decision es un auto-login resuelto en fase 1, pendiente de aplicarse en
// fase 2 cuando el handle completo de la conexión exista.
type Decision struct {
	Account       core.Account
	Method        Method
	FingerprintID uuid.UUID
}

type Cache struct {
	mu sync.Mutex
	// pendiente, por display name temporal (fase 1)
	pending map[string]Record
	// permanente, por connection id (fase 2)
	perm map[uuid.UUID]Record
	// índice inverso fingerprint → connection id
	byFingerprint map[uuid.UUID]uuid.UUID
	// decisiones de auto-login por connection id futuro
	decisions map[uuid.UUID]Decision

	staleAfter time.Duration
	log        *zap.Logger
	stop       chan struct{}
	wg         sync.WaitGroup
	once       sync.Once
}

// NewCache arranca el sweep de pendientes stale (conexiones que nunca
// llegaron a fase 2). sweepEvery <= 0 lo desactiva.
func NewCache(staleAfter, sweepEvery time.Duration, log *zap.Logger) *Cache {
	c := &Cache{
		pending:       make(map[string]Record),
		perm:          make(map[uuid.UUID]Record),
		byFingerprint: make(map[uuid.UUID]uuid.UUID),
		decisions:     make(map[uuid.UUID]Decision),
		staleAfter:    staleAfter,
		log:           log,
		stop:          make(chan struct{}),
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
					c.sweepStale()
				case <-c.stop:
					return
				}
			}
		}()
	}
	return c
}

// StorePending stagea el registro bajo el display name temporal. Exactamente
// un registro vivo por clave temporal.
func (c *Cache) StorePending(tempName string, rec Record) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	c.mu.Lock()
	c.pending[tempName] = rec
	c.mu.Unlock()
}

// Transfer mueve atómicamente el registro pendiente que matchea el display
// name actual a la tabla permanente bajo connID, y mantiene el índice
// inverso. Devuelve false si no había pendiente (no es un error: la
// conexión sigue por el camino normal).
func (c *Cache) Transfer(connID uuid.UUID, currentName string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.pending[currentName]
	if !ok {
		return false
	}
	delete(c.pending, currentName)
	c.perm[connID] = rec
	c.byFingerprint[rec.FingerprintID] = connID
	return true
}

// Record devuelve el registro permanente de una conexión.
func (c *Cache) Record(connID uuid.UUID) (Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.perm[connID]
	return rec, ok
}

// ConnByFingerprint resuelve el índice inverso fingerprint → conexión.
func (c *Cache) ConnByFingerprint(fp uuid.UUID) (uuid.UUID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.byFingerprint[fp]
	return id, ok
}

// Remove limpia ambas direcciones y cualquier decisión sin consumir.
// Llamar en disconnect; idempotente.
func (c *Cache) Remove(connID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec, ok := c.perm[connID]; ok {
		delete(c.byFingerprint, rec.FingerprintID)
		delete(c.perm, connID)
	}
	delete(c.decisions, connID)
}

// StoreDecision guarda el auto-login resuelto para el connection id que el
// host va a asignar.
func (c *Cache) StoreDecision(connID uuid.UUID, d Decision) {
	c.mu.Lock()
	c.decisions[connID] = d
	c.mu.Unlock()
}

// TakeDecision saca y devuelve la decisión, garantizando consumo único.
func (c *Cache) TakeDecision(connID uuid.UUID) (Decision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.decisions[connID]
	if ok {
		delete(c.decisions, connID)
	}
	return d, ok
}

// PendingLen cuenta los registros en fase 1 (para tests/stats).
func (c *Cache) PendingLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// PermanentLen cuenta registros en fase 2 + índice inverso (para tests).
func (c *Cache) PermanentLen() (perm, reverse int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.perm), len(c.byFingerprint)
}

func (c *Cache) sweepStale() {
	cutoff := time.Now().Add(-c.staleAfter)
	removed := 0

	c.mu.Lock()
	for name, rec := range c.pending {
		if rec.CreatedAt.Before(cutoff) {
			delete(c.pending, name)
			removed++
		}
	}
	c.mu.Unlock()

	if removed > 0 {
		c.log.Debug("cleaned up stale pending connections", zap.Int("count", removed))
	}
}

// Close frena el sweep. Idempotente.
func (c *Cache) Close() {
	c.once.Do(func() { close(c.stop) })
	c.wg.Wait()
}
