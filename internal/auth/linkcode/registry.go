// Package linkcode mantiene los códigos de verificación one-time para
// vincular una cuenta con Discord: 6 dígitos, únicos entre códigos vivos,
// a lo sumo uno por username, consumo atómico.
package linkcode

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"
)

type entry struct {
	username string
	expires  time.Time
}

type Registry struct {
	mu     sync.Mutex
	byCode map[string]entry
	byUser map[string]string

	ttl  time.Duration
	log  *zap.Logger
	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewRegistry arranca el sweep de códigos vencidos (cada sweepEvery;
// <=0 lo desactiva).
func NewRegistry(ttl, sweepEvery time.Duration, log *zap.Logger) *Registry {
	r := &Registry{
		byCode: make(map[string]entry),
		byUser: make(map[string]string),
		ttl:    ttl,
		log:    log,
		stop:   make(chan struct{}),
	}
	if sweepEvery > 0 {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			t := time.NewTicker(sweepEvery)
			defer t.Stop()
			for {
				select {
				case <-t.C:
					r.sweep()
				case <-r.stop:
					return
				}
			}
		}()
	}
	return r
}

// generate produce 6 dígitos (100000-999999) con crypto/rand.
func generate() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", 100000+n.Int64()), nil
}

// Issue invalida cualquier código previo del username, genera uno único
// (reintenta ante colisión) y lo registra con expiración now+ttl.
func (r *Registry) Issue(username string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.byUser[username]; ok {
		delete(r.byCode, old)
	}

	var code string
	for {
		c, err := generate()
		if err != nil {
			return "", err
		}
		if _, taken := r.byCode[c]; !taken {
			code = c
			break
		}
	}

	r.byCode[code] = entry{username: username, expires: time.Now().Add(r.ttl)}
	r.byUser[username] = code

	r.log.Debug("link code issued", zap.String("username", username))
	return code, nil
}

// Peek devuelve el código vivo del username sin consumirlo. Purga al tocar
// si ya venció.
func (r *Registry) Peek(username string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, ok := r.byUser[username]
	if !ok {
		return "", false
	}
	e, ok := r.byCode[code]
	if !ok || time.Now().After(e.expires) {
		delete(r.byCode, code)
		delete(r.byUser, username)
		return "", false
	}
	return code, true
}

// Consume es el lookup-and-remove atómico: a lo sumo un caller concurrente
// obtiene el username; el resto ve not-found.
func (r *Registry) Consume(code string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byCode[code]
	if !ok {
		return "", false
	}
	if time.Now().After(e.expires) {
		delete(r.byCode, code)
		delete(r.byUser, e.username)
		return "", false
	}

	delete(r.byCode, code)
	delete(r.byUser, e.username)

	r.log.Info("link code consumed", zap.String("username", e.username))
	return e.username, true
}

// Revoke descarta el código vivo de un username, si hay.
func (r *Registry) Revoke(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if code, ok := r.byUser[username]; ok {
		delete(r.byCode, code)
		delete(r.byUser, username)
	}
}

func (r *Registry) sweep() {
	now := time.Now()
	removed := 0

	r.mu.Lock()
	for code, e := range r.byCode {
		if now.After(e.expires) {
			delete(r.byCode, code)
			delete(r.byUser, e.username)
			removed++
		}
	}
	r.mu.Unlock()

	if removed > 0 {
		r.log.Debug("cleaned up expired link codes", zap.Int("count", removed))
	}
}

// Close frena el sweep. Idempotente.
func (r *Registry) Close() {
	r.once.Do(func() { close(r.stop) })
	r.wg.Wait()
}
