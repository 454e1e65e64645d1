// Package persist implementa un cache TTL en memoria con persistencia JSON
// debounced a disco. Se instancia dos veces: hints de último backend y
// contadores de registro por source address.
//
// Formato en disco: map[key]{value, timestamp}, reescrito completo en cada
// flush vía atomicwrite. Al cargar se descartan las entradas ya expiradas.
package persist

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kawaismp/authgate/internal/util/atomicwrite"
)

// saveDelay coalesce ráfagas de mutaciones en un solo write.
const saveDelay = time.Second

type Entry[V any] struct {
	Value     V     `json:"value"`
	Timestamp int64 `json:"timestamp"` // unix millis del último write
}

func (e Entry[V]) expired(ttl time.Duration, now time.Time) bool {
	return now.UnixMilli()-e.Timestamp >= ttl.Milliseconds()
}

type Cache[V any] struct {
	mu      sync.Mutex
	entries map[string]Entry[V]
	dirty   bool
	timer   *time.Timer
	closed  bool

	path string
	ttl  time.Duration
	log  *zap.Logger
	stop chan struct{}
	wg   sync.WaitGroup
}

// New carga el archivo (si existe), descarta lo expirado y arranca el sweep
// periódico. sweepEvery <= 0 desactiva el sweep (para tests).
func New[V any](path string, ttl, sweepEvery time.Duration, log *zap.Logger) *Cache[V] {
	c := &Cache[V]{
		entries: make(map[string]Entry[V]),
		path:    path,
		ttl:     ttl,
		log:     log,
		stop:    make(chan struct{}),
	}
	c.load()

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

func (c *Cache[V]) Put(key string, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.entries[key] = Entry[V]{Value: v, Timestamp: time.Now().UnixMilli()}
	c.markDirtyLocked()
}

// Get devuelve el valor si existe y no expiró.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || e.expired(c.ttl, time.Now()) {
		var zero V
		return zero, false
	}
	return e.Value, true
}

func (c *Cache[V]) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if _, ok := c.entries[key]; ok {
		delete(c.entries, key)
		c.markDirtyLocked()
	}
}

// Mutate aplica fn al valor actual (ok=false si no hay entrada viva) bajo el
// lock del cache. Si fn devuelve keep=false la entrada se elimina.
func (c *Cache[V]) Mutate(key string, fn func(cur V, ok bool) (next V, keep bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	var cur V
	e, ok := c.entries[key]
	if ok && !e.expired(c.ttl, time.Now()) {
		cur = e.Value
	} else {
		ok = false
	}
	next, keep := fn(cur, ok)
	if keep {
		c.entries[key] = Entry[V]{Value: next, Timestamp: time.Now().UnixMilli()}
	} else {
		delete(c.entries, key)
	}
	c.markDirtyLocked()
}

// Len cuenta las entradas vivas.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	n := 0
	for _, e := range c.entries {
		if !e.expired(c.ttl, now) {
			n++
		}
	}
	return n
}

// Flush fuerza un write síncrono si hay cambios pendientes.
func (c *Cache[V]) Flush() {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	snap, dirty := c.snapshotLocked()
	c.dirty = false
	c.mu.Unlock()

	if dirty {
		c.write(snap)
	}
}

// Close cancela el timer pendiente, hace un último write síncrono y frena
// el sweep. Idempotente.
func (c *Cache[V]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	snap, dirty := c.snapshotLocked()
	c.dirty = false
	c.mu.Unlock()

	close(c.stop)
	c.wg.Wait()
	if dirty {
		c.write(snap)
	}
}

// markDirtyLocked resetea el timer de debounce: cada mutación pospone el
// write, y ráfagas dentro de saveDelay terminan en un único flush.
func (c *Cache[V]) markDirtyLocked() {
	c.dirty = true
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(saveDelay, func() {
		c.mu.Lock()
		snap, dirty := c.snapshotLocked()
		c.dirty = false
		c.timer = nil
		c.mu.Unlock()
		if dirty {
			c.write(snap)
		}
	})
}

func (c *Cache[V]) snapshotLocked() (map[string]Entry[V], bool) {
	if !c.dirty {
		return nil, false
	}
	now := time.Now()
	snap := make(map[string]Entry[V], len(c.entries))
	for k, e := range c.entries {
		if !e.expired(c.ttl, now) {
			snap[k] = e
		}
	}
	return snap, true
}

func (c *Cache[V]) write(snap map[string]Entry[V]) {
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		c.log.Error("marshal cache snapshot", zap.Error(err))
		return
	}
	if err := atomicwrite.WriteFile(c.path, b, 0644); err != nil {
		c.log.Error("persist cache", zap.String("path", c.path), zap.Error(err))
	}
}

func (c *Cache[V]) load() {
	b, err := os.ReadFile(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.log.Warn("load cache", zap.String("path", c.path), zap.Error(err))
		}
		return
	}
	var data map[string]Entry[V]
	if err := json.Unmarshal(b, &data); err != nil {
		c.log.Warn("corrupt cache file, starting fresh", zap.String("path", c.path), zap.Error(err))
		return
	}
	now := time.Now()
	for k, e := range data {
		if !e.expired(c.ttl, now) {
			c.entries[k] = e
		}
	}
	c.log.Debug("cache loaded", zap.String("path", c.path), zap.Int("entries", len(c.entries)))
}

func (c *Cache[V]) sweep() {
	c.mu.Lock()
	now := time.Now()
	removed := 0
	for k, e := range c.entries {
		if e.expired(c.ttl, now) {
			delete(c.entries, k)
			removed++
		}
	}
	if removed > 0 {
		c.markDirtyLocked()
	}
	c.mu.Unlock()

	if removed > 0 {
		c.log.Debug("swept expired entries", zap.Int("removed", removed))
	}
}
