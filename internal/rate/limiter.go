package rate

import (
	"context"
	"sync"
	"time"
)

type Result struct {
	Allowed     bool
	Remaining   int64
	RetryAfter  time.Duration
	CurrentHits int64
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// MemoryLimiter: fixed window sencillo sobre un map local.
// Mismo algoritmo que el RedisLimiter (ventana truncada + contador), para
// poder correr sin redis en dev y single-node.
type MemoryLimiter struct {
	mu        sync.Mutex
	windows   map[string]*window
	max       int64
	window    time.Duration
	lastPrune time.Time
}

type window struct {
	start time.Time
	hits  int64
}

func NewMemoryLimiter(max int, win time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]*window),
		max:     int64(max),
		window:  win,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	now := time.Now()
	winStart := now.Truncate(l.window)

	l.mu.Lock()
	// Prune amortizado: a lo sumo un barrido por ventana, para que el map
	// no acumule una entrada por IP para siempre.
	if now.Sub(l.lastPrune) >= l.window {
		l.pruneLocked(now)
		l.lastPrune = now
	}
	w, ok := l.windows[key]
	if !ok || w.start.Before(winStart) {
		w = &window{start: winStart}
		l.windows[key] = w
	}
	w.hits++
	hits := w.hits
	l.mu.Unlock()

	allowed := hits <= l.max
	remaining := l.max - hits
	if remaining < 0 {
		remaining = 0
	}

	res := Result{
		Allowed:     allowed,
		Remaining:   remaining,
		CurrentHits: hits,
	}
	if !allowed {
		// Retry after: resto de la ventana
		res.RetryAfter = winStart.Add(l.window).Sub(now)
		if res.RetryAfter < 0 {
			res.RetryAfter = l.window
		}
	}
	return res, nil
}

// Prune descarta ventanas ya vencidas. Allow ya lo hace solo de forma
// amortizada; esto existe para forzarlo (tests, hooks administrativos).
func (l *MemoryLimiter) Prune() {
	l.mu.Lock()
	l.pruneLocked(time.Now())
	l.mu.Unlock()
}

func (l *MemoryLimiter) pruneLocked(now time.Time) {
	cutoff := now.Add(-l.window)
	for k, w := range l.windows {
		if w.start.Before(cutoff) {
			delete(l.windows, k)
		}
	}
}
