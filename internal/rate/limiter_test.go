package rate

import (
	"context"
	"strconv"
	"testing"
	"time"
)

func TestMemoryLimiterFixedWindow(t *testing.T) {
	l := NewMemoryLimiter(3, time.Hour)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		res, err := l.Allow(ctx, "ip:203.0.113.7")
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("hit %d debía pasar", i)
		}
		if res.CurrentHits != int64(i) {
			t.Fatalf("hits = %d, quería %d", res.CurrentHits, i)
		}
	}

	res, _ := l.Allow(ctx, "ip:203.0.113.7")
	if res.Allowed {
		t.Fatalf("el hit 4 debía rechazarse")
	}
	if res.Remaining != 0 {
		t.Fatalf("remaining = %d, quería 0", res.Remaining)
	}
	if res.RetryAfter <= 0 || res.RetryAfter > time.Hour {
		t.Fatalf("retry after fuera de rango: %v", res.RetryAfter)
	}
}

func TestMemoryLimiterKeysIsolated(t *testing.T) {
	l := NewMemoryLimiter(1, time.Hour)
	ctx := context.Background()

	if res, _ := l.Allow(ctx, "ip:a"); !res.Allowed {
		t.Fatalf("primer hit de a debía pasar")
	}
	if res, _ := l.Allow(ctx, "ip:b"); !res.Allowed {
		t.Fatalf("b no comparte ventana con a")
	}
	if res, _ := l.Allow(ctx, "ip:a"); res.Allowed {
		t.Fatalf("segundo hit de a debía rechazarse")
	}
}

func TestMemoryLimiterWindowReset(t *testing.T) {
	l := NewMemoryLimiter(1, 20*time.Millisecond)
	ctx := context.Background()

	l.Allow(ctx, "k")
	if res, _ := l.Allow(ctx, "k"); res.Allowed {
		t.Fatalf("dentro de la ventana debía rechazar")
	}

	time.Sleep(45 * time.Millisecond)
	if res, _ := l.Allow(ctx, "k"); !res.Allowed {
		t.Fatalf("la ventana nueva debía arrancar limpia")
	}
}

// Allow debe podar ventanas vencidas por sí solo: el map es por IP de
// origen y nadie más lo limpia en producción.
func TestAllowPrunesExpiredWindows(t *testing.T) {
	l := NewMemoryLimiter(5, 30*time.Millisecond)
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		l.Allow(ctx, "ip:"+strconv.Itoa(i))
	}
	time.Sleep(70 * time.Millisecond)

	// Un hit cualquiera tras la ventana dispara el prune amortizado.
	l.Allow(ctx, "ip:fresh")

	l.mu.Lock()
	n := len(l.windows)
	l.mu.Unlock()
	if n != 1 {
		t.Fatalf("quedaron %d ventanas tras el prune amortizado, quería 1", n)
	}
}

func TestPrune(t *testing.T) {
	l := NewMemoryLimiter(5, 10*time.Millisecond)
	ctx := context.Background()

	l.Allow(ctx, "k1")
	l.Allow(ctx, "k2")
	time.Sleep(30 * time.Millisecond)
	l.Prune()

	l.mu.Lock()
	n := len(l.windows)
	l.mu.Unlock()
	if n != 0 {
		t.Fatalf("prune dejó %d ventanas vencidas", n)
	}
}
