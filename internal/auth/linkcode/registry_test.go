package linkcode

import (
	"regexp"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

var codeFormat = regexp.MustCompile(`^[1-9]\d{5}$`)

func newTestRegistry(t *testing.T, ttl time.Duration) *Registry {
	t.Helper()
	r := NewRegistry(ttl, 0, zap.NewNop())
	t.Cleanup(r.Close)
	return r
}

func TestIssueFormat(t *testing.T) {
	r := newTestRegistry(t, time.Minute)
	for i := 0; i < 50; i++ {
		code, err := r.Issue("jugador")
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		if !codeFormat.MatchString(code) {
			t.Fatalf("código fuera de rango: %q", code)
		}
	}
}

func TestIssueInvalidatesPreviousCode(t *testing.T) {
	r := newTestRegistry(t, time.Minute)

	first, err := r.Issue("jugador")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	second, err := r.Issue("jugador")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, ok := r.Consume(first); ok {
		t.Fatalf("el código viejo debía quedar invalidado")
	}
	if user, ok := r.Consume(second); !ok || user != "jugador" {
		t.Fatalf("Consume(%q) = (%q, %v)", second, user, ok)
	}
}

func TestPeekDoesNotConsume(t *testing.T) {
	r := newTestRegistry(t, time.Minute)

	code, err := r.Issue("jugador")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	for i := 0; i < 3; i++ {
		got, ok := r.Peek("jugador")
		if !ok || got != code {
			t.Fatalf("Peek = (%q, %v), quería (%q, true)", got, ok, code)
		}
	}
	if user, ok := r.Consume(code); !ok || user != "jugador" {
		t.Fatalf("el código debía seguir vivo tras los peeks")
	}
}

func TestConsumeIsSingleUse(t *testing.T) {
	r := newTestRegistry(t, time.Minute)

	code, _ := r.Issue("jugador")
	if _, ok := r.Consume(code); !ok {
		t.Fatalf("primer consume debía andar")
	}
	if _, ok := r.Consume(code); ok {
		t.Fatalf("segundo consume debía fallar")
	}
	if _, ok := r.Peek("jugador"); ok {
		t.Fatalf("el índice por username debía limpiarse")
	}
}

func TestConsumeConcurrentAtMostOne(t *testing.T) {
	r := newTestRegistry(t, time.Minute)
	code, _ := r.Issue("jugador")

	const callers = 32
	var wg sync.WaitGroup
	wins := make(chan struct{}, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := r.Consume(code); ok {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	n := 0
	for range wins {
		n++
	}
	if n != 1 {
		t.Fatalf("%d callers consumieron el mismo código", n)
	}
}

func TestExpiredCodePurgedOnTouch(t *testing.T) {
	r := newTestRegistry(t, 5*time.Millisecond)
	code, _ := r.Issue("jugador")

	time.Sleep(20 * time.Millisecond)

	if _, ok := r.Consume(code); ok {
		t.Fatalf("código vencido debía rechazarse")
	}
	if _, ok := r.Peek("jugador"); ok {
		t.Fatalf("peek debía purgar el código vencido")
	}
}

func TestRevoke(t *testing.T) {
	r := newTestRegistry(t, time.Minute)
	code, _ := r.Issue("jugador")

	r.Revoke("jugador")
	if _, ok := r.Consume(code); ok {
		t.Fatalf("código revocado debía rechazarse")
	}
	// Revoke sin código vivo es no-op.
	r.Revoke("jugador")
}
