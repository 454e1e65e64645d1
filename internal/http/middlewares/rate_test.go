package middlewares

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kawaismp/authgate/internal/http/httpx"
	"github.com/kawaismp/authgate/internal/rate"
)

// El 429 del middleware debe salir con el mismo sobre JSON que usa el
// handler de vinculación, no como texto plano.
func TestRateLimitRejectsWithEnvelope(t *testing.T) {
	mw := RateLimit(rate.NewMemoryLimiter(1, time.Hour), 1)
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.OK(w, "ok", "")
	}))

	do := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/link", nil)
		req.RemoteAddr = "203.0.113.9:55001"
		h.ServeHTTP(rec, req)
		return rec
	}

	if rec := do(); rec.Code != http.StatusOK {
		t.Fatalf("primer request: status = %d, quería 200", rec.Code)
	}

	rec := do()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("segundo request: status = %d, quería 429", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Fatalf("Content-Type = %q, quería el sobre JSON", ct)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("falta el header Retry-After")
	}

	var env httpx.Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("el cuerpo del 429 no es JSON: %v", err)
	}
	if env.Success {
		t.Fatalf("success debía ser false en un 429")
	}
	if env.Message == "" {
		t.Fatalf("el sobre debía traer un message")
	}
}

func TestRateLimitDistinctIPsDoNotShareWindow(t *testing.T) {
	mw := RateLimit(rate.NewMemoryLimiter(1, time.Hour), 1)
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(addr string) int {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/link", nil)
		req.RemoteAddr = addr
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := do("203.0.113.1:1000"); code != http.StatusOK {
		t.Fatalf("primer IP: status = %d", code)
	}
	if code := do("203.0.113.2:1000"); code != http.StatusOK {
		t.Fatalf("otra IP no comparte ventana: status = %d", code)
	}
	if code := do("203.0.113.1:2000"); code != http.StatusTooManyRequests {
		t.Fatalf("misma IP debía rechazarse: status = %d", code)
	}
}
