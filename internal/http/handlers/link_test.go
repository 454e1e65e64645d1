package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kawaismp/authgate/internal/app"
	"github.com/kawaismp/authgate/internal/auth/linkcode"
	"github.com/kawaismp/authgate/internal/config"
	"github.com/kawaismp/authgate/internal/http/httpx"
	"github.com/kawaismp/authgate/internal/observability/logger"
	"github.com/kawaismp/authgate/internal/store/memory"
	"github.com/kawaismp/authgate/internal/util/kmutex"
)

const testSecret = "s3cret-de-test"

func newLinkFixture(t *testing.T) (*app.Container, http.HandlerFunc) {
	t.Helper()

	cfg := &config.Config{}
	cfg.Server.SecretKey = testSecret
	cfg.Link.MaxAccountsPerDiscord = 2

	codes := linkcode.NewRegistry(10*time.Minute, 0, zap.NewNop())
	t.Cleanup(codes.Close)

	c := &app.Container{
		Cfg:          cfg,
		Store:        memory.New(),
		Codes:        codes,
		LinkCooldown: gocache.New(50*time.Millisecond, time.Minute),
		LinkMu:       kmutex.New(),
	}
	return c, NewLinkHandler(c)
}

func doLink(h http.HandlerFunc, secret, code, discordID string) (*httptest.ResponseRecorder, httpx.Envelope) {
	q := url.Values{}
	if secret != "" {
		q.Set("secret_key", secret)
	}
	if code != "" {
		q.Set("code", code)
	}
	if discordID != "" {
		q.Set("discord_id", discordID)
	}
	req := httptest.NewRequest(http.MethodGet, "/link?"+q.Encode(), nil)
	rr := httptest.NewRecorder()
	h(rr, req)

	var env httpx.Envelope
	_ = json.Unmarshal(rr.Body.Bytes(), &env)
	return rr, env
}

func seedAccount(t *testing.T, c *app.Container, username string) string {
	t.Helper()
	acct, err := c.Store.CreateAccount(context.Background(), username, "hunter22")
	if err != nil {
		t.Fatalf("seed %s: %v", username, err)
	}
	return acct.ID
}

func issueCode(t *testing.T, c *app.Container, username string) string {
	t.Helper()
	code, err := c.Codes.Issue(username)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return code
}

func TestLinkHappyPath(t *testing.T) {
	c, h := newLinkFixture(t)
	id := seedAccount(t, c, "Steve")
	code := issueCode(t, c, "Steve")

	rr, env := doLink(h, testSecret, code, "123456789012345678")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}
	if !env.Success || env.MinecraftUsername != "Steve" {
		t.Fatalf("envelope = %+v", env)
	}

	acct, err := c.Store.FindByID(context.Background(), id)
	if err != nil || !acct.HasLinkedDiscord() {
		t.Fatalf("la cuenta debía quedar vinculada: %+v, %v", acct, err)
	}
}

func TestLinkWrongSecret(t *testing.T) {
	c, h := newLinkFixture(t)
	seedAccount(t, c, "Steve")
	code := issueCode(t, c, "Steve")

	rr, env := doLink(h, "incorrecto", code, "123456789012345678")
	if rr.Code != http.StatusUnauthorized || env.Success {
		t.Fatalf("status = %d, envelope = %+v", rr.Code, env)
	}

	// El código no se quema con un secret inválido.
	if _, ok := c.Codes.Peek("Steve"); !ok {
		t.Fatalf("el código debía seguir vivo")
	}
}

// Un secret inválido deja rastro en el log con la IP de origen.
func TestLinkWrongSecretLogsSource(t *testing.T) {
	obsCore, logs := observer.New(zapcore.WarnLevel)
	restore := logger.Swap(zap.New(obsCore))
	defer restore()

	c, h := newLinkFixture(t)
	seedAccount(t, c, "Steve")
	code := issueCode(t, c, "Steve")

	rr, _ := doLink(h, "incorrecto", code, "123456789012345678")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, quería 401", rr.Code)
	}

	got := logs.FilterMessage("link request with bad secret").All()
	if len(got) != 1 {
		t.Fatalf("warns con bad secret = %d, quería 1", len(got))
	}
	// httptest.NewRequest fija RemoteAddr en 192.0.2.1:1234.
	if ip, _ := got[0].ContextMap()["client_ip"].(string); ip != "192.0.2.1" {
		t.Fatalf("client_ip = %q en el warn", ip)
	}
}

func TestLinkValidation(t *testing.T) {
	_, h := newLinkFixture(t)

	cases := []struct {
		name      string
		code      string
		discordID string
	}{
		{"código corto", "123", "123456789012345678"},
		{"código con letras", "12a456", "123456789012345678"},
		{"código ausente", "", "123456789012345678"},
		{"discord corto", "123456", "1234"},
		{"discord con letras", "123456", "12345678901234567x"},
		{"discord ausente", "123456", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr, env := doLink(h, testSecret, tc.code, tc.discordID)
			if rr.Code != http.StatusBadRequest || env.Success {
				t.Fatalf("status = %d, envelope = %+v", rr.Code, env)
			}
		})
	}
}

func TestLinkUnknownCode(t *testing.T) {
	_, h := newLinkFixture(t)

	rr, _ := doLink(h, testSecret, "999999", "123456789012345678")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestLinkCodeIsSingleUse(t *testing.T) {
	c, h := newLinkFixture(t)
	seedAccount(t, c, "Steve")
	code := issueCode(t, c, "Steve")

	if rr, _ := doLink(h, testSecret, code, "123456789012345678"); rr.Code != http.StatusOK {
		t.Fatalf("primer uso: status = %d", rr.Code)
	}

	// Mismo código, otro discord (para esquivar el cooldown): ya no existe.
	rr, _ := doLink(h, testSecret, code, "876543210987654321")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("segundo uso: status = %d", rr.Code)
	}
}

func TestLinkAlreadyLinkedAccount(t *testing.T) {
	c, h := newLinkFixture(t)
	id := seedAccount(t, c, "Steve")
	if err := c.Store.LinkDiscord(context.Background(), id, "111111111111111111"); err != nil {
		t.Fatalf("seed link: %v", err)
	}
	code := issueCode(t, c, "Steve")

	rr, _ := doLink(h, testSecret, code, "123456789012345678")
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestLinkDiscordAtAccountLimit(t *testing.T) {
	c, h := newLinkFixture(t)
	discord := "123456789012345678"

	// Dos cuentas ya vinculadas al mismo discord (el máximo del fixture).
	for _, name := range []string{"Steve", "Alex"} {
		id := seedAccount(t, c, name)
		if err := c.Store.LinkDiscord(context.Background(), id, discord); err != nil {
			t.Fatalf("seed link: %v", err)
		}
	}
	seedAccount(t, c, "Notch")
	code := issueCode(t, c, "Notch")

	time.Sleep(60 * time.Millisecond) // deja vencer cooldowns previos
	rr, _ := doLink(h, testSecret, code, discord)
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d", rr.Code)
	}

	// El código sí se quemó: consume-primero es deliberado.
	if _, ok := c.Codes.Peek("Notch"); ok {
		t.Fatalf("el código debía consumirse aunque el link falle")
	}
}

func TestLinkDiscordCooldown(t *testing.T) {
	c, h := newLinkFixture(t)
	seedAccount(t, c, "Steve")
	seedAccount(t, c, "Alex")
	discord := "123456789012345678"

	codeA := issueCode(t, c, "Steve")
	if rr, _ := doLink(h, testSecret, codeA, discord); rr.Code != http.StatusOK {
		t.Fatalf("primer link: status = %d", rr.Code)
	}

	codeB := issueCode(t, c, "Alex")
	rr, _ := doLink(h, testSecret, codeB, discord)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("dentro del cooldown: status = %d", rr.Code)
	}

	time.Sleep(80 * time.Millisecond)
	rr, _ = doLink(h, testSecret, codeB, discord)
	if rr.Code != http.StatusOK {
		t.Fatalf("pasado el cooldown: status = %d, body = %s", rr.Code, rr.Body)
	}
}

func TestLinkConcurrentSameDiscordRespectsLimit(t *testing.T) {
	c, h := newLinkFixture(t)
	c.Cfg.Link.MaxAccountsPerDiscord = 1
	c.LinkCooldown = gocache.New(time.Nanosecond, time.Minute)
	discord := "123456789012345678"

	seedAccount(t, c, "Steve")
	seedAccount(t, c, "Alex")
	codeA := issueCode(t, c, "Steve")
	codeB := issueCode(t, c, "Alex")

	var wg sync.WaitGroup
	results := make([]int, 2)
	for i, code := range []string{codeA, codeB} {
		wg.Add(1)
		go func(i int, code string) {
			defer wg.Done()
			rr, _ := doLink(h, testSecret, code, discord)
			results[i] = rr.Code
		}(i, code)
	}
	wg.Wait()

	okCount := 0
	for _, status := range results {
		if status == http.StatusOK {
			okCount++
		}
	}
	if okCount != 1 {
		t.Fatalf("vinculaciones exitosas = %d (%v), el tope era 1", okCount, results)
	}

	n, err := c.Store.CountByDiscordID(context.Background(), discord)
	if err != nil || n != 1 {
		t.Fatalf("cuentas vinculadas = %d, quería 1", n)
	}
}
