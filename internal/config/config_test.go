package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  secret_key: s3cret
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.App.Env != "dev" || cfg.Server.Addr != ":8586" || cfg.Storage.Driver != "memory" {
		t.Fatalf("defaults básicos: %+v", cfg)
	}
	if cfg.Login.MaxAttempts != 5 || cfg.Link.MaxAccountsPerDiscord != 3 {
		t.Fatalf("defaults de login/link: %+v", cfg)
	}
	if cfg.LoginTimeout() != 180*time.Second || cfg.ReminderInterval() != 4*time.Second {
		t.Fatalf("duraciones de login: %v / %v", cfg.LoginTimeout(), cfg.ReminderInterval())
	}
	if cfg.SessionGrace() != 10*time.Minute || cfg.LinkCodeTTL() != 10*time.Minute {
		t.Fatalf("duraciones de session/link: %v / %v", cfg.SessionGrace(), cfg.LinkCodeTTL())
	}
	if cfg.RegistrationWindow() != 7*24*time.Hour {
		t.Fatalf("ventana de registro: %v", cfg.RegistrationWindow())
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  secret_key: s3cret
login:
  timeout: 90s
  reminder_interval: 2s
session:
  grace: 5m
link:
  code_ttl_minutes: 3
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LoginTimeout() != 90*time.Second || cfg.ReminderInterval() != 2*time.Second {
		t.Fatalf("overrides de login: %v / %v", cfg.LoginTimeout(), cfg.ReminderInterval())
	}
	if cfg.SessionGrace() != 5*time.Minute || cfg.LinkCodeTTL() != 3*time.Minute {
		t.Fatalf("overrides de session/link: %v / %v", cfg.SessionGrace(), cfg.LinkCodeTTL())
	}
}

func TestLoadRequiresSecret(t *testing.T) {
	path := writeConfig(t, `
app:
  env: prod
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("sin secret_key debía fallar")
	}
}

func TestSecretFromEnv(t *testing.T) {
	t.Setenv("AUTHGATE_SECRET_KEY", "desde-env")
	path := writeConfig(t, `
app:
  env: prod
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.SecretKey != "desde-env" {
		t.Fatalf("secret = %q", cfg.Server.SecretKey)
	}
}

func TestPostgresRequiresDSN(t *testing.T) {
	path := writeConfig(t, `
server:
  secret_key: s3cret
storage:
  driver: postgres
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("postgres sin dsn debía fallar")
	}
}

func TestDurFallsBackOnGarbage(t *testing.T) {
	if d := Dur("no-es-duración", time.Minute); d != time.Minute {
		t.Fatalf("Dur = %v", d)
	}
	if d := Dur("-5s", time.Minute); d != time.Minute {
		t.Fatalf("duración negativa debía caer al default, Dur = %v", d)
	}
	if d := Dur("45m", time.Minute); d != 45*time.Minute {
		t.Fatalf("Dur = %v", d)
	}
}
