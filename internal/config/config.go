package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Server struct {
		Addr               string   `yaml:"addr"`
		SecretKey          string   `yaml:"secret_key"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	} `yaml:"server"`

	Storage struct {
		// memory | postgres
		Driver   string `yaml:"driver"`
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxConns int `yaml:"max_conns"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Backends struct {
		Auth  string `yaml:"auth"`
		Lobby string `yaml:"lobby"`
	} `yaml:"backends"`

	Login struct {
		MaxAttempts      int    `yaml:"max_attempts"`
		Timeout          string `yaml:"timeout"`
		ReminderInterval string `yaml:"reminder_interval"`
		TransferDelay    string `yaml:"transfer_delay"`
		TransferTimeout  string `yaml:"transfer_timeout"`
	} `yaml:"login"`

	Session struct {
		Grace         string `yaml:"grace"`
		SweepInterval string `yaml:"sweep_interval"`
	} `yaml:"session"`

	Link struct {
		CodeTTLMinutes        int `yaml:"code_ttl_minutes"`
		MaxAccountsPerDiscord int `yaml:"max_accounts_per_discord"`
		VerifyReminder        struct {
			Initial  string `yaml:"initial"`
			Interval string `yaml:"interval"`
			Max      int    `yaml:"max"`
		} `yaml:"verify_reminder"`
	} `yaml:"link"`

	Rate struct {
		// memory | redis
		Kind  string `yaml:"kind"`
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
		Link struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"link"`
		DiscordCooldown string `yaml:"discord_cooldown"`
	} `yaml:"rate"`

	Registration struct {
		MaxPerSource int    `yaml:"max_per_source"`
		Window       string `yaml:"window"`
	} `yaml:"registration"`

	DataDir string `yaml:"data_dir"`
}

// Load lee el YAML, aplica defaults y overrides de entorno.
// AUTHGATE_SECRET_KEY pisa server.secret_key para no dejar el secreto en disco.
func Load(path string) (*Config, error) {
	var cfg Config

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyDefaults()

	if v := os.Getenv("AUTHGATE_SECRET_KEY"); v != "" {
		cfg.Server.SecretKey = v
	}
	if v := os.Getenv("AUTHGATE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8586"
	}
	if len(c.Server.CORSAllowedOrigins) == 0 {
		c.Server.CORSAllowedOrigins = []string{"*"}
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Storage.Postgres.MaxConns <= 0 {
		c.Storage.Postgres.MaxConns = 10
	}
	if c.Backends.Auth == "" {
		c.Backends.Auth = "auth"
	}
	if c.Backends.Lobby == "" {
		c.Backends.Lobby = "hub"
	}
	if c.Login.MaxAttempts <= 0 {
		c.Login.MaxAttempts = 5
	}
	if c.Link.CodeTTLMinutes <= 0 {
		c.Link.CodeTTLMinutes = 10
	}
	if c.Link.MaxAccountsPerDiscord <= 0 {
		c.Link.MaxAccountsPerDiscord = 3
	}
	if c.Link.VerifyReminder.Max <= 0 {
		c.Link.VerifyReminder.Max = 2
	}
	if c.Rate.Kind == "" {
		c.Rate.Kind = "memory"
	}
	if c.Rate.Redis.Prefix == "" {
		c.Rate.Redis.Prefix = "authgate:rl:"
	}
	if c.Rate.Link.Limit <= 0 {
		c.Rate.Link.Limit = 10
	}
	if c.Registration.MaxPerSource <= 0 {
		c.Registration.MaxPerSource = 1
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
}

func (c *Config) validate() error {
	if c.Server.SecretKey == "" {
		return fmt.Errorf("config: server.secret_key (o AUTHGATE_SECRET_KEY) es obligatorio")
	}
	if c.Storage.Driver == "postgres" && c.Storage.DSN == "" {
		return fmt.Errorf("config: storage.dsn es obligatorio con driver postgres")
	}
	return nil
}

// Dur parsea una duración en formato string ("10m", "4s") con fallback.
// Las duraciones viven como strings en el YAML igual que en el resto del stack.
func Dur(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// Getters con los defaults del diseño. Los componentes reciben los valores
// ya resueltos en el wiring de main, nunca leen el YAML directamente.

func (c *Config) LoginTimeout() time.Duration      { return Dur(c.Login.Timeout, 180*time.Second) }
func (c *Config) ReminderInterval() time.Duration  { return Dur(c.Login.ReminderInterval, 4*time.Second) }
func (c *Config) TransferDelay() time.Duration     { return Dur(c.Login.TransferDelay, 500*time.Millisecond) }
func (c *Config) TransferTimeout() time.Duration   { return Dur(c.Login.TransferTimeout, 3*time.Second) }
func (c *Config) SessionGrace() time.Duration      { return Dur(c.Session.Grace, 10*time.Minute) }
func (c *Config) SessionSweep() time.Duration      { return Dur(c.Session.SweepInterval, time.Minute) }
func (c *Config) LinkCodeTTL() time.Duration       { return time.Duration(c.Link.CodeTTLMinutes) * time.Minute }
func (c *Config) VerifyInitial() time.Duration     { return Dur(c.Link.VerifyReminder.Initial, 5*time.Second) }
func (c *Config) VerifyInterval() time.Duration    { return Dur(c.Link.VerifyReminder.Interval, 30*time.Second) }
func (c *Config) LinkRateWindow() time.Duration    { return Dur(c.Rate.Link.Window, time.Minute) }
func (c *Config) DiscordCooldown() time.Duration   { return Dur(c.Rate.DiscordCooldown, time.Minute) }
func (c *Config) RegistrationWindow() time.Duration {
	return Dur(c.Registration.Window, 7*24*time.Hour)
}
