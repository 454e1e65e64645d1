// authgate es el motor de identidad y sesiones del gateway: expone el API
// de vinculación de Discord y los servicios que consume el host (login,
// session cache, staging).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	gocache "github.com/patrickmn/go-cache"
	rdb "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kawaismp/authgate/internal/app"
	"github.com/kawaismp/authgate/internal/auth/linkcode"
	"github.com/kawaismp/authgate/internal/auth/login"
	"github.com/kawaismp/authgate/internal/auth/session"
	"github.com/kawaismp/authgate/internal/auth/staging"
	"github.com/kawaismp/authgate/internal/bridge"
	"github.com/kawaismp/authgate/internal/cache/persist"
	"github.com/kawaismp/authgate/internal/config"
	httpapi "github.com/kawaismp/authgate/internal/http"
	"github.com/kawaismp/authgate/internal/gateway"
	"github.com/kawaismp/authgate/internal/metrics"
	"github.com/kawaismp/authgate/internal/observability/logger"
	"github.com/kawaismp/authgate/internal/rate"
	"github.com/kawaismp/authgate/internal/store/core"
	"github.com/kawaismp/authgate/internal/store/memory"
	"github.com/kawaismp/authgate/internal/store/pg"
	"github.com/kawaismp/authgate/internal/util/kmutex"
)

const (
	lastBackendFile = "last_backend.json"
	regSourcesFile  = "registration_sources.json"

	lastBackendTTL = 45 * time.Minute
	cacheSweep     = time.Minute

	mainCtxBuffer   = 1024
	shutdownTimeout = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "authgate:", err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := flag.String("config", "config.yaml", "ruta del config YAML")
	flag.Parse()

	// .env es opcional; en producción las vars vienen del entorno real.
	_ = godotenv.Load()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}

	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level, ServiceName: "authgate"})
	defer func() { _ = logger.Sync() }()
	log := logger.L()

	if err := metrics.Register(nil); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	lastBackend := persist.New[string](
		filepath.Join(cfg.DataDir, lastBackendFile), lastBackendTTL, cacheSweep, logger.Named("last_backend"))
	regSources := persist.New[int](
		filepath.Join(cfg.DataDir, regSourcesFile), cfg.RegistrationWindow(), cacheSweep, logger.Named("reg_sources"))

	sessions := session.NewCache(cfg.SessionGrace(), cfg.SessionSweep(), logger.Named("session"))
	codes := linkcode.NewRegistry(cfg.LinkCodeTTL(), cacheSweep, logger.Named("linkcode"))
	stage := staging.NewCache(cfg.LoginTimeout(), cacheSweep, logger.Named("staging"))

	mainCtx := gateway.NewMainContext(mainCtxBuffer, logger.Named("mainctx"))

	limiter, err := buildLimiter(ctx, cfg)
	if err != nil {
		return err
	}

	mgr := login.NewManager(login.Config{
		MaxAttempts:              cfg.Login.MaxAttempts,
		LoginTimeout:             cfg.LoginTimeout(),
		ReminderInterval:         cfg.ReminderInterval(),
		TransferDelay:            cfg.TransferDelay(),
		TransferTimeout:          cfg.TransferTimeout(),
		AuthBackend:              cfg.Backends.Auth,
		LobbyBackend:             cfg.Backends.Lobby,
		VerifyInitial:            cfg.VerifyInitial(),
		VerifyInterval:           cfg.VerifyInterval(),
		VerifyMax:                cfg.Link.VerifyReminder.Max,
		RegistrationMaxPerSource: cfg.Registration.MaxPerSource,
	}, login.Deps{
		Store:       store,
		Sessions:    sessions,
		Codes:       codes,
		Staging:     stage,
		LastBackend: lastBackend,
		RegSources:  regSources,
		Bridge:      bridge.Disabled,
		Proxy:       gateway.NewStaticProxy(cfg.Backends.Auth, cfg.Backends.Lobby),
		Sched:       gateway.TimerScheduler{},
		Main:        mainCtx,
		Log:         logger.Named("login"),
	})

	c := &app.Container{
		Cfg:          cfg,
		Store:        store,
		Sessions:     sessions,
		Codes:        codes,
		Staging:      stage,
		Login:        mgr,
		LastBackend:  lastBackend,
		RegSources:   regSources,
		Limiter:      limiter,
		LinkCooldown: gocache.New(cfg.DiscordCooldown(), 5*time.Minute),
		LinkMu:       kmutex.New(),
	}

	srv := httpapi.NewServer(cfg.Server.Addr, httpapi.NewRouter(c))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		mainCtx.Run(gctx)
		return nil
	})

	g.Go(func() error {
		log.Info("link api listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		if err := httpapi.Shutdown(srv, shutdownTimeout); err != nil {
			log.Warn("http shutdown", zap.Error(err))
		}

		mgr.Close()
		sessions.Close()
		codes.Close()
		stage.Close()
		lastBackend.Close()
		regSources.Close()
		return nil
	})

	return g.Wait()
}

func buildStore(ctx context.Context, cfg *config.Config) (core.Repository, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		return pg.New(ctx, cfg.Storage.DSN, pg.Options{MaxConns: cfg.Storage.Postgres.MaxConns})
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("storage driver desconocido: %q", cfg.Storage.Driver)
	}
}

func buildLimiter(ctx context.Context, cfg *config.Config) (rate.Limiter, error) {
	switch cfg.Rate.Kind {
	case "redis":
		client := rdb.NewClient(&rdb.Options{Addr: cfg.Rate.Redis.Addr, DB: cfg.Rate.Redis.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		return rate.NewRedisLimiter(client, cfg.Rate.Redis.Prefix, cfg.Rate.Link.Limit, cfg.LinkRateWindow()), nil
	case "memory":
		return rate.NewMemoryLimiter(cfg.Rate.Link.Limit, cfg.LinkRateWindow()), nil
	default:
		return nil, fmt.Errorf("rate kind desconocido: %q", cfg.Rate.Kind)
	}
}
