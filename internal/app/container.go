// Package app arma el grafo de dependencias que comparten los handlers
// HTTP y los comandos.
package app

import (
	gocache "github.com/patrickmn/go-cache"

	"github.com/kawaismp/authgate/internal/auth/linkcode"
	"github.com/kawaismp/authgate/internal/auth/login"
	"github.com/kawaismp/authgate/internal/auth/session"
	"github.com/kawaismp/authgate/internal/auth/staging"
	"github.com/kawaismp/authgate/internal/cache/persist"
	"github.com/kawaismp/authgate/internal/config"
	"github.com/kawaismp/authgate/internal/rate"
	"github.com/kawaismp/authgate/internal/store/core"
	"github.com/kawaismp/authgate/internal/util/kmutex"
)

// Container agrupa los servicios ya construidos. Se arma una vez en main
// y se pasa por referencia; ningún campo se reasigna después del boot.
type Container struct {
	Cfg *config.Config

	Store    core.Repository
	Sessions *session.Cache
	Codes    *linkcode.Registry
	Staging  *staging.Cache
	Login    *login.Manager

	LastBackend *persist.Cache[string]
	RegSources  *persist.Cache[int]

	// Limiter corta por IP en el endpoint de link; LinkCooldown enfría
	// por discord id; LinkMu serializa el commit de cada discord id.
	Limiter      rate.Limiter
	LinkCooldown *gocache.Cache
	LinkMu       *kmutex.KeyedMutex
}
