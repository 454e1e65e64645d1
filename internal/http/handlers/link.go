// Package handlers implementa los endpoints del API de vinculación.
package handlers

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"net/http"
	"regexp"

	"go.uber.org/zap"

	"github.com/kawaismp/authgate/internal/app"
	"github.com/kawaismp/authgate/internal/http/httpx"
	"github.com/kawaismp/authgate/internal/http/middlewares"
	"github.com/kawaismp/authgate/internal/metrics"
	"github.com/kawaismp/authgate/internal/observability/logger"
	"github.com/kawaismp/authgate/internal/store/core"
)

var (
	codeRe    = regexp.MustCompile(`^\d{6}$`)
	discordRe = regexp.MustCompile(`^\d{17,20}$`)
)

// NewLinkHandler vincula un discord id a la cuenta dueña de un código de
// un solo uso. El código se consume antes de validar la cuenta: un código
// quemado no se puede reintentar aunque el paso siguiente falle.
func NewLinkHandler(c *app.Container) http.HandlerFunc {
	secretSum := sha256.Sum256([]byte(c.Cfg.Server.SecretKey))

	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		secret := q.Get("secret_key")
		code := q.Get("code")
		discordID := q.Get("discord_id")

		gotSum := sha256.Sum256([]byte(secret))
		if subtle.ConstantTimeCompare(gotSum[:], secretSum[:]) != 1 {
			logger.L().Warn("link request with bad secret",
				logger.RequestID(middlewares.RequestIDFrom(r.Context())),
				logger.ClientIP(middlewares.ClientIP(r)))
			metrics.LinkRequests.WithLabelValues("unauthorized").Inc()
			httpx.Fail(w, http.StatusUnauthorized, "invalid secret key")
			return
		}

		if !codeRe.MatchString(code) {
			metrics.LinkRequests.WithLabelValues("bad_request").Inc()
			httpx.Fail(w, http.StatusBadRequest, "invalid code format")
			return
		}
		if !discordRe.MatchString(discordID) {
			metrics.LinkRequests.WithLabelValues("bad_request").Inc()
			httpx.Fail(w, http.StatusBadRequest, "invalid discord id")
			return
		}

		// Enfriamiento por discord id, aparte del rate por IP.
		if _, onCooldown := c.LinkCooldown.Get(discordID); onCooldown {
			metrics.LinkRequests.WithLabelValues("cooldown").Inc()
			httpx.Fail(w, http.StatusTooManyRequests, "try again in a moment")
			return
		}
		c.LinkCooldown.SetDefault(discordID, struct{}{})

		// Serializa el commit por discord id: dos códigos válidos del
		// mismo discord no pueden superar el tope por carrera.
		unlock := c.LinkMu.Lock(discordID)
		defer unlock()

		username, ok := c.Codes.Consume(code)
		if !ok {
			metrics.LinkRequests.WithLabelValues("code_not_found").Inc()
			httpx.Fail(w, http.StatusNotFound, "code not found or expired")
			return
		}

		ctx := r.Context()
		acct, err := c.Store.FindByUsername(ctx, username)
		switch {
		case errors.Is(err, core.ErrNotFound):
			metrics.LinkRequests.WithLabelValues("account_gone").Inc()
			httpx.Fail(w, http.StatusNotFound, "account no longer exists")
			return
		case err != nil:
			logger.L().Error("link lookup failed",
				logger.RequestID(middlewares.RequestIDFrom(ctx)),
				zap.String("username", username), zap.Error(err))
			metrics.LinkRequests.WithLabelValues("error").Inc()
			httpx.Fail(w, http.StatusInternalServerError, "store unavailable")
			return
		}

		if acct.HasLinkedDiscord() {
			metrics.LinkRequests.WithLabelValues("already_linked").Inc()
			httpx.Fail(w, http.StatusConflict, "account already linked")
			return
		}

		if max := c.Cfg.Link.MaxAccountsPerDiscord; max > 0 {
			n, err := c.Store.CountByDiscordID(ctx, discordID)
			if err != nil {
				metrics.LinkRequests.WithLabelValues("error").Inc()
				httpx.Fail(w, http.StatusInternalServerError, "store unavailable")
				return
			}
			if n >= max {
				metrics.LinkRequests.WithLabelValues("limit_reached").Inc()
				httpx.Fail(w, http.StatusConflict, "discord account at link limit")
				return
			}
		}

		if err := c.Store.LinkDiscord(ctx, acct.ID, discordID); err != nil {
			if errors.Is(err, core.ErrConflict) {
				metrics.LinkRequests.WithLabelValues("already_linked").Inc()
				httpx.Fail(w, http.StatusConflict, "account already linked")
				return
			}
			logger.L().Error("link commit failed",
				zap.String("account_id", acct.ID), zap.Error(err))
			metrics.LinkRequests.WithLabelValues("error").Inc()
			httpx.Fail(w, http.StatusInternalServerError, "store unavailable")
			return
		}

		logger.L().Info("discord linked",
			zap.String("account_id", acct.ID),
			zap.String("username", acct.Username))
		metrics.LinkRequests.WithLabelValues("success").Inc()
		httpx.OK(w, "account linked", acct.Username)
	}
}
