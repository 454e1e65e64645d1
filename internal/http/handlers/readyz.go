package handlers

import (
	"net/http"

	"github.com/kawaismp/authgate/internal/app"
	"github.com/kawaismp/authgate/internal/http/httpx"
)

// NewReadyzHandler responde 200 solo si el Identity Store contesta el ping.
func NewReadyzHandler(c *app.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := c.Store.Ping(r.Context()); err != nil {
			httpx.Fail(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
