// Package httpx concentra la escritura de respuestas JSON para que todos
// los handlers devuelvan el mismo sobre.
package httpx

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/kawaismp/authgate/internal/observability/logger"
)

// Envelope es la respuesta uniforme del API de vinculación.
type Envelope struct {
	Success           bool   `json:"success"`
	Message           string `json:"message"`
	MinecraftUsername string `json:"minecraft_username,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.L().Warn("response encode failed", zap.Error(err))
	}
}

// OK responde 200 con el username vinculado.
func OK(w http.ResponseWriter, message, username string) {
	WriteJSON(w, http.StatusOK, Envelope{Success: true, Message: message, MinecraftUsername: username})
}

// Fail responde el status dado con success=false.
func Fail(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, Envelope{Success: false, Message: message})
}
