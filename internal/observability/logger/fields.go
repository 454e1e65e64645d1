package logger

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// =================================================================================
// CAMPOS ESTÁNDAR - HTTP
// =================================================================================

// RequestID crea un campo para el ID del request.
func RequestID(v string) zap.Field {
	return zap.String("request_id", v)
}

// Method crea un campo para el método HTTP.
func Method(v string) zap.Field {
	return zap.String("method", v)
}

// Path crea un campo para el path del request.
func Path(v string) zap.Field {
	return zap.String("path", v)
}

// Status crea un campo para el status code HTTP.
func Status(v int) zap.Field {
	return zap.Int("status", v)
}

// DurationMs crea un campo para la duración en milisegundos.
func DurationMs(v int64) zap.Field {
	return zap.Int64("duration_ms", v)
}

// ClientIP crea un campo para la IP del cliente.
func ClientIP(v string) zap.Field {
	return zap.String("client_ip", v)
}

// =================================================================================
// CAMPOS ESTÁNDAR - NEGOCIO
// =================================================================================

// ConnID crea un campo para el ID permanente de una conexión.
func ConnID(v uuid.UUID) zap.Field {
	return zap.String("conn_id", v.String())
}

// Fingerprint crea un campo para el fingerprint id pre-auth.
func Fingerprint(v uuid.UUID) zap.Field {
	return zap.String("fingerprint", v.String())
}

// Username crea un campo para el username canónico.
func Username(v string) zap.Field {
	return zap.String("username", v)
}

// AccountID crea un campo para el ID de cuenta.
func AccountID(v string) zap.Field {
	return zap.String("account_id", v)
}

// Backend crea un campo para el nombre de un backend.
func Backend(v string) zap.Field {
	return zap.String("backend", v)
}

// LoginMethod crea un campo para el método de login.
func LoginMethod(v string) zap.Field {
	return zap.String("login_method", v)
}

// =================================================================================
// CAMPOS ESTÁNDAR - SISTEMA
// =================================================================================

// Err crea un campo para un error.
func Err(err error) zap.Field {
	return zap.Error(err)
}

// Count crea un campo para un conteo.
func Count(v int) zap.Field {
	return zap.Int("count", v)
}

// Duration crea un campo para una duración.
func Duration(v time.Duration) zap.Field {
	return zap.Duration("duration", v)
}
