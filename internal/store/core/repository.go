// Package core define el modelo de cuentas y el contrato del Identity Store.
// Los adapters viven en store/pg (producción) y store/memory (dev/tests).
package core

import "context"

// Repository es el Identity Store. Todas las operaciones pueden fallar con
// ErrUnavailable; los lookups devuelven ErrNotFound cuando no hay cuenta.
// Las llamadas son bloqueantes: los callers que no pueden bloquear las
// ejecutan en una goroutine y vuelven al main context con el resultado.
type Repository interface {
	FindByUsername(ctx context.Context, username string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
	FindByXboxID(ctx context.Context, xuid string) (*Account, error)
	FindByDiscordID(ctx context.Context, discordID string) (*Account, error)
	CountByDiscordID(ctx context.Context, discordID string) (int, error)

	// CreateAccount hashea rawPassword y persiste la cuenta nueva.
	// ErrConflict si el username ya existe (case-insensitive).
	CreateAccount(ctx context.Context, username, rawPassword string) (*Account, error)

	LinkXbox(ctx context.Context, accountID, xuid string) error
	UnlinkXbox(ctx context.Context, accountID string) error
	LinkDiscord(ctx context.Context, accountID, discordID string) error

	// VerifyPassword compara en tiempo constante. Nunca toca la red.
	VerifyPassword(raw, phcHash string) bool

	Ping(ctx context.Context) error
	Close()
}
