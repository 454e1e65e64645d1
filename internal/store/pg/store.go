// Package pg implementa el Identity Store sobre Postgres (pgx).
// El esquema es la tabla accounts del backend:
//
//	accounts(id uuid PK, username text UNIQUE, password_hash text,
//	         xbox_user_id text, discord_id text)
package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kawaismp/authgate/internal/security/password"
	"github.com/kawaismp/authgate/internal/store/core"
)

const (
	qGetByUsername  = `SELECT id, username, password_hash, xbox_user_id, discord_id FROM accounts WHERE LOWER(username) = LOWER($1)`
	qGetByID        = `SELECT id, username, password_hash, xbox_user_id, discord_id FROM accounts WHERE id = $1`
	qGetByXuid      = `SELECT id, username, password_hash, xbox_user_id, discord_id FROM accounts WHERE xbox_user_id = $1`
	qGetByDiscord   = `SELECT id, username, password_hash, xbox_user_id, discord_id FROM accounts WHERE discord_id = $1`
	qCountByDiscord = `SELECT COUNT(*) FROM accounts WHERE discord_id = $1`
	qLinkXbox       = `UPDATE accounts SET xbox_user_id = $1 WHERE id = $2`
	qUnlinkXbox     = `UPDATE accounts SET xbox_user_id = NULL WHERE id = $1`
	qLinkDiscord    = `UPDATE accounts SET discord_id = $1 WHERE id = $2`
	qCreate         = `INSERT INTO accounts (id, username, password_hash) VALUES ($1, $2, $3) RETURNING id, username, password_hash, xbox_user_id, discord_id`
)

type Store struct{ pool *pgxpool.Pool }

var _ core.Repository = (*Store)(nil)

type Options struct {
	MaxConns int
}

func New(ctx context.Context, dsn string, opts Options) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: parse dsn: %w", err)
	}
	if opts.MaxConns > 0 {
		pcfg.MaxConns = int32(opts.MaxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pg: pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close cierra el pool subyacente (idempotente).
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return core.ErrUnavailable
	}
	return nil
}

func (s *Store) scanOne(ctx context.Context, query string, arg any) (*core.Account, error) {
	var a core.Account
	err := s.pool.QueryRow(ctx, query, arg).
		Scan(&a.ID, &a.Username, &a.PasswordHash, &a.XboxUserID, &a.DiscordID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", core.ErrUnavailable, err)
	}
	return &a, nil
}

func (s *Store) FindByUsername(ctx context.Context, username string) (*core.Account, error) {
	return s.scanOne(ctx, qGetByUsername, username)
}

func (s *Store) FindByID(ctx context.Context, id string) (*core.Account, error) {
	return s.scanOne(ctx, qGetByID, id)
}

func (s *Store) FindByXboxID(ctx context.Context, xuid string) (*core.Account, error) {
	return s.scanOne(ctx, qGetByXuid, xuid)
}

func (s *Store) FindByDiscordID(ctx context.Context, discordID string) (*core.Account, error) {
	return s.scanOne(ctx, qGetByDiscord, discordID)
}

func (s *Store) CountByDiscordID(ctx context.Context, discordID string) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, qCountByDiscord, discordID).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: %v", core.ErrUnavailable, err)
	}
	return n, nil
}

func (s *Store) CreateAccount(ctx context.Context, username, rawPassword string) (*core.Account, error) {
	hash, err := password.Hash(password.Default, rawPassword)
	if err != nil {
		return nil, fmt.Errorf("%w: hash: %v", core.ErrInvalid, err)
	}
	var a core.Account
	err = s.pool.QueryRow(ctx, qCreate, uuid.NewString(), username, hash).
		Scan(&a.ID, &a.Username, &a.PasswordHash, &a.XboxUserID, &a.DiscordID)
	if err != nil {
		// unique_violation sobre username
		if isUniqueViolation(err) {
			return nil, core.ErrConflict
		}
		return nil, fmt.Errorf("%w: %v", core.ErrUnavailable, err)
	}
	return &a, nil
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) LinkXbox(ctx context.Context, accountID, xuid string) error {
	return s.exec(ctx, qLinkXbox, xuid, accountID)
}

func (s *Store) UnlinkXbox(ctx context.Context, accountID string) error {
	return s.exec(ctx, qUnlinkXbox, accountID)
}

func (s *Store) LinkDiscord(ctx context.Context, accountID, discordID string) error {
	return s.exec(ctx, qLinkDiscord, discordID, accountID)
}

func (s *Store) VerifyPassword(raw, phcHash string) bool {
	return password.Verify(raw, phcHash)
}

func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	return errors.As(err, &pgErr) && pgErr.SQLState() == "23505"
}
