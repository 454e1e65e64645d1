// Package memory implementa el Identity Store en memoria.
// Se usa en dev y en tests; no persiste nada.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/kawaismp/authgate/internal/security/password"
	"github.com/kawaismp/authgate/internal/store/core"
)

type Store struct {
	mu       sync.RWMutex
	accounts map[string]*core.Account // por id
}

var _ core.Repository = (*Store)(nil)

func New() *Store {
	return &Store{accounts: make(map[string]*core.Account)}
}

func clone(a *core.Account) *core.Account {
	cp := *a
	return &cp
}

func (s *Store) FindByUsername(_ context.Context, username string) (*core.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.accounts {
		if strings.EqualFold(a.Username, username) {
			return clone(a), nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) FindByID(_ context.Context, id string) (*core.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if a, ok := s.accounts[id]; ok {
		return clone(a), nil
	}
	return nil, core.ErrNotFound
}

func (s *Store) FindByXboxID(_ context.Context, xuid string) (*core.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.accounts {
		if a.XboxUserID != nil && *a.XboxUserID == xuid {
			return clone(a), nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) FindByDiscordID(_ context.Context, discordID string) (*core.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.accounts {
		if a.DiscordID != nil && *a.DiscordID == discordID {
			return clone(a), nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) CountByDiscordID(_ context.Context, discordID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.accounts {
		if a.DiscordID != nil && *a.DiscordID == discordID {
			n++
		}
	}
	return n, nil
}

func (s *Store) CreateAccount(_ context.Context, username, rawPassword string) (*core.Account, error) {
	hash, err := password.Hash(password.Default, rawPassword)
	if err != nil {
		return nil, core.ErrInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if strings.EqualFold(a.Username, username) {
			return nil, core.ErrConflict
		}
	}
	a := &core.Account{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: &hash,
	}
	s.accounts[a.ID] = a
	return clone(a), nil
}

func (s *Store) LinkXbox(_ context.Context, accountID, xuid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return core.ErrNotFound
	}
	a.XboxUserID = &xuid
	return nil
}

func (s *Store) UnlinkXbox(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return core.ErrNotFound
	}
	a.XboxUserID = nil
	return nil
}

func (s *Store) LinkDiscord(_ context.Context, accountID, discordID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return core.ErrNotFound
	}
	a.DiscordID = &discordID
	return nil
}

func (s *Store) VerifyPassword(raw, phcHash string) bool {
	return password.Verify(raw, phcHash)
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() {}
