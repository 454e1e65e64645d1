package login

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/kawaismp/authgate/internal/store/core"
)

var (
	ErrLoginRequired        = errors.New("login: authentication required")
	ErrAlreadyAuthenticated = errors.New("login: already authenticated")
	ErrAlreadyLinked        = errors.New("login: account already linked")
	ErrNotLinked            = errors.New("login: account not linked")
)

// authCommands son los comandos permitidos antes de autenticarse (y solo
// antes).
var authCommands = map[string]struct{}{
	"login": {}, "l": {}, "register": {}, "signup": {},
}

// GateCommand decide si una conexión puede ejecutar un comando según su
// fase. Los comandos de autenticación se invierten: sobran una vez
// logueado.
func (m *Manager) GateCommand(connID uuid.UUID, command string) error {
	authed := m.PhaseFor(connID) == PhaseAuthenticated
	if _, isAuth := authCommands[command]; isAuth {
		if authed {
			return ErrAlreadyAuthenticated
		}
		return nil
	}
	if !authed {
		return ErrLoginRequired
	}
	return nil
}

// AllowChat indica si la conexión puede mandar chat saliente.
func (m *Manager) AllowChat(connID uuid.UUID) bool {
	return m.PhaseFor(connID) == PhaseAuthenticated
}

// IssueLinkCode emite (o repite, si ya hay uno vigente) el código de
// vinculación de Discord para la cuenta de la conexión.
func (m *Manager) IssueLinkCode(ctx context.Context, connID uuid.UUID) (string, error) {
	accountID, _, ok := m.AccountFor(connID)
	if !ok {
		return "", ErrLoginRequired
	}

	acct, err := m.d.Store.FindByID(ctx, accountID)
	if err != nil {
		return "", err
	}
	if acct.HasLinkedDiscord() {
		return "", ErrAlreadyLinked
	}

	if code, found := m.d.Codes.Peek(acct.Username); found {
		return code, nil
	}
	return m.d.Codes.Issue(acct.Username)
}

// Unlink desvincula el id externo del bridge de la cuenta autenticada.
// Solo tiene sentido si la cuenta conserva una contraseña para volver a
// entrar.
func (m *Manager) Unlink(ctx context.Context, connID uuid.UUID) error {
	accountID, _, ok := m.AccountFor(connID)
	if !ok {
		return ErrLoginRequired
	}

	acct, err := m.d.Store.FindByID(ctx, accountID)
	if err != nil {
		return err
	}
	if !acct.HasLinkedXbox() {
		return ErrNotLinked
	}
	if !acct.HasPassword() {
		return core.ErrInvalid
	}
	return m.d.Store.UnlinkXbox(ctx, accountID)
}
