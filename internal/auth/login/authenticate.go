package login

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kawaismp/authgate/internal/auth/staging"
	"github.com/kawaismp/authgate/internal/gateway"
	"github.com/kawaismp/authgate/internal/metrics"
	"github.com/kawaismp/authgate/internal/store/core"
)

// AttemptLogin verifica credenciales contra el Identity Store. El conteo
// de intentos sube en cada llamada que pasa los gates, acierte o no; al
// agotar el máximo la conexión se desconecta. La verificación corre fuera
// del main context y el resultado vuelve a él por Exec.
func (m *Manager) AttemptLogin(conn gateway.Conn, username, rawPassword string) {
	m.mu.Lock()
	st, ok := m.conns[conn.ID()]
	if !ok {
		m.mu.Unlock()
		return
	}
	switch st.phase {
	case PhaseAuthenticated:
		m.mu.Unlock()
		conn.SendMessage(MsgAlreadyLoggedIn)
		return
	case PhaseAuthenticating:
		m.mu.Unlock()
		return
	}
	if m.cfg.MaxAttempts >= 1 && st.attempts >= m.cfg.MaxAttempts {
		m.mu.Unlock()
		conn.Disconnect(MsgTooManyAttempts)
		return
	}
	st.attempts++
	st.phase = PhaseAuthenticating
	m.mu.Unlock()

	conn.SendMessage(MsgLoggingIn)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), storeCallTimeout)
		defer cancel()

		acct, err := m.d.Store.FindByUsername(ctx, username)
		switch {
		case errors.Is(err, core.ErrNotFound):
			m.failLogin(conn, MsgInvalidCredentials)
			return
		case err != nil:
			m.log.Error("login lookup failed", zap.String("username", username), zap.Error(err))
			m.failLogin(conn, MsgTryAgainLater)
			return
		}

		if !acct.HasPassword() || !m.d.Store.VerifyPassword(rawPassword, *acct.PasswordHash) {
			m.failLogin(conn, MsgInvalidCredentials)
			return
		}

		// Cliente externo que entra por contraseña: auto-vincular el id
		// externo si la cuenta todavía no tiene uno.
		if !acct.HasLinkedXbox() {
			if xuid, ext := m.d.Bridge.ExternalIDOf(conn.ID()); ext {
				if err := m.d.Store.LinkXbox(ctx, acct.ID, xuid); err != nil && !errors.Is(err, core.ErrConflict) {
					m.log.Warn("xbox auto-link failed",
						zap.String("account_id", acct.ID), zap.Error(err))
				}
			}
		}

		m.d.Main.Exec(func() { m.completeLogin(conn, *acct, staging.MethodPassword) })
	}()
}

// failLogin vuelve la conexión a UNAUTHENTICATED y avisa al cliente.
func (m *Manager) failLogin(conn gateway.Conn, msg string) {
	metrics.LoginAttempts.WithLabelValues("failure").Inc()
	m.d.Main.Exec(func() {
		m.mu.Lock()
		if st, ok := m.conns[conn.ID()]; ok && st.phase == PhaseAuthenticating {
			st.phase = PhaseUnauthenticated
		}
		m.mu.Unlock()
		if conn.Active() {
			conn.SendMessage(msg)
		}
	})
}

// Register crea una cuenta nueva y la loguea en el acto. Aplica el
// throttle persistente por origen antes de tocar el store.
func (m *Manager) Register(conn gateway.Conn, username, rawPassword, confirm string) {
	m.mu.Lock()
	st, ok := m.conns[conn.ID()]
	if !ok {
		m.mu.Unlock()
		return
	}
	if phase := st.phase; phase != PhaseUnauthenticated {
		m.mu.Unlock()
		if phase == PhaseAuthenticated {
			conn.SendMessage(MsgAlreadyLoggedIn)
		}
		return
	}
	m.mu.Unlock()

	if !ValidUsername(username) {
		conn.SendMessage(MsgInvalidUsername)
		return
	}
	if len(rawPassword) < MinPasswordLen || len(rawPassword) > MaxPasswordLen {
		conn.SendMessage(MsgInvalidPassword)
		return
	}
	if rawPassword != confirm {
		conn.SendMessage(MsgPasswordMismatch)
		return
	}

	source := conn.RemoteAddr().String()
	if n, found := m.d.RegSources.Get(source); found && n >= m.cfg.RegistrationMaxPerSource {
		conn.SendMessage(MsgRegistrationLimit)
		return
	}

	m.mu.Lock()
	if st.phase != PhaseUnauthenticated {
		m.mu.Unlock()
		return
	}
	st.phase = PhaseAuthenticating
	m.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), storeCallTimeout)
		defer cancel()

		acct, err := m.d.Store.CreateAccount(ctx, username, rawPassword)
		switch {
		case errors.Is(err, core.ErrConflict):
			m.failLogin(conn, MsgUsernameTaken)
			return
		case err != nil:
			m.log.Error("account creation failed", zap.String("username", username), zap.Error(err))
			m.failLogin(conn, MsgTryAgainLater)
			return
		}

		m.d.RegSources.Mutate(source, func(cur int, _ bool) (int, bool) {
			return cur + 1, true
		})

		if xuid, ext := m.d.Bridge.ExternalIDOf(conn.ID()); ext {
			if err := m.d.Store.LinkXbox(ctx, acct.ID, xuid); err != nil && !errors.Is(err, core.ErrConflict) {
				m.log.Warn("xbox auto-link failed",
					zap.String("account_id", acct.ID), zap.Error(err))
			}
		}

		m.log.Info("account registered",
			zap.String("username", username), zap.String("account_id", acct.ID))
		m.d.Main.Exec(func() { m.completeLogin(conn, *acct, staging.MethodPassword) })
	}()
}

// completeLogin es la única transición a AUTHENTICATED. Corre en el main
// context e ignora llamadas sobre conexiones ya autenticadas o idas, así
// que una decisión duplicada no hace daño.
func (m *Manager) completeLogin(conn gateway.Conn, acct core.Account, method staging.Method) {
	m.mu.Lock()
	st, ok := m.conns[conn.ID()]
	if !ok || st.phase == PhaseAuthenticated {
		m.mu.Unlock()
		return
	}
	tasks := st.tasks
	st.tasks = nil
	st.phase = PhaseAuthenticated
	st.accountID = acct.ID
	st.username = acct.Username
	st.attempts = 0
	m.mu.Unlock()

	for _, t := range tasks {
		t.Cancel()
	}

	conn.SetProfile(gateway.Profile{ID: CanonicalID(acct), Name: acct.Username})
	conn.SendMessage(fmt.Sprintf(MsgWelcomeFmt, acct.Username))

	metrics.LoginAttempts.WithLabelValues("success").Inc()
	metrics.LoginsByMethod.WithLabelValues(string(method)).Inc()
	if method == staging.MethodSession {
		metrics.SessionsRestored.Inc()
	}

	// El token queda "vivo" mientras la conexión siga abierta; la gracia
	// arranca recién al desconectar.
	if rec, found := m.d.Staging.Record(conn.ID()); found {
		m.d.Sessions.CreateOrRefresh(rec.FingerprintID, acct.Username, acct.ID,
			conn.ProtocolVersion(), conn.RemoteAddr(), conn.Secure())
	}

	if !acct.HasLinkedDiscord() {
		m.scheduleVerifyReminder(st, conn)
	}

	m.log.Info("login completed",
		zap.String("conn_id", conn.ID().String()),
		zap.String("username", acct.Username),
		zap.String("method", string(method)))

	transfer := m.d.Sched.After(m.cfg.TransferDelay, func() {
		m.transferOut(conn, acct.ID)
	})
	m.mu.Lock()
	if cur, still := m.conns[conn.ID()]; still && cur == st && st.phase == PhaseAuthenticated {
		st.tasks = append(st.tasks, transfer)
	} else {
		m.mu.Unlock()
		transfer.Cancel()
		return
	}
	m.mu.Unlock()
}

// scheduleVerifyReminder agenda los avisos de vinculación de Discord: uno
// inicial y luego periódicos hasta VerifyMax, cortando apenas el store
// reporta la cuenta vinculada.
func (m *Manager) scheduleVerifyReminder(st *connState, conn gateway.Conn) {
	fire := func() {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), storeCallTimeout)
			defer cancel()

			m.mu.Lock()
			accountID := st.accountID
			m.mu.Unlock()
			if accountID == "" {
				return
			}

			acct, err := m.d.Store.FindByID(ctx, accountID)
			linked := err == nil && acct.HasLinkedDiscord()

			m.d.Main.Exec(func() {
				m.mu.Lock()
				done := linked || st.phase != PhaseAuthenticated || st.verifyCount >= m.cfg.VerifyMax
				if !done {
					st.verifyCount++
				}
				vt := st.verifyTask
				if done {
					st.verifyTask = nil
				}
				m.mu.Unlock()

				if done {
					if vt != nil {
						vt.Cancel()
					}
					return
				}
				if conn.Active() {
					conn.SendMessage(MsgVerifyReminder)
				}
			})
		}()
	}

	initial := m.d.Sched.After(m.cfg.VerifyInitial, func() {
		fire()
		periodic := m.d.Sched.Every(m.cfg.VerifyInterval, fire)
		m.mu.Lock()
		if st.phase == PhaseAuthenticated {
			st.verifyTask = periodic
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()
		periodic.Cancel()
	})

	m.mu.Lock()
	st.verifyTask = initial
	m.mu.Unlock()
}

// transferOut saca la conexión del backend de autenticación: al último
// backend conocido si sigue registrado, si no al lobby. El hint se
// descarta al usarse o al resultar inválido.
func (m *Manager) transferOut(conn gateway.Conn, accountID string) {
	m.d.Main.Exec(func() {
		if !conn.Active() {
			return
		}

		target := m.cfg.LobbyBackend
		usedHint := false
		if hint, ok := m.d.LastBackend.Get(accountID); ok && hint != "" &&
			!equalFold(hint, m.cfg.AuthBackend) && !equalFold(hint, m.cfg.LobbyBackend) {
			if cur, has := conn.CurrentBackend(); has && equalFold(cur, hint) {
				m.d.LastBackend.Remove(accountID)
				return
			}
			if m.d.Proxy.HasBackend(hint) {
				target = hint
				usedHint = true
			} else {
				m.d.LastBackend.Remove(accountID)
			}
		}

		go m.connect(conn, accountID, target, usedHint)
	})
}

// connect bloquea hasta TransferTimeout; si el destino era un hint y
// falla, cae al lobby.
func (m *Manager) connect(conn gateway.Conn, accountID, target string, usedHint bool) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.TransferTimeout)
	defer cancel()

	if err := conn.Connect(ctx, target); err != nil {
		m.log.Warn("backend transfer failed",
			zap.String("conn_id", conn.ID().String()),
			zap.String("backend", target), zap.Error(err))
		if usedHint {
			m.d.LastBackend.Remove(accountID)
			ctx2, cancel2 := context.WithTimeout(context.Background(), m.cfg.TransferTimeout)
			defer cancel2()
			if err := conn.Connect(ctx2, m.cfg.LobbyBackend); err != nil {
				m.log.Error("lobby fallback failed",
					zap.String("conn_id", conn.ID().String()), zap.Error(err))
			}
		}
		return
	}
	if usedHint {
		m.d.LastBackend.Remove(accountID)
	}
}
