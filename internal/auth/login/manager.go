// Package login implementa la máquina de estados de autenticación por
// conexión: orquesta el staging pre-auth, el session cache, el Identity
// Store y las transferencias de backend.
package login

import (
	"context"
	"net/netip"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kawaismp/authgate/internal/auth/linkcode"
	"github.com/kawaismp/authgate/internal/auth/session"
	"github.com/kawaismp/authgate/internal/auth/staging"
	"github.com/kawaismp/authgate/internal/bridge"
	"github.com/kawaismp/authgate/internal/cache/persist"
	"github.com/kawaismp/authgate/internal/gateway"
	"github.com/kawaismp/authgate/internal/metrics"
	"github.com/kawaismp/authgate/internal/store/core"
)

// storeCallTimeout acota las llamadas asíncronas al Identity Store.
const storeCallTimeout = 5 * time.Second

// Phase es el estado de login de una conexión.
type Phase int32

const (
	PhaseUnauthenticated Phase = iota
	PhaseAuthenticating
	PhaseAuthenticated
)

func (p Phase) String() string {
	switch p {
	case PhaseAuthenticating:
		return "authenticating"
	case PhaseAuthenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

type Config struct {
	MaxAttempts      int
	LoginTimeout     time.Duration
	ReminderInterval time.Duration
	TransferDelay    time.Duration
	TransferTimeout  time.Duration

	AuthBackend  string
	LobbyBackend string

	VerifyInitial  time.Duration
	VerifyInterval time.Duration
	VerifyMax      int

	RegistrationMaxPerSource int
}

type Deps struct {
	Store       core.Repository
	Sessions    *session.Cache
	Codes       *linkcode.Registry
	Staging     *staging.Cache
	LastBackend *persist.Cache[string]
	RegSources  *persist.Cache[int]
	Bridge      bridge.Bridge
	Proxy       gateway.Proxy
	Sched       gateway.Scheduler
	Main        *gateway.MainContext
	Log         *zap.Logger
}

// connState es el estado mutable por conexión. Lo protege Manager.mu;
// las secciones críticas son cortas, nunca cruzan una llamada al store.
type connState struct {
	conn     gateway.Conn
	phase    Phase
	attempts int
	// username y accountID canónicos, seteados al autenticar
	username  string
	accountID string

	// tareas agendadas (reminder, timeout, transfer); se cancelan en bloque
	tasks []gateway.Task

	verifyTask  gateway.Task
	verifyCount int
}

type Manager struct {
	cfg Config
	d   Deps
	log *zap.Logger

	// mu protege conns y cada connState; nunca se retiene a través de I/O.
	mu    sync.Mutex
	conns map[uuid.UUID]*connState
}

func NewManager(cfg Config, d Deps) *Manager {
	return &Manager{
		cfg:   cfg,
		d:     d,
		log:   d.Log,
		conns: make(map[uuid.UUID]*connState),
	}
}

// ──────────────────────────────────────────────────────────────────────────
// Fase 1: negociación de perfil (identidad anonimizada)
// ──────────────────────────────────────────────────────────────────────────

// ProfileRequest es lo que el host sabe de la conexión antes de
// autenticarla.
type ProfileRequest struct {
	// AssignedID es el id permanente que el host va a asignar.
	AssignedID      uuid.UUID
	RequestedName   string
	ProtocolVersion int
	Addr            netip.Addr
	Secure          bool
}

// ProfileResult es el perfil temporal anonimizado con el que la conexión
// entra al backend de autenticación.
type ProfileResult struct {
	ID   uuid.UUID
	Name string
}

// NegotiateProfile deriva el fingerprint id del nombre pedido (con sufijo
// numérico si ya hay una conexión usándolo), stagea el registro original
// bajo un display name temporal y, si el session cache valida la
// reconexión, deja lista la decisión de auto-login para la fase 2.
func (m *Manager) NegotiateProfile(req ProfileRequest) ProfileResult {
	name := req.RequestedName
	fp := FingerprintID(name)
	for suffix := 1; ; suffix++ {
		if _, taken := m.d.Staging.ConnByFingerprint(fp); !taken {
			break
		}
		name = req.RequestedName + strconv.Itoa(suffix)
		fp = FingerprintID(name)
	}

	tempName := AnonymousName()
	m.d.Staging.StorePending(tempName, staging.Record{
		FingerprintID:   fp,
		RequestedName:   name,
		ProtocolVersion: req.ProtocolVersion,
		CreatedAt:       time.Now(),
	})

	// Reconexión silenciosa: el token se valida contra el fingerprint
	// completo de la conexión nueva.
	if tok, ok := m.d.Sessions.Validate(fp, req.ProtocolVersion, req.Addr, req.Secure); ok {
		m.d.Staging.StoreDecision(req.AssignedID, staging.Decision{
			Account:       core.Account{ID: tok.AccountID, Username: tok.Username},
			Method:        staging.MethodSession,
			FingerprintID: fp,
		})
		m.log.Debug("session reconnect decision staged",
			zap.String("fingerprint", fp.String()), zap.String("username", tok.Username))
	}

	return ProfileResult{ID: fp, Name: tempName}
}

// ──────────────────────────────────────────────────────────────────────────
// Fase 2: conexión establecida
// ──────────────────────────────────────────────────────────────────────────

// HandleConnect registra la conexión, mueve el staged record a la tabla
// permanente, agenda reminder+timeout y aplica la decisión de auto-login
// si hay una (o dispara el lookup del bridge).
func (m *Manager) HandleConnect(conn gateway.Conn) {
	st := &connState{conn: conn, phase: PhaseUnauthenticated}

	m.mu.Lock()
	m.conns[conn.ID()] = st
	m.mu.Unlock()
	metrics.ActiveConnections.Inc()

	if !m.d.Staging.Transfer(conn.ID(), conn.Username()) {
		m.log.Debug("no pending staged record for connection",
			zap.String("conn_id", conn.ID().String()), zap.String("name", conn.Username()))
	}

	m.scheduleLoginTasks(st)

	if d, ok := m.d.Staging.TakeDecision(conn.ID()); ok {
		m.d.Main.Exec(func() { m.completeLogin(conn, d.Account, d.Method) })
		return
	}

	if m.d.Bridge.IsExternalClient(conn.ID()) {
		if xuid, ok := m.d.Bridge.ExternalIDOf(conn.ID()); ok {
			m.attemptAutoLogin(conn.ID(), xuid)
		}
	}
}

// attemptAutoLogin busca una cuenta vinculada al id externo y entrega la
// decisión en el main context.
func (m *Manager) attemptAutoLogin(connID uuid.UUID, xuid string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), storeCallTimeout)
		defer cancel()

		acct, err := m.d.Store.FindByXboxID(ctx, xuid)
		if err != nil {
			if err != core.ErrNotFound {
				m.log.Error("auto-login lookup failed", zap.String("xuid", xuid), zap.Error(err))
			}
			return
		}
		m.deliverDecision(connID, staging.Decision{
			Account: *acct,
			Method:  staging.MethodBridge,
		})
	}()
}

// deliverDecision aplica la decisión si la conexión ya está viva y sin
// autenticar; si no, la deja staged para consumirse en HandleConnect.
func (m *Manager) deliverDecision(connID uuid.UUID, d staging.Decision) {
	m.d.Main.Exec(func() {
		m.mu.Lock()
		st, ok := m.conns[connID]
		m.mu.Unlock()
		if ok && m.phaseOf(st) == PhaseUnauthenticated {
			m.completeLogin(st.conn, d.Account, d.Method)
			return
		}
		if !ok {
			m.d.Staging.StoreDecision(connID, d)
		}
	})
}

// scheduleLoginTasks agenda el reminder periódico y el timeout de kick.
// Ambas tareas se cancelan en bloque en cualquier transición terminal.
func (m *Manager) scheduleLoginTasks(st *connState) {
	conn := st.conn

	reminder := m.d.Sched.Every(m.cfg.ReminderInterval, func() {
		m.d.Main.Exec(func() {
			if m.PhaseFor(conn.ID()) == PhaseUnauthenticated && conn.Active() {
				conn.SendMessage(MsgLoginReminder)
			}
		})
	})

	timeout := m.d.Sched.After(m.cfg.LoginTimeout, func() {
		m.d.Main.Exec(func() {
			if m.PhaseFor(conn.ID()) != PhaseAuthenticated && conn.Active() {
				m.log.Info("login timeout, disconnecting",
					zap.String("conn_id", conn.ID().String()))
				conn.Disconnect(MsgLoginTimeout)
			}
		})
	})

	m.mu.Lock()
	st.tasks = append(st.tasks, reminder, timeout)
	m.mu.Unlock()
}

// ──────────────────────────────────────────────────────────────────────────
// Desconexión y navegación de backends
// ──────────────────────────────────────────────────────────────────────────

// HandleDisconnect cancela las tareas, y si la conexión estaba autenticada
// commitea el session token con su gracia y graba el hint de backend.
// Idempotente: una segunda llamada no encuentra estado y no hace nada.
func (m *Manager) HandleDisconnect(conn gateway.Conn) {
	connID := conn.ID()

	m.mu.Lock()
	st, ok := m.conns[connID]
	if ok {
		delete(m.conns, connID)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	metrics.ActiveConnections.Dec()
	m.cancelTasks(st)

	if st.phase == PhaseAuthenticated && st.accountID != "" {
		if rec, found := m.d.Staging.Record(connID); found {
			m.d.Sessions.CreateOrRefresh(rec.FingerprintID, st.username, st.accountID,
				conn.ProtocolVersion(), conn.RemoteAddr(), conn.Secure())
			m.d.Sessions.MarkForExpiration(rec.FingerprintID)
		}
		if backend, has := conn.CurrentBackend(); has && !equalFold(backend, m.cfg.AuthBackend) {
			m.d.LastBackend.Put(st.accountID, backend)
		}
		m.log.Info("authenticated connection left",
			zap.String("conn_id", connID.String()), zap.String("username", st.username))
	}

	m.d.Staging.Remove(connID)
}

// HandleBackendSwitch se invoca cuando la conexión cambia de backend.
// Volver al backend de autenticación es logout-por-navegación; cualquier
// otro destino actualiza el hint de último backend.
func (m *Manager) HandleBackendSwitch(conn gateway.Conn, newBackend string) {
	m.mu.Lock()
	st, ok := m.conns[conn.ID()]
	authed := ok && st.phase == PhaseAuthenticated
	accountID := ""
	if ok {
		accountID = st.accountID
	}
	m.mu.Unlock()

	if !authed {
		return
	}

	if equalFold(newBackend, m.cfg.AuthBackend) {
		m.logout(conn, st)
		return
	}
	if accountID != "" {
		m.d.LastBackend.Put(accountID, newBackend)
	}
}

// logout vuelve la conexión a UNAUTHENTICATED: cancela tareas, descarta el
// token de sesión, re-anonimiza el perfil y re-agenda las tareas de login.
func (m *Manager) logout(conn gateway.Conn, st *connState) {
	m.cancelTasks(st)

	m.mu.Lock()
	st.phase = PhaseUnauthenticated
	st.accountID = ""
	st.username = ""
	st.attempts = 0
	m.mu.Unlock()

	if rec, ok := m.d.Staging.Record(conn.ID()); ok {
		m.d.Sessions.Remove(rec.FingerprintID)
		m.d.Main.Exec(func() {
			conn.SetProfile(gateway.Profile{ID: rec.FingerprintID, Name: AnonymousName()})
		})
	}

	m.scheduleLoginTasks(st)
	m.log.Info("logged out by navigation", zap.String("conn_id", conn.ID().String()))
}

// cancelTasks cancela todas las tareas agendadas del estado, incluida la
// de verificación. Seguro de llamar dos veces.
func (m *Manager) cancelTasks(st *connState) {
	m.mu.Lock()
	tasks := st.tasks
	st.tasks = nil
	vt := st.verifyTask
	st.verifyTask = nil
	m.mu.Unlock()

	for _, t := range tasks {
		t.Cancel()
	}
	if vt != nil {
		vt.Cancel()
	}
}

// ──────────────────────────────────────────────────────────────────────────
// Consultas
// ──────────────────────────────────────────────────────────────────────────

// PhaseFor devuelve la fase de una conexión (Unauthenticated si no existe).
func (m *Manager) PhaseFor(connID uuid.UUID) Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.conns[connID]; ok {
		return st.phase
	}
	return PhaseUnauthenticated
}

// AccountFor devuelve (accountID, username) de una conexión autenticada.
func (m *Manager) AccountFor(connID uuid.UUID) (accountID, username string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, found := m.conns[connID]
	if !found || st.phase != PhaseAuthenticated {
		return "", "", false
	}
	return st.accountID, st.username, true
}

func (m *Manager) phaseOf(st *connState) Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return st.phase
}

// Close cancela las tareas de todas las conexiones vivas.
func (m *Manager) Close() {
	m.mu.Lock()
	states := make([]*connState, 0, len(m.conns))
	for _, st := range m.conns {
		states = append(states, st)
	}
	m.conns = make(map[uuid.UUID]*connState)
	m.mu.Unlock()

	for _, st := range states {
		m.cancelTasks(st)
	}
}
