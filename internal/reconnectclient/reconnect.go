// Package reconnectclient implements the Client Reconnection Manager
// (component H): the client-side mirror of the server's recovery
// protocol. It owns a WebSocket transport, a reconnect/backoff schedule,
// and an observable connection-state machine, persisting just enough
// through a pluggable Storage so a page reload can resume a session.
// Adapted from the teacher's Client (server-side read/write pumps):
// the pump shape is kept, but ownership inverts — this dials out instead
// of accepting an upgrade, and adds the retry/backoff and persistence
// concerns the server-side Client never needed.
package reconnectclient

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"quizlive/internal/wireproto"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Status is one of the manager's observable connection states.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusReconnecting Status = "reconnecting"
	StatusFailed       Status = "failed"
)

// PersistedSession is the client-side durable blob, expired after 5
// minutes per spec.md §6.
type PersistedSession struct {
	SessionID     string    `json:"sessionId"`
	ParticipantID string    `json:"participantId"`
	SessionToken  string    `json:"sessionToken"`
	Nickname      string    `json:"nickname"`
	Timestamp     time.Time `json:"timestamp"`
}

const persistedSessionTTL = 5 * time.Minute

// Storage is the durable key-value abstraction the manager persists
// through; a browser binds this to localStorage, a CLI client to a file.
type Storage interface {
	Load(key string) (string, bool)
	Save(key, value string)
	Delete(key string)
}

const (
	storageKeySession           = "quizlive.session"
	storageKeyLastKnownQuestion = "quizlive.lastKnownQuestionId"
)

// Backoff schedule defaults (spec.md §4.H).
const (
	DefaultInitialDelay = 1 * time.Second
	DefaultMultiplier   = 2.0
	DefaultMaxDelay     = 30 * time.Second
	DefaultMaxAttempts  = 10
)

// Dialer opens a new WebSocket connection to the participant channel.
type Dialer func(ctx context.Context) (*websocket.Conn, error)

// Listeners are the subscribe points spec.md §4.H calls out: status
// change, session recovered, recovery failed, authenticated, error.
type Listeners struct {
	OnStatusChange     func(Status)
	OnSessionRecovered func(wireproto.SessionRecovered)
	OnRecoveryFailed   func(wireproto.RecoveryFailed)
	OnAuthenticated    func(wireproto.Authenticated)
	OnError            func(wireproto.Error)
}

// Manager owns the transport lifecycle and reconnect schedule.
type Manager struct {
	dial    Dialer
	storage Storage
	listen  Listeners

	initialDelay time.Duration
	multiplier   float64
	maxDelay     time.Duration
	maxAttempts  int

	mu          sync.Mutex
	status      Status
	attempt     int
	serverClose bool // true when the last disconnect was server-initiated
	conn        *websocket.Conn
	cancel      context.CancelFunc
}

func New(dial Dialer, storage Storage, listen Listeners) *Manager {
	return &Manager{
		dial:         dial,
		storage:      storage,
		listen:       listen,
		initialDelay: DefaultInitialDelay,
		multiplier:   DefaultMultiplier,
		maxDelay:     DefaultMaxDelay,
		maxAttempts:  DefaultMaxAttempts,
		status:       StatusDisconnected,
	}
}

// LoadPersisted returns the stored session blob if present and not
// expired, clearing it if it has expired.
func (m *Manager) LoadPersisted() (*PersistedSession, string, bool) {
	raw, ok := m.storage.Load(storageKeySession)
	if !ok {
		return nil, "", false
	}
	var sess PersistedSession
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		m.storage.Delete(storageKeySession)
		return nil, "", false
	}
	if time.Since(sess.Timestamp) > persistedSessionTTL {
		m.storage.Delete(storageKeySession)
		m.storage.Delete(storageKeyLastKnownQuestion)
		return nil, "", false
	}
	lastKnownQuestionID, _ := m.storage.Load(storageKeyLastKnownQuestion)
	return &sess, lastKnownQuestionID, true
}

// PersistSession stores the session blob after a successful join or
// recovery.
func (m *Manager) PersistSession(sess PersistedSession) {
	sess.Timestamp = time.Now()
	raw, _ := json.Marshal(sess)
	m.storage.Save(storageKeySession, string(raw))
}

// PersistLastKnownQuestion updates the separately-tracked question id,
// called whenever the UI transitions to a new question.
func (m *Manager) PersistLastKnownQuestion(questionID string) {
	m.storage.Save(storageKeyLastKnownQuestion, questionID)
}

// Connect dials the transport and immediately emits reconnect_session,
// per "on each successful transport connect". Blocks until the
// connection closes or ctx is cancelled.
func (m *Manager) Connect(ctx context.Context, sess PersistedSession, lastKnownQuestionID string) error {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()
	defer cancel()

	conn, err := m.dial(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.conn = conn
	m.attempt = 0
	m.serverClose = false
	m.mu.Unlock()
	m.setStatus(StatusConnected)

	reconnectMsg := wireproto.Envelope{
		Type: wireproto.EventReconnectSession,
		Payload: wireproto.ReconnectSession{
			SessionID:           sess.SessionID,
			ParticipantID:       sess.ParticipantID,
			LastKnownQuestionID: lastKnownQuestionID,
		},
	}
	if err := conn.WriteJSON(reconnectMsg); err != nil {
		return err
	}

	return m.readLoop(ctx, conn)
}

func (m *Manager) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			m.handleDisconnect(ctx)
			return err
		}

		var env wireproto.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}
		m.dispatch(env)
	}
}

func (m *Manager) dispatch(env wireproto.Envelope) {
	payload, _ := json.Marshal(env.Payload)

	switch env.Type {
	case wireproto.EventAuthenticated:
		var p wireproto.Authenticated
		if json.Unmarshal(payload, &p) == nil && m.listen.OnAuthenticated != nil {
			m.listen.OnAuthenticated(p)
		}
	case wireproto.EventSessionRecovered:
		var p wireproto.SessionRecovered
		if json.Unmarshal(payload, &p) == nil && m.listen.OnSessionRecovered != nil {
			m.listen.OnSessionRecovered(p)
		}
	case wireproto.EventRecoveryFailed:
		var p wireproto.RecoveryFailed
		if json.Unmarshal(payload, &p) == nil && m.listen.OnRecoveryFailed != nil {
			m.listen.OnRecoveryFailed(p)
		}
	case wireproto.EventKicked, wireproto.EventBanned:
		m.mu.Lock()
		m.serverClose = true
		m.mu.Unlock()
		m.storage.Delete(storageKeySession)
		m.storage.Delete(storageKeyLastKnownQuestion)
	case wireproto.EventError:
		var p wireproto.Error
		if json.Unmarshal(payload, &p) == nil && m.listen.OnError != nil {
			m.listen.OnError(p)
		}
	}
}

// handleDisconnect schedules a reconnect for transport-level drops, but
// not for server-initiated closes (kick/ban), which clear stored state
// instead.
func (m *Manager) handleDisconnect(ctx context.Context) {
	m.mu.Lock()
	serverInitiated := m.serverClose
	m.mu.Unlock()

	if serverInitiated {
		m.setStatus(StatusDisconnected)
		return
	}

	m.setStatus(StatusDisconnected)
	go m.scheduleReconnect(ctx)
}

func (m *Manager) scheduleReconnect(ctx context.Context) {
	m.mu.Lock()
	m.attempt++
	attempt := m.attempt
	m.mu.Unlock()

	if attempt > m.maxAttempts {
		m.setStatus(StatusFailed)
		return
	}

	delay := m.nextDelay(attempt)
	m.setStatus(StatusReconnecting)

	select {
	case <-ctx.Done():
		return
	case <-time.After(delay):
	}

	persisted, lastKnownQuestionID, ok := m.LoadPersisted()
	if !ok {
		m.setStatus(StatusDisconnected)
		return
	}
	if err := m.Connect(ctx, *persisted, lastKnownQuestionID); err != nil {
		log.Warn().Err(err).Int("attempt", attempt).Msg("reconnect attempt failed")
	}
}

// nextDelay computes initialDelay * multiplier^(attempt-1), clamped to
// maxDelay, so the first retry (attempt 1) waits exactly initialDelay.
func (m *Manager) nextDelay(attempt int) time.Duration {
	delay := float64(m.initialDelay) * pow(m.multiplier, attempt-1)
	if delay > float64(m.maxDelay) {
		delay = float64(m.maxDelay)
	}
	return time.Duration(delay)
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// ResetAndRetry clears the attempt counter for a manual retry after
// StatusFailed.
func (m *Manager) ResetAndRetry(ctx context.Context, sess PersistedSession, lastKnownQuestionID string) error {
	m.mu.Lock()
	m.attempt = 0
	m.mu.Unlock()
	return m.Connect(ctx, sess, lastKnownQuestionID)
}

// Close shuts down the manager's current connection without scheduling a
// reconnect (a user-initiated disconnect, distinct from kick/ban).
func (m *Manager) Close() {
	m.mu.Lock()
	m.serverClose = true
	cancel := m.cancel
	conn := m.conn
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	m.setStatus(StatusDisconnected)
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
	if m.listen.OnStatusChange != nil {
		m.listen.OnStatusChange(s)
	}
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}
