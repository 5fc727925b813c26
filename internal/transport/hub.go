package transport

import (
	"context"
	"crypto/rand"
	"errors"
	"strings"
	"sync"

	"quizlive/internal/answerpipeline"
	"quizlive/internal/apperr"
	"quizlive/internal/clock"
	"quizlive/internal/config"
	"quizlive/internal/connreg"
	"quizlive/internal/metrics"
	"quizlive/internal/pubsub"
	"quizlive/internal/quizdef"
	"quizlive/internal/recovery"
	"quizlive/internal/sessionstore"
	"quizlive/internal/statemachine"
	"quizlive/internal/validate"
	"quizlive/internal/wireproto"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Hub is the composition point between the network edge and the session
// core: it owns the connection registry, creates sessions, and lazily
// starts one state machine Driver and one scoring Worker per session the
// first time its controller issues start_session. Grounded on the
// teacher's Hub (internal/websocket/hub.go), generalized from a single
// broadcast loop into per-session driver lifecycles.
type Hub struct {
	cfg      *config.Config
	store    sessionstore.Store
	quizzes  quizdef.Store
	bus      pubsub.Bus
	registry *connreg.Registry
	recovery *recovery.Service
	clock    clock.Clock
	metrics  *metrics.Collector
	ingest   *answerpipeline.Ingest

	profanityList []string

	mu      sync.Mutex
	drivers map[string]*statemachine.Driver
	cancels map[string]context.CancelFunc
}

func NewHub(cfg *config.Config, store sessionstore.Store, durable sessionstore.DurableStore, quizzes quizdef.Store, bus pubsub.Bus, registry *connreg.Registry, rec *recovery.Service, clk clock.Clock, mc *metrics.Collector) *Hub {
	accumulator := answerpipeline.NewAccumulator(cfg.Batch.Size, cfg.GetBatchInterval(), durable.BatchInsertAnswers)
	go accumulator.Run(context.Background())

	return &Hub{
		cfg:      cfg,
		store:    store,
		quizzes:  quizzes,
		bus:      bus,
		registry: registry,
		recovery: rec,
		clock:    clk,
		metrics:  mc,
		ingest:   answerpipeline.NewIngest(store, quizzes, bus, clk, accumulator),
		drivers:  make(map[string]*statemachine.Driver),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// CreateSession provisions a LOBBY session for the given quiz, generating
// a unique join code per spec.md §6.
func (h *Hub) CreateSession(ctx context.Context, quizID, ownerID string) (*sessionstore.Session, error) {
	if _, err := h.quizzes.GetQuiz(quizID); err != nil {
		if errors.Is(err, quizdef.ErrQuizNotFound) {
			return nil, apperr.NotFound(apperr.CodeQuizNotFound, "no quiz with that id")
		}
		return nil, apperr.Internal(err)
	}

	joinCode, err := h.uniqueJoinCode(ctx)
	if err != nil {
		return nil, err
	}

	sess := &sessionstore.Session{
		SessionID:            uuid.NewString(),
		QuizID:               quizID,
		JoinCode:             joinCode,
		State:                sessionstore.StateLobby,
		CurrentQuestionIndex: -1,
		CreatedAt:            h.clock.Now(),
	}
	if err := h.store.PutSession(ctx, sess); err != nil {
		return nil, err
	}
	if _, err := h.store.AcquireOwnerLease(ctx, sess.SessionID, ownerID, h.cfg.GetOwnerLeaseTTL()); err != nil {
		return nil, err
	}
	return sess, nil
}

func (h *Hub) uniqueJoinCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 20; attempt++ {
		code, err := randomJoinCode()
		if err != nil {
			return "", apperr.Internal(err)
		}
		existing, err := h.store.GetSessionByJoinCode(ctx, code)
		if err != nil {
			return "", err
		}
		if existing == nil || existing.State == sessionstore.StateEnded {
			return code, nil
		}
	}
	return "", apperr.Internal(nil)
}

const joinCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomJoinCode() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, 6)
	for i, b := range buf {
		out[i] = joinCodeAlphabet[int(b)%len(joinCodeAlphabet)]
	}
	return string(out), nil
}

// Join validates and records a new participant against a join code,
// implementing spec.md §6's join-code REST handshake.
func (h *Hub) Join(ctx context.Context, joinCode, nickname string) (*sessionstore.Participant, *sessionstore.Session, error) {
	if v := validate.JoinCode(joinCode); !v.IsValid() {
		return nil, nil, apperr.Validation("", v.Errors().Error(), nil)
	}
	if v := validate.Nickname(nickname, h.profanityList); !v.IsValid() {
		return nil, nil, apperr.Validation("", v.Errors().Error(), nil)
	}

	sess, err := h.store.GetSessionByJoinCode(ctx, joinCode)
	if err != nil {
		return nil, nil, err
	}
	if sess == nil || sess.State == sessionstore.StateEnded {
		return nil, nil, apperr.NotFound(apperr.CodeSessionNotFound, "no active session for this join code")
	}

	existing, err := h.store.ListParticipants(ctx, sess.SessionID)
	if err != nil {
		return nil, nil, err
	}
	for _, p := range existing {
		if strings.EqualFold(p.Nickname, nickname) {
			return nil, nil, apperr.Validation("NICKNAME_TAKEN", "nickname already in use for this session", nil)
		}
	}

	participant := &sessionstore.Participant{
		ParticipantID: uuid.NewString(),
		SessionID:     sess.SessionID,
		Nickname:      nickname,
		SessionToken:  uuid.NewString(),
		IsActive:      true,
		JoinedAt:      h.clock.Now(),
	}
	if err := h.store.PutParticipant(ctx, participant); err != nil {
		return nil, nil, err
	}

	h.broadcastToAdmins(sess.SessionID, wireproto.EventParticipantJoined, wireproto.ParticipantJoined{
		ParticipantID: participant.ParticipantID,
		Nickname:      participant.Nickname,
	})

	return participant, sess, nil
}

func connregRolePtr(r connreg.Role) *connreg.Role { return &r }

// broadcastToAdmins delivers a frame to both read-only channel roles
// (controller and bigscreen), per spec.md §6's "Controller/bigscreen
// channel ... plus participant_joined/left".
func (h *Hub) broadcastToAdmins(sessionID, event string, payload interface{}) {
	h.registry.Broadcast(sessionID, event, payload, connregRolePtr(connreg.RoleController))
	h.registry.Broadcast(sessionID, event, payload, connregRolePtr(connreg.RoleBigscreen))
}

// Driver returns the running driver for a session, if one has been
// started.
func (h *Hub) Driver(sessionID string) (*statemachine.Driver, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	d, ok := h.drivers[sessionID]
	return d, ok
}

// EnsureStarted lazily spins up the state machine driver and scoring
// worker for a session the first time its controller requests
// start_session, and is a no-op on subsequent calls for the same session.
func (h *Hub) EnsureStarted(ctx context.Context, sessionID, ownerID string) (*statemachine.Driver, error) {
	h.mu.Lock()
	if d, ok := h.drivers[sessionID]; ok {
		h.mu.Unlock()
		return d, nil
	}
	h.mu.Unlock()

	worker := answerpipeline.NewWorker(h.store, h.quizzes, h.bus, h.registry)
	driver := statemachine.New(sessionID, ownerID, h.store, h.quizzes, h.bus, h.registry, worker, h.clock, h.cfg.GetFinalizeWait())

	runCtx, cancel := context.WithCancel(context.Background())

	h.mu.Lock()
	h.drivers[sessionID] = driver
	h.cancels[sessionID] = cancel
	h.mu.Unlock()

	go func() {
		if err := worker.Run(runCtx, sessionID); err != nil && runCtx.Err() == nil {
			log.Error().Err(err).Str("session_id", sessionID).Msg("scoring worker exited")
		}
	}()
	go func() {
		if err := driver.StartSession(runCtx); err != nil {
			log.Error().Err(err).Str("session_id", sessionID).Msg("session driver exited")
		}
		h.mu.Lock()
		delete(h.drivers, sessionID)
		delete(h.cancels, sessionID)
		h.mu.Unlock()
		cancel()
	}()

	return driver, nil
}

// Stop cancels a session's driver/worker goroutines, used on end_session.
func (h *Hub) Stop(sessionID string) {
	h.mu.Lock()
	cancel, ok := h.cancels[sessionID]
	h.mu.Unlock()
	if ok {
		cancel()
	}
}

// Ingest is the process-wide answer ingest pipeline, shared across every
// session (each submission is already scoped by sessionId/participantId).
func (h *Hub) Ingest() *answerpipeline.Ingest {
	return h.ingest
}
