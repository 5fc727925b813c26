package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"quizlive/internal/apperr"
	"quizlive/internal/connreg"
	"quizlive/internal/wireproto"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ParticipantHandler upgrades and drives the participant WebSocket
// channel: submit_answer, reconnect_session, heartbeat in; the broadcasts
// the connection registry fans out, out. Adapted from the teacher's
// WebSocketHandler.HandleLeaderboard, generalized from a single
// leaderboard topic into the full participant protocol.
type ParticipantHandler struct {
	hub *Hub
}

func NewParticipantHandler(hub *Hub) *ParticipantHandler {
	return &ParticipantHandler{hub: hub}
}

// HandleConnect upgrades GET /ws/participant?sessionId=...&participantId=...&token=...
func (h *ParticipantHandler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	participantID := r.URL.Query().Get("participantId")
	token := r.URL.Query().Get("token")
	if sessionID == "" || participantID == "" || token == "" {
		http.Error(w, "missing sessionId, participantId or token", http.StatusBadRequest)
		return
	}

	participant, err := h.hub.store.GetParticipant(r.Context(), participantID)
	if err != nil || participant == nil || participant.SessionToken != token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if participant.IsBanned {
		http.Error(w, "banned", http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("participant websocket upgrade failed")
		return
	}

	cfg := connreg.ClientConfig{
		WriteWait:      h.hub.cfg.GetWebSocketWriteWait(),
		PongWait:       h.hub.cfg.GetWebSocketPongWait(),
		PingPeriod:     h.hub.cfg.GetWebSocketPingPeriod(),
		MaxMessageSize: h.hub.cfg.WebSocket.MaxMessageSize,
	}
	client := connreg.NewClient(h.hub.registry, conn, sessionID, participantID, connreg.RoleParticipant, cfg, h)

	h.hub.registry.Register(client)
	h.hub.metrics.IncConnections()

	h.hub.registry.SendTo(client, wireproto.EventAuthenticated, wireproto.Authenticated{
		ParticipantID: participantID,
		SessionID:     sessionID,
	})

	go client.WritePump()
	go client.ReadPump()
}

// HandleFrame implements connreg.FrameHandler for participant clients.
func (h *ParticipantHandler) HandleFrame(c *connreg.Client, raw []byte) {
	var env wireproto.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.hub.registry.SendTo(c, wireproto.EventError, wireproto.Error{Code: apperr.CodeValidationFailed, Message: "malformed frame"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch env.Type {
	case wireproto.EventSubmitAnswer:
		h.handleSubmitAnswer(ctx, c, env)
	case wireproto.EventReconnectSession:
		h.handleReconnect(ctx, c, env)
	case wireproto.EventHeartbeat:
		// no-op: ReadPump's pong handling already refreshes liveness.
	default:
		h.hub.registry.SendTo(c, wireproto.EventError, wireproto.Error{Code: apperr.CodeValidationFailed, Message: "unknown event type"})
	}
}

func (h *ParticipantHandler) handleSubmitAnswer(ctx context.Context, c *connreg.Client, env wireproto.Envelope) {
	payload, _ := json.Marshal(env.Payload)
	var msg wireproto.SubmitAnswer
	if err := json.Unmarshal(payload, &msg); err != nil {
		h.hub.registry.SendTo(c, wireproto.EventAnswerRejected, wireproto.AnswerRejected{
			Reason: apperr.CodeValidationFailed, Message: "malformed submit_answer payload",
		})
		return
	}

	result, err := h.hub.Ingest().Submit(ctx, msg.SessionID, c.ParticipantID, msg.QuestionID, msg.SelectedOptionIDs)
	if err != nil {
		ae := apperr.As(err)
		h.hub.registry.SendTo(c, wireproto.EventAnswerRejected, wireproto.AnswerRejected{
			QuestionID: msg.QuestionID, Reason: ae.Code, Message: ae.UserMessage,
		})
		return
	}

	h.hub.registry.SendTo(c, wireproto.EventAnswerAccepted, wireproto.AnswerAccepted{
		AnswerID:       strconv.FormatInt(result.AnswerID, 10),
		ResponseTimeMs: result.ResponseTimeMs,
	})
}

func (h *ParticipantHandler) handleReconnect(ctx context.Context, c *connreg.Client, env wireproto.Envelope) {
	payload, _ := json.Marshal(env.Payload)
	var msg wireproto.ReconnectSession
	if err := json.Unmarshal(payload, &msg); err != nil {
		h.hub.registry.SendTo(c, wireproto.EventRecoveryFailed, wireproto.RecoveryFailed{Message: "malformed reconnect_session payload"})
		return
	}

	participant, err := h.hub.store.GetParticipant(ctx, c.ParticipantID)
	if err != nil || participant == nil {
		h.hub.registry.SendTo(c, wireproto.EventRecoveryFailed, wireproto.RecoveryFailed{Message: "participant not found"})
		return
	}

	snapshot, err := h.hub.recovery.Recover(ctx, msg.SessionID, c.ParticipantID, participant.SessionToken)
	if err != nil {
		ae := apperr.As(err)
		h.hub.registry.SendTo(c, wireproto.EventRecoveryFailed, wireproto.RecoveryFailed{Reason: ae.Code, Message: ae.UserMessage})
		return
	}
	h.hub.registry.SendTo(c, wireproto.EventSessionRecovered, snapshot)
}

// HandleClose implements connreg.FrameHandler: a participant's socket
// closing just marks the connection dropped, it never itself ends the
// participant's eligibility (that is reconnect_session's job on the next
// transport connect).
func (h *ParticipantHandler) HandleClose(c *connreg.Client) {
	h.hub.metrics.DecConnections()
	h.hub.broadcastToAdmins(c.Room, wireproto.EventParticipantLeft, wireproto.ParticipantLeft{
		ParticipantID: c.ParticipantID,
	})
}
