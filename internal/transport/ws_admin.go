package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"quizlive/internal/apperr"
	"quizlive/internal/connreg"
	"quizlive/internal/wireproto"

	"github.com/rs/zerolog/log"
)

// AdminHandler upgrades and drives the controller/bigscreen channel:
// start_session, end_question, next_question, end_session in; the same
// broadcasts participants see, plus participant_joined/left, out.
// Adapted from the teacher's WebSocketHandler, generalized from a
// read-only viewer into one that can also issue admin commands.
type AdminHandler struct {
	hub  *Hub
	auth *AdminAuth
}

func NewAdminHandler(hub *Hub, auth *AdminAuth) *AdminHandler {
	return &AdminHandler{hub: hub, auth: auth}
}

// HandleConnect upgrades GET /ws/controller?sessionId=...&token=...&role=controller|bigscreen
func (h *AdminHandler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		http.Error(w, "missing sessionId", http.StatusBadRequest)
		return
	}

	ownerID, err := h.auth.ValidateRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	role := connreg.RoleController
	if r.URL.Query().Get("role") == "bigscreen" {
		role = connreg.RoleBigscreen
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("admin websocket upgrade failed")
		return
	}

	cfg := connreg.ClientConfig{
		WriteWait:      h.hub.cfg.GetWebSocketWriteWait(),
		PongWait:       h.hub.cfg.GetWebSocketPongWait(),
		PingPeriod:     h.hub.cfg.GetWebSocketPingPeriod(),
		MaxMessageSize: h.hub.cfg.WebSocket.MaxMessageSize,
	}
	client := connreg.NewClient(h.hub.registry, conn, sessionID, ownerID, role, cfg, &adminFrameHandler{hub: h.hub, ownerID: ownerID})

	h.hub.registry.Register(client)
	h.hub.metrics.IncConnections()

	go client.WritePump()
	go client.ReadPump()
}

type adminFrameHandler struct {
	hub     *Hub
	ownerID string
}

func (a *adminFrameHandler) HandleFrame(c *connreg.Client, raw []byte) {
	var env wireproto.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		a.hub.registry.SendTo(c, wireproto.EventError, wireproto.Error{Code: apperr.CodeValidationFailed, Message: "malformed frame"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch env.Type {
	case wireproto.EventStartSession:
		if _, err := a.hub.EnsureStarted(ctx, c.Room, a.ownerID); err != nil {
			a.sendError(c, err)
		}
	case wireproto.EventEndQuestion:
		a.withDriver(c, func(d driverCommander) { d.RequestEndQuestion() })
	case wireproto.EventNextQuestion:
		a.withDriver(c, func(d driverCommander) { d.RequestNextQuestion() })
	case wireproto.EventEndSession:
		a.withDriver(c, func(d driverCommander) { d.RequestEndSession() })
		a.hub.Stop(c.Room)
	default:
		a.hub.registry.SendTo(c, wireproto.EventError, wireproto.Error{Code: apperr.CodeValidationFailed, Message: "unknown event type"})
	}
}

// driverCommander is the subset of statemachine.Driver this handler needs,
// kept narrow so tests can substitute a fake without pulling in the full
// driver.
type driverCommander interface {
	RequestEndQuestion()
	RequestNextQuestion()
	RequestEndSession()
}

func (a *adminFrameHandler) withDriver(c *connreg.Client, fn func(driverCommander)) {
	d, ok := a.hub.Driver(c.Room)
	if !ok {
		a.hub.registry.SendTo(c, wireproto.EventError, wireproto.Error{Code: apperr.CodeWrongState, Message: "session is not running"})
		return
	}
	fn(d)
}

func (a *adminFrameHandler) sendError(c *connreg.Client, err error) {
	ae := apperr.As(err)
	a.hub.registry.SendTo(c, wireproto.EventError, wireproto.Error{Code: ae.Code, Message: ae.UserMessage})
}

func (a *adminFrameHandler) HandleClose(c *connreg.Client) {
	a.hub.metrics.DecConnections()
}
