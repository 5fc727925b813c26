package transport

import (
	"encoding/json"
	"net/http"

	"quizlive/internal/apperr"
	"quizlive/internal/wireproto"
)

// JoinHandler serves the join-code REST surface (spec.md §6): joining an
// existing session, and the admin session-creation endpoint that mints a
// session's join code in the first place.
type JoinHandler struct {
	hub *Hub
}

func NewJoinHandler(hub *Hub) *JoinHandler {
	return &JoinHandler{hub: hub}
}

// Join handles POST /sessions/join {joinCode, nickname}.
func (h *JoinHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req wireproto.JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apperr.Validation("", "malformed request body", err))
		return
	}

	participant, sess, err := h.hub.Join(r.Context(), req.JoinCode, req.Nickname)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, wireproto.JoinResponse{
		SessionID:     sess.SessionID,
		ParticipantID: participant.ParticipantID,
		SessionToken:  participant.SessionToken,
		Nickname:      participant.Nickname,
	})
}

type createSessionRequest struct {
	QuizID string `json:"quizId"`
}

type createSessionResponse struct {
	SessionID string `json:"sessionId"`
	JoinCode  string `json:"joinCode"`
}

// CreateSession handles POST /admin/sessions {quizId}, authenticated by
// AdminAuth. Not named in spec.md's wire protocol (which starts from an
// already-existing session), but a session has to come from somewhere;
// grounded on the join-code generation rules spec.md §6 does specify.
func (h *JoinHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apperr.Validation("", "malformed request body", err))
		return
	}

	ownerID := ownerIDFromContext(r.Context())
	sess, err := h.hub.CreateSession(r.Context(), req.QuizID, ownerID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, createSessionResponse{
		SessionID: sess.SessionID,
		JoinCode:  sess.JoinCode,
	})
}
