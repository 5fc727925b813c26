package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"quizlive/internal/wireproto"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	connectTimeout = 10 * time.Second
	answerJitter   = 3 * time.Second
)

type simulatedParticipant struct {
	nickname      string
	sessionID     string
	participantID string
	token         string
	conn          *websocket.Conn
	currentQ      *wireproto.QuestionStarted
}

func main() {
	log.Info().Msg("Starting quiz session load simulator")

	baseURL := envOr("SIMULATOR_BASE_URL", "http://localhost:8080")
	wsURL := envOr("SIMULATOR_WS_URL", "ws://localhost:8080")
	joinCode := os.Getenv("SIMULATOR_JOIN_CODE")
	quizID := os.Getenv("SIMULATOR_QUIZ_ID")
	adminSecret := os.Getenv("JWT_SECRET")
	numParticipants := envInt("SIMULATOR_PARTICIPANTS", 20)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if joinCode == "" {
		if quizID == "" || adminSecret == "" {
			log.Fatal().Msg("set SIMULATOR_JOIN_CODE, or SIMULATOR_QUIZ_ID + JWT_SECRET so a session can be created")
		}
		var err error
		joinCode, err = createSession(baseURL, quizID, adminSecret)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create session")
		}
		log.Info().Str("joinCode", joinCode).Msg("created session")
	}

	participants := make([]*simulatedParticipant, 0, numParticipants)
	for i := 0; i < numParticipants; i++ {
		nickname := fmt.Sprintf("bot-%d", i+1)
		p, err := joinAndConnect(ctx, baseURL, wsURL, joinCode, nickname)
		if err != nil {
			log.Warn().Err(err).Str("nickname", nickname).Msg("participant failed to join")
			continue
		}
		participants = append(participants, p)
		go p.readLoop(ctx)
	}

	log.Info().Int("joined", len(participants)).Msg("participants connected")

	<-ctx.Done()
	log.Info().Msg("shutting down simulator")
	for _, p := range participants {
		_ = p.conn.Close()
	}
}

func createSession(baseURL, quizID, secret string) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "simulator",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte(secret))
	if err != nil {
		return "", err
	}

	body, _ := json.Marshal(map[string]string{"quizId": quizID})
	req, err := http.NewRequest(http.MethodPost, baseURL+"/admin/sessions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+signed)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("create session: unexpected status %d", resp.StatusCode)
	}

	var out struct {
		JoinCode string `json:"joinCode"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.JoinCode, nil
}

func joinAndConnect(ctx context.Context, baseURL, wsURL, joinCode, nickname string) (*simulatedParticipant, error) {
	body, _ := json.Marshal(wireproto.JoinRequest{JoinCode: joinCode, Nickname: nickname})
	resp, err := http.Post(baseURL+"/sessions/join", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("join: unexpected status %d", resp.StatusCode)
	}

	var join wireproto.JoinResponse
	if err := json.NewDecoder(resp.Body).Decode(&join); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("sessionId", join.SessionID)
	q.Set("participantId", join.ParticipantID)
	q.Set("token", join.SessionToken)

	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, wsURL+"/ws/participant?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	return &simulatedParticipant{
		nickname:      nickname,
		sessionID:     join.SessionID,
		participantID: join.ParticipantID,
		token:         join.SessionToken,
		conn:          conn,
	}, nil
}

func (p *simulatedParticipant) readLoop(ctx context.Context) {
	for {
		var env wireproto.Envelope
		if err := p.conn.ReadJSON(&env); err != nil {
			if ctx.Err() == nil {
				log.Debug().Err(err).Str("nickname", p.nickname).Msg("connection closed")
			}
			return
		}

		switch env.Type {
		case wireproto.EventQuestionStarted:
			var started wireproto.QuestionStarted
			if !decodePayload(env.Payload, &started) {
				continue
			}
			p.currentQ = &started
			delay := time.Duration(rand.Int63n(int64(answerJitter)))
			go p.submitAfter(delay, started)
		case wireproto.EventAnswerRevealed:
			p.currentQ = nil
		case wireproto.EventSessionEnded:
			log.Info().Str("nickname", p.nickname).Msg("session ended")
		}
	}
}

func (p *simulatedParticipant) submitAfter(delay time.Duration, q wireproto.QuestionStarted) {
	time.Sleep(delay)
	if len(q.Options) == 0 {
		return
	}
	choice := q.Options[rand.Intn(len(q.Options))]

	env := wireproto.Envelope{
		Type: wireproto.EventSubmitAnswer,
		Payload: wireproto.SubmitAnswer{
			SessionID:         p.sessionID,
			QuestionID:        q.QuestionID,
			SelectedOptionIDs: []string{choice.OptionID},
		},
	}
	if err := p.conn.WriteJSON(env); err != nil {
		log.Warn().Err(err).Str("nickname", p.nickname).Msg("failed to submit answer")
	}
}

func decodePayload(payload interface{}, out interface{}) bool {
	raw, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n := fallback
	_, err := fmt.Sscanf(v, "%d", &n)
	if err != nil {
		return fallback
	}
	return n
}
