// Package wireproto defines the wire protocol frames exchanged over the
// participant and controller/bigscreen WebSocket channels, plus the join
// REST payloads (spec.md §6).
package wireproto

// Envelope wraps every frame sent over either channel with a discriminator.
type Envelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Inbound participant events.

type SubmitAnswer struct {
	SessionID         string   `json:"sessionId"`
	QuestionID        string   `json:"questionId"`
	SelectedOptionIDs []string `json:"selectedOptionIds"`
}

type ReconnectSession struct {
	SessionID           string `json:"sessionId"`
	ParticipantID        string `json:"participantId"`
	LastKnownQuestionID string `json:"lastKnownQuestionId,omitempty"`
}

type Heartbeat struct{}

// Outbound participant events.

type Authenticated struct {
	ParticipantID string `json:"participantId"`
	SessionID     string `json:"sessionId"`
}

type AuthError struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// QuestionStarted strips correct-answer flags before reaching the wire.
type QuestionStarted struct {
	QuestionID     string       `json:"questionId"`
	QuestionText   string       `json:"questionText"`
	QuestionType   string       `json:"questionType"`
	Options        []WireOption `json:"options"`
	TimeLimit      int          `json:"timeLimit"`
	ShuffleOptions bool         `json:"shuffleOptions"`
}

// WireOption omits IsCorrect.
type WireOption struct {
	OptionID string `json:"optionId"`
	Text     string `json:"text"`
}

type TimerTick struct {
	RemainingSeconds int `json:"remainingSeconds"`
}

type AnswerAccepted struct {
	AnswerID        string `json:"answerId"`
	ResponseTimeMs  int64  `json:"responseTimeMs"`
}

type AnswerRejected struct {
	QuestionID string `json:"questionId"`
	Reason     string `json:"reason"`
	Message    string `json:"message"`
}

type RevealStats struct {
	TotalAnswers   int            `json:"totalAnswers"`
	CorrectCount   int            `json:"correctCount"`
	OptionCounts   map[string]int `json:"optionCounts"`
	StatsIncomplete bool          `json:"statsIncomplete"`
}

type AnswerRevealed struct {
	QuestionID       string      `json:"questionId"`
	CorrectOptionIDs []string    `json:"correctOptionIds"`
	Stats            RevealStats `json:"stats"`
}

type LeaderboardRow struct {
	ParticipantID string `json:"participantId"`
	Nickname      string `json:"nickname"`
	Rank          int    `json:"rank"`
	Score         int64  `json:"score"`
}

type LeaderboardUpdated struct {
	Rankings []LeaderboardRow `json:"rankings"`
}

type SessionRecovered struct {
	State            string            `json:"state"`
	CurrentQuestion  *QuestionStarted  `json:"currentQuestion,omitempty"`
	RemainingSeconds int               `json:"remainingSeconds"`
	TotalScore       int64             `json:"totalScore"`
	Rank             int               `json:"rank"`
	Leaderboard      []LeaderboardRow `json:"leaderboard"`
	StreakCount      int               `json:"streakCount"`
	IsEliminated     bool              `json:"isEliminated"`
	IsSpectator      bool              `json:"isSpectator"`
}

type RecoveryFailed struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

type SessionEnded struct{}

type Kicked struct {
	Message string `json:"message"`
}

type Banned struct {
	Message string `json:"message"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type RateLimitExceeded struct {
	RetryAfterSeconds int `json:"retryAfter"`
}

// Controller/bigscreen channel.

type StartSession struct{}

type EndQuestion struct{}

type NextQuestion struct{}

type EndSession struct{}

type ParticipantJoined struct {
	ParticipantID string `json:"participantId"`
	Nickname      string `json:"nickname"`
}

type ParticipantLeft struct {
	ParticipantID string `json:"participantId"`
}

// Join REST.

type JoinRequest struct {
	JoinCode string `json:"joinCode"`
	Nickname string `json:"nickname"`
}

type JoinResponse struct {
	SessionID     string `json:"sessionId"`
	ParticipantID string `json:"participantId"`
	SessionToken  string `json:"sessionToken"`
	Nickname      string `json:"nickname"`
}

// Event type discriminators, referenced by transport handlers and tests
// instead of ad-hoc string literals.
const (
	EventSubmitAnswer       = "submit_answer"
	EventReconnectSession   = "reconnect_session"
	EventHeartbeat          = "heartbeat"
	EventAuthenticated      = "authenticated"
	EventAuthError          = "auth_error"
	EventQuestionStarted    = "question_started"
	EventTimerTick          = "timer_tick"
	EventAnswerAccepted     = "answer_accepted"
	EventAnswerRejected     = "answer_rejected"
	EventAnswerRevealed     = "answer_revealed"
	EventLeaderboardUpdated = "leaderboard_updated"
	EventSessionRecovered   = "session_recovered"
	EventRecoveryFailed     = "recovery_failed"
	EventSessionEnded       = "session_ended"
	EventKicked             = "kicked"
	EventBanned             = "banned"
	EventError              = "error"
	EventRateLimitExceeded  = "rate_limit_exceeded"
	EventStartSession       = "start_session"
	EventEndQuestion        = "end_question"
	EventNextQuestion       = "next_question"
	EventEndSession         = "end_session"
	EventParticipantJoined  = "participant_joined"
	EventParticipantLeft    = "participant_left"
	EventScoringFailed      = "scoring_failed"
)

// ScoringFailed reports a scoring pass that could not complete for one
// participant's answer, so the controller can see which rankings may be
// stale rather than silently trusting a skipped update.
type ScoringFailed struct {
	QuestionID    string `json:"questionId"`
	ParticipantID string `json:"participantId"`
	Reason        string `json:"reason"`
}
