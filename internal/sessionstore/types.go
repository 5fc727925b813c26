// Package sessionstore is the Session Store (component A): an ordered
// mapping of session, participant, and answer records in Redis with typed
// accessors, plus a durable batch sink for post-quiz analytics.
package sessionstore

import "time"

// State is one of the session lifecycle states driven by the state machine.
type State string

const (
	StateLobby          State = "LOBBY"
	StateActiveQuestion  State = "ACTIVE_QUESTION"
	StateReveal          State = "REVEAL"
	StateEnded           State = "ENDED"
)

// Session is the live session record.
type Session struct {
	SessionID            string     `json:"sessionId"`
	QuizID               string     `json:"quizId"`
	JoinCode             string     `json:"joinCode"`
	State                State      `json:"state"`
	CurrentQuestionIndex int        `json:"currentQuestionIndex"` // -1 in LOBBY
	QuestionStartedAt    *time.Time `json:"questionStartedAt,omitempty"`
	RemainingAtPause     *int64     `json:"remainingAtPauseMs,omitempty"`
	CreatedAt            time.Time  `json:"createdAt"`
	EndedAt              *time.Time `json:"endedAt,omitempty"`
}

// Participant is a connected or previously-connected client.
type Participant struct {
	ParticipantID    string    `json:"participantId"`
	SessionID        string    `json:"sessionId"`
	Nickname         string    `json:"nickname"`
	SessionToken     string    `json:"sessionToken"`
	IsActive         bool      `json:"isActive"`
	IsEliminated     bool      `json:"isEliminated"`
	IsSpectator      bool      `json:"isSpectator"`
	IsBanned         bool      `json:"isBanned"`
	TotalScore       int64     `json:"totalScore"`
	TotalTimeMs      int64     `json:"totalTimeMs"`
	StreakCount      int       `json:"streakCount"`
	LastQuestionScore int64    `json:"lastQuestionScore"`
	JoinedAt         time.Time `json:"joinedAt"`
}

// Answer is a participant's submission for one question.
type Answer struct {
	AnswerID             int64     `json:"answerId"` // monotonic per participant
	SessionID            string    `json:"sessionId"`
	ParticipantID        string    `json:"participantId"`
	QuestionID           string    `json:"questionId"`
	SelectedOptionIDs    []string  `json:"selectedOptionIds"`
	SubmittedAt          time.Time `json:"submittedAt"`
	ResponseTimeMs       int64     `json:"responseTimeMs"`
	IsCorrect            bool      `json:"isCorrect"`
	PointsAwarded        int64     `json:"pointsAwarded"`
	SpeedBonusApplied    int64     `json:"speedBonusApplied"`
	StreakBonusApplied   int64     `json:"streakBonusApplied"`
	PartialCreditApplied int64     `json:"partialCreditApplied"`
	Scored               bool      `json:"scored"`
}

// LeaderboardEntry is a ranked view derived from Participant rows.
type LeaderboardEntry struct {
	ParticipantID string
	Score         int64
	Rank          int
}
