package sessionstore

import (
	"context"
	"time"
)

// Store is the interface the rest of the core depends on (design note:
// interface abstraction at the component boundary so tests inject fakes).
type Store interface {
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	PutSession(ctx context.Context, session *Session) error
	// GetSessionByJoinCode resolves the short human-entered code a
	// participant types at the join screen to its session.
	GetSessionByJoinCode(ctx context.Context, joinCode string) (*Session, error)
	// CASSessionState performs a compare-and-set transition. A false result
	// with a nil error means a racing driver already moved the state; the
	// caller must reread and decide (idempotent accept or STATE_CONFLICT).
	CASSessionState(ctx context.Context, sessionID string, expected, next State) (bool, error)

	GetParticipant(ctx context.Context, participantID string) (*Participant, error)
	PutParticipant(ctx context.Context, p *Participant) error
	GetParticipantSession(ctx context.Context, participantID string) (string, error)
	ListParticipants(ctx context.Context, sessionID string) ([]*Participant, error)
	// UpdateParticipantScore is the single atomic write path; must only be
	// invoked from the scoring worker.
	UpdateParticipantScore(ctx context.Context, participantID string, totalScore, totalTimeMs, lastQuestionScore int64, streakCount int) error
	SetParticipantEliminated(ctx context.Context, participantID string, eliminated bool) error

	UpsertLeaderboard(ctx context.Context, sessionID, participantID string, score float64) error
	GetLeaderboard(ctx context.Context, sessionID string, topN int) ([]LeaderboardEntry, error)
	GetRank(ctx context.Context, sessionID, participantID string) (int, error)

	AppendAnswer(ctx context.Context, answer *Answer) error
	GetAnswer(ctx context.Context, participantID, questionID string) (*Answer, error)
	// MarkAnswerScored overwrites an already-recorded answer's scored
	// fields in place; unlike AppendAnswer it never enforces at-most-once,
	// since the record is known to already exist.
	MarkAnswerScored(ctx context.Context, answer *Answer) error
	BatchInsertAnswers(ctx context.Context, answers []*Answer) error

	BufferAnswerForScoring(ctx context.Context, sessionID, questionID string, answer *Answer) error
	DrainAnswerBuffer(ctx context.Context, sessionID, questionID string) ([]*Answer, error)

	// Owner lease primitives (§3 Ownership).
	AcquireOwnerLease(ctx context.Context, sessionID, ownerID string, ttl time.Duration) (bool, error)
	RenewOwnerLease(ctx context.Context, sessionID, ownerID string, ttl time.Duration) (bool, error)
	ReleaseOwnerLease(ctx context.Context, sessionID, ownerID string) error

	// NextAnswerID returns a monotonically increasing id scoped to a
	// participant, used as the per-participant answerId.
	NextAnswerID(ctx context.Context, participantID string) (int64, error)

	Health(ctx context.Context) error
}
