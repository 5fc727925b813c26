package statemachine

import (
	"context"
	"sync"
	"time"

	"quizlive/internal/sessionstore"
)

// fakeStore is a minimal in-memory sessionstore.Store for Driver tests.
// Only the methods the Driver actually calls are meaningfully
// implemented; the rest satisfy the interface with no-ops.
type fakeStore struct {
	mu           sync.Mutex
	session      *sessionstore.Session
	participants map[string]*sessionstore.Participant
	leaderboard  []sessionstore.LeaderboardEntry
}

func newFakeStore(sess *sessionstore.Session) *fakeStore {
	return &fakeStore{session: sess, participants: make(map[string]*sessionstore.Participant)}
}

func (f *fakeStore) GetSession(ctx context.Context, sessionID string) (*sessionstore.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *f.session
	return &cp, nil
}

func (f *fakeStore) PutSession(ctx context.Context, session *sessionstore.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *session
	f.session = &cp
	return nil
}

func (f *fakeStore) GetSessionByJoinCode(ctx context.Context, joinCode string) (*sessionstore.Session, error) {
	return nil, nil
}

func (f *fakeStore) CASSessionState(ctx context.Context, sessionID string, expected, next sessionstore.State) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session.State != expected {
		return false, nil
	}
	f.session.State = next
	return true, nil
}

func (f *fakeStore) GetParticipant(ctx context.Context, participantID string) (*sessionstore.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.participants[participantID], nil
}

func (f *fakeStore) PutParticipant(ctx context.Context, p *sessionstore.Participant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.participants[p.ParticipantID] = p
	return nil
}

func (f *fakeStore) GetParticipantSession(ctx context.Context, participantID string) (string, error) {
	return "", nil
}

func (f *fakeStore) ListParticipants(ctx context.Context, sessionID string) ([]*sessionstore.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*sessionstore.Participant, 0, len(f.participants))
	for _, p := range f.participants {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeStore) UpdateParticipantScore(ctx context.Context, participantID string, totalScore, totalTimeMs, lastQuestionScore int64, streakCount int) error {
	return nil
}

func (f *fakeStore) SetParticipantEliminated(ctx context.Context, participantID string, eliminated bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.participants[participantID]; ok {
		p.IsEliminated = eliminated
	}
	return nil
}

func (f *fakeStore) UpsertLeaderboard(ctx context.Context, sessionID, participantID string, score float64) error {
	return nil
}

func (f *fakeStore) GetLeaderboard(ctx context.Context, sessionID string, topN int) ([]sessionstore.LeaderboardEntry, error) {
	return f.leaderboard, nil
}

func (f *fakeStore) GetRank(ctx context.Context, sessionID, participantID string) (int, error) {
	return 0, nil
}

func (f *fakeStore) AppendAnswer(ctx context.Context, answer *sessionstore.Answer) error { return nil }

func (f *fakeStore) GetAnswer(ctx context.Context, participantID, questionID string) (*sessionstore.Answer, error) {
	return nil, nil
}

func (f *fakeStore) MarkAnswerScored(ctx context.Context, answer *sessionstore.Answer) error {
	return nil
}

func (f *fakeStore) BatchInsertAnswers(ctx context.Context, answers []*sessionstore.Answer) error {
	return nil
}

func (f *fakeStore) BufferAnswerForScoring(ctx context.Context, sessionID, questionID string, answer *sessionstore.Answer) error {
	return nil
}

func (f *fakeStore) DrainAnswerBuffer(ctx context.Context, sessionID, questionID string) ([]*sessionstore.Answer, error) {
	return nil, nil
}

func (f *fakeStore) AcquireOwnerLease(ctx context.Context, sessionID, ownerID string, ttl time.Duration) (bool, error) {
	return true, nil
}

func (f *fakeStore) RenewOwnerLease(ctx context.Context, sessionID, ownerID string, ttl time.Duration) (bool, error) {
	return true, nil
}

func (f *fakeStore) ReleaseOwnerLease(ctx context.Context, sessionID, ownerID string) error {
	return nil
}

func (f *fakeStore) NextAnswerID(ctx context.Context, participantID string) (int64, error) {
	return 1, nil
}

func (f *fakeStore) Health(ctx context.Context) error { return nil }
