package answerpipeline

import (
	"context"
	"sync"
	"time"

	"quizlive/internal/sessionstore"
)

// fakeStore is a minimal in-memory sessionstore.Store for ingest/worker
// tests. It also implements Score so scorerLeaderboardScore picks the
// composite path, mirroring RedisStore's embedded scorer.
type fakeStore struct {
	mu sync.Mutex

	session      *sessionstore.Session
	participants map[string]*sessionstore.Participant
	answers      map[string]*sessionstore.Answer // participantID:questionID
	buffer       map[string][]*sessionstore.Answer
	leaderboard  []sessionstore.LeaderboardEntry
	nextAnswerID int64

	upsertCalls int
}

func newFakeStore(sess *sessionstore.Session) *fakeStore {
	return &fakeStore{
		session:      sess,
		participants: make(map[string]*sessionstore.Participant),
		answers:      make(map[string]*sessionstore.Answer),
		buffer:       make(map[string][]*sessionstore.Answer),
	}
}

func answerKey(participantID, questionID string) string { return participantID + ":" + questionID }

func (f *fakeStore) Score(totalScore, totalTimeMs int64) float64 {
	return sessionstore.CompositeIntScorer{}.Score(totalScore, totalTimeMs)
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
	return false, nil
}

func (f *fakeStore) GetParticipant(ctx context.Context, participantID string) (*sessionstore.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.participants[participantID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
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
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.participants[participantID]
	if !ok {
		return nil
	}
	p.TotalScore = totalScore
	p.TotalTimeMs = totalTimeMs
	p.LastQuestionScore = lastQuestionScore
	p.StreakCount = streakCount
	return nil
}

func (f *fakeStore) SetParticipantEliminated(ctx context.Context, participantID string, eliminated bool) error {
	return nil
}

func (f *fakeStore) UpsertLeaderboard(ctx context.Context, sessionID, participantID string, score float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertCalls++
	return nil
}

func (f *fakeStore) GetLeaderboard(ctx context.Context, sessionID string, topN int) ([]sessionstore.LeaderboardEntry, error) {
	return f.leaderboard, nil
}

func (f *fakeStore) GetRank(ctx context.Context, sessionID, participantID string) (int, error) {
	return 0, nil
}

func (f *fakeStore) AppendAnswer(ctx context.Context, answer *sessionstore.Answer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *answer
	f.answers[answerKey(answer.ParticipantID, answer.QuestionID)] = &cp
	return nil
}

func (f *fakeStore) GetAnswer(ctx context.Context, participantID, questionID string) (*sessionstore.Answer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.answers[answerKey(participantID, questionID)]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (f *fakeStore) MarkAnswerScored(ctx context.Context, answer *sessionstore.Answer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *answer
	f.answers[answerKey(answer.ParticipantID, answer.QuestionID)] = &cp
	return nil
}

func (f *fakeStore) BatchInsertAnswers(ctx context.Context, answers []*sessionstore.Answer) error {
	return nil
}

func (f *fakeStore) BufferAnswerForScoring(ctx context.Context, sessionID, questionID string, answer *sessionstore.Answer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := sessionID + ":" + questionID
	f.buffer[key] = append(f.buffer[key], answer)
	return nil
}

func (f *fakeStore) DrainAnswerBuffer(ctx context.Context, sessionID, questionID string) ([]*sessionstore.Answer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := sessionID + ":" + questionID
	out := f.buffer[key]
	delete(f.buffer, key)
	return out, nil
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
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextAnswerID++
	return f.nextAnswerID, nil
}

func (f *fakeStore) Health(ctx context.Context) error { return nil }
