package recovery

import (
	"context"
	"testing"
	"time"

	"quizlive/internal/clock"
	"quizlive/internal/quizdef"
	"quizlive/internal/sessionstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quizWithOneQuestion() quizdef.Quiz {
	return quizdef.Quiz{
		QuizID: "quiz-1",
		Questions: []quizdef.Question{
			{QuestionID: "q1", TimeLimit: 30, Options: []quizdef.Option{{OptionID: "a"}}},
		},
	}
}

func TestRecover_ReturnsSnapshotForActiveQuestion(t *testing.T) {
	started := time.Now().Add(-10 * time.Second)
	store := newFakeStore()
	store.session = &sessionstore.Session{
		SessionID: "sess-1", QuizID: "quiz-1", State: sessionstore.StateActiveQuestion,
		CurrentQuestionIndex: 0, QuestionStartedAt: &started,
	}
	store.participants["p1"] = &sessionstore.Participant{
		ParticipantID: "p1", SessionToken: "tok-1", IsActive: true, TotalScore: 500,
	}
	store.rank = 2
	store.leaderboard = []sessionstore.LeaderboardEntry{{ParticipantID: "p1", Score: 500, Rank: 2}}

	svc := New(store, fakeQuizStore{quiz: quizWithOneQuestion()}, clock.Real{})

	snap, err := svc.Recover(context.Background(), "sess-1", "p1", "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "ACTIVE_QUESTION", snap.State)
	require.NotNil(t, snap.CurrentQuestion)
	assert.Equal(t, "q1", snap.CurrentQuestion.QuestionID)
	assert.InDelta(t, 20, snap.RemainingSeconds, 2)
	assert.Equal(t, int64(500), snap.TotalScore)
	assert.Equal(t, 2, snap.Rank)
	require.Len(t, snap.Leaderboard, 1)
	assert.Equal(t, "p1", snap.Leaderboard[0].ParticipantID)
}

func TestRecover_RejectsWrongSessionToken(t *testing.T) {
	store := newFakeStore()
	store.participants["p1"] = &sessionstore.Participant{ParticipantID: "p1", SessionToken: "tok-1"}
	svc := New(store, fakeQuizStore{quiz: quizWithOneQuestion()}, clock.Real{})

	_, err := svc.Recover(context.Background(), "sess-1", "p1", "wrong-token")
	require.Error(t, err)
}

func TestRecover_RejectsBannedParticipant(t *testing.T) {
	store := newFakeStore()
	store.session = &sessionstore.Session{SessionID: "sess-1", State: sessionstore.StateLobby}
	store.participants["p1"] = &sessionstore.Participant{ParticipantID: "p1", SessionToken: "tok-1", IsBanned: true}
	svc := New(store, fakeQuizStore{quiz: quizWithOneQuestion()}, clock.Real{})

	_, err := svc.Recover(context.Background(), "sess-1", "p1", "tok-1")
	require.Error(t, err)
}

func TestRecover_RejectsEndedSession(t *testing.T) {
	store := newFakeStore()
	store.session = &sessionstore.Session{SessionID: "sess-1", State: sessionstore.StateEnded}
	store.participants["p1"] = &sessionstore.Participant{ParticipantID: "p1", SessionToken: "tok-1"}
	svc := New(store, fakeQuizStore{quiz: quizWithOneQuestion()}, clock.Real{})

	_, err := svc.Recover(context.Background(), "sess-1", "p1", "tok-1")
	require.Error(t, err)
}

func TestRecover_RejectsExpiredInactiveParticipant(t *testing.T) {
	store := newFakeStore()
	store.session = &sessionstore.Session{SessionID: "sess-1", State: sessionstore.StateLobby}
	store.participants["p1"] = &sessionstore.Participant{
		ParticipantID: "p1", SessionToken: "tok-1", IsActive: false,
		JoinedAt: time.Now().Add(-time.Hour),
	}
	svc := New(store, fakeQuizStore{quiz: quizWithOneQuestion()}, clock.Real{})

	_, err := svc.Recover(context.Background(), "sess-1", "p1", "tok-1")
	require.Error(t, err)
}

func TestRecover_AllowsRecentlyInactiveParticipant(t *testing.T) {
	store := newFakeStore()
	store.session = &sessionstore.Session{SessionID: "sess-1", State: sessionstore.StateLobby}
	store.participants["p1"] = &sessionstore.Participant{
		ParticipantID: "p1", SessionToken: "tok-1", IsActive: false,
		JoinedAt: time.Now().Add(-time.Minute),
	}
	svc := New(store, fakeQuizStore{quiz: quizWithOneQuestion()}, clock.Real{})

	_, err := svc.Recover(context.Background(), "sess-1", "p1", "tok-1")
	require.NoError(t, err)
}

func TestRecover_NoCurrentQuestionOutsideActiveQuestion(t *testing.T) {
	store := newFakeStore()
	store.session = &sessionstore.Session{SessionID: "sess-1", State: sessionstore.StateReveal, CurrentQuestionIndex: 0}
	store.participants["p1"] = &sessionstore.Participant{ParticipantID: "p1", SessionToken: "tok-1", IsActive: true}
	svc := New(store, fakeQuizStore{quiz: quizWithOneQuestion()}, clock.Real{})

	snap, err := svc.Recover(context.Background(), "sess-1", "p1", "tok-1")
	require.NoError(t, err)
	assert.Nil(t, snap.CurrentQuestion)
}
