package answerpipeline

import (
	"context"
	"testing"
	"time"

	"quizlive/internal/apperr"
	"quizlive/internal/clock"
	"quizlive/internal/pubsub"
	"quizlive/internal/sessionstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activeSession() *sessionstore.Session {
	now := time.Now()
	return &sessionstore.Session{
		SessionID:            "sess-1",
		QuizID:               "quiz-1",
		State:                sessionstore.StateActiveQuestion,
		CurrentQuestionIndex: 0,
		QuestionStartedAt:    &now,
	}
}

func newTestIngest(store *fakeStore, clk clock.Clock) *Ingest {
	acc := NewAccumulator(100, time.Hour, func(ctx context.Context, answers []*sessionstore.Answer) error { return nil })
	return NewIngest(store, fakeQuizStore{quiz: sampleQuiz()}, pubsub.NewInMemBus(), clk, acc)
}

func TestIngest_Submit_RecordsAnswerAndAcknowledges(t *testing.T) {
	store := newFakeStore(activeSession())
	store.participants["p1"] = &sessionstore.Participant{ParticipantID: "p1", SessionID: "sess-1"}

	ig := newTestIngest(store, clock.Real{})

	result, err := ig.Submit(context.Background(), "sess-1", "p1", "q1", []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.AnswerID)

	stored, _ := store.GetAnswer(context.Background(), "p1", "q1")
	require.NotNil(t, stored)
	assert.Equal(t, []string{"a"}, stored.SelectedOptionIDs)
}

func TestIngest_Submit_RejectsBannedParticipant(t *testing.T) {
	store := newFakeStore(activeSession())
	store.participants["p1"] = &sessionstore.Participant{ParticipantID: "p1", IsBanned: true}
	ig := newTestIngest(store, clock.Real{})

	_, err := ig.Submit(context.Background(), "sess-1", "p1", "q1", []string{"a"})
	require.Error(t, err)
	ae := apperr.As(err)
	require.NotNil(t, ae)
	assert.Equal(t, apperr.CodeParticipantBanned, ae.Code)
}

func TestIngest_Submit_RejectsEliminatedParticipant(t *testing.T) {
	store := newFakeStore(activeSession())
	store.participants["p1"] = &sessionstore.Participant{ParticipantID: "p1", IsEliminated: true}
	ig := newTestIngest(store, clock.Real{})

	_, err := ig.Submit(context.Background(), "sess-1", "p1", "q1", []string{"a"})
	require.Error(t, err)
	ae := apperr.As(err)
	require.NotNil(t, ae)
	assert.Equal(t, apperr.CodeEliminated, ae.Code)
}

func TestIngest_Submit_RejectsWhenNoQuestionActive(t *testing.T) {
	sess := activeSession()
	sess.State = sessionstore.StateReveal
	store := newFakeStore(sess)
	store.participants["p1"] = &sessionstore.Participant{ParticipantID: "p1"}
	ig := newTestIngest(store, clock.Real{})

	_, err := ig.Submit(context.Background(), "sess-1", "p1", "q1", []string{"a"})
	require.Error(t, err)
	ae := apperr.As(err)
	require.NotNil(t, ae)
	assert.Equal(t, apperr.CodeWrongState, ae.Code)
}

func TestIngest_Submit_RejectsStaleQuestionID(t *testing.T) {
	store := newFakeStore(activeSession())
	store.participants["p1"] = &sessionstore.Participant{ParticipantID: "p1"}
	ig := newTestIngest(store, clock.Real{})

	_, err := ig.Submit(context.Background(), "sess-1", "p1", "q-stale", []string{"a"})
	require.Error(t, err)
	ae := apperr.As(err)
	require.NotNil(t, ae)
	assert.Equal(t, apperr.CodeWrongState, ae.Code)
}

func TestIngest_Submit_RejectsDuplicateAnswer(t *testing.T) {
	store := newFakeStore(activeSession())
	store.participants["p1"] = &sessionstore.Participant{ParticipantID: "p1"}
	ig := newTestIngest(store, clock.Real{})

	_, err := ig.Submit(context.Background(), "sess-1", "p1", "q1", []string{"a"})
	require.NoError(t, err)

	_, err = ig.Submit(context.Background(), "sess-1", "p1", "q1", []string{"a"})
	require.Error(t, err)
	ae := apperr.As(err)
	require.NotNil(t, ae)
	assert.Equal(t, apperr.CodeDuplicateAnswer, ae.Code)
}

func TestIngest_Submit_ClampsResponseTimeToQuestionLimit(t *testing.T) {
	started := time.Now().Add(-time.Hour)
	sess := activeSession()
	sess.QuestionStartedAt = &started
	store := newFakeStore(sess)
	store.participants["p1"] = &sessionstore.Participant{ParticipantID: "p1"}
	ig := newTestIngest(store, clock.Real{})

	result, err := ig.Submit(context.Background(), "sess-1", "p1", "q1", []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, int64(10000), result.ResponseTimeMs) // q1's TimeLimit is 10s
}
