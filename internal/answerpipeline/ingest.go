// Package answerpipeline implements the answer ingest pipeline (component
// E) and the scoring worker that consumes it (component F). Ingest
// validates and records a submission without scoring it; the worker
// scores buffered answers independently, so a slow scoring pass never
// blocks submit_answer acknowledgement. Adapted from the teacher's
// answer-processing flow: DB-first persistence with duplicate detection
// by unique-constraint error, generalized to the session's Redis-backed
// at-most-once check instead of a Postgres-only one.
package answerpipeline

import (
	"context"
	"time"

	"quizlive/internal/apperr"
	"quizlive/internal/clock"
	"quizlive/internal/pubsub"
	"quizlive/internal/quizdef"
	"quizlive/internal/sessionstore"

	"github.com/rs/zerolog/log"
)

// SubmitResult is returned to the transport layer for the
// answer_accepted acknowledgement.
type SubmitResult struct {
	AnswerID       int64
	ResponseTimeMs int64
}

// Ingest validates and records one submit_answer call (spec step 1-5).
// Scoring happens asynchronously in the worker; Ingest never computes
// points.
type Ingest struct {
	store      sessionstore.Store
	quizzes    quizdef.Store
	bus        pubsub.Bus
	clock      clock.Clock
	accumulator *Accumulator
}

func NewIngest(store sessionstore.Store, quizzes quizdef.Store, bus pubsub.Bus, clk clock.Clock, accumulator *Accumulator) *Ingest {
	return &Ingest{store: store, quizzes: quizzes, bus: bus, clock: clk, accumulator: accumulator}
}

// Submit processes one submit_answer call.
func (ig *Ingest) Submit(ctx context.Context, sessionID, participantID, questionID string, selectedOptionIDs []string) (*SubmitResult, error) {
	participant, err := ig.store.GetParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}
	if participant.IsBanned {
		return nil, apperr.New(apperr.CategoryAuthorization, apperr.CodeParticipantBanned, "you have been banned from this session", nil)
	}
	if participant.IsEliminated {
		return nil, apperr.New(apperr.CategoryConflict, apperr.CodeEliminated, "you have been eliminated from this quiz", nil)
	}

	sess, err := ig.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.State != sessionstore.StateActiveQuestion {
		return nil, apperr.New(apperr.CategoryConflict, apperr.CodeWrongState, "no question is currently active", nil)
	}

	quiz, err := ig.quizzes.GetQuiz(sess.QuizID)
	if err != nil {
		return nil, err
	}
	question, ok := quiz.QuestionAt(sess.CurrentQuestionIndex)
	if !ok || question.QuestionID != questionID {
		return nil, apperr.New(apperr.CategoryConflict, apperr.CodeWrongState, "question has already moved on", nil)
	}

	if existing, err := ig.store.GetAnswer(ctx, participantID, questionID); err == nil && existing != nil {
		return nil, apperr.New(apperr.CategoryConflict, apperr.CodeDuplicateAnswer, "you already answered this question", nil)
	}

	var startedAt time.Time
	if sess.QuestionStartedAt != nil {
		startedAt = *sess.QuestionStartedAt
	} else {
		startedAt = ig.clock.Now()
	}
	responseTimeMs := ig.clock.Now().Sub(startedAt).Milliseconds()
	maxMs := int64(question.TimeLimit) * 1000
	responseTimeMs = clamp(responseTimeMs, 0, maxMs)

	answerID, err := ig.store.NextAnswerID(ctx, participantID)
	if err != nil {
		return nil, err
	}

	answer := &sessionstore.Answer{
		AnswerID:          answerID,
		SessionID:         sessionID,
		ParticipantID:     participantID,
		QuestionID:        questionID,
		SelectedOptionIDs: selectedOptionIDs,
		SubmittedAt:       ig.clock.Now(),
		ResponseTimeMs:    responseTimeMs,
		Scored:            false,
	}

	if err := ig.store.AppendAnswer(ctx, answer); err != nil {
		return nil, err
	}
	if err := ig.store.BufferAnswerForScoring(ctx, sessionID, questionID, answer); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Str("participant_id", participantID).Msg("failed to buffer answer for scoring")
	}
	ig.accumulator.Add(answer)

	topic := pubsub.ScoringTopic(sessionID)
	if err := ig.bus.Publish(ctx, topic, []byte(questionID+":"+participantID)); err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("failed to publish scoring message")
	}

	return &SubmitResult{AnswerID: answerID, ResponseTimeMs: responseTimeMs}, nil
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
