package answerpipeline

import (
	"context"
	"sync"
	"time"

	"quizlive/internal/connreg"
	"quizlive/internal/pubsub"
	"quizlive/internal/quizdef"
	"quizlive/internal/retryutil"
	"quizlive/internal/scoring"
	"quizlive/internal/sessionstore"
	"quizlive/internal/statemachine"
	"quizlive/internal/wireproto"

	"github.com/rs/zerolog/log"
)

// storeRetryOptions retries a transient participant/leaderboard write
// before scoreOne gives up on a question and falls back to the last valid
// snapshot (component J, used by F per spec.md §4.F step 6).
var storeRetryOptions = retryutil.Options{
	MaxRetries:        2,
	InitialDelay:      25 * time.Millisecond,
	BackoffMultiplier: 2,
	IsRetryable:       retryutil.IsTransient(),
}

// Worker is the scoring worker (component F): subscribes to scoring:*,
// scores each buffered answer exactly once per (participantId,
// questionId), updates the participant atomically, and republishes the
// leaderboard delta. It also implements statemachine.Finalizer so the
// state machine can request a synchronous drain at question end.
type Worker struct {
	store      sessionstore.Store
	quizzes    quizdef.Store
	bus        pubsub.Bus
	registry   *connreg.Registry
	calculator *scoring.Calculator

	mu      sync.Mutex
	scored  map[string]int64 // "sessionId:questionId:participantId" -> last scored answerId
}

func NewWorker(store sessionstore.Store, quizzes quizdef.Store, bus pubsub.Bus, registry *connreg.Registry) *Worker {
	return &Worker{
		store:      store,
		quizzes:    quizzes,
		bus:        bus,
		registry:   registry,
		calculator: scoring.NewCalculator(),
		scored:     make(map[string]int64),
	}
}

// Run subscribes to every session's scoring topic matching sessionID and
// processes messages until ctx is cancelled. One Run call handles exactly
// one session; callers spawn one per live session the process owns or is
// interested in (workers may run on a different process than the state
// machine driver, per spec's "one or more processes subscribe").
func (w *Worker) Run(ctx context.Context, sessionID string) error {
	sub, err := w.bus.Subscribe(ctx, pubsub.ScoringTopic(sessionID))
	if err != nil {
		return err
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-sub.Messages():
			if !ok {
				return nil
			}
			questionID, participantID := splitScoringMessage(string(msg.Payload))
			if questionID == "" || participantID == "" {
				continue
			}
			if err := w.scoreOne(ctx, sessionID, questionID, participantID); err != nil {
				log.Error().Err(err).
					Str("session_id", sessionID).
					Str("question_id", questionID).
					Str("participant_id", participantID).
					Msg("scoring failed, retaining last valid snapshot")
				controller := connreg.RoleController
				w.registry.Broadcast(sessionID, wireproto.EventScoringFailed, wireproto.ScoringFailed{
					QuestionID:    questionID,
					ParticipantID: participantID,
					Reason:        err.Error(),
				}, &controller)
			}
		}
	}
}

// scoreOne implements spec.md §4.F steps 1-5, with the idempotence marker
// from step "Idempotence" guarding against double-counting a replayed
// message.
func (w *Worker) scoreOne(ctx context.Context, sessionID, questionID, participantID string) error {
	dedupeKey := sessionID + ":" + questionID + ":" + participantID

	answer, err := w.store.GetAnswer(ctx, participantID, questionID)
	if err != nil {
		return err
	}

	w.mu.Lock()
	if last, ok := w.scored[dedupeKey]; ok && last == answer.AnswerID {
		w.mu.Unlock()
		return nil // already scored this exact answer
	}
	w.mu.Unlock()

	sess, err := w.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	quiz, err := w.quizzes.GetQuiz(sess.QuizID)
	if err != nil {
		return err
	}
	question, ok := quiz.QuestionAt(sess.CurrentQuestionIndex)
	if !ok || question.QuestionID != questionID {
		// question already moved on; score against the stored question
		// definition by id instead of the current index
		for _, q := range quiz.Questions {
			if q.QuestionID == questionID {
				question = q
				ok = true
				break
			}
		}
		if !ok {
			return nil
		}
	}

	participant, err := w.store.GetParticipant(ctx, participantID)
	if err != nil {
		return err
	}

	examSettings := quiz.EffectiveExamSettings(question)
	result := w.calculator.Score(scoring.Input{
		Question:          question,
		ExamSettings:      examSettingsOrZero(examSettings),
		SelectedOptionIDs: answer.SelectedOptionIDs,
		ResponseTimeMs:    answer.ResponseTimeMs,
		QuestionTimeMs:    int64(question.TimeLimit) * 1000,
		CurrentStreak:     int64(participant.StreakCount),
	})

	newTotalScore := participant.TotalScore + result.PointsAwarded
	if newTotalScore < 0 {
		newTotalScore = 0
	}
	newTotalTime := participant.TotalTimeMs + answer.ResponseTimeMs

	err = retryutil.WithBackoff(ctx, func(ctx context.Context) error {
		return w.store.UpdateParticipantScore(ctx, participantID, newTotalScore, newTotalTime, result.PointsAwarded, int(result.NewStreak))
	}, storeRetryOptions)
	if err != nil {
		return err
	}

	scorerScore := scorerLeaderboardScore(w.store, newTotalScore, newTotalTime)
	err = retryutil.WithBackoff(ctx, func(ctx context.Context) error {
		return w.store.UpsertLeaderboard(ctx, sessionID, participantID, scorerScore)
	}, storeRetryOptions)
	if err != nil {
		return err
	}

	answer.IsCorrect = result.IsCorrect
	answer.PointsAwarded = result.PointsAwarded
	answer.SpeedBonusApplied = result.SpeedBonus
	answer.StreakBonusApplied = result.StreakBonus
	answer.PartialCreditApplied = result.PartialCredit
	answer.Scored = true
	if err := w.store.MarkAnswerScored(ctx, answer); err != nil {
		log.Error().Err(err).Str("participant_id", participantID).Msg("failed to persist scored answer fields")
	}

	w.mu.Lock()
	w.scored[dedupeKey] = answer.AnswerID
	w.mu.Unlock()

	rankings, err := w.store.GetLeaderboard(ctx, sessionID, 10)
	if err == nil {
		w.publishLeaderboard(ctx, sessionID, rankings)
	}

	return nil
}

func (w *Worker) publishLeaderboard(ctx context.Context, sessionID string, entries []sessionstore.LeaderboardEntry) {
	rows := make([]wireproto.LeaderboardRow, 0, len(entries))
	for _, e := range entries {
		p, err := w.store.GetParticipant(ctx, e.ParticipantID)
		nickname := ""
		if err == nil {
			nickname = p.Nickname
		}
		rows = append(rows, wireproto.LeaderboardRow{
			ParticipantID: e.ParticipantID,
			Nickname:      nickname,
			Rank:          e.Rank,
			Score:         e.Score,
		})
	}
	w.registry.Broadcast(sessionID, wireproto.EventLeaderboardUpdated, wireproto.LeaderboardUpdated{Rankings: rows}, nil)
}

// Finalize implements statemachine.Finalizer: drain the question's
// scoring buffer synchronously and report whether every buffered answer
// could be scored before the driver's finalize deadline.
func (w *Worker) Finalize(ctx context.Context, sessionID, questionID string) <-chan statemachine.FinalizeResult {
	ack := make(chan statemachine.FinalizeResult, 1)
	go func() {
		buffered, err := w.store.DrainAnswerBuffer(ctx, sessionID, questionID)
		incomplete := err != nil

		optionCounts := make(map[string]int)
		correctCount := 0
		for _, a := range buffered {
			if scoreErr := w.scoreOne(ctx, sessionID, questionID, a.ParticipantID); scoreErr != nil {
				incomplete = true
				continue
			}
			scored, getErr := w.store.GetAnswer(ctx, a.ParticipantID, questionID)
			if getErr != nil {
				incomplete = true
				continue
			}
			if scored.IsCorrect {
				correctCount++
			}
			for _, optID := range scored.SelectedOptionIDs {
				optionCounts[optID]++
			}
		}

		sess, err := w.store.GetSession(ctx, sessionID)
		correctOptionIDs := []string{}
		if err == nil {
			if quiz, qerr := w.quizzes.GetQuiz(sess.QuizID); qerr == nil {
				if q, ok := quiz.QuestionAt(sess.CurrentQuestionIndex); ok && q.QuestionID == questionID {
					for id := range q.CorrectOptionIDs() {
						correctOptionIDs = append(correctOptionIDs, id)
					}
				}
			}
		}

		ack <- statemachine.FinalizeResult{
			StatsIncomplete:  incomplete,
			CorrectOptionIDs: correctOptionIDs,
			Stats: wireproto.RevealStats{
				TotalAnswers:    len(buffered),
				CorrectCount:    correctCount,
				OptionCounts:    optionCounts,
				StatsIncomplete: incomplete,
			},
		}
	}()
	return ack
}

func splitScoringMessage(payload string) (questionID, participantID string) {
	for i := len(payload) - 1; i >= 0; i-- {
		if payload[i] == ':' {
			return payload[:i], payload[i+1:]
		}
	}
	return "", ""
}

func examSettingsOrZero(es *quizdef.ExamSettings) quizdef.ExamSettings {
	if es == nil {
		return quizdef.ExamSettings{}
	}
	return *es
}

// scorerLeaderboardScore asks the store's configured scorer (exposed via
// the RedisStore's Score method) for the composite rank key; falls back
// to a plain score-only key for implementations that don't expose one.
func scorerLeaderboardScore(store sessionstore.Store, totalScore, totalTimeMs int64) float64 {
	if scorer, ok := store.(interface {
		Score(totalScore, totalTimeMs int64) float64
	}); ok {
		return scorer.Score(totalScore, totalTimeMs)
	}
	return float64(totalScore)
}
