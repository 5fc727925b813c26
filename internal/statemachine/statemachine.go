// Package statemachine drives the per-session question lifecycle
// (component D): one Driver instance per live session, owned by the
// process holding that session's owner lease. Adapted from the teacher's
// room.Run ticker loop: the single-goroutine select loop generalizes
// here into phase transitions gated by a CAS on session.state instead of
// an in-memory phase field, so a competing owner can never advance the
// same session concurrently.
package statemachine

import (
	"context"
	"sync"
	"time"

	"quizlive/internal/clock"
	"quizlive/internal/connreg"
	"quizlive/internal/pubsub"
	"quizlive/internal/quizdef"
	"quizlive/internal/sessionstore"
	"quizlive/internal/wireproto"

	"github.com/rs/zerolog/log"
)

// Finalizer is the scoring worker's side of question finalization: drain
// the scoring buffer for (sessionID, questionID) and report whether the
// leaderboard it published is complete.
type Finalizer interface {
	Finalize(ctx context.Context, sessionID, questionID string) (ack <-chan FinalizeResult)
}

// FinalizeResult is what a Finalizer reports back once a question's
// buffered answers have been drained and scored.
type FinalizeResult struct {
	StatsIncomplete bool
	Stats           wireproto.RevealStats
	CorrectOptionIDs []string
}

// Driver runs one session's state machine. StartSession blocks until the
// context is cancelled or the session reaches ENDED.
type Driver struct {
	sessionID string
	ownerID   string

	store     sessionstore.Store
	quizzes   quizdef.Store
	bus       pubsub.Bus
	registry  *connreg.Registry
	finalizer Finalizer
	clock     clock.Clock
	finalizeWait time.Duration

	mu              sync.Mutex
	quiz            quizdef.Quiz
	manualEndCh     chan struct{}
	manualNextCh    chan struct{}
	manualEndSessCh chan struct{}
}

// New constructs a Driver for one session. The caller must already hold
// the session's owner lease.
func New(sessionID, ownerID string, store sessionstore.Store, quizzes quizdef.Store, bus pubsub.Bus, registry *connreg.Registry, finalizer Finalizer, clk clock.Clock, finalizeWait time.Duration) *Driver {
	return &Driver{
		sessionID:       sessionID,
		ownerID:         ownerID,
		store:           store,
		quizzes:         quizzes,
		bus:             bus,
		registry:        registry,
		finalizer:       finalizer,
		clock:           clk,
		finalizeWait:    finalizeWait,
		manualEndCh:     make(chan struct{}, 1),
		manualNextCh:    make(chan struct{}, 1),
		manualEndSessCh: make(chan struct{}, 1),
	}
}

// RequestEndQuestion signals a manual (admin) end_question event.
func (d *Driver) RequestEndQuestion() {
	select {
	case d.manualEndCh <- struct{}{}:
	default:
	}
}

// RequestNextQuestion signals a manual next_question event.
func (d *Driver) RequestNextQuestion() {
	select {
	case d.manualNextCh <- struct{}{}:
	default:
	}
}

// RequestEndSession signals an admin end_session event, valid from any state.
func (d *Driver) RequestEndSession() {
	select {
	case d.manualEndSessCh <- struct{}{}:
	default:
	}
}

// PauseQuestion captures remainingAtPause so a resume can re-arm the
// question deadline for exactly the time left. A no-op outside
// ACTIVE_QUESTION.
func (d *Driver) PauseQuestion(ctx context.Context) error {
	sess, err := d.store.GetSession(ctx, d.sessionID)
	if err != nil {
		return err
	}
	if sess.State != sessionstore.StateActiveQuestion || sess.QuestionStartedAt == nil || sess.RemainingAtPause != nil {
		return nil
	}

	question, ok := d.quiz.QuestionAt(sess.CurrentQuestionIndex)
	if !ok {
		return nil
	}
	deadline := sess.QuestionStartedAt.Add(time.Duration(question.TimeLimit) * time.Second)
	remaining := deadline.Sub(d.clock.Now()).Milliseconds()
	if remaining < 0 {
		remaining = 0
	}
	sess.RemainingAtPause = &remaining
	return d.store.PutSession(ctx, sess)
}

// ResumeQuestion re-arms end_question for now + remainingAtPause.
func (d *Driver) ResumeQuestion(ctx context.Context) error {
	sess, err := d.store.GetSession(ctx, d.sessionID)
	if err != nil {
		return err
	}
	if sess.State != sessionstore.StateActiveQuestion || sess.RemainingAtPause == nil {
		return nil
	}

	question, ok := d.quiz.QuestionAt(sess.CurrentQuestionIndex)
	if !ok {
		return nil
	}
	// The tick loop derives deadline = questionStartedAt + timeLimit, so
	// re-arming for now + remainingAtPause means shifting questionStartedAt
	// back by (timeLimit - remainingAtPause).
	started := d.clock.Now().Add(time.Duration(*sess.RemainingAtPause)*time.Millisecond - time.Duration(question.TimeLimit)*time.Second)
	sess.QuestionStartedAt = &started
	sess.RemainingAtPause = nil
	return d.store.PutSession(ctx, sess)
}

// StartSession transitions LOBBY -> ACTIVE_QUESTION(0) and begins the run
// loop. Blocks until the session reaches ENDED or ctx is cancelled.
func (d *Driver) StartSession(ctx context.Context) error {
	sess, err := d.store.GetSession(ctx, d.sessionID)
	if err != nil {
		return err
	}
	quiz, err := d.quizzes.GetQuiz(sess.QuizID)
	if err != nil {
		return err
	}
	d.quiz = quiz

	ok, err := d.casTransition(ctx, sessionstore.StateLobby, sessionstore.StateActiveQuestion)
	if err != nil {
		return err
	}
	if !ok {
		// Another owner already moved it; reread and continue the loop
		// from whatever state it is actually in.
		log.Warn().Str("session_id", d.sessionID).Msg("start_session CAS rejected, resuming from current state")
	} else {
		if err := d.enterActiveQuestion(ctx, 0); err != nil {
			return err
		}
	}

	return d.run(ctx)
}

// run is the main select loop, one goroutine per owned session.
func (d *Driver) run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.manualEndSessCh:
			if err := d.endSession(ctx); err != nil {
				return err
			}
			return nil
		case <-d.manualEndCh:
			if err := d.transitionToReveal(ctx); err != nil {
				log.Error().Err(err).Str("session_id", d.sessionID).Msg("manual end_question failed")
			}
		case <-d.manualNextCh:
			if err := d.transitionToNextOrEnd(ctx); err != nil {
				log.Error().Err(err).Str("session_id", d.sessionID).Msg("manual next_question failed")
			}
		case <-ticker.C:
			if done, err := d.tick(ctx); err != nil {
				log.Error().Err(err).Str("session_id", d.sessionID).Msg("tick failed")
			} else if done {
				return nil
			}
		}
	}
}

// tick evaluates timers once per second. Returns done=true once the
// session has reached ENDED.
func (d *Driver) tick(ctx context.Context) (bool, error) {
	sess, err := d.store.GetSession(ctx, d.sessionID)
	if err != nil {
		return false, err
	}

	switch sess.State {
	case sessionstore.StateActiveQuestion:
		if sess.QuestionStartedAt == nil || sess.RemainingAtPause != nil {
			return false, nil
		}
		question, ok := d.quiz.QuestionAt(sess.CurrentQuestionIndex)
		if !ok {
			return false, d.endSession(ctx)
		}
		deadline := sess.QuestionStartedAt.Add(time.Duration(question.TimeLimit) * time.Second)
		remaining := int(deadline.Sub(d.clock.Now()).Seconds())
		if remaining < 0 {
			remaining = 0
		}
		d.registry.Broadcast(d.sessionID, wireproto.EventTimerTick, wireproto.TimerTick{RemainingSeconds: remaining}, nil)

		if !d.clock.Now().Before(deadline) {
			return false, d.transitionToReveal(ctx)
		}
	case sessionstore.StateEnded:
		return true, nil
	}
	return false, nil
}

func (d *Driver) enterActiveQuestion(ctx context.Context, idx int) error {
	question, ok := d.quiz.QuestionAt(idx)
	if !ok {
		return d.endSession(ctx)
	}

	sess, err := d.store.GetSession(ctx, d.sessionID)
	if err != nil {
		return err
	}
	now := d.clock.Now()
	sess.CurrentQuestionIndex = idx
	sess.QuestionStartedAt = &now
	sess.RemainingAtPause = nil
	if err := d.store.PutSession(ctx, sess); err != nil {
		return err
	}

	wireOpts := make([]wireproto.WireOption, 0, len(question.Options))
	for _, o := range question.Options {
		wireOpts = append(wireOpts, wireproto.WireOption{OptionID: o.OptionID, Text: o.Text})
	}
	d.registry.Broadcast(d.sessionID, wireproto.EventQuestionStarted, wireproto.QuestionStarted{
		QuestionID:   question.QuestionID,
		QuestionText: question.QuestionText,
		QuestionType: string(question.QuestionType),
		Options:      wireOpts,
		TimeLimit:    question.TimeLimit,
	}, nil)

	log.Info().Str("session_id", d.sessionID).Int("question_index", idx).Msg("question started")
	return nil
}

// transitionToReveal implements the ACTIVE_QUESTION -> REVEAL edge:
// stop accepting answers, request F to finalize, broadcast
// answer_revealed, and apply elimination if the quiz is ELIMINATION type.
func (d *Driver) transitionToReveal(ctx context.Context) error {
	sess, err := d.store.GetSession(ctx, d.sessionID)
	if err != nil {
		return err
	}
	if sess.State != sessionstore.StateActiveQuestion {
		return nil // already moved on; idempotent no-op
	}

	ok, err := d.casTransition(ctx, sessionstore.StateActiveQuestion, sessionstore.StateReveal)
	if err != nil {
		return err
	}
	if !ok {
		return nil // raced with another owner's end_question
	}

	question, qok := d.quiz.QuestionAt(sess.CurrentQuestionIndex)
	if !qok {
		return d.endSession(ctx)
	}

	result := d.awaitFinalize(ctx, question.QuestionID)

	d.registry.Broadcast(d.sessionID, wireproto.EventAnswerRevealed, wireproto.AnswerRevealed{
		QuestionID:       question.QuestionID,
		CorrectOptionIDs: result.CorrectOptionIDs,
		Stats:            result.Stats,
	}, nil)

	if d.quiz.QuizType == quizdef.QuizElimination && d.quiz.EliminationPercentage > 0 {
		if err := d.applyElimination(ctx); err != nil {
			log.Error().Err(err).Str("session_id", d.sessionID).Msg("elimination pass failed")
		}
	}

	return nil
}

// awaitFinalize waits up to finalizeWait for the scoring worker's
// acknowledgement, proceeding with an incomplete-stats result on timeout
// per spec's finalize handshake.
func (d *Driver) awaitFinalize(ctx context.Context, questionID string) FinalizeResult {
	if d.finalizer == nil {
		return FinalizeResult{StatsIncomplete: true, Stats: wireproto.RevealStats{StatsIncomplete: true}}
	}

	ack := d.finalizer.Finalize(ctx, d.sessionID, questionID)
	select {
	case result := <-ack:
		return result
	case <-time.After(d.finalizeWait):
		log.Warn().Str("session_id", d.sessionID).Str("question_id", questionID).Msg("finalize handshake timed out")
		return FinalizeResult{StatsIncomplete: true, Stats: wireproto.RevealStats{StatsIncomplete: true}}
	case <-ctx.Done():
		return FinalizeResult{StatsIncomplete: true, Stats: wireproto.RevealStats{StatsIncomplete: true}}
	}
}

// applyElimination marks the bottom eliminationPercentage of still-active
// participants, by leaderboard score, as eliminated.
func (d *Driver) applyElimination(ctx context.Context) error {
	participants, err := d.store.ListParticipants(ctx, d.sessionID)
	if err != nil {
		return err
	}

	active := make([]*sessionstore.Participant, 0, len(participants))
	for _, p := range participants {
		if p.IsActive && !p.IsEliminated && !p.IsSpectator {
			active = append(active, p)
		}
	}
	if len(active) == 0 {
		return nil
	}

	cut := int(float64(len(active)) * d.quiz.EliminationPercentage / 100.0)
	if cut <= 0 {
		return nil
	}

	leaderboard, err := d.store.GetLeaderboard(ctx, d.sessionID, len(active))
	if err != nil {
		return err
	}
	rank := make(map[string]int, len(leaderboard))
	for _, entry := range leaderboard {
		rank[entry.ParticipantID] = entry.Rank
	}

	// sort active participants by leaderboard rank descending (worst first)
	worstFirst := append([]*sessionstore.Participant(nil), active...)
	for i := 1; i < len(worstFirst); i++ {
		for j := i; j > 0 && rank[worstFirst[j].ParticipantID] > rank[worstFirst[j-1].ParticipantID]; j-- {
			worstFirst[j], worstFirst[j-1] = worstFirst[j-1], worstFirst[j]
		}
	}

	for i := 0; i < cut && i < len(worstFirst); i++ {
		p := worstFirst[i]
		if err := d.store.SetParticipantEliminated(ctx, p.ParticipantID, true); err != nil {
			log.Error().Err(err).Str("participant_id", p.ParticipantID).Msg("failed to mark participant eliminated")
			continue
		}
	}
	return nil
}

// transitionToNextOrEnd implements REVEAL -> ACTIVE_QUESTION(idx+1) or
// REVEAL -> ENDED if the question just revealed was the last one.
func (d *Driver) transitionToNextOrEnd(ctx context.Context) error {
	sess, err := d.store.GetSession(ctx, d.sessionID)
	if err != nil {
		return err
	}
	if sess.State != sessionstore.StateReveal {
		return nil
	}

	nextIdx := sess.CurrentQuestionIndex + 1
	if nextIdx >= len(d.quiz.Questions) {
		return d.endSession(ctx)
	}

	ok, err := d.casTransition(ctx, sessionstore.StateReveal, sessionstore.StateActiveQuestion)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return d.enterActiveQuestion(ctx, nextIdx)
}

// endSession implements the `any -> ENDED` edge, valid from any state.
func (d *Driver) endSession(ctx context.Context) error {
	sess, err := d.store.GetSession(ctx, d.sessionID)
	if err != nil {
		return err
	}
	if sess.State == sessionstore.StateEnded {
		return nil
	}

	ok, err := d.casTransition(ctx, sess.State, sessionstore.StateEnded)
	if err != nil {
		return err
	}
	if !ok {
		// Reread once: a racing end_session may have already landed.
		sess, err = d.store.GetSession(ctx, d.sessionID)
		if err != nil {
			return err
		}
		if sess.State != sessionstore.StateEnded {
			return nil
		}
	}

	d.registry.Broadcast(d.sessionID, wireproto.EventSessionEnded, wireproto.SessionEnded{}, nil)
	log.Info().Str("session_id", d.sessionID).Msg("session ended")
	return nil
}

// casTransition wraps Store.CASSessionState with the idempotent-accept
// rule: a rejected CAS where the current state already equals next is
// treated as success (a competing actor already applied this transition).
func (d *Driver) casTransition(ctx context.Context, expected, next sessionstore.State) (bool, error) {
	ok, err := d.store.CASSessionState(ctx, d.sessionID, expected, next)
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	sess, err := d.store.GetSession(ctx, d.sessionID)
	if err != nil {
		return false, err
	}
	return sess.State == next, nil
}
