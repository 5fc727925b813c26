// Package recovery implements the Recovery Service (component G):
// reassembling the session_recovered snapshot a reconnecting client
// needs to resume exactly where it left off. Grounded on the teacher's
// room state-broadcast shape (buildStateMessage), generalized from a
// single in-memory Room into a read path over the Session Store.
package recovery

import (
	"context"
	"time"

	"quizlive/internal/apperr"
	"quizlive/internal/clock"
	"quizlive/internal/quizdef"
	"quizlive/internal/retryutil"
	"quizlive/internal/sessionstore"
	"quizlive/internal/wireproto"
)

// SessionExpiry bounds how long a participant record without a live
// session is still eligible for recovery.
const SessionExpiry = 30 * time.Minute

// storeRetryOptions retries a transient storage read before it fails a
// reconnect attempt outright (component J, used by G per spec.md §4.G).
// Recover's reads are idempotent, so a retry never risks a double effect.
var storeRetryOptions = retryutil.Options{
	MaxRetries:        2,
	InitialDelay:      25 * time.Millisecond,
	BackoffMultiplier: 2,
	IsRetryable:       retryutil.IsTransient(),
}

// Service assembles recovery snapshots.
type Service struct {
	store   sessionstore.Store
	quizzes quizdef.Store
	clock   clock.Clock
}

func New(store sessionstore.Store, quizzes quizdef.Store, clk clock.Clock) *Service {
	return &Service{store: store, quizzes: quizzes, clock: clk}
}

// Recover runs the spec's reconnect_session sequence (steps 1-3; steps 4-5
// — re-registering the transport and idempotent repeat-call handling —
// are the caller's responsibility, since those touch the connection
// registry and have no state of their own to track here).
func (s *Service) Recover(ctx context.Context, sessionID, participantID, sessionToken string) (*wireproto.SessionRecovered, error) {
	var participant *sessionstore.Participant
	if err := retryutil.WithBackoff(ctx, func(ctx context.Context) error {
		p, err := s.store.GetParticipant(ctx, participantID)
		participant = p
		return err
	}, storeRetryOptions); err != nil {
		return nil, err
	}
	if participant == nil || participant.SessionToken != sessionToken {
		return nil, apperr.NotFound(apperr.CodeParticipantNotFound, "participant not found")
	}
	if participant.IsBanned {
		return nil, apperr.New(apperr.CategoryAuthorization, apperr.CodeParticipantBanned, "you have been banned from this session", nil)
	}

	var sess *sessionstore.Session
	if err := retryutil.WithBackoff(ctx, func(ctx context.Context) error {
		sv, err := s.store.GetSession(ctx, sessionID)
		sess = sv
		return err
	}, storeRetryOptions); err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, apperr.NotFound(apperr.CodeSessionNotFound, "session not found")
	}
	if sess.State == sessionstore.StateEnded {
		return nil, apperr.Conflict(apperr.CodeSessionEnded, "this session has ended")
	}
	if !participant.IsActive && s.clock.Now().Sub(participant.JoinedAt) > SessionExpiry {
		return nil, apperr.Conflict(apperr.CodeSessionExpired, "your session has expired")
	}

	quiz, err := s.quizzes.GetQuiz(sess.QuizID)
	if err != nil {
		return nil, err
	}

	var currentQuestion *wireproto.QuestionStarted
	remaining := 0
	if sess.State == sessionstore.StateActiveQuestion {
		if question, ok := quiz.QuestionAt(sess.CurrentQuestionIndex); ok {
			currentQuestion = questionToWire(question)
			if sess.QuestionStartedAt != nil {
				deadline := sess.QuestionStartedAt.Add(time.Duration(question.TimeLimit) * time.Second)
				remaining = int(deadline.Sub(s.clock.Now()).Seconds())
				if remaining < 0 {
					remaining = 0
				}
			}
		}
	}

	rank, err := s.store.GetRank(ctx, sessionID, participantID)
	if err != nil {
		rank = 0
	}
	leaderboard, err := s.store.GetLeaderboard(ctx, sessionID, 10)
	if err != nil {
		leaderboard = nil
	}

	rows := make([]wireproto.LeaderboardRow, 0, len(leaderboard))
	for _, e := range leaderboard {
		nickname := ""
		if p, perr := s.store.GetParticipant(ctx, e.ParticipantID); perr == nil && p != nil {
			nickname = p.Nickname
		}
		rows = append(rows, wireproto.LeaderboardRow{
			ParticipantID: e.ParticipantID,
			Nickname:      nickname,
			Rank:          e.Rank,
			Score:         e.Score,
		})
	}

	return &wireproto.SessionRecovered{
		State:            string(sess.State),
		CurrentQuestion:  currentQuestion,
		RemainingSeconds: remaining,
		TotalScore:       participant.TotalScore,
		Rank:             rank,
		Leaderboard:      rows,
		StreakCount:      participant.StreakCount,
		IsEliminated:     participant.IsEliminated,
		IsSpectator:      participant.IsSpectator,
	}, nil
}

func questionToWire(q quizdef.Question) *wireproto.QuestionStarted {
	opts := make([]wireproto.WireOption, 0, len(q.Options))
	for _, o := range q.Options {
		opts = append(opts, wireproto.WireOption{OptionID: o.OptionID, Text: o.Text})
	}
	return &wireproto.QuestionStarted{
		QuestionID:   q.QuestionID,
		QuestionText: q.QuestionText,
		QuestionType: string(q.QuestionType),
		Options:      opts,
		TimeLimit:    q.TimeLimit,
	}
}
