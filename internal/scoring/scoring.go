// Package scoring implements the scoring engine (component F): strategy
// objects for base points, speed bonus, streak bonus, partial credit and
// negative marking, composed per question via the quiz's effective exam
// settings. Adapted from the teacher's strategy package: ScoringStrategy
// generalizes from a single flat calculation into a pipeline of
// independently swappable contributions.
package scoring

import (
	"quizlive/internal/quizdef"
)

// Input is everything a Strategy needs to score one submitted answer.
type Input struct {
	Question          quizdef.Question
	ExamSettings      quizdef.ExamSettings
	SelectedOptionIDs []string
	ResponseTimeMs    int64
	QuestionTimeMs    int64 // total time allotted for the question
	CurrentStreak     int64 // streak count prior to this answer, 0 if none
}

// Result is the scoring outcome for one answer.
type Result struct {
	IsCorrect        bool
	PointsAwarded    int64
	SpeedBonus       int64
	StreakBonus      int64
	PartialCredit    int64
	NegativeApplied  int64 // positive magnitude of points deducted
	NewStreak        int64
}

// Strategy computes a Result from an Input. Each concrete strategy owns
// one contribution; Calculator composes them.
type Strategy interface {
	Apply(in Input, acc *Result)
}

// Calculator runs the configured strategies in order and returns the
// final Result. Grounded on the teacher's ScoreCalculator/StrategyFactory
// composition shape.
type Calculator struct {
	strategies []Strategy
}

// NewCalculator builds the default pipeline: correctness -> base points
// -> speed bonus -> streak bonus -> partial credit -> negative marking.
func NewCalculator() *Calculator {
	return &Calculator{
		strategies: []Strategy{
			CorrectnessStrategy{},
			BasePointsStrategy{},
			SpeedBonusStrategy{},
			StreakBonusStrategy{},
			PartialCreditStrategy{},
			NegativeMarkingStrategy{},
		},
	}
}

// NewCalculatorWithStrategies builds a pipeline from a caller-supplied
// strategy list, for tests or alternate quiz rule sets.
func NewCalculatorWithStrategies(strategies ...Strategy) *Calculator {
	return &Calculator{strategies: strategies}
}

// Score runs the pipeline and returns the combined Result. PointsAwarded
// may be negative when negative marking applies — the ≥0 floor is a
// property of the participant's cumulative total (component A), not of a
// single question, so it is not clamped here.
func (c *Calculator) Score(in Input) Result {
	res := Result{NewStreak: in.CurrentStreak}
	for _, s := range c.strategies {
		s.Apply(in, &res)
	}
	return res
}

func optionSetsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}
