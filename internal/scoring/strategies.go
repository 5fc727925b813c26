package scoring

// CorrectnessStrategy determines IsCorrect by comparing the selected
// option set against the question's correct set exactly (MC/TF need a
// single match, MULTI needs an exact set match — both reduce to set
// equality here since MC/TF questions only ever have one correct option).
type CorrectnessStrategy struct{}

func (CorrectnessStrategy) Apply(in Input, acc *Result) {
	correct := in.Question.CorrectOptionIDs()
	if len(in.SelectedOptionIDs) == 0 {
		acc.IsCorrect = false
		return
	}
	want := make([]string, 0, len(correct))
	for id := range correct {
		want = append(want, id)
	}
	acc.IsCorrect = optionSetsEqual(want, in.SelectedOptionIDs)
}

// BasePointsStrategy awards the question's configured base points on a
// correct answer.
type BasePointsStrategy struct{}

func (BasePointsStrategy) Apply(in Input, acc *Result) {
	if acc.IsCorrect {
		acc.PointsAwarded += in.Question.Scoring.BasePoints
	}
}

// SpeedBonusStrategy scales a bonus by how much of the question's time
// budget remained when the answer was submitted. Only applies to correct
// answers; the bonus is proportional to the fraction of time remaining.
type SpeedBonusStrategy struct{}

func (SpeedBonusStrategy) Apply(in Input, acc *Result) {
	if !acc.IsCorrect || in.Question.Scoring.SpeedBonusMultiplier <= 0 || in.QuestionTimeMs <= 0 {
		return
	}
	remaining := in.QuestionTimeMs - in.ResponseTimeMs
	if remaining < 0 {
		remaining = 0
	}
	fractionRemaining := float64(remaining) / float64(in.QuestionTimeMs)
	bonus := float64(in.Question.Scoring.BasePoints) * in.Question.Scoring.SpeedBonusMultiplier * fractionRemaining
	acc.SpeedBonus = int64(bonus)
	acc.PointsAwarded += acc.SpeedBonus
}

// StreakBonusStrategy rewards consecutive correct answers: a correct
// answer extends the streak by one; once the streak reaches 2 or more
// the bonus is 10% of base points per streak step beyond the first.
type StreakBonusStrategy struct{}

const streakBonusStep = 0.10

func (StreakBonusStrategy) Apply(in Input, acc *Result) {
	if !acc.IsCorrect {
		acc.NewStreak = 0
		return
	}
	acc.NewStreak = in.CurrentStreak + 1
	if acc.NewStreak < 2 {
		return
	}
	ratio := float64(acc.NewStreak-1) * streakBonusStep
	acc.StreakBonus = int64(float64(in.Question.Scoring.BasePoints) * ratio)
	acc.PointsAwarded += acc.StreakBonus
}

// PartialCreditStrategy awards proportional credit on a MULTI question
// when the participant selected a strict, non-empty subset of the
// correct options and no incorrect ones, and the question opts in.
type PartialCreditStrategy struct{}

func (PartialCreditStrategy) Apply(in Input, acc *Result) {
	if acc.IsCorrect || !in.Question.Scoring.PartialCreditEnabled {
		return
	}
	if in.Question.QuestionType != "MULTI" || len(in.SelectedOptionIDs) == 0 {
		return
	}

	correct := in.Question.CorrectOptionIDs()
	if len(correct) == 0 {
		return
	}

	matched := 0
	for _, id := range in.SelectedOptionIDs {
		if _, ok := correct[id]; ok {
			matched++
		} else {
			// any incorrect selection voids partial credit
			return
		}
	}
	if matched == 0 {
		return
	}

	ratio := float64(matched) / float64(len(correct))
	acc.PartialCredit = int64(float64(in.Question.Scoring.BasePoints) * ratio)
	acc.PointsAwarded += acc.PartialCredit
}

// NegativeMarkingStrategy deducts a percentage of base points for a wrong
// answer when the question's effective exam settings enable it.
type NegativeMarkingStrategy struct{}

func (NegativeMarkingStrategy) Apply(in Input, acc *Result) {
	if acc.IsCorrect || acc.PartialCredit > 0 {
		return
	}
	if !in.ExamSettings.NegativeMarkingEnabled {
		return
	}
	deduction := int64(float64(in.Question.Scoring.BasePoints) * in.ExamSettings.NegativeMarkingPercentage / 100.0)
	acc.NegativeApplied = deduction
	acc.PointsAwarded -= deduction
}
