// Package quizdef defines the read-only quiz definition types the session
// core consumes. Authoring, storage, and import are out of scope; the core
// only reads through QuizStore.
package quizdef

// QuestionType enumerates the supported question shapes.
type QuestionType string

const (
	QuestionMC    QuestionType = "MC"
	QuestionMulti QuestionType = "MULTI"
	QuestionTF    QuestionType = "TF"
)

// QuizType distinguishes a standard run from an elimination bracket.
type QuizType string

const (
	QuizStandard    QuizType = "STANDARD"
	QuizElimination QuizType = "ELIMINATION"
)

// Option is a single answer choice.
type Option struct {
	OptionID  string `json:"optionId"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

// Scoring holds the per-question scoring configuration.
type Scoring struct {
	BasePoints           int64   `json:"basePoints"`
	SpeedBonusMultiplier float64 `json:"speedBonusMultiplier"`
	PartialCreditEnabled bool    `json:"partialCreditEnabled"`
}

// ExamSettings governs negative marking. A Question's ExamSettings, when
// non-nil, overrides the Quiz-level default (DESIGN.md open-question
// decision).
type ExamSettings struct {
	NegativeMarkingEnabled    bool    `json:"negativeMarkingEnabled"`
	NegativeMarkingPercentage float64 `json:"negativeMarkingPercentage"` // [5,100]
}

// Question is one quiz question.
type Question struct {
	QuestionID   string        `json:"questionId"`
	QuestionText string        `json:"questionText"`
	QuestionType QuestionType  `json:"questionType"`
	TimeLimit    int           `json:"timeLimit"` // seconds
	Options      []Option      `json:"options"`
	Scoring      Scoring       `json:"scoring"`
	ExamSettings *ExamSettings `json:"examSettings,omitempty"`
}

// CorrectOptionIDs returns the set of options marked correct.
func (q Question) CorrectOptionIDs() map[string]struct{} {
	set := make(map[string]struct{}, len(q.Options))
	for _, o := range q.Options {
		if o.IsCorrect {
			set[o.OptionID] = struct{}{}
		}
	}
	return set
}

// Quiz is the ordered, read-only quiz definition.
type Quiz struct {
	QuizID       string        `json:"quizId"`
	QuizType     QuizType      `json:"quizType"`
	Questions    []Question    `json:"questions"`
	ExamSettings *ExamSettings `json:"examSettings,omitempty"`
	// EliminationPercentage is the bottom percentage (0-100) of active
	// participants, by leaderboard score, eliminated on each REVEAL when
	// QuizType is ELIMINATION. 0 disables elimination even for an
	// ELIMINATION quiz.
	EliminationPercentage float64 `json:"eliminationPercentage"`
}

// EffectiveExamSettings resolves the quiz-level default against a
// per-question override, per the DESIGN.md decision on negative marking
// scope: question override wins when present.
func (q Quiz) EffectiveExamSettings(question Question) *ExamSettings {
	if question.ExamSettings != nil {
		return question.ExamSettings
	}
	return q.ExamSettings
}

// QuestionAt returns the question at idx, or false if out of range.
func (q Quiz) QuestionAt(idx int) (Question, bool) {
	if idx < 0 || idx >= len(q.Questions) {
		return Question{}, false
	}
	return q.Questions[idx], true
}

// Store is the external collaborator the core reads quiz definitions
// through. Durable quiz storage, authoring, and import are out of scope;
// only this read interface lives in the core.
type Store interface {
	GetQuiz(quizID string) (Quiz, error)
}
