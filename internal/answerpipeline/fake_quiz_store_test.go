package answerpipeline

import "quizlive/internal/quizdef"

type fakeQuizStore struct {
	quiz quizdef.Quiz
}

func (f fakeQuizStore) GetQuiz(quizID string) (quizdef.Quiz, error) {
	return f.quiz, nil
}

func sampleQuiz() quizdef.Quiz {
	return quizdef.Quiz{
		QuizID: "quiz-1",
		Questions: []quizdef.Question{
			{
				QuestionID:   "q1",
				QuestionType: quizdef.QuestionMC,
				TimeLimit:    10,
				Options: []quizdef.Option{
					{OptionID: "a", IsCorrect: true},
					{OptionID: "b"},
				},
				Scoring: quizdef.Scoring{BasePoints: 1000},
			},
		},
	}
}
