package quizdef

import (
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

// quizRow is the GORM model backing a quiz definition. Quizzes are
// authored and imported by the external tooling quizdef explicitly keeps
// out of scope; this table is what that tooling writes to and what the
// core reads from. Questions and scoring are stored as a single JSONB
// payload rather than normalized across tables, since the core only ever
// reads a whole quiz at once and never queries into its questions.
type quizRow struct {
	QuizID                string    `gorm:"column:quiz_id;primaryKey"`
	QuizType              string    `gorm:"column:quiz_type;not null"`
	Questions             string    `gorm:"column:questions;type:jsonb;not null"`
	ExamSettings          *string   `gorm:"column:exam_settings;type:jsonb"`
	EliminationPercentage float64   `gorm:"column:elimination_percentage"`
	CreatedAt             time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (quizRow) TableName() string { return "quizzes" }

// PostgresStore is the concrete, read-only Store the session core is wired
// against in production: a thin GORM read over a table some external
// authoring tool populates. Grounded on the durable answer store's GORM
// wiring (sessionstore.GormDurableStore) since both sit on the same
// Postgres connection pool.
type PostgresStore struct {
	db *gorm.DB
}

func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// GetQuiz loads and decodes a single quiz definition by ID.
func (s *PostgresStore) GetQuiz(quizID string) (Quiz, error) {
	var row quizRow
	if err := s.db.First(&row, "quiz_id = ?", quizID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Quiz{}, ErrQuizNotFound
		}
		return Quiz{}, err
	}
	return row.toQuiz()
}

func (r quizRow) toQuiz() (Quiz, error) {
	var questions []Question
	if err := json.Unmarshal([]byte(r.Questions), &questions); err != nil {
		return Quiz{}, err
	}
	var exam *ExamSettings
	if r.ExamSettings != nil {
		exam = &ExamSettings{}
		if err := json.Unmarshal([]byte(*r.ExamSettings), exam); err != nil {
			return Quiz{}, err
		}
	}
	return Quiz{
		QuizID:                r.QuizID,
		QuizType:              QuizType(r.QuizType),
		Questions:             questions,
		ExamSettings:          exam,
		EliminationPercentage: r.EliminationPercentage,
	}, nil
}

// ErrQuizNotFound is returned by any Store implementation when the
// requested quiz does not exist.
var ErrQuizNotFound = errors.New("quiz not found")
