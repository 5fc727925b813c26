package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"quizlive/internal/apperr"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// AnswerRecord is the durable (post-quiz analytics) row. Unlike the Redis
// Answer, this one is batch-written and never read back by the live
// session — it exists for reporting after the session ends.
type AnswerRecord struct {
	ID                   int64     `gorm:"primaryKey;autoIncrement"`
	AnswerID             int64     `gorm:"not null"`
	SessionID            string    `gorm:"index;not null"`
	ParticipantID        string    `gorm:"index;not null"`
	QuestionID           string    `gorm:"not null"`
	SelectedOptionIDs    string    `gorm:"type:text"` // comma-joined; analytics only
	SubmittedAt          time.Time `gorm:"not null"`
	ResponseTimeMs       int64
	IsCorrect            bool
	PointsAwarded        int64
	SpeedBonusApplied    int64
	StreakBonusApplied   int64
	PartialCreditApplied int64
}

func (AnswerRecord) TableName() string { return "answer_records" }

// DurableStore is the post-quiz analytics sink that backs
// Store.BatchInsertAnswers's durable half.
type DurableStore interface {
	BatchInsertAnswers(ctx context.Context, answers []*Answer) error
	Health(ctx context.Context) error
}

// GormDurableStore persists batches to Postgres via GORM, following the
// teacher's connection-pool and logger configuration.
type GormDurableStore struct {
	db *gorm.DB
}

func NewPostgresDB(url string, env string, maxConns, minConns int) (*gorm.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	gormLogger := gormlogger.Default.LogMode(gormlogger.Info)
	if env == "production" {
		gormLogger = gormlogger.Default.LogMode(gormlogger.Error)
	}

	db, err := gorm.Open(postgres.Open(url), &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to connect to durable store: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unable to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(minConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping durable store: %w", err)
	}

	log.Info().Msg("durable store connection established (GORM)")
	return db, nil
}

func NewGormDurableStore(db *gorm.DB) *GormDurableStore {
	return &GormDurableStore{db: db}
}

// BatchInsertAnswers writes a batch inside one transaction. A duplicate
// (answer_id, participant_id) unique-constraint violation — Postgres error
// code 23505 — is treated as already-applied, not a failure: batch inserts
// are idempotent on answerId per spec.md §4.A.
func (g *GormDurableStore) BatchInsertAnswers(ctx context.Context, answers []*Answer) error {
	if len(answers) == 0 {
		return nil
	}

	records := make([]AnswerRecord, 0, len(answers))
	for _, a := range answers {
		records = append(records, AnswerRecord{
			AnswerID:             a.AnswerID,
			SessionID:            a.SessionID,
			ParticipantID:        a.ParticipantID,
			QuestionID:           a.QuestionID,
			SelectedOptionIDs:    joinOptions(a.SelectedOptionIDs),
			SubmittedAt:          a.SubmittedAt,
			ResponseTimeMs:       a.ResponseTimeMs,
			IsCorrect:            a.IsCorrect,
			PointsAwarded:        a.PointsAwarded,
			SpeedBonusApplied:    a.SpeedBonusApplied,
			StreakBonusApplied:   a.StreakBonusApplied,
			PartialCreditApplied: a.PartialCreditApplied,
		})
	}

	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range records {
			if err := tx.Create(&records[i]).Error; err != nil {
				var pqErr *pq.Error
				if errors.As(err, &pqErr) && pqErr.Code == "23505" {
					continue
				}
				return err
			}
		}
		return nil
	})
	if err != nil {
		return apperr.StorageUnavailable(err)
	}
	return nil
}

func (g *GormDurableStore) Health(ctx context.Context) error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return sqlDB.PingContext(pingCtx)
}

func joinOptions(ids []string) string {
	out := ""
	for i, id := range ids {
		if i > 0 {
			out += ","
		}
		out += id
	}
	return out
}

// LoggedDurableStore wraps a DurableStore with timing/outcome logging,
// preserving the "base → logged" decorator order used throughout the
// repository layer.
type LoggedDurableStore struct {
	inner DurableStore
}

func NewLoggedDurableStore(inner DurableStore) *LoggedDurableStore {
	return &LoggedDurableStore{inner: inner}
}

func (l *LoggedDurableStore) BatchInsertAnswers(ctx context.Context, answers []*Answer) error {
	start := time.Now()
	err := l.inner.BatchInsertAnswers(ctx, answers)
	evt := log.Info()
	if err != nil {
		evt = log.Error().Err(err)
	}
	evt.Int("batch_size", len(answers)).Dur("took", time.Since(start)).Msg("durable batch insert")
	return err
}

func (l *LoggedDurableStore) Health(ctx context.Context) error {
	return l.inner.Health(ctx)
}
