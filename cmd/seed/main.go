package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"quizlive/internal/quizdef"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

// Seeds the quizzes table with sample quiz definitions. Quiz authoring is
// out of scope for the core (quizdef.PostgresStore is read-only), so a
// local environment needs something like this to have anything to join.
func main() {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL not set")
	}

	if !strings.Contains(dbURL, "sslmode") {
		if strings.Contains(dbURL, "?") {
			dbURL += "&sslmode=disable"
		} else {
			dbURL += "?sslmode=disable"
		}
	}

	numQuizzes := 20
	if len(os.Args) > 1 {
		if n, err := strconv.Atoi(os.Args[1]); err == nil {
			numQuizzes = n
		}
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Failed to close database: %v", err)
		}
	}()

	if err := db.Ping(); err != nil {
		log.Fatal("Failed to connect:", err)
	}

	fmt.Printf("Starting seed with %d quizzes...\n", numQuizzes)

	if err := seedQuizzes(db, numQuizzes); err != nil {
		log.Fatal(err)
	}

	fmt.Println("Seeding complete!")
}

func seedQuizzes(db *sql.DB, numQuizzes int) error {
	ctx := context.Background()
	batchSize := 500
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	topics := []string{
		"Geography", "Science", "History", "Movies", "Music", "Sports",
		"Literature", "Technology", "Food", "Animals",
	}

	for batch := 0; batch*batchSize < numQuizzes; batch++ {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}

		batchStart := batch * batchSize
		batchEnd := min(batchStart+batchSize, numQuizzes)

		for i := batchStart; i < batchEnd; i++ {
			quiz := randomQuiz(rng, i, topics[rng.Intn(len(topics))])

			questionsJSON, err := json.Marshal(quiz.Questions)
			if err != nil {
				_ = tx.Rollback()
				return err
			}

			var examJSON []byte
			if quiz.ExamSettings != nil {
				examJSON, err = json.Marshal(quiz.ExamSettings)
				if err != nil {
					_ = tx.Rollback()
					return err
				}
			}

			_, err = tx.ExecContext(ctx,
				`INSERT INTO quizzes (quiz_id, quiz_type, questions, exam_settings, elimination_percentage, created_at)
				 VALUES ($1, $2, $3, $4, $5, NOW())
				 ON CONFLICT (quiz_id) DO NOTHING`,
				quiz.QuizID, string(quiz.QuizType), string(questionsJSON), nullableJSON(examJSON), quiz.EliminationPercentage,
			)
			if err != nil {
				_ = tx.Rollback()
				return err
			}
		}

		if err := tx.Commit(); err != nil {
			return err
		}

		progress := min(batchEnd, numQuizzes)
		fmt.Printf("Progress: %d/%d quizzes inserted (%.1f%%)\n", progress, numQuizzes, float64(progress)*100/float64(numQuizzes))
	}

	return nil
}

func nullableJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func randomQuiz(rng *rand.Rand, index int, topic string) quizdef.Quiz {
	numQuestions := 5 + rng.Intn(6)
	questions := make([]quizdef.Question, numQuestions)
	for q := 0; q < numQuestions; q++ {
		correct := rng.Intn(4)
		options := make([]quizdef.Option, 4)
		for o := 0; o < 4; o++ {
			options[o] = quizdef.Option{
				OptionID:  fmt.Sprintf("opt-%d", o),
				Text:      fmt.Sprintf("%s answer %d for question %d", topic, o+1, q+1),
				IsCorrect: o == correct,
			}
		}
		questions[q] = quizdef.Question{
			QuestionID:   fmt.Sprintf("q-%d", q),
			QuestionText: fmt.Sprintf("%s question #%d", topic, q+1),
			QuestionType: quizdef.QuestionMC,
			TimeLimit:    10 + rng.Intn(3)*5,
			Options:      options,
			Scoring: quizdef.Scoring{
				BasePoints:           1000,
				SpeedBonusMultiplier: 0.5,
				PartialCreditEnabled: false,
			},
		}
	}

	quizType := quizdef.QuizStandard
	eliminationPct := 0.0
	if rng.Float32() < 0.2 {
		quizType = quizdef.QuizElimination
		eliminationPct = 25
	}

	return quizdef.Quiz{
		QuizID:                fmt.Sprintf("quiz-%s-%d", strings.ToLower(topic), index),
		QuizType:              quizType,
		Questions:             questions,
		EliminationPercentage: eliminationPct,
	}
}
