package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const lessonColumns = `id, profile_id, started_at, completed_at, planned_count,
	correct, incorrect, word_queue`

func scanLesson(row pgx.Row) (*Lesson, error) {
	var (
		l        Lesson
		queueRaw []byte
	)
	err := row.Scan(&l.ID, &l.ProfileID, &l.StartedAt, &l.CompletedAt,
		&l.PlannedCount, &l.Correct, &l.Incorrect, &queueRaw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan lesson: %w", err)
	}
	if err := json.Unmarshal(queueRaw, &l.WordQueue); err != nil {
		return nil, fmt.Errorf("unmarshal word queue: %w", err)
	}
	return &l, nil
}

// ActiveLesson returns the profile's uncompleted lesson, or ErrNotFound.
func (s *Store) ActiveLesson(ctx context.Context, profileID string) (*Lesson, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+lessonColumns+` FROM lessons
		 WHERE profile_id = $1 AND completed_at IS NULL`, profileID)
	return scanLesson(row)
}

// CreateLesson inserts a new active lesson. The partial unique index on
// (profile_id) WHERE completed_at IS NULL makes a concurrent Start race
// resolve to a single winner; the loser gets ErrConflict and resumes.
func (s *Store) CreateLesson(ctx context.Context, l *Lesson) (*Lesson, error) {
	queueRaw, err := json.Marshal(l.WordQueue)
	if err != nil {
		return nil, fmt.Errorf("marshal word queue: %w", err)
	}

	var created *Lesson
	err = s.withTx(ctx, func(q dbtx) error {
		row := q.QueryRow(ctx, `
			INSERT INTO lessons (profile_id, started_at, planned_count, word_queue)
			VALUES ($1, $2, $3, $4)
			RETURNING `+lessonColumns,
			l.ProfileID, l.StartedAt, l.PlannedCount, queueRaw)
		got, err := scanLesson(row)
		if err != nil {
			return err
		}
		created = got
		return nil
	})
	if err != nil {
		if isUniqueViolation(err, "lessons_one_active") {
			return nil, fmt.Errorf("active lesson exists for profile %s: %w", l.ProfileID, ErrConflict)
		}
		return nil, fmt.Errorf("create lesson: %w", err)
	}
	return created, nil
}

// CompleteLesson stamps completed_at and returns the final row.
func (s *Store) CompleteLesson(ctx context.Context, lessonID string, at time.Time) (*Lesson, error) {
	var completed *Lesson
	err := s.withTx(ctx, func(q dbtx) error {
		row := q.QueryRow(ctx, `
			UPDATE lessons SET completed_at = $2
			WHERE id = $1 AND completed_at IS NULL
			RETURNING `+lessonColumns, lessonID, at)
		got, err := scanLesson(row)
		if err != nil {
			return err
		}
		completed = got
		return nil
	})
	if err != nil {
		return nil, err
	}
	return completed, nil
}

// AttemptedUserWordIDs returns the set of user words already answered in the
// lesson, so the engine can pop the queue's not-yet-attempted head.
func (s *Store) AttemptedUserWordIDs(ctx context.Context, lessonID string) (map[string]bool, error) {
	rows, err := s.db.Query(ctx,
		`SELECT DISTINCT user_word_id FROM lesson_attempts WHERE lesson_id = $1`,
		lessonID)
	if err != nil {
		return nil, fmt.Errorf("attempted words: %w", err)
	}
	defer rows.Close()

	attempted := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan attempted word: %w", err)
		}
		attempted[id] = true
	}
	return attempted, rows.Err()
}

// AnswerUpdate is the new spaced-repetition and status state for a user word,
// decided by the caller from the post-answer facet stat.
type AnswerUpdate struct {
	Status       Status
	IntervalDays int
	EF           float64
	NextReviewAt time.Time
}

// ApplyAnswer records one answer in a single transaction: append the attempt,
// bump the (direction, test_type) facet counters, then apply the caller's
// scheduling/progression decision to the user word and the lesson counters.
// decide must be pure; it runs inside the transaction.
func (s *Store) ApplyAnswer(ctx context.Context, att *LessonAttempt, decide func(uw UserWord, facet WordStat) AnswerUpdate) error {
	return s.withTx(ctx, func(q dbtx) error {
		if _, err := q.Exec(ctx, `
			INSERT INTO lesson_attempts (lesson_id, user_word_id, direction,
				test_type, user_answer, expected, correct, method, attempted_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			att.LessonID, att.UserWordID, att.Direction, att.TestType,
			att.UserAnswer, att.Expected, att.Correct, att.Method, att.AttemptedAt); err != nil {
			return fmt.Errorf("insert attempt: %w", err)
		}

		var facet WordStat
		err := q.QueryRow(ctx, `
			INSERT INTO word_stats (user_word_id, direction, test_type,
				streak_correct, total_attempts, total_correct, total_errors)
			VALUES ($1, $2, $3,
				CASE WHEN $4 THEN 1 ELSE 0 END, 1,
				CASE WHEN $4 THEN 1 ELSE 0 END,
				CASE WHEN $4 THEN 0 ELSE 1 END)
			ON CONFLICT (user_word_id, direction, test_type) DO UPDATE SET
				streak_correct = CASE WHEN $4 THEN word_stats.streak_correct + 1 ELSE 0 END,
				total_attempts = word_stats.total_attempts + 1,
				total_correct  = word_stats.total_correct + CASE WHEN $4 THEN 1 ELSE 0 END,
				total_errors   = word_stats.total_errors + CASE WHEN $4 THEN 0 ELSE 1 END
			RETURNING user_word_id, direction, test_type,
				streak_correct, total_attempts, total_correct, total_errors`,
			att.UserWordID, att.Direction, att.TestType, att.Correct).Scan(
			&facet.UserWordID, &facet.Direction, &facet.TestType,
			&facet.StreakCorrect, &facet.TotalAttempts, &facet.TotalCorrect, &facet.TotalErrors)
		if err != nil {
			return fmt.Errorf("upsert word stat: %w", err)
		}

		row := q.QueryRow(ctx,
			`SELECT `+userWordColumns+` FROM user_words WHERE id = $1 FOR UPDATE`,
			att.UserWordID)
		uw, err := scanUserWord(row)
		if err != nil {
			return fmt.Errorf("lock user word: %w", err)
		}

		update := decide(*uw, facet)
		if _, err := q.Exec(ctx, `
			UPDATE user_words SET status = $2, interval_days = $3, ef = $4,
				next_review_at = $5, last_reviewed_at = $6
			WHERE id = $1`,
			att.UserWordID, update.Status, update.IntervalDays, update.EF,
			update.NextReviewAt, att.AttemptedAt); err != nil {
			return fmt.Errorf("update user word: %w", err)
		}

		if _, err := q.Exec(ctx, `
			UPDATE lessons SET
				correct = correct + CASE WHEN $2 THEN 1 ELSE 0 END,
				incorrect = incorrect + CASE WHEN $2 THEN 0 ELSE 1 END
			WHERE id = $1`,
			att.LessonID, att.Correct); err != nil {
			return fmt.Errorf("update lesson counters: %w", err)
		}
		return nil
	})
}

// FacetStats returns all per-facet counters for a user word.
func (s *Store) FacetStats(ctx context.Context, userWordID string) ([]WordStat, error) {
	rows, err := s.db.Query(ctx, `
		SELECT user_word_id, direction, test_type, streak_correct,
			total_attempts, total_correct, total_errors
		FROM word_stats WHERE user_word_id = $1`, userWordID)
	if err != nil {
		return nil, fmt.Errorf("facet stats: %w", err)
	}
	defer rows.Close()

	var stats []WordStat
	for rows.Next() {
		var st WordStat
		if err := rows.Scan(&st.UserWordID, &st.Direction, &st.TestType,
			&st.StreakCorrect, &st.TotalAttempts, &st.TotalCorrect, &st.TotalErrors); err != nil {
			return nil, fmt.Errorf("scan word stat: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}
