package store

import (
	"context"
	"fmt"
	"time"
)

// ProfileStats are the per-user counters surfaced by /stats.
type ProfileStats struct {
	TotalWords    int
	New           int
	Learning      int
	Reviewing     int
	Mastered      int
	DueNow        int
	TotalAttempts int
	TotalCorrect  int
}

// Accuracy returns the overall correct-answer ratio in percent.
func (p ProfileStats) Accuracy() float64 {
	if p.TotalAttempts == 0 {
		return 0
	}
	return 100 * float64(p.TotalCorrect) / float64(p.TotalAttempts)
}

// GetProfileStats aggregates vocabulary counters for one profile.
func (s *Store) GetProfileStats(ctx context.Context, profileID string, now time.Time) (*ProfileStats, error) {
	var ps ProfileStats
	err := s.db.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'new'),
			COUNT(*) FILTER (WHERE status = 'learning'),
			COUNT(*) FILTER (WHERE status = 'reviewing'),
			COUNT(*) FILTER (WHERE status = 'mastered'),
			COUNT(*) FILTER (WHERE next_review_at IS NOT NULL AND next_review_at <= $2)
		FROM user_words WHERE profile_id = $1`,
		profileID, now).Scan(
		&ps.TotalWords, &ps.New, &ps.Learning, &ps.Reviewing, &ps.Mastered, &ps.DueNow)
	if err != nil {
		return nil, fmt.Errorf("profile word counts: %w", err)
	}

	err = s.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(ws.total_attempts), 0), COALESCE(SUM(ws.total_correct), 0)
		FROM word_stats ws
		JOIN user_words uw ON uw.id = ws.user_word_id
		WHERE uw.profile_id = $1`, profileID).Scan(&ps.TotalAttempts, &ps.TotalCorrect)
	if err != nil {
		return nil, fmt.Errorf("profile attempt totals: %w", err)
	}
	return &ps, nil
}

// GlobalStats are process-wide counters for the operational API.
type GlobalStats struct {
	Users          int `json:"users"`
	Profiles       int `json:"profiles"`
	Words          int `json:"words"`
	ActiveLessons  int `json:"active_lessons"`
	LessonsToday   int `json:"lessons_today"`
	AttemptsToday  int `json:"attempts_today"`
}

// GetGlobalStats aggregates counters across all users.
func (s *Store) GetGlobalStats(ctx context.Context, now time.Time) (*GlobalStats, error) {
	dayStart := now.Truncate(24 * time.Hour)
	var gs GlobalStats
	err := s.db.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM profiles),
			(SELECT COUNT(*) FROM words),
			(SELECT COUNT(*) FROM lessons WHERE completed_at IS NULL),
			(SELECT COUNT(*) FROM lessons WHERE started_at >= $1),
			(SELECT COUNT(*) FROM lesson_attempts WHERE attempted_at >= $1)`,
		dayStart).Scan(&gs.Users, &gs.Profiles, &gs.Words,
		&gs.ActiveLessons, &gs.LessonsToday, &gs.AttemptsToday)
	if err != nil {
		return nil, fmt.Errorf("global stats: %w", err)
	}
	return &gs, nil
}
