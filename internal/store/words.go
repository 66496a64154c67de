package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const wordColumns = `id, text, language, COALESCE(cefr, ''), translations,
	examples, forms, freq_rank, created_at`

func scanWord(row pgx.Row) (*Word, error) {
	var (
		w                                      Word
		translationsRaw, examplesRaw, formsRaw []byte
	)
	err := row.Scan(&w.ID, &w.Text, &w.Language, &w.CEFR,
		&translationsRaw, &examplesRaw, &formsRaw, &w.FreqRank, &w.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan word: %w", err)
	}
	if err := json.Unmarshal(translationsRaw, &w.Translations); err != nil {
		return nil, fmt.Errorf("unmarshal translations: %w", err)
	}
	if err := json.Unmarshal(examplesRaw, &w.Examples); err != nil {
		return nil, fmt.Errorf("unmarshal examples: %w", err)
	}
	if err := json.Unmarshal(formsRaw, &w.Forms); err != nil {
		return nil, fmt.Errorf("unmarshal forms: %w", err)
	}
	return &w, nil
}

func wordJSON(w *Word) (translations, examples, forms []byte, err error) {
	if w.Translations == nil {
		w.Translations = map[string][]string{}
	}
	if w.Examples == nil {
		w.Examples = []Example{}
	}
	if w.Forms == nil {
		w.Forms = map[string]string{}
	}
	if translations, err = json.Marshal(w.Translations); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal translations: %w", err)
	}
	if examples, err = json.Marshal(w.Examples); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal examples: %w", err)
	}
	if forms, err = json.Marshal(w.Forms); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal forms: %w", err)
	}
	return translations, examples, forms, nil
}

// GetWordByText looks up a dictionary entry by its unique key.
func (s *Store) GetWordByText(ctx context.Context, text, language string) (*Word, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+wordColumns+` FROM words WHERE text = $1 AND language = $2`,
		text, language)
	return scanWord(row)
}

// GetWord looks up a dictionary entry by id.
func (s *Store) GetWord(ctx context.Context, id string) (*Word, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+wordColumns+` FROM words WHERE id = $1`, id)
	return scanWord(row)
}

// AddWordToVocabulary upserts the dictionary entry and attaches it to the
// profile's vocabulary in one transaction. The returned UserWord is the
// existing row when the profile already has the word.
func (s *Store) AddWordToVocabulary(ctx context.Context, profileID string, word *Word, defaultEF float64) (*UserWord, error) {
	translations, examples, forms, err := wordJSON(word)
	if err != nil {
		return nil, err
	}

	var result *UserWord
	err = s.withTx(ctx, func(q dbtx) error {
		row := q.QueryRow(ctx, `
			INSERT INTO words (text, language, cefr, translations, examples, forms, freq_rank)
			VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)
			ON CONFLICT (text, language) DO UPDATE SET
				translations = EXCLUDED.translations,
				examples = EXCLUDED.examples,
				forms = EXCLUDED.forms,
				cefr = COALESCE(words.cefr, EXCLUDED.cefr)
			RETURNING id`,
			word.Text, word.Language, word.CEFR, translations, examples, forms, word.FreqRank)
		var wordID string
		if err := row.Scan(&wordID); err != nil {
			return fmt.Errorf("upsert word: %w", err)
		}
		word.ID = wordID

		row = q.QueryRow(ctx, `
			INSERT INTO user_words (profile_id, word_id, ef)
			VALUES ($1, $2, $3)
			ON CONFLICT (profile_id, word_id) DO UPDATE SET word_id = EXCLUDED.word_id
			RETURNING id, profile_id, word_id, status, added_at,
				last_reviewed_at, next_review_at, interval_days, ef`,
			profileID, wordID, defaultEF)
		uw, err := scanUserWord(row)
		if err != nil {
			return fmt.Errorf("attach user word: %w", err)
		}
		result = uw
		return nil
	})
	return result, err
}

const userWordColumns = `id, profile_id, word_id, status, added_at,
	last_reviewed_at, next_review_at, interval_days, ef`

func scanUserWord(row pgx.Row) (*UserWord, error) {
	var uw UserWord
	err := row.Scan(&uw.ID, &uw.ProfileID, &uw.WordID, &uw.Status, &uw.AddedAt,
		&uw.LastReviewedAt, &uw.NextReviewAt, &uw.IntervalDays, &uw.EF)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user word: %w", err)
	}
	return &uw, nil
}

// FindUserWord returns the profile's entry for a word, or ErrNotFound.
func (s *Store) FindUserWord(ctx context.Context, profileID, wordID string) (*UserWord, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+userWordColumns+` FROM user_words
		 WHERE profile_id = $1 AND word_id = $2`, profileID, wordID)
	return scanUserWord(row)
}

// GetUserWord looks up a vocabulary entry by id.
func (s *Store) GetUserWord(ctx context.Context, id string) (*UserWord, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+userWordColumns+` FROM user_words WHERE id = $1`, id)
	return scanUserWord(row)
}

// LessonCandidates loads the profile's non-mastered vocabulary with dictionary
// entries and per-facet stats, eagerly in one pass. The selector scores these
// rows without touching the store again.
func (s *Store) LessonCandidates(ctx context.Context, profileID string) ([]*Candidate, error) {
	rows, err := s.db.Query(ctx, `
		SELECT uw.id, uw.profile_id, uw.word_id, uw.status, uw.added_at,
			uw.last_reviewed_at, uw.next_review_at, uw.interval_days, uw.ef,
			w.id, w.text, w.language, COALESCE(w.cefr, ''), w.translations,
			w.examples, w.forms, w.freq_rank, w.created_at
		FROM user_words uw
		JOIN words w ON w.id = uw.word_id
		WHERE uw.profile_id = $1 AND uw.status <> 'mastered'
		ORDER BY uw.added_at`, profileID)
	if err != nil {
		return nil, fmt.Errorf("lesson candidates: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*Candidate)
	var candidates []*Candidate
	for rows.Next() {
		var (
			c                                      Candidate
			translationsRaw, examplesRaw, formsRaw []byte
		)
		err := rows.Scan(
			&c.UserWord.ID, &c.UserWord.ProfileID, &c.UserWord.WordID,
			&c.UserWord.Status, &c.UserWord.AddedAt, &c.UserWord.LastReviewedAt,
			&c.UserWord.NextReviewAt, &c.UserWord.IntervalDays, &c.UserWord.EF,
			&c.Word.ID, &c.Word.Text, &c.Word.Language, &c.Word.CEFR,
			&translationsRaw, &examplesRaw, &formsRaw, &c.Word.FreqRank, &c.Word.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		if err := json.Unmarshal(translationsRaw, &c.Word.Translations); err != nil {
			return nil, fmt.Errorf("unmarshal translations: %w", err)
		}
		if err := json.Unmarshal(examplesRaw, &c.Word.Examples); err != nil {
			return nil, fmt.Errorf("unmarshal examples: %w", err)
		}
		if err := json.Unmarshal(formsRaw, &c.Word.Forms); err != nil {
			return nil, fmt.Errorf("unmarshal forms: %w", err)
		}
		candidates = append(candidates, &c)
		byID[c.UserWord.ID] = &c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	statRows, err := s.db.Query(ctx, `
		SELECT ws.user_word_id, ws.direction, ws.test_type,
			ws.streak_correct, ws.total_attempts, ws.total_correct, ws.total_errors
		FROM word_stats ws
		JOIN user_words uw ON uw.id = ws.user_word_id
		WHERE uw.profile_id = $1`, profileID)
	if err != nil {
		return nil, fmt.Errorf("candidate stats: %w", err)
	}
	defer statRows.Close()

	for statRows.Next() {
		var st WordStat
		if err := statRows.Scan(&st.UserWordID, &st.Direction, &st.TestType,
			&st.StreakCorrect, &st.TotalAttempts, &st.TotalCorrect, &st.TotalErrors); err != nil {
			return nil, fmt.Errorf("scan word stat: %w", err)
		}
		if c, ok := byID[st.UserWordID]; ok {
			c.Stats = append(c.Stats, st)
		}
	}
	return candidates, statRows.Err()
}

// DistractorPool returns same-language, same-level dictionary entries other
// than the excluded word, ordered deterministically by frequency rank.
func (s *Store) DistractorPool(ctx context.Context, language, cefr, excludeWordID string, limit int) ([]*Word, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+wordColumns+` FROM words
		WHERE language = $1 AND ($2 = '' OR cefr = $2) AND id <> $3
		ORDER BY freq_rank NULLS LAST, text
		LIMIT $4`, language, cefr, excludeWordID, limit)
	if err != nil {
		return nil, fmt.Errorf("distractor pool: %w", err)
	}
	defer rows.Close()

	var words []*Word
	for rows.Next() {
		w, err := scanWord(rows)
		if err != nil {
			return nil, err
		}
		words = append(words, w)
	}
	return words, rows.Err()
}
