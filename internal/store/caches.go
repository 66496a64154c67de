package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// GetTranslationCache returns the cached payload for a normalized
// (text, src, tgt) key, or ErrNotFound. Expired rows are treated as misses.
func (s *Store) GetTranslationCache(ctx context.Context, text, srcLang, tgtLang string, now time.Time) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRow(ctx, `
		SELECT payload FROM translation_cache
		WHERE text = $1 AND src_lang = $2 AND tgt_lang = $3
		  AND (expires_at IS NULL OR expires_at > $4)`,
		text, srcLang, tgtLang, now).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get translation cache: %w", err)
	}
	return payload, nil
}

// PutTranslationCache stores a translation payload. A nil expiresAt means no
// expiry. Concurrent writers last-write-win.
func (s *Store) PutTranslationCache(ctx context.Context, text, srcLang, tgtLang string, payload any, cachedAt time.Time, expiresAt *time.Time) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal translation payload: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO translation_cache (text, src_lang, tgt_lang, payload, cached_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (text, src_lang, tgt_lang)
		DO UPDATE SET payload = EXCLUDED.payload, cached_at = EXCLUDED.cached_at,
			expires_at = EXCLUDED.expires_at`,
		text, srcLang, tgtLang, raw, cachedAt, expiresAt)
	if err != nil {
		return fmt.Errorf("put translation cache: %w", err)
	}
	return nil
}

// GetValidationCache returns a cached verdict for the normalized answer key,
// or ErrNotFound.
func (s *Store) GetValidationCache(ctx context.Context, wordID string, direction Direction, expectedNorm, answerNorm string) (correct bool, comment string, err error) {
	err = s.db.QueryRow(ctx, `
		SELECT correct, comment FROM validation_cache
		WHERE word_id = $1 AND direction = $2
		  AND expected_norm = $3 AND answer_norm = $4`,
		wordID, direction, expectedNorm, answerNorm).Scan(&correct, &comment)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, "", ErrNotFound
	}
	if err != nil {
		return false, "", fmt.Errorf("get validation cache: %w", err)
	}
	return correct, comment, nil
}

// PutValidationCache stores a model verdict keyed on normalized strings.
func (s *Store) PutValidationCache(ctx context.Context, wordID string, direction Direction, expectedNorm, answerNorm string, correct bool, comment string, cachedAt time.Time) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO validation_cache (word_id, direction, expected_norm,
			answer_norm, correct, comment, cached_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (word_id, direction, expected_norm, answer_norm)
		DO UPDATE SET correct = EXCLUDED.correct, comment = EXCLUDED.comment,
			cached_at = EXCLUDED.cached_at`,
		wordID, direction, expectedNorm, answerNorm, correct, comment, cachedAt)
	if err != nil {
		return fmt.Errorf("put validation cache: %w", err)
	}
	return nil
}
