package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kastelov/lexitrain/internal/store"
)

// DurableCache is the postgres-backed result cache; *store.Store implements it.
type DurableCache interface {
	GetTranslationCache(ctx context.Context, text, srcLang, tgtLang string, now time.Time) ([]byte, error)
	PutTranslationCache(ctx context.Context, text, srcLang, tgtLang string, payload any, cachedAt time.Time, expiresAt *time.Time) error
	GetValidationCache(ctx context.Context, wordID string, direction store.Direction, expectedNorm, answerNorm string) (bool, string, error)
	PutValidationCache(ctx context.Context, wordID string, direction store.Direction, expectedNorm, answerNorm string, correct bool, comment string, cachedAt time.Time) error
}

const (
	redisKeyPrefix = "lexitrain:"
	redisHotTTL    = 24 * time.Hour
)

// resultCache layers a redis hot cache over the durable postgres cache.
// Redis is optional: with a nil client every lookup goes straight to
// postgres. Cache errors are logged and treated as misses; a broken cache
// must never fail a grading path.
type resultCache struct {
	rdb     *redis.Client
	durable DurableCache
	logger  *zap.Logger
}

// newRedisClient connects a redis hot cache; empty URL disables it.
func newRedisClient(ctx context.Context, url string, logger *zap.Logger) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	logger.Info("redis result cache connected")
	return rdb, nil
}

func translationKey(text, srcLang, tgtLang string) string {
	return redisKeyPrefix + "tr:" + srcLang + ":" + tgtLang + ":" + text
}

func validationKey(wordID string, direction store.Direction, expectedNorm, answerNorm string) string {
	return redisKeyPrefix + "val:" + wordID + ":" + string(direction) + ":" + expectedNorm + "|" + answerNorm
}

func (c *resultCache) getTranslation(ctx context.Context, text, srcLang, tgtLang string, now time.Time) (*Translation, bool) {
	key := translationKey(text, srcLang, tgtLang)
	if c.rdb != nil {
		raw, err := c.rdb.Get(ctx, key).Bytes()
		if err == nil {
			var t Translation
			if json.Unmarshal(raw, &t) == nil {
				return &t, true
			}
		} else if !errors.Is(err, redis.Nil) {
			c.logger.Warn("redis translation lookup failed", zap.Error(err))
		}
	}

	raw, err := c.durable.GetTranslationCache(ctx, text, srcLang, tgtLang, now)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.logger.Warn("durable translation lookup failed", zap.Error(err))
		}
		return nil, false
	}
	var t Translation
	if err := json.Unmarshal(raw, &t); err != nil {
		c.logger.Warn("corrupt translation cache row", zap.Error(err))
		return nil, false
	}
	c.backfillRedis(ctx, key, raw)
	return &t, true
}

func (c *resultCache) putTranslation(ctx context.Context, text, srcLang, tgtLang string, t *Translation, now time.Time) {
	// Translations are cached without expiry.
	if err := c.durable.PutTranslationCache(ctx, text, srcLang, tgtLang, t, now, nil); err != nil {
		c.logger.Warn("durable translation write failed", zap.Error(err))
	}
	if raw, err := json.Marshal(t); err == nil {
		c.backfillRedis(ctx, translationKey(text, srcLang, tgtLang), raw)
	}
}

func (c *resultCache) getValidation(ctx context.Context, wordID string, direction store.Direction, expectedNorm, answerNorm string) (*Verdict, bool) {
	key := validationKey(wordID, direction, expectedNorm, answerNorm)
	if c.rdb != nil {
		raw, err := c.rdb.Get(ctx, key).Bytes()
		if err == nil {
			var v Verdict
			if json.Unmarshal(raw, &v) == nil {
				return &v, true
			}
		} else if !errors.Is(err, redis.Nil) {
			c.logger.Warn("redis validation lookup failed", zap.Error(err))
		}
	}

	correct, comment, err := c.durable.GetValidationCache(ctx, wordID, direction, expectedNorm, answerNorm)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.logger.Warn("durable validation lookup failed", zap.Error(err))
		}
		return nil, false
	}
	v := &Verdict{Correct: correct, Comment: comment}
	if raw, marshalErr := json.Marshal(v); marshalErr == nil {
		c.backfillRedis(ctx, key, raw)
	}
	return v, true
}

func (c *resultCache) putValidation(ctx context.Context, wordID string, direction store.Direction, expectedNorm, answerNorm string, v *Verdict, now time.Time) {
	if err := c.durable.PutValidationCache(ctx, wordID, direction, expectedNorm, answerNorm, v.Correct, v.Comment, now); err != nil {
		c.logger.Warn("durable validation write failed", zap.Error(err))
	}
	if raw, err := json.Marshal(v); err == nil {
		c.backfillRedis(ctx, validationKey(wordID, direction, expectedNorm, answerNorm), raw)
	}
}

func (c *resultCache) backfillRedis(ctx context.Context, key string, raw []byte) {
	if c.rdb == nil {
		return
	}
	if err := c.rdb.Set(ctx, key, raw, redisHotTTL).Err(); err != nil {
		c.logger.Warn("redis cache write failed", zap.Error(err))
	}
}
