package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/kastelov/lexitrain/internal/clock"
	"github.com/kastelov/lexitrain/internal/config"
	"github.com/kastelov/lexitrain/internal/provider"
	"github.com/kastelov/lexitrain/internal/store"
)

var (
	// ErrTranslationUnavailable signals that no translation could be produced
	// and no cached result exists. Word additions fail loudly on it.
	ErrTranslationUnavailable = errors.New("translation unavailable")

	// ErrModelShape signals that the model reply did not match the required
	// JSON shape after retries.
	ErrModelShape = errors.New("model reply has unexpected shape")
)

// Translation is the dictionary entry produced for a word.
type Translation struct {
	Translations []string          `json:"translations"`
	Examples     []store.Example   `json:"examples"`
	Forms        map[string]string `json:"forms"`
}

// Verdict is the model's judgement of a free-form answer.
type Verdict struct {
	Correct bool   `json:"correct"`
	Comment string `json:"comment"`
}

// ValidationQuery identifies one answer-grading request. ExpectedNorm and
// AnswerNorm must already be normalized so that equivalent answers share a
// cache entry.
type ValidationQuery struct {
	WordID       string
	Direction    store.Direction
	Question     string
	Expected     string
	Answer       string
	ExpectedNorm string
	AnswerNorm   string
	SrcLang      string
	TgtLang      string
	CommentLang  string
}

const (
	callMaxAttempts  = 3
	callRetryBase    = 2 * time.Second
	callRetryCap     = 10 * time.Second
	gradeTemperature = 0.0
)

// Gateway is the single path to the model provider. Every call goes through
// the result cache, then the rate limiter, the in-flight cap and the circuit
// breaker, in that order.
type Gateway struct {
	provider provider.Provider
	cache    *resultCache
	limiter  *rate.Limiter
	inflight *semaphore.Weighted
	breaker  *breaker
	timeout  time.Duration
	clock    clock.Clock
	logger   *zap.Logger
}

// NewGateway wires a gateway from configuration. rdb may be nil.
func NewGateway(cfg config.LLMConfig, p provider.Provider, durable DurableCache, rdb *redis.Client, clk clock.Clock, logger *zap.Logger) *Gateway {
	return &Gateway{
		provider: p,
		cache:    &resultCache{rdb: rdb, durable: durable, logger: logger},
		limiter:  rate.NewLimiter(rate.Limit(float64(cfg.RatePerMin)/60.0), cfg.RatePerMin),
		inflight: semaphore.NewWeighted(int64(cfg.MaxInflight)),
		breaker:  newBreaker(cfg.CircuitFailThreshold, cfg.CircuitRecovery(), clk),
		timeout:  cfg.CallTimeout(),
		clock:    clk,
		logger:   logger,
	}
}

// NewRedisClient connects the optional hot cache. An empty URL returns a nil
// client, which the gateway accepts.
func NewRedisClient(ctx context.Context, url string, logger *zap.Logger) (*redis.Client, error) {
	return newRedisClient(ctx, url, logger)
}

// BreakerState reports the circuit breaker state for health reporting.
func (g *Gateway) BreakerState() BreakerState { return g.breaker.State() }

// Translate returns the dictionary entry for text, from cache when possible.
// A cache hit never touches the provider.
func (g *Gateway) Translate(ctx context.Context, text, srcLang, tgtLang string) (*Translation, error) {
	if t, ok := g.cache.getTranslation(ctx, text, srcLang, tgtLang, g.clock.Now()); ok {
		return t, nil
	}

	raw, err := g.call(ctx, &provider.CompletionRequest{
		System:      translateSystem,
		User:        translateUser(text, srcLang, tgtLang),
		Temperature: gradeTemperature,
		JSONOnly:    true,
	})
	if err != nil {
		g.logger.Warn("translation call failed",
			zap.String("text", text), zap.Error(err))
		return nil, fmt.Errorf("%w: %s", ErrTranslationUnavailable, err)
	}

	var t Translation
	if err := json.Unmarshal([]byte(raw), &t); err != nil || len(t.Translations) == 0 {
		g.logger.Warn("translation reply rejected", zap.String("text", text))
		return nil, fmt.Errorf("%w: translation for %q", ErrModelShape, text)
	}
	if t.Forms == nil {
		t.Forms = map[string]string{}
	}

	g.cache.putTranslation(ctx, text, srcLang, tgtLang, &t, g.clock.Now())
	return &t, nil
}

// Validate grades a free-form answer. Identical queries are answered from
// cache without a provider call. Any failure to obtain a well-formed verdict
// returns an error; the caller decides how to grade in that case.
func (g *Gateway) Validate(ctx context.Context, q *ValidationQuery) (*Verdict, error) {
	if v, ok := g.cache.getValidation(ctx, q.WordID, q.Direction, q.ExpectedNorm, q.AnswerNorm); ok {
		return v, nil
	}

	raw, err := g.call(ctx, &provider.CompletionRequest{
		System:      validateSystem,
		User:        validateUser(q.Question, q.Expected, q.Answer, q.SrcLang, q.TgtLang, q.CommentLang),
		Temperature: gradeTemperature,
		JSONOnly:    true,
	})
	if err != nil {
		return nil, err
	}

	var v Verdict
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		g.logger.Warn("validation reply rejected",
			zap.String("word_id", q.WordID))
		return nil, fmt.Errorf("%w: verdict for word %s", ErrModelShape, q.WordID)
	}

	g.cache.putValidation(ctx, q.WordID, q.Direction, q.ExpectedNorm, q.AnswerNorm, &v, g.clock.Now())
	return &v, nil
}

// call runs one completion through the full middleware chain, retrying
// transient provider errors with doubling backoff.
func (g *Gateway) call(ctx context.Context, req *provider.CompletionRequest) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}
	if err := g.inflight.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("in-flight cap: %w", err)
	}
	defer g.inflight.Release(1)

	var out string
	var lastErr error
	delay := callRetryBase
	for attempt := 1; attempt <= callMaxAttempts; attempt++ {
		lastErr = g.breaker.Execute(func() error {
			callCtx, cancel := context.WithTimeout(ctx, g.timeout)
			defer cancel()
			var err error
			out, err = g.provider.Complete(callCtx, req)
			return err
		})
		if lastErr == nil {
			return out, nil
		}
		if !retriable(lastErr) || attempt == callMaxAttempts {
			break
		}
		g.logger.Debug("provider call retry",
			zap.Int("attempt", attempt), zap.Error(lastErr))
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > callRetryCap {
			delay = callRetryCap
		}
	}
	return "", lastErr
}

// retriable reports whether another attempt could succeed. Open breakers and
// terminal API errors are not worth retrying within a single call.
func retriable(err error) bool {
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *provider.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	return true
}
