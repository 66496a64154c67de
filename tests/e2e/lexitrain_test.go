package e2e

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kastelov/lexitrain/internal/clock"
	"github.com/kastelov/lexitrain/internal/config"
	"github.com/kastelov/lexitrain/internal/lesson"
	"github.com/kastelov/lexitrain/internal/llm"
	"github.com/kastelov/lexitrain/internal/store"
	"github.com/kastelov/lexitrain/internal/validate"
)

func TestMain(m *testing.M) {
	ctx := context.Background()
	testLogger, _ = zap.NewDevelopment()

	pgDSN, pgCleanup, err := startPostgres(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "postgres: %v\n", err)
		os.Exit(1)
	}
	defer pgCleanup()

	testStore, err = store.New(ctx, pgDSN, testLogger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "store: %v\n", err)
		os.Exit(1)
	}
	defer testStore.Close()

	if err := testStore.Migrate(ctx, "../../migrations"); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	redisURL, redisCleanup, err := startRedis(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis: %v\n", err)
		os.Exit(1)
	}
	defer redisCleanup()
	testRedisURL = redisURL

	os.Exit(m.Run())
}

// rejectGrader is a model stand-in that never accepts. Exact answers in these
// tests never reach it.
type rejectGrader struct{}

func (rejectGrader) Validate(ctx context.Context, q *llm.ValidationQuery) (*llm.Verdict, error) {
	return &llm.Verdict{Correct: false}, nil
}

func newTestEngine() *lesson.Engine {
	cfg := config.Default()
	checker := validate.New(rejectGrader{}, cfg.Lesson.FuzzyThreshold, zap.NewNop())
	return lesson.NewEngine(testStore, checker, cfg.Lesson, cfg.SRS, clock.System{}, testLogger)
}

func TestLessonFlowEndToEnd(t *testing.T) {
	ctx := context.Background()
	profile, userWords := seedProfile(t, "flow-user", map[string]string{
		"дом":   "house",
		"кот":   "cat",
		"вода":  "water",
	})
	engine := newTestEngine()

	l, resumed, err := engine.Start(ctx, profile.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if resumed {
		t.Fatal("fresh profile must not resume")
	}
	if l.PlannedCount != 3 {
		t.Fatalf("planned = %d, want 3", l.PlannedCount)
	}

	var last *lesson.AnswerResult
	for i := 0; i < 3; i++ {
		q, err := engine.NextQuestion(ctx, l, "en")
		if err != nil {
			t.Fatalf("NextQuestion %d: %v", i, err)
		}
		last, err = engine.Answer(ctx, l, q, q.Accepted[0], "English")
		if err != nil {
			t.Fatalf("Answer %d: %v", i, err)
		}
		if !last.Correct || last.Method != store.MethodExact {
			t.Fatalf("answer %d graded %v/%s, want exact correct", i, last.Correct, last.Method)
		}
	}

	if !last.Done || last.Summary == nil {
		t.Fatal("third answer must complete the lesson")
	}
	if last.Summary.Correct != 3 || last.Summary.Incorrect != 0 {
		t.Fatalf("summary = %+v", last.Summary)
	}
	if last.Summary.Accuracy != 1.0 {
		t.Fatalf("accuracy = %v, want 1.0", last.Summary.Accuracy)
	}

	// One correct answer moves a new word to learning and schedules a review.
	uw, err := testStore.GetUserWord(ctx, userWords["дом"].ID)
	if err != nil {
		t.Fatalf("GetUserWord: %v", err)
	}
	if uw.Status != store.StatusLearning {
		t.Fatalf("status = %s, want learning", uw.Status)
	}
	if uw.IntervalDays != 1 {
		t.Fatalf("interval = %d, want 1", uw.IntervalDays)
	}
	if uw.EF < 2.59 || uw.EF > 2.61 {
		t.Fatalf("ef = %v, want 2.6", uw.EF)
	}
	if uw.NextReviewAt == nil || uw.LastReviewedAt == nil {
		t.Fatal("review timestamps must be set")
	}

	if _, err := testStore.ActiveLesson(ctx, profile.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("active lesson after completion: %v", err)
	}
}

func TestSingleActiveLessonPerProfile(t *testing.T) {
	ctx := context.Background()
	profile, userWords := seedProfile(t, "conflict-user", map[string]string{"хлеб": "bread"})
	queue := []string{userWords["хлеб"].ID}
	now := time.Now().UTC()

	first, err := testStore.CreateLesson(ctx, &store.Lesson{
		ProfileID: profile.ID, StartedAt: now, PlannedCount: 1, WordQueue: queue,
	})
	if err != nil {
		t.Fatalf("first CreateLesson: %v", err)
	}

	_, err = testStore.CreateLesson(ctx, &store.Lesson{
		ProfileID: profile.ID, StartedAt: now, PlannedCount: 1, WordQueue: queue,
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("second CreateLesson: %v, want ErrConflict", err)
	}

	if _, err := testStore.CompleteLesson(ctx, first.ID, now.Add(time.Minute)); err != nil {
		t.Fatalf("CompleteLesson: %v", err)
	}
	if _, err := testStore.CreateLesson(ctx, &store.Lesson{
		ProfileID: profile.ID, StartedAt: now.Add(time.Hour), PlannedCount: 1, WordQueue: queue,
	}); err != nil {
		t.Fatalf("CreateLesson after completion: %v", err)
	}
}

func TestApplyAnswerFacetCounters(t *testing.T) {
	ctx := context.Background()
	profile, userWords := seedProfile(t, "counter-user", map[string]string{"молоко": "milk"})
	uw := userWords["молоко"]
	now := time.Now().UTC()

	l, err := testStore.CreateLesson(ctx, &store.Lesson{
		ProfileID: profile.ID, StartedAt: now, PlannedCount: 3, WordQueue: []string{uw.ID},
	})
	if err != nil {
		t.Fatalf("CreateLesson: %v", err)
	}

	apply := func(correct bool) store.WordStat {
		var got store.WordStat
		err := testStore.ApplyAnswer(ctx, &store.LessonAttempt{
			LessonID: l.ID, UserWordID: uw.ID,
			Direction: store.ForeignToNative, TestType: store.TestChoice,
			UserAnswer: "milk", Expected: "milk",
			Correct: correct, Method: store.MethodExact, AttemptedAt: now,
		}, func(u store.UserWord, facet store.WordStat) store.AnswerUpdate {
			got = facet
			return store.AnswerUpdate{
				Status: store.StatusLearning, IntervalDays: 1,
				EF: u.EF, NextReviewAt: now.AddDate(0, 0, 1),
			}
		})
		if err != nil {
			t.Fatalf("ApplyAnswer: %v", err)
		}
		return got
	}

	if f := apply(true); f.StreakCorrect != 1 || f.TotalAttempts != 1 {
		t.Fatalf("first facet = %+v", f)
	}
	if f := apply(true); f.StreakCorrect != 2 || f.TotalCorrect != 2 {
		t.Fatalf("second facet = %+v", f)
	}
	f := apply(false)
	if f.StreakCorrect != 0 {
		t.Fatalf("streak = %d after failure, want 0", f.StreakCorrect)
	}
	if f.TotalAttempts != 3 || f.TotalCorrect != 2 || f.TotalErrors != 1 {
		t.Fatalf("totals = %+v", f)
	}

	final, err := testStore.CompleteLesson(ctx, l.ID, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("CompleteLesson: %v", err)
	}
	if final.Correct != 2 || final.Incorrect != 1 {
		t.Fatalf("lesson counters = %d/%d, want 2/1", final.Correct, final.Incorrect)
	}
}

func TestLessonCandidatesExcludeMastered(t *testing.T) {
	ctx := context.Background()
	profile, userWords := seedProfile(t, "mastered-user", map[string]string{
		"рука": "hand",
		"нога": "leg",
	})
	mastered := userWords["рука"]
	now := time.Now().UTC()

	l, err := testStore.CreateLesson(ctx, &store.Lesson{
		ProfileID: profile.ID, StartedAt: now, PlannedCount: 1,
		WordQueue: []string{mastered.ID},
	})
	if err != nil {
		t.Fatalf("CreateLesson: %v", err)
	}
	err = testStore.ApplyAnswer(ctx, &store.LessonAttempt{
		LessonID: l.ID, UserWordID: mastered.ID,
		Direction: store.ForeignToNative, TestType: store.TestInput,
		UserAnswer: "hand", Expected: "hand",
		Correct: true, Method: store.MethodExact, AttemptedAt: now,
	}, func(u store.UserWord, facet store.WordStat) store.AnswerUpdate {
		return store.AnswerUpdate{
			Status: store.StatusMastered, IntervalDays: u.IntervalDays + 1,
			EF: u.EF, NextReviewAt: now.AddDate(0, 0, 1),
		}
	})
	if err != nil {
		t.Fatalf("ApplyAnswer: %v", err)
	}
	if _, err := testStore.CompleteLesson(ctx, l.ID, now.Add(time.Minute)); err != nil {
		t.Fatalf("CompleteLesson: %v", err)
	}

	uw, err := testStore.GetUserWord(ctx, mastered.ID)
	if err != nil {
		t.Fatalf("GetUserWord: %v", err)
	}
	if uw.Status != store.StatusMastered {
		t.Fatalf("status = %s, want mastered", uw.Status)
	}

	candidates, err := testStore.LessonCandidates(ctx, profile.ID)
	if err != nil {
		t.Fatalf("LessonCandidates: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("candidates = %d, want 1", len(candidates))
	}
	if candidates[0].UserWord.ID != userWords["нога"].ID {
		t.Fatalf("candidate = %s, mastered word must be excluded", candidates[0].Word.Text)
	}
}

func TestTranslationCacheUpsert(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	put := func(payload map[string]any, expires *time.Time) {
		if err := testStore.PutTranslationCache(ctx, "сыр", "ru", "en", payload, now, expires); err != nil {
			t.Fatalf("PutTranslationCache: %v", err)
		}
	}

	put(map[string]any{"translations": []string{"cheese"}}, nil)
	// A rewrite of the same key replaces the payload instead of failing.
	put(map[string]any{"translations": []string{"cheese", "curd"}}, nil)

	raw, err := testStore.GetTranslationCache(ctx, "сыр", "ru", "en", now)
	if err != nil {
		t.Fatalf("GetTranslationCache: %v", err)
	}
	if len(raw) == 0 {
		t.Fatal("empty payload")
	}

	expired := now.Add(-time.Hour)
	put(map[string]any{"translations": []string{"stale"}}, &expired)
	if _, err := testStore.GetTranslationCache(ctx, "сыр", "ru", "en", now); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expired entry: %v, want ErrNotFound", err)
	}
}

func TestGatewayCachesThroughRedisAndPostgres(t *testing.T) {
	ctx := context.Background()
	rdb, err := llm.NewRedisClient(ctx, testRedisURL, testLogger)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer rdb.Close()

	cfg := config.Default()
	prov := &scriptedProvider{replies: []string{
		`{"translations":["bridge"],"examples":[{"src":"мост через реку","tgt":"a bridge over the river"}],"forms":{}}`,
	}}
	gw := llm.NewGateway(cfg.LLM, prov, testStore, rdb, clock.System{}, testLogger)

	first, err := gw.Translate(ctx, "мост", "ru", "en")
	if err != nil {
		t.Fatalf("first Translate: %v", err)
	}
	if len(first.Translations) != 1 || first.Translations[0] != "bridge" {
		t.Fatalf("translations = %v", first.Translations)
	}
	if prov.calls != 1 {
		t.Fatalf("provider calls = %d, want 1", prov.calls)
	}

	second, err := gw.Translate(ctx, "мост", "ru", "en")
	if err != nil {
		t.Fatalf("second Translate: %v", err)
	}
	if prov.calls != 1 {
		t.Fatalf("provider calls = %d after cache hit, want 1", prov.calls)
	}
	if second.Translations[0] != first.Translations[0] {
		t.Fatal("cache returned a different entry")
	}

	// A fresh gateway without the hot cache still hits the durable cache.
	cold := llm.NewGateway(cfg.LLM, prov, testStore, nil, clock.System{}, testLogger)
	third, err := cold.Translate(ctx, "мост", "ru", "en")
	if err != nil {
		t.Fatalf("durable-only Translate: %v", err)
	}
	if prov.calls != 1 {
		t.Fatalf("provider calls = %d, want durable cache hit", prov.calls)
	}
	if third.Translations[0] != "bridge" {
		t.Fatalf("durable translations = %v", third.Translations)
	}
}
