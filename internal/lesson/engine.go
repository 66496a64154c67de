package lesson

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kastelov/lexitrain/internal/clock"
	"github.com/kastelov/lexitrain/internal/config"
	"github.com/kastelov/lexitrain/internal/srs"
	"github.com/kastelov/lexitrain/internal/store"
	"github.com/kastelov/lexitrain/internal/validate"
)

var (
	// ErrNoWords means the profile has no vocabulary left to quiz.
	ErrNoWords = errors.New("no words available for a lesson")

	// ErrLessonFinished means every queued word already has an attempt.
	ErrLessonFinished = errors.New("lesson finished")

	// ErrNoActiveLesson means an answer arrived without an active lesson.
	ErrNoActiveLesson = errors.New("no active lesson")
)

// distractorPoolSize bounds the candidate rows fetched for choice options.
const distractorPoolSize = 20

// Store is the persistence surface the engine needs.
type Store interface {
	ActiveLesson(ctx context.Context, profileID string) (*store.Lesson, error)
	CreateLesson(ctx context.Context, l *store.Lesson) (*store.Lesson, error)
	CompleteLesson(ctx context.Context, lessonID string, at time.Time) (*store.Lesson, error)
	AttemptedUserWordIDs(ctx context.Context, lessonID string) (map[string]bool, error)
	LessonCandidates(ctx context.Context, profileID string) ([]*store.Candidate, error)
	GetUserWord(ctx context.Context, id string) (*store.UserWord, error)
	GetWord(ctx context.Context, id string) (*store.Word, error)
	FacetStats(ctx context.Context, userWordID string) ([]store.WordStat, error)
	DistractorPool(ctx context.Context, language, cefr, excludeWordID string, limit int) ([]*store.Word, error)
	ApplyAnswer(ctx context.Context, att *store.LessonAttempt, decide func(store.UserWord, store.WordStat) store.AnswerUpdate) error
}

// AnswerChecker grades answers; *validate.Validator implements it.
type AnswerChecker interface {
	Check(ctx context.Context, req *validate.Request) validate.Result
}

// Summary describes a completed lesson.
type Summary struct {
	PlannedCount int
	Correct      int
	Incorrect    int
	Accuracy     float64
	Duration     time.Duration
}

// AnswerResult is the outcome of one graded answer. Summary is set when this
// answer completed the lesson.
type AnswerResult struct {
	Correct  bool
	Method   store.Method
	Feedback string
	Expected string
	Done     bool
	Summary  *Summary
}

// Engine drives the lesson state machine: start or resume, serve questions
// from the persisted queue, grade answers and complete.
type Engine struct {
	store     Store
	checker   AnswerChecker
	lessonCfg config.LessonConfig
	srsCfg    config.SRSConfig
	clock     clock.Clock
	logger    *zap.Logger
	semantic  *SemanticPool

	mu  sync.Mutex
	rng *rand.Rand
}

// NewEngine creates a lesson engine.
func NewEngine(st Store, checker AnswerChecker, lessonCfg config.LessonConfig, srsCfg config.SRSConfig, clk clock.Clock, logger *zap.Logger) *Engine {
	return &Engine{
		store:     st,
		checker:   checker,
		lessonCfg: lessonCfg,
		srsCfg:    srsCfg,
		clock:     clk,
		logger:    logger,
		rng:       rand.New(rand.NewSource(clk.Now().UnixNano())),
	}
}

// SetSemanticPool enables semantic distractor lookup for choice questions.
// Without it, choice options come from the random same-level pool.
func (e *Engine) SetSemanticPool(p *SemanticPool) {
	e.semantic = p
}

// Start returns the profile's lesson: a fresh active lesson is resumed, a
// timed-out one is auto-completed and replaced, otherwise a new one is
// created from the selector's queue. resumed is true when an existing lesson
// was returned.
func (e *Engine) Start(ctx context.Context, profileID string) (l *store.Lesson, resumed bool, err error) {
	now := e.clock.Now()

	active, err := e.store.ActiveLesson(ctx, profileID)
	switch {
	case err == nil:
		if now.Sub(active.StartedAt) < e.lessonCfg.Timeout() {
			return active, true, nil
		}
		if _, err := e.store.CompleteLesson(ctx, active.ID, now); err != nil {
			return nil, false, fmt.Errorf("expire lesson %s: %w", active.ID, err)
		}
		e.logger.Info("auto-completed expired lesson",
			zap.String("lesson_id", active.ID), zap.String("profile_id", profileID))
	case !errors.Is(err, store.ErrNotFound):
		return nil, false, err
	}

	candidates, err := e.store.LessonCandidates(ctx, profileID)
	if err != nil {
		return nil, false, err
	}
	picked := Select(candidates, e.lessonCfg.WordsPerLesson, e.lessonCfg.ChoiceToInputThreshold, now)
	if len(picked) == 0 {
		return nil, false, ErrNoWords
	}

	queue := make([]string, len(picked))
	for i, c := range picked {
		queue[i] = c.UserWord.ID
	}

	created, err := e.store.CreateLesson(ctx, &store.Lesson{
		ProfileID:    profileID,
		StartedAt:    now,
		PlannedCount: len(queue),
		WordQueue:    queue,
	})
	if err != nil {
		// A concurrent Start won the race; resume its lesson.
		if errors.Is(err, store.ErrConflict) {
			winner, lookupErr := e.store.ActiveLesson(ctx, profileID)
			if lookupErr != nil {
				return nil, false, lookupErr
			}
			return winner, true, nil
		}
		return nil, false, err
	}
	return created, false, nil
}

// NextQuestion builds the question for the queue's first unattempted word.
func (e *Engine) NextQuestion(ctx context.Context, l *store.Lesson, nativeLang string) (*Question, error) {
	attempted, err := e.store.AttemptedUserWordIDs(ctx, l.ID)
	if err != nil {
		return nil, err
	}

	var userWordID string
	for _, id := range l.WordQueue {
		if !attempted[id] {
			userWordID = id
			break
		}
	}
	if userWordID == "" {
		return nil, ErrLessonFinished
	}

	uw, err := e.store.GetUserWord(ctx, userWordID)
	if err != nil {
		return nil, err
	}
	word, err := e.store.GetWord(ctx, uw.WordID)
	if err != nil {
		return nil, err
	}
	stats, err := e.store.FacetStats(ctx, userWordID)
	if err != nil {
		return nil, err
	}

	tt := TestTypeFor(stats, e.lessonCfg.ChoiceToInputThreshold)

	e.mu.Lock()
	dir := PickDirection(e.rng)
	e.mu.Unlock()

	var pool []*store.Word
	if tt == store.TestChoice {
		pool, err = e.distractors(ctx, word)
		if err != nil {
			return nil, err
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return BuildQuestion(&store.Candidate{UserWord: *uw, Word: *word, Stats: stats},
		nativeLang, tt, dir, pool, e.rng)
}

// distractors prefers semantically close words when the pool is wired;
// anything short of a full option set falls back to the random pool.
func (e *Engine) distractors(ctx context.Context, word *store.Word) ([]*store.Word, error) {
	if e.semantic != nil {
		pool, err := e.semantic.Distractors(ctx, word, distractorPoolSize)
		if err != nil {
			e.logger.Warn("semantic distractor lookup failed",
				zap.String("word_id", word.ID), zap.Error(err))
		} else if len(pool) >= choiceOptions-1 {
			return pool, nil
		}
	}
	return e.store.DistractorPool(ctx, word.Language, word.CEFR, word.ID, distractorPoolSize)
}

// Answer grades one answer and records it in a single transaction: the
// attempt row, the facet counters, the spaced-repetition update and the
// status progression. The model call, if any, happens before the transaction
// opens. When this was the last queued word the lesson is completed and the
// summary attached.
func (e *Engine) Answer(ctx context.Context, l *store.Lesson, q *Question, userAnswer, commentLang string) (*AnswerResult, error) {
	if l.CompletedAt != nil {
		return nil, ErrNoActiveLesson
	}
	now := e.clock.Now()

	res := e.checker.Check(ctx, &validate.Request{
		WordID:      q.WordID,
		Direction:   q.Direction,
		Question:    q.Prompt,
		Accepted:    q.Accepted,
		Answer:      userAnswer,
		SrcLang:     q.SrcLang,
		TgtLang:     q.TgtLang,
		CommentLang: commentLang,
	})

	quality := srs.QualityFor(res.Correct, res.Method)
	decide := func(uw store.UserWord, facet store.WordStat) store.AnswerUpdate {
		u := srs.Review(uw.IntervalDays, uw.EF, e.srsCfg.MinEF, quality, now)
		return store.AnswerUpdate{
			Status:       Progress(uw.Status, facet, e.lessonCfg.MasteredThreshold),
			IntervalDays: u.IntervalDays,
			EF:           u.EF,
			NextReviewAt: u.NextReviewAt,
		}
	}

	err := e.store.ApplyAnswer(ctx, &store.LessonAttempt{
		LessonID:    l.ID,
		UserWordID:  q.UserWordID,
		Direction:   q.Direction,
		TestType:    q.TestType,
		UserAnswer:  userAnswer,
		Expected:    q.Accepted[0],
		Correct:     res.Correct,
		Method:      res.Method,
		AttemptedAt: now,
	}, decide)
	if err != nil {
		return nil, fmt.Errorf("apply answer: %w", err)
	}

	out := &AnswerResult{
		Correct:  res.Correct,
		Method:   res.Method,
		Feedback: res.Feedback,
		Expected: q.Accepted[0],
	}

	attempted, err := e.store.AttemptedUserWordIDs(ctx, l.ID)
	if err != nil {
		return nil, err
	}
	for _, id := range l.WordQueue {
		if !attempted[id] {
			return out, nil
		}
	}

	summary, err := e.Complete(ctx, l.ID)
	if err != nil {
		return nil, err
	}
	out.Done = true
	out.Summary = summary
	return out, nil
}

// Complete stamps the lesson finished and builds its summary.
func (e *Engine) Complete(ctx context.Context, lessonID string) (*Summary, error) {
	final, err := e.store.CompleteLesson(ctx, lessonID, e.clock.Now())
	if err != nil {
		return nil, err
	}

	s := &Summary{
		PlannedCount: final.PlannedCount,
		Correct:      final.Correct,
		Incorrect:    final.Incorrect,
	}
	if total := final.Correct + final.Incorrect; total > 0 {
		s.Accuracy = float64(final.Correct) / float64(total)
	}
	if final.CompletedAt != nil {
		s.Duration = final.CompletedAt.Sub(final.StartedAt)
	}
	return s, nil
}
