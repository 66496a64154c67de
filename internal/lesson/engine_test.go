package lesson

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kastelov/lexitrain/internal/config"
	"github.com/kastelov/lexitrain/internal/store"
	"github.com/kastelov/lexitrain/internal/validate"
)

type stepClock struct {
	t time.Time
}

func (c *stepClock) Now() time.Time { return c.t }

func (c *stepClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// memStore is an in-memory Store for engine tests. ApplyAnswer mirrors the
// real store's counter semantics.
type memStore struct {
	nextID     int
	lessons    map[string]*store.Lesson
	attempts   []*store.LessonAttempt
	userWords  map[string]*store.UserWord
	words      map[string]*store.Word
	stats      map[string]map[string]*store.WordStat
	candidates []*store.Candidate
	pool       []*store.Word
}

func newMemStore() *memStore {
	return &memStore{
		lessons:   map[string]*store.Lesson{},
		userWords: map[string]*store.UserWord{},
		words:     map[string]*store.Word{},
		stats:     map[string]map[string]*store.WordStat{},
	}
}

func (m *memStore) addWord(uwID, text string, translations []string, ef float64) {
	wID := "w-" + uwID
	w := &store.Word{
		ID: wID, Text: text, Language: "ru",
		Translations: map[string][]string{"en": translations},
	}
	uw := &store.UserWord{ID: uwID, ProfileID: "p1", WordID: wID, Status: store.StatusNew, EF: ef}
	m.words[wID] = w
	m.userWords[uwID] = uw
	m.candidates = append(m.candidates, &store.Candidate{UserWord: *uw, Word: *w})
}

func (m *memStore) ActiveLesson(ctx context.Context, profileID string) (*store.Lesson, error) {
	for _, l := range m.lessons {
		if l.ProfileID == profileID && l.CompletedAt == nil {
			cp := *l
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) CreateLesson(ctx context.Context, l *store.Lesson) (*store.Lesson, error) {
	if _, err := m.ActiveLesson(ctx, l.ProfileID); err == nil {
		return nil, store.ErrConflict
	}
	m.nextID++
	cp := *l
	cp.ID = fmt.Sprintf("lesson-%d", m.nextID)
	m.lessons[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memStore) CompleteLesson(ctx context.Context, lessonID string, at time.Time) (*store.Lesson, error) {
	l, ok := m.lessons[lessonID]
	if !ok || l.CompletedAt != nil {
		return nil, store.ErrNotFound
	}
	l.CompletedAt = &at
	cp := *l
	return &cp, nil
}

func (m *memStore) AttemptedUserWordIDs(ctx context.Context, lessonID string) (map[string]bool, error) {
	out := map[string]bool{}
	for _, a := range m.attempts {
		if a.LessonID == lessonID {
			out[a.UserWordID] = true
		}
	}
	return out, nil
}

func (m *memStore) LessonCandidates(ctx context.Context, profileID string) ([]*store.Candidate, error) {
	var out []*store.Candidate
	for _, c := range m.candidates {
		if uw := m.userWords[c.UserWord.ID]; uw.Status != store.StatusMastered {
			cp := *c
			cp.UserWord = *uw
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) GetUserWord(ctx context.Context, id string) (*store.UserWord, error) {
	uw, ok := m.userWords[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *uw
	return &cp, nil
}

func (m *memStore) GetWord(ctx context.Context, id string) (*store.Word, error) {
	w, ok := m.words[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (m *memStore) FacetStats(ctx context.Context, userWordID string) ([]store.WordStat, error) {
	var out []store.WordStat
	for _, st := range m.stats[userWordID] {
		out = append(out, *st)
	}
	return out, nil
}

func (m *memStore) DistractorPool(ctx context.Context, language, cefr, excludeWordID string, limit int) ([]*store.Word, error) {
	return m.pool, nil
}

func (m *memStore) ApplyAnswer(ctx context.Context, att *store.LessonAttempt, decide func(store.UserWord, store.WordStat) store.AnswerUpdate) error {
	m.attempts = append(m.attempts, att)

	key := string(att.Direction) + "|" + string(att.TestType)
	if m.stats[att.UserWordID] == nil {
		m.stats[att.UserWordID] = map[string]*store.WordStat{}
	}
	facet, ok := m.stats[att.UserWordID][key]
	if !ok {
		facet = &store.WordStat{UserWordID: att.UserWordID, Direction: att.Direction, TestType: att.TestType}
		m.stats[att.UserWordID][key] = facet
	}
	facet.TotalAttempts++
	if att.Correct {
		facet.StreakCorrect++
		facet.TotalCorrect++
	} else {
		facet.StreakCorrect = 0
		facet.TotalErrors++
	}

	uw := m.userWords[att.UserWordID]
	update := decide(*uw, *facet)
	uw.Status = update.Status
	uw.IntervalDays = update.IntervalDays
	uw.EF = update.EF
	next := update.NextReviewAt
	uw.NextReviewAt = &next
	at := att.AttemptedAt
	uw.LastReviewedAt = &at

	l := m.lessons[att.LessonID]
	if att.Correct {
		l.Correct++
	} else {
		l.Incorrect++
	}
	return nil
}

// exactChecker grades by normalized string equality only.
type exactChecker struct{}

func (exactChecker) Check(ctx context.Context, req *validate.Request) validate.Result {
	norm := validate.Normalize(req.Answer)
	for _, acc := range req.Accepted {
		if norm == validate.Normalize(acc) {
			return validate.Result{Correct: true, Method: store.MethodExact}
		}
	}
	return validate.Result{Correct: false, Method: store.MethodExact,
		Feedback: "expected: " + req.Accepted[0]}
}

func newTestEngine(m *memStore, clk *stepClock) *Engine {
	cfg := config.Default()
	cfg.Lesson.WordsPerLesson = 10
	return NewEngine(m, exactChecker{}, cfg.Lesson, cfg.SRS, clk, zap.NewNop())
}

func TestStartCreatesLesson(t *testing.T) {
	m := newMemStore()
	m.addWord("uw1", "дом", []string{"house"}, 2.5)
	m.addWord("uw2", "дерево", []string{"tree"}, 2.5)
	clk := &stepClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	e := newTestEngine(m, clk)

	l, resumed, err := e.Start(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if resumed {
		t.Fatal("fresh start must not resume")
	}
	if l.PlannedCount != 2 || len(l.WordQueue) != 2 {
		t.Fatalf("lesson = %+v", l)
	}
}

func TestStartResumesActiveLesson(t *testing.T) {
	m := newMemStore()
	m.addWord("uw1", "дом", []string{"house"}, 2.5)
	clk := &stepClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	e := newTestEngine(m, clk)

	first, _, err := e.Start(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	clk.advance(30 * time.Minute)
	second, resumed, err := e.Start(context.Background(), "p1")
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if !resumed || second.ID != first.ID {
		t.Fatalf("resumed=%v id=%s, want resume of %s", resumed, second.ID, first.ID)
	}
}

func TestStartExpiresTimedOutLesson(t *testing.T) {
	m := newMemStore()
	m.addWord("uw1", "дом", []string{"house"}, 2.5)
	clk := &stepClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	e := newTestEngine(m, clk)

	first, _, err := e.Start(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	clk.advance(3 * time.Hour)
	second, resumed, err := e.Start(context.Background(), "p1")
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if resumed || second.ID == first.ID {
		t.Fatalf("timed-out lesson must be replaced, got resumed=%v", resumed)
	}
	if m.lessons[first.ID].CompletedAt == nil {
		t.Fatal("expired lesson must be auto-completed")
	}
}

func TestStartWithEmptyVocabulary(t *testing.T) {
	m := newMemStore()
	clk := &stepClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	e := newTestEngine(m, clk)

	if _, _, err := e.Start(context.Background(), "p1"); !errors.Is(err, ErrNoWords) {
		t.Fatalf("got %v, want ErrNoWords", err)
	}
}

func TestAnswerFlowThroughCompletion(t *testing.T) {
	m := newMemStore()
	m.addWord("uw1", "дом", []string{"house"}, 2.5)
	m.addWord("uw2", "дерево", []string{"tree"}, 2.5)
	m.pool = []*store.Word{
		{ID: "d1", Text: "река", Language: "ru", Translations: map[string][]string{"en": {"river"}}},
		{ID: "d2", Text: "гора", Language: "ru", Translations: map[string][]string{"en": {"mountain"}}},
		{ID: "d3", Text: "море", Language: "ru", Translations: map[string][]string{"en": {"sea"}}},
	}
	clk := &stepClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	e := newTestEngine(m, clk)

	l, _, err := e.Start(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	q1, err := e.NextQuestion(context.Background(), l, "en")
	if err != nil {
		t.Fatalf("NextQuestion: %v", err)
	}
	res, err := e.Answer(context.Background(), l, q1, q1.Accepted[0], "English")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !res.Correct || res.Done {
		t.Fatalf("first answer = %+v", res)
	}

	uw := m.userWords[q1.UserWordID]
	if uw.Status != store.StatusLearning {
		t.Fatalf("status = %s, want learning after first attempt", uw.Status)
	}
	if uw.IntervalDays != 1 {
		t.Fatalf("interval = %d, want 1", uw.IntervalDays)
	}
	if math.Abs(uw.EF-2.6) > 1e-9 {
		t.Fatalf("ef = %v, want 2.6 after perfect recall", uw.EF)
	}

	q2, err := e.NextQuestion(context.Background(), l, "en")
	if err != nil {
		t.Fatalf("NextQuestion: %v", err)
	}
	if q2.UserWordID == q1.UserWordID {
		t.Fatal("second question must move to the next queued word")
	}
	res, err = e.Answer(context.Background(), l, q2, "nonsense", "English")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if res.Correct {
		t.Fatal("wrong answer graded correct")
	}
	if !res.Done || res.Summary == nil {
		t.Fatal("last answer must complete the lesson")
	}
	if res.Summary.Correct != 1 || res.Summary.Incorrect != 1 {
		t.Fatalf("summary = %+v", res.Summary)
	}
	if res.Summary.Accuracy != 0.5 {
		t.Fatalf("accuracy = %v, want 0.5", res.Summary.Accuracy)
	}

	uw2 := m.userWords[q2.UserWordID]
	if math.Abs(uw2.EF-2.3) > 1e-9 {
		t.Fatalf("ef after failure = %v, want 2.3", uw2.EF)
	}
	if uw2.IntervalDays != 1 {
		t.Fatalf("interval after failure = %d, want 1", uw2.IntervalDays)
	}

	if _, err := e.NextQuestion(context.Background(), l, "en"); !errors.Is(err, ErrLessonFinished) {
		t.Fatalf("got %v, want ErrLessonFinished", err)
	}
}

func TestAnswerStreakResetOnFailure(t *testing.T) {
	m := newMemStore()
	m.addWord("uw1", "дом", []string{"house"}, 2.5)
	m.pool = []*store.Word{
		{ID: "d1", Text: "река", Language: "ru", Translations: map[string][]string{"en": {"river"}}},
	}
	clk := &stepClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	e := newTestEngine(m, clk)

	l, _, err := e.Start(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	q, err := e.NextQuestion(context.Background(), l, "en")
	if err != nil {
		t.Fatalf("NextQuestion: %v", err)
	}

	if _, err := e.Answer(context.Background(), l, q, q.Accepted[0], "English"); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	key := string(q.Direction) + "|" + string(q.TestType)
	if got := m.stats["uw1"][key].StreakCorrect; got != 1 {
		t.Fatalf("streak = %d, want 1", got)
	}

	// Re-answer the same facet wrong; the streak resets, totals keep counting.
	l2 := *m.lessons[l.ID]
	l2.CompletedAt = nil
	m.lessons[l.ID].CompletedAt = nil
	if _, err := e.Answer(context.Background(), &l2, q, "nonsense", "English"); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	facet := m.stats["uw1"][key]
	if facet.StreakCorrect != 0 || facet.TotalAttempts != 2 || facet.TotalErrors != 1 {
		t.Fatalf("facet = %+v", facet)
	}
}
