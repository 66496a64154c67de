package lesson

import (
	"fmt"
	"testing"
	"time"

	"github.com/kastelov/lexitrain/internal/store"
)

var selectorNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func cand(id string, status store.Status) *store.Candidate {
	return &store.Candidate{
		UserWord: store.UserWord{ID: id, Status: status, AddedAt: selectorNow.Add(-24 * time.Hour)},
		Word:     store.Word{ID: "w-" + id},
	}
}

func TestScoreWeights(t *testing.T) {
	// A new word with no history scores exactly the new-word bonus.
	c := cand("a", store.StatusNew)
	if got := Score(c, selectorNow); got != 15 {
		t.Fatalf("new word score = %v, want 15", got)
	}

	// Two days overdue dominates the status bonus.
	overdue := selectorNow.AddDate(0, 0, -2)
	reviewed := selectorNow.AddDate(0, 0, -2)
	c = cand("b", store.StatusReviewing)
	c.UserWord.NextReviewAt = &overdue
	c.UserWord.LastReviewedAt = &reviewed
	got := Score(c, selectorNow)
	want := 10.0*2 + 1 + 2 // overdue + reviewing + staleness
	if got != want {
		t.Fatalf("overdue score = %v, want %v", got, want)
	}

	// Staleness caps at 7 days.
	old := selectorNow.AddDate(0, 0, -30)
	c = cand("c", store.StatusLearning)
	c.UserWord.LastReviewedAt = &old
	if got := Score(c, selectorNow); got != 3+7 {
		t.Fatalf("stale score = %v, want 10", got)
	}
}

func TestScoreErrorRate(t *testing.T) {
	c := cand("a", store.StatusLearning)
	c.Stats = []store.WordStat{
		{TestType: store.TestChoice, Direction: store.NativeToForeign, TotalAttempts: 6, TotalErrors: 2},
		{TestType: store.TestChoice, Direction: store.ForeignToNative, TotalAttempts: 4, TotalErrors: 3},
	}
	// 5 errors over 10 attempts across facets.
	if got := Score(c, selectorNow); got != 3+5*0.5 {
		t.Fatalf("score = %v, want 5.5", got)
	}
}

func TestSelectComposition(t *testing.T) {
	var cands []*store.Candidate
	for i := 0; i < 6; i++ {
		c := cand(fmt.Sprintf("ready-%d", i), store.StatusReviewing)
		c.Stats = []store.WordStat{{TestType: store.TestChoice, StreakCorrect: 3}}
		cands = append(cands, c)
	}
	for i := 0; i < 6; i++ {
		cands = append(cands, cand(fmt.Sprintf("fresh-%d", i), store.StatusNew))
	}

	out := Select(cands, 8, 3, selectorNow)
	if len(out) != 8 {
		t.Fatalf("selected %d, want 8", len(out))
	}
	ready := 0
	for _, c := range out {
		if InputReady(c.Stats, 3) {
			ready++
		}
	}
	if ready != 4 {
		t.Fatalf("input-ready count = %d, want half", ready)
	}
}

func TestSelectBackfillsShortBucket(t *testing.T) {
	var cands []*store.Candidate
	c := cand("ready-0", store.StatusReviewing)
	c.Stats = []store.WordStat{{TestType: store.TestChoice, StreakCorrect: 3}}
	cands = append(cands, c)
	for i := 0; i < 10; i++ {
		cands = append(cands, cand(fmt.Sprintf("fresh-%d", i), store.StatusNew))
	}

	out := Select(cands, 6, 3, selectorNow)
	if len(out) != 6 {
		t.Fatalf("selected %d, want 6 with backfill", len(out))
	}

	// The opposite shortage backfills from the ready bucket.
	cands = cands[:1]
	for i := 0; i < 9; i++ {
		c := cand(fmt.Sprintf("ready-%d", i+1), store.StatusReviewing)
		c.Stats = []store.WordStat{{TestType: store.TestChoice, StreakCorrect: 4}}
		cands = append(cands, c)
	}
	out = Select(cands, 6, 3, selectorNow)
	if len(out) != 6 {
		t.Fatalf("selected %d, want 6 with reverse backfill", len(out))
	}
}

func TestSelectOrdersByScoreWithinBucket(t *testing.T) {
	low := cand("low", store.StatusReviewing)
	high := cand("high", store.StatusNew)
	mid := cand("mid", store.StatusLearning)

	out := Select([]*store.Candidate{low, high, mid}, 3, 3, selectorNow)
	if len(out) != 3 {
		t.Fatalf("selected %d, want 3", len(out))
	}
	if out[0].UserWord.ID != "high" || out[1].UserWord.ID != "mid" || out[2].UserWord.ID != "low" {
		t.Fatalf("order = %s, %s, %s", out[0].UserWord.ID, out[1].UserWord.ID, out[2].UserWord.ID)
	}
}

func TestSelectRespectsCount(t *testing.T) {
	var cands []*store.Candidate
	for i := 0; i < 50; i++ {
		cands = append(cands, cand(fmt.Sprintf("c-%d", i), store.StatusNew))
	}
	if got := len(Select(cands, 30, 3, selectorNow)); got != 30 {
		t.Fatalf("selected %d, want 30", got)
	}
	if out := Select(nil, 30, 3, selectorNow); out != nil {
		t.Fatalf("empty candidates should select nothing")
	}
}
