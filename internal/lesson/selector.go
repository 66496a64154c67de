package lesson

import (
	"sort"
	"time"

	"github.com/kastelov/lexitrain/internal/store"
)

// Score ranks a candidate for inclusion in a lesson. Overdue reviews dominate,
// new words get a flat bonus, struggling and stale words float up.
func Score(c *store.Candidate, now time.Time) float64 {
	var score float64

	if c.UserWord.NextReviewAt != nil {
		if overdue := now.Sub(*c.UserWord.NextReviewAt).Hours() / 24; overdue > 0 {
			score += 10 * overdue
		}
	}

	var attempts, errs int
	for _, st := range c.Stats {
		attempts += st.TotalAttempts
		errs += st.TotalErrors
	}
	if attempts > 0 {
		score += 5 * float64(errs) / float64(attempts)
	}

	switch c.UserWord.Status {
	case store.StatusNew:
		score += 15
	case store.StatusLearning:
		score += 3
	case store.StatusReviewing:
		score += 1
	}

	if c.UserWord.LastReviewedAt != nil {
		staleness := now.Sub(*c.UserWord.LastReviewedAt).Hours() / 24
		if staleness > 7 {
			staleness = 7
		}
		if staleness > 0 {
			score += staleness
		}
	}

	return score
}

// Select ranks candidates and composes a lesson queue of at most count words.
// Half the slots target input-ready words; when either bucket runs short the
// other fills the gap. Each bucket is taken in descending score order and the
// output keeps that order, input-ready first.
func Select(candidates []*store.Candidate, count int, inputThreshold int, now time.Time) []*store.Candidate {
	if count <= 0 || len(candidates) == 0 {
		return nil
	}

	var ready, rest []*store.Candidate
	for _, c := range candidates {
		if InputReady(c.Stats, inputThreshold) {
			ready = append(ready, c)
		} else {
			rest = append(rest, c)
		}
	}
	sortByScore(ready, now)
	sortByScore(rest, now)

	wantReady := count / 2
	if wantReady > len(ready) {
		wantReady = len(ready)
	}
	wantRest := count - wantReady
	if wantRest > len(rest) {
		wantRest = len(rest)
		if extra := count - wantReady - wantRest; extra > 0 {
			if wantReady+extra > len(ready) {
				wantReady = len(ready)
			} else {
				wantReady += extra
			}
		}
	}

	out := make([]*store.Candidate, 0, wantReady+wantRest)
	out = append(out, ready[:wantReady]...)
	out = append(out, rest[:wantRest]...)
	return out
}

func sortByScore(cands []*store.Candidate, now time.Time) {
	sort.SliceStable(cands, func(i, j int) bool {
		si, sj := Score(cands[i], now), Score(cands[j], now)
		if si != sj {
			return si > sj
		}
		return cands[i].UserWord.AddedAt.Before(cands[j].UserWord.AddedAt)
	})
}
