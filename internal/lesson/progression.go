package lesson

import "github.com/kastelov/lexitrain/internal/store"

// reviewingCorrectThreshold moves a word from learning to reviewing once a
// facet has accumulated this many correct answers.
const reviewingCorrectThreshold = 5

// Progress returns the word's status after an answer, given the facet the
// answer updated. Mastered is terminal; a failure never demotes status, the
// facet streak reset already happened in the counter update.
func Progress(current store.Status, facet store.WordStat, masteredThreshold int) store.Status {
	if current == store.StatusMastered {
		return store.StatusMastered
	}
	if facet.StreakCorrect >= masteredThreshold {
		return store.StatusMastered
	}
	switch current {
	case store.StatusNew:
		// First attempt. The word may also already qualify for reviewing
		// when thresholds are configured very low.
		if facet.TotalCorrect >= reviewingCorrectThreshold {
			return store.StatusReviewing
		}
		return store.StatusLearning
	case store.StatusLearning:
		if facet.TotalCorrect >= reviewingCorrectThreshold {
			return store.StatusReviewing
		}
		return store.StatusLearning
	default:
		return current
	}
}

// InputReady reports whether the word has earned typed-input questions: a
// choice facet in any direction carries a streak of at least threshold.
func InputReady(stats []store.WordStat, threshold int) bool {
	for _, st := range stats {
		if st.TestType == store.TestChoice && st.StreakCorrect >= threshold {
			return true
		}
	}
	return false
}

// TestTypeFor picks the test type for the word's next question.
func TestTypeFor(stats []store.WordStat, threshold int) store.TestType {
	if InputReady(stats, threshold) {
		return store.TestInput
	}
	return store.TestChoice
}
