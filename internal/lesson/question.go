package lesson

import (
	"fmt"
	"math/rand"

	"github.com/kastelov/lexitrain/internal/store"
)

// choiceOptions is the option count for multiple-choice questions, correct
// answer included.
const choiceOptions = 4

// Question is one quiz item ready for rendering. Accepted holds every answer
// treated as correct, primary first. Options is empty for typed input.
type Question struct {
	UserWordID string
	WordID     string
	Direction  store.Direction
	TestType   store.TestType
	Prompt     string
	Accepted   []string
	Options    []string
	Example    string
	SrcLang    string
	TgtLang    string
}

// PickDirection draws a uniform direction for the next question.
func PickDirection(rng *rand.Rand) store.Direction {
	if rng.Intn(2) == 0 {
		return store.NativeToForeign
	}
	return store.ForeignToNative
}

// BuildQuestion assembles a question for the word. pool supplies distractors
// for choice questions, already ordered deterministically by frequency rank;
// the first distinct usable entries are taken and the options shuffled.
func BuildQuestion(c *store.Candidate, nativeLang string, tt store.TestType, dir store.Direction, pool []*store.Word, rng *rand.Rand) (*Question, error) {
	native := c.Word.Translations[nativeLang]
	if len(native) == 0 {
		return nil, fmt.Errorf("word %s has no %s translations", c.Word.ID, nativeLang)
	}

	q := &Question{
		UserWordID: c.UserWord.ID,
		WordID:     c.Word.ID,
		Direction:  dir,
		TestType:   tt,
	}
	if len(c.Word.Examples) > 0 {
		ex := c.Word.Examples[rng.Intn(len(c.Word.Examples))]
		q.Example = ex.Src + " — " + ex.Tgt
	}

	switch dir {
	case store.NativeToForeign:
		q.Prompt = native[0]
		q.Accepted = []string{c.Word.Text}
		q.SrcLang = nativeLang
		q.TgtLang = c.Word.Language
	default:
		q.Prompt = c.Word.Text
		q.Accepted = append([]string(nil), native...)
		q.SrcLang = c.Word.Language
		q.TgtLang = nativeLang
	}

	if tt == store.TestInput {
		return q, nil
	}

	correct := q.Accepted[0]
	options := []string{correct}
	seen := map[string]bool{correct: true}
	for _, w := range pool {
		if len(options) == choiceOptions {
			break
		}
		var opt string
		if dir == store.NativeToForeign {
			opt = w.Text
		} else if tr := w.Translations[nativeLang]; len(tr) > 0 {
			opt = tr[0]
		}
		if opt == "" || seen[opt] {
			continue
		}
		seen[opt] = true
		options = append(options, opt)
	}
	if len(options) < 2 {
		return nil, fmt.Errorf("word %s has no usable distractors", c.Word.ID)
	}

	rng.Shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
	})
	q.Options = options
	return q, nil
}
