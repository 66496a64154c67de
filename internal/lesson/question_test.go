package lesson

import (
	"math/rand"
	"testing"

	"github.com/kastelov/lexitrain/internal/store"
)

func houseCandidate() *store.Candidate {
	return &store.Candidate{
		UserWord: store.UserWord{ID: "uw1", WordID: "w1"},
		Word: store.Word{
			ID:       "w1",
			Text:     "дом",
			Language: "ru",
			Translations: map[string][]string{
				"en": {"house", "home"},
			},
			Examples: []store.Example{{Src: "мой дом", Tgt: "my house"}},
		},
	}
}

func distractorWords() []*store.Word {
	return []*store.Word{
		{ID: "w2", Text: "дерево", Language: "ru", Translations: map[string][]string{"en": {"tree"}}},
		{ID: "w3", Text: "река", Language: "ru", Translations: map[string][]string{"en": {"river"}}},
		{ID: "w4", Text: "гора", Language: "ru", Translations: map[string][]string{"en": {"mountain"}}},
		{ID: "w5", Text: "море", Language: "ru", Translations: map[string][]string{"en": {"sea"}}},
	}
}

func TestBuildQuestionNativeToForeign(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	q, err := BuildQuestion(houseCandidate(), "en", store.TestInput, store.NativeToForeign, nil, rng)
	if err != nil {
		t.Fatalf("BuildQuestion: %v", err)
	}
	if q.Prompt != "house" {
		t.Fatalf("prompt = %q, want first native translation", q.Prompt)
	}
	if len(q.Accepted) != 1 || q.Accepted[0] != "дом" {
		t.Fatalf("accepted = %v", q.Accepted)
	}
	if q.SrcLang != "en" || q.TgtLang != "ru" {
		t.Fatalf("langs = %s → %s", q.SrcLang, q.TgtLang)
	}
	if len(q.Options) != 0 {
		t.Fatal("input question must carry no options")
	}
}

func TestBuildQuestionForeignToNative(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	q, err := BuildQuestion(houseCandidate(), "en", store.TestInput, store.ForeignToNative, nil, rng)
	if err != nil {
		t.Fatalf("BuildQuestion: %v", err)
	}
	if q.Prompt != "дом" {
		t.Fatalf("prompt = %q, want foreign text", q.Prompt)
	}
	if len(q.Accepted) != 2 || q.Accepted[0] != "house" || q.Accepted[1] != "home" {
		t.Fatalf("accepted = %v, want all native translations", q.Accepted)
	}
}

func TestBuildQuestionChoiceOptions(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	q, err := BuildQuestion(houseCandidate(), "en", store.TestChoice, store.NativeToForeign, distractorWords(), rng)
	if err != nil {
		t.Fatalf("BuildQuestion: %v", err)
	}
	if len(q.Options) != choiceOptions {
		t.Fatalf("options = %d, want %d", len(q.Options), choiceOptions)
	}
	found := false
	seen := map[string]bool{}
	for _, opt := range q.Options {
		if seen[opt] {
			t.Fatalf("duplicate option %q", opt)
		}
		seen[opt] = true
		if opt == "дом" {
			found = true
		}
	}
	if !found {
		t.Fatal("options must include the correct answer")
	}
}

func TestBuildQuestionChoiceForeignToNativeOptionsAreNative(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	q, err := BuildQuestion(houseCandidate(), "en", store.TestChoice, store.ForeignToNative, distractorWords(), rng)
	if err != nil {
		t.Fatalf("BuildQuestion: %v", err)
	}
	for _, opt := range q.Options {
		if opt == "дерево" || opt == "река" {
			t.Fatalf("option %q is in the foreign language", opt)
		}
	}
}

func TestBuildQuestionMissingTranslations(t *testing.T) {
	c := houseCandidate()
	c.Word.Translations = map[string][]string{}
	rng := rand.New(rand.NewSource(1))
	if _, err := BuildQuestion(c, "en", store.TestInput, store.ForeignToNative, nil, rng); err == nil {
		t.Fatal("expected error for missing translations")
	}
}

func TestPickDirectionCoversBoth(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	seen := map[store.Direction]bool{}
	for i := 0; i < 50; i++ {
		seen[PickDirection(rng)] = true
	}
	if !seen[store.NativeToForeign] || !seen[store.ForeignToNative] {
		t.Fatalf("directions seen = %v", seen)
	}
}
