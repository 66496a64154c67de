package lesson

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kastelov/lexitrain/internal/embedding"
	"github.com/kastelov/lexitrain/internal/store"
	"github.com/kastelov/lexitrain/internal/vectorstore"
)

// wordsCollection is the Qdrant collection holding one point per word, keyed
// by the word's UUID with a payload of word_id, language, cefr and text.
const wordsCollection = "lexitrain_words"

// VectorIndex is the vector store surface the semantic pool needs;
// *vectorstore.Client implements it.
type VectorIndex interface {
	EnsureCollection(ctx context.Context, name string, dimension uint64) error
	Upsert(ctx context.Context, collection string, id string, vector []float32, payload map[string]string) error
	SearchFiltered(ctx context.Context, collection string, vector []float32, topK uint64,
		must map[string]string, excludeIDs []string) ([]*vectorstore.SearchResult, error)
}

// WordGetter resolves word IDs to full rows.
type WordGetter interface {
	GetWord(ctx context.Context, id string) (*store.Word, error)
}

// SemanticPool serves distractors that are semantically close to the quizzed
// word, which makes multiple-choice questions harder than random picks.
// Indexing and lookup are both best-effort; callers fall back to the random
// pool when the vector side is empty or unavailable.
type SemanticPool struct {
	embedder embedding.Provider
	index    VectorIndex
	words    WordGetter
	logger   *zap.Logger
}

// NewSemanticPool creates a semantic distractor pool.
func NewSemanticPool(embedder embedding.Provider, index VectorIndex, words WordGetter, logger *zap.Logger) *SemanticPool {
	return &SemanticPool{
		embedder: embedder,
		index:    index,
		words:    words,
		logger:   logger,
	}
}

// Init ensures the backing collection exists.
func (p *SemanticPool) Init(ctx context.Context) error {
	return p.index.EnsureCollection(ctx, wordsCollection, uint64(p.embedder.Dimension()))
}

// Index embeds and upserts one word into the collection.
func (p *SemanticPool) Index(ctx context.Context, w *store.Word) error {
	vectors, err := p.embedder.Embed(ctx, []string{w.Text})
	if err != nil {
		return fmt.Errorf("embed word %s: %w", w.ID, err)
	}
	if len(vectors) == 0 {
		return fmt.Errorf("embed word %s: empty result", w.ID)
	}
	err = p.index.Upsert(ctx, wordsCollection, w.ID, vectors[0], map[string]string{
		"word_id":  w.ID,
		"language": w.Language,
		"cefr":     w.CEFR,
		"text":     w.Text,
	})
	if err != nil {
		return fmt.Errorf("index word %s: %w", w.ID, err)
	}
	return nil
}

// Distractors returns up to limit same-language words nearest to w in
// embedding space, excluding w itself.
func (p *SemanticPool) Distractors(ctx context.Context, w *store.Word, limit int) ([]*store.Word, error) {
	vectors, err := p.embedder.Embed(ctx, []string{w.Text})
	if err != nil {
		return nil, fmt.Errorf("embed query %s: %w", w.ID, err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embed query %s: empty result", w.ID)
	}

	hits, err := p.index.SearchFiltered(ctx, wordsCollection, vectors[0], uint64(limit),
		map[string]string{"language": w.Language}, []string{w.ID})
	if err != nil {
		return nil, fmt.Errorf("distractor search %s: %w", w.ID, err)
	}

	out := make([]*store.Word, 0, len(hits))
	for _, hit := range hits {
		word, err := p.words.GetWord(ctx, hit.ID)
		if err != nil {
			p.logger.Warn("stale vector point",
				zap.String("word_id", hit.ID), zap.Error(err))
			continue
		}
		out = append(out, word)
	}
	return out, nil
}
