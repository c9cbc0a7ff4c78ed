package knowledge

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"
)

type retriever struct {
	embedder Embedder
	store    VectorStore
	topK     int
	minScore float64
	logger   *slog.Logger
}

var _ Retriever = (*retriever)(nil)

type Option func(*retriever)

func WithTopK(k int) Option {
	return func(r *retriever) {
		if k > 0 {
			r.topK = k
		}
	}
}

func WithMinScore(score float64) Option {
	return func(r *retriever) {
		if score > 0 {
			r.minScore = score
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *retriever) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRetriever composes an embedder and a vector store into a Retriever.
func NewRetriever(embedder Embedder, store VectorStore, opts ...Option) Retriever {
	r := &retriever{
		embedder: embedder,
		store:    store,
		topK:     DefaultTopK,
		minScore: DefaultMinScore,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Query embeds the question, searches the vector store, and keeps only
// matches scoring above the relevance threshold.
func (r *retriever) Query(ctx context.Context, question string) (*Result, error) {
	if question == "" {
		return nil, errors.New("empty question")
	}

	vector, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, errors.Wrap(err, "embed question")
	}

	matches, err := r.store.Search(ctx, vector, r.topK)
	if err != nil {
		return nil, errors.Wrap(err, "search knowledge base")
	}

	kept := matches[:0]
	for _, m := range matches {
		if m.Score > r.minScore {
			kept = append(kept, m)
		}
	}

	r.logger.Debug("knowledge base queried",
		"question_len", len(question),
		"matches", len(matches),
		"relevant", len(kept))

	return &Result{Question: question, Matches: kept}, nil
}
