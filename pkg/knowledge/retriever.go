// Package knowledge answers natural-language questions against a vector
// knowledge base: embed the question, run a similarity search, keep
// only the matches relevant enough to cite.
package knowledge

import "context"

const (
	// DefaultTopK is how many nearest neighbors the search requests.
	DefaultTopK = 3
	// DefaultMinScore filters weak matches out of the response.
	DefaultMinScore = 0.7
	// EmbeddingDimensions is fixed by the index layout.
	EmbeddingDimensions = 1536
)

// Metadata describes one knowledge base entry. Missing fields are
// normalized to empty values, never nil.
type Metadata struct {
	Question string   `json:"question"`
	Source   string   `json:"source"`
	Summary  string   `json:"summary"`
	Tags     []string `json:"tags"`
	Text     string   `json:"text"`
}

// Match is one similarity search hit.
type Match struct {
	ID       string
	Score    float64
	Metadata Metadata
}

// Result is the outcome of a knowledge base query.
type Result struct {
	Question string
	Matches  []Match
}

// Snippets returns the matched text bodies, most relevant first.
func (r *Result) Snippets() []string {
	if len(r.Matches) == 0 {
		return nil
	}
	out := make([]string, 0, len(r.Matches))
	for _, m := range r.Matches {
		out = append(out, m.Metadata.Text)
	}
	return out
}

// Retriever queries the knowledge base.
type Retriever interface {
	Query(ctx context.Context, question string) (*Result, error)
}
