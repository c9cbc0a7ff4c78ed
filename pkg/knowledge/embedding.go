package knowledge

import (
	"context"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
)

const defaultEmbeddingModel = "text-embedding-3-large"

// Embedder generates a fixed-dimension vector for a text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type embeddingCreator interface {
	CreateEmbeddings(ctx context.Context, request openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

type openAIEmbedder struct {
	client     embeddingCreator
	model      string
	dimensions int
}

var _ Embedder = (*openAIEmbedder)(nil)

// NewOpenAIEmbedder creates an Embedder backed by OpenAI's embeddings
// API, pinned to the index's vector dimensions.
func NewOpenAIEmbedder(apiKey, model string) Embedder {
	return newEmbedder(openai.NewClient(apiKey), model)
}

func newEmbedder(client embeddingCreator, model string) *openAIEmbedder {
	if model == "" {
		model = defaultEmbeddingModel
	}
	return &openAIEmbedder{
		client:     client,
		model:      model,
		dimensions: EmbeddingDimensions,
	}
}

func (e *openAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, errors.New("empty embedding input")
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: e.dimensions,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create embeddings")
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("empty embedding response")
	}

	vector := resp.Data[0].Embedding
	if len(vector) != e.dimensions {
		return nil, errors.Errorf("embedding has %d dimensions, want %d", len(vector), e.dimensions)
	}
	return vector, nil
}
