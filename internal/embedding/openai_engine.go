package embedding

import (
	"context"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/chainforge-ai/chainforge/pkg/logging"
)

const openAIEmbeddingDimensions = 1536

// OpenAIEngine generates embeddings via OpenAI's embeddings endpoint. The
// client is constructed once and reused; there is no per-text model load,
// and NewOpenAIEngine defers building the client until the first Embed call
// to match the "loaded lazily on first call" contract. The dimension is the
// fixed openAIEmbeddingDimensions, not probed from the API.
type OpenAIEngine struct {
	apiKey string
	model  string
	log    *logging.Logger

	once   sync.Once
	client *openai.Client
}

// NewOpenAIEngine builds an engine using OpenAI's text-embedding-3-small
// model, which produces 1536-dimension vectors.
func NewOpenAIEngine(apiKey string, log *logging.Logger) *OpenAIEngine {
	return &OpenAIEngine{apiKey: apiKey, model: "text-embedding-3-small", log: log}
}

func (e *OpenAIEngine) Name() string    { return "openai" }
func (e *OpenAIEngine) Dimensions() int { return openAIEmbeddingDimensions }

func (e *OpenAIEngine) load() {
	e.client = openai.NewClient(e.apiKey)
}

func (e *OpenAIEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	e.once.Do(e.load)

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		e.log.Warn("embedding generation failed, returning no-embedding sentinel", "error", err)
		return NoEmbedding, nil
	}
	if len(resp.Data) == 0 {
		e.log.Warn("embedding request returned no data, returning no-embedding sentinel")
		return NoEmbedding, nil
	}
	return resp.Data[0].Embedding, nil
}
