package embeddingclient

import (
	"context"
	"fmt"
	"time"

	ollamaapi "github.com/ollama/ollama/api"
	"github.com/wekui/ragcore/internal/logger"
	"github.com/wekui/ragcore/internal/ollamaservice"
)

// ollamaEmbedder embeds text through a local Ollama daemon, grounded on
// the teacher's internal/models/embedding/ollama.go.
type ollamaEmbedder struct {
	service              *ollamaservice.Service
	modelName            string
	truncatePromptTokens int
	dimensions           int
	modelID              string
	pool                 *Pool
}

func newOllamaEmbedder(cfg Config, pool *Pool) (Embedder, error) {
	modelName := cfg.ModelName
	if modelName == "" {
		modelName = "nomic-embed-text"
	}
	truncate := cfg.TruncatePromptTokens
	if truncate == 0 {
		truncate = 511
	}

	service, err := ollamaservice.New(cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	return &ollamaEmbedder{
		service:              service,
		modelName:            modelName,
		truncatePromptTokens: truncate,
		dimensions:           cfg.Dimensions,
		modelID:              cfg.ModelID,
		pool:                 pool,
	}, nil
}

func (e *ollamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embeddingclient: embed text: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embeddingclient: no embedding returned")
	}
	return vectors[0], nil
}

func (e *ollamaEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	return e.pool.run(ctx, texts, e.embedBatch)
}

func (e *ollamaEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.service.EnsureModelAvailable(ctx, e.modelName); err != nil {
		return nil, err
	}

	req := &ollamaapi.EmbedRequest{
		Model:   e.modelName,
		Input:   texts,
		Options: make(map[string]interface{}),
	}
	if e.truncatePromptTokens > 0 {
		req.Options["truncate"] = e.truncatePromptTokens
	}

	start := time.Now()
	resp, err := e.service.Embed(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("embeddingclient: ollama embed request: %w", err)
	}
	logger.GetLogger(ctx).Debugf("ollama embed batch of %d took %v", len(texts), time.Since(start))
	return resp.Embeddings, nil
}

func (e *ollamaEmbedder) ModelName() string { return e.modelName }
func (e *ollamaEmbedder) Dimensions() int   { return e.dimensions }
func (e *ollamaEmbedder) ModelID() string   { return e.modelID }
