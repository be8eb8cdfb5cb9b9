// Package embeddingclient adapts external embedding providers (local
// Ollama, remote OpenAI-compatible APIs) behind a single Embedder
// interface, grounded on the teacher's internal/models/embedding package.
package embeddingclient

import (
	"context"
	"fmt"
	"strings"
)

// Embedder converts text into dense vectors for the retrieval pipeline's
// dense leg, per spec.md §4.1.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
	Dimensions() int
	ModelID() string
}

// Source selects which provider backs an Embedder.
type Source string

const (
	SourceLocal  Source = "local"
	SourceRemote Source = "remote"
)

// Config configures a single Embedder instance.
type Config struct {
	Source               Source
	BaseURL              string
	ModelName            string
	APIKey               string
	TruncatePromptTokens int
	Dimensions           int
	ModelID              string
}

// New builds an Embedder for the given config, pooling batch work across
// a shared worker pool (see pool.go).
func New(cfg Config, pool *Pool) (Embedder, error) {
	switch strings.ToLower(string(cfg.Source)) {
	case string(SourceLocal):
		return newOllamaEmbedder(cfg, pool)
	case string(SourceRemote):
		return newOpenAIEmbedder(cfg, pool)
	default:
		return nil, fmt.Errorf("embeddingclient: unsupported source %q", cfg.Source)
	}
}
