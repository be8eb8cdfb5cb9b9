package embeddingclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wekui/ragcore/internal/logger"
)

// openAIEmbedder embeds text through an OpenAI-compatible REST API,
// grounded on the teacher's internal/models/embedding/openai.go.
type openAIEmbedder struct {
	apiKey     string
	baseURL    string
	modelName  string
	dimensions int
	modelID    string
	httpClient *http.Client
	maxRetries int
	pool       *Pool
}

type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func newOpenAIEmbedder(cfg Config, pool *Pool) (Embedder, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("embeddingclient: model name is required")
	}

	return &openAIEmbedder{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		modelName:  cfg.ModelName,
		dimensions: cfg.Dimensions,
		modelID:    cfg.ModelID,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		maxRetries: 3,
		pool:       pool,
	}, nil
}

func (e *openAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embeddingclient: no embedding returned")
	}
	return vectors[0], nil
}

func (e *openAIEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	return e.pool.run(ctx, texts, e.embedBatch)
}

func (e *openAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(openAIEmbedRequest{Model: e.modelName, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("embeddingclient: marshal request: %w", err)
	}

	resp, err := e.doWithRetry(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("embeddingclient: send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("embeddingclient: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embeddingclient: embed API error: status %s", resp.Status)
	}

	var parsed openAIEmbedResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("embeddingclient: unmarshal response: %w", err)
	}

	out := make([][]float32, len(parsed.Data))
	for _, d := range parsed.Data {
		out[d.Index] = d.Embedding
	}
	return out, nil
}

func (e *openAIEmbedder) doWithRetry(ctx context.Context, body []byte) (*http.Response, error) {
	url := e.baseURL + "/embeddings"
	var lastErr error

	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			if backoff > 10*time.Second {
				backoff = 10 * time.Second
			}
			logger.GetLogger(ctx).Infof("embeddingclient: retrying embed request (%d/%d) in %v", attempt, e.maxRetries, backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			lastErr = err
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+e.apiKey)

		resp, err := e.httpClient.Do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		logger.GetLogger(ctx).Warnf("embeddingclient: embed request failed (attempt %d/%d): %v", attempt+1, e.maxRetries+1, err)
	}
	return nil, lastErr
}

func (e *openAIEmbedder) ModelName() string { return e.modelName }
func (e *openAIEmbedder) Dimensions() int   { return e.dimensions }
func (e *openAIEmbedder) ModelID() string   { return e.modelID }
