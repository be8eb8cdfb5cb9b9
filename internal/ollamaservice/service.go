// Package ollamaservice wraps the official Ollama client with the
// availability-check/pull-on-demand behavior the embedding and chat
// adapters both need, grounded on the teacher's
// internal/models/utils/ollama package.
package ollamaservice

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sync"

	"github.com/ollama/ollama/api"
	"github.com/wekui/ragcore/internal/logger"
)

// Service manages a single Ollama daemon connection, pulling models on
// demand and tolerating an unavailable daemon when configured optional.
type Service struct {
	client      *api.Client
	mu          sync.Mutex
	isAvailable bool
	isOptional  bool
}

// New builds a Service from OLLAMA_BASE_URL (or the given default) and
// OLLAMA_OPTIONAL.
func New(baseURL string) (*Service, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if envURL := os.Getenv("OLLAMA_BASE_URL"); envURL != "" {
		baseURL = envURL
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("ollamaservice: invalid base url: %w", err)
	}
	return &Service{
		client:     api.NewClient(parsed, http.DefaultClient),
		isOptional: os.Getenv("OLLAMA_OPTIONAL") == "true",
	}, nil
}

// StartService verifies the daemon is reachable.
func (s *Service) StartService(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.client.Heartbeat(ctx); err != nil {
		s.isAvailable = false
		logger.GetLogger(ctx).Warnf("ollamaservice: daemon unavailable: %v", err)
		if s.isOptional {
			return nil
		}
		return fmt.Errorf("ollamaservice: daemon unavailable: %w", err)
	}
	s.isAvailable = true
	return nil
}

// IsAvailable reports the last-observed daemon reachability.
func (s *Service) IsAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isAvailable
}

// EnsureModelAvailable pulls modelName if it isn't already present.
func (s *Service) EnsureModelAvailable(ctx context.Context, modelName string) error {
	if err := s.StartService(ctx); err != nil {
		return err
	}
	if !s.IsAvailable() && s.isOptional {
		logger.GetLogger(ctx).Warnf("ollamaservice: daemon unavailable, skipping pull of %s", modelName)
		return nil
	}

	list, err := s.client.List(ctx)
	if err != nil {
		return fmt.Errorf("ollamaservice: list models: %w", err)
	}
	for _, m := range list.Models {
		if m.Name == modelName {
			return nil
		}
	}

	logger.GetLogger(ctx).Infof("ollamaservice: pulling model %s", modelName)
	return s.client.Pull(ctx, &api.PullRequest{Name: modelName}, func(api.ProgressResponse) error { return nil })
}

// Chat issues a chat request, streaming responses through fn.
func (s *Service) Chat(ctx context.Context, req *api.ChatRequest, fn api.ChatResponseFunc) error {
	if err := s.StartService(ctx); err != nil {
		return err
	}
	return s.client.Chat(ctx, req, fn)
}

// Embed issues an embedding request.
func (s *Service) Embed(ctx context.Context, req *api.EmbedRequest) (*api.EmbedResponse, error) {
	if err := s.StartService(ctx); err != nil {
		return nil, err
	}
	return s.client.Embed(ctx, req)
}
