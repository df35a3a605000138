// Package openai provides an embedding backend using the OpenAI API.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/quill/internal/core/domain"
	"github.com/custodia-labs/quill/internal/core/ports/driven"
)

// Ensure Backend implements the interface.
var _ driven.EmbeddingBackend = (*Backend)(nil)

// Default configuration values.
const (
	DefaultBaseURL           = "https://api.openai.com/v1"
	DefaultRequestsPerSecond = 3.0
)

// Config holds configuration for the OpenAI backend.
type Config struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// BaseURL is the API base URL (default: https://api.openai.com/v1).
	// Can be changed for Azure OpenAI or compatible APIs.
	BaseURL string

	// RequestsPerSecond paces calls (default: 3).
	RequestsPerSecond float64
}

// Backend generates embeddings using the OpenAI API.
type Backend struct {
	client  *openai.Client
	limiter *rate.Limiter
}

// New creates a new OpenAI backend.
func New(cfg Config) (*Backend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSecond
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL

	return &Backend{
		client:  openai.NewClientWithConfig(clientCfg),
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}, nil
}

// Embed generates embeddings for texts in one request, ordered by input index.
func (b *Backend) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	resp, err := b.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:          texts,
		Model:          openai.EmbeddingModel(model),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	})
	if err != nil {
		return nil, parseAPIError(err)
	}

	embeddings := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(texts) {
			return nil, fmt.Errorf("openai: embedding index %d out of range", data.Index)
		}
		embeddings[data.Index] = data.Embedding
	}
	for i, e := range embeddings {
		if e == nil {
			return nil, fmt.Errorf("openai: no embedding returned for input %d", i)
		}
	}
	return embeddings, nil
}

// Ping validates the API key via ListModels, which runs no inference.
func (b *Backend) Ping(ctx context.Context) error {
	if _, err := b.client.ListModels(ctx); err != nil {
		return parseAPIError(err)
	}
	return nil
}

// parseAPIError classifies API failures. Bad input is INVALID_ARGUMENT;
// auth, quota, server and transport failures mean the model is not ready.
func parseAPIError(err error) error {
	status := 0
	detail := err.Error()

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
		detail = apiErr.Message
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
		if d := extractMessage(reqErr.Body); d != "" {
			detail = d
		}
	}

	msg := fmt.Errorf("openai error (status %d): %s", status, detail)
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return errors.Join(domain.ErrInvalidArgument, msg)
	default:
		return errors.Join(domain.ErrModelNotReady, msg)
	}
}

// extractMessage pulls a message out of an OpenAI-style or detail-style JSON body.
func extractMessage(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
		Error  struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &parsed) != nil {
		return ""
	}
	if parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	return parsed.Detail
}
