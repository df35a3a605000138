// Package ollama embeds text through an Ollama server. It runs inside the
// embedding worker process, never in the caller.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/custodia-labs/quill/internal/core/domain"
	"github.com/custodia-labs/quill/internal/core/ports/driven"
)

var _ driven.EmbeddingBackend = (*Backend)(nil)

const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultTimeout = 60 * time.Second
)

// Config points the backend at an Ollama server. Zero values take the
// defaults above.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Backend generates embeddings using a local Ollama server.
type Backend struct {
	client  *http.Client
	baseURL string
}

// embedRequest is the Ollama /api/embed request format.
type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// embedResponse is the Ollama /api/embed response format.
type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// New creates a new Ollama backend.
func New(cfg Config) *Backend {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Backend{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: cfg.BaseURL,
	}
}

// Embed generates one vector per text in a single batched call.
func (b *Backend) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	jsonBody, err := json.Marshal(embedRequest{Model: model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		b.baseURL+"/api/embed",
		bytes.NewReader(jsonBody),
	)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: ollama unreachable: %v", domain.ErrModelNotReady, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var embedResp embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if err := checkShape(embedResp.Embeddings, len(texts)); err != nil {
		return nil, err
	}
	return embedResp.Embeddings, nil
}

// checkShape rejects replies that would break the one-dimension-per-call
// contract: a count mismatch, an empty vector or mixed widths.
func checkShape(vectors [][]float32, want int) error {
	if len(vectors) != want {
		return fmt.Errorf("ollama returned %d embeddings for %d inputs", len(vectors), want)
	}
	if want == 0 {
		return nil
	}
	dim := len(vectors[0])
	if dim == 0 {
		return errors.New("ollama returned an empty embedding")
	}
	for i, v := range vectors[1:] {
		if len(v) != dim {
			return fmt.Errorf("ollama returned mixed widths: %d at 0, %d at %d", dim, len(v), i+1)
		}
	}
	return nil
}

// Ping checks /api/tags, which answers without loading a model.
func (b *Backend) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/api/tags", http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: ollama unreachable: %v", domain.ErrModelNotReady, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	return nil
}

// statusError classifies a non-200 reply. 4xx other than 404 is a caller error;
// a missing model or a server failure means the model is not ready.
func statusError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		body = []byte("failed to read body")
	}
	msg := fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, bytes.TrimSpace(body))

	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusNotFound {
		return errors.Join(domain.ErrInvalidArgument, msg)
	}
	return errors.Join(domain.ErrModelNotReady, msg)
}
