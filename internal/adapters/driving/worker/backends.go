package worker

import (
	"time"

	"github.com/custodia-labs/quill/internal/adapters/driven/embedding/hash"
	"github.com/custodia-labs/quill/internal/adapters/driven/embedding/ollama"
	"github.com/custodia-labs/quill/internal/adapters/driven/embedding/openai"
	"github.com/custodia-labs/quill/internal/core/domain"
	"github.com/custodia-labs/quill/internal/core/ports/driven"
)

// BackendConfig selects and configures inference backends.
type BackendConfig struct {
	OllamaURL         string
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	RequestsPerSecond float64
	HTTPTimeout       time.Duration
}

// NewBackends builds the provider table. The built-in and Ollama backends
// are always present; OpenAI is present only with an API key.
func NewBackends(cfg BackendConfig) map[domain.AIProvider]driven.EmbeddingBackend {
	backends := map[domain.AIProvider]driven.EmbeddingBackend{
		domain.AIProviderLocal:  hash.New(),
		domain.AIProviderOllama: ollama.New(ollama.Config{BaseURL: cfg.OllamaURL, Timeout: cfg.HTTPTimeout}),
	}

	if cfg.OpenAIAPIKey != "" {
		if b, err := openai.New(openai.Config{
			APIKey:            cfg.OpenAIAPIKey,
			BaseURL:           cfg.OpenAIBaseURL,
			RequestsPerSecond: cfg.RequestsPerSecond,
		}); err == nil {
			backends[domain.AIProviderOpenAI] = b
		}
	}
	return backends
}
