package domain

import "time"

const unknownDescription = "Unknown"

// AIProvider identifies an embedding backend.
type AIProvider string

// Available AI providers.
const (
	// AIProviderLocal is the built-in feature-hashing model; it needs no network.
	AIProviderLocal AIProvider = "local"

	// AIProviderOllama is local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is OpenAI cloud API.
	AIProviderOpenAI AIProvider = "openai"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderLocal, AIProviderOllama, AIProviderOpenAI:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI
}

// IsLocal returns true if this provider runs on this machine.
func (p AIProvider) IsLocal() bool {
	return p == AIProviderLocal || p == AIProviderOllama
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderLocal:
		return "Built-in (offline)"
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI (cloud)"
	default:
		return unknownDescription
	}
}

// EmbeddingModel describes one entry of the embedding allow-list.
type EmbeddingModel struct {
	ID       string
	Provider AIProvider

	// Dimension is what the model is known to return. The vector store trusts
	// the dimension reported with each response, not this value.
	Dimension int
}

// DefaultEmbeddingModel is used when no model is configured.
const DefaultEmbeddingModel = "hash-384"

// embeddingModels is the fixed allow-list of models the worker may load.
var embeddingModels = map[string]EmbeddingModel{
	"hash-384":               {ID: "hash-384", Provider: AIProviderLocal, Dimension: 384},
	"nomic-embed-text":       {ID: "nomic-embed-text", Provider: AIProviderOllama, Dimension: 768},
	"mxbai-embed-large":      {ID: "mxbai-embed-large", Provider: AIProviderOllama, Dimension: 1024},
	"all-minilm":             {ID: "all-minilm", Provider: AIProviderOllama, Dimension: 384},
	"text-embedding-3-small": {ID: "text-embedding-3-small", Provider: AIProviderOpenAI, Dimension: 1536},
	"text-embedding-3-large": {ID: "text-embedding-3-large", Provider: AIProviderOpenAI, Dimension: 3072},
}

// LookupEmbeddingModel resolves a model id against the allow-list.
func LookupEmbeddingModel(id string) (EmbeddingModel, bool) {
	m, ok := embeddingModels[id]
	return m, ok
}

// EmbeddingModelIDs returns the allow-listed model ids.
func EmbeddingModelIDs() []string {
	ids := make([]string, 0, len(embeddingModels))
	for id := range embeddingModels {
		ids = append(ids, id)
	}
	return ids
}

// Embedding service limits.
const (
	// MaxEmbedBatch is the largest batch a single encode call accepts.
	MaxEmbedBatch = 64

	// DefaultEmbedBatch is the sub-batch size the indexer uses.
	DefaultEmbedBatch = 24

	DefaultEmbedTimeout = 120 * time.Second
	MinEmbedTimeout     = 10 * time.Second
	MaxEmbedTimeout     = 600 * time.Second
)

// ClampEmbedTimeout applies the default and the allowed range to a timeout.
func ClampEmbedTimeout(d time.Duration) time.Duration {
	switch {
	case d <= 0:
		return DefaultEmbedTimeout
	case d < MinEmbedTimeout:
		return MinEmbedTimeout
	case d > MaxEmbedTimeout:
		return MaxEmbedTimeout
	default:
		return d
	}
}

// Embeddings is the result of one encode call.
type Embeddings struct {
	Dimension int
	Vectors   [][]float32
}
