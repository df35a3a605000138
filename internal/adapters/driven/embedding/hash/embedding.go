// Package hash provides the built-in offline embedding model.
//
// Texts are tokenised into lowercase word unigrams and bigrams, stopwords
// removed, and each feature is hashed into a signed bucket of a fixed-width
// vector which is then L2-normalised. Texts sharing vocabulary land close
// together; identical texts produce identical vectors on every machine.
package hash

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"

	"github.com/custodia-labs/quill/internal/core/domain"
	"github.com/custodia-labs/quill/internal/core/ports/driven"
)

// Ensure Backend implements the interface.
var _ driven.EmbeddingBackend = (*Backend)(nil)

// bigramWeight scales bigram features relative to unigrams.
const bigramWeight = 0.5

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`)

// Backend embeds text by feature hashing.
type Backend struct {
	stopwords map[string]struct{}
}

// New creates the hashing backend.
func New() *Backend {
	return &Backend{stopwords: defaultStopwords()}
}

// Embed returns one vector per text at the model's dimension.
func (b *Backend) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	m, ok := domain.LookupEmbeddingModel(model)
	if !ok || m.Provider != domain.AIProviderLocal {
		return nil, fmt.Errorf("%w: %q is not a built-in model", domain.ErrInvalidArgument, model)
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = b.Vector(text, m.Dimension)
	}
	return out, nil
}

// Ping always succeeds.
func (b *Backend) Ping(context.Context) error {
	return nil
}

// Vector hashes text into a dim-wide unit vector. Text without tokens yields the zero vector.
func (b *Backend) Vector(text string, dim int) []float32 {
	acc := make([]float64, dim)
	tokens := b.tokenize(text)

	for i, tok := range tokens {
		add(acc, tok, 1)
		if i > 0 {
			add(acc, tokens[i-1]+" "+tok, bigramWeight)
		}
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	vec := make([]float32, dim)
	if norm == 0 {
		return vec
	}
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec
}

func add(acc []float64, feature string, weight float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()

	idx := int(sum % uint64(len(acc)))
	if sum>>63 == 1 {
		weight = -weight
	}
	acc[idx] += weight
}

func (b *Backend) tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, stop := b.stopwords[t]; stop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at",
		"by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "its", "this", "that",
		"these", "those", "from", "into", "about", "than", "so", "such", "can", "will", "just", "not",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
