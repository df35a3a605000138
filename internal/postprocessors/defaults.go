package postprocessors

import (
	"fmt"

	"github.com/custodia-labs/quill/internal/core/domain"
	"github.com/custodia-labs/quill/internal/postprocessors/chunker"
	"github.com/custodia-labs/quill/internal/postprocessors/entity"
)

// StageConfig names a stage and its options, in pipeline order.
type StageConfig struct {
	Name    string
	Options map[string]any
}

// DefaultStages is the chunker followed by the entity extractor.
var DefaultStages = []StageConfig{{Name: "chunker"}, {Name: "entity"}}

// RegisterDefaults registers the built-in stages.
func RegisterDefaults(r *Registry) {
	r.Register("chunker", buildChunker, "keep_headings", "min_length")
	r.Register("entity", buildEntity, "heading_scan_lines")
}

// Build assembles a pipeline from stage configs. An empty list uses
// DefaultStages. A stage may appear at most once, and the chunker must be
// present since every article needs at least its passages.
func Build(r *Registry, stages []StageConfig) (*Pipeline, error) {
	if len(stages) == 0 {
		stages = DefaultStages
	}

	seen := make(map[string]bool, len(stages))
	p := NewPipeline()
	for _, sc := range stages {
		if seen[sc.Name] {
			return nil, fmt.Errorf("building pipeline: %w: stage %q listed twice",
				domain.ErrInvalidArgument, sc.Name)
		}
		seen[sc.Name] = true

		stage, err := r.Build(sc.Name, sc.Options)
		if err != nil {
			return nil, fmt.Errorf("building pipeline: %w", err)
		}
		p.Add(stage)
	}
	if !seen["chunker"] {
		return nil, fmt.Errorf("building pipeline: %w: chunker stage is required",
			domain.ErrInvalidArgument)
	}
	return p, nil
}

// NewDefaultPipeline returns the built-in pipeline with default options.
func NewDefaultPipeline() *Pipeline {
	return NewPipeline(chunker.New(), entity.New())
}

// buildChunker creates a chunker stage from generic config.
// Supported config keys:
//   - keep_headings (bool): Keep heading-only paragraphs (default: false)
//   - min_length (int): Drop paragraphs shorter than this many runes (default: 0)
func buildChunker(cfg map[string]any) (Stage, error) {
	var opts []chunker.Option

	if cfg != nil {
		if v, ok := cfg["keep_headings"]; ok {
			keep, isBool := v.(bool)
			if !isBool {
				return nil, fmt.Errorf("%w: keep_headings must be a boolean", domain.ErrInvalidArgument)
			}
			opts = append(opts, chunker.WithKeepHeadings(keep))
		}
		if n := getIntFromConfig(cfg, "min_length"); n > 0 {
			opts = append(opts, chunker.WithMinLength(n))
		}
	}

	return chunker.New(opts...), nil
}

// buildEntity creates an entity extraction stage from generic config.
// Supported config keys:
//   - heading_scan_lines (int): Body lines searched for a name heading (default: 20)
func buildEntity(cfg map[string]any) (Stage, error) {
	var opts []entity.Option

	if cfg != nil {
		if n := getIntFromConfig(cfg, "heading_scan_lines"); n > 0 {
			opts = append(opts, entity.WithHeadingScanLines(n))
		}
	}

	return entity.New(opts...), nil
}

// getIntFromConfig safely extracts an int from generic config map.
// Handles int, int64, and float64 types that may come from TOML/JSON parsing.
func getIntFromConfig(cfg map[string]any, key string) int {
	val, ok := cfg[key]
	if !ok {
		return 0
	}

	switch v := val.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
