package postprocessors

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/custodia-labs/quill/internal/core/domain"
)

// BuilderFunc creates a Stage from the options of a [[pipeline]] entry.
type BuilderFunc func(opts map[string]any) (Stage, error)

type entry struct {
	build BuilderFunc
	keys  []string
}

// Registry maps stage names to their builders and accepted option keys.
type Registry struct {
	entries map[string]entry
}

// NewRegistry creates an empty stage registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds a stage builder. keys lists the option names the builder
// reads; Build rejects anything else so a typo in quill.toml is reported
// instead of silently ignored. Registering a name twice panics.
func (r *Registry) Register(name string, build BuilderFunc, keys ...string) {
	if _, dup := r.entries[name]; dup {
		panic("postprocessors: stage registered twice: " + name)
	}
	sorted := slices.Clone(keys)
	sort.Strings(sorted)
	r.entries[name] = entry{build: build, keys: sorted}
}

// Build creates a stage by name after checking its options.
func (r *Registry) Build(name string, opts map[string]any) (Stage, error) {
	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown stage %q (known: %s)",
			domain.ErrInvalidArgument, name, strings.Join(r.Names(), ", "))
	}
	for key := range opts {
		if !slices.Contains(e.keys, key) {
			return nil, fmt.Errorf("%w: stage %q has no option %q (accepts: %s)",
				domain.ErrInvalidArgument, name, key, describeKeys(e.keys))
		}
	}
	return e.build(opts)
}

// Has reports whether a stage with the given name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.entries[name]
	return ok
}

// Names returns all registered stage names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Keys returns the option keys a stage accepts, sorted.
func (r *Registry) Keys(name string) []string {
	return slices.Clone(r.entries[name].keys)
}

func describeKeys(keys []string) string {
	if len(keys) == 0 {
		return "none"
	}
	return strings.Join(keys, ", ")
}
