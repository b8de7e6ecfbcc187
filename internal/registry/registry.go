// Package registry maps source type names to the factories that build event
// sources from their configuration blocks.
//
// Modules register themselves at startup; the set compiled into the binary
// is fixed in internal/app. An unknown source type in the configuration is a
// startup error, not a runtime one.
package registry

import (
	"context"
	"fmt"
	"sort"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/buildtreego/internal/config"
	"github.com/vk/buildtreego/internal/event"
)

// Sink receives decoded events from a source. The aggregator's OnEvent
// satisfies it.
type Sink func(ctx context.Context, e event.Event)

// Source is a running producer of build events.
type Source interface {
	// Name identifies the source in logs.
	Name() string
	// Run feeds events into the sink until the context is cancelled or the
	// source is exhausted. Replay-style sources return nil at end of input;
	// streaming sources normally only return on cancellation.
	Run(ctx context.Context, sink Sink) error
}

// Factory builds a source from the evaluated attributes of its config block.
type Factory func(opts map[string]cty.Value) (Source, error)

// Module is implemented by every pluggable source package.
type Module interface {
	Register(r *Registry)
}

// Registry holds the source factories of one application instance.
type Registry struct {
	factories map[string]Factory
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// RegisterSource adds a factory under the given type name.
func (r *Registry) RegisterSource(typeName string, f Factory) {
	r.factories[typeName] = f
}

// NewSource instantiates the source declared by the config block.
func (r *Registry) NewSource(cfg config.SourceBlock) (Source, error) {
	factory, ok := r.factories[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unknown source type %q at %s (registered: %v)", cfg.Type, cfg.DeclRange, r.Types())
	}
	src, err := factory(cfg.Options)
	if err != nil {
		return nil, fmt.Errorf("source %q at %s: %w", cfg.Type, cfg.DeclRange, err)
	}
	return src, nil
}

// Types returns the registered source type names, sorted.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
