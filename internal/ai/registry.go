package ai

import (
	"context"
	"fmt"
	"sort"

	"github.com/spigell/resume-analyzer/internal/config"
	"go.uber.org/zap"
)

// Factory builds a provider named name from its configuration.
type Factory func(ctx context.Context, name string, cfg *config.ProviderConfig, logger *zap.Logger) (Provider, error)

// Registry maps provider kind tags to factories. It is populated at startup
// and read-only afterwards.
type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) Register(kind string, f Factory) {
	if f == nil {
		panic("ai: nil factory for kind " + kind)
	}
	if _, exists := r.factories[kind]; exists {
		panic("ai: factory already registered for kind " + kind)
	}
	r.factories[kind] = f
}

// Kinds returns the registered kind tags in sorted order.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// New constructs the provider for cfg.Kind.
func (r *Registry) New(ctx context.Context, name string, cfg *config.ProviderConfig, logger *zap.Logger) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: provider %q has no configuration", config.ErrConfiguration, name)
	}
	f, ok := r.factories[cfg.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown provider kind %q", config.ErrConfiguration, cfg.Kind)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return f(ctx, name, cfg, logger)
}
