package ingestion

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/archon-research/spotrate/internal/domain/entity"
	"github.com/archon-research/spotrate/internal/ports/outbound"
)

// Registry is the ordered set of providers an ingestion run fans out to. Provider names
// are unique; registration order is the order observations are aggregated in.
type Registry struct {
	mu        sync.RWMutex
	providers []outbound.PriceProvider
	names     map[string]struct{}
	logger    *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		names:  make(map[string]struct{}),
		logger: logger.With("component", "provider-registry"),
	}
}

// Register adds a provider. It fails on nil providers and duplicate names.
func (r *Registry) Register(p outbound.PriceProvider) error {
	if p == nil {
		return fmt.Errorf("provider cannot be nil")
	}
	name := p.Name()
	if name == "" {
		return fmt.Errorf("provider name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.names[name]; ok {
		return fmt.Errorf("provider %s already registered", name)
	}
	r.names[name] = struct{}{}
	r.providers = append(r.providers, p)
	r.logger.Info("registered price provider", "provider", name)
	return nil
}

// TryRegister builds a provider and registers it. A configuration error from build,
// such as a missing credential, is logged and the provider is left out; any other
// error is returned.
func (r *Registry) TryRegister(name string, build func() (outbound.PriceProvider, error)) error {
	p, err := build()
	if entity.IsKind(err, entity.KindConfiguration) {
		r.logger.Warn("price provider not configured, skipping", "provider", name, "error", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("building provider %s: %w", name, err)
	}
	return r.Register(p)
}

// Providers returns the registered providers in registration order.
func (r *Registry) Providers() []outbound.PriceProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]outbound.PriceProvider, len(r.providers))
	copy(out, r.providers)
	return out
}

// Len returns the number of registered providers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}
