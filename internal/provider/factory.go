package provider

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Registry is the set of channels the HealthChecker probes. The worker
// registers only the active channel, wrapped in its breaker.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Provider)}
}

// Register adds p, replacing any channel with the same name.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	r.byName[p.GetName()] = p
	r.mu.Unlock()
}

func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.byName[name]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("provider %q is not registered", name)
}

// List returns the registered names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns the registered channels ordered by name.
func (r *Registry) All() []Provider {
	names := r.List()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, 0, len(names))
	for _, name := range names {
		if p, ok := r.byName[name]; ok {
			out = append(out, p)
		}
	}
	return out
}

type constructor func(cfg ProviderConfig, client HTTPClient) Provider

var constructors = map[string]constructor{
	"resend":   func(cfg ProviderConfig, c HTTPClient) Provider { return NewResend(cfg, c) },
	"sendgrid": func(cfg ProviderConfig, c HTTPClient) Provider { return NewSendGrid(cfg, c) },
	"mailgun":  func(cfg ProviderConfig, c HTTPClient) Provider { return NewMailgun(cfg, c) },
	"smtp":     func(cfg ProviderConfig, _ HTTPClient) Provider { return NewSMTP(cfg) },
	"stdout":   func(cfg ProviderConfig, _ HTTPClient) Provider { return NewStdout(cfg) },
	"file":     func(cfg ProviderConfig, _ HTTPClient) Provider { return NewFile(cfg) },
}

// SupportedTypes lists the accepted provider.type values.
func SupportedTypes() []string {
	types := make([]string, 0, len(constructors))
	for t := range constructors {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// NewProvider builds the bare channel selected by cfg.Type.
func NewProvider(cfg ProviderConfig, client HTTPClient) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid provider config: %w", err)
	}
	build, ok := constructors[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported provider type %q (want one of %v)", cfg.Type, SupportedTypes())
	}
	return build(cfg, client), nil
}

// NewChannel builds the channel used for dispatch: the configured provider
// behind a circuit breaker, registered for health probing.
func NewChannel(cfg ProviderConfig, client HTTPClient, logger zerolog.Logger) (*Breaker, *Registry, error) {
	p, err := NewProvider(cfg, client)
	if err != nil {
		return nil, nil, err
	}
	b := NewBreaker(p, cfg, logger)
	registry := NewRegistry()
	registry.Register(b)
	return b, registry, nil
}
