package payment

import (
	"strings"

	"github.com/smallbiznis/subsync/internal/providers/payment/domain"
)

// Registry maps a configured client mode to the factory that builds it.
type Registry struct {
	factories map[string]domain.ClientFactory
}

func NewRegistry(factories ...domain.ClientFactory) *Registry {
	registry := &Registry{factories: map[string]domain.ClientFactory{}}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(factory.Name()))
		if name == "" {
			continue
		}
		registry.factories[name] = factory
	}
	return registry
}

func (r *Registry) Exists(name string) bool {
	if r == nil {
		return false
	}
	_, ok := r.factories[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

func (r *Registry) NewClient(name string, cfg domain.ClientConfig) (domain.Client, error) {
	if r == nil {
		return nil, domain.ErrClientNotFound
	}
	factory, ok := r.factories[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, domain.ErrClientNotFound
	}
	return factory.NewClient(cfg)
}
