package llms

import (
	"fmt"

	"github.com/kadirpekel/agentsdk/pkg/registry"
)

// Registry maps provider names to providers.
type Registry struct {
	*registry.BaseRegistry[Provider]
}

func NewRegistry() *Registry {
	return &Registry{
		BaseRegistry: registry.NewBaseRegistry[Provider](),
	}
}

func (r *Registry) RegisterProvider(name string, provider Provider) error {
	if name == "" {
		return fmt.Errorf("provider name cannot be empty")
	}
	if provider == nil {
		return fmt.Errorf("provider cannot be nil")
	}
	return r.Register(name, provider)
}

// CreateFromConfig instantiates and registers a provider for a model
// config.
func (r *Registry) CreateFromConfig(cfg ModelConfig) (Provider, error) {
	var provider Provider

	switch cfg.Provider {
	case "openai":
		provider = NewOpenAIProvider(cfg.APIKey, cfg.BaseURL)
	case "anthropic":
		provider = NewAnthropicProvider(cfg.APIKey, cfg.BaseURL)
	case "mock":
		provider = NewMockProvider()
	default:
		return nil, fmt.Errorf("unsupported provider type: %s (supported: openai, anthropic, mock)", cfg.Provider)
	}

	if err := r.RegisterProvider(cfg.Provider, provider); err != nil {
		return nil, fmt.Errorf("failed to register provider: %w", err)
	}
	return provider, nil
}

// GetProvider returns the provider or an error naming the missing one.
func (r *Registry) GetProvider(name string) (Provider, error) {
	provider, exists := r.Get(name)
	if !exists {
		return nil, fmt.Errorf("provider '%s' not found", name)
	}
	return provider, nil
}
