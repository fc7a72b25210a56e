package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jwebster45206/laissez-faire/internal/config"
	"github.com/jwebster45206/laissez-faire/pkg/judgment"
)

// Registry holds the configured LLM services by provider name.
type Registry struct {
	services map[string]LLMService
	closers  []func() error
}

// BuildRegistry constructs and initializes every provider in cfg.
func BuildRegistry(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Registry, error) {
	reg := &Registry{services: make(map[string]LLMService, len(cfg.Providers))}

	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pc := cfg.Providers[name]
		log := logger.With("provider", name, "kind", pc.Kind)

		svc, err := reg.build(ctx, pc, log)
		if err != nil {
			_ = reg.Close()
			return nil, fmt.Errorf("failed to build provider %s: %w", name, err)
		}
		if err := svc.InitModel(ctx, pc.Model); err != nil {
			_ = reg.Close()
			return nil, fmt.Errorf("failed to initialize provider %s: %w", name, err)
		}
		reg.services[name] = svc
		log.Debug("provider ready", "model", pc.Model)
	}
	return reg, nil
}

func (r *Registry) build(ctx context.Context, pc config.ProviderConfig, log *slog.Logger) (LLMService, error) {
	switch pc.Kind {
	case config.KindOpenAI:
		return NewOpenAIService(pc.BaseURL, pc.APIKey, pc.Model, log), nil
	case config.KindVenice:
		return NewVeniceService(pc.BaseURL, pc.APIKey, pc.Model, log), nil
	case config.KindAnthropic:
		return NewAnthropicService(pc.BaseURL, pc.APIKey, pc.Model, log), nil
	case config.KindOllama:
		return NewOllamaService(pc.BaseURL, pc.Model, log), nil
	case config.KindGemini:
		svc, err := NewGeminiService(ctx, pc.APIKey, pc.Model, log)
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, svc.Close)
		return svc, nil
	case config.KindMock:
		return NewMockLLMAPI(), nil
	}
	return nil, fmt.Errorf("unknown provider kind %q", pc.Kind)
}

// Providers returns the services as judgment providers.
func (r *Registry) Providers() map[string]judgment.Provider {
	out := make(map[string]judgment.Provider, len(r.services))
	for name, svc := range r.services {
		out[name] = svc
	}
	return out
}

// Service returns the named service.
func (r *Registry) Service(name string) (LLMService, bool) {
	svc, ok := r.services[name]
	return svc, ok
}

func (r *Registry) Close() error {
	var firstErr error
	for _, c := range r.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.closers = nil
	return firstErr
}
