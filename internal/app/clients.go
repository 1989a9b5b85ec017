package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/ideaforge-backend/internal/generation/dedupe"
	"github.com/yungbote/ideaforge-backend/internal/llm"
	"github.com/yungbote/ideaforge-backend/internal/platform/anthropic"
	"github.com/yungbote/ideaforge-backend/internal/platform/apierr"
	"github.com/yungbote/ideaforge-backend/internal/platform/gemini"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
	"github.com/yungbote/ideaforge-backend/internal/platform/openai"
	"github.com/yungbote/ideaforge-backend/internal/realtime/bus"
)

type Clients struct {
	LLMs     *llm.Registry
	Embedder llm.Embedder
	Bus      bus.Bus
}

// wireClients registers every provider with credentials. Providers without
// a key are skipped; a profile naming one fails at config_load.
func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	registry := llm.NewRegistry(cfg.LLMProvider)
	embedders := map[string]llm.Embedder{}

	if cfg.OpenAIAPIKey != "" {
		c, err := openai.NewClient(log, openai.Config{
			APIKey:          cfg.OpenAIAPIKey,
			BaseURL:         cfg.OpenAIBaseURL,
			Model:           cfg.OpenAIModel,
			EmbedModel:      cfg.OpenAIEmbedModel,
			EmbedDimensions: cfg.EmbeddingDim,
			Timeout:         cfg.OpenAITimeout,
			MaxRetries:      cfg.OpenAIMaxRetries,
		})
		if err != nil {
			return Clients{}, fmt.Errorf("init openai client: %w", err)
		}
		registry.Register(openai.ProviderName, c)
		embedders[openai.ProviderName] = c
	}
	if cfg.GeminiAPIKey != "" {
		c, err := gemini.NewClient(ctx, log, gemini.Config{
			APIKey:          cfg.GeminiAPIKey,
			Model:           cfg.GeminiModel,
			EmbedModel:      cfg.GeminiEmbedModel,
			EmbedDimensions: cfg.EmbeddingDim,
		})
		if err != nil {
			return Clients{}, fmt.Errorf("init gemini client: %w", err)
		}
		registry.Register(gemini.ProviderName, c)
		embedders[gemini.ProviderName] = c
	}
	if cfg.AnthropicAPIKey != "" {
		c, err := anthropic.NewClient(ctx, log, anthropic.Config{
			APIKey: cfg.AnthropicAPIKey,
			Model:  cfg.AnthropicModel,
		})
		if err != nil {
			return Clients{}, fmt.Errorf("init anthropic client: %w", err)
		}
		registry.Register(anthropic.ProviderName, c)
	}
	if len(registry.Names()) == 0 {
		log.Warn("No LLM provider credentials configured; generation will fail at config_load")
	}

	var embedder llm.Embedder = unconfiguredEmbedder(cfg.EmbeddingProvider)
	if e, ok := embedders[strings.ToLower(cfg.EmbeddingProvider)]; ok {
		cached, err := llm.NewCachedEmbedder(e, cfg.EmbeddingCacheSize)
		if err != nil {
			return Clients{}, fmt.Errorf("init embedding cache: %w", err)
		}
		embedder = cached
	} else {
		log.Warn("Embedding provider not configured; semantic duplicate checks will fail", "provider", cfg.EmbeddingProvider)
	}

	var b bus.Bus
	if cfg.RedisAddr != "" {
		rb, err := bus.NewRedisBus(log, bus.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Channel:  cfg.RedisChannel,
		})
		if err != nil {
			return Clients{}, fmt.Errorf("init redis event bus: %w", err)
		}
		b = rb
	}

	return Clients{LLMs: registry, Embedder: embedder, Bus: b}, nil
}

func unconfiguredEmbedder(provider string) llm.Embedder {
	return llm.EmbedderFunc(func(ctx context.Context, text string) ([]float32, error) {
		return nil, apierr.ExternalService(dedupe.CodeEmbeddingUnavailable,
			errors.New("embedding provider "+provider+" has no credentials configured"))
	})
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Bus != nil {
		_ = c.Bus.Close()
	}
}
