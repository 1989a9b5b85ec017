package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Request is a single prompt sent to a text model.
type Request struct {
	System      string
	User        string
	Model       string
	Temperature *float64
	MaxTokens   int
	// JSON asks the provider for a JSON object response when it supports it.
	JSON bool
}

type Response struct {
	Text         string
	Provider     string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Generator maps a prompt to generated text.
type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
	Provider() string
}

// Embedder maps text to a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (Response, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (Response, error) { return f(ctx, req) }
func (f GeneratorFunc) Provider() string                                               { return "func" }

// EmbedderFunc adapts a function to Embedder.
type EmbedderFunc func(ctx context.Context, text string) ([]float32, error)

func (f EmbedderFunc) Embed(ctx context.Context, text string) ([]float32, error) { return f(ctx, text) }

// Registry resolves generators by provider name.
type Registry struct {
	mu       sync.RWMutex
	byName   map[string]Generator
	fallback string
}

func NewRegistry(fallback string) *Registry {
	return &Registry{byName: map[string]Generator{}, fallback: normalizeName(fallback)}
}

func (r *Registry) Register(name string, g Generator) {
	if g == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := normalizeName(name)
	r.byName[key] = g
	if r.fallback == "" {
		r.fallback = key
	}
}

// Get returns the named generator, or the fallback when name is empty.
func (r *Registry) Get(name string) (Generator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key := normalizeName(name)
	if key == "" {
		key = r.fallback
	}
	if g, ok := r.byName[key]; ok {
		return g, nil
	}
	return nil, fmt.Errorf("llm provider %q is not configured", key)
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byName))
	for k := range r.byName {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func normalizeName(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
