package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Options carries the per-call settings a factory needs; empty fields mean
// "use the factory's default".
type Options struct {
	Model   string
	BaseURL string
	APIKey  string
}

type ProviderFactory func(ctx context.Context, opts Options) (Provider, error)

type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ProviderFactory)}
}

func (r *Registry) Register(name string, f ProviderFactory) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

func (r *Registry) Get(ctx context.Context, name string, opts Options) (Provider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown ai provider: %s", name)
	}
	return f(ctx, opts)
}

func (r *Registry) Has(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for n := range r.factories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Defaults holds the process-wide provider settings resolved at start-up.
type Defaults struct {
	GoogleBaseURL string
	GoogleAPIKey  string
	GoogleModel   string

	OllamaBaseURL string
	OllamaModel   string

	OpenAIBaseURL string
	OpenAIAPIKey  string
	OpenAIModel   string

	// RetryAttempts applies to the local provider only.
	RetryAttempts int
	RetryBase     time.Duration
	ProbeTimeout  time.Duration
}

// NewDefaultRegistry registers the google, ollama and openai adapters.
func NewDefaultRegistry(d Defaults) *Registry {
	reg := NewRegistry()

	reg.Register(ProviderGoogle, func(_ context.Context, opts Options) (Provider, error) {
		key := firstNonEmpty(opts.APIKey, d.GoogleAPIKey)
		p := NewGoogleProvider(firstNonEmpty(opts.BaseURL, d.GoogleBaseURL), key, firstNonEmpty(opts.Model, d.GoogleModel))
		if d.ProbeTimeout > 0 {
			p.ProbeTimeout = d.ProbeTimeout
		}
		return p, nil
	})

	reg.Register(ProviderOllama, func(_ context.Context, opts Options) (Provider, error) {
		p := NewOllamaProvider(firstNonEmpty(opts.BaseURL, d.OllamaBaseURL), firstNonEmpty(opts.Model, d.OllamaModel))
		if d.ProbeTimeout > 0 {
			p.ProbeTimeout = d.ProbeTimeout
		}
		if d.RetryAttempts > 1 {
			return WithRetry(p, d.RetryAttempts, d.RetryBase), nil
		}
		return p, nil
	})

	reg.Register(ProviderOpenAI, func(_ context.Context, opts Options) (Provider, error) {
		p := NewOpenAIProvider(firstNonEmpty(opts.BaseURL, d.OpenAIBaseURL), firstNonEmpty(opts.APIKey, d.OpenAIAPIKey), firstNonEmpty(opts.Model, d.OpenAIModel))
		if d.ProbeTimeout > 0 {
			p.ProbeTimeout = d.ProbeTimeout
		}
		return p, nil
	})

	return reg
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
