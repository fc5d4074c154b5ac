package ai

import (
	"context"
	"time"
)

const (
	ProviderGoogle = "google"
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Message is one conversation turn. Role uses the vocabulary of the provider
// it is sent to, see Dialect.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Dialect describes the role vocabulary a provider expects.
// An empty SystemRole means the provider has no dedicated system turn.
type Dialect struct {
	UserRole      string
	AssistantRole string
	SystemRole    string
}

var (
	// ChatDialect is used by chat-completion style APIs (Ollama, OpenAI).
	ChatDialect = Dialect{UserRole: "user", AssistantRole: "assistant", SystemRole: "system"}
	// GeminiDialect has no system role and calls the assistant "model".
	GeminiDialect = Dialect{UserRole: "user", AssistantRole: "model"}
)

type Result struct {
	Content string
	Tokens  int
	Latency time.Duration
}

type Provider interface {
	Name() string
	Dialect() Dialect
	Generate(ctx context.Context, messages []Message) (*Result, error)
}

// Prober is implemented by providers that can check connectivity without
// generating anything.
type Prober interface {
	Probe(ctx context.Context) error
}

// Probe runs a connectivity check against p, looking through wrappers.
// Providers without a probe are assumed reachable.
func Probe(ctx context.Context, p Provider) error {
	for p != nil {
		if pr, ok := p.(Prober); ok {
			return pr.Probe(ctx)
		}
		u, ok := p.(interface{ Unwrap() Provider })
		if !ok {
			return nil
		}
		p = u.Unwrap()
	}
	return nil
}

func newResult(content string, tokens int, start time.Time) *Result {
	if tokens < 0 {
		tokens = 0
	}
	return &Result{Content: content, Tokens: tokens, Latency: time.Since(start)}
}
