package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultOllamaBaseURL = "http://localhost:11434"
	DefaultOllamaModel   = "llama3:latest"
	DefaultProbeTimeout  = 5 * time.Second
)

type OllamaProvider struct {
	BaseURL      string
	Model        string
	ProbeTimeout time.Duration
	Client       *http.Client
}

func NewOllamaProvider(baseURL, model string) *OllamaProvider {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultOllamaBaseURL
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultOllamaModel
	}
	return &OllamaProvider{
		BaseURL:      baseURL,
		Model:        model,
		ProbeTimeout: DefaultProbeTimeout,
		// generation deadline comes from ctx
		Client: &http.Client{Timeout: 90 * time.Second},
	}
}

type ollamaChatReq struct {
	Model    string      `json:"model"`
	Messages []ollamaMsg `json:"messages"`
	Stream   bool        `json:"stream"`
}

type ollamaMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResp struct {
	Message         ollamaMsg `json:"message"`
	PromptEvalCount int       `json:"prompt_eval_count"`
	EvalCount       int       `json:"eval_count"`
	Error           string    `json:"error,omitempty"`
}

type ollamaTagsResp struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

func (p *OllamaProvider) Name() string     { return ProviderOllama }
func (p *OllamaProvider) Dialect() Dialect { return ChatDialect }

func (p *OllamaProvider) Generate(ctx context.Context, messages []Message) (*Result, error) {
	if p.Client == nil {
		return nil, newProviderError(KindUnreachable, ProviderOllama, "http client is nil", 0, nil)
	}
	start := time.Now()

	reqBody := ollamaChatReq{
		Model:  p.Model,
		Stream: false,
		Messages: func() []ollamaMsg {
			out := make([]ollamaMsg, 0, len(messages))
			for _, m := range messages {
				out = append(out, ollamaMsg{Role: m.Role, Content: m.Content})
			}
			return out
		}(),
	}

	b, err := json.Marshal(reqBody)
	if err != nil {
		return nil, newProviderError(KindUpstream, ProviderOllama, "encode request", 0, err)
	}

	url := fmt.Sprintf("%s/api/chat", p.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, newProviderError(KindUnreachable, ProviderOllama, "build request", 0, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, transportError(ProviderOllama, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return nil, transportError(ProviderOllama, err)
	}

	var decoded ollamaChatResp
	decodeErr := json.Unmarshal(body, &decoded)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := decoded.Error
		if msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		if resp.StatusCode == http.StatusNotFound || isModelMissing(msg) {
			return nil, newProviderError(KindModelNotFound, ProviderOllama, p.Model, resp.StatusCode, errors.New(msg))
		}
		return nil, newProviderError(KindUpstream, ProviderOllama, fmt.Sprintf("status %d", resp.StatusCode), resp.StatusCode, errors.New(msg))
	}
	if decodeErr != nil {
		return nil, newProviderError(KindUpstream, ProviderOllama, "malformed response", resp.StatusCode, decodeErr)
	}
	if decoded.Error != "" {
		if isModelMissing(decoded.Error) {
			return nil, newProviderError(KindModelNotFound, ProviderOllama, p.Model, resp.StatusCode, errors.New(decoded.Error))
		}
		return nil, newProviderError(KindUpstream, ProviderOllama, "error response", resp.StatusCode, errors.New(decoded.Error))
	}

	content := strings.TrimSpace(decoded.Message.Content)
	if content == "" {
		return nil, newProviderError(KindUpstream, ProviderOllama, "empty response", resp.StatusCode, nil)
	}
	return newResult(content, decoded.PromptEvalCount+decoded.EvalCount, start), nil
}

// Probe checks that the server answers and that the configured model tag is installed.
func (p *OllamaProvider) Probe(ctx context.Context) error {
	if p.Client == nil {
		return newProviderError(KindUnreachable, ProviderOllama, "http client is nil", 0, nil)
	}
	timeout := p.ProbeTimeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"/api/tags", nil)
	if err != nil {
		return newProviderError(KindUnreachable, ProviderOllama, "build request", 0, err)
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return transportError(ProviderOllama, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newProviderError(KindUpstream, ProviderOllama, fmt.Sprintf("status %d", resp.StatusCode), resp.StatusCode, nil)
	}

	var tags ollamaTagsResp
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return newProviderError(KindUpstream, ProviderOllama, "malformed response", resp.StatusCode, err)
	}
	for _, m := range tags.Models {
		if m.Name == p.Model || m.Model == p.Model {
			return nil
		}
	}
	return newProviderError(KindModelNotFound, ProviderOllama, p.Model, resp.StatusCode, nil)
}
