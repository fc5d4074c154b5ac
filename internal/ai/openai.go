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
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "gpt-4o-mini"
)

// OpenAIProvider talks to any OpenAI-compatible /chat/completions endpoint.
type OpenAIProvider struct {
	BaseURL      string
	APIKey       string
	Model        string
	ProbeTimeout time.Duration
	Client       *http.Client
}

type openAIMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatReq struct {
	Model       string      `json:"model"`
	Messages    []openAIMsg `json:"messages"`
	Stream      bool        `json:"stream"`
	Temperature float64     `json:"temperature"`
	MaxTokens   int         `json:"max_tokens"`
}

type openAIChatResp struct {
	Choices []struct {
		Message      openAIMsg `json:"message"`
		FinishReason string    `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error,omitempty"`
}

func NewOpenAIProvider(baseURL, apiKey, model string) *OpenAIProvider {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIProvider{
		BaseURL:      baseURL,
		APIKey:       strings.TrimSpace(apiKey),
		Model:        model,
		ProbeTimeout: DefaultProbeTimeout,
		Client:       &http.Client{Timeout: 90 * time.Second},
	}
}

func (p *OpenAIProvider) Name() string     { return ProviderOpenAI }
func (p *OpenAIProvider) Dialect() Dialect { return ChatDialect }

func (p *OpenAIProvider) Generate(ctx context.Context, messages []Message) (*Result, error) {
	if p.Client == nil {
		return nil, newProviderError(KindUnreachable, ProviderOpenAI, "http client is nil", 0, nil)
	}
	if p.APIKey == "" {
		return nil, newProviderError(KindUnauthorized, ProviderOpenAI, "api key is not configured", 0, nil)
	}
	start := time.Now()

	reqBody := openAIChatReq{
		Model:       p.Model,
		Stream:      false,
		Temperature: googleTemperature,
		MaxTokens:   googleMaxOutputTokens,
		Messages: func() []openAIMsg {
			out := make([]openAIMsg, 0, len(messages))
			for _, m := range messages {
				out = append(out, openAIMsg{Role: m.Role, Content: m.Content})
			}
			return out
		}(),
	}

	b, err := json.Marshal(reqBody)
	if err != nil {
		return nil, newProviderError(KindUpstream, ProviderOpenAI, "encode request", 0, err)
	}

	url := fmt.Sprintf("%s/chat/completions", p.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, newProviderError(KindUnreachable, ProviderOpenAI, "build request", 0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.APIKey)

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, transportError(ProviderOpenAI, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return nil, openAIStatusError(resp.StatusCode, body)
	}

	var decoded openAIChatResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, newProviderError(KindUpstream, ProviderOpenAI, "malformed response", resp.StatusCode, err)
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		return nil, newProviderError(KindUpstream, ProviderOpenAI, "error response", resp.StatusCode, errors.New(decoded.Error.Message))
	}
	if len(decoded.Choices) == 0 {
		return nil, newProviderError(KindUpstream, ProviderOpenAI, "no choices", resp.StatusCode, nil)
	}
	content := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if content == "" {
		return nil, newProviderError(KindUpstream, ProviderOpenAI, "empty response", resp.StatusCode, nil)
	}
	return newResult(content, decoded.Usage.TotalTokens, start), nil
}

func openAIStatusError(status int, body []byte) *ProviderError {
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = fmt.Sprintf("status %d", status)
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return newProviderError(KindUnauthorized, ProviderOpenAI, "api key rejected", status, errors.New(msg))
	case status == http.StatusNotFound || isModelMissing(msg):
		return newProviderError(KindModelNotFound, ProviderOpenAI, "model not found", status, errors.New(msg))
	case status == http.StatusTooManyRequests:
		return newProviderError(KindUpstream, ProviderOpenAI, "rate limited", status, errors.New(msg))
	default:
		return newProviderError(KindUpstream, ProviderOpenAI, fmt.Sprintf("status %d", status), status, errors.New(msg))
	}
}

func (p *OpenAIProvider) Probe(ctx context.Context) error {
	if p.Client == nil {
		return newProviderError(KindUnreachable, ProviderOpenAI, "http client is nil", 0, nil)
	}
	if p.APIKey == "" {
		return newProviderError(KindUnauthorized, ProviderOpenAI, "api key is not configured", 0, nil)
	}
	timeout := p.ProbeTimeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"/models", nil)
	if err != nil {
		return newProviderError(KindUnreachable, ProviderOpenAI, "build request", 0, err)
	}
	req.Header.Set("Authorization", "Bearer "+p.APIKey)

	resp, err := p.Client.Do(req)
	if err != nil {
		return transportError(ProviderOpenAI, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return openAIStatusError(resp.StatusCode, body)
	}
	return nil
}
