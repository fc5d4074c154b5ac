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
	DefaultGoogleBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultGoogleModel   = "gemini-1.5-flash"
)

// Generation parameters shared by every cloud request.
const (
	googleTemperature     = 0.7
	googleTopK            = 40
	googleTopP            = 0.95
	googleMaxOutputTokens = 1024
	googleBlockThreshold  = "BLOCK_MEDIUM_AND_ABOVE"
)

var googleHarmCategories = []string{
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
}

type GoogleProvider struct {
	BaseURL      string
	APIKey       string
	Model        string
	ProbeTimeout time.Duration
	Client       *http.Client
}

func NewGoogleProvider(baseURL, apiKey, model string) *GoogleProvider {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultGoogleBaseURL
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultGoogleModel
	}
	return &GoogleProvider{
		BaseURL:      baseURL,
		APIKey:       strings.TrimSpace(apiKey),
		Model:        model,
		ProbeTimeout: DefaultProbeTimeout,
		Client:       &http.Client{Timeout: 90 * time.Second},
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
	SafetySettings   []geminiSafetySetting  `json:"safetySettings"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	Error *geminiError `json:"error,omitempty"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func (p *GoogleProvider) Name() string     { return ProviderGoogle }
func (p *GoogleProvider) Dialect() Dialect { return GeminiDialect }

func buildGeminiRequest(messages []Message) geminiRequest {
	contents := make([]geminiContent, 0, len(messages))
	for _, m := range messages {
		contents = append(contents, geminiContent{Role: m.Role, Parts: []geminiPart{{Text: m.Content}}})
	}
	safety := make([]geminiSafetySetting, 0, len(googleHarmCategories))
	for _, c := range googleHarmCategories {
		safety = append(safety, geminiSafetySetting{Category: c, Threshold: googleBlockThreshold})
	}
	return geminiRequest{
		Contents: contents,
		GenerationConfig: geminiGenerationConfig{
			Temperature:     googleTemperature,
			TopK:            googleTopK,
			TopP:            googleTopP,
			MaxOutputTokens: googleMaxOutputTokens,
		},
		SafetySettings: safety,
	}
}

func (p *GoogleProvider) Generate(ctx context.Context, messages []Message) (*Result, error) {
	if p.Client == nil {
		return nil, newProviderError(KindUnreachable, ProviderGoogle, "http client is nil", 0, nil)
	}
	if p.APIKey == "" {
		return nil, newProviderError(KindUnauthorized, ProviderGoogle, "api key is not configured", 0, nil)
	}
	start := time.Now()

	b, err := json.Marshal(buildGeminiRequest(messages))
	if err != nil {
		return nil, newProviderError(KindUpstream, ProviderGoogle, "encode request", 0, err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", p.BaseURL, p.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, newProviderError(KindUnreachable, ProviderGoogle, "build request", 0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", p.APIKey)

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, transportError(ProviderGoogle, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return nil, transportError(ProviderGoogle, err)
	}

	var decoded geminiResponse
	decodeErr := json.Unmarshal(body, &decoded)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || decoded.Error != nil {
		return nil, googleError(resp.StatusCode, decoded.Error, body)
	}
	if decodeErr != nil {
		return nil, newProviderError(KindUpstream, ProviderGoogle, "malformed response", resp.StatusCode, decodeErr)
	}
	if len(decoded.Candidates) == 0 {
		return nil, newProviderError(KindUpstream, ProviderGoogle, "no candidates", resp.StatusCode, nil)
	}

	cand := decoded.Candidates[0]
	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		sb.WriteString(part.Text)
	}
	content := strings.TrimSpace(sb.String())
	if content == "" {
		reason := "empty candidate"
		if cand.FinishReason == "SAFETY" {
			reason = "blocked by safety filter"
		}
		return nil, newProviderError(KindUpstream, ProviderGoogle, reason, resp.StatusCode, nil)
	}
	return newResult(content, decoded.UsageMetadata.TotalTokenCount, start), nil
}

// googleError maps an error-shaped response onto the taxonomy. A rejected key
// only shows up in the body, so both status and message are inspected.
func googleError(status int, ge *geminiError, body []byte) *ProviderError {
	msg := strings.TrimSpace(string(body))
	apiStatus := ""
	if ge != nil {
		msg = ge.Message
		apiStatus = ge.Status
	}
	if len(msg) > 512 {
		msg = msg[:512]
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden,
		apiStatus == "UNAUTHENTICATED" || apiStatus == "PERMISSION_DENIED",
		strings.Contains(strings.ToLower(msg), "api key not valid"):
		return newProviderError(KindUnauthorized, ProviderGoogle, "api key rejected", status, errors.New(msg))
	case status == http.StatusTooManyRequests || apiStatus == "RESOURCE_EXHAUSTED":
		return newProviderError(KindUpstream, ProviderGoogle, "rate limited", status, errors.New(msg))
	case status == http.StatusNotFound:
		return newProviderError(KindModelNotFound, ProviderGoogle, "model not found", status, errors.New(msg))
	default:
		return newProviderError(KindUpstream, ProviderGoogle, fmt.Sprintf("status %d", status), status, errors.New(msg))
	}
}

// Probe fetches the model resource, which validates both reachability and the key.
func (p *GoogleProvider) Probe(ctx context.Context) error {
	if p.Client == nil {
		return newProviderError(KindUnreachable, ProviderGoogle, "http client is nil", 0, nil)
	}
	if p.APIKey == "" {
		return newProviderError(KindUnauthorized, ProviderGoogle, "api key is not configured", 0, nil)
	}
	timeout := p.ProbeTimeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/models/%s", p.BaseURL, p.Model), nil)
	if err != nil {
		return newProviderError(KindUnreachable, ProviderGoogle, "build request", 0, err)
	}
	req.Header.Set("x-goog-api-key", p.APIKey)

	resp, err := p.Client.Do(req)
	if err != nil {
		return transportError(ProviderGoogle, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		var decoded geminiResponse
		_ = json.Unmarshal(body, &decoded)
		return googleError(resp.StatusCode, decoded.Error, body)
	}
	return nil
}
