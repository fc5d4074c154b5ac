package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewOllamaProvider_Defaults(t *testing.T) {
	p := NewOllamaProvider("", "")
	require.Equal(t, "http://localhost:11434", p.BaseURL)
	require.Equal(t, "llama3:latest", p.Model)

	p = NewOllamaProvider("http://gpu-box:11434/", "mistral")
	require.Equal(t, "http://gpu-box:11434", p.BaseURL)
	require.Equal(t, "mistral", p.Model)
}

func TestOllamaGenerate_Success(t *testing.T) {
	var got ollamaChatReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":" I hear you. "},"prompt_eval_count":12,"eval_count":8,"done":true}`))
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "llama3:latest")
	res, err := p.Generate(context.Background(), []Message{
		{Role: "system", Content: "be kind"},
		{Role: "user", Content: "hi"},
	})
	require.NoError(t, err)
	require.Equal(t, "I hear you.", res.Content)
	require.Equal(t, 20, res.Tokens)
	require.GreaterOrEqual(t, res.Latency, time.Duration(0))

	require.Equal(t, "llama3:latest", got.Model)
	require.False(t, got.Stream)
	require.Len(t, got.Messages, 2)
	require.Equal(t, "system", got.Messages[0].Role)
}

func TestOllamaGenerate_ModelNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model 'llama9' not found, try pulling it first"}`))
	}))
	defer srv.Close()

	_, err := NewOllamaProvider(srv.URL, "llama9").Generate(context.Background(), []Message{{Role: "user", Content: "hi"}})
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, KindModelNotFound, kind)
}

func TestOllamaGenerate_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewOllamaProvider(url, "").Generate(context.Background(), []Message{{Role: "user", Content: "hi"}})
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, KindUnreachable, kind)
}

func TestOllamaGenerate_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewOllamaProvider(srv.URL, "").Generate(ctx, []Message{{Role: "user", Content: "hi"}})
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, KindTimeout, kind)
}

func TestOllamaGenerate_EmptyContentIsUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":""},"done":true}`))
	}))
	defer srv.Close()

	_, err := NewOllamaProvider(srv.URL, "").Generate(context.Background(), []Message{{Role: "user", Content: "hi"}})
	kind, _ := KindOf(err)
	require.Equal(t, KindUpstream, kind)
}

func TestOllamaProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3:latest","model":"llama3:latest"}]}`))
	}))
	defer srv.Close()

	require.NoError(t, NewOllamaProvider(srv.URL, "llama3:latest").Probe(context.Background()))

	err := NewOllamaProvider(srv.URL, "phi3").Probe(context.Background())
	kind, _ := KindOf(err)
	require.Equal(t, KindModelNotFound, kind)
}
