package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenAIGenerate_Success(t *testing.T) {
	var got openAIChatReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"You're not alone."}}],"usage":{"total_tokens":17}}`))
	}))
	defer srv.Close()

	res, err := NewOpenAIProvider(srv.URL, "sk-test", "").Generate(context.Background(), []Message{
		{Role: "system", Content: "sys"},
		{Role: "user", Content: "hey"},
	})
	require.NoError(t, err)
	require.Equal(t, "You're not alone.", res.Content)
	require.Equal(t, 17, res.Tokens)
	require.Equal(t, DefaultOpenAIModel, got.Model)
	require.False(t, got.Stream)
}

func TestOpenAIGenerate_Errors(t *testing.T) {
	cases := []struct {
		status int
		body   string
		want   ErrorKind
	}{
		{http.StatusUnauthorized, `{"error":{"message":"Incorrect API key"}}`, KindUnauthorized},
		{http.StatusNotFound, `{"error":{"message":"The model does not exist"}}`, KindModelNotFound},
		{http.StatusBadGateway, ``, KindUpstream},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(tc.body))
		}))
		_, err := NewOpenAIProvider(srv.URL, "sk", "").Generate(context.Background(), []Message{{Role: "user", Content: "x"}})
		srv.Close()

		kind, ok := KindOf(err)
		require.True(t, ok, "status=%d", tc.status)
		require.Equal(t, tc.want, kind, "status=%d", tc.status)
	}
}

func TestOpenAIGenerate_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIProvider(srv.URL, "sk", "").Generate(context.Background(), []Message{{Role: "user", Content: "x"}})
	kind, _ := KindOf(err)
	require.Equal(t, KindUpstream, kind)
}
