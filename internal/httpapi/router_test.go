package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gormsqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/mindease/internal/ai"
	"github.com/suPer8Hu/mindease/internal/chat"
	"github.com/suPer8Hu/mindease/internal/config"
	"github.com/suPer8Hu/mindease/internal/db"
	"github.com/suPer8Hu/mindease/internal/httpapi/handlers"
	"github.com/suPer8Hu/mindease/internal/settings"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubProvider struct {
	reply string
	err   error
}

func (p *stubProvider) Name() string        { return ai.ProviderOllama }
func (p *stubProvider) Dialect() ai.Dialect { return ai.ChatDialect }

func (p *stubProvider) Generate(ctx context.Context, messages []ai.Message) (*ai.Result, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &ai.Result{Content: p.reply, Tokens: 1}, nil
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	t        *testing.T
	router   *gin.Engine
	provider *stubProvider
	db       *gorm.DB
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb, err := gorm.Open(gormsqlite.Open(filepath.Join(t.TempDir(), "api.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))

	cfg := config.Config{JWTSecret: "test-secret", JWTTTL: time.Hour}
	defaults := settings.Defaults{
		Provider:           ai.ProviderOllama,
		OllamaBaseURL:      ai.DefaultOllamaBaseURL,
		OllamaModel:        ai.DefaultOllamaModel,
		ConversationMemory: true,
	}
	settingsSvc := settings.NewService(gdb, nil, time.Minute, defaults, zap.NewNop())

	prov := &stubProvider{reply: "I'm listening."}
	reg := ai.NewRegistry()
	reg.Register(ai.ProviderOllama, func(ctx context.Context, opts ai.Options) (ai.Provider, error) {
		return prov, nil
	})
	chatSvc := chat.NewService(chat.NewRepo(gdb), reg, settingsSvc, chat.Config{
		DefaultPreference: settings.Preference{
			Provider:      defaults.Provider,
			OllamaBaseURL: defaults.OllamaBaseURL,
			OllamaModel:   defaults.OllamaModel,
		},
	}, zap.NewNop())

	h := handlers.NewHandler(gdb, cfg, chatSvc, settingsSvc, zap.NewNop())
	return &testServer{t: t, router: NewRouter(h, zap.NewNop()), provider: prov, db: gdb}
}

func (s *testServer) do(method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func (s *testServer) register(email string) string {
	s.t.Helper()
	w, env := s.do(http.MethodPost, "/users", "", map[string]string{"email": email, "password": "correct-horse"})
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())
	var data struct {
		Token string `json:"token"`
	}
	require.NoError(s.t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(s.t, data.Token)
	return data.Token
}

func TestPingAndNotFound(t *testing.T) {
	s := newTestServer(t)
	w, env := s.do(http.MethodGet, "/ping", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 0, env.Code)

	w, env = s.do(http.MethodGet, "/nope", "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, 40400, env.Code)
}

func TestRegisterLoginMe(t *testing.T) {
	s := newTestServer(t)
	s.register("Asha@Example.com")

	w, _ := s.do(http.MethodPost, "/login", "", map[string]string{"email": "asha@example.com", "password": "wrong-pass"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w, env := s.do(http.MethodPost, "/login", "", map[string]string{"email": "asha@example.com", "password": "correct-horse"})
	require.Equal(t, http.StatusOK, w.Code)
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &login))

	w, env = s.do(http.MethodGet, "/me", login.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, string(env.Data), "asha@example.com")

	w, _ = s.do(http.MethodGet, "/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRegisterValidation(t *testing.T) {
	s := newTestServer(t)
	w, _ := s.do(http.MethodPost, "/users", "", map[string]string{"email": "not-an-email", "password": "correct-horse"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = s.do(http.MethodPost, "/users", "", map[string]string{"email": "a@b.co", "password": "short"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatMessage(t *testing.T) {
	s := newTestServer(t)
	token := s.register("chat@example.com")

	w, env := s.do(http.MethodPost, "/chat/messages", token, map[string]string{"message": "Hi there"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var data struct {
		Message        string `json:"message"`
		SessionID      string `json:"sessionId"`
		CrisisDetected bool   `json:"crisisDetected"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Equal(t, "I'm listening.", data.Message)
	require.False(t, data.CrisisDetected)
	require.NotEmpty(t, data.SessionID)

	w, env = s.do(http.MethodGet, "/chat/sessions/"+data.SessionID+"/messages", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, string(env.Data), "Hi there")

	w, _ = s.do(http.MethodPost, "/chat/messages", token, map[string]string{"message": ""})
	require.Equal(t, http.StatusBadRequest, w.Code)

	other := s.register("other@example.com")
	w, _ = s.do(http.MethodPost, "/chat/messages", other, map[string]string{"message": "hi", "sessionId": data.SessionID})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestChatMessage_CrisisOnForeignSession(t *testing.T) {
	s := newTestServer(t)
	owner := s.register("owner@example.com")
	w, env := s.do(http.MethodPost, "/chat/sessions", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var created struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))

	token := s.register("visitor@example.com")
	w, env = s.do(http.MethodPost, "/chat/messages", token, map[string]string{"message": "I want to kill myself", "sessionId": created.SessionID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var data struct {
		Message        string `json:"message"`
		SessionID      string `json:"sessionId"`
		CrisisDetected bool   `json:"crisisDetected"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.True(t, data.CrisisDetected)
	require.Contains(t, data.Message, "14416")
	require.NotEqual(t, created.SessionID, data.SessionID)
}

func TestChatMessage_UnknownProvider(t *testing.T) {
	s := newTestServer(t)
	token := s.register("provider@example.com")

	w, env := s.do(http.MethodPost, "/chat/messages", token, map[string]string{"message": "hello", "provider": "claude"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, 10008, env.Code)

	w, _ = s.do(http.MethodPost, "/chat/sessions", token, map[string]string{"provider": "claude"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(http.MethodPost, "/ai/test", token, map[string]string{"provider": "claude"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatMessage_ProviderFailure(t *testing.T) {
	s := newTestServer(t)
	token := s.register("fail@example.com")
	s.provider.err = &ai.ProviderError{Kind: ai.KindUnreachable, Provider: ai.ProviderOllama}

	w, env := s.do(http.MethodPost, "/chat/messages", token, map[string]string{"message": "hello"})
	require.Equal(t, http.StatusBadGateway, w.Code)
	require.Equal(t, 50201, env.Code)

	var data struct {
		Message         string   `json:"message"`
		Troubleshooting []string `json:"troubleshooting"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(t, data.Message)
	require.Contains(t, data.Troubleshooting[0], "http://localhost:11434")

	// a crisis turn still succeeds and carries the resources
	w, env = s.do(http.MethodPost, "/chat/messages", token, map[string]string{"message": "I want to end my life"})
	require.Equal(t, http.StatusOK, w.Code)
	var crisisData struct {
		Message         string   `json:"message"`
		CrisisDetected  bool     `json:"crisisDetected"`
		CrisisLevel     string   `json:"crisisLevel"`
		Actions         []string `json:"actions"`
		Troubleshooting []string `json:"troubleshooting"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &crisisData))
	require.True(t, crisisData.CrisisDetected)
	require.Equal(t, "high", crisisData.CrisisLevel)
	require.Contains(t, crisisData.Message, "14416")
	require.NotEmpty(t, crisisData.Actions)
	require.NotEmpty(t, crisisData.Troubleshooting)

	w, env = s.do(http.MethodGet, "/crisis/events", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, string(env.Data), "end my life")
}

func TestAISettings(t *testing.T) {
	s := newTestServer(t)
	token := s.register("settings@example.com")

	w, env := s.do(http.MethodGet, "/ai/settings", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"aiSettings":{"provider":"ollama","ollamaBaseUrl":"http://localhost:11434","ollamaModel":"llama3:latest","conversationMemory":true}}`, string(env.Data))

	w, env = s.do(http.MethodPut, "/ai/settings", token, map[string]any{
		"aiSettings": map[string]any{
			"provider":           "google",
			"googleApiKey":       "AIzaSyExampleKey1234",
			"conversationMemory": false,
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.JSONEq(t, `{"aiSettings":{"provider":"google","googleApiKey":"AIza****1234","ollamaBaseUrl":"http://localhost:11434","ollamaModel":"llama3:latest","conversationMemory":false}}`, string(env.Data))

	w, _ = s.do(http.MethodPut, "/ai/settings", token, map[string]any{"aiSettings": map[string]any{"provider": "bogus"}})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(http.MethodPut, "/ai/settings", token, map[string]any{"provider": "ollama"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAITestConnection(t *testing.T) {
	s := newTestServer(t)
	token := s.register("probe@example.com")

	w, env := s.do(http.MethodPost, "/ai/test", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"ok":true,"provider":"ollama"}`, string(env.Data))
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)
	h := handlers.NewHandler(s.db, config.Config{JWTSecret: "x", CORSAllowOrigins: "http://localhost:3000"}, nil, nil, zap.NewNop())
	r := NewRouter(h, zap.NewNop())

	req := httptest.NewRequest(http.MethodOptions, "/chat/messages", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}
