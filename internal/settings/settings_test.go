package settings

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	gormsqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/mindease/internal/ai"
	"github.com/suPer8Hu/mindease/internal/models"
	"github.com/suPer8Hu/mindease/internal/store/redisstore"
	"gorm.io/gorm"
)

var testDefaults = Defaults{
	Provider:           "ollama",
	OllamaBaseURL:      "http://localhost:11434",
	OllamaModel:        "llama3:latest",
	ConversationMemory: true,
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open(filepath.Join(t.TempDir(), "settings.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}))
	return db
}

func seedUser(t *testing.T, db *gorm.DB) uint64 {
	t.Helper()
	u := &models.User{Email: "u@example.com", Username: "u", PasswordHash: "x"}
	require.NoError(t, db.Create(u).Error)
	return u.ID
}

func ptr[T any](v T) *T { return &v }

func TestGet_AppliesDefaults(t *testing.T) {
	db := openTestDB(t)
	id := seedUser(t, db)
	svc := NewService(db, nil, time.Minute, testDefaults, nil)

	p, err := svc.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, Preference{
		Provider:           "ollama",
		OllamaBaseURL:      "http://localhost:11434",
		OllamaModel:        "llama3:latest",
		ConversationMemory: true,
	}, p)

	// a stored key without a provider defaults to the cloud provider
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", id).Update("google_api_key", "AIzaSyOwnKey98765432").Error)
	p, err = svc.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, ai.ProviderGoogle, p.Provider)

	// an explicit choice still wins
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", id).Update("ai_provider", "ollama").Error)
	p, err = svc.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, ai.ProviderOllama, p.Provider)
}

func TestUpdate_OmittedProviderWithKeyDefaultsToCloud(t *testing.T) {
	db := openTestDB(t)
	id := seedUser(t, db)
	svc := NewService(db, nil, time.Minute, testDefaults, nil)

	p, err := svc.Update(context.Background(), id, Update{GoogleAPIKey: ptr("AIzaSyOwnKey98765432")})
	require.NoError(t, err)
	require.Equal(t, ai.ProviderGoogle, p.Provider)

	p, err = svc.Update(context.Background(), id, Update{GoogleAPIKey: ptr("")})
	require.NoError(t, err)
	require.Equal(t, "ollama", p.Provider)
}

func TestGet_UnknownUser(t *testing.T) {
	svc := NewService(openTestDB(t), nil, time.Minute, testDefaults, nil)
	_, err := svc.Get(context.Background(), 999)
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestUpdate_PersistsAndResetsOmitted(t *testing.T) {
	db := openTestDB(t)
	id := seedUser(t, db)
	svc := NewService(db, nil, time.Minute, testDefaults, nil)
	ctx := context.Background()

	p, err := svc.Update(ctx, id, Update{
		Provider:           ptr("Google"),
		GoogleAPIKey:       ptr("AIzaSyExampleKey1234"),
		OllamaModel:        ptr("mistral"),
		ConversationMemory: ptr(false),
	})
	require.NoError(t, err)
	require.Equal(t, "google", p.Provider)
	require.Equal(t, "AIzaSyExampleKey1234", p.GoogleAPIKey)
	require.Equal(t, "mistral", p.OllamaModel)
	require.Equal(t, testDefaults.OllamaBaseURL, p.OllamaBaseURL)
	require.False(t, p.ConversationMemory)

	got, err := svc.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, p, got)

	// second PUT omits everything but the provider
	p, err = svc.Update(ctx, id, Update{Provider: ptr("ollama")})
	require.NoError(t, err)
	require.Equal(t, "llama3:latest", p.OllamaModel)
	require.True(t, p.ConversationMemory)
	require.Equal(t, "AIzaSyExampleKey1234", p.GoogleAPIKey)
}

func TestUpdate_MaskedKeyKeepsStored(t *testing.T) {
	db := openTestDB(t)
	id := seedUser(t, db)
	svc := NewService(db, nil, time.Minute, testDefaults, nil)
	ctx := context.Background()

	_, err := svc.Update(ctx, id, Update{GoogleAPIKey: ptr("AIzaSyExampleKey1234")})
	require.NoError(t, err)

	masked := MaskKey("AIzaSyExampleKey1234")
	require.Equal(t, "AIza****1234", masked)

	p, err := svc.Update(ctx, id, Update{GoogleAPIKey: ptr(masked)})
	require.NoError(t, err)
	require.Equal(t, "AIzaSyExampleKey1234", p.GoogleAPIKey)

	p, err = svc.Update(ctx, id, Update{GoogleAPIKey: ptr("")})
	require.NoError(t, err)
	require.Empty(t, p.GoogleAPIKey)
}

func TestUpdate_RejectsUnknownProvider(t *testing.T) {
	db := openTestDB(t)
	id := seedUser(t, db)
	svc := NewService(db, nil, time.Minute, testDefaults, nil)

	_, err := svc.Update(context.Background(), id, Update{Provider: ptr("claude")})
	require.ErrorIs(t, err, ErrInvalidProvider)
}

func TestCache_PopulatedAndInvalidated(t *testing.T) {
	db := openTestDB(t)
	id := seedUser(t, db)
	mr := miniredis.RunT(t)
	cache := redisstore.NewStore(mr.Addr(), "", 0)
	svc := NewService(db, cache, time.Minute, testDefaults, nil)
	ctx := context.Background()

	_, err := svc.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, mr.Exists("ai_pref:1"))

	// a direct DB write is invisible while cached
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", id).Update("ollama_model", "phi3").Error)
	p, err := svc.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "llama3:latest", p.OllamaModel)

	_, err = svc.Update(ctx, id, Update{OllamaModel: ptr("phi3")})
	require.NoError(t, err)
	require.False(t, mr.Exists("ai_pref:1"))

	p, err = svc.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "phi3", p.OllamaModel)
}

func TestPreferenceOptionsAndMask(t *testing.T) {
	p := Preference{GoogleAPIKey: "secretsecret", OllamaBaseURL: "http://gpu:11434", OllamaModel: "mistral"}

	require.Equal(t, ai.Options{APIKey: "secretsecret"}, p.Options(ai.ProviderGoogle))
	require.Equal(t, ai.Options{BaseURL: "http://gpu:11434", Model: "mistral"}, p.Options(ai.ProviderOllama))
	require.Equal(t, ai.Options{}, p.Options(ai.ProviderOpenAI))

	require.Equal(t, "secr****cret", p.Masked().GoogleAPIKey)
	require.Equal(t, "****", MaskKey("short"))
	require.Equal(t, "", MaskKey(""))
	require.True(t, IsMasked("ab****cd"))
}
