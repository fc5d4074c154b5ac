// Package settings owns the per-user AI preference: which provider answers a
// chat turn, the credentials and endpoint it uses, and whether persisted
// history is sent along with the new turn.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/suPer8Hu/mindease/internal/ai"
	"github.com/suPer8Hu/mindease/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrInvalidProvider = errors.New("invalid ai provider")
)

const maskMarker = "****"

type Preference struct {
	Provider           string `json:"provider"`
	GoogleAPIKey       string `json:"googleApiKey,omitempty"`
	OllamaBaseURL      string `json:"ollamaBaseUrl"`
	OllamaModel        string `json:"ollamaModel"`
	ConversationMemory bool   `json:"conversationMemory"`
}

// Masked returns a copy safe to hand back to clients.
func (p Preference) Masked() Preference {
	p.GoogleAPIKey = MaskKey(p.GoogleAPIKey)
	return p
}

// Options maps the preference onto adapter options for the given provider.
func (p Preference) Options(provider string) ai.Options {
	switch provider {
	case ai.ProviderGoogle:
		return ai.Options{APIKey: p.GoogleAPIKey}
	case ai.ProviderOllama:
		return ai.Options{BaseURL: p.OllamaBaseURL, Model: p.OllamaModel}
	}
	return ai.Options{}
}

// Defaults fill preference fields the user has not set.
type Defaults struct {
	Provider           string
	OllamaBaseURL      string
	OllamaModel        string
	ConversationMemory bool
}

// Update is the PUT body. A nil field resets to its default, except the
// Google key which is kept when nil or when the client echoes the masked value.
type Update struct {
	Provider           *string `json:"provider"`
	GoogleAPIKey       *string `json:"googleApiKey"`
	OllamaBaseURL      *string `json:"ollamaBaseUrl"`
	OllamaModel        *string `json:"ollamaModel"`
	ConversationMemory *bool   `json:"conversationMemory"`
}

// Cache is satisfied by redisstore.Store.
type Cache interface {
	GetPreference(ctx context.Context, userID uint64, v any) (bool, error)
	SetPreference(ctx context.Context, userID uint64, v any, ttl time.Duration) error
	DeletePreference(ctx context.Context, userID uint64) error
}

type Service struct {
	db       *gorm.DB
	cache    Cache
	ttl      time.Duration
	defaults Defaults
	log      *zap.Logger
}

// NewService builds the preference service. cache may be nil.
func NewService(db *gorm.DB, cache Cache, ttl time.Duration, defaults Defaults, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Service{db: db, cache: cache, ttl: ttl, defaults: defaults, log: log}
}

func (s *Service) Defaults() Defaults { return s.defaults }

// Get returns the effective preference for userID with defaults applied.
func (s *Service) Get(ctx context.Context, userID uint64) (Preference, error) {
	if s.cache != nil {
		var p Preference
		found, err := s.cache.GetPreference(ctx, userID, &p)
		if err != nil {
			s.log.Warn("preference cache read failed", zap.Uint64("user_id", userID), zap.Error(err))
		} else if found {
			return p, nil
		}
	}

	var u models.User
	if err := s.db.WithContext(ctx).First(&u, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Preference{}, ErrUserNotFound
		}
		return Preference{}, err
	}

	p := s.fromUser(&u)
	s.store(ctx, userID, p)
	return p, nil
}

func (s *Service) Update(ctx context.Context, userID uint64, in Update) (Preference, error) {
	provider := ""
	if in.Provider != nil {
		provider = strings.ToLower(strings.TrimSpace(*in.Provider))
		if provider != "" && !ValidProvider(provider) {
			return Preference{}, fmt.Errorf("%w: %s", ErrInvalidProvider, provider)
		}
	}

	var u models.User
	if err := s.db.WithContext(ctx).First(&u, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Preference{}, ErrUserNotFound
		}
		return Preference{}, err
	}

	key := u.GoogleAPIKey
	if in.GoogleAPIKey != nil && !IsMasked(*in.GoogleAPIKey) {
		key = strings.TrimSpace(*in.GoogleAPIKey)
	}

	updates := map[string]any{
		"ai_provider":         provider,
		"google_api_key":      key,
		"ollama_base_url":     trimmed(in.OllamaBaseURL),
		"ollama_model":        trimmed(in.OllamaModel),
		"conversation_memory": in.ConversationMemory,
	}
	if err := s.db.WithContext(ctx).Model(&u).Updates(updates).Error; err != nil {
		return Preference{}, err
	}

	if s.cache != nil {
		if err := s.cache.DeletePreference(ctx, userID); err != nil {
			s.log.Warn("preference cache invalidate failed", zap.Uint64("user_id", userID), zap.Error(err))
		}
	}

	u.AIProvider = provider
	u.GoogleAPIKey = key
	u.OllamaBaseURL = trimmed(in.OllamaBaseURL)
	u.OllamaModel = trimmed(in.OllamaModel)
	u.ConversationMemory = in.ConversationMemory
	return s.fromUser(&u), nil
}

func (s *Service) fromUser(u *models.User) Preference {
	p := Preference{
		Provider:           u.AIProvider,
		GoogleAPIKey:       u.GoogleAPIKey,
		OllamaBaseURL:      u.OllamaBaseURL,
		OllamaModel:        u.OllamaModel,
		ConversationMemory: s.defaults.ConversationMemory,
	}
	switch {
	case p.Provider != "":
	case p.GoogleAPIKey != "":
		// the caller's own cloud key makes cloud their default
		p.Provider = ai.ProviderGoogle
	default:
		p.Provider = s.defaults.Provider
	}
	if p.OllamaBaseURL == "" {
		p.OllamaBaseURL = s.defaults.OllamaBaseURL
	}
	if p.OllamaModel == "" {
		p.OllamaModel = s.defaults.OllamaModel
	}
	if u.ConversationMemory != nil {
		p.ConversationMemory = *u.ConversationMemory
	}
	return p
}

func (s *Service) store(ctx context.Context, userID uint64, p Preference) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetPreference(ctx, userID, p, s.ttl); err != nil {
		s.log.Warn("preference cache write failed", zap.Uint64("user_id", userID), zap.Error(err))
	}
}

// ValidProvider reports whether p names a supported provider.
func ValidProvider(p string) bool {
	switch p {
	case ai.ProviderGoogle, ai.ProviderOllama, ai.ProviderOpenAI:
		return true
	}
	return false
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// MaskKey keeps the first and last four characters of long keys.
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return maskMarker
	}
	return key[:4] + maskMarker + key[len(key)-4:]
}

func IsMasked(key string) bool {
	return strings.Contains(key, maskMarker)
}
