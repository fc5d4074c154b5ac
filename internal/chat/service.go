package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/suPer8Hu/mindease/internal/ai"
	"github.com/suPer8Hu/mindease/internal/common"
	"github.com/suPer8Hu/mindease/internal/crisis"
	"github.com/suPer8Hu/mindease/internal/metrics"
	"github.com/suPer8Hu/mindease/internal/prompt"
	"github.com/suPer8Hu/mindease/internal/settings"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrInvalidSessionID = errors.New("invalid session id")
	ErrEmptyMessage     = errors.New("message is empty")
)

const maxSessionIDLen = 64

// PreferenceSource is satisfied by settings.Service.
type PreferenceSource interface {
	Get(ctx context.Context, userID uint64) (settings.Preference, error)
}

// AlertPublisher hands an escalated alert to the delivery worker.
type AlertPublisher interface {
	PublishAlert(ctx context.Context, alertID string) error
}

// Config is resolved once at start-up and never read from the environment
// afterwards.
type Config struct {
	ContextWindowSize int
	GenerationTimeout time.Duration
	ProbeTimeout      time.Duration
	// DefaultPreference is used when the user's preference cannot be read.
	DefaultPreference settings.Preference
}

type Service struct {
	repo     *Repo
	registry *ai.Registry
	prefs    PreferenceSource
	lexicon  *crisis.Lexicon
	alerts   AlertPublisher
	cfg      Config
	log      *zap.Logger
}

func NewService(repo *Repo, registry *ai.Registry, prefs PreferenceSource, cfg Config, log *zap.Logger) *Service {
	if cfg.ContextWindowSize <= 0 || cfg.ContextWindowSize > 100 {
		cfg.ContextWindowSize = 20
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = 30 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = ai.DefaultProbeTimeout
	}
	if cfg.DefaultPreference.Provider == "" {
		cfg.DefaultPreference.Provider = ai.ProviderOllama
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		repo:     repo,
		registry: registry,
		prefs:    prefs,
		lexicon:  crisis.Default(),
		cfg:      cfg,
		log:      log,
	}
}

// WithLexicon replaces the embedded crisis lexicon.
func (s *Service) WithLexicon(l *crisis.Lexicon) *Service {
	if l != nil {
		s.lexicon = l
	}
	return s
}

// WithAlerts enables publishing of escalated crisis alerts.
func (s *Service) WithAlerts(p AlertPublisher) *Service {
	s.alerts = p
	return s
}

type TurnInput struct {
	UserID    uint64
	SessionID string
	Text      string
	// Provider overrides the session's provider and the user's preference
	// for this turn only.
	Provider string
}

type TurnResult struct {
	Reply          string
	SessionID      string
	MessageID      uint64
	Provider       string
	CrisisDetected bool
	CrisisLevel    string
	Keywords       []string
	Actions        []string

	// Set only when generation failed; Reply then holds the fallback text.
	Troubleshooting []string
	ProviderErr     error

	EventID string
	AlertID string
}

func (s *Service) CreateSession(ctx context.Context, userID uint64, provider string) (*Session, error) {
	provider, err := normalizeProvider(provider)
	if err != nil {
		return nil, err
	}
	sid, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	session := &Session{
		SessionID: sid,
		UserID:    userID,
		Provider:  provider,
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// sessionFor returns the caller's session, creating it when sessionID is
// empty or not yet known. A session owned by another user is reported as not
// found.
func (s *Service) sessionFor(ctx context.Context, userID uint64, sessionID string) (*Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return s.CreateSession(ctx, userID, "")
	}
	if len(sessionID) > maxSessionIDLen {
		return nil, ErrInvalidSessionID
	}

	sess, err := s.repo.GetSessionBySessionID(ctx, sessionID)
	if err == nil {
		if sess.UserID != userID {
			return nil, ErrSessionNotFound
		}
		return sess, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	sess = &Session{SessionID: sessionID, UserID: userID}
	createErr := s.repo.CreateSession(ctx, sess)
	if createErr == nil {
		return sess, nil
	}
	// lost a race with a concurrent turn on the same new id
	existing, getErr := s.repo.GetSessionBySessionID(ctx, sessionID)
	if getErr != nil {
		return nil, createErr
	}
	if existing.UserID != userID {
		return nil, ErrSessionNotFound
	}
	return existing, nil
}

// crisisSession replaces a session that could not be resolved on the crisis
// path. A bad or foreign id gets a fresh session for the caller; anything else
// keeps the requested id without a stored row.
func (s *Service) crisisSession(ctx context.Context, in TurnInput, cause error) *Session {
	if !isBadInput(cause) {
		return &Session{SessionID: strings.TrimSpace(in.SessionID), UserID: in.UserID}
	}
	sess, err := s.CreateSession(ctx, in.UserID, "")
	if err != nil {
		s.log.Error("create replacement session failed", zap.Uint64("user_id", in.UserID), zap.Error(err))
		return &Session{UserID: in.UserID}
	}
	return sess
}

func (s *Service) ValidateSessionOwner(ctx context.Context, userID uint64, sessionID string) error {
	sess, err := s.repo.GetSessionBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	if sess.UserID != userID {
		return ErrSessionNotFound
	}
	return nil
}

func (s *Service) preference(ctx context.Context, userID uint64) settings.Preference {
	if s.prefs == nil {
		return s.cfg.DefaultPreference
	}
	p, err := s.prefs.Get(ctx, userID)
	if err != nil {
		s.log.Warn("load ai preference failed, using defaults", zap.Uint64("user_id", userID), zap.Error(err))
		return s.cfg.DefaultPreference
	}
	return p
}

func (s *Service) resolveProvider(ctx context.Context, override string, pref settings.Preference) (string, ai.Provider, error) {
	name := strings.ToLower(strings.TrimSpace(override))
	if name == "" {
		name = pref.Provider
	}
	if name == "" {
		name = s.cfg.DefaultPreference.Provider
	}
	p, err := s.registry.Get(ctx, name, pref.Options(name))
	if err != nil {
		return name, nil, &ai.ProviderError{Kind: ai.KindUpstream, Provider: name, Reason: "provider unavailable", Err: err}
	}
	return name, p, nil
}

// HandleTurn runs one chat turn end to end. Provider failures never surface
// as errors: they yield a fallback reply plus troubleshooting steps. When the
// lexicon fires, the resource block is part of the reply no matter what else
// fails.
func (s *Service) HandleTurn(ctx context.Context, in TurnInput) (*TurnResult, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	verdict := s.lexicon.Classify(text)

	override, err := normalizeProvider(in.Provider)
	if err != nil {
		if !verdict.IsCrisis() {
			return nil, err
		}
		s.log.Warn("ignoring unknown provider on crisis path", zap.Uint64("user_id", in.UserID), zap.String("provider", in.Provider))
		override = ""
	}

	sess, err := s.sessionFor(ctx, in.UserID, in.SessionID)
	if err != nil {
		if !verdict.IsCrisis() {
			return nil, err
		}
		// keep going so the resources still reach the user
		s.log.Error("load session failed on crisis path", zap.Uint64("user_id", in.UserID), zap.Error(err))
		sess = s.crisisSession(ctx, in, err)
	}
	metrics.Classifications.WithLabelValues(string(verdict.Level)).Inc()

	out := &TurnResult{
		SessionID:      sess.SessionID,
		CrisisDetected: verdict.IsCrisis(),
		CrisisLevel:    string(verdict.Severity),
		Keywords:       verdict.Matched,
		Actions:        verdict.Actions(),
	}
	if verdict.IsCrisis() {
		s.log.Warn("crisis detected",
			zap.Uint64("user_id", in.UserID),
			zap.String("session_id", sess.SessionID),
			zap.String("severity", string(verdict.Severity)),
			zap.Int("keywords", len(verdict.Matched)),
		)
	}

	pref := s.preference(ctx, in.UserID)

	// 1) store user message
	userMsg := &Message{
		SessionID:      sess.SessionID,
		UserID:         in.UserID,
		Role:           prompt.RoleUser,
		Content:        text,
		CrisisDetected: verdict.IsCrisis(),
		CrisisLevel:    optional(string(verdict.Severity)),
		Language:       DetectLanguage(text),
	}
	if err := s.repo.InsertMessage(ctx, userMsg); err != nil {
		if !verdict.IsCrisis() {
			return nil, fmt.Errorf("store user message: %w", err)
		}
		s.log.Error("store user message failed on crisis path", zap.Uint64("user_id", in.UserID), zap.Error(err))
	}

	// 2) build history (ASC) ending with the new turn
	history := s.history(ctx, in.UserID, sess.SessionID, text, pref.ConversationMemory, verdict.IsCrisis())

	// 3) generate
	if override == "" {
		override = sess.Provider
	}
	name, provider, genErr := s.resolveProvider(ctx, override, pref)
	out.Provider = name
	var reply string
	if genErr == nil {
		reply, genErr = s.generate(ctx, provider, history)
	}
	if genErr != nil {
		kind, _ := ai.KindOf(genErr)
		metrics.ProviderErrors.WithLabelValues(name, string(kind)).Inc()
		s.log.Warn("provider generate failed",
			zap.String("provider", name),
			zap.String("kind", string(kind)),
			zap.Uint64("user_id", in.UserID),
			zap.Error(genErr),
		)
		out.ProviderErr = genErr
		out.Troubleshooting = Troubleshoot(genErr, name, pref.OllamaBaseURL, pref.OllamaModel)
		reply = fallbackReply
	}

	// 4) combine
	if verdict.IsCrisis() {
		reply = s.lexicon.Resources(verdict.Severity) + "\n\n" + reply
	}
	out.Reply = reply

	// A non-crisis failure leaves only the user turn on record.
	if genErr != nil && !verdict.IsCrisis() {
		return out, nil
	}

	// 5) store assistant message
	assistantMsg := &Message{
		SessionID: sess.SessionID,
		UserID:    in.UserID,
		Role:      prompt.RoleAssistant,
		Content:   reply,
		Language:  userMsg.Language,
	}
	if err := s.repo.InsertMessage(ctx, assistantMsg); err != nil {
		if !verdict.IsCrisis() {
			return nil, fmt.Errorf("store assistant message: %w", err)
		}
		s.log.Error("store assistant message failed on crisis path", zap.Uint64("user_id", in.UserID), zap.Error(err))
	}
	out.MessageID = assistantMsg.ID

	if verdict.IsCrisis() {
		s.recordCrisis(ctx, in.UserID, sess.SessionID, userMsg.ID, verdict, reply, out)
	}
	return out, nil
}

func (s *Service) history(ctx context.Context, userID uint64, sessionID, text string, memory, crisisPath bool) []ai.Message {
	turn := []ai.Message{{Role: prompt.RoleUser, Content: text}}
	if !memory {
		return turn
	}
	recentDesc, err := s.repo.ListRecentMessagesDesc(ctx, userID, sessionID, s.cfg.ContextWindowSize)
	if err != nil {
		lvl := s.log.Warn
		if crisisPath {
			lvl = s.log.Error
		}
		lvl("load history failed, sending new turn only", zap.String("session_id", sessionID), zap.Error(err))
		return turn
	}
	// the newest row is normally the user message just stored
	if len(recentDesc) == 0 || recentDesc[0].Role != prompt.RoleUser || recentDesc[0].Content != text {
		recentDesc = append([]Message{{Role: prompt.RoleUser, Content: text}}, recentDesc...)
		if len(recentDesc) > s.cfg.ContextWindowSize {
			recentDesc = recentDesc[:s.cfg.ContextWindowSize]
		}
	}

	// reverse to ASC (oldest -> newest)
	msgs := make([]ai.Message, 0, len(recentDesc))
	for i := len(recentDesc) - 1; i >= 0; i-- {
		m := recentDesc[i]
		msgs = append(msgs, ai.Message{Role: m.Role, Content: m.Content})
	}
	return msgs
}

func (s *Service) generate(ctx context.Context, provider ai.Provider, history []ai.Message) (string, error) {
	msgs := prompt.FormatHistory(prompt.SystemPrompt(), history, provider.Dialect())

	gctx, cancel := context.WithTimeout(ctx, s.cfg.GenerationTimeout)
	defer cancel()

	res, err := provider.Generate(gctx, msgs)
	if err != nil {
		return "", err
	}
	metrics.ProviderLatency.WithLabelValues(provider.Name()).Observe(float64(res.Latency.Milliseconds()))
	metrics.ProviderTokens.WithLabelValues(provider.Name()).Add(float64(res.Tokens))
	return res.Content, nil
}

// recordCrisis writes the audit event and, for imminent risk, queues an alert.
// Failures are logged: the reply has already been composed and must be returned.
func (s *Service) recordCrisis(ctx context.Context, userID uint64, sessionID string, messageID uint64, v crisis.Result, reply string, out *TurnResult) {
	ev := &CrisisEvent{
		ID:        uuid.NewString(),
		UserID:    userID,
		SessionID: sessionID,
		MessageID: messageID,
		Level:     string(v.Severity),
		Keywords:  v.Matched,
		Response:  reply,
		Escalated: v.Escalate(),
	}
	if err := s.repo.InsertCrisisEvent(ctx, ev); err != nil {
		s.log.Error("store crisis event failed", zap.Uint64("user_id", userID), zap.Error(err))
		return
	}
	metrics.CrisisEvents.WithLabelValues(string(v.Severity)).Inc()
	out.EventID = ev.ID

	if !ev.Escalated {
		return
	}

	id, err := common.NewULID()
	if err != nil {
		s.log.Error("alert id generation failed", zap.String("event_id", ev.ID), zap.Error(err))
		return
	}
	alert := &CrisisAlert{ID: id, EventID: ev.ID, UserID: userID, Status: AlertQueued}
	if err := s.repo.CreateAlert(ctx, alert); err != nil {
		s.log.Error("create crisis alert failed", zap.String("event_id", ev.ID), zap.Error(err))
		return
	}
	out.AlertID = alert.ID

	if s.alerts == nil {
		return
	}
	if err := s.alerts.PublishAlert(ctx, alert.ID); err != nil {
		s.log.Error("publish crisis alert failed", zap.String("alert_id", alert.ID), zap.Error(err))
		_ = s.repo.MarkAlertFailed(ctx, alert.ID, "publish: "+err.Error())
	}
}

func (s *Service) ListMessages(ctx context.Context, userID uint64, sessionID string, limit int, beforeID uint64) ([]Message, error) {
	if err := s.ValidateSessionOwner(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListMessages(ctx, userID, sessionID, limit, beforeID)
}

func (s *Service) ListCrisisEvents(ctx context.Context, userID uint64, limit int) ([]CrisisEvent, error) {
	return s.repo.ListCrisisEvents(ctx, userID, limit)
}

type ProbeResult struct {
	OK              bool     `json:"ok"`
	Provider        string   `json:"provider"`
	Error           string   `json:"error,omitempty"`
	Troubleshooting []string `json:"troubleshooting,omitempty"`
}

// TestConnection checks that the caller's provider (or override) is reachable
// without generating anything.
func (s *Service) TestConnection(ctx context.Context, userID uint64, override string) (ProbeResult, error) {
	override, err := normalizeProvider(override)
	if err != nil {
		return ProbeResult{}, err
	}
	pref := s.preference(ctx, userID)
	name, provider, err := s.resolveProvider(ctx, override, pref)
	if err == nil {
		pctx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
		defer cancel()
		err = ai.Probe(pctx, provider)
	}
	if err != nil {
		return ProbeResult{
			Provider:        name,
			Error:           err.Error(),
			Troubleshooting: Troubleshoot(err, name, pref.OllamaBaseURL, pref.OllamaModel),
		}, nil
	}
	return ProbeResult{OK: true, Provider: name}, nil
}

// normalizeProvider lower-cases a requested provider; empty means no preference.
func normalizeProvider(p string) (string, error) {
	p = strings.ToLower(strings.TrimSpace(p))
	if p != "" && !settings.ValidProvider(p) {
		return "", fmt.Errorf("%w: %s", settings.ErrInvalidProvider, p)
	}
	return p, nil
}

func isBadInput(err error) bool {
	return errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrInvalidSessionID)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
