package chat

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) CreateSession(ctx context.Context, s *Session) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *Repo) GetSessionBySessionID(ctx context.Context, sessionID string) (*Session, error) {
	var s Session
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repo) InsertMessage(ctx context.Context, m *Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// ListMessages returns messages in DESC id order (newest -> oldest).
func (r *Repo) ListMessages(ctx context.Context, userID uint64, sessionID string, limit int, beforeID uint64) ([]Message, error) {
	q := r.db.WithContext(ctx).
		Where("user_id = ? AND session_id = ?", userID, sessionID).
		Order("id DESC").
		Limit(limit)

	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}

	var msgs []Message
	if err := q.Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// ListRecentMessagesDesc returns the most recent messages in DESC id order (newest -> oldest).
func (r *Repo) ListRecentMessagesDesc(ctx context.Context, userID uint64, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND session_id = ?", userID, sessionID).
		Order("id DESC").
		Limit(limit).
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *Repo) InsertCrisisEvent(ctx context.Context, e *CrisisEvent) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *Repo) GetCrisisEvent(ctx context.Context, id string) (*CrisisEvent, error) {
	var e CrisisEvent
	if err := r.db.WithContext(ctx).First(&e, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *Repo) ListCrisisEvents(ctx context.Context, userID uint64, limit int) ([]CrisisEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var out []CrisisEvent
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Alert CRUD
func (r *Repo) CreateAlert(ctx context.Context, a *CrisisAlert) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *Repo) GetAlertByID(ctx context.Context, id string) (*CrisisAlert, error) {
	var a CrisisAlert
	if err := r.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// MarkAlertRunning claims an alert for delivery: queued and failed alerts,
// plus running ones not touched since staleBefore (a worker died mid-send).
func (r *Repo) MarkAlertRunning(ctx context.Context, id string, staleBefore time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&CrisisAlert{}).
		Where("id = ? AND (status IN ? OR (status = ? AND updated_at < ?))",
			id, []AlertStatus{AlertQueued, AlertFailed}, AlertRunning, staleBefore).
		Updates(map[string]any{
			"status":   AlertRunning,
			"attempts": gorm.Expr("attempts + 1"),
		})
	return res.RowsAffected > 0, res.Error
}

func (r *Repo) MarkAlertSucceeded(ctx context.Context, id string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&CrisisAlert{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       AlertSucceeded,
			"error":        nil,
			"delivered_at": &now,
		}).Error
}

func (r *Repo) MarkAlertFailed(ctx context.Context, id string, errMsg string) error {
	return r.db.WithContext(ctx).Model(&CrisisAlert{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status": AlertFailed,
			"error":  errMsg,
		}).Error
}
