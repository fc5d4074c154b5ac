package chat

import "time"

type AlertStatus string

const (
	AlertQueued    AlertStatus = "queued"
	AlertRunning   AlertStatus = "running"
	AlertSucceeded AlertStatus = "succeeded"
	AlertFailed    AlertStatus = "failed"
)

// CrisisAlert tracks out-of-band delivery of an escalated CrisisEvent.
// The event itself stays immutable; only the alert moves through statuses.
type CrisisAlert struct {
	ID string `gorm:"primaryKey;size:26"` // ULID length

	EventID string `gorm:"type:char(36);uniqueIndex;not null"`
	UserID  uint64 `gorm:"index;not null"`

	Status   AlertStatus `gorm:"type:varchar(16);index;not null"`
	Attempts int         `gorm:"not null;default:0"`

	// Filled when failed
	Error *string `gorm:"type:text"`

	DeliveredAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (CrisisAlert) TableName() string { return "crisis_alerts" }
