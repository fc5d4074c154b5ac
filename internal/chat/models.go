package chat

import "time"

type Session struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	SessionID string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"session_id"`
	UserID    uint64    `gorm:"index;not null" json:"-"`
	Provider  string    `gorm:"type:varchar(16)" json:"provider,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Session) TableName() string { return "chat_sessions" }

// Message is one persisted turn. Rows are never updated after insert.
type Message struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID      string    `gorm:"type:varchar(64);not null;index:idx_chat_msg_user_session_id,priority:2" json:"session_id"`
	UserID         uint64    `gorm:"not null;index:idx_chat_msg_user_session_id,priority:1" json:"-"`
	Role           string    `gorm:"type:varchar(16);index;not null" json:"role"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	CrisisDetected bool      `gorm:"not null;default:false" json:"crisis_detected"`
	CrisisLevel    *string   `gorm:"type:varchar(16)" json:"crisis_level,omitempty"`
	Language       string    `gorm:"type:varchar(8)" json:"language"`
	CreatedAt      time.Time `json:"timestamp"`
}

func (Message) TableName() string { return "chat_messages" }

// CrisisEvent is the append-only audit record written when the lexicon fires.
type CrisisEvent struct {
	ID        string    `gorm:"primaryKey;type:char(36)" json:"id"`
	UserID    uint64    `gorm:"index;not null" json:"user_id"`
	SessionID string    `gorm:"type:varchar(64);index" json:"session_id"`
	MessageID uint64    `gorm:"index" json:"message_id"`
	Level     string    `gorm:"type:varchar(16);not null" json:"level"`
	Keywords  []string  `gorm:"serializer:json;type:text" json:"keywords"`
	Response  string    `gorm:"type:text" json:"response"`
	Escalated bool      `gorm:"not null;default:false" json:"escalated"`
	CreatedAt time.Time `json:"timestamp"`
}

func (CrisisEvent) TableName() string { return "crisis_events" }
