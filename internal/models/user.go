package models

import "time"

type User struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	Email        string `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Username     string `gorm:"type:varchar(32);uniqueIndex;not null" json:"username"`
	PasswordHash string `gorm:"type:varchar(255);not null" json:"-"`

	// AI preference; empty columns fall back to defaults on read.
	AIProvider         string `gorm:"column:ai_provider;type:varchar(16)" json:"-"`
	GoogleAPIKey       string `gorm:"column:google_api_key;type:varchar(255)" json:"-"`
	OllamaBaseURL      string `gorm:"column:ollama_base_url;type:varchar(255)" json:"-"`
	OllamaModel        string `gorm:"column:ollama_model;type:varchar(128)" json:"-"`
	ConversationMemory *bool  `gorm:"column:conversation_memory" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string { return "users" }
