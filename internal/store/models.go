package store

import "time"

// User owns zero or more sessions. The id is opaque; callers mint it or
// let the store generate one.
type User struct {
	ID        string    `gorm:"primaryKey;size:64"`
	CreatedAt time.Time `gorm:"autoCreateTime"`

	Sessions []ChatSession `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

// ChatSession is one conversation row. LastMessageAt stays NULL until the
// first completed exchange.
type ChatSession struct {
	ID            string `gorm:"primaryKey;size:36"`
	UserID        string `gorm:"index;not null;size:64"`
	CreatedAt     time.Time
	LastMessageAt *time.Time

	Messages []ChatMessage `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
}

// ChatMessage rows are append-only; nothing updates them after insert.
type ChatMessage struct {
	ID        uint   `gorm:"primaryKey"`
	SessionID string `gorm:"index;not null;size:36"`
	Role      string `gorm:"size:16;not null"`
	Content   string `gorm:"type:text"`
	Timestamp time.Time
}

// ModelConfigRecord persists a named model configuration. Name is unique;
// setting a config with an existing name overwrites its parameter set.
type ModelConfigRecord struct {
	ID              uint   `gorm:"primaryKey"`
	Name            string `gorm:"uniqueIndex;size:128;not null"`
	ModelPath       string `gorm:"size:512;not null"`
	ContextWindow   int    `gorm:"default:4096"`
	MaxTokens       int    `gorm:"default:2048"`
	Temperature     float64
	DoSample        bool
	TopP            float64
	TopK            int
	DType           string `gorm:"size:32"`
	TrustRemoteCode bool
	CreatedAt       time.Time `gorm:"autoCreateTime"`
}
