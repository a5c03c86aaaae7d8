package model

import (
	"encoding/json"
	"time"
)

const (
	SenderUser = "user"
	SenderAI   = "ai"

	// SourcesFormatMetadata tags messages whose citations live in metadata.sources.
	SourcesFormatMetadata = "metadata"
)

type ChatSession struct {
	ID          uint      `gorm:"primaryKey" json:"session_id"`
	UserID      uint      `gorm:"not null;index" json:"user_id"`
	AIType      int       `gorm:"not null;default:1" json:"ai_type"`
	KBID        uint      `gorm:"index" json:"kb_id"`
	KBIDs       UintList  `gorm:"type:text" json:"kb_ids"`
	Title       string    `gorm:"size:200;not null" json:"title"`
	ChatCount   int       `gorm:"not null;default:0" json:"chat_count"`
	LastMessage string    `gorm:"size:255" json:"last_message"`
	IsActive    bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time `json:"create_at"`
	UpdatedAt   time.Time `json:"update_at"`
}

type ChatMessage struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	SessionID     uint            `gorm:"not null;index" json:"session_id"`
	UserID        uint            `gorm:"not null;index" json:"user_id"`
	KBID          uint            `json:"kb_id"`
	Sender        string          `gorm:"size:20;not null" json:"sender"`
	Content       string          `gorm:"type:text;not null" json:"content"`
	ChatNumber    int             `gorm:"not null;index" json:"chat_number"`
	Metadata      json.RawMessage `gorm:"type:text" json:"metadata,omitempty"`
	SourcesFormat string          `gorm:"-" json:"sources_format,omitempty"`
	CreatedAt     time.Time       `json:"create_at"`
}

// MessageMetadata is the JSON stored with assistant replies.
type MessageMetadata struct {
	Sources []Source `json:"sources"`
	KBIDs   []uint   `json:"kb_ids,omitempty"`
}

// Source is one retrieved chunk surfaced next to an answer.
type Source struct {
	Title      string  `json:"title"`
	Source     string  `json:"source"`
	Page       *int    `json:"page"`
	Ord        int     `json:"ord"`
	Score      float64 `json:"score"`
	Snippet    string  `json:"snippet"`
	KBID       uint    `json:"kb_id"`
	DocumentID uint    `json:"document_id"`
}
