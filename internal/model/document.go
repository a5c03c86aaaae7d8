package model

import "time"

const (
	DocumentStatusPending = "pending"
	DocumentStatusReady   = "ready"
	DocumentStatusFailed  = "failed"
)

type Document struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	UID             string    `gorm:"size:36;not null;uniqueIndex" json:"uid"`
	KnowledgeBaseID uint      `gorm:"not null;index" json:"knowledge_base_id"`
	CreatorID       uint      `gorm:"not null;index" json:"creater_id"`
	Title           string    `gorm:"size:200;not null" json:"title"`
	FileType        string    `gorm:"size:40" json:"file_type"`
	StorageURI      string    `gorm:"size:255;not null" json:"storage_uri"`
	FileSize        int64     `json:"file_size"`
	ChunkCount      int       `json:"chunk_count"`
	Status          string    `gorm:"size:16;not null;default:pending" json:"status"`
	StatusMessage   string    `gorm:"size:255" json:"status_message,omitempty"`
	CreatedAt       time.Time `json:"create_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
