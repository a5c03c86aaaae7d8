package model

import "time"

type KnowledgeBase struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	OwnerUserID   uint      `gorm:"not null;index" json:"owner_user_id"`
	Name          string    `gorm:"size:100;not null" json:"name"`
	Description   string    `gorm:"type:text" json:"description"`
	EmbedModel    string    `gorm:"size:80" json:"embed_model"`
	EmbeddingDim  int       `json:"embedding_dim"`
	StorageSize   int64     `json:"storage_size"`
	DocumentCount int64     `gorm:"-" json:"document_count"`
	CreatedAt     time.Time `json:"create_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
