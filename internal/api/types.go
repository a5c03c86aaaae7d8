package api

import (
	"encoding/json"
	"strings"
	"time"
)

type AuthResult struct {
	Token    string `json:"token"`
	UserID   ID     `json:"user_id"`
	Username string `json:"username"`
}

type Account struct {
	ID       ID     `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type KnowledgeBase struct {
	ID            ID     `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	OwnerUserID   ID     `json:"owner_user_id"`
	EmbedModel    string `json:"embed_model"`
	EmbeddingDim  int    `json:"embedding_dim"`
	StorageSize   int64  `json:"storage_size"`
	DocumentCount int64  `json:"document_count"`
	CreateAt      string `json:"create_at"`
	UpdatedAt     string `json:"updated_at"`
}

type Document struct {
	ID              ID     `json:"id"`
	UID             string `json:"uid,omitempty"`
	KnowledgeBaseID ID     `json:"knowledge_base_id"`
	Title           string `json:"title"`
	Name            string `json:"name,omitempty"`
	FileType        string `json:"file_type"`
	FileSize        int64  `json:"file_size"`
	ChunkCount      int    `json:"chunk_count"`
	Content         string `json:"content,omitempty"`
	Status          string `json:"status,omitempty"`
	StatusMessage   string `json:"status_message,omitempty"`
	CreateAt        string `json:"create_at"`
}

// DisplayName prefers the title and falls back to the name.
func (d Document) DisplayName() string {
	if strings.TrimSpace(d.Title) != "" {
		return d.Title
	}
	return d.Name
}

// Chunk is one stored piece of a document with the heading it sits under.
type Chunk struct {
	ID         ID     `json:"id"`
	DocumentID ID     `json:"document_id"`
	KBID       ID     `json:"kb_id"`
	Ord        int    `json:"ord"`
	Tag        string `json:"tag"`
	Content    string `json:"content"`
	WordCount  int    `json:"word_count,omitempty"`
}

type Session struct {
	SessionID   ID     `json:"session_id"`
	UserID      ID     `json:"user_id"`
	AIType      int    `json:"ai_type"`
	Title       string `json:"title"`
	KBID        ID     `json:"kb_id"`
	KBIDs       []ID   `json:"kb_ids"`
	ChatCount   int    `json:"chat_count"`
	LastMessage string `json:"last_message"`
	IsActive    bool   `json:"is_active"`
	CreateAt    string `json:"create_at"`
	UpdateAt    string `json:"update_at"`
}

// Message is a stored chat message as the session detail endpoint returns it.
// Citations may sit in Metadata (object or JSON string) or in Sources; SourcesFormat
// says which when the backend tags it.
type Message struct {
	ID            ID              `json:"id"`
	Sender        string          `json:"sender"`
	Content       string          `json:"content"`
	CreateAt      string          `json:"create_at"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	Sources       json.RawMessage `json:"sources,omitempty"`
	SourcesFormat string          `json:"sources_format,omitempty"`
}

type SessionDetail struct {
	Session
	Messages []Message `json:"messages"`
}

// Source is one retrieved citation. Backends disagree on which id field they fill.
type Source struct {
	Title      string  `json:"title,omitempty"`
	Name       string  `json:"name,omitempty"`
	Source     string  `json:"source,omitempty"`
	Page       *int    `json:"page,omitempty"`
	Ord        int     `json:"ord,omitempty"`
	Score      float64 `json:"score,omitempty"`
	Snippet    string  `json:"snippet,omitempty"`
	ID         ID      `json:"id,omitempty"`
	DocumentID ID      `json:"document_id,omitempty"`
	DocID      ID      `json:"doc_id,omitempty"`
	KBID       ID      `json:"kb_id,omitempty"`
}

type CreateKnowledgeBaseRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	EmbedModel  string `json:"embed_model"`
}

type CreateSessionRequest struct {
	UserID ID     `json:"user_id"`
	AIType int    `json:"ai_type"`
	KBID   ID     `json:"kb_id"`
	KBIDs  []ID   `json:"kb_ids,omitempty"`
	Title  string `json:"title"`
}

type SendMessageRequest struct {
	SessionID ID     `json:"session_id"`
	UserID    ID     `json:"user_id"`
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	KBID      ID     `json:"kb_id"`
	KBIDs     []ID   `json:"kb_ids"`
}

type SendMessageResult struct {
	Answer    string   `json:"answer"`
	Sources   []Source `json:"sources"`
	KBIDs     []ID     `json:"kb_ids,omitempty"`
	SessionID ID       `json:"session_id,omitempty"`
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime reads the timestamp formats the backends emit.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
