package chat

import (
	"bytes"
	"encoding/json"
	"sort"
	"time"

	"kbassist/internal/api"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"

	senderUser = "user"
)

// Source formats a backend may tag a message with.
const (
	SourcesFormatMetadata       = "metadata"
	SourcesFormatSources        = "sources"
	SourcesFormatMetadataString = "metadata_string"
	SourcesFormatNone           = "none"
)

// KnowledgeRef is a citation shown next to an assistant reply.
type KnowledgeRef struct {
	ID      string
	Name    string
	KBID    api.ID
	Snippet string
	Score   float64
	Source  api.Source
}

type Message struct {
	ID         string
	Role       Role
	Content    string
	Time       time.Time
	Index      int
	Attachment string
	KBRefs     []KnowledgeRef
	RawSources []api.Source
	KBIDs      []api.ID
}

func (m Message) clone() Message {
	m.KBRefs = append([]KnowledgeRef(nil), m.KBRefs...)
	m.RawSources = append([]api.Source(nil), m.RawSources...)
	m.KBIDs = append([]api.ID(nil), m.KBIDs...)
	return m
}

// messageSources recovers the citations stored with a message. A tagged
// sources_format is trusted; untagged messages go through the legacy probe.
func messageSources(m api.Message) ([]api.Source, bool) {
	switch m.SourcesFormat {
	case SourcesFormatMetadata:
		return sourcesFromMetadataObject(m.Metadata)
	case SourcesFormatSources:
		return sourcesFromArray(m.Sources)
	case SourcesFormatMetadataString:
		return sourcesFromMetadataString(m.Metadata)
	case SourcesFormatNone:
		return nil, false
	}
	return probeLegacySources(m)
}

// probeLegacySources is a compatibility shim for backends that do not tag their
// messages: metadata.sources, then a raw sources field, then metadata as a JSON
// encoded string. The first that yields an array wins.
func probeLegacySources(m api.Message) ([]api.Source, bool) {
	if s, ok := sourcesFromMetadataObject(m.Metadata); ok {
		return s, true
	}
	if s, ok := sourcesFromArray(m.Sources); ok {
		return s, true
	}
	return sourcesFromMetadataString(m.Metadata)
}

func sourcesFromMetadataObject(raw json.RawMessage) ([]api.Source, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	var meta struct {
		Sources json.RawMessage `json:"sources"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, false
	}
	return sourcesFromArray(meta.Sources)
}

func sourcesFromMetadataString(raw json.RawMessage) ([]api.Source, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return nil, false
	}
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil, false
	}
	return sourcesFromMetadataObject(json.RawMessage(encoded))
}

func sourcesFromArray(raw json.RawMessage) ([]api.Source, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, false
	}
	var out []api.Source
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false
	}
	return out, true
}

// buildMessages turns a session detail's stored messages into display messages.
func buildMessages(stored []api.Message, now time.Time, newID func() string) []Message {
	out := make([]Message, 0, len(stored))
	for i, m := range stored {
		msg := Message{
			ID:      m.ID.String(),
			Role:    RoleAssistant,
			Content: m.Content,
			Index:   i,
		}
		if msg.ID == "" {
			msg.ID = newID()
		}
		if m.Sender == senderUser {
			msg.Role = RoleUser
		}
		if t, ok := api.ParseTime(m.CreateAt); ok {
			msg.Time = t
		} else {
			msg.Time = now
		}
		if msg.Role == RoleAssistant {
			if sources, ok := messageSources(m); ok {
				msg.KBRefs = ExtractKnowledgeRefs(sources)
				msg.RawSources = sources
			}
		}
		out = append(out, msg)
	}
	return out
}

// Ordered sorts by timestamp (index when timestamps tie or are missing), then
// interleaves user and assistant messages by pairing position.
func Ordered(messages []Message) []Message {
	sorted := make([]Message, len(messages))
	copy(sorted, messages)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.Time.IsZero() && !b.Time.IsZero() && !a.Time.Equal(b.Time) {
			return a.Time.Before(b.Time)
		}
		return a.Index < b.Index
	})

	var users, assistants []Message
	for _, m := range sorted {
		if m.Role == RoleUser {
			users = append(users, m)
		} else {
			assistants = append(assistants, m)
		}
	}
	out := make([]Message, 0, len(sorted))
	for i := 0; i < len(users) || i < len(assistants); i++ {
		if i < len(users) {
			out = append(out, users[i])
		}
		if i < len(assistants) {
			out = append(out, assistants[i])
		}
	}
	return out
}
