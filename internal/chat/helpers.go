package chat

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"kbassist/internal/api"
)

const (
	MaxMessageChars = 4000
	MaxTitleChars   = 50
)

var documentPathPattern = regexp.MustCompile(`documents/\d+/([a-f0-9\-]+)`)

// ValidateMessage returns nil for non-blank content of at most MaxMessageChars.
func ValidateMessage(content string) *Error {
	if strings.TrimSpace(content) == "" {
		return validationError("message content is empty")
	}
	if utf8.RuneCountInString(content) > MaxMessageChars {
		return validationError(fmt.Sprintf("message content is too long, keep it within %d characters", MaxMessageChars))
	}
	return nil
}

func GenerateMessageID() string {
	return uuid.NewString()
}

// SessionTitle is the default title for a session opened on a knowledge base.
func SessionTitle(kbName string) string {
	return "与" + kbName + "的对话"
}

// ExtractKnowledgeRefs de-duplicates sources by title, keeping first-seen order.
func ExtractKnowledgeRefs(sources []api.Source) []KnowledgeRef {
	seen := make(map[string]struct{}, len(sources))
	refs := make([]KnowledgeRef, 0, len(sources))
	for i, s := range sources {
		title := strings.TrimSpace(s.Title)
		if title == "" {
			title = strings.TrimSpace(s.Name)
		}
		if title == "" {
			title = fmt.Sprintf("Document %d", i+1)
		}
		if _, dup := seen[title]; dup {
			continue
		}
		seen[title] = struct{}{}
		refs = append(refs, KnowledgeRef{
			ID:      sourceDocumentID(s),
			Name:    title,
			KBID:    s.KBID,
			Snippet: s.Snippet,
			Score:   s.Score,
			Source:  s,
		})
	}
	return refs
}

// sourceDocumentID prefers the uuid in a documents/<user>/<uuid> path and falls
// back to whichever id field the backend filled.
func sourceDocumentID(s api.Source) string {
	if strings.Contains(s.Source, "documents/") {
		if m := documentPathPattern.FindStringSubmatch(s.Source); m != nil {
			return m[1]
		}
	}
	for _, id := range []api.ID{s.ID, s.DocumentID, s.DocID, s.KBID} {
		if !id.IsZero() {
			return id.String()
		}
	}
	return ""
}
