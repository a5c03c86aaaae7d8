package app

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"kbassist/internal/ai"
	"kbassist/internal/model"
	"kbassist/internal/repository"
)

const (
	defaultTagTopK        = 8
	defaultChunksPerTag   = 50
	maxTagsInMatchPrompt  = 500
	tagMatchSystemMessage = "You match search queries to tags. Answer with matching tags only, one per line, most relevant first."
)

// TagSearchService finds chunks by their heading tag. The LLM picks tags related to
// the query; a substring match takes over when it is unavailable or picks nothing.
type TagSearchService struct {
	kbRepo    *repository.KnowledgeBaseRepository
	chunkRepo *repository.ChunkRepository
	llm       Completer
	logger    *zap.Logger
}

type TagSearchInput struct {
	UserID uint
	Query  string
	KBIDs  []uint
}

type TagSearchResult struct {
	Query       string        `json:"query"`
	MatchedTags []string      `json:"matched_tags"`
	Chunks      []model.Chunk `json:"chunks"`
	Message     string        `json:"message"`
}

func NewTagSearchService(
	kbRepo *repository.KnowledgeBaseRepository,
	chunkRepo *repository.ChunkRepository,
	llm Completer,
	logger *zap.Logger,
) *TagSearchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TagSearchService{kbRepo: kbRepo, chunkRepo: chunkRepo, llm: llm, logger: logger}
}

// Search looks in the given knowledge bases, or all of the user's when none are given.
func (s *TagSearchService) Search(ctx context.Context, input TagSearchInput) (*TagSearchResult, error) {
	query := strings.TrimSpace(input.Query)
	if input.UserID == 0 || query == "" {
		return nil, ErrInvalidInput
	}
	result := &TagSearchResult{Query: query, MatchedTags: []string{}, Chunks: []model.Chunk{}}

	kbIDs, err := s.searchScope(input.UserID, input.KBIDs)
	if err != nil {
		return nil, err
	}
	tags, err := s.chunkRepo.DistinctTags(kbIDs)
	if err != nil {
		return nil, err
	}
	if len(tags) == 0 {
		result.Message = "no tags in the selected knowledge bases"
		return result, nil
	}

	matched := s.matchTags(ctx, query, tags, defaultTagTopK)
	if len(matched) == 0 {
		result.Message = "no tags match the query"
		return result, nil
	}
	chunks, err := s.chunkRepo.ListByTags(kbIDs, matched, defaultChunksPerTag*len(matched))
	if err != nil {
		return nil, err
	}
	result.MatchedTags = matched
	if chunks != nil {
		result.Chunks = chunks
	}
	result.Message = fmt.Sprintf("%d chunks matched", len(result.Chunks))
	return result, nil
}

func (s *TagSearchService) searchScope(userID uint, requested []uint) ([]uint, error) {
	if len(requested) > 0 {
		owned, err := s.kbRepo.FilterOwned(requested, userID)
		if err != nil {
			return nil, err
		}
		if len(owned) != len(uniqueUints(requested)) {
			return nil, ErrForbidden
		}
		return owned, nil
	}
	kbs, err := s.kbRepo.ListByOwner(userID)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(kbs))
	for _, kb := range kbs {
		ids = append(ids, kb.ID)
	}
	return ids, nil
}

func (s *TagSearchService) matchTags(ctx context.Context, query string, tags []string, topK int) []string {
	if s.llm != nil && len(tags) <= maxTagsInMatchPrompt {
		matched, err := s.llmMatch(ctx, query, tags, topK)
		if err != nil {
			s.logger.Warn("llm tag match failed, using substring match", zap.Error(err))
		} else if len(matched) > 0 {
			return matched
		}
	}
	return substringMatch(query, tags, topK)
}

func (s *TagSearchService) llmMatch(ctx context.Context, query string, tags []string, topK int) ([]string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Query: %q\n\nTags:\n", query)
	for _, t := range tags {
		b.WriteString("- ")
		b.WriteString(t)
		b.WriteByte('\n')
	}
	b.WriteString("\nPick only tags closely related to the query. Synonyms count. Output nothing else.")

	answer, err := s.llm.Complete(ctx, []ai.ChatMessage{
		{Role: "system", Content: tagMatchSystemMessage},
		{Role: "user", Content: b.String()},
	})
	if err != nil {
		return nil, err
	}
	return parseTagLines(answer, tags, topK), nil
}

// parseTagLines keeps answer lines that name a known tag, in order, without repeats.
func parseTagLines(answer string, known []string, topK int) []string {
	set := make(map[string]struct{}, len(known))
	for _, t := range known {
		set[t] = struct{}{}
	}
	var out []string
	seen := map[string]struct{}{}
	for _, line := range strings.Split(answer, "\n") {
		tag := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*•"))
		if _, ok := set[tag]; !ok {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
		if len(out) == topK {
			break
		}
	}
	return out
}

// substringMatch keeps tags that contain the query or are contained in it, ignoring case.
func substringMatch(query string, tags []string, topK int) []string {
	q := strings.ToLower(strings.TrimSpace(query))
	var out []string
	for _, t := range tags {
		lt := strings.ToLower(t)
		if strings.Contains(lt, q) || strings.Contains(q, lt) {
			out = append(out, t)
			if len(out) == topK {
				break
			}
		}
	}
	return out
}

func uniqueUints(in []uint) []uint {
	seen := make(map[uint]struct{}, len(in))
	out := make([]uint, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok || v == 0 {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
