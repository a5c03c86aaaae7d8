package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"kbassist/internal/ai"
	"kbassist/internal/model"
	"kbassist/internal/repository"
)

const (
	MaxMessageRunes      = 4000
	MaxSessionTitleRunes = 50
	lastMessageRunes     = 100
	defaultSessionTitle  = "New Chat"
)

type Completer interface {
	Complete(ctx context.Context, messages []ai.ChatMessage) (string, error)
}

type HistoryCache interface {
	GetHistory(ctx context.Context, sessionID uint) ([]model.ChatMessage, bool, error)
	SetHistory(ctx context.Context, sessionID uint, messages []model.ChatMessage) error
	Invalidate(ctx context.Context, sessionID uint) error
	IsDirty(ctx context.Context, sessionID uint) (bool, error)
}

type ChatService struct {
	sessionRepo  *repository.ChatSessionRepository
	messageRepo  *repository.ChatMessageRepository
	kbRepo       *repository.KnowledgeBaseRepository
	chunkRepo    *repository.ChunkRepository
	documents    *DocumentService
	publisher    JobPublisher
	historyCache HistoryCache
	llm          Completer
	embedder     ai.Embedder
	opts         ChatOptions
	logger       *zap.Logger
}

type ChatOptions struct {
	HistoryTurns int
	TopK         int
	SnippetRunes int
}

type CreateSessionInput struct {
	UserID uint
	AIType int
	KBID   uint
	KBIDs  []uint
	Title  string
}

type SendMessageInput struct {
	UserID    uint
	SessionID uint
	Content   string
	KBID      uint
	KBIDs     []uint
}

type SendMessageResult struct {
	Answer    string         `json:"answer"`
	Sources   []model.Source `json:"sources"`
	KBIDs     []uint         `json:"kb_ids"`
	SessionID uint           `json:"session_id"`
}

type SessionDetail struct {
	model.ChatSession
	Messages []model.ChatMessage `json:"messages"`
}

func NewChatService(
	sessionRepo *repository.ChatSessionRepository,
	messageRepo *repository.ChatMessageRepository,
	kbRepo *repository.KnowledgeBaseRepository,
	chunkRepo *repository.ChunkRepository,
	documents *DocumentService,
	publisher JobPublisher,
	historyCache HistoryCache,
	llm Completer,
	embedder ai.Embedder,
	opts ChatOptions,
	logger *zap.Logger,
) *ChatService {
	if opts.HistoryTurns <= 0 {
		opts.HistoryTurns = 6
	}
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}
	if opts.SnippetRunes <= 0 {
		opts.SnippetRunes = defaultSnippetRunes
	}
	return &ChatService{
		sessionRepo:  sessionRepo,
		messageRepo:  messageRepo,
		kbRepo:       kbRepo,
		chunkRepo:    chunkRepo,
		documents:    documents,
		publisher:    publisher,
		historyCache: historyCache,
		llm:          llm,
		embedder:     embedder,
		opts:         opts,
		logger:       logger,
	}
}

func (s *ChatService) CreateSession(input CreateSessionInput) (*model.ChatSession, error) {
	if input.UserID == 0 {
		return nil, ErrInvalidInput
	}
	requested := mergeKBIDs(input.KBID, input.KBIDs)
	if len(requested) == 0 {
		return nil, ErrNoKnowledgeBase
	}
	kbIDs, err := s.kbRepo.FilterOwned(requested, input.UserID)
	if err != nil {
		return nil, err
	}
	if len(kbIDs) == 0 {
		return nil, ErrKnowledgeBaseNotFound
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = defaultSessionTitle
	}
	aiType := input.AIType
	if aiType == 0 {
		aiType = 1
	}
	session := &model.ChatSession{
		UserID:   input.UserID,
		AIType:   aiType,
		KBID:     kbIDs[0],
		KBIDs:    kbIDs,
		Title:    truncateRunes(title, 200),
		IsActive: true,
	}
	if err := s.sessionRepo.Create(session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *ChatService) ListSessions(userID uint) ([]model.ChatSession, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.sessionRepo.ListByUserID(userID)
}

func (s *ChatService) GetSessionDetail(ctx context.Context, userID, sessionID uint) (*SessionDetail, error) {
	session, err := s.ownedSession(userID, sessionID)
	if err != nil {
		return nil, err
	}
	messages, err := s.history(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	for i := range messages {
		if messages[i].Sender == model.SenderAI && len(messages[i].Metadata) > 0 {
			messages[i].SourcesFormat = model.SourcesFormatMetadata
		}
	}
	return &SessionDetail{ChatSession: *session, Messages: messages}, nil
}

func (s *ChatService) RenameSession(userID, sessionID uint, title string) (*model.ChatSession, error) {
	title = strings.TrimSpace(title)
	if n := utf8.RuneCountInString(title); n == 0 || n > MaxSessionTitleRunes {
		return nil, ErrTitleInvalid
	}
	session, err := s.ownedSession(userID, sessionID)
	if err != nil {
		return nil, err
	}
	session.Title = title
	if err := s.sessionRepo.Save(session); err != nil {
		return nil, err
	}
	return session, nil
}

// EndSession marks the session inactive; it stays readable but rejects new messages.
func (s *ChatService) EndSession(userID, sessionID uint) (*model.ChatSession, error) {
	session, err := s.ownedSession(userID, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsActive {
		return session, nil
	}
	session.IsActive = false
	if err := s.sessionRepo.Save(session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *ChatService) DeleteSession(ctx context.Context, userID, sessionID uint) error {
	if _, err := s.ownedSession(userID, sessionID); err != nil {
		return err
	}
	if err := s.messageRepo.DeleteBySessionID(sessionID); err != nil {
		return err
	}
	if err := s.sessionRepo.DeleteByIDAndUserID(sessionID, userID); err != nil {
		return err
	}
	if s.historyCache != nil {
		_ = s.historyCache.Invalidate(ctx, sessionID)
	}
	return nil
}

// RemoveUserData deletes every session of userID with its messages.
func (s *ChatService) RemoveUserData(ctx context.Context, userID uint) error {
	sessions, err := s.ListSessions(userID)
	if err != nil {
		return err
	}
	for _, session := range sessions {
		if err := s.DeleteSession(ctx, userID, session.ID); err != nil {
			return err
		}
	}
	return nil
}

// SendMessage answers content with retrieval over the requested knowledge bases,
// falling back to the session's own set. Both turns are persisted asynchronously.
func (s *ChatService) SendMessage(ctx context.Context, input SendMessageInput) (*SendMessageResult, error) {
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, ErrMessageEmpty
	}
	if utf8.RuneCountInString(content) > MaxMessageRunes {
		return nil, ErrMessageTooLong
	}
	session, err := s.ownedSession(input.UserID, input.SessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsActive {
		return nil, ErrSessionEnded
	}

	requested := mergeKBIDs(input.KBID, input.KBIDs)
	if len(requested) == 0 {
		requested = mergeKBIDs(session.KBID, session.KBIDs)
	}
	kbIDs, err := s.kbRepo.FilterOwned(requested, input.UserID)
	if err != nil {
		return nil, err
	}
	if len(kbIDs) == 0 {
		return nil, ErrNoKnowledgeBase
	}
	if s.llm == nil || s.publisher == nil {
		return nil, ErrLLMConfig
	}

	recent, err := s.history(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	ranked, sources, err := s.retrieve(ctx, content, kbIDs)
	if err != nil {
		return nil, err
	}
	prompt := s.buildPromptMessages(recent, buildContextBlock(sources, ranked), content)

	now := time.Now()
	userMessage := model.ChatMessage{
		SessionID:  session.ID,
		UserID:     input.UserID,
		KBID:       kbIDs[0],
		Sender:     model.SenderUser,
		Content:    content,
		ChatNumber: session.ChatCount + 1,
		CreatedAt:  now,
	}
	if s.historyCache != nil {
		_ = s.historyCache.Invalidate(ctx, session.ID)
	}
	if err := s.publisher.Publish(ctx, userMessage); err != nil {
		return nil, ErrMessageEnqueue
	}

	answer, err := s.llm.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		answer = "The model returned an empty response."
	}

	metadata, err := json.Marshal(model.MessageMetadata{Sources: sources, KBIDs: kbIDs})
	if err != nil {
		return nil, fmt.Errorf("marshal message metadata failed: %w", err)
	}
	assistantMessage := model.ChatMessage{
		SessionID:  session.ID,
		UserID:     input.UserID,
		KBID:       kbIDs[0],
		Sender:     model.SenderAI,
		Content:    answer,
		ChatNumber: session.ChatCount + 2,
		Metadata:   metadata,
		CreatedAt:  time.Now(),
	}
	if err := s.publisher.Publish(ctx, assistantMessage); err != nil {
		return nil, ErrMessageEnqueue
	}

	session.ChatCount += 2
	session.LastMessage = truncateRunes(content, lastMessageRunes)
	session.KBID = kbIDs[0]
	session.KBIDs = kbIDs
	if err := s.sessionRepo.Save(session); err != nil {
		return nil, err
	}

	return &SendMessageResult{
		Answer:    answer,
		Sources:   sources,
		KBIDs:     kbIDs,
		SessionID: session.ID,
	}, nil
}

func (s *ChatService) retrieve(ctx context.Context, question string, kbIDs []uint) ([]scoredChunk, []model.Source, error) {
	chunks, err := s.chunkRepo.ListByKnowledgeBaseIDs(kbIDs)
	if err != nil {
		return nil, nil, err
	}
	if len(chunks) == 0 || s.embedder == nil {
		return nil, []model.Source{}, nil
	}
	queryVec, err := ai.Embed(ctx, s.embedder, question)
	if err != nil {
		return nil, nil, err
	}
	ranked := rankChunks(queryVec, chunks, s.opts.TopK)

	docIDs := make([]uint, 0, len(ranked))
	for _, r := range ranked {
		docIDs = append(docIDs, r.chunk.DocumentID)
	}
	docs, err := s.documents.TitlesByID(docIDs)
	if err != nil {
		return nil, nil, err
	}
	return ranked, buildSources(ranked, docs, s.opts.SnippetRunes), nil
}

// history serves from the redis cache unless a write is in flight.
func (s *ChatService) history(ctx context.Context, sessionID uint) ([]model.ChatMessage, error) {
	if s.historyCache != nil {
		dirty, err := s.historyCache.IsDirty(ctx, sessionID)
		if err == nil && !dirty {
			if cached, hit, cacheErr := s.historyCache.GetHistory(ctx, sessionID); cacheErr == nil && hit {
				return cached, nil
			}
		}
	}

	messages, err := s.messageRepo.ListBySessionID(sessionID)
	if err != nil {
		return nil, err
	}
	if s.historyCache != nil {
		if dirty, dirtyErr := s.historyCache.IsDirty(ctx, sessionID); dirtyErr == nil && !dirty {
			_ = s.historyCache.SetHistory(ctx, sessionID, messages)
		}
	}
	return messages, nil
}

func (s *ChatService) ownedSession(userID, sessionID uint) (*model.ChatSession, error) {
	if userID == 0 || sessionID == 0 {
		return nil, ErrInvalidInput
	}
	session, err := s.sessionRepo.GetByIDAndUserID(sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (s *ChatService) buildPromptMessages(history []model.ChatMessage, contextBlock, question string) []ai.ChatMessage {
	system := "You are a knowledge-base assistant. Answer the user's question using the numbered context passages, " +
		"citing them like [1]. If the context does not contain the answer, say so and do not make up facts."
	if contextBlock == "" {
		system = "You are a knowledge-base assistant. The selected knowledge bases returned no matching passages; " +
			"tell the user so before answering from general knowledge."
	}

	messages := []ai.ChatMessage{{Role: "system", Content: system}}
	limit := s.opts.HistoryTurns * 2
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	for _, item := range history {
		role := "user"
		if item.Sender == model.SenderAI {
			role = "assistant"
		}
		messages = append(messages, ai.ChatMessage{Role: role, Content: item.Content})
	}

	user := question
	if contextBlock != "" {
		user = "Context:\n" + contextBlock + "\n\nQuestion: " + question
	}
	return append(messages, ai.ChatMessage{Role: "user", Content: user})
}

// mergeKBIDs puts primary first and drops zeros and duplicates.
func mergeKBIDs(primary uint, rest []uint) []uint {
	out := make([]uint, 0, len(rest)+1)
	seen := make(map[uint]struct{}, len(rest)+1)
	for _, id := range append([]uint{primary}, rest...) {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
