package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"kbassist/internal/app"
	"kbassist/internal/model"
	"kbassist/internal/transport/http/response"
)

type ChatService interface {
	CreateSession(input app.CreateSessionInput) (*model.ChatSession, error)
	ListSessions(userID uint) ([]model.ChatSession, error)
	GetSessionDetail(ctx context.Context, userID, sessionID uint) (*app.SessionDetail, error)
	RenameSession(userID, sessionID uint, title string) (*model.ChatSession, error)
	EndSession(userID, sessionID uint) (*model.ChatSession, error)
	DeleteSession(ctx context.Context, userID, sessionID uint) error
	SendMessage(ctx context.Context, input app.SendMessageInput) (*app.SendMessageResult, error)
}

type ChatHandler struct {
	chatService ChatService
	logger      *zap.Logger
}

type CreateSessionRequest struct {
	UserID flexUint   `json:"user_id"`
	AIType int        `json:"ai_type"`
	KBID   flexUint   `json:"kb_id"`
	KBIDs  []flexUint `json:"kb_ids"`
	Title  string     `json:"title" binding:"max=200"`
}

type SessionRequest struct {
	SessionID flexUint `json:"session_id"`
	UserID    flexUint `json:"user_id"`
	Title     string   `json:"title"`
}

type SendMessageRequest struct {
	SessionID flexUint   `json:"session_id"`
	UserID    flexUint   `json:"user_id"`
	Sender    string     `json:"sender"`
	Content   string     `json:"content"`
	KBID      flexUint   `json:"kb_id"`
	KBIDs     []flexUint `json:"kb_ids"`
}

func NewChatHandler(chatService ChatService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{chatService: chatService, logger: logger}
}

func (h *ChatHandler) CreateSession(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	if !sameUser(c, userID, uint(req.UserID)) {
		return
	}

	session, err := h.chatService.CreateSession(app.CreateSessionInput{
		UserID: userID,
		AIType: req.AIType,
		KBID:   uint(req.KBID),
		KBIDs:  toUints(req.KBIDs),
		Title:  req.Title,
	})
	if err != nil {
		writeServiceError(c, h.logger, err, "create session failed")
		return
	}
	response.OK(c, session)
}

func (h *ChatHandler) ListSessions(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok || !sameUserQuery(c, userID, "user_id") {
		return
	}
	sessions, err := h.chatService.ListSessions(userID)
	if err != nil {
		writeServiceError(c, h.logger, err, "list sessions failed")
		return
	}
	if sessions == nil {
		sessions = []model.ChatSession{}
	}
	response.OK(c, sessions)
}

func (h *ChatHandler) SessionDetail(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	sessionID, ok := parseUintQuery(c, "session_id")
	if !ok {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid session_id")
		return
	}
	detail, err := h.chatService.GetSessionDetail(c.Request.Context(), userID, sessionID)
	if err != nil {
		writeServiceError(c, h.logger, err, "get session failed")
		return
	}
	if detail.Messages == nil {
		detail.Messages = []model.ChatMessage{}
	}
	response.OK(c, detail)
}

func (h *ChatHandler) RenameSession(c *gin.Context) {
	userID, req, ok := h.bindSessionRequest(c)
	if !ok {
		return
	}
	session, err := h.chatService.RenameSession(userID, uint(req.SessionID), req.Title)
	if err != nil {
		writeServiceError(c, h.logger, err, "rename session failed")
		return
	}
	response.OK(c, session)
}

func (h *ChatHandler) EndSession(c *gin.Context) {
	userID, req, ok := h.bindSessionRequest(c)
	if !ok {
		return
	}
	session, err := h.chatService.EndSession(userID, uint(req.SessionID))
	if err != nil {
		writeServiceError(c, h.logger, err, "end session failed")
		return
	}
	response.OK(c, session)
}

func (h *ChatHandler) DeleteSession(c *gin.Context) {
	userID, req, ok := h.bindSessionRequest(c)
	if !ok {
		return
	}
	if err := h.chatService.DeleteSession(c.Request.Context(), userID, uint(req.SessionID)); err != nil {
		writeServiceError(c, h.logger, err, "delete session failed")
		return
	}
	response.OK(c, gin.H{"deleted_session_id": uint(req.SessionID)})
}

func (h *ChatHandler) SendMessage(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	if !sameUser(c, userID, uint(req.UserID)) {
		return
	}
	if req.Sender != "" && req.Sender != model.SenderUser {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "sender must be user")
		return
	}

	result, err := h.chatService.SendMessage(c.Request.Context(), app.SendMessageInput{
		UserID:    userID,
		SessionID: uint(req.SessionID),
		Content:   req.Content,
		KBID:      uint(req.KBID),
		KBIDs:     toUints(req.KBIDs),
	})
	if err != nil {
		writeServiceError(c, h.logger, err, "send message failed")
		return
	}

	response.Flat(c, http.StatusOK, gin.H{
		"answer":     result.Answer,
		"sources":    result.Sources,
		"kb_ids":     result.KBIDs,
		"session_id": result.SessionID,
	})
}

func (h *ChatHandler) bindSessionRequest(c *gin.Context) (uint, SessionRequest, bool) {
	var req SessionRequest
	userID, ok := requireUser(c)
	if !ok {
		return 0, req, false
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return 0, req, false
	}
	if !sameUser(c, userID, uint(req.UserID)) {
		return 0, req, false
	}
	return userID, req, true
}
