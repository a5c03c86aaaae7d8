package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"kbassist/internal/app"
	"kbassist/internal/model"
	"kbassist/internal/transport/http/response"
)

type KnowledgeService interface {
	Create(input app.CreateKnowledgeBaseInput) (*model.KnowledgeBase, error)
	List(userID uint) ([]model.KnowledgeBase, error)
	Delete(ctx context.Context, userID, kbID uint) error
}

type KnowledgeHandler struct {
	knowledge KnowledgeService
	logger    *zap.Logger
}

type CreateKnowledgeBaseRequest struct {
	Name        string `json:"name" binding:"required,max=100"`
	Description string `json:"description"`
	EmbedModel  string `json:"embed_model"`
}

func NewKnowledgeHandler(knowledge KnowledgeService, logger *zap.Logger) *KnowledgeHandler {
	return &KnowledgeHandler{knowledge: knowledge, logger: logger}
}

// List answers with a bare array.
func (h *KnowledgeHandler) List(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok || !sameUserQuery(c, userID, "userid") {
		return
	}
	list, err := h.knowledge.List(userID)
	if err != nil {
		writeServiceError(c, h.logger, err, "list knowledge bases failed")
		return
	}
	if list == nil {
		list = []model.KnowledgeBase{}
	}
	c.JSON(http.StatusOK, list)
}

func (h *KnowledgeHandler) Create(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req CreateKnowledgeBaseRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	kb, err := h.knowledge.Create(app.CreateKnowledgeBaseInput{
		UserID:      userID,
		Name:        req.Name,
		Description: req.Description,
		EmbedModel:  req.EmbedModel,
	})
	if err != nil {
		writeServiceError(c, h.logger, err, "create knowledge base failed")
		return
	}
	response.Created(c, kb)
}

func (h *KnowledgeHandler) Delete(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	kbID, ok := parseUintQuery(c, "knowledge_base_id", "kb_id")
	if !ok {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid knowledge_base_id")
		return
	}
	if err := h.knowledge.Delete(c.Request.Context(), userID, kbID); err != nil {
		writeServiceError(c, h.logger, err, "delete knowledge base failed")
		return
	}
	response.OK(c, gin.H{"knowledge_base_id": kbID})
}
