package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"kbassist/internal/app"
	"kbassist/internal/transport/http/response"
)

type TagSearchService interface {
	Search(ctx context.Context, input app.TagSearchInput) (*app.TagSearchResult, error)
}

type SearchHandler struct {
	search TagSearchService
	logger *zap.Logger
}

type TagSearchRequest struct {
	Query string     `json:"query" binding:"required,max=200"`
	KBIDs []flexUint `json:"kb_ids"`
}

func NewSearchHandler(search TagSearchService, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{search: search, logger: logger}
}

// Tags answers {status, query, matched_tags, chunks, message}.
func (h *SearchHandler) Tags(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req TagSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	result, err := h.search.Search(c.Request.Context(), app.TagSearchInput{
		UserID: userID,
		Query:  req.Query,
		KBIDs:  toUints(req.KBIDs),
	})
	if err != nil {
		writeServiceError(c, h.logger, err, "tag search failed")
		return
	}
	response.Flat(c, http.StatusOK, gin.H{
		"query":        result.Query,
		"matched_tags": result.MatchedTags,
		"chunks":       result.Chunks,
		"message":      result.Message,
	})
}
