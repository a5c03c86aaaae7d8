package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"kbassist/internal/app"
	"kbassist/internal/model"
	"kbassist/internal/transport/http/response"
)

type DocumentService interface {
	Upload(ctx context.Context, input app.UploadInput) (*model.Document, error)
	List(userID, kbID uint) ([]model.Document, error)
	Detail(userID uint, ref string) (*app.DocumentDetail, error)
	Delete(ctx context.Context, userID uint, ref string) error
	Chunk(userID, chunkID uint) (*app.ChunkDetail, error)
	ChunkByDocument(userID uint, ref string, ord int) (*app.ChunkDetail, error)
}

type DocumentHandler struct {
	documents DocumentService
	logger    *zap.Logger
}

func NewDocumentHandler(documents DocumentService, logger *zap.Logger) *DocumentHandler {
	return &DocumentHandler{documents: documents, logger: logger}
}

// List answers with a bare array.
func (h *DocumentHandler) List(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	kbID, ok := parseUintQuery(c, "kb_id", "knowledge_base_id")
	if !ok {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid kb_id")
		return
	}
	docs, err := h.documents.List(userID, kbID)
	if err != nil {
		writeServiceError(c, h.logger, err, "list documents failed")
		return
	}
	if docs == nil {
		docs = []model.Document{}
	}
	c.JSON(http.StatusOK, docs)
}

func (h *DocumentHandler) Detail(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	ref := firstQuery(c, "documentid", "document_id")
	if ref == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing documentid")
		return
	}
	detail, err := h.documents.Detail(userID, ref)
	if err != nil {
		writeServiceError(c, h.logger, err, "get document failed")
		return
	}
	response.OK(c, detail)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	ref := firstQuery(c, "document_id", "documentid")
	if ref == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing document_id")
		return
	}
	if err := h.documents.Delete(c.Request.Context(), userID, ref); err != nil {
		writeServiceError(c, h.logger, err, "delete document failed")
		return
	}
	response.OK(c, gin.H{"document_id": ref})
}

// Upload takes multipart fields knowledge_base_id (or kb_id), title, file_type and file.
func (h *DocumentHandler) Upload(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	kbID := parseUintForm(c, "knowledge_base_id")
	if kbID == 0 {
		kbID = parseUintForm(c, "kb_id")
	}
	if kbID == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing knowledge_base_id")
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "cannot read file")
		return
	}
	defer file.Close()

	doc, err := h.documents.Upload(c.Request.Context(), app.UploadInput{
		UserID:      userID,
		KBID:        kbID,
		Title:       c.PostForm("title"),
		FileType:    c.PostForm("file_type"),
		FileName:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Size:        fileHeader.Size,
		Body:        file,
	})
	if err != nil {
		writeServiceError(c, h.logger, err, "upload document failed")
		return
	}
	response.Created(c, doc)
}

// Chunk answers one chunk by id: ?markdownid= or ?chunk_id=.
func (h *DocumentHandler) Chunk(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	chunkID, ok := parseUintQuery(c, "markdownid", "chunk_id")
	if !ok {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid markdownid")
		return
	}
	chunk, err := h.documents.Chunk(userID, chunkID)
	if err != nil {
		writeServiceError(c, h.logger, err, "get chunk failed")
		return
	}
	response.OK(c, chunk)
}

// ChunkByDocument answers the chunk at ?number= (or ?ord=) of ?documentid=.
func (h *DocumentHandler) ChunkByDocument(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	ref := firstQuery(c, "documentid", "document_id")
	rawOrd := firstQuery(c, "number", "ord")
	ord, err := strconv.Atoi(rawOrd)
	if ref == "" || err != nil || ord < 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "documentid and a non-negative number are required")
		return
	}
	chunk, err := h.documents.ChunkByDocument(userID, ref, ord)
	if err != nil {
		writeServiceError(c, h.logger, err, "get chunk failed")
		return
	}
	response.OK(c, chunk)
}

func parseUintForm(c *gin.Context, key string) uint {
	v, err := strconv.ParseUint(strings.TrimSpace(c.PostForm(key)), 10, 64)
	if err != nil {
		return 0
	}
	return uint(v)
}

func firstQuery(c *gin.Context, keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(c.Query(key)); v != "" {
			return v
		}
	}
	return ""
}
