package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"kbassist/internal/ai"
	"kbassist/internal/model"
	"kbassist/internal/pkg/textextract"
	"kbassist/internal/repository"
	"kbassist/internal/storage"
)

const documentExcerptRunes = 2000

// IngestJob asks the ingest worker to process one uploaded document.
type IngestJob struct {
	DocumentID uint `json:"document_id"`
}

type JobPublisher interface {
	Publish(ctx context.Context, payload interface{}) error
}

type DocumentService struct {
	kbService    *KnowledgeService
	docRepo      *repository.DocumentRepository
	chunkRepo    *repository.ChunkRepository
	store        storage.Store
	embedder     ai.Embedder
	publisher    JobPublisher
	chunkSize    int
	chunkOverlap int
	maxUpload    int64
	logger       *zap.Logger
}

type DocumentServiceOptions struct {
	ChunkSize      int
	ChunkOverlap   int
	MaxUploadBytes int64
}

type UploadInput struct {
	UserID      uint
	KBID        uint
	Title       string
	FileType    string
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// DocumentDetail is a document with a plain-text excerpt of its content.
type DocumentDetail struct {
	model.Document
	Name            string `json:"name"`
	Content         string `json:"content"`
	KnowledgeBaseID uint   `json:"kb_id"`
}

// ChunkDetail is a stored chunk with its length in runes.
type ChunkDetail struct {
	model.Chunk
	WordCount int `json:"word_count"`
}

func NewDocumentService(
	kbService *KnowledgeService,
	docRepo *repository.DocumentRepository,
	chunkRepo *repository.ChunkRepository,
	store storage.Store,
	embedder ai.Embedder,
	publisher JobPublisher,
	opts DocumentServiceOptions,
	logger *zap.Logger,
) *DocumentService {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultChunkSize
	}
	if opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = defaultChunkOverlap
	}
	return &DocumentService{
		kbService:    kbService,
		docRepo:      docRepo,
		chunkRepo:    chunkRepo,
		store:        store,
		embedder:     embedder,
		publisher:    publisher,
		chunkSize:    opts.ChunkSize,
		chunkOverlap: opts.ChunkOverlap,
		maxUpload:    opts.MaxUploadBytes,
		logger:       logger,
	}
}

// Upload stores the file, records a pending document and queues ingestion.
func (s *DocumentService) Upload(ctx context.Context, input UploadInput) (*model.Document, error) {
	if input.Body == nil || strings.TrimSpace(input.FileName) == "" {
		return nil, ErrInvalidInput
	}
	if s.maxUpload > 0 && input.Size > s.maxUpload {
		return nil, ErrFileTooLarge
	}
	kb, err := s.kbService.Owned(input.UserID, input.KBID)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = filepath.Base(input.FileName)
	}
	fileType := strings.TrimSpace(input.FileType)
	if fileType == "" {
		fileType = FileTypeFromName(input.FileName)
	}

	uid := uuid.NewString()
	key := storage.DocumentKey(input.UserID, uid, filepath.Ext(input.FileName))
	if err := s.store.Save(ctx, key, input.Body, input.Size, input.ContentType); err != nil {
		return nil, err
	}

	doc := &model.Document{
		UID:             uid,
		KnowledgeBaseID: kb.ID,
		CreatorID:       input.UserID,
		Title:           title,
		FileType:        fileType,
		StorageURI:      key,
		FileSize:        input.Size,
		Status:          model.DocumentStatusPending,
	}
	if err := s.docRepo.Create(doc); err != nil {
		_ = s.store.Delete(ctx, key)
		return nil, err
	}

	if s.publisher == nil {
		return doc, s.Ingest(ctx, doc.ID)
	}
	if err := s.publisher.Publish(ctx, IngestJob{DocumentID: doc.ID}); err != nil {
		s.logger.Error("enqueue document ingest failed", zap.Uint("document_id", doc.ID), zap.Error(err))
		_ = s.docRepo.MarkFailed(doc.ID, ErrIngestEnqueue.Error())
		return nil, ErrIngestEnqueue
	}
	return doc, nil
}

// Ingest extracts, chunks and embeds a stored document. Failures are recorded on
// the document before being returned.
func (s *DocumentService) Ingest(ctx context.Context, documentID uint) error {
	doc, err := s.docRepo.GetByID(documentID)
	if err != nil {
		return err
	}
	if doc == nil {
		return ErrDocumentNotFound
	}

	chunkCount, dim, err := s.ingest(ctx, doc)
	if err != nil {
		s.logger.Warn("document ingest failed", zap.Uint("document_id", doc.ID), zap.Error(err))
		if markErr := s.docRepo.MarkFailed(doc.ID, err.Error()); markErr != nil {
			return errors.Join(err, markErr)
		}
		return err
	}
	if err := s.docRepo.MarkIngested(doc.ID, chunkCount); err != nil {
		return err
	}
	if err := s.kbService.RefreshStorageSize(doc.KnowledgeBaseID, dim); err != nil {
		return err
	}
	s.logger.Info("document ingested",
		zap.Uint("document_id", doc.ID),
		zap.Int("chunks", chunkCount),
		zap.Int("embedding_dim", dim),
	)
	return nil
}

func (s *DocumentService) ingest(ctx context.Context, doc *model.Document) (int, int, error) {
	rc, err := s.store.Open(ctx, doc.StorageURI)
	if err != nil {
		return 0, 0, fmt.Errorf("open stored document failed: %w", err)
	}
	text, err := textextract.Extract(rc, doc.FileType, doc.StorageURI)
	_ = rc.Close()
	if err != nil {
		return 0, 0, err
	}

	runes := []rune(strings.TrimSpace(text))
	spans := splitChunks(runes, s.chunkSize, s.chunkOverlap)
	if len(spans) == 0 {
		return 0, 0, fmt.Errorf("document has no extractable text")
	}
	pieces := make([]string, len(spans))
	for i, c := range spans {
		pieces[i] = c.Text
	}
	tags := chunkTags(runes, spans, doc.Title)

	var embeddings [][]float32
	for i := 0; i < len(pieces); i += embeddingBatchSize {
		end := i + embeddingBatchSize
		if end > len(pieces) {
			end = len(pieces)
		}
		batch, err := s.embedder.EmbedBatch(ctx, pieces[i:end])
		if err != nil {
			return 0, 0, err
		}
		embeddings = append(embeddings, batch...)
	}
	if len(embeddings) != len(pieces) {
		return 0, 0, fmt.Errorf("embedding count mismatch")
	}

	chunks := make([]model.Chunk, len(pieces))
	for i := range pieces {
		chunks[i] = model.Chunk{
			DocumentID:      doc.ID,
			KnowledgeBaseID: doc.KnowledgeBaseID,
			Ord:             i,
			Tag:             tags[i],
			Content:         pieces[i],
		}
		chunks[i].SetEmbedding(embeddings[i])
	}
	if err := s.chunkRepo.DeleteByDocumentID(doc.ID); err != nil {
		return 0, 0, err
	}
	if err := s.chunkRepo.CreateBatch(chunks); err != nil {
		return 0, 0, err
	}
	return len(chunks), len(embeddings[0]), nil
}

func (s *DocumentService) List(userID, kbID uint) ([]model.Document, error) {
	if _, err := s.kbService.Owned(userID, kbID); err != nil {
		return nil, err
	}
	return s.docRepo.ListByKnowledgeBaseID(kbID)
}

// Detail looks the document up by numeric id or by uid.
func (s *DocumentService) Detail(userID uint, ref string) (*DocumentDetail, error) {
	doc, err := s.lookup(ref)
	if err != nil {
		return nil, err
	}
	if _, err := s.kbService.Owned(userID, doc.KnowledgeBaseID); err != nil {
		return nil, err
	}
	chunks, err := s.chunkRepo.ListByDocumentID(doc.ID)
	if err != nil {
		return nil, err
	}
	return &DocumentDetail{
		Document:        *doc,
		Name:            doc.Title,
		Content:         joinChunks(chunks, s.chunkOverlap, documentExcerptRunes),
		KnowledgeBaseID: doc.KnowledgeBaseID,
	}, nil
}

// Chunk returns one stored chunk of a document the user owns.
func (s *DocumentService) Chunk(userID, chunkID uint) (*ChunkDetail, error) {
	if chunkID == 0 {
		return nil, ErrInvalidInput
	}
	chunk, err := s.chunkRepo.GetByID(chunkID)
	if err != nil {
		return nil, err
	}
	return s.chunkDetail(userID, chunk)
}

// ChunkByDocument returns the chunk at position ord of a document given by id or uid.
func (s *DocumentService) ChunkByDocument(userID uint, ref string, ord int) (*ChunkDetail, error) {
	if ord < 0 {
		return nil, ErrInvalidInput
	}
	doc, err := s.lookup(ref)
	if err != nil {
		return nil, err
	}
	if _, err := s.kbService.Owned(userID, doc.KnowledgeBaseID); err != nil {
		return nil, err
	}
	chunk, err := s.chunkRepo.GetByDocumentOrd(doc.ID, ord)
	if err != nil {
		return nil, err
	}
	return s.chunkDetail(userID, chunk)
}

func (s *DocumentService) chunkDetail(userID uint, chunk *model.Chunk) (*ChunkDetail, error) {
	if chunk == nil {
		return nil, ErrChunkNotFound
	}
	if _, err := s.kbService.Owned(userID, chunk.KnowledgeBaseID); err != nil {
		return nil, err
	}
	return &ChunkDetail{Chunk: *chunk, WordCount: utf8.RuneCountInString(chunk.Content)}, nil
}

func (s *DocumentService) Delete(ctx context.Context, userID uint, ref string) error {
	doc, err := s.lookup(ref)
	if err != nil {
		return err
	}
	if _, err := s.kbService.Owned(userID, doc.KnowledgeBaseID); err != nil {
		return err
	}
	if err := s.chunkRepo.DeleteByDocumentID(doc.ID); err != nil {
		return err
	}
	if err := s.docRepo.DeleteByID(doc.ID); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, doc.StorageURI); err != nil {
		s.logger.Warn("delete stored document failed", zap.String("key", doc.StorageURI), zap.Error(err))
	}
	return s.kbService.RefreshStorageSize(doc.KnowledgeBaseID, 0)
}

// TitlesByID loads the documents referenced by chunks, skipping missing ones.
func (s *DocumentService) TitlesByID(ids []uint) (map[uint]*model.Document, error) {
	out := make(map[uint]*model.Document, len(ids))
	for _, id := range ids {
		if _, ok := out[id]; ok {
			continue
		}
		doc, err := s.docRepo.GetByID(id)
		if err != nil {
			return nil, err
		}
		if doc != nil {
			out[id] = doc
		}
	}
	return out, nil
}

func (s *DocumentService) lookup(ref string) (*model.Document, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, ErrInvalidInput
	}
	var (
		doc *model.Document
		err error
	)
	if id, parseErr := strconv.ParseUint(ref, 10, 64); parseErr == nil {
		doc, err = s.docRepo.GetByID(uint(id))
	} else {
		doc, err = s.docRepo.GetByUID(ref)
	}
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

// FileTypeFromName maps a file extension to the stored file_type value.
func FileTypeFromName(name string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	switch ext {
	case "md", "markdown":
		return "markdown"
	case "txt":
		return "text"
	case "pdf":
		return "pdf"
	case "doc", "docx":
		return "docx"
	case "ppt", "pptx":
		return "pptx"
	case "xlsx", "xls", "csv":
		return "sheet"
	default:
		return "file"
	}
}
