package app

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"kbassist/internal/model"
	"kbassist/internal/repository"
	"kbassist/internal/storage"
)

type KnowledgeService struct {
	kbRepo     *repository.KnowledgeBaseRepository
	docRepo    *repository.DocumentRepository
	chunkRepo  *repository.ChunkRepository
	store      storage.Store
	embedModel string
	logger     *zap.Logger
}

type CreateKnowledgeBaseInput struct {
	UserID      uint
	Name        string
	Description string
	EmbedModel  string
}

func NewKnowledgeService(
	kbRepo *repository.KnowledgeBaseRepository,
	docRepo *repository.DocumentRepository,
	chunkRepo *repository.ChunkRepository,
	store storage.Store,
	embedModel string,
	logger *zap.Logger,
) *KnowledgeService {
	return &KnowledgeService{
		kbRepo:     kbRepo,
		docRepo:    docRepo,
		chunkRepo:  chunkRepo,
		store:      store,
		embedModel: embedModel,
		logger:     logger,
	}
}

func (s *KnowledgeService) Create(input CreateKnowledgeBaseInput) (*model.KnowledgeBase, error) {
	name := strings.TrimSpace(input.Name)
	if input.UserID == 0 || name == "" || utf8.RuneCountInString(name) > 100 {
		return nil, ErrInvalidInput
	}
	embedModel := strings.TrimSpace(input.EmbedModel)
	if embedModel == "" {
		embedModel = s.embedModel
	}
	kb := &model.KnowledgeBase{
		OwnerUserID: input.UserID,
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		EmbedModel:  embedModel,
	}
	if err := s.kbRepo.Create(kb); err != nil {
		return nil, err
	}
	return kb, nil
}

func (s *KnowledgeService) List(userID uint) ([]model.KnowledgeBase, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.kbRepo.ListByOwner(userID)
}

// Owned returns the knowledge base when userID owns it.
func (s *KnowledgeService) Owned(userID, kbID uint) (*model.KnowledgeBase, error) {
	if userID == 0 || kbID == 0 {
		return nil, ErrInvalidInput
	}
	kb, err := s.kbRepo.GetByID(kbID)
	if err != nil {
		return nil, err
	}
	if kb == nil {
		return nil, ErrKnowledgeBaseNotFound
	}
	if kb.OwnerUserID != userID {
		return nil, ErrForbidden
	}
	return kb, nil
}

// Delete removes the knowledge base with its documents, chunks and stored files.
// Files that fail to delete are logged and skipped.
func (s *KnowledgeService) Delete(ctx context.Context, userID, kbID uint) error {
	kb, err := s.Owned(userID, kbID)
	if err != nil {
		return err
	}
	docs, err := s.docRepo.ListByKnowledgeBaseID(kb.ID)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if err := s.store.Delete(ctx, doc.StorageURI); err != nil {
			s.logger.Warn("delete stored document failed",
				zap.Uint("document_id", doc.ID),
				zap.String("key", doc.StorageURI),
				zap.Error(err),
			)
		}
	}
	if err := s.chunkRepo.DeleteByKnowledgeBaseID(kb.ID); err != nil {
		return err
	}
	if err := s.docRepo.DeleteByKnowledgeBaseID(kb.ID); err != nil {
		return err
	}
	return s.kbRepo.DeleteByID(kb.ID)
}

// RemoveUserData deletes every knowledge base userID owns.
func (s *KnowledgeService) RemoveUserData(ctx context.Context, userID uint) error {
	kbs, err := s.List(userID)
	if err != nil {
		return err
	}
	for _, kb := range kbs {
		if err := s.Delete(ctx, userID, kb.ID); err != nil {
			return err
		}
	}
	return nil
}

// RefreshStorageSize recomputes storage_size from chunk content bytes.
func (s *KnowledgeService) RefreshStorageSize(kbID uint, embeddingDim int) error {
	size, err := s.chunkRepo.ContentBytes(kbID)
	if err != nil {
		return err
	}
	return s.kbRepo.UpdateStats(kbID, size, embeddingDim)
}
