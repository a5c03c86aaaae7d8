package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"kbassist/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(doc *model.Document) error {
	if err := r.db.Create(doc).Error; err != nil {
		return fmt.Errorf("create document failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) ListByKnowledgeBaseID(kbID uint) ([]model.Document, error) {
	var list []model.Document
	if err := r.db.Where("knowledge_base_id = ?", kbID).Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	return list, nil
}

func (r *DocumentRepository) GetByID(id uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.First(&doc, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) GetByUID(uid string) (*model.Document, error) {
	var doc model.Document
	if err := r.db.Where("uid = ?", uid).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document by uid failed: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) MarkIngested(id uint, chunkCount int) error {
	if err := r.db.Model(&model.Document{}).Where("id = ?", id).Updates(map[string]interface{}{
		"chunk_count":    chunkCount,
		"status":         model.DocumentStatusReady,
		"status_message": "",
	}).Error; err != nil {
		return fmt.Errorf("mark document ingested failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) MarkFailed(id uint, reason string) error {
	if len(reason) > 255 {
		reason = reason[:255]
	}
	if err := r.db.Model(&model.Document{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":         model.DocumentStatusFailed,
		"status_message": reason,
	}).Error; err != nil {
		return fmt.Errorf("mark document failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) DeleteByID(id uint) error {
	if err := r.db.Delete(&model.Document{}, id).Error; err != nil {
		return fmt.Errorf("delete document failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) DeleteByKnowledgeBaseID(kbID uint) error {
	if err := r.db.Where("knowledge_base_id = ?", kbID).Delete(&model.Document{}).Error; err != nil {
		return fmt.Errorf("delete documents by knowledge base failed: %w", err)
	}
	return nil
}
