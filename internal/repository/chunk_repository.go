package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"kbassist/internal/model"
)

type ChunkRepository struct {
	db *gorm.DB
}

func NewChunkRepository(db *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

func (r *ChunkRepository) CreateBatch(chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := r.db.CreateInBatches(&chunks, 100).Error; err != nil {
		return fmt.Errorf("create chunks batch failed: %w", err)
	}
	return nil
}

// ListByKnowledgeBaseIDs returns every chunk of the given knowledge bases.
// Caller should filter ids by ownership.
func (r *ChunkRepository) ListByKnowledgeBaseIDs(kbIDs []uint) ([]model.Chunk, error) {
	if len(kbIDs) == 0 {
		return nil, nil
	}
	var chunks []model.Chunk
	if err := r.db.Where("knowledge_base_id IN ?", kbIDs).Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("list chunks by knowledge base ids failed: %w", err)
	}
	return chunks, nil
}

func (r *ChunkRepository) GetByID(id uint) (*model.Chunk, error) {
	return r.findOne(r.db.Where("id = ?", id))
}

func (r *ChunkRepository) GetByDocumentOrd(documentID uint, ord int) (*model.Chunk, error) {
	return r.findOne(r.db.Where("document_id = ? AND ord = ?", documentID, ord))
}

// DistinctTags lists the non-empty chunk tags of the given knowledge bases.
func (r *ChunkRepository) DistinctTags(kbIDs []uint) ([]string, error) {
	if len(kbIDs) == 0 {
		return nil, nil
	}
	var tags []string
	err := r.db.Model(&model.Chunk{}).
		Where("knowledge_base_id IN ? AND tag <> ''", kbIDs).
		Distinct("tag").
		Order("tag ASC").
		Pluck("tag", &tags).Error
	if err != nil {
		return nil, fmt.Errorf("list chunk tags failed: %w", err)
	}
	return tags, nil
}

// ListByTags returns chunks carrying any of tags, in document then ord order.
func (r *ChunkRepository) ListByTags(kbIDs []uint, tags []string, limit int) ([]model.Chunk, error) {
	if len(kbIDs) == 0 || len(tags) == 0 {
		return nil, nil
	}
	q := r.db.Where("knowledge_base_id IN ? AND tag IN ?", kbIDs, tags).Order("document_id ASC, ord ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var chunks []model.Chunk
	if err := q.Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("list chunks by tags failed: %w", err)
	}
	return chunks, nil
}

func (r *ChunkRepository) ListByDocumentID(documentID uint) ([]model.Chunk, error) {
	var chunks []model.Chunk
	if err := r.db.Where("document_id = ?", documentID).Order("ord ASC").Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("list chunks by document failed: %w", err)
	}
	return chunks, nil
}

// ContentBytes sums the byte length of chunk content in a knowledge base.
func (r *ChunkRepository) ContentBytes(kbID uint) (int64, error) {
	var total int64
	if err := r.db.Model(&model.Chunk{}).
		Select("COALESCE(SUM(LENGTH(content)), 0)").
		Where("knowledge_base_id = ?", kbID).
		Scan(&total).Error; err != nil {
		return 0, fmt.Errorf("sum chunk content failed: %w", err)
	}
	return total, nil
}

func (r *ChunkRepository) DeleteByDocumentID(documentID uint) error {
	if err := r.db.Where("document_id = ?", documentID).Delete(&model.Chunk{}).Error; err != nil {
		return fmt.Errorf("delete chunks by document failed: %w", err)
	}
	return nil
}

func (r *ChunkRepository) DeleteByKnowledgeBaseID(kbID uint) error {
	if err := r.db.Where("knowledge_base_id = ?", kbID).Delete(&model.Chunk{}).Error; err != nil {
		return fmt.Errorf("delete chunks by knowledge base failed: %w", err)
	}
	return nil
}

func (r *ChunkRepository) findOne(q *gorm.DB) (*model.Chunk, error) {
	var chunk model.Chunk
	if err := q.First(&chunk).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query chunk failed: %w", err)
	}
	return &chunk, nil
}
