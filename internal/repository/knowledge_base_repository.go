package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"kbassist/internal/model"
)

type KnowledgeBaseRepository struct {
	db *gorm.DB
}

func NewKnowledgeBaseRepository(db *gorm.DB) *KnowledgeBaseRepository {
	return &KnowledgeBaseRepository{db: db}
}

func (r *KnowledgeBaseRepository) Create(kb *model.KnowledgeBase) error {
	if err := r.db.Create(kb).Error; err != nil {
		return fmt.Errorf("create knowledge base failed: %w", err)
	}
	return nil
}

// ListByOwner returns the owner's knowledge bases with DocumentCount filled in.
func (r *KnowledgeBaseRepository) ListByOwner(ownerID uint) ([]model.KnowledgeBase, error) {
	var list []model.KnowledgeBase
	if err := r.db.Where("owner_user_id = ?", ownerID).Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list knowledge bases failed: %w", err)
	}
	if len(list) == 0 {
		return list, nil
	}

	ids := make([]uint, len(list))
	for i := range list {
		ids[i] = list[i].ID
	}
	var counts []struct {
		KnowledgeBaseID uint
		Total           int64
	}
	if err := r.db.Model(&model.Document{}).
		Select("knowledge_base_id, COUNT(*) AS total").
		Where("knowledge_base_id IN ?", ids).
		Group("knowledge_base_id").
		Scan(&counts).Error; err != nil {
		return nil, fmt.Errorf("count knowledge base documents failed: %w", err)
	}
	byID := make(map[uint]int64, len(counts))
	for _, c := range counts {
		byID[c.KnowledgeBaseID] = c.Total
	}
	for i := range list {
		list[i].DocumentCount = byID[list[i].ID]
	}
	return list, nil
}

func (r *KnowledgeBaseRepository) GetByID(id uint) (*model.KnowledgeBase, error) {
	var kb model.KnowledgeBase
	if err := r.db.First(&kb, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get knowledge base failed: %w", err)
	}
	return &kb, nil
}

func (r *KnowledgeBaseRepository) GetByIDAndOwner(id, ownerID uint) (*model.KnowledgeBase, error) {
	var kb model.KnowledgeBase
	if err := r.db.Where("id = ? AND owner_user_id = ?", id, ownerID).First(&kb).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get knowledge base failed: %w", err)
	}
	return &kb, nil
}

// FilterOwned returns the subset of ids owned by ownerID, preserving input order.
func (r *KnowledgeBaseRepository) FilterOwned(ids []uint, ownerID uint) ([]uint, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var owned []uint
	if err := r.db.Model(&model.KnowledgeBase{}).
		Where("id IN ? AND owner_user_id = ?", ids, ownerID).
		Pluck("id", &owned).Error; err != nil {
		return nil, fmt.Errorf("filter owned knowledge bases failed: %w", err)
	}
	set := make(map[uint]struct{}, len(owned))
	for _, id := range owned {
		set[id] = struct{}{}
	}
	out := make([]uint, 0, len(owned))
	for _, id := range ids {
		if _, ok := set[id]; ok {
			out = append(out, id)
			delete(set, id)
		}
	}
	return out, nil
}

func (r *KnowledgeBaseRepository) UpdateStats(id uint, storageSize int64, embeddingDim int) error {
	updates := map[string]interface{}{"storage_size": storageSize}
	if embeddingDim > 0 {
		updates["embedding_dim"] = embeddingDim
	}
	if err := r.db.Model(&model.KnowledgeBase{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("update knowledge base stats failed: %w", err)
	}
	return nil
}

func (r *KnowledgeBaseRepository) DeleteByID(id uint) error {
	if err := r.db.Delete(&model.KnowledgeBase{}, id).Error; err != nil {
		return fmt.Errorf("delete knowledge base failed: %w", err)
	}
	return nil
}
