package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"kbassist/internal/model"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// CreateWithKnowledgeBase inserts the user and its first knowledge base in one
// transaction; kb.OwnerUserID is filled in from the new user.
func (r *UserRepository) CreateWithKnowledgeBase(user *model.User, kb *model.KnowledgeBase) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return fmt.Errorf("create user failed: %w", err)
		}
		kb.OwnerUserID = user.ID
		if err := tx.Create(kb).Error; err != nil {
			return fmt.Errorf("create default knowledge base failed: %w", err)
		}
		return nil
	})
	return err
}

func (r *UserRepository) GetByUsername(username string) (*model.User, error) {
	return r.findOne("username", r.db.Where("username = ?", username))
}

func (r *UserRepository) GetByEmail(email string) (*model.User, error) {
	return r.findOne("email", r.db.Where("email = ?", email))
}

func (r *UserRepository) GetByID(id uint) (*model.User, error) {
	return r.findOne("id", r.db.Where("id = ?", id))
}

func (r *UserRepository) TouchLogin(id uint, at time.Time) error {
	if err := r.db.Model(&model.User{}).Where("id = ?", id).Update("last_login_at", at).Error; err != nil {
		return fmt.Errorf("update last login failed: %w", err)
	}
	return nil
}

// UpdateProfile writes username and email; an empty email clears it.
func (r *UserRepository) UpdateProfile(id uint, username, email string) error {
	err := r.db.Model(&model.User{}).Where("id = ?", id).Updates(map[string]interface{}{
		"username": username,
		"email":    email,
	}).Error
	if err != nil {
		return fmt.Errorf("update user profile failed: %w", err)
	}
	return nil
}

func (r *UserRepository) UpdatePassword(id uint, hash string) error {
	if err := r.db.Model(&model.User{}).Where("id = ?", id).Update("password_hash", hash).Error; err != nil {
		return fmt.Errorf("update password failed: %w", err)
	}
	return nil
}

func (r *UserRepository) DeleteByID(id uint) error {
	if err := r.db.Where("id = ?", id).Delete(&model.User{}).Error; err != nil {
		return fmt.Errorf("delete user failed: %w", err)
	}
	return nil
}

func (r *UserRepository) findOne(by string, q *gorm.DB) (*model.User, error) {
	var user model.User
	if err := q.First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query user by %s failed: %w", by, err)
	}
	return &user, nil
}
