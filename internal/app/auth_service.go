package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"kbassist/internal/model"
	"kbassist/internal/pkg/jwtutil"
)

const minPasswordLen = 8

// UserStore is the user persistence AuthService needs.
type UserStore interface {
	CreateWithKnowledgeBase(user *model.User, kb *model.KnowledgeBase) error
	GetByUsername(username string) (*model.User, error)
	GetByEmail(email string) (*model.User, error)
	GetByID(id uint) (*model.User, error)
	TouchLogin(id uint, at time.Time) error
	UpdateProfile(id uint, username, email string) error
	UpdatePassword(id uint, hash string) error
	DeleteByID(id uint) error
}

// UserDataRemover deletes what a user owns outside the users table.
type UserDataRemover interface {
	RemoveUserData(ctx context.Context, userID uint) error
}

type AuthService struct {
	userRepo      UserStore
	jwtSecret     string
	jwtExpiration time.Duration
	embedModel    string
	removers      []UserDataRemover
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

type LoginInput struct {
	Username string
	Password string
}

// UpdateProfileInput leaves a field unchanged when it is nil.
type UpdateProfileInput struct {
	Username *string
	Email    *string
}

type ChangePasswordInput struct {
	OldPassword string
	NewPassword string
}

type AuthResult struct {
	Token string
	User  *model.User
}

// NewAuthService wires account management. removers run in order when an account
// is deleted, before the user row goes.
func NewAuthService(
	userRepo UserStore,
	jwtSecret string,
	jwtExpiration time.Duration,
	embedModel string,
	removers ...UserDataRemover,
) *AuthService {
	return &AuthService{
		userRepo:      userRepo,
		jwtSecret:     jwtSecret,
		jwtExpiration: jwtExpiration,
		embedModel:    embedModel,
		removers:      removers,
	}
}

// Register creates the user together with a default knowledge base.
func (s *AuthService) Register(input RegisterInput) (*AuthResult, error) {
	username := strings.TrimSpace(input.Username)
	email := normalizeEmail(input.Email)
	password := strings.TrimSpace(input.Password)

	if len(username) < 3 || len(password) < minPasswordLen {
		return nil, ErrInvalidInput
	}
	if err := s.checkUnique(0, username, email); err != nil {
		return nil, err
	}

	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.userRepo.CreateWithKnowledgeBase(user, &model.KnowledgeBase{
		Name:        DefaultKnowledgeBaseName(user.Username),
		Description: "Default knowledge base",
		EmbedModel:  s.embedModel,
	}); err != nil {
		return nil, err
	}

	return s.issue(user)
}

func (s *AuthService) Login(input LoginInput) (*AuthResult, error) {
	username := strings.TrimSpace(input.Username)
	password := strings.TrimSpace(input.Password)
	if username == "" || password == "" {
		return nil, ErrInvalidInput
	}

	user, err := s.userRepo.GetByUsername(username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredential
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredential
	}
	now := time.Now()
	if err := s.userRepo.TouchLogin(user.ID, now); err != nil {
		return nil, err
	}
	user.LastLoginAt = &now
	return s.issue(user)
}

func (s *AuthService) GetUserByID(id uint) (*model.User, error) {
	if id == 0 {
		return nil, ErrInvalidInput
	}
	return s.userRepo.GetByID(id)
}

// UpdateProfile changes username and/or email. A new username must still be at
// least 3 characters; an empty email removes it.
func (s *AuthService) UpdateProfile(userID uint, input UpdateProfileInput) (*model.User, error) {
	if userID == 0 || (input.Username == nil && input.Email == nil) {
		return nil, ErrInvalidInput
	}
	user, err := s.existing(userID)
	if err != nil {
		return nil, err
	}

	username, email := user.Username, user.Email
	if input.Username != nil {
		username = strings.TrimSpace(*input.Username)
		if len(username) < 3 {
			return nil, ErrInvalidInput
		}
	}
	if input.Email != nil {
		email = normalizeEmail(*input.Email)
	}

	checkName, checkEmail := "", ""
	if username != user.Username {
		checkName = username
	}
	if email != user.Email {
		checkEmail = email
	}
	if err := s.checkUnique(user.ID, checkName, checkEmail); err != nil {
		return nil, err
	}

	if err := s.userRepo.UpdateProfile(user.ID, username, email); err != nil {
		return nil, err
	}
	user.Username = username
	user.Email = email
	return user, nil
}

// ChangePassword verifies the current password, stores the new one and returns a
// fresh token for the client to switch to.
func (s *AuthService) ChangePassword(userID uint, input ChangePasswordInput) (*AuthResult, error) {
	oldPassword := strings.TrimSpace(input.OldPassword)
	newPassword := strings.TrimSpace(input.NewPassword)
	if userID == 0 || oldPassword == "" || len(newPassword) < minPasswordLen {
		return nil, ErrInvalidInput
	}
	if oldPassword == newPassword {
		return nil, ErrPasswordUnchanged
	}
	user, err := s.existing(userID)
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)); err != nil {
		return nil, ErrWrongPassword
	}

	hash, err := hashPassword(newPassword)
	if err != nil {
		return nil, err
	}
	if err := s.userRepo.UpdatePassword(user.ID, hash); err != nil {
		return nil, err
	}
	user.PasswordHash = hash
	return s.issue(user)
}

// DeleteAccount removes the user's sessions, knowledge bases and stored files, then
// the user. A remover failure stops the deletion with the user row still present.
func (s *AuthService) DeleteAccount(ctx context.Context, userID uint) error {
	if userID == 0 {
		return ErrInvalidInput
	}
	user, err := s.existing(userID)
	if err != nil {
		return err
	}
	for _, r := range s.removers {
		if err := r.RemoveUserData(ctx, user.ID); err != nil {
			return fmt.Errorf("remove data of user %d: %w", user.ID, err)
		}
	}
	return s.userRepo.DeleteByID(user.ID)
}

func (s *AuthService) existing(userID uint) (*model.User, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// checkUnique rejects a username or email held by a user other than selfID.
// Empty values are not checked.
func (s *AuthService) checkUnique(selfID uint, username, email string) error {
	if username != "" {
		other, err := s.userRepo.GetByUsername(username)
		if err != nil {
			return err
		}
		if other != nil && other.ID != selfID {
			return ErrUsernameExists
		}
	}
	if email != "" {
		other, err := s.userRepo.GetByEmail(email)
		if err != nil {
			return err
		}
		if other != nil && other.ID != selfID {
			return ErrEmailExists
		}
	}
	return nil
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := jwtutil.GenerateToken(s.jwtSecret, s.jwtExpiration, user.ID, user.Username)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, User: user}, nil
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password failed: %w", err)
	}
	return string(hash), nil
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func DefaultKnowledgeBaseName(username string) string {
	return username + "'s Knowledge Base"
}
