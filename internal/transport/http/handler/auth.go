package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"kbassist/internal/app"
	"kbassist/internal/model"
	"kbassist/internal/transport/http/response"
)

type AuthService interface {
	Register(input app.RegisterInput) (*app.AuthResult, error)
	Login(input app.LoginInput) (*app.AuthResult, error)
	GetUserByID(id uint) (*model.User, error)
	UpdateProfile(userID uint, input app.UpdateProfileInput) (*model.User, error)
	ChangePassword(userID uint, input app.ChangePasswordInput) (*app.AuthResult, error)
	DeleteAccount(ctx context.Context, userID uint) error
}

type AuthHandler struct {
	authService AuthService
	logger      *zap.Logger
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Email    string `json:"email" binding:"omitempty,email,max=128"`
	Password string `json:"password" binding:"required,min=8,max=128"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required,max=64"`
	Password string `json:"password" binding:"required,max=128"`
}

// UpdateProfileRequest leaves absent fields unchanged; "email": "" clears the email.
type UpdateProfileRequest struct {
	UserID   flexUint `json:"userid"`
	Username *string  `json:"username" binding:"omitempty,min=3,max=64"`
	Email    *string  `json:"email" binding:"omitempty,max=128"`
}

type ChangePasswordRequest struct {
	UserID      flexUint `json:"userid"`
	OldPassword string   `json:"old_password" binding:"required,max=128"`
	NewPassword string   `json:"new_password" binding:"required,min=8,max=128"`
}

func NewAuthHandler(authService AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, logger: logger}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.authService.Register(app.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(c, h.logger, err, "register failed")
		return
	}

	response.Flat(c, http.StatusCreated, gin.H{
		"token":    result.Token,
		"user_id":  result.User.ID,
		"username": result.User.Username,
	})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.authService.Login(app.LoginInput{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(c, h.logger, err, "login failed")
		return
	}

	response.Flat(c, http.StatusOK, gin.H{
		"token":    result.Token,
		"user_id":  result.User.ID,
		"username": result.User.Username,
	})
}

func (h *AuthHandler) Detail(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	user, err := h.authService.GetUserByID(userID)
	if err != nil {
		writeServiceError(c, h.logger, err, "fetch current user failed")
		return
	}
	if user == nil {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "user not found")
		return
	}

	response.OK(c, gin.H{
		"id":       user.ID,
		"username": user.Username,
		"email":    user.Email,
	})
}

func (h *AuthHandler) Update(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	if !sameUser(c, userID, uint(req.UserID)) {
		return
	}
	if req.Email != nil && *req.Email != "" && !validEmail(*req.Email) {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid email")
		return
	}

	user, err := h.authService.UpdateProfile(userID, app.UpdateProfileInput{
		Username: req.Username,
		Email:    req.Email,
	})
	if err != nil {
		writeServiceError(c, h.logger, err, "update profile failed")
		return
	}
	response.OK(c, gin.H{
		"id":       user.ID,
		"username": user.Username,
		"email":    user.Email,
	})
}

// ChangePassword answers with a new token; the client should store it.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	if !sameUser(c, userID, uint(req.UserID)) {
		return
	}

	result, err := h.authService.ChangePassword(userID, app.ChangePasswordInput{
		OldPassword: req.OldPassword,
		NewPassword: req.NewPassword,
	})
	if err != nil {
		writeServiceError(c, h.logger, err, "change password failed")
		return
	}
	response.Flat(c, http.StatusOK, gin.H{
		"message":   "password updated",
		"token":     result.Token,
		"new_token": result.Token,
		"user_id":   result.User.ID,
	})
}

func (h *AuthHandler) Delete(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	if err := h.authService.DeleteAccount(c.Request.Context(), userID); err != nil {
		writeServiceError(c, h.logger, err, "delete account failed")
		return
	}
	h.logger.Info("account deleted", zap.Uint("user_id", userID))
	response.Flat(c, http.StatusOK, gin.H{"message": "account deleted"})
}
