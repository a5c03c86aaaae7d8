package app

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthService_RegisterValidation(t *testing.T) {
	svc := &AuthService{}
	_, err := svc.Register(RegisterInput{Username: "ab", Email: "a@b.c", Password: "longenough"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.Register(RegisterInput{Username: "alice", Email: "a@b.c", Password: "short"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.Login(LoginInput{Username: " ", Password: "x"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDefaultKnowledgeBaseName(t *testing.T) {
	assert.Equal(t, "alice's Knowledge Base", DefaultKnowledgeBaseName("alice"))
}

func TestKnowledgeService_CreateValidation(t *testing.T) {
	svc := &KnowledgeService{}
	_, err := svc.Create(CreateKnowledgeBaseInput{UserID: 1, Name: "  "})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.Create(CreateKnowledgeBaseInput{UserID: 1, Name: strings.Repeat("n", 101)})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.Owned(0, 1)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDocumentService_UploadValidation(t *testing.T) {
	svc := &DocumentService{maxUpload: 10}
	ctx := context.Background()

	_, err := svc.Upload(ctx, UploadInput{UserID: 1, KBID: 1, FileName: "a.txt"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Upload(ctx, UploadInput{UserID: 1, KBID: 1, FileName: "a.txt", Size: 11, Body: strings.NewReader("x")})
	assert.ErrorIs(t, err, ErrFileTooLarge)

	_, err = svc.Detail(1, "  ")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
