package app

import "errors"

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrUsernameExists    = errors.New("username already exists")
	ErrEmailExists       = errors.New("email already exists")
	ErrInvalidCredential = errors.New("invalid username or password")
	ErrForbidden         = errors.New("resource belongs to another user")
	ErrUserNotFound      = errors.New("user not found")
	ErrWrongPassword     = errors.New("current password is incorrect")
	ErrPasswordUnchanged = errors.New("new password must differ from the current one")

	ErrKnowledgeBaseNotFound = errors.New("knowledge base not found")
	ErrDocumentNotFound      = errors.New("document not found")
	ErrChunkNotFound         = errors.New("chunk not found")
	ErrFileTooLarge          = errors.New("uploaded file is too large")
	ErrIngestEnqueue         = errors.New("document ingest enqueue failed")

	ErrSessionNotFound = errors.New("session not found")
	ErrSessionEnded    = errors.New("session has ended")
	ErrNoKnowledgeBase = errors.New("no knowledge base selected")
	ErrMessageEmpty    = errors.New("message content is empty")
	ErrMessageTooLong  = errors.New("message content is too long")
	ErrTitleInvalid    = errors.New("title must be 1 to 50 characters")
	ErrLLMConfig       = errors.New("llm config is invalid")
	ErrMessageEnqueue  = errors.New("message enqueue failed")
)
