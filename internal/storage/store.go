package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"kbassist/internal/config"
)

// Store keeps uploaded document files. Keys are slash separated, e.g.
// "documents/7/0b9f...-....pdf".
type Store interface {
	Type() string
	Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case "", "local":
		return NewLocalStore(cfg.LocalDir)
	case "minio":
		return NewMinIOStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", cfg.Type)
	}
}

// DocumentKey builds the key for a user's uploaded file.
func DocumentKey(userID uint, uid, ext string) string {
	return path.Join("documents", fmt.Sprintf("%d", userID), uid+strings.ToLower(ext))
}

func validKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return false
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return false
		}
	}
	return true
}
