package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"kbassist/internal/api"
)

var ErrNotAuthenticated = errors.New("not logged in: missing token or user id")

// AuthContext is the signed-in identity passed explicitly to the API client and
// the chat coordinator.
type AuthContext struct {
	mu       sync.RWMutex
	token    string
	userID   api.ID
	username string
}

func NewAuthContext(token string, userID api.ID, username string) *AuthContext {
	return &AuthContext{token: token, userID: userID, username: username}
}

func (a *AuthContext) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}

func (a *AuthContext) UserID() api.ID {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.userID
}

func (a *AuthContext) Username() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.username
}

func (a *AuthContext) Set(token string, userID api.ID, username string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token, a.userID, a.username = token, userID, username
}

func (a *AuthContext) Clear() {
	a.Set("", "", "")
}

// Validate fails with ErrNotAuthenticated unless both token and user id are set.
func (a *AuthContext) Validate() error {
	if a == nil {
		return ErrNotAuthenticated
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if strings.TrimSpace(a.token) == "" || a.userID.IsZero() {
		return ErrNotAuthenticated
	}
	return nil
}

type fileRecord struct {
	Token    string `json:"token"`
	UserID   api.ID `json:"user_id"`
	Username string `json:"username,omitempty"`
}

// Store persists an AuthContext as a small JSON file readable only by the owner.
type Store struct {
	path string
}

// NewStore uses path, or <user config dir>/kbassist/credentials.json when empty.
func NewStore(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("resolve config dir failed: %w", err)
		}
		path = filepath.Join(dir, "kbassist", "credentials.json")
	}
	return &Store{path: path}, nil
}

func (s *Store) Path() string { return s.path }

// Load returns an empty context when no credentials were saved yet.
func (s *Store) Load() (*AuthContext, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return &AuthContext{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials failed: %w", err)
	}
	var rec fileRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode credentials failed: %w", err)
	}
	return NewAuthContext(rec.Token, rec.UserID, rec.Username), nil
}

func (s *Store) Save(auth *AuthContext) error {
	rec := fileRecord{Token: auth.Token(), UserID: auth.UserID(), Username: auth.Username()}
	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credentials failed: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create credentials dir failed: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("write credentials failed: %w", err)
	}
	return nil
}

func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove credentials failed: %w", err)
	}
	return nil
}
