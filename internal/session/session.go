// Package session exposes the stored access token of the signed-in user.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Source answers whether a user is signed in and with which token.
type Source interface {
	Token() string
	Authenticated() bool
}

// FileStore keeps the access token in a single file. The file is read on every
// call so a login or logout in another process is picked up immediately.
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Token returns the stored token, or "" when signed out.
func (s *FileStore) Token() string {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Authenticated reports whether a token is stored.
func (s *FileStore) Authenticated() bool {
	return s.Token() != ""
}

// Save stores token, replacing any previous one.
func (s *FileStore) Save(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("token is empty")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}

// Clear signs the user out.
func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove token: %w", err)
	}
	return nil
}

// Static is a fixed token, used when the token comes from configuration.
type Static string

// Token implements Source.
func (s Static) Token() string { return string(s) }

// Authenticated implements Source.
func (s Static) Authenticated() bool { return s != "" }
