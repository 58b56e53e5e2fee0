package telegram

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gotd/td/session"
)

// FileSessionStorage implements session.Storage for persistent per-account
// session files.
type FileSessionStorage struct {
	sessionDir  string
	phoneNumber string
	filePath    string
}

// NewFileSessionStorage creates a new file-based session storage
func NewFileSessionStorage(sessionDir, phoneNumber string) (*FileSessionStorage, error) {
	if err := os.MkdirAll(sessionDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	fileName := fmt.Sprintf("session_%s.json", phoneNumber)
	filePath := filepath.Join(sessionDir, fileName)

	return &FileSessionStorage{
		sessionDir:  sessionDir,
		phoneNumber: phoneNumber,
		filePath:    filePath,
	}, nil
}

// LoadSession loads session data from file
func (s *FileSessionStorage) LoadSession(ctx context.Context) ([]byte, error) {
	if _, err := os.Stat(s.filePath); os.IsNotExist(err) {
		return nil, session.ErrNotFound
	}

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	if len(data) == 0 {
		return nil, session.ErrNotFound
	}

	return data, nil
}

// StoreSession stores session data to file with restricted permissions
func (s *FileSessionStorage) StoreSession(ctx context.Context, data []byte) error {
	if err := os.WriteFile(s.filePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

// FilePath returns the path to the session file
func (s *FileSessionStorage) FilePath() string {
	return s.filePath
}

// Exists checks if a session file exists
func (s *FileSessionStorage) Exists() bool {
	_, err := os.Stat(s.filePath)
	return err == nil
}

// Ensure FileSessionStorage implements session.Storage interface
var _ session.Storage = (*FileSessionStorage)(nil)
