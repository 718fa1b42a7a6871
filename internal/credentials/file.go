package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/colthorp/nutrisync-cli-go/internal/core"
)

type filePayload struct {
	Token   string    `json:"token"`
	SavedAt time.Time `json:"savedAt"`
}

// File stores the token as JSON on disk.
type File struct {
	path      string
	writeLock sync.Mutex
}

// NewFile creates a file store at path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the file location.
func (f *File) Path() string { return f.path }

// GetToken reads the stored token. A corrupt file is treated as absent.
func (f *File) GetToken(ctx context.Context) (string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", core.ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("read credentials: %w", err)
	}
	var p filePayload
	if err := json.Unmarshal(data, &p); err != nil || p.Token == "" {
		return "", core.ErrNoToken
	}
	return p.Token, nil
}

// SaveToken writes the token atomically with owner-only permissions.
func (f *File) SaveToken(ctx context.Context, token string) error {
	if err := validToken(token); err != nil {
		return err
	}
	data, err := json.MarshalIndent(filePayload{Token: token, SavedAt: time.Now().UTC()}, "", "  ")
	if err != nil {
		return err
	}

	f.writeLock.Lock()
	defer f.writeLock.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}
	// Write to temp file first, then rename (atomic)
	tmpPath := f.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return os.Rename(tmpPath, f.path)
}

// DeleteToken removes the file. Deleting a missing token is not an error.
func (f *File) DeleteToken(ctx context.Context) error {
	f.writeLock.Lock()
	defer f.writeLock.Unlock()
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete credentials: %w", err)
	}
	return nil
}
