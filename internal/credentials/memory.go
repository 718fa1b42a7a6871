package credentials

import (
	"context"
	"sync"

	"github.com/colthorp/nutrisync-cli-go/internal/core"
)

// Memory is an in-process store for tests and one-shot runs.
type Memory struct {
	mu    sync.RWMutex
	token string
}

// NewMemory creates an empty memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// GetToken returns the stored token.
func (m *Memory) GetToken(context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.token == "" {
		return "", core.ErrNoToken
	}
	return m.token, nil
}

// SaveToken replaces the token.
func (m *Memory) SaveToken(_ context.Context, token string) error {
	if err := validToken(token); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

// DeleteToken forgets the token.
func (m *Memory) DeleteToken(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	return nil
}
