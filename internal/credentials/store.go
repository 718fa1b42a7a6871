// Package credentials keeps the backend auth token in an opaque key-value
// store. The token is never interpreted here.
package credentials

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/colthorp/nutrisync-cli-go/internal/core"
)

// Store persists one bearer token. GetToken returns core.ErrNoToken when none
// is stored.
type Store interface {
	GetToken(ctx context.Context) (string, error)
	SaveToken(ctx context.Context, token string) error
	DeleteToken(ctx context.Context) error
}

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Open returns the store for backend. An empty path uses the data directory.
func Open(backend, path string) (Store, error) {
	switch strings.ToLower(backend) {
	case "", BackendFile:
		if path == "" {
			path = filepath.Join(core.DataRoot(), "credentials.json")
		}
		return NewFile(path), nil
	case BackendSQLite:
		if path == "" {
			path = filepath.Join(core.DataRoot(), "nutrisync.db")
		}
		return OpenSQLite(path)
	case BackendMemory:
		return NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown credentials backend %q", backend)
}

// Env overlays the token environment variable on a store. A set variable
// wins over the stored token; writes go to the store.
type Env struct {
	Store
	Var string
}

// WithEnv wraps s so that core.TokenEnvVar takes precedence.
func WithEnv(s Store) *Env {
	return &Env{Store: s, Var: core.TokenEnvVar}
}

// GetToken returns the environment token if set.
func (e *Env) GetToken(ctx context.Context) (string, error) {
	if tok := strings.TrimSpace(os.Getenv(e.Var)); tok != "" {
		return tok, nil
	}
	return e.Store.GetToken(ctx)
}

func validToken(token string) error {
	if strings.TrimSpace(token) == "" {
		return core.Invalid("token", "is empty")
	}
	return nil
}
