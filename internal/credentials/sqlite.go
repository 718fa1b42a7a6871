package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/colthorp/nutrisync-cli-go/internal/core"
)

const tokenName = "token"

const schema = `CREATE TABLE IF NOT EXISTS credentials (
	name       TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`

// SQLite keeps credentials in a table of a local database.
type SQLite struct {
	conn *sql.DB
	path string
}

// OpenSQLite opens or creates the database at path. ":memory:" opens a
// private in-memory database.
func OpenSQLite(path string) (*SQLite, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite doesn't handle concurrent writes well
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLite{conn: conn, path: path}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.conn.Close()
}

// GetToken returns the stored token.
func (s *SQLite) GetToken(ctx context.Context) (string, error) {
	var tok string
	err := s.conn.QueryRowContext(ctx, `SELECT value FROM credentials WHERE name = ?`, tokenName).Scan(&tok)
	if errors.Is(err, sql.ErrNoRows) {
		return "", core.ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	return tok, nil
}

// SaveToken inserts or replaces the token.
func (s *SQLite) SaveToken(ctx context.Context, token string) error {
	if err := validToken(token); err != nil {
		return err
	}
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO credentials (name, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		tokenName, token, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

// DeleteToken removes the token row.
func (s *SQLite) DeleteToken(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM credentials WHERE name = ?`, tokenName); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}
