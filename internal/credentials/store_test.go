package credentials

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colthorp/nutrisync-cli-go/internal/core"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	db, err := OpenSQLite(filepath.Join(dir, "creds.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return map[string]Store{
		"file":   NewFile(filepath.Join(dir, "nested", "credentials.json")),
		"sqlite": db,
		"memory": NewMemory(),
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.GetToken(ctx)
			assert.ErrorIs(t, err, core.ErrNoToken)

			require.NoError(t, s.SaveToken(ctx, "tok-1"))
			tok, err := s.GetToken(ctx)
			require.NoError(t, err)
			assert.Equal(t, "tok-1", tok)

			require.NoError(t, s.SaveToken(ctx, "tok-2"))
			tok, err = s.GetToken(ctx)
			require.NoError(t, err)
			assert.Equal(t, "tok-2", tok)

			require.NoError(t, s.DeleteToken(ctx))
			_, err = s.GetToken(ctx)
			assert.ErrorIs(t, err, core.ErrNoToken)
			// deleting twice is fine
			require.NoError(t, s.DeleteToken(ctx))

			assert.True(t, core.IsValidation(s.SaveToken(ctx, "  ")))
		})
	}
}

func TestFileStoreIsPrivateAndTolerant(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credentials.json")
	f := NewFile(path)

	require.NoError(t, f.SaveToken(ctx, "secret"))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err = f.GetToken(ctx)
	assert.ErrorIs(t, err, core.ErrNoToken)
}

func TestSQLiteInMemory(t *testing.T) {
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.SaveToken(context.Background(), "abc"))
	tok, err := db.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)
}

func TestEnvTakesPrecedence(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	require.NoError(t, mem.SaveToken(ctx, "stored"))
	e := WithEnv(mem)

	t.Setenv(core.TokenEnvVar, "")
	tok, err := e.GetToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "stored", tok)

	t.Setenv(core.TokenEnvVar, "from-env")
	tok, err = e.GetToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "from-env", tok)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open("file", filepath.Join(dir, "c.json"))
	require.NoError(t, err)
	assert.IsType(t, &File{}, s)

	s, err = Open("SQLITE", filepath.Join(dir, "c.db"))
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, s)
	s.(*SQLite).Close()

	s, err = Open("memory", "")
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	_, err = Open("keychain", "")
	assert.Error(t, err)
}
