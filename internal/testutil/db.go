package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maibvn/pal/internal/config"
	"github.com/maibvn/pal/internal/db"
	"github.com/maibvn/pal/internal/filestore"
)

// OpenTestDB returns a migrated sqlite database living in the test's temp dir.
func OpenTestDB(t *testing.T) *db.DB {
	t.Helper()
	conn, err := db.OpenSQLite(filepath.Join(t.TempDir(), "pal.db"))
	require.NoError(t, err, "open db")
	require.NoError(t, db.ApplyMigrations(conn), "migrations")
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

func OpenTestStore(t *testing.T) filestore.Store {
	t.Helper()
	store, err := filestore.New(config.FileStoreConfig{
		Type: "local",
		Data: map[string]interface{}{"dir": t.TempDir()},
	})
	require.NoError(t, err, "open file store")
	return store
}
