package migration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"add stores table", "add_stores_table"},
		{"Add-Stores-Table", "add_stores_table"},
		{"ADD_STORES_TABLE", "add_stores_table"},
		{"add__stores__table", "add_stores_table"},
		{"Add Index 123", "add_index_123"},
		{"   spaces   ", "spaces"},
		{"special!@#$chars", "specialchars"},
		{"trailing_", "trailing"},
		{"_leading", "leading"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeName(tt.input))
		})
	}
}

func writeMigrationFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("-- test"), 0o644))
	}
}

func TestCreateMigration(t *testing.T) {
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	t.Run("numbers after the highest existing version", func(t *testing.T) {
		dir := t.TempDir()
		writeMigrationFiles(t, dir,
			"000001_marketplace_sync.up.sql", "000001_marketplace_sync.down.sql",
			"000002_add_pack_index.up.sql", "000002_add_pack_index.down.sql",
		)

		mf, err := CreateMigration(dir, "add shipment table", "Shipments resolved from orders", now)
		require.NoError(t, err)
		assert.Equal(t, uint(3), mf.Version)
		assert.Equal(t, filepath.Join(dir, "000003_add_shipment_table.up.sql"), mf.UpPath)
		assert.Equal(t, filepath.Join(dir, "000003_add_shipment_table.down.sql"), mf.DownPath)

		up, err := os.ReadFile(mf.UpPath)
		require.NoError(t, err)
		assert.Contains(t, string(up), "-- Migration: add_shipment_table")
		assert.Contains(t, string(up), "-- Description: Shipments resolved from orders")
		assert.Contains(t, string(up), "2024-06-01T10:00:00Z")

		down, err := os.ReadFile(mf.DownPath)
		require.NoError(t, err)
		assert.Contains(t, string(down), "(Rollback)")
	})

	t.Run("starts at one and creates the directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "migrations")

		mf, err := CreateMigration(dir, "init", "", now)
		require.NoError(t, err)
		assert.Equal(t, uint(1), mf.Version)

		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())

		up, err := os.ReadFile(mf.UpPath)
		require.NoError(t, err)
		assert.NotContains(t, string(up), "Description")
	})

	t.Run("rejects names without usable characters", func(t *testing.T) {
		_, err := CreateMigration(t.TempDir(), "!!!", "", now)
		assert.Error(t, err)
	})
}

func TestListMigrations(t *testing.T) {
	t.Run("orders by version and skips other files", func(t *testing.T) {
		dir := t.TempDir()
		writeMigrationFiles(t, dir,
			"000010_late.up.sql", "000010_late.down.sql",
			"000002_second.up.sql", "000002_second.down.sql",
			"000001_first.up.sql", "000001_first.down.sql",
			"README.md", "notes.up.sql", ".gitkeep",
		)
		require.NoError(t, os.Mkdir(filepath.Join(dir, "000099_dir.up.sql"), 0o755))

		migrations, err := ListMigrations(dir)
		require.NoError(t, err)
		assert.Equal(t, []MigrationInfo{
			{Version: 1, Name: "first"},
			{Version: 2, Name: "second"},
			{Version: 10, Name: "late"},
		}, migrations)
		assert.Equal(t, "000010_late", migrations[2].String())
	})

	t.Run("missing directory is empty", func(t *testing.T) {
		migrations, err := ListMigrations("/nonexistent/path/to/migrations")
		require.NoError(t, err)
		assert.Empty(t, migrations)
	})

	t.Run("repository schema", func(t *testing.T) {
		migrations, err := ListMigrations(filepath.Join("..", "..", "..", "migrations"))
		require.NoError(t, err)
		require.NotEmpty(t, migrations)
		assert.Equal(t, "000001_marketplace_sync", migrations[0].String())
	})
}
