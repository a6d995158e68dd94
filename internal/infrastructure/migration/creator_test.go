package migration

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/erp/stockledger/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"add reserved column", "add_reserved_column"},
		{"Add-Reserved-Column", "add_reserved_column"},
		{"ADD_RESERVED_COLUMN", "add_reserved_column"},
		{"add__reserved__column", "add_reserved_column"},
		{"lots 2024", "lots_2024"},
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

func TestCreateMigration_NumbersAfterExisting(t *testing.T) {
	dir := t.TempDir()
	for _, f := range []string{"000001_init.up.sql", "000001_init.down.sql", "000007_lots.up.sql", "000007_lots.down.sql"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), []byte("-- test"), 0o644))
	}

	mf, err := CreateMigration(dir, "add container index", "Index containers")
	require.NoError(t, err)

	assert.Equal(t, "000008", mf.Version)
	assert.Equal(t, filepath.Join(dir, "000008_add_container_index.up.sql"), mf.UpPath)
	assert.Equal(t, filepath.Join(dir, "000008_add_container_index.down.sql"), mf.DownPath)

	up, err := os.ReadFile(mf.UpPath)
	require.NoError(t, err)
	assert.Contains(t, string(up), "add container index")
	assert.Contains(t, string(up), "Index containers")

	down, err := os.ReadFile(mf.DownPath)
	require.NoError(t, err)
	assert.Contains(t, string(down), "Rollback")
}

func TestCreateMigration_CreatesDirectory(t *testing.T) {
	nested := filepath.Join(t.TempDir(), "nested", "migrations")

	mf, err := CreateMigration(nested, "init", "")
	require.NoError(t, err)
	assert.Equal(t, "000001", mf.Version)

	info, err := os.Stat(nested)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestCreateMigration_RejectsEmptyName(t *testing.T) {
	_, err := CreateMigration(t.TempDir(), "!!!", "")
	assert.Error(t, err)
}

func TestListMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"000002_counts.up.sql":   {Data: []byte("--")},
		"000002_counts.down.sql": {Data: []byte("--")},
		"000001_core.up.sql":     {Data: []byte("--")},
		"000001_core.down.sql":   {Data: []byte("--")},
		"README.md":              {Data: []byte("x")},
		"embed.go":               {Data: []byte("package migrations")},
		"old.up.sql/keep":        {Data: []byte("dir")},
	}

	names, err := ListMigrations(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"000001_core", "000002_counts"}, names)
}

func TestListMigrations_MissingDirectory(t *testing.T) {
	names, err := ListMigrations(os.DirFS("/nonexistent/path/to/migrations"))
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestLatestVersion(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		v, err := LatestVersion(fstest.MapFS{})
		require.NoError(t, err)
		assert.Zero(t, v)
	})

	t.Run("non numeric prefix", func(t *testing.T) {
		_, err := LatestVersion(fstest.MapFS{"init_schema.up.sql": {Data: []byte("--")}})
		assert.Error(t, err)
	})

	t.Run("embedded schema", func(t *testing.T) {
		v, err := LatestVersion(migrations.FS)
		require.NoError(t, err)
		assert.Equal(t, uint(2), v)
	})
}
