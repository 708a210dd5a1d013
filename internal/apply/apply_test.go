package apply

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"migen/internal/history"
)

func TestTransactionalDetection(t *testing.T) {
	plain := &history.File{Statements: []string{
		"CREATE TABLE a (id uuid)",
		"ALTER TABLE a ADD COLUMN n integer",
		"CREATE TYPE moods AS ENUM ('calm')",
	}}
	assert.True(t, transactional(plain))

	// ALTER TYPE ... ADD VALUE cannot run inside a transaction block; one such
	// statement switches the whole file to autocommit.
	enumGrow := &history.File{Statements: []string{
		"ALTER TABLE a ADD COLUMN n integer",
		"ALTER TYPE post_states ADD VALUE 'archived'",
	}}
	assert.False(t, transactional(enumGrow))

	lowercase := &history.File{Statements: []string{"alter type moods add value 'tense'"}}
	assert.False(t, transactional(lowercase))
}

func TestFilesDiscovery(t *testing.T) {
	dir := t.TempDir()
	write := func(name, contents string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644))
	}
	write("20240102120000_000002.sql", "-- +migrate Up\nDROP TABLE a;\n-- +migrate Down\n")
	write("20240101120000_000001.sql", "-- +migrate Up\nCREATE TABLE a (id uuid);\n-- +migrate Down\n")
	write("README.md", "not a migration")

	r := NewRunner(Options{Dir: dir})
	files, err := r.Files()
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, 1, files[0].Version)
	assert.Equal(t, 2, files[1].Version)
}

func TestFilesMissingDirectory(t *testing.T) {
	r := NewRunner(Options{Dir: filepath.Join(t.TempDir(), "missing")})
	files, err := r.Files()
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestDryRunListing(t *testing.T) {
	dir := t.TempDir()
	contents := "-- +migrate Up\nCREATE TABLE a (id uuid);\nDROP TABLE b;\n-- +migrate Down\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20240101120000_000001.sql"), []byte(contents), 0o644))

	var buf bytes.Buffer
	r := NewRunner(Options{Dir: dir, DryRun: true, Out: &buf})
	files, err := r.Files()
	require.NoError(t, err)
	r.DryRun(files)

	out := buf.String()
	assert.Contains(t, out, "=== DRY RUN MODE ===")
	assert.Contains(t, out, "20240101120000_000001.sql (version 1):")
	assert.Contains(t, out, "1. CREATE TABLE a (id uuid)")
	assert.Contains(t, out, "2. DROP TABLE b")
	assert.Contains(t, out, "1 migration(s) pending")
}

func TestApplyDryRunExecutesNothing(t *testing.T) {
	dir := t.TempDir()
	contents := "-- +migrate Up\nDROP TABLE a;\n-- +migrate Down\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20240101120000_000001.sql"), []byte(contents), 0o644))

	var buf bytes.Buffer
	// No connection is established; a dry-run Apply must not need one.
	r := NewRunner(Options{Dir: dir, DryRun: true, Out: &buf})
	files, err := r.Files()
	require.NoError(t, err)

	require.NoError(t, r.Apply(context.Background(), files))
	assert.Contains(t, buf.String(), "=== DRY RUN MODE ===")
	assert.NotContains(t, buf.String(), "Successfully applied")
}

func TestTruncateSQL(t *testing.T) {
	short := "DROP TABLE t"
	assert.Equal(t, short, truncateSQL(short))

	long := "CREATE TABLE t (" + strings.Repeat("a", 150) + ")"
	got := truncateSQL(long)
	assert.Len(t, got, 120)
	assert.True(t, strings.HasSuffix(got, "..."))
}
