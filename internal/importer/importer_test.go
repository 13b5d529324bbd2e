package importer

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felo/mailgate/internal/db"
	"github.com/felo/mailgate/internal/metrics"
)

func writeEML(t *testing.T, dir, name, slug string) {
	t.Helper()
	raw := fmt.Sprintf(
		"Message-Id: <%s@test.com>\r\nSubject: %s\r\nFrom: sender@test.com\r\n"+
			"Date: Thu, 28 Aug 2026 10:00:00 +0000\r\nContent-Type: text/plain\r\n\r\nbody of %s\r\n",
		slug, slug, slug)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(raw), 0644))
}

func TestImportDir(t *testing.T) {
	store := db.SetupTestDB(t)
	t.Cleanup(func() { db.CleanupTestDB(t, store) })

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0755))
	writeEML(t, dir, "one.eml", "import-1")
	writeEML(t, filepath.Join(dir, "nested"), "two.eml", "import-2")
	// Non-eml files are ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0644))

	imp := New(store, metrics.NewExporter()).WithConcurrency(2)
	result, err := imp.ImportDir(dir)
	require.NoError(t, err)

	assert.Equal(t, 2, result.TotalFound)
	assert.Equal(t, 2, result.Imported)
	assert.Zero(t, result.Failed)

	count, err := store.CountMessages()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestImportDirSkipsDuplicates(t *testing.T) {
	store := db.SetupTestDB(t)
	t.Cleanup(func() { db.CleanupTestDB(t, store) })

	dir := t.TempDir()
	writeEML(t, dir, "one.eml", "repeat")

	imp := New(store, metrics.NewExporter())

	first, err := imp.ImportDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Imported)

	second, err := imp.ImportDir(dir)
	require.NoError(t, err)
	assert.Zero(t, second.Imported)
	assert.Equal(t, 1, second.Skipped)
}

func TestImportDirReportsBrokenFiles(t *testing.T) {
	store := db.SetupTestDB(t)
	t.Cleanup(func() { db.CleanupTestDB(t, store) })

	dir := t.TempDir()
	writeEML(t, dir, "good.eml", "good")
	// A header line without a colon does not parse as a message
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.eml"),
		[]byte("this is not a mail header\r\n\r\n"), 0644))

	imp := New(store, metrics.NewExporter())
	result, err := imp.ImportDir(dir)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.FailedFiles, 1)
	assert.Contains(t, result.FailedFiles[0], "broken.eml")
}
