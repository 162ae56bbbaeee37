package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kebairia/walcheck/internal/logger"
	"github.com/kebairia/walcheck/internal/units"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// writeArchive creates name under dir with the given age relative to testNow.
func writeArchive(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("wal"), 0o644))
	mtime := testNow.Add(-age)
	require.NoError(t, os.Chtimes(p, mtime, mtime))
	return p
}

func TestLocal_ListMatchesRecursively(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "0000000100000000")
	writeArchive(t, sub, "000000010000000000000001-9f3b2c.gz", time.Hour)
	writeArchive(t, sub, "000000010000000000000002.gz", time.Hour)
	writeArchive(t, root, "00000002.history", time.Hour)
	writeArchive(t, root, "archive.info", time.Hour)
	writeArchive(t, sub, "000000010000000000000003.zst", time.Hour)

	files, err := NewLocal(logger.Nop()).List(context.Background(), root, CandidatePattern)
	require.NoError(t, err)
	require.Len(t, files, 2)

	names := []string{files[0].Name, files[1].Name}
	assert.ElementsMatch(t, []string{"000000010000000000000001-9f3b2c.gz", "000000010000000000000002.gz"}, names)
	for _, f := range files {
		assert.EqualValues(t, 3, f.Size)
		assert.True(t, f.ModTime.Equal(testNow.Add(-time.Hour)))
		assert.Equal(t, filepath.Join(sub, f.Name), f.Path)
	}
}

func TestLocal_MissingDirectory(t *testing.T) {
	_, err := NewLocal(logger.Nop()).List(context.Background(), filepath.Join(t.TempDir(), "nope"), CandidatePattern)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCollect_SortsAndFilters(t *testing.T) {
	root := t.TempDir()
	writeArchive(t, root, "000000010000000000000003.gz", 10*time.Second)
	writeArchive(t, root, "000000010000000000000001.gz", 2*time.Hour)
	writeArchive(t, root, "000000010000000000000002.gz", time.Hour)

	l := NewLocal(logger.Nop())
	files, ignored, err := Collect(context.Background(), l, root, 0, testNow)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Empty(t, ignored)
	assert.Equal(t, "000000010000000000000001.gz", files[0].Name)
	assert.Equal(t, "000000010000000000000003.gz", files[2].Name)

	files, ignored, err = Collect(context.Background(), l, root, units.Interval(60), testNow)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "000000010000000000000002.gz", files[1].Name)
	require.Len(t, ignored, 1)
	assert.Equal(t, "000000010000000000000003.gz", ignored[0].Name)
}

func TestCollect_NothingLeft(t *testing.T) {
	root := t.TempDir()
	writeArchive(t, root, "000000010000000000000001.gz", time.Minute)

	_, ignored, err := Collect(context.Background(), NewLocal(logger.Nop()), root, units.Interval(3600), testNow)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Len(t, ignored, 1)

	_, _, err = Collect(context.Background(), NewLocal(logger.Nop()), t.TempDir(), 0, testNow)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSplitModifiedSince_Sentinels(t *testing.T) {
	files := []ArchivedFile{{Name: "a", ModTime: testNow.Add(-1000 * time.Hour)}}

	kept, recent := SplitModifiedSince(files, units.Infinite, testNow)
	assert.Empty(t, kept)
	assert.Len(t, recent, 1)

	kept, recent = SplitModifiedSince(files, 0, testNow)
	assert.Len(t, kept, 1)
	assert.Empty(t, recent)

	kept, _ = SplitModifiedSince(files, units.NegInfinite, testNow)
	assert.Len(t, kept, 1)
}

func TestDir(t *testing.T) {
	assert.Equal(t, "/var/lib/pgbackrest/archive/main/12-1", Dir("/var/lib/pgbackrest", "main", "12-1"))
}
