//go:build unix

package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Akashdeep-Patra/gif-pipeline/internal/conversion"
)

func TestScratchRun_Layout(t *testing.T) {
	root := filepath.Join(t.TempDir(), "scratch")
	s, err := newScratchRun(root, "abc")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "run-abc", "raw.gif"), s.Raw())
	assert.Equal(t, filepath.Join(root, "run-abc", "optimized.gif"), s.Optimized())
	assert.DirExists(t, filepath.Join(root, "run-abc"))

	_, err = newScratchRun(root, "abc")
	assert.True(t, errors.Is(err, conversion.ErrIO), "run directories are never shared")

	require.NoError(t, os.WriteFile(s.Raw(), []byte("gif"), 0o644))
	require.NoError(t, s.Remove())
	assert.NoDirExists(t, filepath.Join(root, "run-abc"))
}

func TestSweepScratch(t *testing.T) {
	root := t.TempDir()

	stale := filepath.Join(root, "run-stale")
	require.NoError(t, os.Mkdir(stale, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(stale, "raw.gif"), []byte("left over"), 0o644))

	unrelated := filepath.Join(root, "keep-me")
	require.NoError(t, os.Mkdir(unrelated, 0o700))

	live, err := newScratchRun(root, "live")
	require.NoError(t, err)
	defer live.Remove()

	removed, err := SweepScratch(root, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.NoDirExists(t, stale)
	assert.DirExists(t, unrelated)
	assert.DirExists(t, filepath.Join(root, "run-live"))

	removed, err = SweepScratch(filepath.Join(root, "missing"), nil)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestPublishFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "optimized.gif")
	dest := filepath.Join(dir, "final.gif")
	require.NoError(t, os.WriteFile(src, []byte("GIF89a"), 0o644))
	require.NoError(t, os.WriteFile(dest, []byte("old"), 0o644))

	require.NoError(t, publishFile(src, dest, "id"))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "GIF89a", string(data))
	assert.NoFileExists(t, src)
}

func TestPublishFile_FailureLeavesNoPartial(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "optimized.gif")
	require.NoError(t, os.WriteFile(src, []byte("GIF89a"), 0o644))

	// A non-empty directory cannot be replaced by a rename.
	dest := filepath.Join(dir, "occupied")
	require.NoError(t, os.MkdirAll(filepath.Join(dest, "child"), 0o755))

	err := publishFile(src, dest, "id")
	require.Error(t, err)
	assert.True(t, errors.Is(err, conversion.ErrIO))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".partial"), "staged copy %s left behind", e.Name())
	}
}
