//go:build unix

package tools

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Akashdeep-Patra/gif-pipeline/internal/conversion"
)

func fakeTool(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

// isolated returns a locator that only sees what the test configures.
func isolated(cfg Config) *Locator {
	l := NewLocator(cfg, nil)
	l.standardDirs = nil
	l.lookPath = func(string) (string, error) { return "", exec.ErrNotFound }
	l.executable = func() (string, error) { return "", errors.New("unknown") }
	return l
}

func TestLocate_SearchDirs(t *testing.T) {
	dir := t.TempDir()
	ffmpeg := fakeTool(t, dir, "ffmpeg", `echo "ffmpeg version 6.1 Copyright (c) 2000-2023"`)
	gifsicle := fakeTool(t, dir, "gifsicle", `echo "LCDF Gifsicle 1.94"`)
	ffprobe := fakeTool(t, dir, "ffprobe", `echo "ffprobe version 6.1"`)

	l := isolated(Config{SearchDirs: []string{dir}})
	paths, err := l.Locate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ffmpeg, paths.Transcoder)
	assert.Equal(t, gifsicle, paths.Optimizer)
	assert.Equal(t, ffprobe, paths.Prober)
}

func TestLocate_OverrideWins(t *testing.T) {
	searchDir, overrideDir := t.TempDir(), t.TempDir()
	fakeTool(t, searchDir, "ffmpeg", `echo "ffmpeg version 5.0"`)
	fakeTool(t, searchDir, "gifsicle", `echo "gifsicle 1.94"`)
	custom := fakeTool(t, overrideDir, "my-ffmpeg", `echo "ffmpeg version 7.0"`)

	l := isolated(Config{
		Overrides:  map[string]string{"ffmpeg": custom},
		SearchDirs: []string{searchDir},
	})
	paths, err := l.Locate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, custom, paths.Transcoder)
}

func TestLocate_BareOverrideUsesPath(t *testing.T) {
	searchDir, pathDir := t.TempDir(), t.TempDir()
	fakeTool(t, searchDir, "ffmpeg", `echo "ffmpeg version 5.0"`)
	fakeTool(t, searchDir, "gifsicle", `echo "gifsicle 1.94"`)
	want := fakeTool(t, pathDir, "ffmpeg7", `echo "ffmpeg version 7.0"`)

	l := isolated(Config{
		Overrides:  map[string]string{"ffmpeg": "ffmpeg7"},
		SearchDirs: []string{searchDir},
	})
	l.lookPath = func(name string) (string, error) {
		if name == "ffmpeg7" {
			return want, nil
		}
		return "", exec.ErrNotFound
	}
	paths, err := l.Locate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, paths.Transcoder)
}

func TestLocate_BundledPlatformName(t *testing.T) {
	platform := binaryNameForPlatform("gifsicle")
	if platform == "" {
		t.Skip("no bundled name for this platform")
	}
	bundle, other := t.TempDir(), t.TempDir()
	fakeTool(t, other, "ffmpeg", `echo "ffmpeg version 6.1"`)
	want := fakeTool(t, bundle, platform, `echo "gifsicle 1.94"`)

	l := isolated(Config{BundleDir: bundle, SearchDirs: []string{other}})
	paths, err := l.Locate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, paths.Optimizer)
}

func TestLocate_MissingOptimizer(t *testing.T) {
	dir := t.TempDir()
	fakeTool(t, dir, "ffmpeg", `echo "ffmpeg version 6.1"`)

	l := isolated(Config{SearchDirs: []string{dir}})
	_, err := l.Locate(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, conversion.ErrToolNotFound))

	var toolErr *conversion.ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, "gifsicle", toolErr.Tool)
	assert.Contains(t, err.Error(), "brew install gifsicle")

	paths, err := l.LocateTranscoder(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, paths.Transcoder)
	assert.Empty(t, paths.Optimizer)
}

func TestLocate_WrongSignatureIsUnusable(t *testing.T) {
	dir := t.TempDir()
	fakeTool(t, dir, "ffmpeg", `echo "totally not a transcoder"`)
	fakeTool(t, dir, "gifsicle", `echo "gifsicle 1.94"`)

	l := isolated(Config{SearchDirs: []string{dir}})
	_, err := l.Locate(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, conversion.ErrToolUnusable))
	assert.Contains(t, err.Error(), "unrecognised version output")
}

func TestLocate_FailingVersionCheck(t *testing.T) {
	dir := t.TempDir()
	fakeTool(t, dir, "ffmpeg", `echo "ffmpeg version 6.1"; exit 1`)

	l := isolated(Config{SearchDirs: []string{dir}})
	_, err := l.Resolve(context.Background(), Transcoder)
	assert.True(t, errors.Is(err, conversion.ErrToolUnusable))
}

func TestLocate_VersionCheckTimesOut(t *testing.T) {
	dir := t.TempDir()
	fakeTool(t, dir, "ffmpeg", `exec sleep 10`)

	l := isolated(Config{SearchDirs: []string{dir}, Timeout: 200 * time.Millisecond})
	started := time.Now()
	_, err := l.Resolve(context.Background(), Transcoder)
	require.Error(t, err)
	assert.True(t, errors.Is(err, conversion.ErrToolUnusable))
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(started), 5*time.Second)
}

func TestLocate_CachesOnlySuccess(t *testing.T) {
	dir := t.TempDir()
	ffmpeg := fakeTool(t, dir, "ffmpeg", `echo "ffmpeg version 6.1"`)

	l := isolated(Config{SearchDirs: []string{dir}})
	_, err := l.Resolve(context.Background(), Optimizer)
	require.Error(t, err, "gifsicle is not installed yet")

	fakeTool(t, dir, "gifsicle", `echo "gifsicle 1.94"`)
	first, err := l.Locate(context.Background())
	require.NoError(t, err, "a failed lookup must not be cached")

	// Cached paths survive the binary disappearing until Refresh.
	require.NoError(t, os.Remove(ffmpeg))
	second, err := l.Locate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)

	_, err = l.Refresh(context.Background())
	assert.True(t, errors.Is(err, conversion.ErrToolNotFound))
}

func TestLocate_ProberNextToTranscoder(t *testing.T) {
	ffmpegDir, gifsicleDir := t.TempDir(), t.TempDir()
	fakeTool(t, ffmpegDir, "ffmpeg", `echo "ffmpeg version 6.1"`)
	probe := fakeTool(t, ffmpegDir, "ffprobe", `echo "ffprobe version 6.1"`)
	fakeTool(t, gifsicleDir, "gifsicle", `echo "gifsicle 1.94"`)

	l := isolated(Config{
		Overrides:  map[string]string{"ffmpeg": filepath.Join(ffmpegDir, "ffmpeg")},
		SearchDirs: []string{gifsicleDir},
	})
	paths, err := l.Locate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, probe, paths.Prober)
}

func TestLocate_NonExecutableSkipped(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ffmpeg"), []byte("#!/bin/sh\necho ffmpeg version 1\n"), 0o644))

	l := isolated(Config{SearchDirs: []string{dir}})
	_, err := l.Resolve(context.Background(), Transcoder)
	assert.True(t, errors.Is(err, conversion.ErrToolNotFound))
}

func TestStatus(t *testing.T) {
	dir := t.TempDir()
	fakeTool(t, dir, "ffmpeg", "echo \"ffmpeg version 6.1 Copyright\"\necho \"built with gcc\"")

	l := isolated(Config{SearchDirs: []string{dir}})
	statuses := l.Status(context.Background())
	require.Len(t, statuses, 3)

	assert.Equal(t, "ffmpeg", statuses[0].Tool.Name)
	assert.True(t, statuses[0].Available)
	assert.Equal(t, "ffmpeg version 6.1 Copyright", statuses[0].Version)

	assert.Equal(t, "gifsicle", statuses[1].Tool.Name)
	assert.False(t, statuses[1].Available)
	assert.NotEmpty(t, statuses[1].Detail)

	assert.True(t, statuses[2].Tool.Optional)
}
