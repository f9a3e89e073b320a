package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Akashdeep-Patra/gif-pipeline/internal/conversion"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.toml")
	cfg, resolved, exists, err := Load(path)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, path, resolved)

	assert.Equal(t, 10, cfg.Defaults.FPS)
	assert.Equal(t, conversion.QualityMedium, cfg.DefaultQuality())
	assert.Equal(t, 5*time.Second, cfg.CancelGrace())
	assert.Equal(t, 8*1024, cfg.StderrTailBytes())
	assert.Equal(t, 3*time.Second, cfg.LocatorConfig().Timeout)
	assert.True(t, filepath.IsAbs(cfg.Pipeline.ScratchDir))
}

func TestLoad_SampleConfigIsValid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	require.NoError(t, CreateSample(path))

	cfg, _, exists, err := Load(path)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "medium", cfg.Defaults.Quality)
	assert.Empty(t, cfg.LocatorConfig().Overrides)
}

func TestLoad_Overrides(t *testing.T) {
	bin := t.TempDir()
	path := writeConfig(t, `
[tools]
ffmpeg = "`+filepath.Join(bin, "ffmpeg")+`"
gifsicle = "gifsicle"
search_dirs = ["`+bin+`", "  "]
verify_timeout_seconds = 7

[pipeline]
cancel_grace_seconds = 2
stderr_tail_kb = 16
threads = 4

[defaults]
fps = 24
quality = "HIGH"
width = 480

[logging]
level = "debug"
`)
	cfg, _, _, err := Load(path)
	require.NoError(t, err)

	loc := cfg.LocatorConfig()
	assert.Equal(t, filepath.Join(bin, "ffmpeg"), loc.Overrides["ffmpeg"])
	assert.Equal(t, "gifsicle", loc.Overrides["gifsicle"], "bare names stay PATH lookups")
	assert.NotContains(t, loc.Overrides, "ffprobe")
	assert.Equal(t, []string{bin}, loc.SearchDirs)
	assert.Equal(t, 7*time.Second, loc.Timeout)

	assert.Equal(t, 2*time.Second, cfg.CancelGrace())
	assert.Equal(t, 16*1024, cfg.StderrTailBytes())
	assert.Equal(t, 4, cfg.Pipeline.Threads)
	assert.Equal(t, 24, cfg.Defaults.FPS)
	assert.Equal(t, conversion.QualityHigh, cfg.DefaultQuality())
	assert.Equal(t, 480, cfg.Defaults.Width)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_Rejects(t *testing.T) {
	tests := map[string]string{
		"unknown key":   "[pipeline]\nscratch = \"/tmp\"\n",
		"bad syntax":    "[pipeline\n",
		"fps too high":  "[defaults]\nfps = 240\n",
		"bad quality":   "[defaults]\nquality = \"ultra\"\n",
		"negative size": "[defaults]\nwidth = -1\n",
		"bad level":     "[logging]\nlevel = \"loud\"\n",
		"threads":       "[pipeline]\nthreads = -2\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, _, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandPath("~/gifs")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "gifs"), got)

	got, err = ExpandPath("")
	require.NoError(t, err)
	assert.Empty(t, got)
}
