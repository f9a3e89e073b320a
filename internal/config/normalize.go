package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizeTools(); err != nil {
		return err
	}
	if err := c.normalizePipeline(); err != nil {
		return err
	}
	c.normalizeDefaults()
	return c.normalizeLogging()
}

func (c *Config) normalizeTools() error {
	var err error
	if c.Tools.FFmpeg, err = expandToolPath(c.Tools.FFmpeg); err != nil {
		return fmt.Errorf("tools.ffmpeg: %w", err)
	}
	if c.Tools.Gifsicle, err = expandToolPath(c.Tools.Gifsicle); err != nil {
		return fmt.Errorf("tools.gifsicle: %w", err)
	}
	if c.Tools.FFprobe, err = expandToolPath(c.Tools.FFprobe); err != nil {
		return fmt.Errorf("tools.ffprobe: %w", err)
	}
	if c.Tools.BundleDir, err = expandPath(strings.TrimSpace(c.Tools.BundleDir)); err != nil {
		return fmt.Errorf("tools.bundle_dir: %w", err)
	}

	dirs := c.Tools.SearchDirs[:0]
	for _, dir := range c.Tools.SearchDirs {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			continue
		}
		expanded, err := expandPath(dir)
		if err != nil {
			return fmt.Errorf("tools.search_dirs: %w", err)
		}
		dirs = append(dirs, expanded)
	}
	c.Tools.SearchDirs = dirs

	if c.Tools.VerifyTimeoutSeconds == 0 {
		c.Tools.VerifyTimeoutSeconds = defaultVerifyTimeoutSeconds
	}
	return nil
}

// expandToolPath leaves a bare command name alone so it is looked up on PATH.
func expandToolPath(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" || (!strings.ContainsAny(value, `/\`) && value != "~") {
		return value, nil
	}
	return expandPath(value)
}

func (c *Config) normalizePipeline() error {
	if strings.TrimSpace(c.Pipeline.ScratchDir) == "" {
		c.Pipeline.ScratchDir = filepath.Join(os.TempDir(), "gif-pipeline")
	}
	var err error
	if c.Pipeline.ScratchDir, err = expandPath(c.Pipeline.ScratchDir); err != nil {
		return fmt.Errorf("pipeline.scratch_dir: %w", err)
	}
	if c.Pipeline.CancelGraceSeconds == 0 {
		c.Pipeline.CancelGraceSeconds = defaultCancelGraceSeconds
	}
	if c.Pipeline.StderrTailKB == 0 {
		c.Pipeline.StderrTailKB = defaultStderrTailKB
	}
	return nil
}

func (c *Config) normalizeDefaults() {
	c.Defaults.Quality = strings.ToLower(strings.TrimSpace(c.Defaults.Quality))
	if c.Defaults.Quality == "" {
		c.Defaults.Quality = defaultQuality
	}
	if c.Defaults.FPS == 0 {
		c.Defaults.FPS = defaultFPS
	}
}

func (c *Config) normalizeLogging() error {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if strings.TrimSpace(c.Logging.Dir) == "" {
		c.Logging.Dir = filepath.Join(os.TempDir(), "gif-pipeline-logs")
	}
	var err error
	if c.Logging.Dir, err = expandPath(c.Logging.Dir); err != nil {
		return fmt.Errorf("logging.dir: %w", err)
	}
	return nil
}
