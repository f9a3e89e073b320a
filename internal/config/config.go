package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/Akashdeep-Patra/gif-pipeline/internal/conversion"
	"github.com/Akashdeep-Patra/gif-pipeline/internal/tools"
)

//go:embed sample_config.toml
var sampleConfig string

const (
	defaultConfigPath = "~/.config/gif-pipeline/config.toml"
	projectConfigName = "gif-pipeline.toml"
)

// Tools controls where external binaries are looked up.
type Tools struct {
	FFmpeg               string   `toml:"ffmpeg"`
	Gifsicle             string   `toml:"gifsicle"`
	FFprobe              string   `toml:"ffprobe"`
	BundleDir            string   `toml:"bundle_dir"`
	SearchDirs           []string `toml:"search_dirs"`
	VerifyTimeoutSeconds int      `toml:"verify_timeout_seconds"`
}

// Pipeline contains settings shared by every conversion run.
type Pipeline struct {
	ScratchDir         string `toml:"scratch_dir"`
	CancelGraceSeconds int    `toml:"cancel_grace_seconds"`
	StderrTailKB       int    `toml:"stderr_tail_kb"`
	// Threads is passed to ffmpeg; 0 picks a value from the CPU count.
	Threads int `toml:"threads"`
}

// Defaults fill in convert options the user did not set.
type Defaults struct {
	FPS     int    `toml:"fps"`
	Quality string `toml:"quality"`
	Width   int    `toml:"width"`
	Height  int    `toml:"height"`
}

// Logging configures the log file.
type Logging struct {
	Level string `toml:"level"`
	Dir   string `toml:"dir"`
}

// Config is the root configuration document.
type Config struct {
	Tools    Tools    `toml:"tools"`
	Pipeline Pipeline `toml:"pipeline"`
	Defaults Defaults `toml:"defaults"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path of the per-user config file.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. A missing file is
// not an error: the defaults are returned and exists is false.
func Load(path string) (cfg *Config, resolved string, exists bool, err error) {
	c := Default()

	resolved, exists, err = resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolved)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file).DisallowUnknownFields()
		if err := decoder.Decode(&c); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, "", false, fmt.Errorf("parse config %s: %s", resolved, strict.String())
			}
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolved, err)
		}
	}

	if err := c.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := c.Validate(); err != nil {
		return nil, "", false, err
	}
	return &c, resolved, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}

	for _, candidate := range []string{defaultPath, projectPath} {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true, nil
		}
	}
	return defaultPath, false, nil
}

// LocatorConfig returns the tool locator settings.
func (c *Config) LocatorConfig() tools.Config {
	overrides := make(map[string]string)
	for name, path := range map[string]string{
		tools.Transcoder.Name: c.Tools.FFmpeg,
		tools.Optimizer.Name:  c.Tools.Gifsicle,
		tools.Prober.Name:     c.Tools.FFprobe,
	} {
		if path != "" {
			overrides[name] = path
		}
	}
	return tools.Config{
		Overrides:  overrides,
		BundleDir:  c.Tools.BundleDir,
		SearchDirs: append([]string(nil), c.Tools.SearchDirs...),
		Timeout:    time.Duration(c.Tools.VerifyTimeoutSeconds) * time.Second,
	}
}

// CancelGrace is how long a cancelled tool gets before it is killed.
func (c *Config) CancelGrace() time.Duration {
	return time.Duration(c.Pipeline.CancelGraceSeconds) * time.Second
}

// StderrTailBytes is how much tool stderr is kept for diagnostics.
func (c *Config) StderrTailBytes() int {
	return c.Pipeline.StderrTailKB * 1024
}

// DefaultQuality parses the configured default quality.
func (c *Config) DefaultQuality() conversion.Quality {
	q, err := conversion.ParseQuality(c.Defaults.Quality)
	if err != nil {
		return conversion.QualityMedium
	}
	return q
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// CreateSample writes the sample configuration file to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
