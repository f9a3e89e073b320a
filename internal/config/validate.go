package config

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Akashdeep-Patra/gif-pipeline/internal/conversion"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTools(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateDefaults(); err != nil {
		return err
	}
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

func (c *Config) validateTools() error {
	if c.Tools.VerifyTimeoutSeconds < 0 {
		return fmt.Errorf("tools.verify_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.CancelGraceSeconds < 0 {
		return fmt.Errorf("pipeline.cancel_grace_seconds must be positive")
	}
	if c.Pipeline.StderrTailKB < 0 {
		return fmt.Errorf("pipeline.stderr_tail_kb must be positive")
	}
	if c.Pipeline.Threads < 0 {
		return fmt.Errorf("pipeline.threads must be 0 (auto) or positive")
	}
	return nil
}

func (c *Config) validateDefaults() error {
	if c.Defaults.FPS < conversion.MinFPS || c.Defaults.FPS > conversion.MaxFPS {
		return fmt.Errorf("defaults.fps must be between %d and %d", conversion.MinFPS, conversion.MaxFPS)
	}
	if c.Defaults.Width < 0 || c.Defaults.Height < 0 {
		return fmt.Errorf("defaults.width and defaults.height must be 0 (auto) or positive")
	}
	if _, err := conversion.ParseQuality(c.Defaults.Quality); err != nil {
		return fmt.Errorf("defaults.quality: %w", err)
	}
	return nil
}
