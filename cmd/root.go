// cmd/root.go
package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Akashdeep-Patra/gif-pipeline/internal/config"
)

// exitCancelled is the conventional status for a run stopped by Ctrl-C.
const exitCancelled = 130

var errCancelled = errors.New("conversion cancelled")

var (
	verbose    bool
	configPath string
	logger     *logrus.Logger
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "gif-pipeline",
	Short: "Convert video clips to optimized GIFs",
	Long: `GIF Pipeline - convert a clip of a video file into an optimized animated GIF.

Features:
- Single-pass palette generation with ffmpeg
- Lossy optimization with gifsicle
- Interactive mode, progress bars and clean cancellation
- Per-user TOML configuration`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations["skipConfigLoad"] == "true" {
			cfg = defaultConfig()
			setupLogging()
			return nil
		}
		loaded, path, exists, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
		setupLogging()
		if exists {
			logger.Debugf("Loaded configuration from %s", path)
		}
		return nil
	},
}

// Execute runs the root command and exits with a non-zero status on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errCancelled) {
			os.Exit(exitCancelled)
		}
		fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file")
	logger = logrus.New()
}

func defaultConfig() *config.Config {
	c := config.Default()
	return &c
}

func setupLogging() {
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	if verbose {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)

	// Set up log file
	logDir := cfg.Logging.Dir
	if logDir == "" {
		logDir = filepath.Join(os.TempDir(), "gif-pipeline-logs")
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not create log directory: %v\n", err)
		return
	}

	logFile := filepath.Join(logDir, "gif-pipeline.log")
	f, err := os.OpenFile(logFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not set up log file: %v\n", err)
		return
	}

	logger.SetOutput(f)
	logger.Info("GIF Pipeline started")
}

// GetLogger returns the process-wide logger.
func GetLogger() *logrus.Logger {
	return logger
}
