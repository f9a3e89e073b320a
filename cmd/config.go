// cmd/config.go
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Akashdeep-Patra/gif-pipeline/internal/config"
)

var (
	configTarget    string
	configOverwrite bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration utilities",
}

var configInitCmd = &cobra.Command{
	Use:         "init",
	Short:       "Create a sample configuration file",
	Annotations: map[string]string{"skipConfigLoad": "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		target := strings.TrimSpace(configTarget)
		var err error
		if target == "" {
			target, err = config.DefaultConfigPath()
		} else {
			target, err = config.ExpandPath(target)
		}
		if err != nil {
			return fmt.Errorf("resolve config path: %w", err)
		}

		if !configOverwrite {
			if _, err := os.Stat(target); err == nil {
				return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
			} else if !os.IsNotExist(err) {
				return fmt.Errorf("check config path: %w", err)
			}
		}

		if err := config.CreateSample(target); err != nil {
			return fmt.Errorf("create sample config: %w", err)
		}
		color.Green("Wrote sample configuration to %s", target)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		rows := [][]string{
			{"tools.ffmpeg", cfg.Tools.FFmpeg},
			{"tools.gifsicle", cfg.Tools.Gifsicle},
			{"tools.ffprobe", cfg.Tools.FFprobe},
			{"tools.bundle_dir", cfg.Tools.BundleDir},
			{"tools.search_dirs", strings.Join(cfg.Tools.SearchDirs, ", ")},
			{"tools.verify_timeout_seconds", fmt.Sprint(cfg.Tools.VerifyTimeoutSeconds)},
			{"pipeline.scratch_dir", cfg.Pipeline.ScratchDir},
			{"pipeline.cancel_grace_seconds", fmt.Sprint(cfg.Pipeline.CancelGraceSeconds)},
			{"pipeline.stderr_tail_kb", fmt.Sprint(cfg.Pipeline.StderrTailKB)},
			{"pipeline.threads", fmt.Sprint(cfg.Pipeline.Threads)},
			{"defaults.fps", fmt.Sprint(cfg.Defaults.FPS)},
			{"defaults.quality", cfg.Defaults.Quality},
			{"defaults.width", fmt.Sprint(cfg.Defaults.Width)},
			{"defaults.height", fmt.Sprint(cfg.Defaults.Height)},
			{"logging.level", cfg.Logging.Level},
			{"logging.dir", cfg.Logging.Dir},
		}
		fmt.Println(renderTable([]string{"Key", "Value"}, rows))
		return nil
	},
}

func init() {
	configInitCmd.Flags().StringVarP(&configTarget, "path", "p", "", "Destination for the configuration file")
	configInitCmd.Flags().BoolVar(&configOverwrite, "overwrite", false, "Overwrite existing configuration if present")
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
