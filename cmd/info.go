// cmd/info.go
package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Akashdeep-Patra/gif-pipeline/internal/progress"
)

var infoCmd = &cobra.Command{
	Use:   "info [video file]",
	Short: "Display information about a video file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		videoPath := args[0]

		stat, err := os.Stat(videoPath)
		if os.IsNotExist(err) {
			return fmt.Errorf("video file does not exist: %s", videoPath)
		} else if err != nil {
			return fmt.Errorf("failed to get file size: %w", err)
		}

		info, err := probeSource(cmd.Context(), videoPath)
		if err != nil {
			return fmt.Errorf("failed to get video information: %w", err)
		}

		color.Green("Video Information: %s", videoPath)
		fmt.Println("")

		seconds := info.Duration.Seconds()
		rows := [][]string{
			{"Size", HumanizeBytes(stat.Size())},
			{"Container", info.Format},
			{"Codec", info.Codec},
			{"Dimensions", fmt.Sprintf("%dx%d px", info.Width, info.Height)},
			{"Duration", fmt.Sprintf("%s (%.2f seconds)", progress.FormatTimestamp(info.Duration), seconds)},
			{"FPS", fmt.Sprintf("%.2f", info.FPS)},
		}
		if info.TotalFrames > 0 {
			rows = append(rows, []string{"Frames", fmt.Sprintf("%d", info.TotalFrames)})
		}
		fmt.Println(renderTable([]string{"Property", "Value"}, rows))

		if info.Width > 0 && info.Height > 0 {
			fmt.Println("\nEstimated GIF sizes before optimization (rough approximation):")
			estimates := make([][]string, 0, 4)
			for _, fps := range []int{5, 10, 15, 20} {
				estimates = append(estimates, []string{
					fmt.Sprintf("%d", fps),
					"~" + HumanizeBytes(EstimateGIFSize(info.Width, info.Height, fps, seconds)),
				})
			}
			fmt.Println(renderTable([]string{"FPS", "Size"}, estimates, 0, 1))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
