// cmd/version.go
package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "1.0.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version information",
	Run: func(cmd *cobra.Command, args []string) {
		color.Green("GIF Pipeline v%s", Version)
		fmt.Println("A command-line tool to convert video clips to optimized GIFs")
		fmt.Println("")

		for _, st := range getLocator().Status(cmd.Context()) {
			switch {
			case st.Available:
				color.Green("✅ %s", firstLine(st.Version))
			case st.Tool.Optional:
				color.Yellow("⚠️ %s not found (optional)", st.Tool.Name)
			default:
				color.Red("❌ %s not found!", st.Tool.Name)
				fmt.Println(st.Tool.Hint)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
