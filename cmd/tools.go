// cmd/tools.go
package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Akashdeep-Patra/gif-pipeline/internal/pipeline"
)

var refreshTools bool

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Show the external tools gif-pipeline uses",
	RunE: func(cmd *cobra.Command, args []string) error {
		locator := getLocator()
		if refreshTools {
			if _, err := locator.Refresh(cmd.Context()); err != nil {
				logger.WithError(err).Debug("Refresh found missing tools")
			}
		}

		missing := false
		rows := make([][]string, 0, 3)
		for _, st := range locator.Status(cmd.Context()) {
			status := color.GreenString("ok")
			detail := st.Path
			if !st.Available {
				if st.Tool.Optional {
					status = color.YellowString("optional")
				} else {
					status = color.RedString("missing")
					missing = true
				}
				detail = st.Detail
			}
			rows = append(rows, []string{st.Tool.Name, st.Tool.Role, status, detail, st.Version})
		}
		fmt.Println(renderTable([]string{"Tool", "Role", "Status", "Path", "Version"}, rows))

		if missing {
			for _, st := range locator.Status(cmd.Context()) {
				if !st.Available && !st.Tool.Optional {
					fmt.Println()
					fmt.Println(st.Tool.Hint)
				}
			}
			return fmt.Errorf("required tools are missing")
		}
		return nil
	},
}

var toolsCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove working files left behind by interrupted conversions",
	RunE: func(cmd *cobra.Command, args []string) error {
		removed, err := pipeline.SweepScratch(cfg.Pipeline.ScratchDir, logger)
		if err != nil {
			return err
		}
		color.Green("Removed %d stale run directories from %s", removed, cfg.Pipeline.ScratchDir)
		return nil
	},
}

func init() {
	toolsCmd.Flags().BoolVar(&refreshTools, "refresh", false, "Search for tools again instead of using cached results")
	toolsCmd.AddCommand(toolsCleanCmd)
	rootCmd.AddCommand(toolsCmd)
}
