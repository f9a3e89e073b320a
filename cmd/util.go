// cmd/util.go
package cmd

import (
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/Akashdeep-Patra/gif-pipeline/internal/pipeline"
	"github.com/Akashdeep-Patra/gif-pipeline/internal/probe"
	"github.com/Akashdeep-Patra/gif-pipeline/internal/supervisor"
	"github.com/Akashdeep-Patra/gif-pipeline/internal/tools"
)

var (
	locatorOnce   sync.Once
	sharedLocator *tools.Locator
)

// getLocator returns the process-wide tool locator so every command shares
// one cache. It must be called after the configuration is loaded.
func getLocator() *tools.Locator {
	locatorOnce.Do(func() {
		sharedLocator = tools.NewLocator(cfg.LocatorConfig(), logger)
	})
	return sharedLocator
}

// newPipeline wires the pipeline from the loaded configuration.
func newPipeline() *pipeline.Pipeline {
	threads := cfg.Pipeline.Threads
	if threads == 0 {
		threads = GetOptimalThreads()
	}
	return pipeline.New(pipeline.Options{
		Locator: getLocator(),
		Runner: &supervisor.Supervisor{
			Grace:     cfg.CancelGrace(),
			TailBytes: cfg.StderrTailBytes(),
			Log:       logger,
		},
		Prober:     probe.FFprobe{},
		ScratchDir: cfg.Pipeline.ScratchDir,
		Threads:    threads,
		Log:        logger,
	})
}

// GetOptimalThreads returns the optimal number of threads to use based on CPU cores
func GetOptimalThreads() int {
	numCPU := runtime.NumCPU()
	if numCPU <= 2 {
		return 1
	} else if numCPU <= 4 {
		return 2
	} else {
		return numCPU - 2 // Leave some cores for other processes
	}
}

// HumanizeBytes converts bytes to a human-readable format (KB, MB, GB)
func HumanizeBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// EstimateGIFSize is a rough size guess: pixels * frames * 3 bytes, with a
// 4x compression factor.
func EstimateGIFSize(width, height, fps int, seconds float64) int64 {
	frames := int(seconds) * fps
	return int64(float64(width*height*frames*3) / 4.0)
}

func renderTable(headers []string, rows [][]string, rightAligned ...int) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(headers))
		for i := range headers {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, len(headers))
	for i := range headers {
		align := text.AlignLeft
		for _, col := range rightAligned {
			if col == i {
				align = text.AlignRight
			}
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
