// cmd/progress.go
package cmd

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/vbauerster/mpb/v7"
	"github.com/vbauerster/mpb/v7/decor"

	"github.com/Akashdeep-Patra/gif-pipeline/internal/conversion"
)

const barTotal = 1000

// progressDisplay renders run progress as an mpb bar on a terminal, or as
// occasional log lines otherwise. Update and Finish are called from a single
// subscriber goroutine.
type progressDisplay struct {
	progress *mpb.Progress
	bar      *mpb.Bar

	mu    sync.Mutex
	stage conversion.Stage

	quiet       bool
	lastStage   conversion.Stage
	lastPercent int
	done        chan struct{}
}

func newProgressDisplay(enabled, useBars bool) *progressDisplay {
	d := &progressDisplay{done: make(chan struct{}), lastPercent: -1, quiet: !enabled}
	if !enabled || !useBars {
		return d
	}

	d.progress = mpb.New(
		mpb.WithWidth(60),
		mpb.WithOutput(os.Stderr),
		mpb.WithRefreshRate(100*time.Millisecond),
	)
	d.bar = d.progress.AddBar(barTotal,
		mpb.PrependDecorators(
			decor.Any(func(decor.Statistics) string {
				return stageLabel(d.currentStage())
			}, decor.WC{W: 14, C: decor.DidentRight}),
		),
		mpb.AppendDecorators(
			decor.Percentage(decor.WC{W: 5}),
			decor.Name(" • "),
			decor.Elapsed(decor.ET_STYLE_GO),
		),
	)
	return d
}

func (d *progressDisplay) currentStage() conversion.Stage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stage
}

// Update shows one progress update.
func (d *progressDisplay) Update(u conversion.ProgressUpdate) {
	d.mu.Lock()
	d.stage = u.Stage
	d.mu.Unlock()

	if d.bar != nil {
		d.bar.SetCurrent(int64(u.Overall * barTotal))
		return
	}
	if d.quiet {
		return
	}

	percent := int(u.Overall * 100)
	if u.Stage == d.lastStage && percent/10 == d.lastPercent/10 {
		return
	}
	d.lastStage, d.lastPercent = u.Stage, percent
	fmt.Fprintf(os.Stderr, "%s %3d%%\n", stageLabel(u.Stage), percent)
}

// Finish completes or aborts the bar.
func (d *progressDisplay) Finish(outcome conversion.Outcome) {
	if d.bar != nil {
		if _, ok := outcome.(conversion.Succeeded); ok {
			d.bar.SetCurrent(barTotal)
		} else {
			d.bar.Abort(false)
		}
	}
	close(d.done)
}

// Wait blocks until the outcome was shown and the bar is flushed.
func (d *progressDisplay) Wait() {
	<-d.done
	if d.progress != nil {
		d.progress.Wait()
	}
}

func stageLabel(s conversion.Stage) string {
	switch s {
	case conversion.StageValidating:
		return "Checking:"
	case conversion.StageTranscoding:
		return "Converting:"
	case conversion.StageOptimizing:
		return "Optimizing:"
	case conversion.StagePublishing, conversion.StageSucceeded:
		return "Saving:"
	}
	return "Starting:"
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
