package conversion

import (
	"errors"
	"fmt"
)

// Outcome is the terminal result of a run: exactly one of Succeeded, Failed
// or Cancelled.
type Outcome interface {
	isOutcome()
	String() string
}

// Succeeded means the destination holds the finished GIF. IntermediateSize
// is the transcoder output before optimization.
type Succeeded struct {
	OutputPath       string
	OutputSize       int64
	IntermediateSize int64
}

// Reduction returns how much smaller the optimized GIF is than the
// transcoder output, in percent.
func (s Succeeded) Reduction() float64 {
	return Reduction(s.IntermediateSize, s.OutputSize)
}

// Reduction returns the percentage by which after is smaller than before.
func Reduction(before, after int64) float64 {
	if before <= 0 {
		return 0
	}
	return float64(before-after) / float64(before) * 100
}

// Failed means the run stopped at Stage because of Err. The destination was
// not touched.
type Failed struct {
	Stage Stage
	Err   error
}

// Cancelled means the caller cancelled the run while it was in Stage.
type Cancelled struct {
	Stage Stage
}

func (Succeeded) isOutcome() {}
func (Failed) isOutcome()    {}
func (Cancelled) isOutcome() {}

func (s Succeeded) String() string {
	return fmt.Sprintf("succeeded: %s (%d bytes)", s.OutputPath, s.OutputSize)
}

func (f Failed) String() string {
	return fmt.Sprintf("failed during %s: %s", f.Stage, f.Diagnostic())
}

func (c Cancelled) String() string {
	return fmt.Sprintf("cancelled during %s", c.Stage)
}

// Diagnostic returns text that tells bad input, a missing tool and a crashed
// tool apart without reading the logs.
func (f Failed) Diagnostic() string {
	if f.Err == nil {
		return "unknown error"
	}
	var procErr *ProcessError
	if errors.As(f.Err, &procErr) && procErr.Diagnostic != "" {
		return fmt.Sprintf("%s\n%s", procErr.Error(), procErr.Diagnostic)
	}
	return f.Err.Error()
}
