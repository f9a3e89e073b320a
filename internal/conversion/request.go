// Package conversion holds the data model shared by the conversion pipeline:
// requests, stages, progress updates, outcomes and the error taxonomy.
package conversion

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// FPS bounds accepted by the pipeline.
const (
	MinFPS = 1
	MaxFPS = 60
)

// Dimension is an output width or height. The zero value means "auto": the
// side is derived from the other one so the source aspect ratio is kept.
type Dimension int

// Auto keeps the aspect ratio on this axis.
const Auto Dimension = 0

// Pixels returns a fixed-size dimension.
func Pixels(n int) Dimension {
	return Dimension(n)
}

// IsAuto reports whether the dimension is derived from the other axis.
func (d Dimension) IsAuto() bool {
	return d == Auto
}

func (d Dimension) String() string {
	if d.IsAuto() {
		return "auto"
	}
	return strconv.Itoa(int(d))
}

// ParseDimension accepts "auto", an empty string or a pixel count.
func ParseDimension(value string) (Dimension, error) {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" || value == "auto" {
		return Auto, nil
	}
	n, err := strconv.Atoi(strings.TrimSuffix(value, "px"))
	if err != nil || n <= 0 {
		return Auto, fmt.Errorf("invalid dimension %q: want a positive pixel count or \"auto\"", value)
	}
	return Pixels(n), nil
}

// Request describes one video to GIF conversion. It is treated as immutable
// once submitted.
type Request struct {
	Source      string
	Start       time.Duration
	Duration    time.Duration
	FPS         int
	Width       Dimension
	Height      Dimension
	Quality     Quality
	Destination string

	// SkipOptimize publishes the transcoder output directly, without the
	// lossy optimization pass.
	SkipOptimize bool
}

// Validate checks every field before any process is launched.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Source) == "" {
		return invalid("source", "source path is required")
	}
	info, err := os.Stat(r.Source)
	if err != nil {
		if os.IsNotExist(err) {
			return invalid("source", fmt.Sprintf("input file does not exist: %s", r.Source))
		}
		return invalid("source", fmt.Sprintf("cannot read input file: %v", err))
	}
	if !info.Mode().IsRegular() {
		return invalid("source", fmt.Sprintf("input is not a regular file: %s", r.Source))
	}

	if strings.TrimSpace(r.Destination) == "" {
		return invalid("destination", "destination path is required")
	}
	if sameFile(r.Source, r.Destination) {
		return invalid("destination", "destination must differ from the source")
	}
	dir := filepath.Dir(r.Destination)
	if dirInfo, err := os.Stat(dir); err != nil || !dirInfo.IsDir() {
		return invalid("destination", fmt.Sprintf("output directory does not exist: %s", dir))
	}
	if destInfo, err := os.Stat(r.Destination); err == nil && destInfo.IsDir() {
		return invalid("destination", fmt.Sprintf("destination is a directory: %s", r.Destination))
	}

	if r.Start < 0 {
		return invalid("start", "start time must not be negative")
	}
	if r.Duration <= 0 {
		return invalid("duration", "clip duration must be greater than zero")
	}
	if r.FPS < MinFPS || r.FPS > MaxFPS {
		return invalid("fps", fmt.Sprintf("fps must be between %d and %d, got %d", MinFPS, MaxFPS, r.FPS))
	}
	if r.Width < 0 {
		return invalid("width", fmt.Sprintf("width must be positive or auto, got %d", r.Width))
	}
	if r.Height < 0 {
		return invalid("height", fmt.Sprintf("height must be positive or auto, got %d", r.Height))
	}
	if err := r.Quality.Validate(); err != nil {
		return invalid("quality", err.Error())
	}
	return nil
}

func sameFile(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}

func invalid(field, reason string) error {
	return &RequestError{Field: field, Reason: reason}
}
