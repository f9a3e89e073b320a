// Package command builds the argument vectors for the transcoder (ffmpeg)
// and the optimizer (gifsicle). Everything here is pure: the same inputs
// always produce the same arguments.
package command

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Akashdeep-Patra/gif-pipeline/internal/conversion"
)

// paletteFilter generates a per-clip palette and applies it in a single pass.
const paletteFilter = "split[s0][s1];[s0]palettegen=max_colors=256:stats_mode=diff[p];" +
	"[s1][p]paletteuse=dither=sierra2_4a:diff_mode=rectangle"

// BuildError reports a request that cannot be turned into a command line.
type BuildError struct {
	Field  string
	Reason string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("cannot build command: %s: %s", e.Field, e.Reason)
}

// Options carries settings that are not part of a request.
type Options struct {
	// Threads is passed to the transcoder; zero lets it decide.
	Threads int
}

// Transcode returns the transcoder arguments (without the binary) that cut
// the requested clip from the source and write an unoptimized GIF to
// intermediate.
func Transcode(req conversion.Request, intermediate string, opts Options) ([]string, error) {
	if req.FPS < conversion.MinFPS || req.FPS > conversion.MaxFPS {
		return nil, &BuildError{Field: "fps", Reason: fmt.Sprintf("%d outside %d-%d", req.FPS, conversion.MinFPS, conversion.MaxFPS)}
	}
	if req.Width < 0 {
		return nil, &BuildError{Field: "width", Reason: fmt.Sprintf("derived width %d is not positive", req.Width)}
	}
	if req.Height < 0 {
		return nil, &BuildError{Field: "height", Reason: fmt.Sprintf("derived height %d is not positive", req.Height)}
	}
	if req.Start < 0 {
		return nil, &BuildError{Field: "start", Reason: "negative start time"}
	}
	if req.Duration <= 0 {
		return nil, &BuildError{Field: "duration", Reason: "clip duration must be positive"}
	}
	if strings.TrimSpace(req.Source) == "" || strings.TrimSpace(intermediate) == "" {
		return nil, &BuildError{Field: "path", Reason: "source and output paths are required"}
	}

	args := make([]string, 0, 32)

	// --- Preamble ---
	args = append(args, "-hide_banner", "-nostdin", "-y", "-loglevel", "info", "-stats")
	if opts.Threads > 0 {
		args = append(args, "-threads", strconv.Itoa(opts.Threads))
	}

	// --- Input (seek before -i for fast, keyframe-accurate cuts) ---
	if req.Start > 0 {
		args = append(args, "-ss", seconds(req.Start))
	}
	args = append(args, "-t", seconds(req.Duration))
	args = append(args, "-i", safePath(req.Source))

	// --- Filter chain ---
	args = append(args, "-filter_complex", filterChain(req))

	// --- Output ---
	args = append(args, "-loop", "0", "-f", "gif", safePath(intermediate))
	return args, nil
}

// Optimize returns the optimizer arguments (without the binary) that
// compress intermediate into destination.
func Optimize(intermediate, destination string, quality conversion.Quality) ([]string, error) {
	if err := quality.Validate(); err != nil {
		return nil, &BuildError{Field: "quality", Reason: err.Error()}
	}
	if strings.TrimSpace(intermediate) == "" || strings.TrimSpace(destination) == "" {
		return nil, &BuildError{Field: "path", Reason: "input and output paths are required"}
	}

	args := []string{"-O3", "--colors", "256"}
	if lossy := quality.Lossiness(); lossy > 0 {
		args = append(args, "--lossy="+strconv.Itoa(lossy))
	}
	args = append(args, "-o", safePath(destination), safePath(intermediate))
	return args, nil
}

func filterChain(req conversion.Request) string {
	filters := []string{fmt.Sprintf("fps=%d", req.FPS)}
	if scale := scaleFilter(req.Width, req.Height); scale != "" {
		filters = append(filters, scale)
	}
	filters = append(filters, paletteFilter)
	return strings.Join(filters, ",")
}

// scaleFilter leaves the auto side at -1 so the aspect ratio is preserved.
// With both sides auto no scaling happens at all.
func scaleFilter(width, height conversion.Dimension) string {
	if width.IsAuto() && height.IsAuto() {
		return ""
	}
	w, h := "-1", "-1"
	if !width.IsAuto() {
		w = strconv.Itoa(int(width))
	}
	if !height.IsAuto() {
		h = strconv.Itoa(int(height))
	}
	return fmt.Sprintf("scale=%s:%s:flags=lanczos", w, h)
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

// safePath keeps a file name that starts with "-" from being read as a flag.
func safePath(path string) string {
	if strings.HasPrefix(path, "-") {
		return "./" + path
	}
	return path
}
