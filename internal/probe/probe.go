// Package probe reads basic video metadata with ffprobe.
package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout bounds a single ffprobe invocation.
const DefaultTimeout = 15 * time.Second

// Info summarises the first video stream of a file.
type Info struct {
	Duration    time.Duration
	Width       int
	Height      int
	FPS         float64
	Codec       string
	Format      string
	Size        int64
	BitRate     int64
	TotalFrames int64
}

type result struct {
	Streams []stream `json:"streams"`
	Format  format   `json:"format"`
}

type stream struct {
	CodecName  string `json:"codec_name"`
	CodecType  string `json:"codec_type"`
	Duration   string `json:"duration"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	RFrameRate string `json:"r_frame_rate"`
	NBFrames   string `json:"nb_frames"`
}

type format struct {
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
	FormatName string `json:"format_name"`
}

// Inspector reads metadata for a media file.
type Inspector interface {
	Inspect(ctx context.Context, binary, path string) (Info, error)
}

// FFprobe runs the ffprobe binary and decodes its JSON output.
type FFprobe struct {
	Timeout time.Duration
}

// Inspect runs binary against path.
func (f FFprobe) Inspect(ctx context.Context, binary, path string) (Info, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return Info{}, errors.New("ffprobe inspect: no ffprobe binary")
	}
	if strings.TrimSpace(path) == "" {
		return Info{}, errors.New("ffprobe inspect: empty path")
	}

	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, binary,
		"-v", "error", "-hide_banner",
		"-show_format", "-show_streams",
		"-of", "json", "--", path)
	cmd.WaitDelay = time.Second
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return Info{}, fmt.Errorf("ffprobe inspect: %w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return Info{}, fmt.Errorf("ffprobe inspect: %w", err)
	}
	return Parse(output)
}

// Parse decodes ffprobe's JSON output.
func Parse(data []byte) (Info, error) {
	var r result
	if err := json.Unmarshal(data, &r); err != nil {
		return Info{}, fmt.Errorf("ffprobe parse: %w", err)
	}

	var video *stream
	for i := range r.Streams {
		if strings.EqualFold(r.Streams[i].CodecType, "video") {
			video = &r.Streams[i]
			break
		}
	}
	if video == nil {
		return Info{}, errors.New("no video stream found in the file")
	}

	seconds := parseFloat(video.Duration)
	if seconds <= 0 {
		seconds = parseFloat(r.Format.Duration)
	}
	if seconds <= 0 {
		return Info{}, errors.New("could not determine video duration")
	}

	info := Info{
		Duration: time.Duration(seconds * float64(time.Second)),
		Width:    video.Width,
		Height:   video.Height,
		FPS:      ParseFrameRate(video.RFrameRate),
		Codec:    video.CodecName,
		Format:   r.Format.FormatName,
		Size:     int64(parseFloat(r.Format.Size)),
		BitRate:  int64(parseFloat(r.Format.BitRate)),
	}
	if frames, err := strconv.ParseInt(strings.TrimSpace(video.NBFrames), 10, 64); err == nil && frames > 0 {
		info.TotalFrames = frames
	} else if info.FPS > 0 {
		info.TotalFrames = int64(math.Round(seconds * info.FPS))
	}
	return info, nil
}

// ParseFrameRate understands both "30000/1001" and "25". Unparseable input
// yields 0.
func ParseFrameRate(value string) float64 {
	value = strings.TrimSpace(value)
	if num, den, ok := strings.Cut(value, "/"); ok {
		n, err1 := strconv.ParseFloat(num, 64)
		d, err2 := strconv.ParseFloat(den, 64)
		if err1 != nil || err2 != nil || d == 0 {
			return 0
		}
		return n / d
	}
	fps, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(fps) || math.IsInf(fps, 0) {
		return 0
	}
	return fps
}

func parseFloat(value string) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(parsed) || parsed < 0 {
		return 0
	}
	return parsed
}
