package command

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Akashdeep-Patra/gif-pipeline/internal/conversion"
)

func baseRequest() conversion.Request {
	return conversion.Request{
		Source:      "/videos/clip.mp4",
		Start:       5 * time.Second,
		Duration:    3 * time.Second,
		FPS:         15,
		Width:       conversion.Pixels(320),
		Height:      conversion.Auto,
		Quality:     conversion.QualityMedium,
		Destination: "/out/clip.gif",
	}
}

func flagValue(args []string, flag string) (string, bool) {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1], true
		}
	}
	return "", false
}

func TestTranscode_Scenario(t *testing.T) {
	args, err := Transcode(baseRequest(), "/scratch/run-1/raw.gif", Options{Threads: 4})
	require.NoError(t, err)

	ss, ok := flagValue(args, "-ss")
	require.True(t, ok)
	assert.Equal(t, "5.000", ss)

	dur, ok := flagValue(args, "-t")
	require.True(t, ok)
	assert.Equal(t, "3.000", dur)

	input, _ := flagValue(args, "-i")
	assert.Equal(t, "/videos/clip.mp4", input)

	threads, _ := flagValue(args, "-threads")
	assert.Equal(t, "4", threads)

	filter, ok := flagValue(args, "-filter_complex")
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(filter, "fps=15,scale=320:-1:flags=lanczos,split"), filter)
	assert.Contains(t, filter, "palettegen")
	assert.Contains(t, filter, "paletteuse")

	assert.Equal(t, "/scratch/run-1/raw.gif", args[len(args)-1])
	assert.Less(t, indexOf(args, "-ss"), indexOf(args, "-i"), "seek must precede the input")
}

func TestTranscode_ScaleVariants(t *testing.T) {
	tests := []struct {
		name   string
		width  conversion.Dimension
		height conversion.Dimension
		want   string
	}{
		{"height auto", conversion.Pixels(640), conversion.Auto, "scale=640:-1:flags=lanczos"},
		{"width auto", conversion.Auto, conversion.Pixels(240), "scale=-1:240:flags=lanczos"},
		{"both fixed", conversion.Pixels(640), conversion.Pixels(360), "scale=640:360:flags=lanczos"},
		{"both auto", conversion.Auto, conversion.Auto, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := baseRequest()
			req.Width, req.Height = tt.width, tt.height
			args, err := Transcode(req, "/tmp/raw.gif", Options{})
			require.NoError(t, err)
			filter, _ := flagValue(args, "-filter_complex")
			if tt.want == "" {
				assert.NotContains(t, filter, "scale=")
			} else {
				assert.Contains(t, filter, tt.want)
			}
		})
	}
}

func TestTranscode_ZeroStartOmitsSeek(t *testing.T) {
	req := baseRequest()
	req.Start = 0
	args, err := Transcode(req, "/tmp/raw.gif", Options{})
	require.NoError(t, err)
	assert.Equal(t, -1, indexOf(args, "-ss"))
	assert.Equal(t, -1, indexOf(args, "-threads"))
}

func TestTranscode_IsDeterministic(t *testing.T) {
	a, err := Transcode(baseRequest(), "/tmp/raw.gif", Options{Threads: 2})
	require.NoError(t, err)
	b, err := Transcode(baseRequest(), "/tmp/raw.gif", Options{Threads: 2})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestTranscode_FilenamesStayLiteral(t *testing.T) {
	req := baseRequest()
	req.Source = "/videos/my clip; rm -rf ~ $(whoami).mp4"
	args, err := Transcode(req, "-raw.gif", Options{})
	require.NoError(t, err)

	input, _ := flagValue(args, "-i")
	assert.Equal(t, req.Source, input, "source is one argument, never split or quoted")
	assert.Equal(t, "./-raw.gif", args[len(args)-1])
}

func TestTranscode_RejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *conversion.Request)
		field  string
	}{
		{"fps zero", func(r *conversion.Request) { r.FPS = 0 }, "fps"},
		{"fps too high", func(r *conversion.Request) { r.FPS = 120 }, "fps"},
		{"negative width", func(r *conversion.Request) { r.Width = -2 }, "width"},
		{"negative height", func(r *conversion.Request) { r.Height = -2 }, "height"},
		{"zero duration", func(r *conversion.Request) { r.Duration = 0 }, "duration"},
		{"negative start", func(r *conversion.Request) { r.Start = -time.Second }, "start"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := baseRequest()
			tt.mutate(&req)
			_, err := Transcode(req, "/tmp/raw.gif", Options{})
			var buildErr *BuildError
			require.True(t, errors.As(err, &buildErr))
			assert.Equal(t, tt.field, buildErr.Field)
		})
	}
}

func TestOptimize(t *testing.T) {
	args, err := Optimize("/scratch/raw.gif", "/scratch/optimized.gif", conversion.QualityMedium)
	require.NoError(t, err)
	assert.Equal(t, []string{"-O3", "--colors", "256", "--lossy=80", "-o", "/scratch/optimized.gif", "/scratch/raw.gif"}, args)

	lossless, err := Optimize("/a.gif", "/b.gif", 100)
	require.NoError(t, err)
	for _, a := range lossless {
		assert.False(t, strings.HasPrefix(a, "--lossy"))
	}

	_, err = Optimize("/a.gif", "/b.gif", 0)
	var buildErr *BuildError
	require.True(t, errors.As(err, &buildErr))
	assert.Equal(t, "quality", buildErr.Field)
}

func TestOptimize_LossinessFollowsQuality(t *testing.T) {
	lossy := func(q conversion.Quality) string {
		args, err := Optimize("/a.gif", "/b.gif", q)
		require.NoError(t, err)
		for _, a := range args {
			if strings.HasPrefix(a, "--lossy=") {
				return a
			}
		}
		return "--lossy=0"
	}
	assert.Equal(t, "--lossy=140", lossy(conversion.QualityLow))
	assert.Equal(t, "--lossy=80", lossy(conversion.QualityMedium))
	assert.Equal(t, "--lossy=20", lossy(conversion.QualityHigh))
}

func indexOf(args []string, flag string) int {
	for i, a := range args {
		if a == flag {
			return i
		}
	}
	return -1
}
