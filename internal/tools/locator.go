// Package tools finds and verifies the external executables the pipeline
// drives: the transcoder (ffmpeg), the optimizer (gifsicle) and the optional
// prober (ffprobe).
package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Akashdeep-Patra/gif-pipeline/internal/conversion"
)

// DefaultVerifyTimeout bounds each version check.
const DefaultVerifyTimeout = 3 * time.Second

// Tool describes an executable and how to recognise a working copy of it.
type Tool struct {
	Name        string
	Role        string
	VersionArgs []string
	// Signature must appear (case-insensitively) in the version output.
	Signature string
	Hint      string
	Optional  bool
}

var (
	Transcoder = Tool{
		Name:        "ffmpeg",
		Role:        "transcoder",
		VersionArgs: []string{"-version"},
		Signature:   "ffmpeg version",
		Hint: "Install FFmpeg:\n" +
			"- MacOS: brew install ffmpeg\n" +
			"- Ubuntu/Debian: sudo apt install ffmpeg\n" +
			"- Windows: https://ffmpeg.org/download.html",
	}
	Optimizer = Tool{
		Name:        "gifsicle",
		Role:        "optimizer",
		VersionArgs: []string{"--version"},
		Signature:   "gifsicle",
		Hint: "Install gifsicle:\n" +
			"- MacOS: brew install gifsicle\n" +
			"- Ubuntu/Debian: sudo apt install gifsicle\n" +
			"- Windows: https://eternallybored.org/misc/gifsicle/\n" +
			"or convert with --no-optimize",
	}
	Prober = Tool{
		Name:        "ffprobe",
		Role:        "prober",
		VersionArgs: []string{"-version"},
		Signature:   "ffprobe version",
		Hint:        "ffprobe ships with FFmpeg",
		Optional:    true,
	}
)

// Paths holds resolved tool locations. Prober may be empty.
type Paths struct {
	Transcoder string
	Optimizer  string
	Prober     string
}

// Config controls where the locator looks.
type Config struct {
	// Overrides maps a tool name to an explicitly configured path.
	Overrides map[string]string
	// BundleDir holds binaries shipped alongside the application.
	BundleDir  string
	SearchDirs []string
	Timeout    time.Duration
}

// Status reports one tool for display.
type Status struct {
	Tool      Tool
	Path      string
	Version   string
	Available bool
	Detail    string
}

// Locator resolves tool paths once and caches them for the lifetime of the
// process. Cached entries are only replaced by Refresh.
type Locator struct {
	cfg Config
	log logrus.FieldLogger

	mu    sync.RWMutex
	cache map[string]resolved

	standardDirs []string
	lookPath     func(string) (string, error)
	executable   func() (string, error)
}

type resolved struct {
	path    string
	version string
}

// NewLocator returns a locator using cfg. A nil logger discards output.
func NewLocator(cfg Config, log logrus.FieldLogger) *Locator {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultVerifyTimeout
	}
	return &Locator{
		cfg:          cfg,
		log:          log,
		cache:        make(map[string]resolved),
		standardDirs: standardDirs(),
		lookPath:     exec.LookPath,
		executable:   os.Executable,
	}
}

// Locate returns the transcoder and optimizer paths, plus the prober when one
// is available. Successful lookups are cached; failures are not.
func (l *Locator) Locate(ctx context.Context) (Paths, error) {
	transcoder, err := l.Resolve(ctx, Transcoder)
	if err != nil {
		return Paths{}, err
	}
	optimizer, err := l.Resolve(ctx, Optimizer)
	if err != nil {
		return Paths{}, err
	}
	return Paths{
		Transcoder: transcoder,
		Optimizer:  optimizer,
		Prober:     l.probe(ctx),
	}, nil
}

// LocateTranscoder returns only what a conversion without optimization needs.
func (l *Locator) LocateTranscoder(ctx context.Context) (Paths, error) {
	transcoder, err := l.Resolve(ctx, Transcoder)
	if err != nil {
		return Paths{}, err
	}
	return Paths{Transcoder: transcoder, Prober: l.probe(ctx)}, nil
}

// Refresh drops the cache and resolves everything again.
func (l *Locator) Refresh(ctx context.Context) (Paths, error) {
	l.mu.Lock()
	l.cache = make(map[string]resolved)
	l.mu.Unlock()
	return l.Locate(ctx)
}

// Resolve returns the path of a single verified tool.
func (l *Locator) Resolve(ctx context.Context, tool Tool) (string, error) {
	if r, ok := l.cached(tool.Name); ok {
		return r.path, nil
	}
	r, err := l.find(ctx, tool)
	if err != nil {
		return "", err
	}

	l.mu.Lock()
	// A concurrent caller may have won; keep the first answer.
	if existing, ok := l.cache[tool.Name]; ok {
		r = existing
	} else {
		l.cache[tool.Name] = r
	}
	l.mu.Unlock()
	return r.path, nil
}

// Status checks every tool without failing fast, for display.
func (l *Locator) Status(ctx context.Context) []Status {
	all := []Tool{Transcoder, Optimizer, Prober}
	out := make([]Status, 0, len(all))
	for _, tool := range all {
		st := Status{Tool: tool}
		if _, err := l.Resolve(ctx, tool); err != nil {
			st.Detail = err.Error()
			var toolErr *conversion.ToolError
			if errors.As(err, &toolErr) {
				st.Detail = toolErr.Reason
				if st.Detail == "" {
					st.Detail = fmt.Sprintf("binary %q not found", tool.Name)
				}
			}
		} else if r, ok := l.cached(tool.Name); ok {
			st.Available = true
			st.Path = r.path
			st.Version = r.version
		}
		out = append(out, st)
	}
	return out
}

func (l *Locator) cached(name string) (resolved, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.cache[name]
	return r, ok
}

func (l *Locator) probe(ctx context.Context) string {
	path, err := l.Resolve(ctx, Prober)
	if err != nil {
		l.log.WithError(err).Debug("ffprobe unavailable; clip length will not be checked against the source")
		return ""
	}
	return path
}

func (l *Locator) find(ctx context.Context, tool Tool) (resolved, error) {
	log := l.log.WithField("tool", tool.Name)
	var lastReason string
	found := false

	for _, candidate := range l.candidates(tool) {
		info, err := os.Stat(candidate)
		if err != nil || !isExecutable(info) {
			continue
		}
		found = true

		version, err := l.verify(ctx, candidate, tool)
		if err != nil {
			lastReason = fmt.Sprintf("%s: %v", candidate, err)
			log.WithError(err).Debugf("Rejected candidate %s", candidate)
			continue
		}
		log.Debugf("Using %s (%s)", candidate, version)
		return resolved{path: candidate, version: version}, nil
	}

	if found {
		return resolved{}, &conversion.ToolError{Tool: tool.Name, Reason: lastReason, Unusable: true, Hint: tool.Hint}
	}
	return resolved{}, &conversion.ToolError{
		Tool:   tool.Name,
		Reason: "not in configured locations or PATH",
		Hint:   tool.Hint,
	}
}

// candidates lists possible locations in priority order, without duplicates.
func (l *Locator) candidates(tool Tool) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(path string) {
		if path == "" {
			return
		}
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		if !seen[path] {
			seen[path] = true
			out = append(out, path)
		}
	}

	if override := strings.TrimSpace(l.cfg.Overrides[tool.Name]); override != "" {
		if strings.ContainsAny(override, `/\`) {
			add(override)
		} else if path, err := l.lookPath(override); err == nil {
			add(path)
		}
	}

	name := executableName(tool.Name)
	if dir := strings.TrimSpace(l.cfg.BundleDir); dir != "" {
		if platform := binaryNameForPlatform(tool.Name); platform != "" {
			add(filepath.Join(dir, platform))
		}
		add(filepath.Join(dir, name))
	}

	if exe, err := l.executable(); err == nil && exe != "" {
		add(filepath.Join(filepath.Dir(exe), name))
	}

	// ffprobe normally sits next to ffmpeg.
	if tool.Name == Prober.Name {
		if r, ok := l.cached(Transcoder.Name); ok {
			add(filepath.Join(filepath.Dir(r.path), name))
		}
	}

	for _, dir := range l.cfg.SearchDirs {
		add(filepath.Join(dir, name))
	}
	for _, dir := range l.standardDirs {
		add(filepath.Join(dir, name))
	}
	if path, err := l.lookPath(tool.Name); err == nil {
		add(path)
	}
	return out
}

// verify runs the tool's version command and returns the first output line.
func (l *Locator) verify(ctx context.Context, path string, tool Tool) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, tool.VersionArgs...)
	cmd.WaitDelay = 500 * time.Millisecond
	output, err := cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("version check timed out after %s", l.cfg.Timeout)
	}
	if err != nil {
		return "", fmt.Errorf("version check failed: %w", err)
	}

	text := strings.TrimSpace(string(output))
	if !strings.Contains(strings.ToLower(text), strings.ToLower(tool.Signature)) {
		return "", fmt.Errorf("unrecognised version output %q", firstLine(text))
	}
	return firstLine(text), nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}

func isExecutable(info os.FileInfo) bool {
	if info == nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}

func executableName(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}

func standardDirs() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"/opt/homebrew/bin", "/usr/local/bin", "/opt/local/bin", "/usr/bin"}
	case "windows":
		return []string{`C:\ffmpeg\bin`, `C:\Program Files\ffmpeg\bin`, `C:\Program Files\gifsicle`}
	default:
		return []string{"/usr/local/bin", "/usr/bin", "/snap/bin", "/opt/homebrew/bin"}
	}
}

// binaryNameForPlatform returns the bundled file name for tool on the current
// platform, e.g. "ffmpeg-linux-x86_64".
func binaryNameForPlatform(tool string) string {
	switch runtime.GOOS {
	case "windows":
		switch runtime.GOARCH {
		case "amd64":
			return tool + "-win64.exe"
		case "386":
			return tool + "-win32.exe"
		}
	case "darwin":
		switch runtime.GOARCH {
		case "amd64":
			return tool + "-macos-x86_64"
		case "arm64":
			return tool + "-macos-arm64"
		}
	case "linux":
		switch runtime.GOARCH {
		case "amd64":
			return tool + "-linux-x86_64"
		case "386":
			return tool + "-linux-i386"
		case "arm64":
			return tool + "-linux-arm64"
		case "arm":
			return tool + "-linux-armhf"
		}
	}
	return ""
}
