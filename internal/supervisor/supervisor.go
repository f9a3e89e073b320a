// Package supervisor runs one external tool at a time: it streams the tool's
// stderr to a callback, keeps a bounded tail for diagnostics, and stops the
// process cooperatively when the context is cancelled.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultGrace     = 5 * time.Second
	DefaultTailBytes = 8 * 1024
	// waitDelay bounds how long Wait blocks on stderr after the process is
	// gone, e.g. when an orphaned grandchild still holds the pipe.
	waitDelay = 2 * time.Second
)

// Status is the terminal state of a supervised process.
type Status int

const (
	StatusCompleted Status = iota
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Result describes how a process ended.
type Result struct {
	Status   Status
	ExitCode int
	// StderrTail holds the last TailBytes of stderr.
	StderrTail string
	// Err is set when the process could not be started or waited on, or
	// was killed by a signal.
	Err     error
	PID     int
	Elapsed time.Duration
}

// Supervisor launches processes without a shell. The zero value is usable.
type Supervisor struct {
	// Grace is how long a cancelled process gets to exit after the polite
	// termination request before it is killed.
	Grace     time.Duration
	TailBytes int
	Log       logrus.FieldLogger
}

// Run starts argv[0] with argv[1:] as literal arguments and blocks until the
// process has exited and been reaped. Every stderr chunk is passed to onChunk
// as it arrives; onChunk must not retain the slice. Cancelling ctx stops the
// process and yields StatusCancelled.
func (s *Supervisor) Run(ctx context.Context, argv []string, onChunk func([]byte)) Result {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return Result{Status: StatusFailed, ExitCode: -1, Err: errors.New("empty command")}
	}
	if ctx.Err() != nil {
		return Result{Status: StatusCancelled, ExitCode: -1}
	}

	log := s.logger().WithField("tool", argv[0])
	tail := newTailBuffer(s.tailBytes())

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stderr = &chunkWriter{tail: tail, onChunk: onChunk}
	cmd.WaitDelay = waitDelay
	configure(cmd)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		log.WithError(err).Error("Failed to start process")
		return Result{Status: StatusFailed, ExitCode: -1, Err: fmt.Errorf("start %s: %w", argv[0], err)}
	}
	pid := cmd.Process.Pid
	log = log.WithField("pid", pid)
	log.Debugf("Started: %s", strings.Join(argv, " "))

	waitCh := make(chan error, 1)
	go func() {
		waitCh <- cmd.Wait()
	}()

	var waitErr error
	cancelled := false
	select {
	case waitErr = <-waitCh:
	case <-ctx.Done():
		cancelled = true
		waitErr = s.stop(cmd, waitCh, log)
	}

	result := Result{
		ExitCode:   exitCode(cmd),
		StderrTail: tail.String(),
		PID:        pid,
		Elapsed:    time.Since(start),
	}

	switch {
	case cancelled:
		result.Status = StatusCancelled
		log.Infof("Process cancelled after %.1fs", result.Elapsed.Seconds())
	case cmd.ProcessState != nil && cmd.ProcessState.Success():
		result.Status = StatusCompleted
		if waitErr != nil && !errors.Is(waitErr, exec.ErrWaitDelay) {
			result.Err = waitErr
		}
		log.Debugf("Process completed in %.1fs", result.Elapsed.Seconds())
	default:
		result.Status = StatusFailed
		// A plain non-zero exit is fully described by ExitCode; keep the
		// error for signals and wait failures.
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) || result.ExitCode < 0 {
			result.Err = waitErr
		}
		log.WithField("exit_code", result.ExitCode).Warn("Process exited with failure")
	}
	return result
}

// stop asks the process group to terminate, waits out the grace period and
// then kills it. It always returns after the process has been reaped.
func (s *Supervisor) stop(cmd *exec.Cmd, waitCh <-chan error, log logrus.FieldLogger) error {
	log.Debug("Cancellation requested, terminating process")
	if err := terminate(cmd.Process); err != nil {
		log.WithError(err).Debug("Graceful termination unavailable, killing")
		_ = kill(cmd.Process)
		return <-waitCh
	}

	timer := time.NewTimer(s.grace())
	defer timer.Stop()
	select {
	case err := <-waitCh:
		return err
	case <-timer.C:
		log.Warnf("Process did not exit within %s, killing", s.grace())
		_ = kill(cmd.Process)
		return <-waitCh
	}
}

func (s *Supervisor) grace() time.Duration {
	if s.Grace > 0 {
		return s.Grace
	}
	return DefaultGrace
}

func (s *Supervisor) tailBytes() int {
	if s.TailBytes > 0 {
		return s.TailBytes
	}
	return DefaultTailBytes
}

func (s *Supervisor) logger() logrus.FieldLogger {
	if s.Log != nil {
		return s.Log
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func exitCode(cmd *exec.Cmd) int {
	if cmd.ProcessState == nil {
		return -1
	}
	return cmd.ProcessState.ExitCode()
}

// chunkWriter receives stderr from the exec copy goroutine.
type chunkWriter struct {
	tail    *tailBuffer
	onChunk func([]byte)
}

func (w *chunkWriter) Write(p []byte) (int, error) {
	w.tail.Write(p)
	if w.onChunk != nil {
		w.onChunk(p)
	}
	return len(p), nil
}

// tailBuffer keeps only the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (t *tailBuffer) Write(p []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(p) >= t.limit {
		t.buf = append(t.buf[:0], p[len(p)-t.limit:]...)
		return
	}
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.ToValidUTF8(string(t.buf), "")
}
