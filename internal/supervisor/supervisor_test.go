//go:build unix

package supervisor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tool.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

type collector struct {
	mu   sync.Mutex
	data []byte
	seen chan struct{}
	once sync.Once
	want string
}

func newCollector(want string) *collector {
	return &collector{seen: make(chan struct{}), want: want}
}

func (c *collector) onChunk(p []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = append(c.data, p...)
	if c.want != "" && strings.Contains(string(c.data), c.want) {
		c.once.Do(func() { close(c.seen) })
	}
}

func (c *collector) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.data)
}

func assertReaped(t *testing.T, pid int) {
	t.Helper()
	require.NotZero(t, pid)
	err := unix.Kill(pid, 0)
	assert.True(t, errors.Is(err, unix.ESRCH), "process %d still exists: %v", pid, err)
}

func TestRun_Completed(t *testing.T) {
	script := writeScript(t, `echo "frame= 1 time=00:00:01.00" >&2; echo "done" >&2; exit 0`)
	c := newCollector("")

	var s Supervisor
	res := s.Run(context.Background(), []string{script}, c.onChunk)

	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, 0, res.ExitCode)
	assert.NoError(t, res.Err)
	assert.Contains(t, c.String(), "time=00:00:01.00")
	assert.Contains(t, res.StderrTail, "done")
	assertReaped(t, res.PID)
}

func TestRun_FailedKeepsStderrTail(t *testing.T) {
	script := writeScript(t, `i=0; while [ $i -lt 200 ]; do echo "noise line $i" >&2; i=$((i+1)); done; echo "fatal: bad codec" >&2; exit 3`)

	s := Supervisor{TailBytes: 64}
	res := s.Run(context.Background(), []string{script}, nil)

	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, 3, res.ExitCode)
	assert.LessOrEqual(t, len(res.StderrTail), 64)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(res.StderrTail), "fatal: bad codec"), res.StderrTail)
	assertReaped(t, res.PID)
}

func TestRun_KilledBySignalKeepsCause(t *testing.T) {
	script := writeScript(t, `kill -SEGV $$`)

	var s Supervisor
	res := s.Run(context.Background(), []string{script}, nil)

	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, -1, res.ExitCode)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "segmentation fault")

	plain := writeScript(t, `exit 2`)
	res = s.Run(context.Background(), []string{plain}, nil)
	assert.Equal(t, 2, res.ExitCode)
	assert.NoError(t, res.Err)
}

func TestRun_ArgumentsAreNotShellInterpreted(t *testing.T) {
	script := writeScript(t, `for a in "$@"; do echo "arg:$a" >&2; done`)
	c := newCollector("")
	weird := "name; echo pwned $(id) `ls` > /tmp/x"

	var s Supervisor
	res := s.Run(context.Background(), []string{script, weird, "two words"}, c.onChunk)

	require.Equal(t, StatusCompleted, res.Status)
	assert.Contains(t, c.String(), "arg:"+weird+"\n")
	assert.Contains(t, c.String(), "arg:two words\n")
	assert.NotContains(t, c.String(), "pwned uid")
}

func TestRun_StreamsThenCancels(t *testing.T) {
	script := writeScript(t, `echo "ready" >&2; sleep 30`)
	c := newCollector("ready")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Result, 1)
	s := Supervisor{Grace: 2 * time.Second}
	go func() { done <- s.Run(ctx, []string{script}, c.onChunk) }()

	select {
	case <-c.seen:
	case <-time.After(5 * time.Second):
		t.Fatal("stderr was not streamed before exit")
	}
	cancel()

	select {
	case res := <-done:
		assert.Equal(t, StatusCancelled, res.Status)
		assertReaped(t, res.PID)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRun_KillsAfterGrace(t *testing.T) {
	script := writeScript(t, `trap '' TERM; echo "ready" >&2; while true; do sleep 0.1; done`)
	c := newCollector("ready")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Result, 1)
	s := Supervisor{Grace: 200 * time.Millisecond}
	go func() { done <- s.Run(ctx, []string{script}, c.onChunk) }()

	<-c.seen
	started := time.Now()
	cancel()

	select {
	case res := <-done:
		assert.Equal(t, StatusCancelled, res.Status)
		assert.GreaterOrEqual(t, time.Since(started), 200*time.Millisecond)
		assertReaped(t, res.PID)
	case <-time.After(5 * time.Second):
		t.Fatal("process ignoring SIGTERM was not killed")
	}
}

func TestRun_AlreadyCancelledDoesNotStart(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "started")
	script := writeScript(t, "touch "+marker)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var s Supervisor
	res := s.Run(ctx, []string{script}, nil)
	assert.Equal(t, StatusCancelled, res.Status)
	assert.NoFileExists(t, marker)
}

func TestRun_MissingBinary(t *testing.T) {
	var s Supervisor
	res := s.Run(context.Background(), []string{filepath.Join(t.TempDir(), "nope")}, nil)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Error(t, res.Err)

	res = s.Run(context.Background(), nil, nil)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Error(t, res.Err)
}

func TestTailBuffer(t *testing.T) {
	tb := newTailBuffer(8)
	tb.Write([]byte("hello"))
	assert.Equal(t, "hello", tb.String())
	tb.Write([]byte(" world"))
	assert.Equal(t, "lo world", tb.String())
	tb.Write([]byte("0123456789abc"))
	assert.Equal(t, "56789abc", tb.String())
}
