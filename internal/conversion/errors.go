package conversion

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrToolNotFound   = errors.New("tool not found")
	ErrToolUnusable   = errors.New("tool unusable")
	ErrProcessFailed  = errors.New("process failed")
	ErrIO             = errors.New("i/o error")
)

// RequestError reports a request field that failed validation.
type RequestError struct {
	Field  string
	Reason string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("invalid request: %s: %s", e.Field, e.Reason)
}

func (e *RequestError) Unwrap() error { return ErrInvalidRequest }

// ToolError reports an external tool that could not be found or verified.
type ToolError struct {
	Tool   string
	Reason string
	// Unusable is set when a candidate exists but failed verification.
	Unusable bool
	Hint     string
}

func (e *ToolError) Error() string {
	var msg string
	if e.Unusable {
		msg = fmt.Sprintf("%s found but not usable: %s", e.Tool, e.Reason)
	} else {
		msg = fmt.Sprintf("%s not found", e.Tool)
		if e.Reason != "" {
			msg += ": " + e.Reason
		}
	}
	if e.Hint != "" {
		msg += "\n" + e.Hint
	}
	return msg
}

func (e *ToolError) Unwrap() error {
	if e.Unusable {
		return ErrToolUnusable
	}
	return ErrToolNotFound
}

// ProcessError reports an external tool that exited non-zero. Diagnostic
// holds the tail of its stderr.
type ProcessError struct {
	Stage      Stage
	Tool       string
	ExitCode   int
	Diagnostic string
	Err        error
}

func (e *ProcessError) Error() string {
	msg := fmt.Sprintf("%s failed during %s", e.Tool, e.Stage)
	if e.ExitCode != 0 {
		msg += fmt.Sprintf(" (exit %d)", e.ExitCode)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *ProcessError) Is(target error) bool { return target == ErrProcessFailed }

func (e *ProcessError) Unwrap() error { return e.Err }

// IOError reports a scratch directory or publish failure.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Is(target error) bool { return target == ErrIO }

func (e *IOError) Unwrap() error { return e.Err }
