// Package pipeline turns a conversion request into a finished GIF: it
// validates the request, runs the transcoder and the optimizer in order,
// reports progress and publishes the result with an atomic rename.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Akashdeep-Patra/gif-pipeline/internal/command"
	"github.com/Akashdeep-Patra/gif-pipeline/internal/conversion"
	"github.com/Akashdeep-Patra/gif-pipeline/internal/probe"
	"github.com/Akashdeep-Patra/gif-pipeline/internal/progress"
	"github.com/Akashdeep-Patra/gif-pipeline/internal/supervisor"
	"github.com/Akashdeep-Patra/gif-pipeline/internal/tools"
)

// Overall progress bands.
const (
	transcodeStart = 0.1
	transcodeSpan  = 0.8
	optimizeStart  = transcodeStart + transcodeSpan
	optimizeSpan   = 0.1
)

// ToolLocator resolves the external tools a run needs.
type ToolLocator interface {
	Locate(ctx context.Context) (tools.Paths, error)
	LocateTranscoder(ctx context.Context) (tools.Paths, error)
}

// ProcessRunner runs one external process to completion.
type ProcessRunner interface {
	Run(ctx context.Context, argv []string, onChunk func([]byte)) supervisor.Result
}

// Options configures a Pipeline. Locator and Runner are required.
type Options struct {
	Locator ToolLocator
	Runner  ProcessRunner
	// Prober is optional; without it the clip length is not checked against
	// the source.
	Prober     probe.Inspector
	ScratchDir string
	Threads    int
	Log        logrus.FieldLogger
}

// Pipeline starts conversion runs. Runs share nothing but the tool cache, so
// any number may be in flight at once.
type Pipeline struct {
	locator    ToolLocator
	runner     ProcessRunner
	prober     probe.Inspector
	scratchDir string
	threads    int
	log        logrus.FieldLogger
}

// New returns a pipeline using opts.
func New(opts Options) *Pipeline {
	log := opts.Log
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	scratch := opts.ScratchDir
	if scratch == "" {
		scratch = DefaultScratchDir()
	}
	return &Pipeline{
		locator:    opts.Locator,
		runner:     opts.Runner,
		prober:     opts.Prober,
		scratchDir: scratch,
		threads:    opts.Threads,
		log:        log,
	}
}

// ScratchDir returns the directory that holds per-run working files.
func (p *Pipeline) ScratchDir() string {
	return p.scratchDir
}

// Submit starts a run and returns immediately. Cancelling ctx has the same
// effect as RunHandle.Cancel.
func (p *Pipeline) Submit(ctx context.Context, req conversion.Request) *RunHandle {
	id := uuid.NewString()
	runCtx, cancel := context.WithCancel(ctx)
	log := p.log.WithField("run_id", id)
	h := newRunHandle(id, cancel, log)

	go func() {
		defer cancel()
		r := &run{p: p, h: h, req: req, log: log, started: time.Now()}
		h.finish(r.execute(runCtx))
	}()
	return h
}

// run carries the state of one conversion while it executes.
type run struct {
	p       *Pipeline
	h       *RunHandle
	req     conversion.Request
	log     logrus.FieldLogger
	started time.Time

	paths    tools.Paths
	clip     time.Duration
	scratch  *scratchRun
	artifact string
	rawSize  int64
}

func (r *run) execute(ctx context.Context) conversion.Outcome {
	outcome := r.stages(ctx)
	if r.scratch != nil {
		if err := r.scratch.Remove(); err != nil {
			r.log.WithError(err).Warn("Failed to remove scratch directory")
		}
	}

	switch o := outcome.(type) {
	case conversion.Succeeded:
		r.log.WithField("output", o.OutputPath).Infof("Conversion finished in %.1fs (%d bytes)", time.Since(r.started).Seconds(), o.OutputSize)
	case conversion.Failed:
		r.log.WithField("stage", o.Stage.String()).WithError(o.Err).Error("Conversion failed")
	case conversion.Cancelled:
		r.log.WithField("stage", o.Stage.String()).Info("Conversion cancelled")
	}
	return outcome
}

func (r *run) stages(ctx context.Context) conversion.Outcome {
	if out := r.validate(ctx); out != nil {
		return out
	}
	if out := r.transcode(ctx); out != nil {
		return out
	}
	if !r.req.SkipOptimize {
		if out := r.optimize(ctx); out != nil {
			return out
		}
	}
	return r.publish(ctx)
}

func (r *run) enter(stage conversion.Stage) {
	r.h.transition(stage)
	r.log.WithField("stage", stage.String()).Debug("Entering stage")
}

func (r *run) validate(ctx context.Context) conversion.Outcome {
	r.enter(conversion.StageValidating)
	r.h.emit(conversion.StageValidating, 0, 0)

	if ctx.Err() != nil {
		return conversion.Cancelled{Stage: conversion.StageValidating}
	}
	fail := func(err error) conversion.Outcome {
		return conversion.Failed{Stage: conversion.StageValidating, Err: err}
	}
	if err := r.req.Validate(); err != nil {
		return fail(err)
	}

	var err error
	if r.req.SkipOptimize {
		r.paths, err = r.p.locator.LocateTranscoder(ctx)
	} else {
		r.paths, err = r.p.locator.Locate(ctx)
	}
	if err != nil {
		if ctx.Err() != nil {
			return conversion.Cancelled{Stage: conversion.StageValidating}
		}
		return fail(err)
	}

	r.clip = r.req.Duration
	if r.p.prober != nil && r.paths.Prober != "" {
		info, err := r.p.prober.Inspect(ctx, r.paths.Prober, r.req.Source)
		switch {
		case err != nil:
			r.log.WithError(err).Warn("Could not probe source; using the requested duration for progress")
		case r.req.Start >= info.Duration:
			return fail(&conversion.RequestError{
				Field:  "start",
				Reason: fmt.Sprintf("%s is beyond the end of the source (%s)", progress.FormatTimestamp(r.req.Start), progress.FormatTimestamp(info.Duration)),
			})
		case r.req.Start+r.req.Duration > info.Duration:
			r.clip = info.Duration - r.req.Start
			r.log.Debugf("Clip clamped to %s by source length", r.clip)
		}
	}

	if ctx.Err() != nil {
		return conversion.Cancelled{Stage: conversion.StageValidating}
	}
	r.scratch, err = newScratchRun(r.p.scratchDir, r.h.ID())
	if err != nil {
		return fail(err)
	}
	return nil
}

func (r *run) transcode(ctx context.Context) conversion.Outcome {
	r.enter(conversion.StageTranscoding)
	stage := conversion.StageTranscoding

	args, err := command.Transcode(r.req, r.scratch.Raw(), command.Options{Threads: r.p.threads})
	if err != nil {
		return conversion.Failed{Stage: stage, Err: asRequestError(err)}
	}
	r.h.emit(stage, 0, transcodeStart)

	parser := progress.NewTranscodeParser(r.clip)
	report := func(values []float64) {
		for _, v := range values {
			r.h.emit(stage, v, transcodeStart+transcodeSpan*v)
		}
	}
	argv := append([]string{r.paths.Transcoder}, args...)
	res := r.p.runner.Run(ctx, argv, func(chunk []byte) { report(parser.Feed(chunk)) })

	if out := r.checkResult(stage, tools.Transcoder.Name, res, func() { report(parser.Finish(true)) }); out != nil {
		return out
	}
	size, err := requireOutput(r.scratch.Raw())
	if err != nil {
		return conversion.Failed{Stage: stage, Err: &conversion.ProcessError{
			Stage: stage, Tool: tools.Transcoder.Name, Diagnostic: res.StderrTail, Err: err,
		}}
	}
	r.rawSize = size
	r.h.emit(stage, 1, optimizeStart)
	r.artifact = r.scratch.Raw()
	return nil
}

func (r *run) optimize(ctx context.Context) conversion.Outcome {
	r.enter(conversion.StageOptimizing)
	stage := conversion.StageOptimizing

	args, err := command.Optimize(r.scratch.Raw(), r.scratch.Optimized(), r.req.Quality)
	if err != nil {
		return conversion.Failed{Stage: stage, Err: asRequestError(err)}
	}
	r.h.emit(stage, 0, optimizeStart)

	parser := progress.NewOptimizeParser()
	report := func(values []float64) {
		for _, v := range values {
			r.h.emit(stage, v, optimizeStart+optimizeSpan*v)
		}
	}
	argv := append([]string{r.paths.Optimizer}, args...)
	res := r.p.runner.Run(ctx, argv, func(chunk []byte) { report(parser.Feed(chunk)) })

	if out := r.checkResult(stage, tools.Optimizer.Name, res, func() { report(parser.Finish(true)) }); out != nil {
		return out
	}
	size, err := requireOutput(r.scratch.Optimized())
	if err != nil {
		return conversion.Failed{Stage: stage, Err: &conversion.ProcessError{
			Stage: stage, Tool: tools.Optimizer.Name, Diagnostic: res.StderrTail, Err: err,
		}}
	}
	r.log.WithFields(logrus.Fields{"before": r.rawSize, "after": size}).
		Infof("Optimization: was %d KB, now %d KB (%.1f%% smaller)", r.rawSize/1024, size/1024, conversion.Reduction(r.rawSize, size))
	r.artifact = r.scratch.Optimized()
	return nil
}

// checkResult maps a supervisor result to an outcome, or nil to continue.
func (r *run) checkResult(stage conversion.Stage, tool string, res supervisor.Result, onSuccess func()) conversion.Outcome {
	switch res.Status {
	case supervisor.StatusCancelled:
		return conversion.Cancelled{Stage: stage}
	case supervisor.StatusFailed:
		return conversion.Failed{Stage: stage, Err: &conversion.ProcessError{
			Stage:      stage,
			Tool:       tool,
			ExitCode:   res.ExitCode,
			Diagnostic: res.StderrTail,
			Err:        res.Err,
		}}
	}
	onSuccess()
	r.log.WithFields(logrus.Fields{"stage": stage.String(), "elapsed": res.Elapsed.Round(time.Millisecond)}).Debugf("%s finished", tool)
	return nil
}

func (r *run) publish(ctx context.Context) conversion.Outcome {
	r.enter(conversion.StagePublishing)
	stage := conversion.StagePublishing
	if ctx.Err() != nil {
		return conversion.Cancelled{Stage: stage}
	}

	if err := publishFile(r.artifact, r.req.Destination, r.h.ID()); err != nil {
		return conversion.Failed{Stage: stage, Err: err}
	}
	var size int64
	if info, err := os.Stat(r.req.Destination); err == nil {
		size = info.Size()
	}
	r.h.emit(stage, 1, 1)
	return conversion.Succeeded{OutputPath: r.req.Destination, OutputSize: size, IntermediateSize: r.rawSize}
}

func requireOutput(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		return 0, errors.New("produced no output")
	}
	return info.Size(), nil
}

func asRequestError(err error) error {
	var buildErr *command.BuildError
	if errors.As(err, &buildErr) {
		return &conversion.RequestError{Field: buildErr.Field, Reason: buildErr.Reason}
	}
	return err
}

// DefaultScratchDir is used when no scratch directory is configured.
func DefaultScratchDir() string {
	return filepath.Join(os.TempDir(), "gif-pipeline")
}
