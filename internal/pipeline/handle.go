package pipeline

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Akashdeep-Patra/gif-pipeline/internal/conversion"
)

// RunHandle observes and controls one run.
type RunHandle struct {
	id     string
	cancel context.CancelFunc
	log    logrus.FieldLogger
	done   chan struct{}

	mu      sync.Mutex
	stage   conversion.Stage
	latest  *conversion.ProgressUpdate
	outcome conversion.Outcome
	subs    []*subscriber
}

func newRunHandle(id string, cancel context.CancelFunc, log logrus.FieldLogger) *RunHandle {
	return &RunHandle{
		id:     id,
		cancel: cancel,
		log:    log,
		done:   make(chan struct{}),
		stage:  conversion.StageIdle,
	}
}

// ID returns the run identifier used in logs and scratch names.
func (h *RunHandle) ID() string {
	return h.id
}

// State returns the current stage.
func (h *RunHandle) State() conversion.Stage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stage
}

// Cancel requests cancellation. It is safe to call any number of times, from
// any goroutine, including after the run has finished.
func (h *RunHandle) Cancel() {
	h.cancel()
}

// Done is closed once the outcome is known.
func (h *RunHandle) Done() <-chan struct{} {
	return h.done
}

// Outcome returns the terminal outcome, or nil while the run is in flight.
func (h *RunHandle) Outcome() conversion.Outcome {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outcome
}

// Wait blocks until the run finishes or ctx is done.
func (h *RunHandle) Wait(ctx context.Context) (conversion.Outcome, error) {
	select {
	case <-h.done:
		return h.Outcome(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Subscribe registers callbacks. Either may be nil. Callbacks for one
// subscriber run on a dedicated goroutine, one at a time: progress arrives in
// non-decreasing order, intermediate updates may be skipped when the
// subscriber is slow, and onDone is called exactly once, after the last
// progress update. Subscribing after the run finished delivers the final
// progress and the outcome.
func (h *RunHandle) Subscribe(onProgress func(conversion.ProgressUpdate), onDone func(conversion.Outcome)) {
	s := &subscriber{
		onProgress: onProgress,
		onDone:     onDone,
		wake:       make(chan struct{}, 1),
	}

	h.mu.Lock()
	if h.latest != nil {
		s.push(*h.latest)
	}
	if h.outcome != nil {
		s.finish(h.outcome)
	} else {
		h.subs = append(h.subs, s)
	}
	h.mu.Unlock()

	go s.loop()
}

// transition moves the run to stage if the edge is allowed.
func (h *RunHandle) transition(to conversion.Stage) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !isValidTransition(h.stage, to) {
		h.log.Errorf("invalid stage transition: %s -> %s", h.stage, to)
		return false
	}
	h.stage = to
	return true
}

// emit publishes a progress update. Updates that would move overall progress
// backwards are dropped.
func (h *RunHandle) emit(stage conversion.Stage, fraction, overall float64) {
	update := conversion.ProgressUpdate{Stage: stage, Fraction: clamp(fraction), Overall: clamp(overall)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.outcome != nil {
		return
	}
	if h.latest != nil && update.Overall < h.latest.Overall {
		return
	}
	h.latest = &update
	for _, s := range h.subs {
		s.push(update)
	}
}

// finish records the outcome, notifies subscribers and closes Done.
func (h *RunHandle) finish(outcome conversion.Outcome) {
	var terminal conversion.Stage
	switch outcome.(type) {
	case conversion.Succeeded:
		terminal = conversion.StageSucceeded
	case conversion.Cancelled:
		terminal = conversion.StageCancelled
	default:
		terminal = conversion.StageFailed
	}
	h.transition(terminal)

	h.mu.Lock()
	h.outcome = outcome
	subs := h.subs
	h.subs = nil
	for _, s := range subs {
		s.finish(outcome)
	}
	h.mu.Unlock()

	close(h.done)
}

// isValidTransition enforces the allowed stage machine edges.
func isValidTransition(from, to conversion.Stage) bool {
	if from.Terminal() {
		return false
	}
	stop := to == conversion.StageFailed || to == conversion.StageCancelled
	switch from {
	case conversion.StageIdle:
		return to == conversion.StageValidating
	case conversion.StageValidating:
		return to == conversion.StageTranscoding || stop
	case conversion.StageTranscoding:
		return to == conversion.StageOptimizing || to == conversion.StagePublishing || stop
	case conversion.StageOptimizing:
		return to == conversion.StagePublishing || stop
	case conversion.StagePublishing:
		return to == conversion.StageSucceeded || stop
	}
	return false
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// subscriber is a one-slot mailbox: a newer progress update replaces an
// undelivered one, and the outcome is delivered after any pending update.
type subscriber struct {
	onProgress func(conversion.ProgressUpdate)
	onDone     func(conversion.Outcome)
	wake       chan struct{}

	mu      sync.Mutex
	pending *conversion.ProgressUpdate
	outcome conversion.Outcome
}

func (s *subscriber) push(update conversion.ProgressUpdate) {
	s.mu.Lock()
	s.pending = &update
	s.mu.Unlock()
	s.notify()
}

func (s *subscriber) finish(outcome conversion.Outcome) {
	s.mu.Lock()
	s.outcome = outcome
	s.mu.Unlock()
	s.notify()
}

func (s *subscriber) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) loop() {
	for range s.wake {
		s.mu.Lock()
		update, outcome := s.pending, s.outcome
		s.pending = nil
		s.mu.Unlock()

		if update != nil && s.onProgress != nil {
			s.onProgress(*update)
		}
		if outcome != nil {
			if s.onDone != nil {
				s.onDone(outcome)
			}
			return
		}
	}
}
