package sfu

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/metrics"
	"github.com/rs/zerolog/log"
)

type task struct {
	fn   func(core.MediaEngine) error
	done chan error
}

// Worker owns one media engine and runs relay calls against it one at a time.
type Worker struct {
	id      int
	engine  core.MediaEngine
	tasks   chan task
	stopped chan struct{}
	rooms   atomic.Int64
}

func newWorker(id int, engine core.MediaEngine) *Worker {
	return &Worker{
		id:      id,
		engine:  engine,
		tasks:   make(chan task),
		stopped: make(chan struct{}),
	}
}

func (w *Worker) ID() int { return w.id }

// Load is the number of rooms hosted by the worker.
func (w *Worker) Load() int { return int(w.rooms.Load()) }

func (w *Worker) addRoom(delta int64) {
	n := w.rooms.Add(delta)
	metrics.WorkerLoad.WithLabelValues(strconv.Itoa(w.id)).Set(float64(n))
}

// Run serves tasks until ctx ends. Any other exit is a worker death and is
// reported as an error: an engine failure or a panic inside a task.
func (w *Worker) Run(ctx context.Context) (err error) {
	logger := log.With().Str("module", "sfu.worker").Int("worker", w.id).Logger()
	defer close(w.stopped)
	defer func() {
		if cerr := w.engine.Close(); cerr != nil {
			logger.Warn().Err(cerr).Msg("engine close")
		}
	}()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("relay worker %d panicked: %v", w.id, rec)
		}
	}()

	logger.Info().Msg("relay worker started")
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("relay worker stopped")
			return nil
		case ferr := <-w.engine.Failed():
			return fmt.Errorf("relay worker %d died: %w", w.id, ferr)
		case t := <-w.tasks:
			t.done <- t.fn(w.engine)
		}
	}
}

// Do runs fn on the worker loop and waits for it. Once accepted, fn runs to
// completion even if ctx ends, so its result is never lost; fn gets the
// caller's ctx and should honour it.
func (w *Worker) Do(ctx context.Context, fn func(core.MediaEngine) error) error {
	t := task{fn: fn, done: make(chan error, 1)}
	select {
	case w.tasks <- t:
	case <-ctx.Done():
		return ctx.Err()
	case <-w.stopped:
		return core.ErrWorkerClosed
	}
	select {
	case err := <-t.done:
		return err
	case <-w.stopped:
		return core.ErrWorkerClosed
	}
}
