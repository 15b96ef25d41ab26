package sfu

import (
	"context"
	"fmt"

	"github.com/dkeye/huddle/internal/core"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// EngineFactory builds the media engine of worker id.
type EngineFactory func(id int) (core.MediaEngine, error)

// WorkerPool is the fixed set of relay workers created at startup.
type WorkerPool struct {
	workers   []*Worker
	placement Placement
}

// NewWorkerPool starts nothing yet; it builds count workers and their engines.
func NewWorkerPool(count int, factory EngineFactory, placement Placement) (*WorkerPool, error) {
	if count <= 0 {
		return nil, ErrNoWorkers
	}
	if placement == nil {
		placement = LeastLoaded{}
	}
	p := &WorkerPool{placement: placement}
	for i := range count {
		engine, err := factory(i)
		if err != nil {
			for _, w := range p.workers {
				_ = w.engine.Close()
			}
			return nil, fmt.Errorf("relay worker %d: %w", i, err)
		}
		p.workers = append(p.workers, newWorker(i, engine))
	}
	return p, nil
}

// Run blocks until ctx ends. A worker that dies takes the whole pool down
// and its error is returned; callers treat it as fatal.
func (p *WorkerPool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range p.workers {
		g.Go(func() error { return w.Run(gctx) })
	}
	err := g.Wait()
	if err != nil {
		log.Error().Err(err).Str("module", "sfu.pool").Msg("relay worker pool failed")
	}
	return err
}

// Pick selects the worker for a new room.
func (p *WorkerPool) Pick() (*Worker, error) {
	w := p.placement.Pick(p.workers)
	if w == nil {
		return nil, ErrNoWorkers
	}
	return w, nil
}

func (p *WorkerPool) Workers() []*Worker { return p.workers }
