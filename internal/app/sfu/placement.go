package sfu

import "sync/atomic"

// Placement picks the worker that hosts a new room.
type Placement interface {
	Pick(workers []*Worker) *Worker
}

// FirstWorker always uses worker 0. Every room lands on one worker,
// so it only suits single-worker pools.
type FirstWorker struct{}

func (FirstWorker) Pick(workers []*Worker) *Worker {
	if len(workers) == 0 {
		return nil
	}
	return workers[0]
}

type RoundRobin struct {
	next atomic.Uint64
}

func (p *RoundRobin) Pick(workers []*Worker) *Worker {
	if len(workers) == 0 {
		return nil
	}
	n := p.next.Add(1) - 1
	return workers[n%uint64(len(workers))]
}

// LeastLoaded picks the worker hosting the fewest rooms, lowest id on ties.
type LeastLoaded struct{}

func (LeastLoaded) Pick(workers []*Worker) *Worker {
	var best *Worker
	for _, w := range workers {
		if best == nil || w.Load() < best.Load() {
			best = w
		}
	}
	return best
}

// PlacementByName maps the relay.placement setting to a Placement.
func PlacementByName(name string) Placement {
	switch name {
	case "first":
		return FirstWorker{}
	case "round_robin":
		return &RoundRobin{}
	default:
		return LeastLoaded{}
	}
}
