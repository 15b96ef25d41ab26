package sfu

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/huddle/internal/app/sfu/sfutest"
	"github.com/dkeye/huddle/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorkerPool(t *testing.T) {
	_, err := NewWorkerPool(0, nil, nil)
	assert.ErrorIs(t, err, ErrNoWorkers)

	boom := errors.New("no udp port")
	var built []*sfutest.Engine
	_, err = NewWorkerPool(3, func(id int) (core.MediaEngine, error) {
		if id == 2 {
			return nil, boom
		}
		e := sfutest.NewEngine()
		built = append(built, e)
		return e, nil
	}, nil)
	require.ErrorIs(t, err, boom)
	for _, e := range built {
		assert.True(t, e.Closed(), "engines built before the failure are released")
	}
}

func TestWorkerPoolRunsTasks(t *testing.T) {
	pool, engines := startPool(t, 2, nil)
	w := pool.Workers()[1]

	var seen core.MediaEngine
	err := w.Do(context.Background(), func(e core.MediaEngine) error {
		seen = e
		return nil
	})
	require.NoError(t, err)
	assert.Same(t, engines[1], seen)

	want := errors.New("task failed")
	assert.ErrorIs(t, w.Do(context.Background(), func(core.MediaEngine) error { return want }), want)
}

func runPool(t *testing.T, n int) (*WorkerPool, []*sfutest.Engine, context.CancelFunc, <-chan error) {
	t.Helper()
	engines := make([]*sfutest.Engine, n)
	pool, err := NewWorkerPool(n, func(id int) (core.MediaEngine, error) {
		engines[id] = sfutest.NewEngine()
		return engines[id], nil
	}, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- pool.Run(ctx) }()
	t.Cleanup(cancel)
	return pool, engines, cancel, errc
}

func waitErr(t *testing.T, errc <-chan error) error {
	t.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not stop")
		return nil
	}
}

func TestWorkerPoolStopsCleanly(t *testing.T) {
	_, engines, cancel, errc := runPool(t, 2)
	cancel()
	require.NoError(t, waitErr(t, errc))
	for _, e := range engines {
		assert.True(t, e.Closed())
	}
}

func TestWorkerDeathIsFatal(t *testing.T) {
	t.Run("engine failure", func(t *testing.T) {
		_, engines, _, errc := runPool(t, 3)
		engines[1].Fail(errors.New("udp socket closed"))
		err := waitErr(t, errc)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "relay worker 1 died")
	})

	t.Run("panic in task", func(t *testing.T) {
		pool, _, _, errc := runPool(t, 2)
		w := pool.Workers()[0]
		err := w.Do(context.Background(), func(core.MediaEngine) error { panic("corrupt state") })
		assert.ErrorIs(t, err, core.ErrWorkerClosed)
		err = waitErr(t, errc)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "panicked")

		assert.ErrorIs(t, w.Do(context.Background(), func(core.MediaEngine) error { return nil }), core.ErrWorkerClosed)
	})
}

func TestWorkerDoHonoursContextBeforeSubmit(t *testing.T) {
	w := newWorker(0, sfutest.NewEngine())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := w.Do(ctx, func(core.MediaEngine) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
