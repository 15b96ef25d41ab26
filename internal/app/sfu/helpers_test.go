package sfu

import (
	"context"
	"sync"
	"testing"

	"github.com/dkeye/huddle/internal/app/sfu/sfutest"
	"github.com/dkeye/huddle/internal/core"
	"github.com/stretchr/testify/require"
)

func startPool(t *testing.T, n int, placement Placement) (*WorkerPool, []*sfutest.Engine) {
	t.Helper()
	engines := make([]*sfutest.Engine, n)
	pool, err := NewWorkerPool(n, func(id int) (core.MediaEngine, error) {
		engines[id] = sfutest.NewEngine()
		return engines[id], nil
	}, placement)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- pool.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-errc
	})
	return pool, engines
}

type closedLog struct {
	mu     sync.Mutex
	events []ProducerClosed
}

func (l *closedLog) add(ev ProducerClosed) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *closedLog) all() []ProducerClosed {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ProducerClosed(nil), l.events...)
}

func newManager(t *testing.T) (*RoomManager, *sfutest.Engine, *closedLog) {
	t.Helper()
	pool, engines := startPool(t, 1, nil)
	m := NewRoomManager(pool, nil)
	events := &closedLog{}
	m.OnProducerClosed(events.add)
	return m, engines[0], events
}
