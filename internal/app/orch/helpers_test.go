package orch

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/dkeye/huddle/internal/app"
	"github.com/dkeye/huddle/internal/app/sfu"
	"github.com/dkeye/huddle/internal/app/sfu/sfutest"
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/store"
	"github.com/stretchr/testify/require"
)

const (
	alice domain.UserID = "alice"
	bob   domain.UserID = "bob"
	carol domain.UserID = "carol"
	dave  domain.UserID = "dave"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrConnectionClosed
	}
	if c.full {
		return core.ErrBackpressure
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// events returns the decoded frames of one type.
func (c *fakeConn) events(t *testing.T, typ string) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []map[string]any
	for _, f := range c.frames {
		var m map[string]any
		require.NoError(t, json.Unmarshal(f, &m))
		if m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

type harness struct {
	o      *Orchestrator
	store  *store.Memory
	engine *sfutest.Engine
}

func newHarness(t *testing.T, policy app.Policy) *harness {
	t.Helper()
	engine := sfutest.NewEngine()
	pool, err := sfu.NewWorkerPool(1, func(int) (core.MediaEngine, error) { return engine, nil }, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- pool.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-errc
	})

	st := store.NewMemory()
	reg := app.NewRegistry(st, 0)
	t.Cleanup(reg.Close)
	o := New(reg, app.NewRoomManager(), app.NewGroupCalls(), sfu.NewRoomManager(pool, nil), st, policy)
	return &harness{o: o, store: st, engine: engine}
}

func (h *harness) connect(t *testing.T, uid domain.UserID) *fakeConn {
	t.Helper()
	c := &fakeConn{}
	h.o.Connect(t.Context(), uid, c)
	return c
}

func (h *harness) conversation(t *testing.T, opts core.ConversationOptions, members ...domain.UserID) *domain.Conversation {
	t.Helper()
	conv, err := h.store.FindOrCreateConversation(t.Context(), members, opts)
	require.NoError(t, err)
	return conv
}
