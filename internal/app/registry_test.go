package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopConn struct{ id int }

func (*nopConn) TrySend(core.Frame) error { return nil }
func (*nopConn) Close()                   {}

type presenceLog struct {
	mu    sync.Mutex
	calls []bool
}

func (p *presenceLog) SetUserOnline(_ context.Context, _ domain.UserID, online bool, _ time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, online)
	return nil
}

func (p *presenceLog) all() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]bool(nil), p.calls...)
}

func TestRegistryReplaceAndStaleUnregister(t *testing.T) {
	presence := &presenceLog{}
	reg := NewRegistry(presence, time.Hour)
	t.Cleanup(reg.Close)
	h1, h2 := &nopConn{1}, &nopConn{2}

	reg.Register(t.Context(), "u", h1)
	reg.Register(t.Context(), "u", h2)
	got, ok := reg.Lookup("u")
	require.True(t, ok)
	assert.Same(t, h2, got)

	assert.False(t, reg.Unregister(t.Context(), "u", h1), "stale handle is ignored")
	got, ok = reg.Lookup("u")
	require.True(t, ok)
	assert.Same(t, h2, got)

	assert.True(t, reg.Unregister(t.Context(), "u", h2))
	_, ok = reg.Lookup("u")
	assert.False(t, ok)
	assert.Equal(t, []bool{true, true, false}, presence.all())
}

func TestRegistryGraceCheck(t *testing.T) {
	reg := NewRegistry(nil, 20*time.Millisecond)
	t.Cleanup(reg.Close)
	expired := make(chan domain.UserID, 2)
	reg.OnGraceExpired = func(uid domain.UserID) { expired <- uid }

	t.Run("fires when the user stays away", func(t *testing.T) {
		h := &nopConn{}
		reg.Register(t.Context(), "gone", h)
		reg.Unregister(t.Context(), "gone", h)
		select {
		case uid := <-expired:
			assert.Equal(t, domain.UserID("gone"), uid)
		case <-time.After(time.Second):
			t.Fatal("grace check never ran")
		}
	})

	t.Run("cancelled by a reconnect", func(t *testing.T) {
		h := &nopConn{}
		reg.Register(t.Context(), "back", h)
		reg.Unregister(t.Context(), "back", h)
		reg.Register(t.Context(), "back", &nopConn{})
		select {
		case uid := <-expired:
			t.Fatalf("unexpected grace expiry for %s", uid)
		case <-time.After(100 * time.Millisecond):
		}
		assert.True(t, reg.IsOnline("back"))
	})
}

func TestRegistryOnlineSorted(t *testing.T) {
	reg := NewRegistry(nil, 0)
	t.Cleanup(reg.Close)
	assert.Equal(t, DefaultGracePeriod, reg.grace)
	reg.Register(t.Context(), "carol", &nopConn{})
	reg.Register(t.Context(), "alice", &nopConn{})
	assert.Equal(t, []domain.UserID{"alice", "carol"}, reg.Online())
}

// gatedPresence blocks the first offline write until release is closed.
type gatedPresence struct {
	presenceLog
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedPresence) SetUserOnline(ctx context.Context, uid domain.UserID, online bool, at time.Time) error {
	if !online {
		g.once.Do(func() {
			close(g.entered)
			<-g.release
		})
	}
	return g.presenceLog.SetUserOnline(ctx, uid, online, at)
}

func TestRegistryReconnectDuringOfflineWrite(t *testing.T) {
	presence := &gatedPresence{entered: make(chan struct{}), release: make(chan struct{})}
	reg := NewRegistry(presence, time.Hour)
	t.Cleanup(reg.Close)
	h1, h2 := &nopConn{1}, &nopConn{2}
	reg.Register(t.Context(), "u", h1)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		reg.Unregister(t.Context(), "u", h1)
	}()
	<-presence.entered
	go func() {
		defer wg.Done()
		reg.Register(t.Context(), "u", h2)
	}()
	require.Eventually(t, func() bool { return reg.IsOnline("u") }, time.Second, time.Millisecond)
	close(presence.release)
	wg.Wait()

	calls := presence.all()
	require.NotEmpty(t, calls)
	assert.True(t, calls[len(calls)-1], "last presence write must say online")
}
