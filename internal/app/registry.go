package app

import (
	"context"
	"hash/maphash"
	"sort"
	"sync"
	"time"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/metrics"
	"github.com/rs/zerolog/log"
)

const (
	DefaultGracePeriod = 5 * time.Second
	presenceShards     = 32
)

// PresenceWriter persists online state.
type PresenceWriter interface {
	SetUserOnline(ctx context.Context, uid domain.UserID, online bool, at time.Time) error
}

// Registry maps a user to its single live signaling connection and
// keeps presence in the store. Registration is insert-or-replace:
// the newest connection of a user wins and the older one is left open.
type Registry struct {
	mu     sync.RWMutex
	conns  map[domain.UserID]*core.Connection
	timers map[domain.UserID]*time.Timer

	presence PresenceWriter
	// presence writes of one user are serialized on its shard
	writeMu [presenceShards]sync.Mutex
	seed    maphash.Seed
	grace   time.Duration
	now     func() time.Time

	// OnGraceExpired runs when a user stayed away for the whole grace period.
	OnGraceExpired func(domain.UserID)
}

func NewRegistry(presence PresenceWriter, grace time.Duration) *Registry {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &Registry{
		conns:    make(map[domain.UserID]*core.Connection),
		timers:   make(map[domain.UserID]*time.Timer),
		presence: presence,
		seed:     maphash.MakeSeed(),
		grace:    grace,
		now:      time.Now,
	}
}

// Register inserts or replaces the connection of uid and marks the user online.
func (r *Registry) Register(ctx context.Context, uid domain.UserID, conn core.SignalConnection) {
	now := r.now()
	r.mu.Lock()
	_, replaced := r.conns[uid]
	r.conns[uid] = &core.Connection{UserID: uid, Signal: conn, OpenedAt: now}
	if t, ok := r.timers[uid]; ok {
		t.Stop()
		delete(r.timers, uid)
	}
	count := len(r.conns)
	r.mu.Unlock()

	metrics.Connections.Set(float64(count))
	log.Info().Str("module", "app.registry").Str("user", string(uid)).Bool("replaced", replaced).Msg("registered connection")
	r.syncPresence(ctx, uid, now)
}

func (r *Registry) Lookup(uid domain.UserID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.conns[uid]; ok {
		return c.Signal, true
	}
	return nil, false
}

// Unregister removes uid only while it still maps to conn, so a late
// disconnect of a superseded connection never evicts the newer one.
func (r *Registry) Unregister(ctx context.Context, uid domain.UserID, conn core.SignalConnection) bool {
	now := r.now()
	r.mu.Lock()
	c, ok := r.conns[uid]
	if !ok || c.Signal != conn {
		r.mu.Unlock()
		log.Debug().Str("module", "app.registry").Str("user", string(uid)).Msg("stale unregister ignored")
		return false
	}
	delete(r.conns, uid)
	if t, ok := r.timers[uid]; ok {
		t.Stop()
	}
	r.timers[uid] = time.AfterFunc(r.grace, func() { r.graceExpired(uid) })
	count := len(r.conns)
	r.mu.Unlock()

	metrics.Connections.Set(float64(count))
	log.Info().Str("module", "app.registry").Str("user", string(uid)).Dur("online_for", now.Sub(c.OpenedAt)).Msg("unregistered connection")
	r.syncPresence(ctx, uid, now)
	return true
}

func (r *Registry) graceExpired(uid domain.UserID) {
	r.mu.Lock()
	delete(r.timers, uid)
	_, back := r.conns[uid]
	r.mu.Unlock()
	if back {
		return
	}
	metrics.ReconnectGraceExpired.Inc()
	log.Info().Str("module", "app.registry").Str("user", string(uid)).Dur("grace", r.grace).Msg("user did not reconnect")
	if r.OnGraceExpired != nil {
		r.OnGraceExpired(uid)
	}
}

// syncPresence writes the user's current state, read under the user's
// write lock, so a reconnect racing a disconnect cannot leave a stale
// offline flag behind.
func (r *Registry) syncPresence(ctx context.Context, uid domain.UserID, at time.Time) {
	if r.presence == nil {
		return
	}
	mu := &r.writeMu[maphash.String(r.seed, string(uid))%presenceShards]
	mu.Lock()
	defer mu.Unlock()
	online := r.IsOnline(uid)
	if err := r.presence.SetUserOnline(ctx, uid, online, at); err != nil {
		log.Error().Err(err).Str("module", "app.registry").Str("user", string(uid)).Bool("online", online).Msg("presence update failed")
	}
}

func (r *Registry) IsOnline(uid domain.UserID) bool {
	_, ok := r.Lookup(uid)
	return ok
}

// Online returns the ids of registered users, sorted.
func (r *Registry) Online() []domain.UserID {
	r.mu.RLock()
	out := make([]domain.UserID, 0, len(r.conns))
	for uid := range r.conns {
		out = append(out, uid)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Close stops pending grace checks.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for uid, t := range r.timers {
		t.Stop()
		delete(r.timers, uid)
	}
}
