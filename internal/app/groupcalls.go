package app

import (
	"sort"
	"sync"
	"time"

	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/metrics"
	"github.com/rs/zerolog/log"
)

// GroupCalls tracks participants of active group calls.
// A call exists exactly while its participant set is non-empty.
type GroupCalls struct {
	mu    sync.RWMutex
	calls map[domain.GroupID]map[domain.UserID]time.Time
	now   func() time.Time
}

func NewGroupCalls() *GroupCalls {
	return &GroupCalls{
		calls: make(map[domain.GroupID]map[domain.UserID]time.Time),
		now:   time.Now,
	}
}

// Join adds uid, creating the call when needed. It returns the other
// participants and whether the call was created by this join.
func (g *GroupCalls) Join(gid domain.GroupID, uid domain.UserID) (others []domain.UserID, created bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	set, ok := g.calls[gid]
	if !ok {
		set = make(map[domain.UserID]time.Time)
		g.calls[gid] = set
		created = true
		metrics.GroupCalls.Set(float64(len(g.calls)))
		log.Info().Str("module", "app.groupcalls").Str("group", string(gid)).Str("user", string(uid)).Msg("group call created")
	}
	if _, in := set[uid]; !in {
		set[uid] = g.now()
	}
	return othersOf(set, uid), created
}

// Leave removes uid. It returns the remaining participants and whether the
// call ended with this leave. Leaving an unknown call is a no-op.
func (g *GroupCalls) Leave(gid domain.GroupID, uid domain.UserID) (remaining []domain.UserID, ended bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	set, ok := g.calls[gid]
	if !ok {
		return nil, false
	}
	if _, in := set[uid]; !in {
		return othersOf(set, ""), false
	}
	delete(set, uid)
	if len(set) == 0 {
		delete(g.calls, gid)
		metrics.GroupCalls.Set(float64(len(g.calls)))
		log.Info().Str("module", "app.groupcalls").Str("group", string(gid)).Msg("group call ended")
		return nil, true
	}
	return othersOf(set, ""), false
}

// CallsOf lists the groups uid currently participates in.
func (g *GroupCalls) CallsOf(uid domain.UserID) []domain.GroupID {
	g.mu.RLock()
	var in []domain.GroupID
	for gid, set := range g.calls {
		if _, ok := set[uid]; ok {
			in = append(in, gid)
		}
	}
	g.mu.RUnlock()
	return in
}

func (g *GroupCalls) Active(gid domain.GroupID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.calls[gid]
	return ok
}

func (g *GroupCalls) Participants(gid domain.GroupID) []domain.Participant {
	g.mu.RLock()
	defer g.mu.RUnlock()
	set := g.calls[gid]
	out := make([]domain.Participant, 0, len(set))
	for uid, at := range set {
		out = append(out, domain.NewParticipant(uid, at))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out
}

func (g *GroupCalls) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.calls)
}

func othersOf(set map[domain.UserID]time.Time, uid domain.UserID) []domain.UserID {
	out := make([]domain.UserID, 0, len(set))
	for u := range set {
		if u != uid {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
