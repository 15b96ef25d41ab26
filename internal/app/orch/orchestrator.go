// Package orch is the session manager: it owns every registry of the
// signaling layer and turns client requests into deliveries.
package orch

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/huddle/internal/app"
	"github.com/dkeye/huddle/internal/app/sfu"
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/metrics"
	"github.com/rs/zerolog/log"
)

type Orchestrator struct {
	Registry *app.Registry
	Rooms    core.RoomManager
	Groups   *app.GroupCalls
	Relay    *sfu.RoomManager
	Store    core.Store
	Policy   app.Policy

	now func() time.Time
}

func New(reg *app.Registry, rooms core.RoomManager, groups *app.GroupCalls, relay *sfu.RoomManager, store core.Store, policy app.Policy) *Orchestrator {
	if policy == nil {
		policy = app.SimplePolicy{}
	}
	o := &Orchestrator{
		Registry: reg,
		Rooms:    rooms,
		Groups:   groups,
		Relay:    relay,
		Store:    store,
		Policy:   policy,
		now:      time.Now,
	}
	if relay != nil {
		relay.OnProducerClosed(o.onProducerClosed)
	}
	return o
}

// Connect registers an authenticated connection, replacing any older one.
func (o *Orchestrator) Connect(ctx context.Context, uid domain.UserID, conn core.SignalConnection) {
	o.Registry.Register(ctx, uid, conn)
}

// Disconnect drops conn's subscriptions. When conn was still the user's
// registered connection, the user also leaves every group call and every
// relay room. A superseded connection leaves the newer session untouched.
func (o *Orchestrator) Disconnect(ctx context.Context, uid domain.UserID, conn core.SignalConnection) {
	left := o.Rooms.LeaveAll(conn)
	removed := o.Registry.Unregister(ctx, uid, conn)
	logger := log.With().Str("module", "orch").Str("user", string(uid)).Logger()
	if !removed {
		logger.Debug().Int("conversations", len(left)).Msg("superseded connection closed")
		return
	}
	for _, gid := range o.Groups.CallsOf(uid) {
		o.LeaveGroupCall(uid, gid)
	}
	var rooms []domain.RoomID
	if o.Relay != nil {
		rooms = o.Relay.CloseUser(uid)
	}
	logger.Info().Int("conversations", len(left)).Int("relay_rooms", len(rooms)).Msg("user disconnected")
}

// send delivers one frame to one connection. A full queue is settled by the policy.
func (o *Orchestrator) send(room core.RoomService, sub core.Subscriber, frame core.Frame) bool {
	err := sub.Conn.TrySend(frame)
	switch {
	case err == nil:
		return true
	case errors.Is(err, core.ErrBackpressure):
		o.onSlow(room, sub)
	default:
		metrics.FramesDropped.WithLabelValues("closed").Inc()
	}
	return false
}

// sendTo delivers to the registered connection of uid. Absent users are
// skipped silently apart from a debug line and a counter.
func (o *Orchestrator) sendTo(uid domain.UserID, event string, frame core.Frame) bool {
	conn, ok := o.Registry.Lookup(uid)
	if !ok {
		metrics.SignalsUndelivered.WithLabelValues(event).Inc()
		log.Debug().Str("module", "orch").Str("user", string(uid)).Str("event", event).Msg("recipient offline, dropped")
		return false
	}
	return o.send(nil, core.Subscriber{UserID: uid, Conn: conn}, frame)
}

// broadcast sends to a conversation room and settles its slow subscribers.
func (o *Orchestrator) broadcast(room core.RoomService, except core.SignalConnection, frame core.Frame) core.PublishResult {
	res := room.Broadcast(except, frame)
	for _, slow := range res.Dropped {
		o.onSlow(room, slow)
	}
	return res
}

func (o *Orchestrator) onSlow(room core.RoomService, sub core.Subscriber) {
	switch o.Policy.OnBackPressure(room, sub) {
	case app.KickMember:
		metrics.FramesDropped.WithLabelValues("kick").Inc()
		log.Warn().Str("module", "orch").Str("user", string(sub.UserID)).Msg("slow connection kicked")
		// The adapter's read loop ends and runs Disconnect.
		sub.Conn.Close()
	case app.DropFrame, app.MarkSlow, app.NoAction:
		metrics.FramesDropped.WithLabelValues("backpressure").Inc()
	}
}
