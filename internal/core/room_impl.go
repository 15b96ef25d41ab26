package core

import (
	"sync"

	"github.com/dkeye/huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

// roomImpl is a threadsafe in-memory conversation room.
// It never closes adapter-owned resources.
type roomImpl struct {
	id     domain.ConversationID
	mu     sync.RWMutex
	byConn map[SignalConnection]domain.UserID
}

func NewRoomService(id domain.ConversationID) RoomService {
	return &roomImpl{
		id:     id,
		byConn: make(map[SignalConnection]domain.UserID),
	}
}

func (r *roomImpl) ID() domain.ConversationID { return r.id }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}

func (r *roomImpl) Has(conn SignalConnection) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byConn[conn]
	return ok
}

func (r *roomImpl) AddMember(uid domain.UserID, conn SignalConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byConn[conn] = uid
	log.Debug().Str("module", "core.room").Str("conversation", string(r.id)).Str("user", string(uid)).Msg("subscriber added")
}

func (r *roomImpl) RemoveMember(conn SignalConnection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	uid, ok := r.byConn[conn]
	if !ok {
		return false
	}
	delete(r.byConn, conn)
	log.Debug().Str("module", "core.room").Str("conversation", string(r.id)).Str("user", string(uid)).Msg("subscriber removed")
	return true
}

func (r *roomImpl) Broadcast(except SignalConnection, data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{Reached: make([]SignalConnection, 0, len(r.byConn))}
	for conn, uid := range r.byConn {
		if except != nil && conn == except {
			continue
		}
		res.Reached = append(res.Reached, conn)
		if err := conn.TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, Subscriber{UserID: uid, Conn: conn})
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.room").Str("conversation", string(r.id)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *roomImpl) Subscribers() []Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Subscriber, 0, len(r.byConn))
	for conn, uid := range r.byConn {
		out = append(out, Subscriber{UserID: uid, Conn: conn})
	}
	return out
}
