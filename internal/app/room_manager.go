package app

import (
	"sync"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
)

// RoomManagerImpl holds conversation rooms. A room lives while it has subscribers.
type RoomManagerImpl struct {
	mu    sync.RWMutex
	rooms map[domain.ConversationID]core.RoomService
}

func NewRoomManager() core.RoomManager {
	return &RoomManagerImpl{rooms: make(map[domain.ConversationID]core.RoomService)}
}

func (f *RoomManagerImpl) GetOrCreate(id domain.ConversationID) core.RoomService {
	f.mu.RLock()
	room, ok := f.rooms[id]
	f.mu.RUnlock()
	if ok {
		return room
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if room, ok = f.rooms[id]; ok {
		return room
	}
	room = core.NewRoomService(id)
	f.rooms[id] = room
	return room
}

func (f *RoomManagerImpl) Join(id domain.ConversationID, uid domain.UserID, conn core.SignalConnection) core.RoomService {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[id]
	if !ok {
		room = core.NewRoomService(id)
		f.rooms[id] = room
	}
	room.AddMember(uid, conn)
	return room
}

func (f *RoomManagerImpl) Get(id domain.ConversationID) (core.RoomService, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	room, ok := f.rooms[id]
	return room, ok
}

func (f *RoomManagerImpl) List() []core.RoomInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(f.rooms))
	for id, r := range f.rooms {
		out = append(out, core.RoomInfo{ID: id, MemberCount: r.MemberCount()})
	}
	return out
}

func (f *RoomManagerImpl) Leave(id domain.ConversationID, conn core.SignalConnection) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[id]
	if !ok {
		return false
	}
	removed := room.RemoveMember(conn)
	if room.MemberCount() == 0 {
		delete(f.rooms, id)
	}
	return removed
}

func (f *RoomManagerImpl) LeaveAll(conn core.SignalConnection) []domain.ConversationID {
	f.mu.Lock()
	defer f.mu.Unlock()
	var left []domain.ConversationID
	for id, room := range f.rooms {
		if room.RemoveMember(conn) {
			left = append(left, id)
		}
		if room.MemberCount() == 0 {
			delete(f.rooms, id)
		}
	}
	return left
}
