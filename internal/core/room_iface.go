package core

import (
	"github.com/dkeye/huddle/internal/domain"
)

// Subscriber is a connection listening to a conversation room.
type Subscriber struct {
	UserID domain.UserID
	Conn   SignalConnection
}

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Reached []SignalConnection
	Dropped []Subscriber
}

// RoomService is the core-facing API of a conversation room.
// It owns the subscriber set but never touches transport resources.
type RoomService interface {
	ID() domain.ConversationID
	MemberCount() int
	Subscribers() []Subscriber
	Has(conn SignalConnection) bool

	AddMember(uid domain.UserID, conn SignalConnection)
	RemoveMember(conn SignalConnection) bool
	// Broadcast sends data to every subscriber except the given handle (nil for none).
	Broadcast(except SignalConnection, data Frame) PublishResult
}

type RoomInfo struct {
	ID          domain.ConversationID `json:"id"`
	MemberCount int                   `json:"client_count"`
}

type RoomManager interface {
	GetOrCreate(id domain.ConversationID) RoomService
	// Join adds conn to the room, creating it, under the manager lock.
	Join(id domain.ConversationID, uid domain.UserID, conn SignalConnection) RoomService
	Get(id domain.ConversationID) (RoomService, bool)
	List() []RoomInfo
	// Leave removes conn from the room and drops the room once empty.
	Leave(id domain.ConversationID, conn SignalConnection) bool
	LeaveAll(conn SignalConnection) []domain.ConversationID
}
