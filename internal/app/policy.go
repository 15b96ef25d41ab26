package app

import "github.com/dkeye/huddle/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

// Policy decides what happens to a subscriber whose send queue is full.
type Policy interface {
	OnBackPressure(room core.RoomService, sub core.Subscriber) BackpressureAction
}

// SimplePolicy kicks slow subscribers; they reconnect and resync.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(core.RoomService, core.Subscriber) BackpressureAction {
	return KickMember
}

// DropPolicy loses the frame and keeps the subscriber.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(core.RoomService, core.Subscriber) BackpressureAction {
	return DropFrame
}

// PolicyByName maps the signal.backpressure setting to a Policy.
func PolicyByName(name string) Policy {
	if name == "drop" {
		return DropPolicy{}
	}
	return SimplePolicy{}
}
