package core

import (
	"time"

	"github.com/dkeye/huddle/internal/domain"
)

// Connection is the registry entry of an authenticated user.
type Connection struct {
	UserID   domain.UserID
	Signal   SignalConnection
	OpenedAt time.Time
}
