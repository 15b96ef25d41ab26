// Package domain contains entities without logic, just meta-data
package domain

import (
	"errors"
	"time"
)

const MaxUserIDLen = 64

var (
	ErrUserIDEmpty   = errors.New("user id empty")
	ErrUserIDTooLong = errors.New("user id too long")
)

type UserID string

// ParseUserID validates an id taken from a verified token claim.
func ParseUserID(raw string) (UserID, error) {
	if len(raw) == 0 {
		return "", ErrUserIDEmpty
	}
	if len(raw) > MaxUserIDLen {
		return "", ErrUserIDTooLong
	}
	return UserID(raw), nil
}

type User struct {
	ID       UserID    `json:"id" bson:"_id"`
	Username string    `json:"username,omitempty" bson:"username,omitempty"`
	Online   bool      `json:"isOnline" bson:"isOnline"`
	LastSeen time.Time `json:"lastSeen" bson:"lastSeen"`
}
