package domain

import "time"

// Participant is a user's presence in a group call.
// No transport or lifecycle logic here.
type Participant struct {
	UserID   UserID    `json:"userId"`
	JoinedAt time.Time `json:"joinedAt"`
}

func NewParticipant(uid UserID, at time.Time) Participant {
	return Participant{UserID: uid, JoinedAt: at}
}
