package domain

import (
	"slices"
	"time"
)

type ConversationID string

type Conversation struct {
	ID        ConversationID `json:"id" bson:"_id"`
	Members   []UserID       `json:"members" bson:"members"`
	IsGroup   bool           `json:"isGroup" bson:"isGroup"`
	GroupName string         `json:"groupName,omitempty" bson:"groupName,omitempty"`
	CreatedAt time.Time      `json:"createdAt" bson:"createdAt"`
}

func (c *Conversation) HasMember(uid UserID) bool {
	return slices.Contains(c.Members, uid)
}

// Others returns every member except uid, in stored order.
func (c *Conversation) Others(uid UserID) []UserID {
	out := make([]UserID, 0, len(c.Members))
	for _, m := range c.Members {
		if m != uid {
			out = append(out, m)
		}
	}
	return out
}
