package domain

type (
	// RoomID names a relay room. Clients usually reuse the group id.
	RoomID string
	// GroupID names a group call; it is the id of the group conversation.
	GroupID string
)

// Conversation returns the conversation whose room receives call notifications.
func (g GroupID) Conversation() ConversationID { return ConversationID(g) }
