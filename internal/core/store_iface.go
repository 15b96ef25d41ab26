package core

import (
	"context"
	"time"

	"github.com/dkeye/huddle/internal/domain"
)

// ConversationOptions describe a conversation created by FindOrCreateConversation.
type ConversationOptions struct {
	IsGroup   bool
	GroupName string
}

// Store is the persistence collaborator of the session layer.
// Implementations must give read-after-write consistency for a single key.
type Store interface {
	// FindOrCreateConversation returns the direct conversation between exactly
	// these members, creating it when absent. Group conversations are always created.
	FindOrCreateConversation(ctx context.Context, members []domain.UserID, opts ConversationOptions) (*domain.Conversation, error)
	GetConversation(ctx context.Context, id domain.ConversationID) (*domain.Conversation, error)
	// AppendMessage persists msg and returns its conversation.
	// It fails with ErrNotConversationMember when the author is not a member.
	AppendMessage(ctx context.Context, msg *domain.Message) (*domain.Conversation, error)
	SetUserOnline(ctx context.Context, uid domain.UserID, online bool, at time.Time) error
	GetUser(ctx context.Context, uid domain.UserID) (*domain.User, error)
	// MarkMessagesRead flags every message of the conversation not written by reader.
	MarkMessagesRead(ctx context.Context, id domain.ConversationID, reader domain.UserID) (int64, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Authenticator verifies handshake credentials.
type Authenticator interface {
	VerifyToken(ctx context.Context, token string) (domain.UserID, error)
}
