package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageVideo MessageType = "video"
	MessageAudio MessageType = "audio"
	MessagePDF   MessageType = "pdf"
	MessageCall  MessageType = "call"
)

const MaxContentLen = 4096

var (
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrContentTooLong     = errors.New("content too long")
)

// ParseMessageType treats an empty value as text.
func ParseMessageType(raw string) (MessageType, error) {
	switch t := MessageType(raw); t {
	case "":
		return MessageText, nil
	case MessageText, MessageImage, MessageVideo, MessageAudio, MessagePDF, MessageCall:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMessageType, raw)
	}
}

type MessageID string

type Message struct {
	ID             MessageID      `json:"id" bson:"_id"`
	ConversationID ConversationID `json:"conversationId" bson:"conversationId"`
	UserID         UserID         `json:"userId" bson:"userId"`
	Content        string         `json:"content" bson:"content"`
	FileURL        string         `json:"fileUrl,omitempty" bson:"fileUrl,omitempty"`
	Type           MessageType    `json:"type" bson:"type"`
	IsRead         bool           `json:"isRead" bson:"isRead"`
	CreatedAt      time.Time      `json:"createdAt" bson:"createdAt"`
}

// NewMessage builds an unread message with a sortable id.
// Attachments sent without a caption carry their type name as content.
func NewMessage(conv ConversationID, author UserID, content, fileURL string, typ MessageType, now time.Time) (*Message, error) {
	if len(content) > MaxContentLen {
		return nil, ErrContentTooLong
	}
	if content == "" {
		content = string(typ)
	}
	return &Message{
		ID:             MessageID(ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()),
		ConversationID: conv,
		UserID:         author,
		Content:        content,
		FileURL:        fileURL,
		Type:           typ,
		CreatedAt:      now,
	}, nil
}
