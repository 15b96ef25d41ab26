package core

import (
	"errors"

	"github.com/dkeye/huddle/internal/domain"
)

var (
	ErrAuthentication           = errors.New("authentication failed")
	ErrRoomNotFound             = errors.New("room not found")
	ErrTransportNotFound        = errors.New("transport not found")
	ErrProducerNotFound         = errors.New("producer not found")
	ErrConsumerNotFound         = errors.New("consumer not found")
	ErrIncompatibleCapabilities = errors.New("incompatible rtp capabilities")
	ErrInvalidRTPParameters     = errors.New("invalid rtp parameters")
	ErrConversationNotFound     = errors.New("conversation not found")
	ErrNotConversationMember    = errors.New("not a conversation member")
	ErrInvalidMessage           = errors.New("invalid message")
	ErrBackpressure             = errors.New("backpressure")
	ErrConnectionClosed         = errors.New("connection closed")
	ErrWorkerClosed             = errors.New("relay worker closed")
)

// ErrorCode maps an error to the code sent to clients.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthentication):
		return "AUTHENTICATION_FAILED"
	case errors.Is(err, ErrRoomNotFound):
		return "ROOM_NOT_FOUND"
	case errors.Is(err, ErrTransportNotFound):
		return "TRANSPORT_NOT_FOUND"
	case errors.Is(err, ErrProducerNotFound):
		return "PRODUCER_NOT_FOUND"
	case errors.Is(err, ErrConsumerNotFound):
		return "CONSUMER_NOT_FOUND"
	case errors.Is(err, ErrIncompatibleCapabilities):
		return "INCOMPATIBLE_CAPABILITIES"
	case errors.Is(err, ErrInvalidRTPParameters):
		return "INVALID_RTP_PARAMETERS"
	case errors.Is(err, ErrConversationNotFound):
		return "CONVERSATION_NOT_FOUND"
	case errors.Is(err, ErrNotConversationMember):
		return "FORBIDDEN"
	case errors.Is(err, ErrInvalidMessage),
		errors.Is(err, domain.ErrUnknownMessageType),
		errors.Is(err, domain.ErrContentTooLong):
		return "INVALID_MESSAGE"
	default:
		return "INTERNAL"
	}
}
