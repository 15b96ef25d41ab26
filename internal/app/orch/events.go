package orch

import (
	"encoding/json"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

// Outbound event names.
const (
	EventReceiveMessage        = "receiveMessage"
	EventUserTyping            = "userTyping"
	EventMessagesMarkedRead    = "messagesMarkedRead"
	EventIncomingCall          = "incomingCall"
	EventCallAccepted          = "callAccepted"
	EventICECandidate          = "iceCandidate"
	EventCallEnded             = "callEnded"
	EventCallRejected          = "callRejected"
	EventGroupCallStarted      = "groupCallStarted"
	EventParticipantJoined     = "participantJoined"
	EventParticipantLeft       = "participantLeft"
	EventGroupCallEnded        = "groupCallEnded"
	EventGroupCallOffer        = "groupCallOffer"
	EventGroupCallAnswer       = "groupCallAnswer"
	EventGroupCallICECandidate = "groupCallIceCandidate"
	EventNewProducer           = "newProducer"
	EventProducerClosed        = "producerClosed"
)

type MessageEvent struct {
	Type    string          `json:"type"`
	Message *domain.Message `json:"message"`
}

type TypingEvent struct {
	Type           string                `json:"type"`
	ConversationID domain.ConversationID `json:"conversationId"`
	UserID         domain.UserID         `json:"userId"`
	IsTyping       bool                  `json:"isTyping"`
}

type ReadEvent struct {
	Type           string                `json:"type"`
	ConversationID domain.ConversationID `json:"conversationId"`
	UserID         domain.UserID         `json:"userId"`
	Count          int64                 `json:"count"`
}

// CallEvent carries one-to-one call signaling. Payloads are forwarded verbatim.
type CallEvent struct {
	Type      string          `json:"type"`
	From      domain.UserID   `json:"from"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	CallType  string          `json:"callType,omitempty"`
	Reason    string          `json:"reason,omitempty"`
}

type GroupEvent struct {
	Type      string          `json:"type"`
	GroupID   domain.GroupID  `json:"groupId"`
	From      domain.UserID   `json:"from,omitempty"`
	UserID    domain.UserID   `json:"userId,omitempty"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

type NewProducerEvent struct {
	Type       string         `json:"type"`
	RoomID     domain.RoomID  `json:"roomId"`
	ProducerID string         `json:"producerId"`
	UserID     domain.UserID  `json:"userId"`
	Kind       core.MediaKind `json:"kind"`
}

type ProducerClosedEvent struct {
	Type       string        `json:"type"`
	RoomID     domain.RoomID `json:"roomId"`
	ConsumerID string        `json:"consumerId"`
	ProducerID string        `json:"producerId"`
}

func encode(v any) core.Frame {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode event")
		return nil
	}
	return b
}
