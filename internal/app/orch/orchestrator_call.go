package orch

import (
	"encoding/json"

	"github.com/dkeye/huddle/internal/domain"
)

// Call signaling is fail-open: when the peer has no connection the event is
// dropped and the caller learns it only through the returned flag.

func (o *Orchestrator) CallUser(from, to domain.UserID, offer json.RawMessage, callType string) bool {
	return o.sendTo(to, EventIncomingCall, encode(CallEvent{
		Type:     EventIncomingCall,
		From:     from,
		Offer:    offer,
		CallType: callType,
	}))
}

func (o *Orchestrator) AnswerCall(from, to domain.UserID, answer json.RawMessage) bool {
	return o.sendTo(to, EventCallAccepted, encode(CallEvent{Type: EventCallAccepted, From: from, Answer: answer}))
}

func (o *Orchestrator) RelayICECandidate(from, to domain.UserID, candidate json.RawMessage) bool {
	return o.sendTo(to, EventICECandidate, encode(CallEvent{Type: EventICECandidate, From: from, Candidate: candidate}))
}

func (o *Orchestrator) EndCall(from, to domain.UserID) bool {
	return o.sendTo(to, EventCallEnded, encode(CallEvent{Type: EventCallEnded, From: from}))
}

func (o *Orchestrator) RejectCall(from, to domain.UserID, reason string) bool {
	return o.sendTo(to, EventCallRejected, encode(CallEvent{Type: EventCallRejected, From: from, Reason: reason}))
}
