package orch

import (
	"encoding/json"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

// StartGroupCall joins uid to the group call, creating it when needed, and
// announces it to the group's conversation room.
func (o *Orchestrator) StartGroupCall(conn core.SignalConnection, uid domain.UserID, gid domain.GroupID) []domain.Participant {
	others, created := o.Groups.Join(gid, uid)
	if room, ok := o.Rooms.Get(gid.Conversation()); ok {
		o.broadcast(room, conn, encode(GroupEvent{Type: EventGroupCallStarted, GroupID: gid, From: uid}))
	}
	o.notifyParticipants(others, GroupEvent{Type: EventParticipantJoined, GroupID: gid, UserID: uid})
	log.Info().Str("module", "orch").Str("group", string(gid)).Str("user", string(uid)).Bool("created", created).Msg("group call started")
	return o.Groups.Participants(gid)
}

// JoinGroupCall adds uid idempotently and tells every other participant.
func (o *Orchestrator) JoinGroupCall(uid domain.UserID, gid domain.GroupID) []domain.Participant {
	others, _ := o.Groups.Join(gid, uid)
	o.notifyParticipants(others, GroupEvent{Type: EventParticipantJoined, GroupID: gid, UserID: uid})
	return o.Groups.Participants(gid)
}

// LeaveGroupCall removes uid. The call is deleted with its last participant.
func (o *Orchestrator) LeaveGroupCall(uid domain.UserID, gid domain.GroupID) {
	remaining, ended := o.Groups.Leave(gid, uid)
	o.notifyParticipants(remaining, GroupEvent{Type: EventParticipantLeft, GroupID: gid, UserID: uid})
	if !ended {
		return
	}
	if room, ok := o.Rooms.Get(gid.Conversation()); ok {
		o.broadcast(room, nil, encode(GroupEvent{Type: EventGroupCallEnded, GroupID: gid}))
	}
}

func (o *Orchestrator) GroupParticipants(gid domain.GroupID) []domain.Participant {
	return o.Groups.Participants(gid)
}

func (o *Orchestrator) GroupCallOffer(from, to domain.UserID, gid domain.GroupID, offer json.RawMessage) bool {
	return o.sendTo(to, EventGroupCallOffer, encode(GroupEvent{Type: EventGroupCallOffer, GroupID: gid, From: from, Offer: offer}))
}

func (o *Orchestrator) GroupCallAnswer(from, to domain.UserID, gid domain.GroupID, answer json.RawMessage) bool {
	return o.sendTo(to, EventGroupCallAnswer, encode(GroupEvent{Type: EventGroupCallAnswer, GroupID: gid, From: from, Answer: answer}))
}

func (o *Orchestrator) GroupCallICECandidate(from, to domain.UserID, gid domain.GroupID, candidate json.RawMessage) bool {
	return o.sendTo(to, EventGroupCallICECandidate, encode(GroupEvent{Type: EventGroupCallICECandidate, GroupID: gid, From: from, Candidate: candidate}))
}

func (o *Orchestrator) notifyParticipants(uids []domain.UserID, ev GroupEvent) {
	if len(uids) == 0 {
		return
	}
	frame := encode(ev)
	for _, uid := range uids {
		o.sendTo(uid, ev.Type, frame)
	}
}
