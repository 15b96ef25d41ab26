package signal

import (
	"encoding/json"
	"errors"

	"github.com/dkeye/huddle/internal/domain"
)

var errRateLimited = errors.New("rate limited")

type callPayload struct {
	UserToCall domain.UserID   `json:"userToCall"`
	To         domain.UserID   `json:"to"`
	SignalData json.RawMessage `json:"signalData"`
	Signal     json.RawMessage `json:"signal"`
	Candidate  json.RawMessage `json:"candidate"`
	CallType   string          `json:"callType"`
	Reason     string          `json:"reason"`
}

// target accepts both field names clients use for the callee.
func (p callPayload) target() domain.UserID {
	if p.UserToCall != "" {
		return p.UserToCall
	}
	return p.To
}

type delivered struct {
	Delivered bool `json:"delivered"`
}

func (ctl *SignalWSController) handleCallUser(c *WsSignalConn, env envelope, data []byte) {
	if !ctl.limiter.Allow(c.uid) {
		ctl.replyError(c, env.ReqID, errRateLimited)
		return
	}
	var p callPayload
	if !ctl.decode(c, env, data, &p) {
		return
	}
	ctl.reply(c, env, delivered{ctl.Orch.CallUser(c.uid, p.target(), p.SignalData, p.CallType)})
}

func (ctl *SignalWSController) handleAnswerCall(c *WsSignalConn, env envelope, data []byte) {
	var p callPayload
	if !ctl.decode(c, env, data, &p) {
		return
	}
	ctl.reply(c, env, delivered{ctl.Orch.AnswerCall(c.uid, p.target(), p.Signal)})
}

func (ctl *SignalWSController) handleICECandidate(c *WsSignalConn, env envelope, data []byte) {
	var p callPayload
	if !ctl.decode(c, env, data, &p) {
		return
	}
	ctl.reply(c, env, delivered{ctl.Orch.RelayICECandidate(c.uid, p.target(), p.Candidate)})
}

func (ctl *SignalWSController) handleEndCall(c *WsSignalConn, env envelope, data []byte) {
	var p callPayload
	if !ctl.decode(c, env, data, &p) {
		return
	}
	ctl.reply(c, env, delivered{ctl.Orch.EndCall(c.uid, p.target())})
}

func (ctl *SignalWSController) handleRejectCall(c *WsSignalConn, env envelope, data []byte) {
	var p callPayload
	if !ctl.decode(c, env, data, &p) {
		return
	}
	ctl.reply(c, env, delivered{ctl.Orch.RejectCall(c.uid, p.target(), p.Reason)})
}

type groupPayload struct {
	GroupID   domain.GroupID  `json:"groupId"`
	To        domain.UserID   `json:"to"`
	Offer     json.RawMessage `json:"offer"`
	Answer    json.RawMessage `json:"answer"`
	Candidate json.RawMessage `json:"candidate"`
}

type participants struct {
	GroupID      domain.GroupID       `json:"groupId"`
	Participants []domain.Participant `json:"participants"`
}

func (ctl *SignalWSController) handleGroupJoin(c *WsSignalConn, env envelope, data []byte) {
	var p groupPayload
	if !ctl.decode(c, env, data, &p) {
		return
	}
	if p.GroupID == "" {
		ctl.replyError(c, env.ReqID, errBadPayload)
		return
	}
	var list []domain.Participant
	if env.Type == "startGroupCall" {
		list = ctl.Orch.StartGroupCall(c, c.uid, p.GroupID)
	} else {
		list = ctl.Orch.JoinGroupCall(c.uid, p.GroupID)
	}
	ctl.reply(c, env, participants{GroupID: p.GroupID, Participants: list})
}

func (ctl *SignalWSController) handleGroupLeave(c *WsSignalConn, env envelope, data []byte) {
	var p groupPayload
	if !ctl.decode(c, env, data, &p) {
		return
	}
	ctl.Orch.LeaveGroupCall(c.uid, p.GroupID)
	ctl.reply(c, env, participants{GroupID: p.GroupID, Participants: ctl.Orch.GroupParticipants(p.GroupID)})
}

func (ctl *SignalWSController) handleGroupSignal(c *WsSignalConn, env envelope, data []byte) {
	var p groupPayload
	if !ctl.decode(c, env, data, &p) {
		return
	}
	var ok bool
	switch env.Type {
	case "groupCallOffer":
		ok = ctl.Orch.GroupCallOffer(c.uid, p.To, p.GroupID, p.Offer)
	case "groupCallAnswer":
		ok = ctl.Orch.GroupCallAnswer(c.uid, p.To, p.GroupID, p.Answer)
	default:
		ok = ctl.Orch.GroupCallICECandidate(c.uid, p.To, p.GroupID, p.Candidate)
	}
	ctl.reply(c, env, delivered{ok})
}

func (ctl *SignalWSController) handleGetParticipants(c *WsSignalConn, env envelope, data []byte) {
	var p groupPayload
	if !ctl.decode(c, env, data, &p) {
		return
	}
	ctl.reply(c, env, participants{GroupID: p.GroupID, Participants: ctl.Orch.GroupParticipants(p.GroupID)})
}
