package signal

import (
	"context"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

type roomPayload struct {
	RoomID          domain.RoomID        `json:"roomId"`
	ProducerID      string               `json:"producerId"`
	ConsumerID      string               `json:"consumerId"`
	Kind            string               `json:"kind"`
	RTPParameters   core.RTPParameters   `json:"rtpParameters"`
	RTPCapabilities core.RTPCapabilities `json:"rtpCapabilities"`
	DTLSParameters  core.DTLSParameters  `json:"dtlsParameters"`
	ICEParameters   *core.ICEParameters  `json:"iceParameters"`
	ICECandidates   []core.ICECandidate  `json:"iceCandidates"`
}

func (ctl *SignalWSController) decodeRoom(c *WsSignalConn, env envelope, data []byte) (roomPayload, bool) {
	var p roomPayload
	if !ctl.decode(c, env, data, &p) {
		return p, false
	}
	if p.RoomID == "" {
		ctl.replyError(c, env.ReqID, errBadPayload)
		return p, false
	}
	return p, true
}

type capabilitiesReply struct {
	RoomID          domain.RoomID        `json:"roomId"`
	RTPCapabilities core.RTPCapabilities `json:"rtpCapabilities"`
}

func (ctl *SignalWSController) handleRoomCapabilities(c *WsSignalConn, env envelope, data []byte) {
	p, ok := ctl.decodeRoom(c, env, data)
	if !ok {
		return
	}
	var (
		caps core.RTPCapabilities
		err  error
	)
	if env.Type == "createOrJoinRoom" {
		caps, err = ctl.Orch.CreateOrJoinRoom(p.RoomID, c.uid)
	} else {
		caps, err = ctl.Orch.RouterCapabilities(p.RoomID)
	}
	if err != nil {
		ctl.replyError(c, env.ReqID, err)
		return
	}
	ctl.reply(c, env, capabilitiesReply{RoomID: p.RoomID, RTPCapabilities: caps})
}

func (ctl *SignalWSController) handleCreateTransport(ctx context.Context, c *WsSignalConn, env envelope, data []byte) {
	p, ok := ctl.decodeRoom(c, env, data)
	if !ok {
		return
	}
	params, err := ctl.Orch.CreateTransport(ctx, p.RoomID, c.uid)
	if err != nil {
		ctl.replyError(c, env.ReqID, err)
		return
	}
	log.Info().Str("module", "signal").Str("user", string(c.uid)).Str("room", string(p.RoomID)).Str("transport", params.ID).Msg("transport created")
	ctl.reply(c, env, params)
}

func (ctl *SignalWSController) handleConnectTransport(ctx context.Context, c *WsSignalConn, env envelope, data []byte) {
	p, ok := ctl.decodeRoom(c, env, data)
	if !ok {
		return
	}
	err := ctl.Orch.ConnectTransport(ctx, p.RoomID, c.uid, core.ConnectParams{
		DTLSParameters: p.DTLSParameters,
		ICEParameters:  p.ICEParameters,
		ICECandidates:  p.ICECandidates,
	})
	if err != nil {
		ctl.replyError(c, env.ReqID, err)
		return
	}
	ctl.reply(c, env, map[string]bool{"success": true})
}

func (ctl *SignalWSController) handleProduce(ctx context.Context, c *WsSignalConn, env envelope, data []byte) {
	p, ok := ctl.decodeRoom(c, env, data)
	if !ok {
		return
	}
	kind, err := core.ParseMediaKind(p.Kind)
	if err != nil {
		ctl.replyError(c, env.ReqID, err)
		return
	}
	info, err := ctl.Orch.Produce(ctx, p.RoomID, c.uid, kind, p.RTPParameters)
	if err != nil {
		ctl.replyError(c, env.ReqID, err)
		return
	}
	ctl.reply(c, env, map[string]string{"producerId": info.ID})
}

func (ctl *SignalWSController) handleConsume(ctx context.Context, c *WsSignalConn, env envelope, data []byte) {
	p, ok := ctl.decodeRoom(c, env, data)
	if !ok {
		return
	}
	params, err := ctl.Orch.Consume(ctx, p.RoomID, c.uid, p.ProducerID, p.RTPCapabilities)
	if err != nil {
		ctl.replyError(c, env.ReqID, err)
		return
	}
	ctl.reply(c, env, params)
}

func (ctl *SignalWSController) handleGetProducers(c *WsSignalConn, env envelope, data []byte) {
	p, ok := ctl.decodeRoom(c, env, data)
	if !ok {
		return
	}
	list, err := ctl.Orch.Producers(p.RoomID)
	if err != nil {
		ctl.replyError(c, env.ReqID, err)
		return
	}
	ctl.reply(c, env, map[string]any{"roomId": p.RoomID, "producers": list})
}

func (ctl *SignalWSController) handleCloseProducer(c *WsSignalConn, env envelope, data []byte) {
	p, ok := ctl.decodeRoom(c, env, data)
	if !ok {
		return
	}
	if err := ctl.Orch.CloseProducer(p.RoomID, c.uid, p.ProducerID); err != nil {
		ctl.replyError(c, env.ReqID, err)
		return
	}
	ctl.reply(c, env, map[string]string{"producerId": p.ProducerID})
}

func (ctl *SignalWSController) handleConsumerPause(c *WsSignalConn, env envelope, data []byte) {
	p, ok := ctl.decodeRoom(c, env, data)
	if !ok {
		return
	}
	var err error
	if env.Type == "pauseConsumer" {
		err = ctl.Orch.PauseConsumer(p.RoomID, c.uid, p.ConsumerID)
	} else {
		err = ctl.Orch.ResumeConsumer(p.RoomID, c.uid, p.ConsumerID)
	}
	if err != nil {
		ctl.replyError(c, env.ReqID, err)
		return
	}
	ctl.reply(c, env, map[string]any{"consumerId": p.ConsumerID, "paused": env.Type == "pauseConsumer"})
}

func (ctl *SignalWSController) handleLeaveRoom(c *WsSignalConn, env envelope, data []byte) {
	p, ok := ctl.decodeRoom(c, env, data)
	if !ok {
		return
	}
	if err := ctl.Orch.LeaveRoom(p.RoomID, c.uid); err != nil {
		ctl.replyError(c, env.ReqID, err)
		return
	}
	ctl.reply(c, env, map[string]any{"roomId": p.RoomID})
}
