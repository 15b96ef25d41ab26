package orch

import (
	"context"

	"github.com/dkeye/huddle/internal/app/sfu"
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) CreateOrJoinRoom(roomID domain.RoomID, uid domain.UserID) (core.RTPCapabilities, error) {
	return o.Relay.CreateOrJoin(roomID, uid)
}

func (o *Orchestrator) RouterCapabilities(roomID domain.RoomID) (core.RTPCapabilities, error) {
	return o.Relay.Capabilities(roomID)
}

func (o *Orchestrator) CreateTransport(ctx context.Context, roomID domain.RoomID, uid domain.UserID) (core.TransportParams, error) {
	return o.Relay.CreateTransport(ctx, roomID, uid)
}

func (o *Orchestrator) ConnectTransport(ctx context.Context, roomID domain.RoomID, uid domain.UserID, params core.ConnectParams) error {
	return o.Relay.ConnectTransport(ctx, roomID, uid, params)
}

// Produce starts forwarding a stream of uid and announces it to every other peer of the room.
func (o *Orchestrator) Produce(ctx context.Context, roomID domain.RoomID, uid domain.UserID, kind core.MediaKind, params core.RTPParameters) (sfu.ProducerInfo, error) {
	info, others, err := o.Relay.Produce(ctx, roomID, uid, kind, params)
	if err != nil {
		return sfu.ProducerInfo{}, err
	}
	frame := encode(NewProducerEvent{
		Type:       EventNewProducer,
		RoomID:     roomID,
		ProducerID: info.ID,
		UserID:     uid,
		Kind:       info.Kind,
	})
	for _, peer := range others {
		o.sendTo(peer, EventNewProducer, frame)
	}
	return info, nil
}

func (o *Orchestrator) Consume(ctx context.Context, roomID domain.RoomID, uid domain.UserID, producerID string, caps core.RTPCapabilities) (core.ConsumerParams, error) {
	return o.Relay.Consume(ctx, roomID, uid, producerID, caps)
}

func (o *Orchestrator) Producers(roomID domain.RoomID) ([]sfu.ProducerInfo, error) {
	return o.Relay.Producers(roomID)
}

func (o *Orchestrator) CloseProducer(roomID domain.RoomID, uid domain.UserID, producerID string) error {
	return o.Relay.CloseProducer(roomID, uid, producerID)
}

func (o *Orchestrator) PauseConsumer(roomID domain.RoomID, uid domain.UserID, consumerID string) error {
	return o.Relay.SetConsumerPaused(roomID, uid, consumerID, true)
}

func (o *Orchestrator) ResumeConsumer(roomID domain.RoomID, uid domain.UserID, consumerID string) error {
	return o.Relay.SetConsumerPaused(roomID, uid, consumerID, false)
}

func (o *Orchestrator) LeaveRoom(roomID domain.RoomID, uid domain.UserID) error {
	return o.Relay.Leave(roomID, uid)
}

func (o *Orchestrator) onProducerClosed(ev sfu.ProducerClosed) {
	delivered := o.sendTo(ev.UserID, EventProducerClosed, encode(ProducerClosedEvent{
		Type:       EventProducerClosed,
		RoomID:     ev.RoomID,
		ConsumerID: ev.ConsumerID,
		ProducerID: ev.ProducerID,
	}))
	log.Debug().
		Str("module", "orch").
		Str("room", string(ev.RoomID)).
		Str("producer", ev.ProducerID).
		Str("consumer", ev.ConsumerID).
		Bool("delivered", delivered).
		Msg("producer closed")
}
