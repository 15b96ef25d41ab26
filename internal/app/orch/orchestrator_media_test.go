package orch

import (
	"testing"

	"github.com/dkeye/huddle/internal/app/sfu/sfutest"
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const room1 domain.RoomID = "room1"

var clientDTLS = core.ConnectParams{DTLSParameters: core.DTLSParameters{
	Role:         "client",
	Fingerprints: []core.DTLSFingerprint{{Algorithm: "sha-256", Value: "01:02"}},
}}

func (h *harness) joinRelay(t *testing.T, uid domain.UserID) {
	t.Helper()
	_, err := h.o.CreateOrJoinRoom(room1, uid)
	require.NoError(t, err)
	_, err = h.o.CreateTransport(t.Context(), room1, uid)
	require.NoError(t, err)
	require.NoError(t, h.o.ConnectTransport(t.Context(), room1, uid, clientDTLS))
}

func TestProduceAnnouncesAndConsumeFollows(t *testing.T) {
	h := newHarness(t, nil)
	a, b := h.connect(t, alice), h.connect(t, bob)
	h.joinRelay(t, alice)
	h.joinRelay(t, bob)

	caps, err := h.o.RouterCapabilities(room1)
	require.NoError(t, err)
	require.Len(t, caps.Codecs, 2)

	info, err := h.o.Produce(t.Context(), room1, alice, core.KindAudio, sfutest.Opus())
	require.NoError(t, err)

	announced := b.events(t, EventNewProducer)
	require.Len(t, announced, 1)
	assert.Equal(t, info.ID, announced[0]["producerId"])
	assert.Equal(t, "alice", announced[0]["userId"])
	assert.Equal(t, "audio", announced[0]["kind"])
	assert.Empty(t, a.events(t, EventNewProducer), "the producer is not told about itself")

	cons, err := h.o.Consume(t.Context(), room1, bob, info.ID, sfutest.ClientCaps())
	require.NoError(t, err)
	assert.Equal(t, info.ID, cons.ProducerID)

	require.NoError(t, h.o.PauseConsumer(room1, bob, cons.ID))
	require.NoError(t, h.o.ResumeConsumer(room1, bob, cons.ID))

	producers, err := h.o.Producers(room1)
	require.NoError(t, err)
	require.Len(t, producers, 1)

	require.NoError(t, h.o.CloseProducer(room1, alice, info.ID))
	closed := b.events(t, EventProducerClosed)
	require.Len(t, closed, 1)
	assert.Equal(t, cons.ID, closed[0]["consumerId"])
	assert.Equal(t, info.ID, closed[0]["producerId"])
	assert.Equal(t, "room1", closed[0]["roomId"])
}

func TestMediaErrors(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.o.RouterCapabilities("nope")
	require.ErrorIs(t, err, core.ErrRoomNotFound)
	_, err = h.o.Consume(t.Context(), "nope", bob, "p", sfutest.ClientCaps())
	require.ErrorIs(t, err, core.ErrRoomNotFound)

	_, err = h.o.CreateOrJoinRoom(room1, alice)
	require.NoError(t, err)
	_, err = h.o.Produce(t.Context(), room1, alice, core.KindAudio, sfutest.Opus())
	require.ErrorIs(t, err, core.ErrTransportNotFound)
	_, err = h.o.Consume(t.Context(), room1, alice, "missing", sfutest.ClientCaps())
	require.ErrorIs(t, err, core.ErrProducerNotFound)
}

func TestDisconnectReleasesRelayResources(t *testing.T) {
	h := newHarness(t, nil)
	a, b := h.connect(t, alice), h.connect(t, bob)
	h.joinRelay(t, alice)
	h.joinRelay(t, bob)

	info, err := h.o.Produce(t.Context(), room1, alice, core.KindVideo, sfutest.VP8())
	require.NoError(t, err)
	cons, err := h.o.Consume(t.Context(), room1, bob, info.ID, sfutest.ClientCaps())
	require.NoError(t, err)

	// A superseded connection closing must not touch the live session.
	stale := &fakeConn{}
	h.o.Connect(t.Context(), alice, stale)
	h.o.Connect(t.Context(), alice, a)
	h.o.Disconnect(t.Context(), alice, stale)
	require.Len(t, h.o.Relay.List(), 1)
	assert.Empty(t, b.events(t, EventProducerClosed))

	h.o.Disconnect(t.Context(), alice, a)
	closed := b.events(t, EventProducerClosed)
	require.Len(t, closed, 1)
	assert.Equal(t, cons.ID, closed[0]["consumerId"])

	rooms := h.o.Relay.List()
	require.Len(t, rooms, 1)
	assert.Equal(t, []domain.UserID{bob}, rooms[0].Peers)
	assert.True(t, h.engine.Transports()[0].Closed(), "alice's transport is closed")

	h.o.Disconnect(t.Context(), bob, b)
	assert.Empty(t, h.o.Relay.List())
	assert.False(t, h.o.Registry.IsOnline(alice))
}
