package orch

import (
	"encoding/json"
	"testing"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupCallLifecycle(t *testing.T) {
	h := newHarness(t, nil)
	conv := h.conversation(t, core.ConversationOptions{IsGroup: true}, alice, bob, carol)
	gid := domain.GroupID(conv.ID)
	a, b, c := h.connect(t, alice), h.connect(t, bob), h.connect(t, carol)
	for uid, conn := range map[domain.UserID]*fakeConn{alice: a, bob: b, carol: c} {
		require.NoError(t, h.o.JoinConversation(t.Context(), conn, uid, conv.ID))
	}

	parts := h.o.StartGroupCall(a, alice, gid)
	require.Len(t, parts, 1)
	assert.True(t, h.o.Groups.Active(gid))
	assert.Empty(t, a.events(t, EventGroupCallStarted))
	assert.Len(t, b.events(t, EventGroupCallStarted), 1)
	assert.Len(t, c.events(t, EventGroupCallStarted), 1)

	parts = h.o.JoinGroupCall(bob, gid)
	require.Len(t, parts, 2)
	assert.Equal(t, alice, parts[0].UserID)
	joined := a.events(t, EventParticipantJoined)
	require.Len(t, joined, 1)
	assert.Equal(t, "bob", joined[0]["userId"])

	// Joining twice keeps one entry.
	h.o.JoinGroupCall(bob, gid)
	assert.Len(t, h.o.GroupParticipants(gid), 2)

	require.True(t, h.o.GroupCallOffer(alice, bob, gid, json.RawMessage(`{"sdp":"o"}`)))
	require.False(t, h.o.GroupCallAnswer(bob, dave, gid, json.RawMessage(`{"sdp":"a"}`)))
	require.True(t, h.o.GroupCallICECandidate(bob, alice, gid, json.RawMessage(`{"candidate":"x"}`)))
	assert.Len(t, b.events(t, EventGroupCallOffer), 1)
	assert.Len(t, a.events(t, EventGroupCallICECandidate), 1)

	h.o.LeaveGroupCall(alice, gid)
	left := b.events(t, EventParticipantLeft)
	require.Len(t, left, 1)
	assert.Equal(t, "alice", left[0]["userId"])
	assert.True(t, h.o.Groups.Active(gid))

	h.o.LeaveGroupCall(bob, gid)
	assert.False(t, h.o.Groups.Active(gid), "empty call is deleted")
	assert.Empty(t, h.o.GroupParticipants(gid))
	assert.Len(t, c.events(t, EventGroupCallEnded), 1)
}

func TestDisconnectLeavesGroupCalls(t *testing.T) {
	h := newHarness(t, nil)
	gid := domain.GroupID("g1")
	a, b := h.connect(t, alice), h.connect(t, bob)
	h.o.StartGroupCall(a, alice, gid)
	h.o.JoinGroupCall(bob, gid)

	h.o.Disconnect(t.Context(), bob, b)
	assert.Len(t, a.events(t, EventParticipantLeft), 1)
	assert.Len(t, h.o.GroupParticipants(gid), 1)

	h.o.Disconnect(t.Context(), alice, a)
	assert.False(t, h.o.Groups.Active(gid))
}
