package orch

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallSignalingReachesPeer(t *testing.T) {
	h := newHarness(t, nil)
	a, b := h.connect(t, alice), h.connect(t, bob)
	offer := json.RawMessage(`{"type":"offer","sdp":"v=0..."}`)

	require.True(t, h.o.CallUser(alice, bob, offer, "video"))
	got := b.events(t, EventIncomingCall)
	require.Len(t, got, 1)
	assert.Equal(t, "alice", got[0]["from"])
	assert.Equal(t, "video", got[0]["callType"])
	assert.Equal(t, map[string]any{"type": "offer", "sdp": "v=0..."}, got[0]["offer"])

	require.True(t, h.o.AnswerCall(bob, alice, json.RawMessage(`{"sdp":"answer"}`)))
	require.True(t, h.o.RelayICECandidate(bob, alice, json.RawMessage(`{"candidate":"c1"}`)))
	require.True(t, h.o.EndCall(alice, bob))
	require.True(t, h.o.RejectCall(bob, alice, "busy"))

	assert.Len(t, a.events(t, EventCallAccepted), 1)
	assert.Len(t, a.events(t, EventICECandidate), 1)
	assert.Len(t, b.events(t, EventCallEnded), 1)
	rejected := a.events(t, EventCallRejected)
	require.Len(t, rejected, 1)
	assert.Equal(t, "busy", rejected[0]["reason"])
}

func TestCallToAbsentUserFailsOpen(t *testing.T) {
	h := newHarness(t, nil)
	a := h.connect(t, alice)

	assert.False(t, h.o.CallUser(alice, bob, json.RawMessage(`{}`), "audio"))
	assert.False(t, h.o.AnswerCall(alice, bob, json.RawMessage(`{}`)))
	assert.False(t, h.o.RelayICECandidate(alice, bob, json.RawMessage(`{}`)))
	assert.False(t, h.o.EndCall(alice, bob))
	assert.Zero(t, a.count(), "nothing is echoed back to the caller")
}
