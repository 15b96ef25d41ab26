package orch

import (
	"testing"

	"github.com/dkeye/huddle/internal/app"
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMessageDeliversOncePerConnection(t *testing.T) {
	h := newHarness(t, nil)
	conv := h.conversation(t, core.ConversationOptions{IsGroup: true, GroupName: "team"}, alice, bob, carol, dave)

	aliceConn := h.connect(t, alice)
	bobConn := h.connect(t, bob)
	carolConn := h.connect(t, carol)
	// dave is offline.

	require.NoError(t, h.o.JoinConversation(t.Context(), aliceConn, alice, conv.ID))
	require.NoError(t, h.o.JoinConversation(t.Context(), bobConn, bob, conv.ID))

	msg, err := h.o.SendMessage(t.Context(), alice, SendMessageRequest{ConversationID: conv.ID, Content: "hello"})
	require.NoError(t, err)
	assert.Equal(t, domain.MessageText, msg.Type)

	bobGot := bobConn.events(t, EventReceiveMessage)
	require.Len(t, bobGot, 1, "room subscriber is not served twice")
	assert.Equal(t, string(msg.ID), bobGot[0]["message"].(map[string]any)["id"])

	require.Len(t, carolConn.events(t, EventReceiveMessage), 1, "online member outside the room gets the direct copy")
	require.Len(t, aliceConn.events(t, EventReceiveMessage), 1, "author sees its own message through the room")

	stored := h.store.Messages(conv.ID)
	require.Len(t, stored, 1)
	assert.Equal(t, "hello", stored[0].Content)
}

func TestSendMessageAfterReconnectReachesNewConnection(t *testing.T) {
	h := newHarness(t, nil)
	conv := h.conversation(t, core.ConversationOptions{}, alice, bob)

	old := h.connect(t, bob)
	require.NoError(t, h.o.JoinConversation(t.Context(), old, bob, conv.ID))
	fresh := h.connect(t, bob)

	_, err := h.o.SendMessage(t.Context(), alice, SendMessageRequest{ConversationID: conv.ID, Content: "hi"})
	require.NoError(t, err)

	assert.Len(t, old.events(t, EventReceiveMessage), 1)
	assert.Len(t, fresh.events(t, EventReceiveMessage), 1)
}

func TestSendMessageRejects(t *testing.T) {
	h := newHarness(t, nil)
	conv := h.conversation(t, core.ConversationOptions{}, alice, bob)

	cases := []struct {
		name   string
		author domain.UserID
		req    SendMessageRequest
		want   error
	}{
		{"outsider", carol, SendMessageRequest{ConversationID: conv.ID, Content: "x"}, core.ErrNotConversationMember},
		{"unknown conversation", alice, SendMessageRequest{ConversationID: "nope", Content: "x"}, core.ErrConversationNotFound},
		{"no conversation", alice, SendMessageRequest{Content: "x"}, core.ErrInvalidMessage},
		{"bad type", alice, SendMessageRequest{ConversationID: conv.ID, Type: "gif"}, domain.ErrUnknownMessageType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.o.SendMessage(t.Context(), tc.author, tc.req)
			require.ErrorIs(t, err, tc.want)
		})
	}
	assert.Empty(t, h.store.Messages(conv.ID))
}

func TestAttachmentContentDefaultsToType(t *testing.T) {
	h := newHarness(t, nil)
	conv := h.conversation(t, core.ConversationOptions{}, alice, bob)
	msg, err := h.o.SendMessage(t.Context(), alice, SendMessageRequest{
		ConversationID: conv.ID,
		FileURL:        "https://files/a.pdf",
		Type:           "pdf",
	})
	require.NoError(t, err)
	assert.Equal(t, "pdf", msg.Content)
}

func TestJoinConversationChecksMembership(t *testing.T) {
	h := newHarness(t, nil)
	conv := h.conversation(t, core.ConversationOptions{}, alice, bob)
	c := h.connect(t, carol)

	err := h.o.JoinConversation(t.Context(), c, carol, conv.ID)
	require.ErrorIs(t, err, core.ErrNotConversationMember)
	_, ok := h.o.Rooms.Get(conv.ID)
	assert.False(t, ok)

	err = h.o.JoinConversation(t.Context(), c, carol, "missing")
	require.ErrorIs(t, err, core.ErrConversationNotFound)
}

func TestTypingSkipsSender(t *testing.T) {
	h := newHarness(t, nil)
	conv := h.conversation(t, core.ConversationOptions{}, alice, bob)
	a, b := h.connect(t, alice), h.connect(t, bob)
	require.NoError(t, h.o.JoinConversation(t.Context(), a, alice, conv.ID))
	require.NoError(t, h.o.JoinConversation(t.Context(), b, bob, conv.ID))

	h.o.Typing(a, alice, conv.ID, true)
	h.o.Typing(a, alice, conv.ID, false)

	assert.Empty(t, a.events(t, EventUserTyping))
	got := b.events(t, EventUserTyping)
	require.Len(t, got, 2)
	assert.Equal(t, true, got[0]["isTyping"])
	assert.Equal(t, false, got[1]["isTyping"])
	assert.Equal(t, "alice", got[0]["userId"])
}

func TestMarkMessagesRead(t *testing.T) {
	h := newHarness(t, nil)
	conv := h.conversation(t, core.ConversationOptions{}, alice, bob)
	a, b := h.connect(t, alice), h.connect(t, bob)
	require.NoError(t, h.o.JoinConversation(t.Context(), a, alice, conv.ID))

	for range 2 {
		_, err := h.o.SendMessage(t.Context(), alice, SendMessageRequest{ConversationID: conv.ID, Content: "x"})
		require.NoError(t, err)
	}
	n, err := h.o.MarkMessagesRead(t.Context(), bob, conv.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	got := a.events(t, EventMessagesMarkedRead)
	require.Len(t, got, 1)
	assert.Equal(t, "bob", got[0]["userId"])
	assert.Empty(t, b.events(t, EventMessagesMarkedRead), "read receipts only go to the room")

	_, err = h.o.MarkMessagesRead(t.Context(), bob, "missing")
	require.ErrorIs(t, err, core.ErrConversationNotFound)
}

func TestBackpressurePolicy(t *testing.T) {
	t.Run("kick", func(t *testing.T) {
		h := newHarness(t, nil)
		conv := h.conversation(t, core.ConversationOptions{}, alice, bob)
		b := h.connect(t, bob)
		require.NoError(t, h.o.JoinConversation(t.Context(), b, bob, conv.ID))
		b.full = true

		_, err := h.o.SendMessage(t.Context(), alice, SendMessageRequest{ConversationID: conv.ID, Content: "x"})
		require.NoError(t, err)
		assert.True(t, b.isClosed())
	})

	t.Run("drop", func(t *testing.T) {
		h := newHarness(t, app.DropPolicy{})
		conv := h.conversation(t, core.ConversationOptions{}, alice, bob)
		b := h.connect(t, bob)
		b.full = true

		_, err := h.o.SendMessage(t.Context(), alice, SendMessageRequest{ConversationID: conv.ID, Content: "x"})
		require.NoError(t, err)
		assert.False(t, b.isClosed())
		assert.Zero(t, b.count())
	})
}
