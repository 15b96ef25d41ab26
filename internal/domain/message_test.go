package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessageType(t *testing.T) {
	typ, err := ParseMessageType("")
	require.NoError(t, err)
	assert.Equal(t, MessageText, typ)

	typ, err = ParseMessageType("pdf")
	require.NoError(t, err)
	assert.Equal(t, MessagePDF, typ)

	_, err = ParseMessageType("gif")
	require.ErrorIs(t, err, ErrUnknownMessageType)
}

func TestNewMessage(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("attachment without caption", func(t *testing.T) {
		m, err := NewMessage("c1", "alice", "", "https://files/x.png", MessageImage, now)
		require.NoError(t, err)
		assert.Equal(t, "image", m.Content)
		assert.False(t, m.IsRead)
		assert.Equal(t, now, m.CreatedAt)
		assert.Len(t, string(m.ID), 26)
	})

	t.Run("ids sort by time", func(t *testing.T) {
		a, err := NewMessage("c1", "alice", "first", "", MessageText, now)
		require.NoError(t, err)
		b, err := NewMessage("c1", "alice", "second", "", MessageText, now.Add(time.Millisecond))
		require.NoError(t, err)
		assert.Less(t, string(a.ID), string(b.ID))
	})

	t.Run("too long", func(t *testing.T) {
		_, err := NewMessage("c1", "alice", strings.Repeat("x", MaxContentLen+1), "", MessageText, now)
		require.ErrorIs(t, err, ErrContentTooLong)
	})
}

func TestConversationMembers(t *testing.T) {
	c := &Conversation{Members: []UserID{"alice", "bob", "carol"}}
	assert.True(t, c.HasMember("bob"))
	assert.False(t, c.HasMember("dave"))
	assert.Equal(t, []UserID{"alice", "carol"}, c.Others("bob"))
}

func TestParseUserID(t *testing.T) {
	_, err := ParseUserID("")
	require.ErrorIs(t, err, ErrUserIDEmpty)
	_, err = ParseUserID(strings.Repeat("u", MaxUserIDLen+1))
	require.ErrorIs(t, err, ErrUserIDTooLong)
	uid, err := ParseUserID("bob")
	require.NoError(t, err)
	assert.Equal(t, UserID("bob"), uid)
}
