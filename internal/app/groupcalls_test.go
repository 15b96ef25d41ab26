package app

import (
	"testing"

	"github.com/dkeye/huddle/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupCallExistsWhileNonEmpty(t *testing.T) {
	g := NewGroupCalls()
	gid := domain.GroupID("g")

	others, created := g.Join(gid, "alice")
	assert.True(t, created)
	assert.Empty(t, others)

	others, created = g.Join(gid, "bob")
	assert.False(t, created)
	assert.Equal(t, []domain.UserID{"alice"}, others)

	_, _ = g.Join(gid, "bob")
	require.Len(t, g.Participants(gid), 2)
	assert.Equal(t, []domain.GroupID{gid}, g.CallsOf("bob"))

	remaining, ended := g.Leave(gid, "alice")
	assert.False(t, ended)
	assert.Equal(t, []domain.UserID{"bob"}, remaining)
	assert.True(t, g.Active(gid))

	_, ended = g.Leave(gid, "bob")
	assert.True(t, ended)
	assert.False(t, g.Active(gid))
	assert.Zero(t, g.Count())

	_, ended = g.Leave(gid, "bob")
	assert.False(t, ended, "leaving a missing call is a no-op")
}
