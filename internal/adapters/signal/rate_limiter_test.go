package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterWindow(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRateLimiter(2, time.Second)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("alice"))
	assert.True(t, rl.Allow("alice"))
	assert.False(t, rl.Allow("alice"))
	assert.True(t, rl.Allow("bob"), "limits are per user")

	now = now.Add(1100 * time.Millisecond)
	assert.True(t, rl.Allow("alice"))
}

func TestRateLimiterForget(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	assert.True(t, rl.Allow("alice"))
	assert.False(t, rl.Allow("alice"))
	rl.Forget("alice")
	assert.True(t, rl.Allow("alice"))
}

func TestRateLimiterDisabled(t *testing.T) {
	var nilLimiter *RateLimiter
	assert.True(t, nilLimiter.Allow("alice"))
	nilLimiter.Forget("alice")

	rl := NewRateLimiter(0, time.Second)
	for range 100 {
		assert.True(t, rl.Allow("alice"))
	}
}
