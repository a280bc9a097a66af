package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterAllowsUpToLimit(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)

	assert.True(t, rl.Allow("orders"))
	assert.True(t, rl.Allow("orders"))
	assert.True(t, rl.Allow("orders"))
	assert.False(t, rl.Allow("orders"), "fourth call in the window must be denied")
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)

	assert.True(t, rl.Allow("orders"))
	assert.False(t, rl.Allow("orders"))
	assert.True(t, rl.Allow("positions"), "other keys keep their own window")
}

func TestRateLimiterWindowExpiry(t *testing.T) {
	rl := NewRateLimiter(1, 20*time.Millisecond)

	assert.True(t, rl.Allow("orders"))
	assert.False(t, rl.Allow("orders"))

	time.Sleep(30 * time.Millisecond)
	assert.True(t, rl.Allow("orders"), "a new window opens after the span")
}

func TestRateLimiterReset(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)

	assert.True(t, rl.Allow("orders"))
	assert.False(t, rl.Allow("orders"))

	rl.Reset("orders")
	assert.True(t, rl.Allow("orders"))
}
