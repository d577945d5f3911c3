package middleware

import (
	"testing"
	"time"

	"engagement-ledger/pkg/config"

	"github.com/stretchr/testify/require"
)

func TestRateLimiterPerKey(t *testing.T) {
	rl := NewRateLimiter(RateLimit{RequestsPerMinute: 1, Burst: 2})

	require.True(t, rl.Allow("alice"))
	require.True(t, rl.Allow("alice"))
	require.False(t, rl.Allow("alice"))

	require.True(t, rl.Allow("bob"))
}

func TestRateLimiterEvictsIdleKeys(t *testing.T) {
	rl := NewRateLimiter(RateLimit{RequestsPerMinute: 1, Burst: 1})
	now := time.Now()
	rl.clockNow = func() time.Time { return now }

	require.True(t, rl.Allow("alice"))
	require.False(t, rl.Allow("alice"))

	now = now.Add(10 * time.Minute)
	require.True(t, rl.Allow("bob"))
	require.Len(t, rl.visitors, 1)
	require.True(t, rl.Allow("alice"))
}

func TestNewSubmitLimiterDefaults(t *testing.T) {
	rl := NewSubmitLimiter(&config.Config{})

	require.True(t, rl.Allow("alice"))
	require.False(t, rl.Allow("alice"))
}
