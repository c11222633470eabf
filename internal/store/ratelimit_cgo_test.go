//go:build cgo

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agritutor/agritutor/internal/tutor"
)

func TestRateLimitRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	state, err := s.GetRateLimit(ctx, "gemini")
	require.NoError(t, err)
	require.Nil(t, state)

	start := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpdateRateLimit(ctx, "gemini", &tutor.RateLimitState{RequestCount: 3, WindowStart: start}))

	state, err = s.GetRateLimit(ctx, "gemini")
	require.NoError(t, err)
	require.Equal(t, 3, state.RequestCount)
	require.Equal(t, start, state.WindowStart)

	require.NoError(t, s.UpdateRateLimit(ctx, "gemini", &tutor.RateLimitState{RequestCount: 4, WindowStart: start}))
	state, err = s.GetRateLimit(ctx, "gemini")
	require.NoError(t, err)
	require.Equal(t, 4, state.RequestCount)

	removed, err := s.ResetRateLimits(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)
}

func TestRateLimiterPersistsThroughStore(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	now := time.Now().UTC().Truncate(time.Second)
	limiter := tutor.NewRateLimiter(tutor.Config{
		Providers: map[string]tutor.ProviderInstanceConfig{"gemini": {RequestsPerMinute: 1}},
	}, s)
	limiter.Clock = func() time.Time { return now }

	require.NoError(t, limiter.Record(ctx, "gemini"))

	// A second process sees the spent budget.
	other := tutor.NewRateLimiter(tutor.Config{
		Providers: map[string]tutor.ProviderInstanceConfig{"gemini": {RequestsPerMinute: 1}},
	}, s)
	other.Clock = func() time.Time { return now.Add(10 * time.Second) }
	allowed, wait, err := other.Allow(ctx, "gemini")
	require.NoError(t, err)
	require.False(t, allowed)
	require.Equal(t, 50*time.Second, wait)
}
