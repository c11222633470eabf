package tutor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiterWindow(t *testing.T) {
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := &RateLimiter{
		Store: NewMemoryRateLimitStore(),
		Limits: map[string]RateLimit{
			"gemini": {RequestsPerWindow: 1, WindowDuration: time.Minute},
		},
		Clock: func() time.Time { return clock },
	}

	allowed, _, err := limiter.Allow(context.Background(), "gemini")
	require.NoError(t, err)
	require.True(t, allowed)

	require.NoError(t, limiter.Record(context.Background(), "gemini"))

	allowed, wait, err := limiter.Allow(context.Background(), "gemini")
	require.NoError(t, err)
	require.False(t, allowed)
	require.Equal(t, time.Minute, wait)

	clock = clock.Add(time.Minute)
	allowed, _, err = limiter.Allow(context.Background(), "gemini")
	require.NoError(t, err)
	require.True(t, allowed)

	require.NoError(t, limiter.Record(context.Background(), "gemini"))
	state, err := limiter.Store.GetRateLimit(context.Background(), "gemini")
	require.NoError(t, err)
	require.Equal(t, 1, state.RequestCount)
	require.Equal(t, clock, state.WindowStart)
}

func TestRateLimiterUnlimitedProvider(t *testing.T) {
	limiter := NewRateLimiter(Config{Providers: map[string]ProviderInstanceConfig{"gemini": {}}}, nil)
	for i := 0; i < 100; i++ {
		require.NoError(t, limiter.Record(context.Background(), "gemini"))
	}
	allowed, _, err := limiter.Allow(context.Background(), "gemini")
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestRateLimiterMargin(t *testing.T) {
	limiter := NewRateLimiter(Config{
		RateLimitMargin: 0.5,
		Providers: map[string]ProviderInstanceConfig{
			"gemini": {RequestsPerMinute: 10},
		},
	}, nil)

	limit, ok := limiter.getLimit("gemini")
	require.True(t, ok)
	require.Equal(t, 5, limit.RequestsPerWindow)
	require.Equal(t, time.Minute, limit.WindowDuration)

	limiter.Limits["tiny"] = RateLimit{RequestsPerWindow: 1, WindowDuration: time.Minute}
	limit, ok = limiter.getLimit("tiny")
	require.True(t, ok)
	require.Equal(t, 1, limit.RequestsPerWindow)
}

func TestAskRespectsProviderBudget(t *testing.T) {
	drv := &fakeDriver{text: "Answer"}
	svc := newTestService(t, drv)
	svc.Limiter = NewRateLimiter(Config{
		Providers: map[string]ProviderInstanceConfig{"gemini": {RequestsPerMinute: 1}},
	}, nil)

	_, err := svc.Ask(context.Background(), AskRequest{Prompt: "soil erosion", NoCache: true})
	require.NoError(t, err)

	_, err = svc.Ask(context.Background(), AskRequest{Prompt: "soil erosion", NoCache: true})
	var terr *Error
	require.True(t, errors.As(err, &terr))
	require.Equal(t, CodeProviderRateLimit, terr.Code)
	require.Equal(t, "gemini", terr.Provider)
	require.Equal(t, 1, drv.calls())
}

// slowRateStore adds latency between reading and writing a window.
type slowRateStore struct {
	*MemoryRateLimitStore
	delay time.Duration
}

func (s slowRateStore) GetRateLimit(ctx context.Context, provider string) (*RateLimitState, error) {
	time.Sleep(s.delay)
	return s.MemoryRateLimitStore.GetRateLimit(ctx, provider)
}

func TestRateLimiterAcquireIsAtomic(t *testing.T) {
	store := slowRateStore{MemoryRateLimitStore: NewMemoryRateLimitStore(), delay: time.Millisecond}
	limiter := NewRateLimiter(Config{
		Providers: map[string]ProviderInstanceConfig{"gemini": {RequestsPerMinute: 5}},
	}, store)

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed, _, err := limiter.Acquire(context.Background(), "gemini")
			if err == nil && allowed {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(5), admitted.Load())
	state, err := store.GetRateLimit(context.Background(), "gemini")
	require.NoError(t, err)
	require.Equal(t, 5, state.RequestCount)
}

func TestConcurrentAsksStayWithinBudget(t *testing.T) {
	drv := &fakeDriver{text: "Answer"}
	svc := newTestService(t, drv)
	svc.Limiter = NewRateLimiter(Config{
		Providers: map[string]ProviderInstanceConfig{"gemini": {RequestsPerMinute: 3}},
	}, slowRateStore{MemoryRateLimitStore: NewMemoryRateLimitStore(), delay: time.Millisecond})

	var limited atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Ask(context.Background(), AskRequest{Prompt: "drip irrigation", NoCache: true})
			var terr *Error
			if errors.As(err, &terr) && terr.Code == CodeProviderRateLimit {
				limited.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 3, drv.calls())
	require.Equal(t, int32(17), limited.Load())
}
