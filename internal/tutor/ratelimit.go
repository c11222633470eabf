package tutor

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"
)

// RateLimitState is the request window for one provider.
type RateLimitState struct {
	RequestCount int
	WindowStart  time.Time
}

// RateLimit is a request budget per window.
type RateLimit struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// RateLimitStore persists rate limit state.
type RateLimitStore interface {
	GetRateLimit(ctx context.Context, provider string) (*RateLimitState, error)
	UpdateRateLimit(ctx context.Context, provider string, state *RateLimitState) error
}

// RateLimiter keeps provider calls inside their configured budgets. Calls to
// providers without a budget always pass. A RateLimiter is safe for
// concurrent use; budgets are exact within one process.
type RateLimiter struct {
	Store  RateLimitStore
	Limits map[string]RateLimit
	Clock  func() time.Time
	Margin float64

	mu sync.Mutex
}

// NewRateLimiter builds limits from each provider's requests_per_minute.
// A nil store keeps state in memory.
func NewRateLimiter(cfg Config, store RateLimitStore) *RateLimiter {
	if store == nil {
		store = NewMemoryRateLimitStore()
	}
	limits := make(map[string]RateLimit, len(cfg.Providers))
	for id, p := range cfg.Providers {
		if p.RequestsPerMinute > 0 {
			limits[id] = RateLimit{RequestsPerWindow: p.RequestsPerMinute, WindowDuration: time.Minute}
		}
	}
	limiter := &RateLimiter{Store: store, Limits: limits}
	limiter.ApplySafetyMargin(cfg.RateLimitMargin)
	return limiter
}

// Acquire checks provider's budget and, when a call is allowed, counts it in
// the same step. When refused it returns how long until the window resets.
func (r *RateLimiter) Acquire(ctx context.Context, provider string) (bool, time.Duration, error) {
	if r == nil || r.Store == nil {
		return true, 0, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	allowed, wait, err := r.allow(ctx, provider)
	if err != nil || !allowed {
		return allowed, wait, err
	}
	return true, 0, r.record(ctx, provider)
}

// Allow reports whether provider may be called now, and how long to wait if
// not. It does not count the call.
func (r *RateLimiter) Allow(ctx context.Context, provider string) (bool, time.Duration, error) {
	if r == nil || r.Store == nil {
		return true, 0, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.allow(ctx, provider)
}

// Record counts a call against provider's current window.
func (r *RateLimiter) Record(ctx context.Context, provider string) error {
	if r == nil || r.Store == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.record(ctx, provider)
}

func (r *RateLimiter) allow(ctx context.Context, provider string) (bool, time.Duration, error) {
	state, err := r.Store.GetRateLimit(ctx, provider)
	if err != nil {
		return true, 0, err
	}
	if state == nil {
		return true, 0, nil
	}

	now := r.now()
	limit, ok := r.getLimit(provider)
	if !ok {
		return true, 0, nil
	}
	windowEnd := state.WindowStart.Add(limit.WindowDuration)
	if !now.Before(windowEnd) {
		return true, 0, nil
	}
	if state.RequestCount >= limit.RequestsPerWindow {
		return false, windowEnd.Sub(now), nil
	}
	return true, 0, nil
}

func (r *RateLimiter) record(ctx context.Context, provider string) error {
	state, err := r.Store.GetRateLimit(ctx, provider)
	if err != nil {
		return err
	}
	now := r.now()
	if state == nil {
		state = &RateLimitState{WindowStart: now}
	}
	if limit, ok := r.getLimit(provider); ok && !now.Before(state.WindowStart.Add(limit.WindowDuration)) {
		state.RequestCount = 0
		state.WindowStart = now
	}
	if state.WindowStart.IsZero() {
		state.WindowStart = now
	}
	state.RequestCount++

	return r.Store.UpdateRateLimit(ctx, provider, state)
}

// ApplySafetyMargin scales every budget by margin, which must be in (0,1].
func (r *RateLimiter) ApplySafetyMargin(margin float64) {
	if r == nil || margin <= 0 || margin > 1 {
		return
	}
	r.Margin = margin
}

func (r *RateLimiter) getLimit(provider string) (RateLimit, bool) {
	limit, ok := r.Limits[strings.TrimSpace(provider)]
	if !ok || limit.RequestsPerWindow <= 0 || limit.WindowDuration <= 0 {
		return RateLimit{}, false
	}
	return r.applyMargin(limit), true
}

func (r *RateLimiter) now() time.Time {
	if r != nil && r.Clock != nil {
		return r.Clock()
	}
	return time.Now().UTC()
}

func (r *RateLimiter) applyMargin(limit RateLimit) RateLimit {
	if r.Margin <= 0 || r.Margin > 1 {
		return limit
	}
	adjusted := int(math.Floor(float64(limit.RequestsPerWindow) * r.Margin))
	if adjusted < 1 {
		adjusted = 1
	}
	limit.RequestsPerWindow = adjusted
	return limit
}

// MemoryRateLimitStore keeps rate limit state for the life of the process.
type MemoryRateLimitStore struct {
	mu    sync.Mutex
	state map[string]RateLimitState
}

func NewMemoryRateLimitStore() *MemoryRateLimitStore {
	return &MemoryRateLimitStore{state: map[string]RateLimitState{}}
}

func (m *MemoryRateLimitStore) GetRateLimit(_ context.Context, provider string) (*RateLimitState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.state[provider]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

func (m *MemoryRateLimitStore) UpdateRateLimit(_ context.Context, provider string, state *RateLimitState) error {
	if state == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		m.state = map[string]RateLimitState{}
	}
	m.state[provider] = *state
	return nil
}
