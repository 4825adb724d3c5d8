package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(maxRequests int, window time.Duration) *Limiter {
	return New(NewStore(window, 4), Options{MaxRequests: maxRequests})
}

func TestLimiterScenario(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter := newTestLimiter(100, 60000*time.Millisecond)

	var last Decision
	for i := 1; i <= 100; i++ {
		decision := limiter.Check("1.2.3.4", now)
		require.True(t, decision.Allowed, "call %d should be allowed", i)
		require.Equal(t, 100, decision.Limit)
		require.Equal(t, 100-i, decision.Remaining)
		require.Equal(t, now.Add(time.Minute), decision.Reset)
		last = decision
	}
	require.Equal(t, 0, last.Remaining)

	rejected := limiter.Check("1.2.3.4", now)
	require.False(t, rejected.Allowed)
	require.Equal(t, 0, rejected.Remaining)
	require.Equal(t, 100, rejected.Limit)
	require.Equal(t, last.Reset, rejected.Reset)
}

func TestLimiterRemainingStrictlyDecreases(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := newTestLimiter(5, time.Minute)

	previous := limiter.Limit()
	for i := 0; i < 5; i++ {
		decision := limiter.Check("client", now.Add(time.Duration(i)*time.Second))
		require.True(t, decision.Allowed)
		require.Equal(t, previous-1, decision.Remaining)
		previous = decision.Remaining
	}
}

func TestLimiterKeepsCountingPastLimit(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := newTestLimiter(2, time.Minute)

	for i := 0; i < 6; i++ {
		limiter.Check("10.0.0.1", now)
	}

	entry, ok := limiter.Store().Lookup("10.0.0.1")
	require.True(t, ok)
	assert.Equal(t, 6, entry.Count)

	decision := limiter.Check("10.0.0.1", now)
	assert.False(t, decision.Allowed)
	assert.Equal(t, 0, decision.Remaining)
}

func TestLimiterFreshWindowAfterReset(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := newTestLimiter(1, time.Minute)

	require.True(t, limiter.Check("client", now).Allowed)
	require.False(t, limiter.Check("client", now.Add(30*time.Second)).Allowed)

	later := now.Add(time.Minute)
	decision := limiter.Check("client", later)
	require.True(t, decision.Allowed)
	require.Equal(t, 0, decision.Remaining)
	require.Equal(t, later.Add(time.Minute), decision.Reset)

	entry, ok := limiter.Store().Lookup("client")
	require.True(t, ok)
	require.Equal(t, 1, entry.Count)
}

func TestLimiterIsolatesIdentities(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := newTestLimiter(3, time.Minute)

	for i := 0; i < 10; i++ {
		limiter.Check("noisy", now)
	}

	decision := limiter.Check("quiet", now)
	require.True(t, decision.Allowed)
	require.Equal(t, 2, decision.Remaining)
}

func TestLimiterUnknownIdentityBucket(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := newTestLimiter(2, time.Minute)

	limiter.Check("", now)
	limiter.Check("   ", now)
	decision := limiter.Check(UnknownIdentity, now)

	require.False(t, decision.Allowed)
	entry, ok := limiter.Store().Lookup(UnknownIdentity)
	require.True(t, ok)
	require.Equal(t, 3, entry.Count)
}

func TestLimiterConcurrentChecks(t *testing.T) {
	const (
		limit    = 100
		requests = 250
	)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := New(NewStore(time.Minute, 8), Options{MaxRequests: limit})

	var (
		allowed  atomic.Int64
		rejected atomic.Int64
		wg       sync.WaitGroup
		start    = make(chan struct{})
	)

	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if limiter.Check("1.2.3.4", now).Allowed {
				allowed.Add(1)
			} else {
				rejected.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Equal(t, int64(limit), allowed.Load())
	require.Equal(t, int64(requests-limit), rejected.Load())

	entry, ok := limiter.Store().Lookup("1.2.3.4")
	require.True(t, ok)
	require.Equal(t, requests, entry.Count)
}

func TestLimiterInlineSweep(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := New(NewStore(time.Minute, 4), Options{MaxRequests: 10, SweepMode: SweepInline})

	limiter.Check("stale", now)
	require.Equal(t, 1, limiter.Store().Len())

	limiter.Check("fresh", now.Add(2*time.Minute))

	_, ok := limiter.Store().Lookup("stale")
	require.False(t, ok)
	require.Equal(t, 1, limiter.Store().Len())
}

func TestLimiterDefaultsAndClock(t *testing.T) {
	fixed := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	limiter := New(nil, Options{Clock: func() time.Time { return fixed }})

	require.Equal(t, DefaultMaxRequests, limiter.Limit())
	require.Equal(t, DefaultWindow, limiter.Window())
	require.Equal(t, SweepPeriodic, limiter.SweepMode())

	decision := limiter.CheckNow("client")
	require.Equal(t, fixed.Add(DefaultWindow), decision.Reset)
	require.Equal(t, fixed.Add(DefaultWindow).UnixMilli(), decision.ResetMillis())
}

func TestLimiterObserver(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var (
		seen   []Identity
		counts []int
	)
	limiter := New(NewStore(time.Minute, 1), Options{
		MaxRequests: 1,
		Observer: func(id Identity, count int, decision Decision) {
			seen = append(seen, id)
			counts = append(counts, count)
		},
	})

	limiter.Check(" 1.2.3.4 ", now)
	limiter.Check("1.2.3.4", now)

	require.Equal(t, []Identity{"1.2.3.4", "1.2.3.4"}, seen)
	require.Equal(t, []int{1, 2}, counts)
}

func TestParseSweepMode(t *testing.T) {
	tests := []struct {
		input    string
		expected SweepMode
		wantErr  bool
	}{
		{"", SweepPeriodic, false},
		{"periodic", SweepPeriodic, false},
		{" Inline ", SweepInline, false},
		{"hourly", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			mode, err := ParseSweepMode(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.expected, mode)
		})
	}
}
