package ratelimit

import (
	"context"
	"sync"
	"time"
)

// DefaultSweepInterval is used when the sweeper interval is unset.
const DefaultSweepInterval = 30 * time.Second

// Sweeper periodically removes expired entries from a Store, independent of
// request traffic.
type Sweeper struct {
	store    *Store
	interval time.Duration
	clock    func() time.Time

	// OnSweep is called after each pass with the number of removed entries and
	// the remaining store size.
	OnSweep func(removed, remaining int)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper creates a sweeper for store.
func NewSweeper(store *Store, interval time.Duration, clock func() time.Time) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{store: store, interval: interval, clock: clock}
}

// Interval returns the time between passes.
func (s *Sweeper) Interval() time.Duration {
	return s.interval
}

// RunOnce performs a single sweep at now.
func (s *Sweeper) RunOnce(now time.Time) int {
	removed := s.store.Sweep(now)
	if s.OnSweep != nil {
		s.OnSweep(removed, s.store.Len())
	}
	return removed
}

// Start launches the background loop. Calling Start on a running sweeper is a
// no-op. The loop exits when ctx is cancelled or Stop is called.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(loopCtx, s.done)
}

// Stop halts the background loop and waits for it to exit.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Sweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(s.now())
		}
	}
}

func (s *Sweeper) now() time.Time {
	if s.clock != nil {
		return s.clock()
	}
	return time.Now().UTC()
}
