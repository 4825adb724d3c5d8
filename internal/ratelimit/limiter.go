package ratelimit

import (
	"fmt"
	"strings"
	"time"
)

// Defaults applied when options are left unset.
const (
	DefaultWindow      = 60 * time.Second
	DefaultMaxRequests = 100
)

// SweepMode selects when expired entries are reclaimed.
type SweepMode string

const (
	// SweepInline sweeps the whole store before every check.
	SweepInline SweepMode = "inline"
	// SweepPeriodic leaves reclamation to a background Sweeper.
	SweepPeriodic SweepMode = "periodic"
)

// ParseSweepMode normalizes a sweep mode string.
func ParseSweepMode(value string) (SweepMode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", string(SweepPeriodic):
		return SweepPeriodic, nil
	case string(SweepInline):
		return SweepInline, nil
	default:
		return "", fmt.Errorf("unsupported sweep mode: %s", value)
	}
}

// Decision is the admission outcome for a single request.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// ResetMillis returns the reset time as Unix epoch milliseconds.
func (d Decision) ResetMillis() int64 {
	return d.Reset.UnixMilli()
}

// Observer receives every decision together with the count that produced it.
type Observer func(id Identity, count int, decision Decision)

// Options configures a Limiter.
type Options struct {
	Window      time.Duration
	MaxRequests int
	SweepMode   SweepMode
	Clock       func() time.Time
	Observer    Observer
}

// Limiter applies fixed-window counting over a shared Store.
type Limiter struct {
	store       *Store
	maxRequests int
	sweepMode   SweepMode
	clock       func() time.Time
	observer    Observer
}

// New creates a limiter over store. The store's window is authoritative; a
// nil store is replaced by a fresh one sized from opts.
func New(store *Store, opts Options) *Limiter {
	if store == nil {
		store = NewStore(opts.Window, DefaultShards)
	}
	maxRequests := opts.MaxRequests
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	mode := opts.SweepMode
	if mode == "" {
		mode = SweepPeriodic
	}

	return &Limiter{
		store:       store,
		maxRequests: maxRequests,
		sweepMode:   mode,
		clock:       opts.Clock,
		observer:    opts.Observer,
	}
}

// Store exposes the underlying window store.
func (l *Limiter) Store() *Store {
	return l.store
}

// Limit returns the admission ceiling per window.
func (l *Limiter) Limit() int {
	return l.maxRequests
}

// Window returns the window size.
func (l *Limiter) Window() time.Duration {
	return l.store.Window()
}

// SweepMode returns the configured sweep mode.
func (l *Limiter) SweepMode() SweepMode {
	return l.sweepMode
}

// CheckNow runs Check using the limiter clock.
func (l *Limiter) CheckNow(id Identity) Decision {
	return l.Check(id, l.now())
}

// Check counts one request for id at now and decides whether it is admitted.
// Requests past the limit still count, so the window stays saturated until it
// resets.
func (l *Limiter) Check(id Identity, now time.Time) Decision {
	id = normalizeIdentity(id)

	if l.sweepMode == SweepInline {
		l.store.Sweep(now)
	}

	entry := l.store.Hit(id, now)

	decision := Decision{
		Allowed:   true,
		Limit:     l.maxRequests,
		Remaining: l.maxRequests - entry.Count,
		Reset:     entry.ResetTime,
	}
	if entry.Count > l.maxRequests {
		decision.Allowed = false
		decision.Remaining = 0
	}

	if l.observer != nil {
		l.observer(id, entry.Count, decision)
	}

	return decision
}

func (l *Limiter) now() time.Time {
	if l.clock != nil {
		return l.clock()
	}
	return time.Now().UTC()
}

func normalizeIdentity(id Identity) Identity {
	trimmed := strings.TrimSpace(string(id))
	if trimmed == "" {
		return UnknownIdentity
	}
	return Identity(trimmed)
}
