// Package resilience shields the dialogue loop from flaky upstream
// providers. A Breaker is a three-state circuit breaker (closed, open,
// half-open); Guarded providers wrap the LLM and synthesis backends so
// a dead vendor fails fast instead of eating the per-turn budget.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned without calling the wrapped function while the
// breaker is open.
var ErrOpen = errors.New("resilience: circuit open")

// BreakerConfig tunes a Breaker. Zero fields use the defaults.
type BreakerConfig struct {
	// Name labels the breaker in logs.
	Name string

	// Trip is the consecutive failure count that opens the breaker.
	// Default 5.
	Trip int

	// Cooldown is how long the breaker stays open before probing.
	// Default 30s.
	Cooldown time.Duration

	// Probes is how many half-open calls must succeed to close again.
	// Default 2.
	Probes int

	Logger *slog.Logger
}

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

// Breaker is a consecutive-failure circuit breaker.
type Breaker struct {
	name     string
	trip     int
	cooldown time.Duration
	probes   int
	log      *slog.Logger

	mu       sync.Mutex
	state    breakerState
	failures int
	openedAt time.Time
	probeOK  int
}

// NewBreaker builds a Breaker from cfg.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Trip <= 0 {
		cfg.Trip = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 2
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Breaker{
		name:     cfg.Name,
		trip:     cfg.Trip,
		cooldown: cfg.Cooldown,
		probes:   cfg.Probes,
		log:      cfg.Logger,
	}
}

// Do runs fn unless the breaker is open. The wrapped error passes
// through untouched so callers keep their errors.Is checks.
func (b *Breaker) Do(fn func() error) error {
	if !b.allow() {
		return ErrOpen
	}
	err := fn()
	b.record(err == nil)
	return err
}

// allow reports whether a call may proceed, moving open to half-open
// after the cooldown.
func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == stateOpen {
		if time.Since(b.openedAt) < b.cooldown {
			return false
		}
		b.state = stateHalfOpen
		b.probeOK = 0
		b.log.Info("circuit half-open", "name", b.name)
	}
	return true
}

func (b *Breaker) record(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !ok {
		b.failures++
		if b.state == stateHalfOpen || b.failures >= b.trip {
			if b.state != stateOpen {
				b.log.Warn("circuit opened", "name", b.name, "failures", b.failures)
			}
			b.state = stateOpen
			b.openedAt = time.Now()
		}
		return
	}

	switch b.state {
	case stateHalfOpen:
		b.probeOK++
		if b.probeOK >= b.probes {
			b.state = stateClosed
			b.failures = 0
			b.log.Info("circuit closed", "name", b.name)
		}
	default:
		b.failures = 0
	}
}

// Open reports whether calls are currently rejected.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == stateOpen && time.Since(b.openedAt) < b.cooldown
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = stateClosed
	b.failures = 0
	b.probeOK = 0
}
