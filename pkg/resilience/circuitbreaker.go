// Package resilience guards crawl I/O: per-host circuit breakers for page
// fetches, a backoff retry for link discovery and a bounded call for
// storage writes that must not stall a crawl.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/juju/clock"
)

// ErrCircuitOpen is returned without calling the guarded function while a
// host's breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig applies to every host breaker of a Breakers set.
type BreakerConfig struct {
	// Threshold is the number of consecutive failures that opens the
	// breaker. Zero disables breaking.
	Threshold int
	Cooldown  time.Duration
	Clock     clock.Clock
	// Ignore reports errors that say nothing about the host, such as a
	// cancelled crawl. Defaults to context cancellation.
	Ignore func(err error) bool
	// OnStateChange runs with the breaker lock held and must not call back
	// into it.
	OnStateChange func(host string, to State)
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
	if c.Clock == nil {
		c.Clock = clock.WallClock
	}
	if c.Ignore == nil {
		c.Ignore = func(err error) bool { return errors.Is(err, context.Canceled) }
	}
	return c
}

// Breaker stops calls to one host after Threshold consecutive failures.
// After Cooldown a single probe is let through; its outcome closes or
// re-opens the breaker.
type Breaker struct {
	host     string
	cfg      BreakerConfig
	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
	logger   *slog.Logger
}

func NewBreaker(host string, cfg BreakerConfig) *Breaker {
	return &Breaker{
		host:   host,
		cfg:    cfg.withDefaults(),
		logger: slog.Default().With("component", "circuit-breaker", "host", host),
	}
}

func (b *Breaker) Execute(fn func() error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := fn()
	b.record(err)
	return err
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateOpen:
		wait := b.cfg.Cooldown - b.cfg.Clock.Now().Sub(b.openedAt)
		if wait > 0 {
			return fmt.Errorf("%w: %s (retry in %v)", ErrCircuitOpen, b.host, wait.Round(time.Millisecond))
		}
		b.transition(StateHalfOpen)
		b.probing = true
		b.logger.Info("probing host after cooldown", "cooldown", b.cfg.Cooldown)
	case StateHalfOpen:
		if b.probing {
			return fmt.Errorf("%w: %s (probe in flight)", ErrCircuitOpen, b.host)
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	wasProbe := b.state == StateHalfOpen
	b.probing = false

	if err != nil && b.cfg.Ignore(err) {
		return
	}
	if err == nil {
		if wasProbe {
			b.logger.Info("host recovered")
		}
		b.failures = 0
		b.transition(StateClosed)
		return
	}

	b.failures++
	if wasProbe || b.failures >= b.cfg.Threshold {
		if b.state != StateOpen {
			b.logger.Warn("host failing, opening breaker", "consecutive_failures", b.failures, "error", err)
		}
		b.openedAt = b.cfg.Clock.Now()
		b.transition(StateOpen)
	}
}

func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	b.state = to
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.host, to)
	}
}

// Breakers lazily creates one Breaker per host. A nil *Breakers runs every
// call unguarded.
type Breakers struct {
	cfg   BreakerConfig
	hosts sync.Map // host -> *Breaker
}

// NewBreakers returns nil when cfg.Threshold is not positive.
func NewBreakers(cfg BreakerConfig) *Breakers {
	if cfg.Threshold <= 0 {
		return nil
	}
	return &Breakers{cfg: cfg.withDefaults()}
}

func (s *Breakers) Execute(host string, fn func() error) error {
	if s == nil {
		return fn()
	}
	return s.For(host).Execute(fn)
}

func (s *Breakers) For(host string) *Breaker {
	if v, ok := s.hosts.Load(host); ok {
		return v.(*Breaker)
	}
	v, _ := s.hosts.LoadOrStore(host, NewBreaker(host, s.cfg))
	return v.(*Breaker)
}
