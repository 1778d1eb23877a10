// Package resilience provides the circuit breaker and provider failover
// primitives used around transcription and correction backends.
//
// Both backends are called from a batch queue drain, not a request path: a
// provider that is down tends to stay down for whole drain cycles, and every
// wasted call delays the rest of the batch by a full HTTP timeout. The
// [CircuitBreaker] here therefore trips quickly and re-probes with a single
// trial call per cooldown instead of a probe budget. [FallbackGroup] composes
// multiple instances of any provider type with per-entry breakers so a
// tripped primary is bypassed in favour of healthy fallbacks.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker is
// open and its cooldown has not elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the cooldown
	// elapses.
	StateOpen

	// StateHalfOpen admits a single trial call. Success closes the breaker,
	// failure re-opens it for another cooldown.
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

// CircuitBreakerConfig holds the tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name labels the breaker in log messages.
	Name string

	// Trip is the number of consecutive failures that opens the breaker. In
	// a queue drain one item's failure predicts the next item's, so the
	// default is a low 3.
	Trip int

	// Cooldown is how long the breaker stays open before admitting a trial
	// call. The default of 2 minutes spans a few drain intervals, long
	// enough for a restarted backend to come up. Default: 2m.
	Cooldown time.Duration
}

// CircuitBreaker trips after consecutive failures and, once its cooldown has
// elapsed, admits one trial call at a time until a success closes it again.
type CircuitBreaker struct {
	name     string
	trip     int
	cooldown time.Duration

	mu       sync.Mutex
	failures int
	openedAt time.Time
	tripped  bool
	probing  bool
}

// NewCircuitBreaker creates a breaker from cfg, substituting defaults for
// zero-value fields.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.Trip <= 0 {
		cfg.Trip = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 2 * time.Minute
	}
	return &CircuitBreaker{
		name:     cfg.Name,
		trip:     cfg.Trip,
		cooldown: cfg.Cooldown,
	}
}

// Execute runs fn unless the breaker is open inside its cooldown, in which
// case it returns [ErrCircuitOpen] without calling fn. After the cooldown one
// call at a time is let through as a trial; its outcome decides whether the
// breaker closes or re-opens.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	if cb.tripped {
		if time.Since(cb.openedAt) < cb.cooldown || cb.probing {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.probing = true
		slog.Info("circuit breaker admitting trial call", "name", cb.name)
	}
	trial := cb.probing
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.onFailure(trial)
	} else {
		cb.onSuccess(trial)
	}
	return err
}

// onFailure must be called with cb.mu held.
func (cb *CircuitBreaker) onFailure(trial bool) {
	if trial {
		// The backend is still down; restart the cooldown.
		cb.openedAt = time.Now()
		cb.probing = false
		slog.Warn("circuit breaker re-opened after failed trial", "name", cb.name)
		return
	}
	cb.failures++
	if !cb.tripped && cb.failures >= cb.trip {
		cb.tripped = true
		cb.openedAt = time.Now()
		slog.Warn("circuit breaker opened",
			"name", cb.name, "consecutive_failures", cb.failures)
	}
}

// onSuccess must be called with cb.mu held.
func (cb *CircuitBreaker) onSuccess(trial bool) {
	cb.failures = 0
	if trial {
		cb.tripped = false
		cb.probing = false
		slog.Info("circuit breaker closed after successful trial", "name", cb.name)
	}
}

// State reports the breaker's mode. An open breaker whose cooldown has
// elapsed reports [StateHalfOpen]; the trial call itself starts on the next
// [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch {
	case !cb.tripped:
		return StateClosed
	case cb.probing || time.Since(cb.openedAt) >= cb.cooldown:
		return StateHalfOpen
	default:
		return StateOpen
	}
}

// Reset forces the breaker back to closed and clears the failure count.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.tripped = false
	cb.probing = false
	cb.failures = 0
	slog.Info("circuit breaker manually reset", "name", cb.name)
}
