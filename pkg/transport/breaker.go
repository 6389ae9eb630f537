package transport

import (
	"sync"
	"time"

	"github.com/okian/broutes/pkg/metrics"
)

// State is the position of a CircuitBreaker.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

const (
	defaultBreakerThreshold = 5
	defaultBreakerCooldown  = 30 * time.Second
)

// CircuitBreaker refuses calls to a target once threshold consecutive calls
// have failed. After cooldown a single trial call is let through; its result
// decides whether the breaker closes again or waits another cooldown.
type CircuitBreaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu      sync.Mutex
	state   State
	streak  int
	retryAt time.Time
	trial   bool
}

// NewCircuitBreaker returns a closed breaker. Non-positive settings fall back
// to defaults.
func NewCircuitBreaker(name string, threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = defaultBreakerThreshold
	}
	if cooldown <= 0 {
		cooldown = defaultBreakerCooldown
	}
	cb := &CircuitBreaker{
		name:      name,
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
		state:     StateClosed,
	}
	metrics.SetCircuitBreakerState(name, string(StateClosed))
	return cb
}

// Execute calls fn when the breaker admits it and returns ErrCircuitOpen
// otherwise. A non-nil error from fn is counted against the target.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.admit() {
		return ErrCircuitOpen
	}
	err := fn()
	cb.settle(err == nil)
	return err
}

// State reports the current position.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) admit() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Before(cb.retryAt) {
			return false
		}
		cb.move(StateHalfOpen)
		cb.trial = true
		return true
	case StateHalfOpen:
		// one trial at a time
		if cb.trial {
			return false
		}
		cb.trial = true
		return true
	default:
		return true
	}
}

func (cb *CircuitBreaker) settle(ok bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	wasTrial := cb.state == StateHalfOpen && cb.trial
	cb.trial = false

	if ok {
		cb.streak = 0
		cb.move(StateClosed)
		return
	}
	cb.streak++
	switch {
	case wasTrial:
		metrics.RecordCircuitBreakerTrip(cb.name, "trial_failed")
		cb.move(StateOpen)
	case cb.state == StateClosed && cb.streak >= cb.threshold:
		metrics.RecordCircuitBreakerTrip(cb.name, "consecutive_failures")
		cb.move(StateOpen)
	}
}

// move must be called with mu held.
func (cb *CircuitBreaker) move(to State) {
	if to == StateOpen {
		cb.retryAt = cb.now().Add(cb.cooldown)
	}
	if cb.state == to {
		return
	}
	cb.state = to
	metrics.SetCircuitBreakerState(cb.name, string(to))
}
