package resilience

import (
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type CircuitState string

const (
	CircuitStateClosed   CircuitState = "closed"
	CircuitStateOpen     CircuitState = "open"
	CircuitStateHalfOpen CircuitState = "half_open"
)

// CircuitBreaker trips after consecutive failures and lets a bounded number of
// probes through once the open timeout elapses. A nil breaker is always closed.
type CircuitBreaker struct {
	mu sync.Mutex

	threshold   int
	openFor     time.Duration
	probeBudget int

	state     CircuitState
	failures  int
	openedAt  time.Time
	inFlight  int
	successes int
	now       func() time.Time
	onChange  func(from, to CircuitState)
}

func NewCircuitBreaker(failureThreshold int, openTimeout time.Duration, halfOpenMaxReq int) *CircuitBreaker {
	return &CircuitBreaker{
		threshold:   max(failureThreshold, 1),
		openFor:     cmpDuration(openTimeout, 15*time.Second),
		probeBudget: max(halfOpenMaxReq, 1),
		state:       CircuitStateClosed,
		now:         time.Now,
	}
}

// OnStateChange registers a hook invoked under the breaker lock; it must not block.
func (b *CircuitBreaker) OnStateChange(fn func(from, to CircuitState)) {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.onChange = fn
	b.mu.Unlock()
}

// Execute runs fn when the breaker admits it and records the outcome.
// Errors for which countable returns false do not trip the breaker.
func (b *CircuitBreaker) Execute(fn func() error, countable func(error) bool) error {
	if err := b.Allow(); err != nil {
		return err
	}
	err := fn()
	if err != nil && (countable == nil || countable(err)) {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return err
}

func (b *CircuitBreaker) Allow() error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == CircuitStateOpen {
		if b.now().Sub(b.openedAt) < b.openFor {
			return ErrCircuitOpen
		}
		b.transition(CircuitStateHalfOpen)
	}
	if b.state == CircuitStateHalfOpen {
		if b.inFlight >= b.probeBudget {
			return ErrCircuitOpen
		}
		b.inFlight++
	}
	return nil
}

func (b *CircuitBreaker) RecordSuccess() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitStateClosed:
		b.failures = 0
	case CircuitStateHalfOpen:
		b.inFlight = max(b.inFlight-1, 0)
		b.successes++
		if b.successes >= b.probeBudget && b.inFlight == 0 {
			b.transition(CircuitStateClosed)
		}
	}
}

func (b *CircuitBreaker) RecordFailure() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitStateClosed:
		b.failures++
		if b.failures >= b.threshold {
			b.transition(CircuitStateOpen)
		}
	case CircuitStateHalfOpen:
		b.transition(CircuitStateOpen)
	case CircuitStateOpen:
		b.openedAt = b.now()
	}
}

func (b *CircuitBreaker) State() CircuitState {
	if b == nil {
		return CircuitStateClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == CircuitStateOpen && b.now().Sub(b.openedAt) >= b.openFor {
		return CircuitStateHalfOpen
	}
	return b.state
}

func (b *CircuitBreaker) transition(to CircuitState) {
	from := b.state
	b.state = to
	b.inFlight = 0
	b.successes = 0
	switch to {
	case CircuitStateOpen:
		b.openedAt = b.now()
	case CircuitStateClosed:
		b.failures = 0
		b.openedAt = time.Time{}
	}
	if b.onChange != nil && from != to {
		b.onChange(from, to)
	}
}

func cmpDuration(v, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return v
}
