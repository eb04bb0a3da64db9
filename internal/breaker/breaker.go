// Package breaker implements a per-service circuit breaker. It bounds the
// latency cost of a degraded dependency by fast-failing to a fallback
// instead of hammering an operation that keeps failing.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the breaker refuses a call without
// invoking the underlying operation.
var ErrCircuitOpen = errors.New("circuit open")

// State is the breaker state machine position.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

const (
	DefaultFailureThreshold = 5
	DefaultCooldown         = 60 * time.Second
)

// Operation is the guarded call. Fallback produces a substitute result when
// the circuit is open or the operation fails.
type (
	Operation func(ctx context.Context) (any, error)
	Fallback  func(ctx context.Context, cause error) (any, error)
)

// Breaker guards one named service. State transitions follow the legal
// edges only: CLOSED->OPEN at the failure threshold, OPEN->HALF_OPEN after
// the cooldown, HALF_OPEN->CLOSED on probe success, HALF_OPEN->OPEN on
// probe failure.
type Breaker struct {
	name             string
	failureThreshold int
	cooldown         time.Duration
	logger           *slog.Logger

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	openedAt            time.Time
	probing             bool

	// now is replaceable for tests.
	now func() time.Time
}

// New creates a breaker for the named service.
func New(name string, failureThreshold int, cooldown time.Duration, logger *slog.Logger) *Breaker {
	if failureThreshold < 1 {
		failureThreshold = DefaultFailureThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Breaker{
		name:             name,
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
		logger:           logger,
		state:            StateClosed,
		now:              time.Now,
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute runs op under the breaker. On an open circuit or an op failure
// the fallback is invoked and its result returned; with no fallback the
// error propagates.
func (b *Breaker) Execute(ctx context.Context, op Operation, fallback Fallback) (any, error) {
	if err := b.admit(); err != nil {
		if fallback != nil {
			return fallback(ctx, err)
		}
		return nil, err
	}

	result, err := op(ctx)
	b.record(err)

	if err != nil {
		if fallback != nil {
			return fallback(ctx, err)
		}
		return nil, err
	}
	return result, nil
}

// admit decides whether a call may proceed, performing the OPEN->HALF_OPEN
// transition when the cooldown has elapsed. In HALF_OPEN exactly one probe
// is admitted; concurrent callers fail fast.
func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return fmt.Errorf("%w: service %s cooling down", ErrCircuitOpen, b.name)
		}
		b.state = StateHalfOpen
		b.probing = true
		b.logger.Info("circuit half-open, admitting probe", "service", b.name)
		return nil
	case StateHalfOpen:
		if b.probing {
			return fmt.Errorf("%w: service %s probe in flight", ErrCircuitOpen, b.name)
		}
		b.probing = true
		return nil
	default:
		return fmt.Errorf("%w: service %s in unknown state", ErrCircuitOpen, b.name)
	}
}

func (b *Breaker) record(opErr error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.probing = false
		if opErr == nil {
			b.state = StateClosed
			b.consecutiveFailures = 0
			b.logger.Info("circuit closed after successful probe", "service", b.name)
		} else {
			b.state = StateOpen
			b.openedAt = b.now()
			b.logger.Warn("probe failed, circuit reopened", "service", b.name, "error", opErr)
		}
	case StateClosed:
		if opErr == nil {
			b.consecutiveFailures = 0
			return
		}
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.failureThreshold {
			b.state = StateOpen
			b.openedAt = b.now()
			b.logger.Warn("circuit opened",
				"service", b.name,
				"consecutive_failures", b.consecutiveFailures)
		}
	}
}

// Registry holds one breaker per service name, shared across callers for
// the process lifetime.
type Registry struct {
	mu               sync.Mutex
	breakers         map[string]*Breaker
	failureThreshold int
	cooldown         time.Duration
	logger           *slog.Logger
}

// NewRegistry creates a registry with shared breaker settings.
func NewRegistry(failureThreshold int, cooldown time.Duration, logger *slog.Logger) *Registry {
	return &Registry{
		breakers:         make(map[string]*Breaker),
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
		logger:           logger,
	}
}

// Get returns the breaker for service, creating it on first use.
func (r *Registry) Get(service string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[service]
	if !ok {
		b = New(service, r.failureThreshold, r.cooldown, r.logger)
		r.breakers[service] = b
	}
	return b
}
