// Package concurrency holds the circuit breaker shared by every
// remote call the ranking pipeline makes to the ML model service.
package concurrency

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// State is one of the three circuit breaker states.
type State int32

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateHalfOpen:
		return "HALF_OPEN"
	case StateOpen:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

var (
	ErrCircuitOpen       = errors.New("circuit breaker is open")
	ErrCallTimeout       = errors.New("circuit breaker call timed out")
	ErrHalfOpenExhausted = errors.New("half-open probe budget exhausted")
)

// Config controls when the breaker trips and how it probes recovery.
type Config struct {
	// WindowSize is the number of most recent call outcomes the
	// failure rate is computed over. Must be >= MinWindowForTrip for
	// the rate to be meaningful.
	WindowSize int
	// MinWindowForTrip is the minimum number of recorded calls before
	// the failure rate is allowed to trip the breaker (spec: N>=20).
	MinWindowForTrip int
	// FailureRateThreshold trips CLOSED->OPEN once the rolling failure
	// rate reaches this fraction (spec: 0.5).
	FailureRateThreshold float64
	// OpenTimeout is how long the breaker stays OPEN before allowing a
	// probe into HALF_OPEN (spec: 30s).
	OpenTimeout time.Duration
	// CallTimeout bounds a single Execute call, independent of state.
	CallTimeout time.Duration
	// HalfOpenMaxProbes is the number of calls let through while
	// HALF_OPEN (spec: "K probe calls").
	HalfOpenMaxProbes int64
	// HalfOpenSuccessRatio is the success fraction over the probe
	// batch required to return to CLOSED.
	HalfOpenSuccessRatio float64
}

// DefaultConfig returns the production tuning for the ML client breakers.
func DefaultConfig() *Config {
	return &Config{
		WindowSize:           50,
		MinWindowForTrip:     20,
		FailureRateThreshold: 0.5,
		OpenTimeout:          30 * time.Second,
		CallTimeout:          2 * time.Second,
		HalfOpenMaxProbes:    5,
		HalfOpenSuccessRatio: 0.5,
	}
}

// Func is the protected operation. Its result is opaque to the
// breaker; only the error determines success/failure bookkeeping.
type Func func(context.Context) (interface{}, error)

// Fallback runs when the breaker is open or the call failed/timed
// out, and receives the triggering error.
type Fallback func(context.Context, error) (interface{}, error)

// CircuitBreaker implements the CLOSED -> OPEN -> HALF_OPEN -> CLOSED
// state machine. It trips on a rolling failure rate
// rather than a raw counter, so a long-lived CLOSED breaker doesn't
// permanently remember failures from hours ago.
type CircuitBreaker struct {
	name   string
	logger *zap.Logger
	cfg    *Config

	mu          sync.Mutex
	state       int32
	changedAt   int64
	outcomes    []bool // ring buffer of recent outcomes, true = success
	outcomeHead int

	halfOpenProbes    int64
	halfOpenSuccesses int64

	fallback Fallback
}

// NewCircuitBreaker creates a breaker in the CLOSED state.
func NewCircuitBreaker(name string, cfg *Config, log *zap.Logger) *CircuitBreaker {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CircuitBreaker{
		name:      name,
		logger:    log,
		cfg:       cfg,
		state:     int32(StateClosed),
		changedAt: time.Now().Unix(),
		outcomes:  make([]bool, 0, cfg.WindowSize),
	}
}

// SetFallback installs the fallback invoked on open/timeout/failure.
func (cb *CircuitBreaker) SetFallback(fb Fallback) {
	cb.fallback = fb
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() State {
	return State(atomic.LoadInt32(&cb.state))
}

// Execute runs fn under breaker protection. If the breaker is open,
// or fn fails/times out and a fallback is installed, the fallback's
// result is returned instead of an error.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn Func) (interface{}, error) {
	if !cb.allow() {
		if cb.fallback != nil {
			cb.logger.Debug("breaker open, using fallback", zap.String("breaker", cb.name))
			return cb.fallback(ctx, ErrCircuitOpen)
		}
		return nil, ErrCircuitOpen
	}

	callCtx, cancel := context.WithTimeout(ctx, cb.cfg.CallTimeout)
	defer cancel()

	type outcome struct {
		result interface{}
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := fn(callCtx)
		done <- outcome{result, err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			cb.recordFailure()
			if cb.fallback != nil {
				return cb.fallback(ctx, o.err)
			}
			return o.result, o.err
		}
		cb.recordSuccess()
		return o.result, nil

	case <-callCtx.Done():
		cb.recordFailure()
		if cb.fallback != nil {
			return cb.fallback(ctx, ErrCallTimeout)
		}
		return nil, ErrCallTimeout
	}
}

func (cb *CircuitBreaker) allow() bool {
	switch cb.State() {
	case StateClosed:
		return true
	case StateOpen:
		changedAt := time.Unix(atomic.LoadInt64(&cb.changedAt), 0)
		if time.Since(changedAt) >= cb.cfg.OpenTimeout {
			return cb.transitionToHalfOpen()
		}
		return false
	case StateHalfOpen:
		return atomic.LoadInt64(&cb.halfOpenProbes) < cb.cfg.HalfOpenMaxProbes
	default:
		return false
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.pushOutcome(true)

	switch cb.State() {
	case StateHalfOpen:
		probes := atomic.AddInt64(&cb.halfOpenProbes, 1)
		successes := atomic.AddInt64(&cb.halfOpenSuccesses, 1)
		if probes >= cb.cfg.HalfOpenMaxProbes {
			if float64(successes)/float64(probes) >= cb.cfg.HalfOpenSuccessRatio {
				cb.transitionToClosed()
			} else {
				cb.transitionToOpen()
			}
		}
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.pushOutcome(false)

	switch cb.State() {
	case StateClosed:
		if cb.failureRateLocked() >= cb.cfg.FailureRateThreshold {
			cb.transitionToOpen()
		}
	case StateHalfOpen:
		probes := atomic.AddInt64(&cb.halfOpenProbes, 1)
		if probes >= cb.cfg.HalfOpenMaxProbes {
			successes := atomic.LoadInt64(&cb.halfOpenSuccesses)
			if float64(successes)/float64(probes) >= cb.cfg.HalfOpenSuccessRatio {
				cb.transitionToClosed()
			} else {
				cb.transitionToOpen()
			}
		}
	}
}

// pushOutcome appends to the ring buffer under cb.mu.
func (cb *CircuitBreaker) pushOutcome(success bool) {
	if len(cb.outcomes) < cb.cfg.WindowSize {
		cb.outcomes = append(cb.outcomes, success)
		return
	}
	cb.outcomes[cb.outcomeHead] = success
	cb.outcomeHead = (cb.outcomeHead + 1) % cb.cfg.WindowSize
}

// failureRateLocked computes the rolling failure rate; callers must
// hold cb.mu. Returns 0 until MinWindowForTrip samples are present so
// a handful of early failures can't trip the breaker prematurely.
func (cb *CircuitBreaker) failureRateLocked() float64 {
	if len(cb.outcomes) < cb.cfg.MinWindowForTrip {
		return 0
	}
	failures := 0
	for _, ok := range cb.outcomes {
		if !ok {
			failures++
		}
	}
	return float64(failures) / float64(len(cb.outcomes))
}

func (cb *CircuitBreaker) transitionToOpen() bool {
	if atomic.CompareAndSwapInt32(&cb.state, int32(StateClosed), int32(StateOpen)) ||
		atomic.CompareAndSwapInt32(&cb.state, int32(StateHalfOpen), int32(StateOpen)) {
		atomic.StoreInt64(&cb.changedAt, time.Now().Unix())
		atomic.StoreInt64(&cb.halfOpenProbes, 0)
		atomic.StoreInt64(&cb.halfOpenSuccesses, 0)
		cb.logger.Warn("circuit breaker opened", zap.String("breaker", cb.name))
		return true
	}
	return false
}

func (cb *CircuitBreaker) transitionToHalfOpen() bool {
	if atomic.CompareAndSwapInt32(&cb.state, int32(StateOpen), int32(StateHalfOpen)) {
		atomic.StoreInt64(&cb.changedAt, time.Now().Unix())
		atomic.StoreInt64(&cb.halfOpenProbes, 0)
		atomic.StoreInt64(&cb.halfOpenSuccesses, 0)
		cb.logger.Info("circuit breaker half-open probe", zap.String("breaker", cb.name))
		return true
	}
	return cb.State() != StateOpen
}

func (cb *CircuitBreaker) transitionToClosed() {
	if atomic.CompareAndSwapInt32(&cb.state, int32(StateHalfOpen), int32(StateClosed)) {
		atomic.StoreInt64(&cb.changedAt, time.Now().Unix())
		cb.outcomes = cb.outcomes[:0]
		cb.outcomeHead = 0
		cb.logger.Info("circuit breaker closed", zap.String("breaker", cb.name))
	}
}

// Reset forces the breaker back to CLOSED with empty history. Used by
// admin endpoints and tests.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	atomic.StoreInt32(&cb.state, int32(StateClosed))
	atomic.StoreInt64(&cb.changedAt, time.Now().Unix())
	atomic.StoreInt64(&cb.halfOpenProbes, 0)
	atomic.StoreInt64(&cb.halfOpenSuccesses, 0)
	cb.outcomes = cb.outcomes[:0]
	cb.outcomeHead = 0
}

// Manager owns a named set of circuit breakers so the ML client can
// keep importance/summarize/embed independent ("feature
// flags and circuit breaker state are process-wide singletons;
// updates are published under a lock").
type Manager struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	logger   *zap.Logger
}

// NewManager creates an empty breaker registry.
func NewManager(log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{breakers: make(map[string]*CircuitBreaker), logger: log}
}

// GetOrCreate returns the named breaker, creating it with cfg on
// first use.
func (m *Manager) GetOrCreate(name string, cfg *Config) *CircuitBreaker {
	m.mu.RLock()
	if cb, ok := m.breakers[name]; ok {
		m.mu.RUnlock()
		return cb
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if cb, ok := m.breakers[name]; ok {
		return cb
	}
	cb := NewCircuitBreaker(name, cfg, m.logger)
	m.breakers[name] = cb
	return cb
}

// All returns a snapshot of every registered breaker, keyed by name.
func (m *Manager) All() map[string]*CircuitBreaker {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*CircuitBreaker, len(m.breakers))
	for k, v := range m.breakers {
		out[k] = v
	}
	return out
}
