// Package circuitbreaker stops calling a failing dependency for a cool-down
// period and probes it with a bounded number of requests before closing again.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

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

var (
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
)

const (
	defaultMaxFailures = 5
	defaultTimeout     = 30 * time.Second
	defaultMaxRequests = 1
)

type Config struct {
	Name        string
	MaxFailures int
	Timeout     time.Duration
	MaxRequests int
	// IsFailure decides whether an error counts against the breaker.
	// Nil counts every error.
	IsFailure     func(err error) bool
	OnStateChange func(name string, from State, to State)
}

// Snapshot is a point-in-time view of a breaker's counters.
type Snapshot struct {
	Name            string    `json:"name"`
	State           string    `json:"state"`
	Failures        int       `json:"failures"`
	TotalRequests   int64     `json:"total_requests"`
	TotalFailures   int64     `json:"total_failures"`
	TotalSuccesses  int64     `json:"total_successes"`
	TotalRejected   int64     `json:"total_rejected"`
	StateChanges    int64     `json:"state_changes"`
	LastFailure     time.Time `json:"last_failure"`
	LastStateChange time.Time `json:"last_state_change"`
}

type CircuitBreaker struct {
	name          string
	maxFailures   int
	timeout       time.Duration
	maxRequests   int
	isFailure     func(err error) bool
	onStateChange func(name string, from State, to State)

	mutex        sync.Mutex
	state        State
	failures     int
	inFlight     int
	lastFailTime time.Time

	totalRequests   int64
	totalFailures   int64
	totalSuccesses  int64
	totalRejected   int64
	stateChanges    int64
	lastStateChange time.Time

	now    func() time.Time
	logger *logrus.Logger
}

func New(config Config, logger *logrus.Logger) *CircuitBreaker {
	if config.Name == "" {
		config.Name = "unnamed"
	}
	if config.MaxFailures <= 0 {
		logger.WithFields(logrus.Fields{
			"circuit_breaker": config.Name,
			"invalid_value":   config.MaxFailures,
		}).Warn("Invalid MaxFailures value, using default")
		config.MaxFailures = defaultMaxFailures
	}
	if config.Timeout <= 0 {
		logger.WithFields(logrus.Fields{
			"circuit_breaker": config.Name,
			"invalid_value":   config.Timeout.String(),
		}).Warn("Invalid Timeout value, using default")
		config.Timeout = defaultTimeout
	}
	if config.MaxRequests <= 0 {
		config.MaxRequests = defaultMaxRequests
	}

	return &CircuitBreaker{
		name:          config.Name,
		maxFailures:   config.MaxFailures,
		timeout:       config.Timeout,
		maxRequests:   config.MaxRequests,
		isFailure:     config.IsFailure,
		onStateChange: config.OnStateChange,
		state:         StateClosed,
		now:           time.Now,
		logger:        logger,
	}
}

// Execute runs fn unless the breaker is open. Rejections return
// ErrCircuitBreakerOpen without calling fn.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.before(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.after(err)
	return err
}

func (cb *CircuitBreaker) before() error {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.lastFailTime) < cb.timeout {
			cb.totalRejected++
			return ErrCircuitBreakerOpen
		}
		cb.setState(StateHalfOpen)
	}
	if cb.state == StateHalfOpen && cb.inFlight >= cb.maxRequests {
		cb.totalRejected++
		return ErrCircuitBreakerOpen
	}

	cb.totalRequests++
	cb.inFlight++
	return nil
}

func (cb *CircuitBreaker) after(err error) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.inFlight--
	if err != nil && (cb.isFailure == nil || cb.isFailure(err)) {
		cb.totalFailures++
		cb.failures++
		cb.lastFailTime = cb.now()
		if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
			cb.setState(StateOpen)
		}
		return
	}

	cb.totalSuccesses++
	cb.failures = 0
	if cb.state == StateHalfOpen {
		cb.setState(StateClosed)
	}
}

func (cb *CircuitBreaker) setState(newState State) {
	if cb.state == newState {
		return
	}

	oldState := cb.state
	cb.state = newState
	cb.stateChanges++
	cb.lastStateChange = cb.now()
	if newState == StateClosed {
		cb.failures = 0
	}

	cb.logger.WithFields(logrus.Fields{
		"circuit_breaker": cb.name,
		"from_state":      oldState.String(),
		"to_state":        newState.String(),
	}).Info("Circuit breaker state changed")

	if cb.onStateChange != nil {
		go cb.notify(oldState, newState)
	}
}

func (cb *CircuitBreaker) notify(from, to State) {
	defer func() {
		if r := recover(); r != nil {
			cb.logger.WithFields(logrus.Fields{
				"circuit_breaker": cb.name,
				"panic":           r,
			}).Error("Circuit breaker state change callback panicked")
		}
	}()
	cb.onStateChange(cb.name, from, to)
}

func (cb *CircuitBreaker) Name() string {
	return cb.name
}

func (cb *CircuitBreaker) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	return Snapshot{
		Name:            cb.name,
		State:           cb.state.String(),
		Failures:        cb.failures,
		TotalRequests:   cb.totalRequests,
		TotalFailures:   cb.totalFailures,
		TotalSuccesses:  cb.totalSuccesses,
		TotalRejected:   cb.totalRejected,
		StateChanges:    cb.stateChanges,
		LastFailure:     cb.lastFailTime,
		LastStateChange: cb.lastStateChange,
	}
}

func (cb *CircuitBreaker) Reset() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.setState(StateClosed)
	cb.failures = 0
	cb.lastFailTime = time.Time{}
}

func (cb *CircuitBreaker) String() string {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return fmt.Sprintf("CircuitBreaker(name=%s, state=%s, failures=%d/%d)",
		cb.name, cb.state.String(), cb.failures, cb.maxFailures)
}
