// Package circuitbreaker stops a pass from hammering a mail provider that
// is already failing.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State of a breaker.
//
//	Closed -> Open:      consecutive failures reach MaxFailures
//	Open -> HalfOpen:    RecoveryTimeout has passed since the last failure
//	HalfOpen -> Closed:  a probe succeeds
//	HalfOpen -> Open:    a probe fails
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

// ErrCircuitOpen is returned when a call is rejected without reaching the
// provider.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config holds the configuration for a CircuitBreaker.
type Config struct {
	// Name identifies the protected provider, e.g. "ses" or "relay".
	Name string

	// MaxFailures is the number of consecutive failures that opens the circuit.
	MaxFailures int

	// RecoveryTimeout is how long the circuit stays open before a probe.
	RecoveryTimeout time.Duration

	// HalfOpenMaxRequests is how many probes are let through while half-open.
	HalfOpenMaxRequests int

	// OnStateChange, if set, is called after every transition with the
	// breaker's lock held. It must not call back into the breaker.
	OnStateChange func(name string, from, to State)
}

// DefaultConfig returns the defaults used for mail providers.
func DefaultConfig(name string) Config {
	return Config{
		Name:                name,
		MaxFailures:         5,
		RecoveryTimeout:     30 * time.Second,
		HalfOpenMaxRequests: 1,
	}
}

// CircuitBreaker tracks consecutive failures of one provider.
type CircuitBreaker struct {
	mu     sync.Mutex
	config Config
	logger *zap.Logger
	now    func() time.Time

	state       State
	failures    int
	lastFailure time.Time
	probes      int
}

// New creates a closed CircuitBreaker. Zero config fields take the
// DefaultConfig values.
func New(cfg Config, logger *zap.Logger) *CircuitBreaker {
	def := DefaultConfig(cfg.Name)
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = def.MaxFailures
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = def.RecoveryTimeout
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = def.HalfOpenMaxRequests
	}

	return &CircuitBreaker{
		config: cfg,
		logger: logger,
		now:    time.Now,
		state:  StateClosed,
	}
}

// Name returns the configured provider name.
func (cb *CircuitBreaker) Name() string {
	return cb.config.Name
}

// Allow reports whether a call may proceed. Every allowed call must be
// followed by RecordSuccess or RecordFailure.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true

	case StateOpen:
		if cb.now().Sub(cb.lastFailure) < cb.config.RecoveryTimeout {
			return false
		}
		cb.transitionTo(StateHalfOpen)
		cb.probes = 1
		cb.logger.Info("circuit breaker allowing probe request",
			zap.String("name", cb.config.Name),
		)
		return true

	case StateHalfOpen:
		if cb.probes < cb.config.HalfOpenMaxRequests {
			cb.probes++
			return true
		}
		return false

	default:
		return false
	}
}

// RecordSuccess resets the failure count and closes a half-open circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	if cb.state == StateHalfOpen {
		cb.transitionTo(StateClosed)
		cb.logger.Info("circuit breaker closed - provider recovered",
			zap.String("name", cb.config.Name),
		)
	}
}

// RecordFailure counts a failure and opens the circuit when the threshold
// is reached or a probe fails.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailure = cb.now()

	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.config.MaxFailures {
			cb.transitionTo(StateOpen)
			cb.logger.Warn("circuit breaker opened",
				zap.String("name", cb.config.Name),
				zap.Int("failures", cb.failures),
			)
		}
	case StateHalfOpen:
		cb.transitionTo(StateOpen)
		cb.logger.Warn("circuit breaker re-opened - probe failed",
			zap.String("name", cb.config.Name),
		)
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// must be called with mu held
func (cb *CircuitBreaker) transitionTo(to State) {
	if cb.state == to {
		return
	}

	from := cb.state
	cb.state = to
	cb.probes = 0

	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.config.Name, from, to)
	}
}
