package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/shopavnu/avnu-marketplace-sub008/pkg/metrics"
)

// State represents the circuit breaker state.
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
		return "UNKNOWN"
	}
}

// HealthCheckFunc checks whether the protected backing store is healthy again.
type HealthCheckFunc func(ctx context.Context) error

// Option configures a CircuitBreaker.
type Option func(*CircuitBreaker)

// WithLogger sets the logger used for state transitions.
func WithLogger(logger *zap.Logger) Option {
	return func(cb *CircuitBreaker) {
		if logger != nil {
			cb.logger = logger
		}
	}
}

// WithName labels logs, events and metrics.
func WithName(name string) Option {
	return func(cb *CircuitBreaker) {
		if name != "" {
			cb.name = name
		}
	}
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(cb *CircuitBreaker) {
		if now != nil {
			cb.now = now
		}
	}
}

// WithMetrics reports state and counters to the collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(cb *CircuitBreaker) {
		cb.metrics = c
	}
}

// WithHealthCheck makes the monitor run the health check itself and feed the
// result into ReportHealthCheck.
func WithHealthCheck(check HealthCheckFunc) Option {
	return func(cb *CircuitBreaker) {
		cb.healthCheck = check
	}
}

// Metrics is a point in time snapshot of the breaker.
type Metrics struct {
	Name            string
	State           State
	FailureCount    int
	Config          Config
	TotalCalls      int64
	Successes       int64
	Failures        int64
	Rejections      int64
	Fallbacks       int64
	LastStateChange time.Time
}

// CircuitBreaker guards calls to an unreliable dependency.
type CircuitBreaker struct {
	name        string
	cfg         Config
	logger      *zap.Logger
	now         func() time.Time
	metrics     *metrics.Collector
	healthCheck HealthCheckFunc

	mu              sync.Mutex
	state           State
	failures        int
	generation      uint64
	probing         bool
	lastStateChange time.Time
	resetTimer      *time.Timer
	monitorStop     chan struct{}
	closed          bool

	events chan Event
	wg     sync.WaitGroup

	calls      *xsync.Counter
	successes  *xsync.Counter
	failed     *xsync.Counter
	rejections *xsync.Counter
	fallbacks  *xsync.Counter
}

// New creates a circuit breaker in the CLOSED state. Invalid
// configuration values are replaced by their defaults.
func New(cfg Config, opts ...Option) *CircuitBreaker {
	cfg = withDefaults(cfg)

	cb := &CircuitBreaker{
		name:       "default",
		cfg:        cfg,
		logger:     zap.NewNop(),
		now:        time.Now,
		state:      StateClosed,
		events:     make(chan Event, eventBuffer),
		calls:      xsync.NewCounter(),
		successes:  xsync.NewCounter(),
		failed:     xsync.NewCounter(),
		rejections: xsync.NewCounter(),
		fallbacks:  xsync.NewCounter(),
	}
	for _, opt := range opts {
		opt(cb)
	}
	cb.lastStateChange = cb.now()
	cb.metrics.ObserveBreakerState(cb.name, int(StateClosed))

	return cb
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = def.MonitorInterval
	}
	return cfg
}

// Name returns the breaker label.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Events returns the transition and health check request stream.
func (cb *CircuitBreaker) Events() <-chan Event { return cb.events }

// Execute runs op under the breaker. fallback may be nil.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error, fallback func(context.Context, error) error) error {
	var fb func(context.Context, error) (struct{}, error)
	if fallback != nil {
		fb = func(ctx context.Context, cause error) (struct{}, error) {
			return struct{}{}, fallback(ctx, cause)
		}
	}
	_, err := Do(ctx, cb, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, fb)
	return err
}

// Do is the typed form of Execute.
//
// While OPEN the operation is never called. Otherwise it is attempted up to
// MaxRetries times; when the failures trip the circuit, retrying stops and
// the fallback receives the tripping error.
func Do[T any](ctx context.Context, cb *CircuitBreaker, op func(context.Context) (T, error), fallback func(context.Context, error) (T, error)) (T, error) {
	cb.calls.Inc()

	if !cb.allow() {
		cb.rejections.Inc()
		cb.metrics.ObserveBreakerRejection(cb.name)
		return runFallback(ctx, cb, fallback, ErrCircuitOpen)
	}

	var lastErr error
	for attempt := 1; attempt <= cb.cfg.MaxRetries; attempt++ {
		v, err := op(ctx)
		if err == nil {
			cb.onSuccess()
			return v, nil
		}
		lastErr = err

		if cb.onFailure(err, attempt) {
			return runFallback(ctx, cb, fallback, trippedError(lastErr, cb.name))
		}

		if attempt < cb.cfg.MaxRetries {
			if err := sleep(ctx, cb.cfg.RetryDelay); err != nil {
				cb.releaseTrial()
				return runFallback(ctx, cb, fallback, err)
			}
		}
	}

	cb.releaseTrial()
	return runFallback(ctx, cb, fallback, lastErr)
}

func runFallback[T any](ctx context.Context, cb *CircuitBreaker, fallback func(context.Context, error) (T, error), cause error) (T, error) {
	if fallback == nil {
		var zero T
		return zero, cause
	}
	cb.fallbacks.Inc()
	return fallback(ctx, cause)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// allow admits the call. In HALF_OPEN a single trial call is admitted.
func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		return false
	case StateHalfOpen:
		if cb.probing {
			return false
		}
		cb.probing = true
	}
	return true
}

func (cb *CircuitBreaker) releaseTrial() {
	cb.mu.Lock()
	cb.probing = false
	cb.mu.Unlock()
}

func (cb *CircuitBreaker) onSuccess() {
	cb.successes.Inc()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	if cb.state == StateHalfOpen {
		cb.transitionLocked(StateClosed)
	}
}

// onFailure records a failure and reports whether the circuit is now open.
func (cb *CircuitBreaker) onFailure(err error, attempt int) bool {
	cb.failed.Inc()
	cb.metrics.ObserveBreakerFailure(cb.name)

	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.logger.Debug("circuit breaker recorded failure",
		zap.String("breaker", cb.name),
		zap.Int("attempt", attempt),
		zap.Int("failures", cb.failures),
		zap.Error(err),
	)

	switch cb.state {
	case StateHalfOpen:
		cb.transitionLocked(StateOpen)
		return true
	case StateClosed:
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.transitionLocked(StateOpen)
			return true
		}
		return false
	default:
		return true
	}
}

// ReportHealthCheck feeds the result of an external health check.
// A success while OPEN moves to HALF_OPEN; a failure while HALF_OPEN
// moves back to OPEN. Other combinations are ignored.
func (cb *CircuitBreaker) ReportHealthCheck(healthy bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.applyHealthLocked(healthy)
}

func (cb *CircuitBreaker) applyHealthLocked(healthy bool) {
	if cb.closed {
		return
	}
	switch {
	case healthy && cb.state == StateOpen:
		cb.logger.Info("health check passed, moving circuit to half-open", zap.String("breaker", cb.name))
		cb.transitionLocked(StateHalfOpen)
	case !healthy && cb.state == StateHalfOpen:
		cb.logger.Warn("health check failed, reopening circuit", zap.String("breaker", cb.name))
		cb.transitionLocked(StateOpen)
	}
}

// transitionLocked must be called with mu held.
func (cb *CircuitBreaker) transitionLocked(to State) {
	from := cb.state
	if from == to || cb.closed {
		return
	}

	cb.state = to
	cb.generation++
	cb.probing = false
	cb.lastStateChange = cb.now()
	cb.stopTimersLocked()

	var kind EventKind
	switch to {
	case StateOpen:
		kind = EventOpened
		cb.armLocked(cb.generation)
		cb.logger.Warn("circuit breaker opened",
			zap.String("breaker", cb.name),
			zap.Int("failures", cb.failures),
			zap.Duration("reset_timeout", cb.cfg.ResetTimeout),
		)
	case StateHalfOpen:
		kind = EventHalfOpened
		cb.logger.Info("circuit breaker half-open", zap.String("breaker", cb.name))
	case StateClosed:
		kind = EventClosed
		cb.failures = 0
		cb.logger.Info("circuit breaker closed", zap.String("breaker", cb.name))
	}

	cb.metrics.ObserveBreakerState(cb.name, int(to))
	cb.metrics.ObserveBreakerTransition(cb.name, from.String(), to.String())
	cb.emit(Event{
		Kind:     kind,
		Breaker:  cb.name,
		From:     from,
		To:       to,
		Failures: cb.failures,
		At:       cb.lastStateChange,
	})
}

// armLocked starts the reset timer and the health monitor for an OPEN period.
func (cb *CircuitBreaker) armLocked(gen uint64) {
	cb.resetTimer = time.AfterFunc(cb.cfg.ResetTimeout, func() {
		cb.mu.Lock()
		defer cb.mu.Unlock()
		if cb.generation != gen || cb.state != StateOpen {
			return
		}
		cb.logger.Info("reset timeout elapsed", zap.String("breaker", cb.name))
		cb.transitionLocked(StateHalfOpen)
	})

	stop := make(chan struct{})
	cb.monitorStop = stop
	cb.wg.Add(1)
	go cb.monitor(gen, stop)
}

func (cb *CircuitBreaker) monitor(gen uint64, stop <-chan struct{}) {
	defer cb.wg.Done()

	ticker := time.NewTicker(cb.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			cb.emit(Event{
				Kind:    EventHealthCheckRequested,
				Breaker: cb.name,
				From:    StateOpen,
				To:      StateOpen,
				At:      cb.now(),
			})
			if cb.healthCheck == nil {
				continue
			}

			ctx, cancel := context.WithTimeout(context.Background(), cb.cfg.MonitorInterval)
			err := cb.healthCheck(ctx)
			cancel()

			cb.mu.Lock()
			if cb.generation == gen {
				cb.applyHealthLocked(err == nil)
			}
			cb.mu.Unlock()
		}
	}
}

func (cb *CircuitBreaker) stopTimersLocked() {
	if cb.resetTimer != nil {
		cb.resetTimer.Stop()
		cb.resetTimer = nil
	}
	if cb.monitorStop != nil {
		close(cb.monitorStop)
		cb.monitorStop = nil
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// FailureCount returns the current failure counter.
func (cb *CircuitBreaker) FailureCount() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Metrics returns a snapshot of the breaker counters.
func (cb *CircuitBreaker) Metrics() Metrics {
	cb.mu.Lock()
	state, failures, changed := cb.state, cb.failures, cb.lastStateChange
	cb.mu.Unlock()

	return Metrics{
		Name:            cb.name,
		State:           state,
		FailureCount:    failures,
		Config:          cb.cfg,
		TotalCalls:      cb.calls.Value(),
		Successes:       cb.successes.Value(),
		Failures:        cb.failed.Value(),
		Rejections:      cb.rejections.Value(),
		Fallbacks:       cb.fallbacks.Value(),
		LastStateChange: changed,
	}
}

// Reset forces the breaker to CLOSED with zero failures.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	if cb.state != StateClosed {
		cb.transitionLocked(StateClosed)
	}
}

// Close stops the reset timer and the health monitor. The breaker keeps
// answering State and Metrics but no longer changes state.
func (cb *CircuitBreaker) Close() error {
	cb.mu.Lock()
	if cb.closed {
		cb.mu.Unlock()
		return nil
	}
	cb.stopTimersLocked()
	cb.closed = true
	cb.mu.Unlock()

	cb.wg.Wait()
	return nil
}
