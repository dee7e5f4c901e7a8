package breaker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func testConfig() Config {
	return Config{
		FailureThreshold: 3,
		ResetTimeout:     time.Hour,
		MaxRetries:       1,
		RetryDelay:       0,
		MonitorInterval:  time.Hour,
	}
}

func failing(calls *int32) func(context.Context) error {
	return func(context.Context) error {
		atomic.AddInt32(calls, 1)
		return errBoom
	}
}

func waitForState(t *testing.T, cb *CircuitBreaker, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cb.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("breaker did not reach %s, still %s", want, cb.State())
}

func drainKinds(cb *CircuitBreaker) []EventKind {
	var kinds []EventKind
	for {
		select {
		case ev := <-cb.Events():
			kinds = append(kinds, ev.Kind)
		default:
			return kinds
		}
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "CLOSED"},
		{StateOpen, "OPEN"},
		{StateHalfOpen, "HALF_OPEN"},
		{State(42), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero threshold", func(c *Config) { c.FailureThreshold = 0 }, true},
		{"zero reset timeout", func(c *Config) { c.ResetTimeout = 0 }, true},
		{"zero retries", func(c *Config) { c.MaxRetries = 0 }, true},
		{"negative delay", func(c *Config) { c.RetryDelay = -time.Second }, true},
		{"zero monitor interval", func(c *Config) { c.MonitorInterval = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestExecute_TripsOnceAtThreshold(t *testing.T) {
	cb := New(testConfig())
	defer cb.Close()

	var calls int32
	for i := 0; i < 10; i++ {
		_ = cb.Execute(context.Background(), failing(&calls), nil)
	}

	if cb.State() != StateOpen {
		t.Fatalf("expected OPEN, got %s", cb.State())
	}
	if calls != 3 {
		t.Errorf("expected operation to run 3 times before tripping, ran %d", calls)
	}

	opened := 0
	for _, k := range drainKinds(cb) {
		if k == EventOpened {
			opened++
		}
	}
	if opened != 1 {
		t.Errorf("expected exactly one opened event, got %d", opened)
	}
}

func TestExecute_OpenNeverCallsOperation(t *testing.T) {
	cb := New(testConfig())
	defer cb.Close()

	var calls int32
	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), failing(&calls), nil)
	}
	before := atomic.LoadInt32(&calls)

	err := cb.Execute(context.Background(), failing(&calls), nil)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if !IsCircuitOpen(err) {
		t.Error("expected IsCircuitOpen to match")
	}

	var fallbackCause error
	err = cb.Execute(context.Background(), failing(&calls), func(_ context.Context, cause error) error {
		fallbackCause = cause
		return nil
	})
	if err != nil {
		t.Errorf("expected fallback result, got %v", err)
	}
	if !IsCircuitOpen(fallbackCause) {
		t.Errorf("expected fallback to receive open circuit error, got %v", fallbackCause)
	}
	if atomic.LoadInt32(&calls) != before {
		t.Error("operation must not run while the circuit is open")
	}
	if m := cb.Metrics(); m.Rejections != 2 {
		t.Errorf("expected 2 rejections, got %d", m.Rejections)
	}
}

func TestExecute_RetriesThenSucceeds(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 3
	cfg.FailureThreshold = 10
	cfg.RetryDelay = time.Millisecond
	cb := New(cfg)
	defer cb.Close()

	var calls int32
	err := cb.Execute(context.Background(), func(context.Context) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errBoom
		}
		return nil
	}, nil)

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
	if cb.FailureCount() != 0 {
		t.Errorf("expected failure count reset after success, got %d", cb.FailureCount())
	}
}

func TestExecute_TripMidRetryStopsRetrying(t *testing.T) {
	cfg := testConfig()
	cfg.FailureThreshold = 2
	cfg.MaxRetries = 5
	cb := New(cfg)
	defer cb.Close()

	var calls int32
	var cause error
	err := cb.Execute(context.Background(), failing(&calls), func(_ context.Context, c error) error {
		cause = c
		return nil
	})

	if err != nil {
		t.Fatalf("expected fallback to absorb the error, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected retries to stop at the threshold, got %d attempts", calls)
	}
	if !IsCircuitOpen(cause) {
		t.Errorf("expected tripped error, got %v", cause)
	}
	if !errors.Is(cause, errBoom) {
		t.Errorf("expected tripped error to wrap the last failure, got %v", cause)
	}
}

func TestExecute_ExhaustedRetries(t *testing.T) {
	cfg := testConfig()
	cfg.FailureThreshold = 100
	cfg.MaxRetries = 2
	cb := New(cfg)
	defer cb.Close()

	var calls int32
	err := cb.Execute(context.Background(), failing(&calls), nil)
	if !errors.Is(err, errBoom) {
		t.Errorf("expected last error, got %v", err)
	}

	fallbackErr := errors.New("fallback")
	err = cb.Execute(context.Background(), failing(&calls), func(_ context.Context, cause error) error {
		if !errors.Is(cause, errBoom) {
			t.Errorf("expected fallback cause to be the last error, got %v", cause)
		}
		return fallbackErr
	})
	if !errors.Is(err, fallbackErr) {
		t.Errorf("expected fallback error, got %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("expected CLOSED, got %s", cb.State())
	}
}

func TestExecute_ContextCancelledDuringDelay(t *testing.T) {
	cfg := testConfig()
	cfg.FailureThreshold = 100
	cfg.MaxRetries = 3
	cfg.RetryDelay = time.Hour
	cb := New(cfg)
	defer cb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	var calls int32
	err := cb.Execute(ctx, failing(&calls), nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected a single attempt, got %d", calls)
	}
}

func TestResetTimeout_MovesToHalfOpenThenClosed(t *testing.T) {
	cfg := testConfig()
	cfg.FailureThreshold = 1
	cfg.ResetTimeout = 20 * time.Millisecond
	cb := New(cfg)
	defer cb.Close()

	var calls int32
	_ = cb.Execute(context.Background(), failing(&calls), nil)
	if cb.State() != StateOpen {
		t.Fatalf("expected OPEN, got %s", cb.State())
	}

	waitForState(t, cb, StateHalfOpen)

	if err := cb.Execute(context.Background(), func(context.Context) error { return nil }, nil); err != nil {
		t.Fatalf("expected the trial call to succeed, got %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("expected CLOSED after a successful trial call, got %s", cb.State())
	}

	kinds := drainKinds(cb)
	want := []EventKind{EventOpened, EventHalfOpened, EventClosed}
	if len(kinds) != len(want) {
		t.Fatalf("expected events %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], kinds[i])
		}
	}
}

func TestHalfOpen_FailureReopens(t *testing.T) {
	cfg := testConfig()
	cfg.FailureThreshold = 1
	cb := New(cfg)
	defer cb.Close()

	var calls int32
	_ = cb.Execute(context.Background(), failing(&calls), nil)
	cb.ReportHealthCheck(true)
	if cb.State() != StateHalfOpen {
		t.Fatalf("expected HALF_OPEN, got %s", cb.State())
	}

	_ = cb.Execute(context.Background(), failing(&calls), nil)
	if cb.State() != StateOpen {
		t.Errorf("expected OPEN after a failed trial call, got %s", cb.State())
	}
}

func TestReportHealthCheck(t *testing.T) {
	cfg := testConfig()
	cfg.FailureThreshold = 1
	cb := New(cfg)
	defer cb.Close()

	// Ignored while CLOSED.
	cb.ReportHealthCheck(false)
	if cb.State() != StateClosed {
		t.Fatalf("expected CLOSED, got %s", cb.State())
	}

	var calls int32
	_ = cb.Execute(context.Background(), failing(&calls), nil)

	cb.ReportHealthCheck(false)
	if cb.State() != StateOpen {
		t.Errorf("failure while OPEN should keep it OPEN, got %s", cb.State())
	}

	cb.ReportHealthCheck(true)
	if cb.State() != StateHalfOpen {
		t.Errorf("expected HALF_OPEN, got %s", cb.State())
	}

	cb.ReportHealthCheck(false)
	if cb.State() != StateOpen {
		t.Errorf("expected OPEN, got %s", cb.State())
	}
}

func TestMonitor_RequestsAndRunsHealthChecks(t *testing.T) {
	cfg := testConfig()
	cfg.FailureThreshold = 1
	cfg.MonitorInterval = 10 * time.Millisecond

	var checks int32
	cb := New(cfg, WithHealthCheck(func(context.Context) error {
		if atomic.AddInt32(&checks, 1) < 2 {
			return errBoom
		}
		return nil
	}))
	defer cb.Close()

	var calls int32
	_ = cb.Execute(context.Background(), failing(&calls), nil)

	waitForState(t, cb, StateHalfOpen)

	requested := false
	for _, k := range drainKinds(cb) {
		if k == EventHealthCheckRequested {
			requested = true
		}
	}
	if !requested {
		t.Error("expected a health check request event")
	}
	if atomic.LoadInt32(&checks) < 2 {
		t.Errorf("expected at least 2 checks, got %d", checks)
	}
}

func TestReset(t *testing.T) {
	cfg := testConfig()
	cfg.FailureThreshold = 1
	cb := New(cfg)
	defer cb.Close()

	var calls int32
	_ = cb.Execute(context.Background(), failing(&calls), nil)
	cb.Reset()

	if cb.State() != StateClosed {
		t.Errorf("expected CLOSED, got %s", cb.State())
	}
	if cb.FailureCount() != 0 {
		t.Errorf("expected zero failures, got %d", cb.FailureCount())
	}
}

func TestClose_StopsTimers(t *testing.T) {
	cfg := testConfig()
	cfg.FailureThreshold = 1
	cfg.ResetTimeout = 10 * time.Millisecond
	cfg.MonitorInterval = 5 * time.Millisecond
	cb := New(cfg)

	var calls int32
	_ = cb.Execute(context.Background(), failing(&calls), nil)

	if err := cb.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := cb.Close(); err != nil {
		t.Fatalf("second close should be a no-op, got %v", err)
	}

	time.Sleep(40 * time.Millisecond)
	if cb.State() != StateOpen {
		t.Errorf("expected state to stay OPEN after close, got %s", cb.State())
	}
}

func TestDo_ReturnsValue(t *testing.T) {
	cb := New(testConfig())
	defer cb.Close()

	v, err := Do(context.Background(), cb, func(context.Context) (string, error) {
		return "ok", nil
	}, nil)
	if err != nil || v != "ok" {
		t.Errorf("expected ok, got %q (%v)", v, err)
	}

	m := cb.Metrics()
	if m.TotalCalls != 1 || m.Successes != 1 {
		t.Errorf("unexpected metrics: %+v", m)
	}
}
