package breaker

import (
	goerrors "github.com/goliatone/go-errors"
)

// TextCodeCircuitOpen identifies errors produced by an open circuit.
const TextCodeCircuitOpen = "CIRCUIT_OPEN"

// ErrCircuitOpen is returned by Execute when the circuit is open and
// no fallback was supplied.
var ErrCircuitOpen = goerrors.New("circuit breaker is open", goerrors.CategoryExternal).
	WithTextCode(TextCodeCircuitOpen)

// IsCircuitOpen reports whether err was produced by an open circuit,
// either directly or because the circuit tripped while retrying.
func IsCircuitOpen(err error) bool {
	if err == nil {
		return false
	}
	if goerrors.Is(err, ErrCircuitOpen) {
		return true
	}
	var e *goerrors.Error
	if goerrors.As(err, &e) {
		return e.TextCode == TextCodeCircuitOpen
	}
	return false
}

// trippedError wraps the failure that opened the circuit.
func trippedError(cause error, name string) error {
	if cause == nil {
		return ErrCircuitOpen
	}
	return goerrors.Wrap(cause, goerrors.CategoryExternal, "circuit breaker opened").
		WithTextCode(TextCodeCircuitOpen).
		WithMetadata(map[string]any{"breaker": name})
}
