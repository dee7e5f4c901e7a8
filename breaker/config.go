package breaker

import (
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Config holds the circuit breaker tunables. It is read once at
// construction and never mutated afterwards.
type Config struct {
	// FailureThreshold is the number of consecutive failures that
	// trips the breaker from CLOSED to OPEN. Must be greater than 0.
	FailureThreshold int

	// ResetTimeout is how long the breaker stays OPEN before it moves
	// to HALF_OPEN on its own.
	ResetTimeout time.Duration

	// MaxRetries is the number of attempts Execute makes before giving up.
	// Must be at least 1.
	MaxRetries int

	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration

	// MonitorInterval is how often a health check is requested while OPEN.
	MonitorInterval time.Duration
}

// DefaultConfig returns the configuration used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		MaxRetries:       3,
		RetryDelay:       time.Second,
		MonitorInterval:  time.Minute,
	}
}

// Validate checks if the configuration values are valid.
func (c Config) Validate() error {
	switch {
	case c.FailureThreshold <= 0:
		return configError("FailureThreshold", "must be greater than 0")
	case c.ResetTimeout <= 0:
		return configError("ResetTimeout", "must be greater than 0")
	case c.MaxRetries < 1:
		return configError("MaxRetries", "must be at least 1")
	case c.RetryDelay < 0:
		return configError("RetryDelay", "must be non-negative")
	case c.MonitorInterval <= 0:
		return configError("MonitorInterval", "must be greater than 0")
	}
	return nil
}

func configError(field, msg string) error {
	return goerrors.New("breaker config: "+field+" "+msg, goerrors.CategoryValidation).
		WithTextCode("INVALID_BREAKER_CONFIG").
		WithMetadata(map[string]any{"field": field})
}
