package analytics

import (
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Config tunes the collector.
type Config struct {
	// SlowQueryThreshold flags a single execution, or an average, as slow.
	SlowQueryThreshold time.Duration
	// MaxStoredQueries caps the tracked query registry. The oldest id is
	// evicted first.
	MaxStoredQueries int
	// Retention drops metrics older than this before storing or aggregating.
	Retention time.Duration
	// TTL applies to stored metric lists, the registry and the aggregate.
	TTL time.Duration
	// ProcessInterval is the aggregation schedule used by Start.
	ProcessInterval time.Duration
	// QueueSize bounds pending metric writes. Records beyond it are dropped.
	QueueSize int
}

// DefaultConfig returns a 500ms slow threshold, 100 tracked queries, two
// days of retention, a seven day TTL and hourly processing.
func DefaultConfig() Config {
	return Config{
		SlowQueryThreshold: 500 * time.Millisecond,
		MaxStoredQueries:   100,
		Retention:          48 * time.Hour,
		TTL:                7 * 24 * time.Hour,
		ProcessInterval:    time.Hour,
		QueueSize:          256,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.SlowQueryThreshold <= 0:
		return configError("SlowQueryThreshold", "must be greater than 0")
	case c.MaxStoredQueries <= 0:
		return configError("MaxStoredQueries", "must be greater than 0")
	case c.Retention <= 0:
		return configError("Retention", "must be greater than 0")
	case c.TTL <= 0:
		return configError("TTL", "must be greater than 0")
	case c.ProcessInterval <= 0:
		return configError("ProcessInterval", "must be greater than 0")
	case c.QueueSize <= 0:
		return configError("QueueSize", "must be greater than 0")
	}
	return nil
}

func configError(field, msg string) error {
	return goerrors.New(field+" "+msg, goerrors.CategoryValidation).
		WithTextCode("INVALID_ANALYTICS_CONFIG").
		WithMetadata(map[string]any{"field": field})
}
