package arbiter

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned by Validate for out-of-range settings.
var ErrInvalidConfig = errors.New("arbiter: invalid config")

// Config holds the freshness windows used to pick an authoritative source.
type Config struct {
	// StaleTimeout is how long a network observation stays authoritative.
	StaleTimeout time.Duration

	// LocalStaleTimeout is how long a local observation stays usable as
	// the fallback.
	LocalStaleTimeout time.Duration
}

// DefaultConfig returns the shipped freshness windows.
func DefaultConfig() Config {
	return Config{
		StaleTimeout:      500 * time.Millisecond,
		LocalStaleTimeout: 500 * time.Millisecond,
	}
}

// Validate reports whether the windows are usable.
func (c Config) Validate() error {
	if c.StaleTimeout <= 0 {
		return fmt.Errorf("%w: stale timeout must be positive, got %v", ErrInvalidConfig, c.StaleTimeout)
	}
	if c.LocalStaleTimeout <= 0 {
		return fmt.Errorf("%w: local stale timeout must be positive, got %v", ErrInvalidConfig, c.LocalStaleTimeout)
	}
	return nil
}
