package puppet

import (
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/go-puppet/pkg/arbiter"
	"github.com/teslashibe/go-puppet/pkg/features"
)

// ErrInvalidConfig is returned by Validate for out-of-range settings.
var ErrInvalidConfig = errors.New("puppet: invalid config")

// HeadPoseSource selects where the animated head pose comes from.
type HeadPoseSource string

const (
	// HeadPoseGeometry derives yaw, pitch and roll from landmarks only.
	HeadPoseGeometry HeadPoseSource = "geometry"
	// HeadPoseNetwork prefers the tracker's Euler angles when present and
	// falls back to geometry otherwise.
	HeadPoseNetwork HeadPoseSource = "network"
)

// ParseHeadPoseSource validates a head pose source name.
func ParseHeadPoseSource(s string) (HeadPoseSource, error) {
	switch HeadPoseSource(s) {
	case HeadPoseGeometry, HeadPoseNetwork:
		return HeadPoseSource(s), nil
	default:
		return "", fmt.Errorf("%w: unknown head pose source %q", ErrInvalidConfig, s)
	}
}

// Config holds all tunable parameters of the pipeline
type Config struct {
	// Timing
	TickInterval time.Duration // One animation tick per display refresh

	// Reference frame all landmarks are rescaled into
	TargetWidth  int
	TargetHeight int

	// Smoothing
	Smoothness float64 // 0 = snap, 1 = 10% per tick
	Demo       bool    // Drive the puppet from the synthetic generator

	// Head pose
	HeadPoseSource    HeadPoseSource
	EulerRangeDegrees float64 // Tracker angle mapped to full deflection

	Arbiter     arbiter.Config
	Calibration features.Calibration
}

// DefaultConfig returns the shipped configuration: 60 Hz, 1080p reference
// frame, medium smoothing, geometric head pose.
func DefaultConfig() Config {
	return Config{
		TickInterval:      time.Second / 60,
		TargetWidth:       1920,
		TargetHeight:      1080,
		Smoothness:        0.5,
		HeadPoseSource:    HeadPoseGeometry,
		EulerRangeDegrees: 30,
		Arbiter:           arbiter.DefaultConfig(),
		Calibration:       features.DefaultCalibration(),
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("%w: tick interval must be positive, got %v", ErrInvalidConfig, c.TickInterval)
	}
	if c.TargetWidth <= 0 || c.TargetHeight <= 0 {
		return fmt.Errorf("%w: target frame must be positive, got %dx%d", ErrInvalidConfig, c.TargetWidth, c.TargetHeight)
	}
	if c.Smoothness < 0 || c.Smoothness > 1 {
		return fmt.Errorf("%w: smoothness must be in [0,1], got %v", ErrInvalidConfig, c.Smoothness)
	}
	if _, err := ParseHeadPoseSource(string(c.HeadPoseSource)); err != nil {
		return err
	}
	if c.EulerRangeDegrees <= 0 {
		return fmt.Errorf("%w: euler range must be positive, got %v", ErrInvalidConfig, c.EulerRangeDegrees)
	}
	return c.Arbiter.Validate()
}
