package landmarks

import (
	"fmt"
	"math"
	"time"
)

// SourceID identifies the provenance of a landmark set.
type SourceID int

const (
	// Network is the remote tracker (OpenSeeFace-compatible).
	Network SourceID = iota
	// Local is the on-device sensor (MediaPipe Face Mesh).
	Local
)

// String returns the source name used in logs and status payloads.
func (s SourceID) String() string {
	switch s {
	case Network:
		return "network"
	case Local:
		return "local"
	default:
		return fmt.Sprintf("source(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s SourceID) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Topology identifies a producer's landmark layout.
type Topology int

const (
	// IBUG68 is the canonical 68-point layout.
	IBUG68 Topology = iota
	// MediaPipe is the dense Face Mesh layout (468 points, 478 with iris refinement).
	MediaPipe
)

// String returns the topology name.
func (t Topology) String() string {
	switch t {
	case IBUG68:
		return "ibug68"
	case MediaPipe:
		return "mediapipe"
	default:
		return fmt.Sprintf("topology(%d)", int(t))
	}
}

// Euler holds head rotation angles in degrees as reported by the network
// tracker, in its order: pitch, yaw, roll.
type Euler [3]float64

// Pitch returns the pitch angle in degrees.
func (e Euler) Pitch() float64 { return e[0] }

// Yaw returns the yaw angle in degrees.
func (e Euler) Yaw() float64 { return e[1] }

// Roll returns the roll angle in degrees.
func (e Euler) Roll() float64 { return e[2] }

// Finite reports whether all three angles are finite numbers.
func (e Euler) Finite() bool {
	for _, v := range e {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Raw is a producer's landmark batch before normalization.
type Raw struct {
	Source   SourceID
	Topology Topology
	Points   []Point2D

	// Normalized marks points in [0,1] that must be multiplied by the
	// source resolution first.
	Normalized bool

	// Width and Height are the source resolution. Zero means unknown.
	Width  int
	Height int

	CapturedAt time.Time
	QualityOK  bool
	Euler      *Euler
}

// Observation is a normalized landmark set tagged with its source. At most
// one live Observation exists per source; a newer one supersedes it.
type Observation struct {
	Source     SourceID
	Landmarks  Set
	Width      int // reference frame the landmarks are expressed in
	Height     int
	ObservedAt time.Time // arrival time, used for staleness
	CapturedAt time.Time // producer timestamp, informational
	QualityOK  bool
	Euler      *Euler
}

// Age returns how old the observation is at now.
func (o *Observation) Age(now time.Time) time.Duration {
	return now.Sub(o.ObservedAt)
}
