package puppet

import (
	"math"
	"sync"
	"time"

	"github.com/teslashibe/go-puppet/pkg/arbiter"
	"github.com/teslashibe/go-puppet/pkg/features"
	"github.com/teslashibe/go-puppet/pkg/landmarks"
	"github.com/teslashibe/go-puppet/pkg/smoothing"
)

// evaluation is the outcome of one live arbitration.
type evaluation struct {
	decision  arbiter.Decision
	geometric *features.Frame // extracted from landmarks, nil when no source
	target    *features.Frame // geometric with optional Euler head pose
}

// live follows the authoritative tracking source. It is the
// smoothing.TargetProvider used outside demo mode.
type live struct {
	arbiter *arbiter.Arbiter

	mu          sync.RWMutex
	calibration features.Calibration
	headPose    HeadPoseSource
	eulerRange  float64
	smoothness  float64
	last        evaluation
}

var _ smoothing.TargetProvider = (*live)(nil)

func newLive(arb *arbiter.Arbiter, cfg Config) *live {
	return &live{
		arbiter:     arb,
		calibration: cfg.Calibration,
		headPose:    cfg.HeadPoseSource,
		eulerRange:  cfg.EulerRangeDegrees,
		smoothness:  cfg.Smoothness,
	}
}

// Target arbitrates at now and returns the frame to follow.
func (l *live) Target(now time.Time) (features.Frame, bool) {
	ev := l.evaluate(now)
	if ev.target == nil {
		return features.Frame{}, false
	}
	return *ev.target, true
}

// LerpRate derives the blend fraction from the smoothness knob.
func (l *live) LerpRate() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return smoothing.LerpRate(l.smoothness)
}

func (l *live) evaluate(now time.Time) evaluation {
	d := l.arbiter.Arbitrate(now)

	l.mu.Lock()
	defer l.mu.Unlock()

	ev := evaluation{decision: d}
	if obs := d.Observation; obs != nil {
		geo := l.calibration.Extract(obs.Landmarks)
		target := geo
		if l.headPose == HeadPoseNetwork && obs.Euler != nil {
			target.Yaw, target.Pitch, target.Roll = eulerHeadPose(*obs.Euler, l.eulerRange)
		}
		ev.geometric = &geo
		ev.target = &target
	}
	l.last = ev
	return ev
}

func (l *live) lastEvaluation() evaluation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.last
}

// eulerHeadPose maps tracker degrees onto the feature ranges: yaw and pitch
// are normalized by rangeDeg and clamped, roll becomes radians.
func eulerHeadPose(e landmarks.Euler, rangeDeg float64) (yaw, pitch, roll float64) {
	yaw = clampUnit(e.Yaw() / rangeDeg)
	pitch = clampUnit(e.Pitch() / rangeDeg)
	roll = finite(e.Roll() * math.Pi / 180)
	return yaw, pitch, roll
}

func clampUnit(v float64) float64 {
	return math.Max(-1, math.Min(1, finite(v)))
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
