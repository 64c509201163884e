package smoothing

import (
	"math"
	"time"

	"github.com/teslashibe/go-puppet/pkg/features"
)

// DemoLerpRate is the fixed blend fraction used in demo mode.
const DemoLerpRate = 0.15

// Demo generates a synthetic, endlessly looping face so the puppet can be
// shown without any tracker attached. Each channel runs at its own
// frequency so blinks, smiles and head motion look unrelated.
type Demo struct {
	start time.Time
}

// NewDemo returns a Demo whose phase starts at start.
func NewDemo(start time.Time) *Demo {
	return &Demo{start: start}
}

// Target always produces a frame.
func (d *Demo) Target(now time.Time) (features.Frame, bool) {
	t := now.Sub(d.start).Seconds()

	eyeOpen := 0.5 + 0.5*math.Sin(t*2)
	return features.Frame{
		Blink:     1 - eyeOpen,
		Smile:     0.5 + 0.5*math.Sin(t*0.8),
		MouthOpen: 0.3 + 0.3*math.Sin(t*3),
		Yaw:       0.3 * math.Sin(t*0.5),
		Pitch:     0.2 * math.Sin(t*0.7),
		Roll:      0.1 * math.Sin(t*0.3),
	}, true
}

// LerpRate returns DemoLerpRate.
func (d *Demo) LerpRate() float64 {
	return DemoLerpRate
}
