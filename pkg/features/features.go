// Package features computes expression and head-pose features from a
// canonical landmark set using fixed geometric formulas.
package features

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/teslashibe/go-puppet/pkg/landmarks"
)

// epsilon floors every ratio denominator so sentinel points never produce
// NaN or Inf.
const epsilon = 1e-6

// Frame is one tick's worth of extracted features.
type Frame struct {
	Blink     float64 `json:"blink"`      // 0 open, 1 closed
	Smile     float64 `json:"smile"`      // 0-1
	MouthOpen float64 `json:"mouth_open"` // 0-1
	Yaw       float64 `json:"yaw"`        // -1..1, nose offset from eye midpoint
	Pitch     float64 `json:"pitch"`      // -1..1
	Roll      float64 `json:"roll"`       // radians, unclamped
}

// Calibration holds the empirical scale constants of the extractor. They
// were tuned by eye against the puppet artwork and define its look; change
// them only with calibration data.
type Calibration struct {
	EARScale       float64 // blink = 1 - EAR*EARScale
	SmileScale     float64 // smile = ratio*SmileScale
	MouthOpenScale float64 // mouthOpen = ratio*MouthOpenScale
	PitchCenter    float64 // neutral nose-to-bridge / nose-to-chin ratio
	PitchScale     float64 // pitch = (ratio - PitchCenter)*PitchScale
}

// DefaultCalibration returns the shipped calibration.
func DefaultCalibration() Calibration {
	return Calibration{
		EARScale:       3,
		SmileScale:     5,
		MouthOpenScale: 2,
		PitchCenter:    0.4,
		PitchScale:     2,
	}
}

// Extract computes a Frame with the default calibration.
func Extract(set landmarks.Set) Frame {
	return DefaultCalibration().Extract(set)
}

// Extract computes a Frame from set. It is pure: the same set always yields
// the same frame, and every field is within its declared range.
func (c Calibration) Extract(set landmarks.Set) Frame {
	g := geometry{set: &set}
	yaw, pitch, roll := c.headPose(g)
	return Frame{
		Blink:     c.blink(g),
		Smile:     c.smile(g),
		MouthOpen: c.mouthOpen(g),
		Yaw:       yaw,
		Pitch:     pitch,
		Roll:      roll,
	}
}

func (c Calibration) blink(g geometry) float64 {
	left := ratio(
		g.dist(landmarks.LeftEyeUpperOuter, landmarks.LeftEyeLowerOuter)+
			g.dist(landmarks.LeftEyeUpperInner, landmarks.LeftEyeLowerInner),
		2*g.dist(landmarks.LeftEyeOuter, landmarks.LeftEyeInner),
	)
	right := ratio(
		g.dist(landmarks.RightEyeUpperInner, landmarks.RightEyeLowerInner)+
			g.dist(landmarks.RightEyeUpperOuter, landmarks.RightEyeLowerOuter),
		2*g.dist(landmarks.RightEyeInner, landmarks.RightEyeOuter),
	)
	ear := (left + right) / 2
	return clamp01(1 - ear*c.EARScale)
}

// smile is positive when the mouth corners sit above the lip centre line
// (smaller y in image coordinates).
func (c Calibration) smile(g geometry) float64 {
	width := g.dist(landmarks.MouthLeftCorner, landmarks.MouthRightCorner)
	center := (g.at(landmarks.UpperLipCenter).Y + g.at(landmarks.LowerLipCenter).Y) / 2
	corners := (g.at(landmarks.MouthLeftCorner).Y + g.at(landmarks.MouthRightCorner).Y) / 2
	return clamp01(ratio(center-corners, width) * c.SmileScale)
}

func (c Calibration) mouthOpen(g geometry) float64 {
	width := g.dist(landmarks.MouthLeftCorner, landmarks.MouthRightCorner)
	height := g.dist(landmarks.InnerUpperLipCenter, landmarks.InnerLowerLipCenter)
	return clamp01(ratio(height, width) * c.MouthOpenScale)
}

// headPose is a landmark heuristic, not a rigid 3D solve.
func (c Calibration) headPose(g geometry) (yaw, pitch, roll float64) {
	left := g.at(landmarks.LeftEyeOuter)
	right := g.at(landmarks.RightEyeOuter)
	nose := g.at(landmarks.NoseTip)

	mid := r2.Scale(0.5, r2.Add(left, right))
	yaw = clamp(ratio(nose.X-mid.X, g.dist(landmarks.LeftEyeOuter, landmarks.RightEyeOuter)), -1, 1)

	noseToBridge := g.dist(landmarks.NoseTip, landmarks.NoseBridgeTop)
	noseToChin := g.dist(landmarks.NoseTip, landmarks.Chin)
	pitch = clamp((ratio(noseToBridge, noseToChin)-c.PitchCenter)*c.PitchScale, -1, 1)

	roll = math.Atan2(right.Y-left.Y, right.X-left.X)
	return yaw, pitch, roll
}

type geometry struct {
	set *landmarks.Set
}

func (g geometry) at(i int) r2.Vec {
	p := g.set.At(i)
	return r2.Vec{X: p.X, Y: p.Y}
}

func (g geometry) dist(i, j int) float64 {
	return r2.Norm(r2.Sub(g.at(i), g.at(j)))
}

// ratio divides with the denominator floored at epsilon. Negative
// denominators never occur: every caller passes a distance.
func ratio(num, den float64) float64 {
	return num / math.Max(den, epsilon)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		v = 0
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp01(v float64) float64 {
	return clamp(v, 0, 1)
}
