package protocol

import (
	"math"
	"time"

	"github.com/teslashibe/go-puppet/pkg/landmarks"
)

// TrackedPoint is one landmark of a network tracker frame.
type TrackedPoint struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence"`
}

// EyeFeatures are the optional per-eye openness values some tracker builds
// append to each packet.
type EyeFeatures struct {
	EyeLeft  float64 `json:"eyeLeft"`
	EyeRight float64 `json:"eyeRight"`
}

// TrackingData is one face from the network tracker. The JSON form is what
// the websocket bridge and MQTT producers publish.
type TrackingData struct {
	Timestamp     float64        `json:"timestamp"` // Unix seconds
	FaceID        int32          `json:"faceId"`
	Width         float64        `json:"width"`
	Height        float64        `json:"height"`
	EyeBlinkLeft  float64        `json:"eyeBlinkLeft"`
	EyeBlinkRight float64        `json:"eyeBlinkRight"`
	Success       bool           `json:"success"`
	PnPError      float64        `json:"pnpError,omitempty"`
	Quaternion    [4]float64     `json:"quaternion"`
	Euler         *[3]float64    `json:"euler,omitempty"` // pitch, yaw, roll in degrees
	Translation   [3]float64     `json:"translation"`
	Landmarks     []TrackedPoint `json:"landmarks"`
	Features      *EyeFeatures   `json:"features,omitempty"`
}

// HasLandmarks reports whether the frame carries any points.
func (d *TrackingData) HasLandmarks() bool {
	return len(d.Landmarks) > 0
}

// CapturedAt converts the tracker timestamp. Zero or invalid timestamps give
// the zero time.
func (d *TrackingData) CapturedAt() time.Time {
	if d.Timestamp <= 0 || math.IsNaN(d.Timestamp) || math.IsInf(d.Timestamp, 0) {
		return time.Time{}
	}
	sec, frac := math.Modf(d.Timestamp)
	return time.Unix(int64(sec), int64(frac*1e9))
}

// ToRaw converts the frame into pipeline input. Points are canonical
// 68-point order in source pixels.
func (d *TrackingData) ToRaw() landmarks.Raw {
	points := make([]landmarks.Point2D, len(d.Landmarks))
	for i, p := range d.Landmarks {
		points[i] = landmarks.Point2D{X: p.X, Y: p.Y}
	}

	var euler *landmarks.Euler
	if d.Euler != nil {
		e := landmarks.Euler(*d.Euler)
		euler = &e
	}

	return landmarks.Raw{
		Source:     landmarks.Network,
		Topology:   landmarks.IBUG68,
		Points:     points,
		Width:      dimension(d.Width),
		Height:     dimension(d.Height),
		CapturedAt: d.CapturedAt(),
		QualityOK:  d.Success,
		Euler:      euler,
	}
}

// clean zeroes NaN and infinite values so the frame can always be relayed
// as JSON. Euler angles are dropped whole; a zero landmark is the missing
// point sentinel.
func (d *TrackingData) clean() {
	zero := func(v *float64) {
		if math.IsNaN(*v) || math.IsInf(*v, 0) {
			*v = 0
		}
	}
	zero(&d.Timestamp)
	zero(&d.Width)
	zero(&d.Height)
	zero(&d.EyeBlinkLeft)
	zero(&d.EyeBlinkRight)
	zero(&d.PnPError)
	for i := range d.Quaternion {
		zero(&d.Quaternion[i])
	}
	for i := range d.Translation {
		zero(&d.Translation[i])
	}
	if d.Euler != nil && !landmarks.Euler(*d.Euler).Finite() {
		d.Euler = nil
	}
	for i := range d.Landmarks {
		p := &d.Landmarks[i]
		zero(&p.Confidence)
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			p.X, p.Y = 0, 0
		}
	}
	if d.Features != nil {
		zero(&d.Features.EyeLeft)
		zero(&d.Features.EyeRight)
	}
}

// dimension rounds a float resolution, mapping nonsense to 0 (unknown).
func dimension(v float64) int {
	if !(v > 0) || v > math.MaxInt32 {
		return 0
	}
	return int(math.Round(v))
}
