// Package landmarks defines the canonical 68-point facial topology and
// normalizes producer-specific layouts onto it.
package landmarks

// Count is the number of points in the canonical (iBUG 68) topology.
const Count = 68

// Canonical landmark indices. Ranges follow the iBUG 300-W annotation:
// jawline 0-16, eyebrows 17-26, nose 27-35, eyes 36-47, outer lip 48-59,
// inner lip 60-67. Left/right are from the subject's image left.
const (
	JawFirst = 0
	Chin     = 8
	JawLast  = 16

	LeftBrowFirst  = 17
	LeftBrowLast   = 21
	RightBrowFirst = 22
	RightBrowLast  = 26

	NoseBridgeTop = 27
	NoseTip       = 30
	NostrilFirst  = 31
	NostrilLast   = 35

	LeftEyeOuter       = 36
	LeftEyeUpperOuter  = 37
	LeftEyeUpperInner  = 38
	LeftEyeInner       = 39
	LeftEyeLowerInner  = 40
	LeftEyeLowerOuter  = 41
	RightEyeInner      = 42
	RightEyeUpperInner = 43
	RightEyeUpperOuter = 44
	RightEyeOuter      = 45
	RightEyeLowerOuter = 46
	RightEyeLowerInner = 47

	MouthLeftCorner  = 48
	UpperLipCenter   = 51
	MouthRightCorner = 54
	LowerLipCenter   = 57

	InnerLipFirst       = 60
	InnerUpperLipCenter = 62
	InnerLowerLipCenter = 66
	InnerLipLast        = 67
)

// Point2D is a pixel-space coordinate in a declared reference frame.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Sentinel marks a landmark the producer did not supply. Keeping a value
// instead of an absence keeps index arithmetic total.
var Sentinel = Point2D{}

// IsSentinel reports whether p is the missing-point marker.
func (p Point2D) IsSentinel() bool {
	return p == Sentinel
}

// Scale returns p with independent x/y factors applied.
func (p Point2D) Scale(sx, sy float64) Point2D {
	return Point2D{X: p.X * sx, Y: p.Y * sy}
}

// Set is an ordered, fixed-size canonical landmark set. It is a value type:
// copies never alias, so a Set is effectively immutable once produced.
type Set [Count]Point2D

// At returns the point at a canonical index, or the sentinel when the index
// is out of range.
func (s *Set) At(i int) Point2D {
	if i < 0 || i >= Count {
		return Sentinel
	}
	return s[i]
}

// Missing returns how many points are sentinels.
func (s *Set) Missing() int {
	n := 0
	for _, p := range s {
		if p.IsSentinel() {
			n++
		}
	}
	return n
}
