package landmarks

import (
	"math"
	"time"
)

// Fallback source resolution when a producer omits its dimensions.
const (
	DefaultSourceWidth  = 1280
	DefaultSourceHeight = 720
)

// noMapping marks a canonical role with no dense-topology counterpart.
const noMapping = -1

// mediaPipeIndex maps each canonical role to its Face Mesh vertex index.
// Unexported and only ever copied out: a wrong entry here silently corrupts
// every downstream feature.
var mediaPipeIndex = [Count]int{
	// jawline 0-16
	10, 338, 297, 332, 284, 251, 389, 356, 454, 323, 361, 288, 397, 365, 379, 378, 400,
	// left brow 17-21
	70, 63, 105, 66, 107,
	// right brow 22-26
	336, 296, 334, 293, 300,
	// nose bridge 27-30
	168, 6, 197, 195,
	// nostrils 31-35
	98, 97, 2, 326, 327,
	// left eye 36-41
	33, 160, 158, 133, 153, 144,
	// right eye 42-47
	362, 385, 387, 263, 373, 380,
	// outer lip 48-59
	61, 39, 37, 0, 267, 269, 291, 405, 314, 17, 84, 181,
	// inner lip 60-67
	78, 82, 13, 312, 308, 317, 14, 87,
}

// MediaPipeTable returns a copy of the dense-to-canonical mapping table.
func MediaPipeTable() [Count]int {
	return mediaPipeIndex
}

// MediaPipeIndex returns the Face Mesh vertex for a canonical index.
func MediaPipeIndex(canonical int) (int, bool) {
	if canonical < 0 || canonical >= Count {
		return 0, false
	}
	idx := mediaPipeIndex[canonical]
	return idx, idx != noMapping
}

// Normalize maps raw points from topology onto the canonical set and
// rescales them from the source frame (srcW x srcH) into the target frame
// (dstW x dstH). Source dimensions default to 1280x720 when omitted; a
// missing target keeps the source frame. Points the producer did not supply
// become sentinels. Normalize never fails.
func Normalize(points []Point2D, topology Topology, srcW, srcH, dstW, dstH int) Set {
	srcW, srcH = sourceDims(srcW, srcH)
	if dstW <= 0 || dstH <= 0 {
		dstW, dstH = srcW, srcH
	}
	sx := float64(dstW) / float64(srcW)
	sy := float64(dstH) / float64(srcH)

	var out Set
	for i := range out {
		src := sourceIndex(topology, i)
		if src < 0 || src >= len(points) {
			out[i] = Sentinel
			continue
		}
		out[i] = finite(points[src].Scale(sx, sy))
	}
	return out
}

// finite replaces NaN or infinite coordinates with the sentinel.
func finite(p Point2D) Point2D {
	if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
		return Sentinel
	}
	return p
}

func sourceIndex(topology Topology, canonical int) int {
	switch topology {
	case MediaPipe:
		return mediaPipeIndex[canonical]
	case IBUG68:
		return canonical
	default:
		return noMapping
	}
}

func sourceDims(w, h int) (int, int) {
	if w <= 0 {
		w = DefaultSourceWidth
	}
	if h <= 0 {
		h = DefaultSourceHeight
	}
	return w, h
}

// Normalizer converts raw producer batches into observations expressed in a
// fixed consumer reference frame.
type Normalizer struct {
	TargetWidth  int
	TargetHeight int
}

// NewNormalizer returns a Normalizer targeting a width x height frame.
func NewNormalizer(width, height int) Normalizer {
	return Normalizer{TargetWidth: width, TargetHeight: height}
}

// Normalize turns a raw batch into an Observation stamped with observedAt.
func (n Normalizer) Normalize(raw Raw, observedAt time.Time) Observation {
	srcW, srcH := sourceDims(raw.Width, raw.Height)

	points := raw.Points
	if raw.Normalized {
		points = make([]Point2D, len(raw.Points))
		for i, p := range raw.Points {
			points[i] = p.Scale(float64(srcW), float64(srcH))
		}
	}

	dstW, dstH := n.TargetWidth, n.TargetHeight
	if dstW <= 0 || dstH <= 0 {
		dstW, dstH = srcW, srcH
	}

	// Unusable angles are dropped so geometry takes over.
	var euler *Euler
	if raw.Euler != nil && raw.Euler.Finite() {
		e := *raw.Euler
		euler = &e
	}

	return Observation{
		Source:     raw.Source,
		Landmarks:  Normalize(points, raw.Topology, srcW, srcH, dstW, dstH),
		Width:      dstW,
		Height:     dstH,
		ObservedAt: observedAt,
		CapturedAt: raw.CapturedAt,
		QualityOK:  raw.QualityOK,
		Euler:      euler,
	}
}
