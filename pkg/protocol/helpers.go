package protocol

import (
	"fmt"
	"time"

	"github.com/teslashibe/go-puppet/pkg/landmarks"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewLandmarksMessage creates a local landmark batch message
func NewLandmarksMessage(data LandmarksData) (*Message, error) {
	return NewMessage(TypeLandmarks, data)
}

// NewTrackingMessage wraps a tracker payload in the envelope
func NewTrackingMessage(data *TrackingData) (*Message, error) {
	return NewMessage(TypeTracking, data)
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
	})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// NewErrorMessage creates an error reply
func NewErrorMessage(err error) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Error: err.Error()})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetLandmarksData extracts a landmark batch from a message
func (m *Message) GetLandmarksData() (*LandmarksData, error) {
	var data LandmarksData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetTrackingData extracts a tracker payload from a message
func (m *Message) GetTrackingData() (*TrackingData, error) {
	var data TrackingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// =============================================================================
// Conversion to pipeline input
// =============================================================================

// ParseTopology maps a wire topology name. Empty means MediaPipe.
func ParseTopology(name string) (landmarks.Topology, error) {
	switch name {
	case "", "mediapipe":
		return landmarks.MediaPipe, nil
	case "ibug68":
		return landmarks.IBUG68, nil
	default:
		return 0, fmt.Errorf("unknown topology %q", name)
	}
}

// ToRaw converts a local batch into pipeline input. capturedAt is the
// envelope timestamp and may be zero.
func (d *LandmarksData) ToRaw(capturedAt time.Time) (landmarks.Raw, error) {
	topo, err := ParseTopology(d.Topology)
	if err != nil {
		return landmarks.Raw{}, err
	}
	return landmarks.Raw{
		Source:     landmarks.Local,
		Topology:   topo,
		Points:     toPoints(d.Points),
		Normalized: d.Normalized,
		Width:      d.Width,
		Height:     d.Height,
		CapturedAt: capturedAt,
		QualityOK:  len(d.Points) > 0,
	}, nil
}

func toPoints(in []Point) []landmarks.Point2D {
	out := make([]landmarks.Point2D, len(in))
	for i, p := range in {
		out[i] = landmarks.Point2D{X: p.X, Y: p.Y}
	}
	return out
}
