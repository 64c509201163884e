package protocol

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func sampleTracking() *TrackingData {
	euler := [3]float64{10, -5, 2}
	d := &TrackingData{
		Timestamp:     1700000000.25,
		FaceID:        3,
		Width:         640,
		Height:        480,
		EyeBlinkLeft:  0.5,
		EyeBlinkRight: 0.75,
		Success:       true,
		PnPError:      0.125,
		Quaternion:    [4]float64{0, 0.5, 0, 1},
		Euler:         &euler,
		Translation:   [3]float64{1, 2, 3},
		Landmarks:     make([]TrackedPoint, LandmarkCount),
	}
	for i := range d.Landmarks {
		d.Landmarks[i] = TrackedPoint{X: float64(i * 2), Y: float64(i*3 + 1), Confidence: 0.5}
	}
	return d
}

func TestPacketSize(t *testing.T) {
	if PacketSize != 889 {
		t.Errorf("PacketSize = %d, want 889", PacketSize)
	}
	if got := len(EncodeOpenSeeFace(sampleTracking())); got != PacketSize {
		t.Errorf("encoded length = %d, want %d", got, PacketSize)
	}
}

func TestOpenSeeFace_RoundTrip(t *testing.T) {
	// All sample values are exactly representable as float32.
	tests := []struct {
		name     string
		features *EyeFeatures
	}{
		{"without features", nil},
		{"with features", &EyeFeatures{EyeLeft: 0.25, EyeRight: 0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := sampleTracking()
			want.Features = tt.features

			got, err := DecodeOpenSeeFace(EncodeOpenSeeFace(want))
			if err != nil {
				t.Fatalf("DecodeOpenSeeFace() error = %v", err)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeOpenSeeFace_LandmarkOrder(t *testing.T) {
	// Coordinates are stored y first.
	d := sampleTracking()
	got, err := DecodeOpenSeeFace(EncodeOpenSeeFace(d))
	if err != nil {
		t.Fatal(err)
	}
	if got.Landmarks[10].X != 20 || got.Landmarks[10].Y != 31 {
		t.Errorf("landmark 10 = %+v, want x=20 y=31", got.Landmarks[10])
	}
}

func TestDecodeOpenSeeFace_Short(t *testing.T) {
	b := EncodeOpenSeeFace(sampleTracking())

	for _, n := range []int{0, 1, headerSize, PacketSize - 1} {
		_, err := DecodeOpenSeeFace(b[:n])
		if !errors.Is(err, ErrShortPacket) {
			t.Errorf("len %d: err = %v, want ErrShortPacket", n, err)
		}
	}
}

func TestDecodeOpenSeeFace_FailedTracking(t *testing.T) {
	d := sampleTracking()
	d.Success = false

	got, err := DecodeOpenSeeFace(EncodeOpenSeeFace(d))
	if err != nil {
		t.Fatal(err)
	}
	if got.Success {
		t.Error("Success should be false")
	}
	if raw := got.ToRaw(); raw.QualityOK {
		t.Error("failed tracking must map to QualityOK=false")
	}
}

func TestDecodeOpenSeeFace_TrailingBytesIgnored(t *testing.T) {
	d := sampleTracking()
	d.Features = &EyeFeatures{EyeLeft: 1, EyeRight: 1}
	b := append(EncodeOpenSeeFace(d), make([]byte, 100)...)

	got, err := DecodeOpenSeeFace(b)
	if err != nil {
		t.Fatal(err)
	}
	if got.Features == nil || got.Features.EyeLeft != 1 {
		t.Errorf("features = %+v", got.Features)
	}
}

func TestDecodeOpenSeeFace_NonFinite(t *testing.T) {
	d := sampleTracking()
	euler := [3]float64{math.NaN(), 0, 0}
	d.Euler = &euler
	d.Timestamp = math.Inf(1)
	d.EyeBlinkLeft = math.NaN()
	d.Landmarks[5] = TrackedPoint{X: math.NaN(), Y: 7, Confidence: math.Inf(-1)}

	got, err := DecodeOpenSeeFace(EncodeOpenSeeFace(d))
	if err != nil {
		t.Fatal(err)
	}
	if got.Euler != nil {
		t.Errorf("Euler = %v, want nil", *got.Euler)
	}
	if got.Timestamp != 0 || got.EyeBlinkLeft != 0 {
		t.Errorf("timestamp = %v, blink = %v, want zeros", got.Timestamp, got.EyeBlinkLeft)
	}
	if got.Landmarks[5] != (TrackedPoint{}) {
		t.Errorf("landmark 5 = %+v, want sentinel", got.Landmarks[5])
	}
	if _, err := json.Marshal(got); err != nil {
		t.Errorf("json.Marshal() error = %v", err)
	}
}
