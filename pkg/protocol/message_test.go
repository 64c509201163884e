package protocol

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/teslashibe/go-puppet/pkg/landmarks"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		data    any
		wantErr bool
	}{
		{
			name:    "landmarks message",
			msgType: TypeLandmarks,
			data:    LandmarksData{Width: 640, Height: 480, Points: []Point{{X: 1, Y: 2}}},
		},
		{
			name:    "nil data",
			msgType: TypePing,
			data:    nil,
		},
		{
			name:    "unmarshalable data",
			msgType: TypeState,
			data:    make(chan int),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.msgType, tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if msg.Type != tt.msgType {
				t.Errorf("NewMessage() type = %v, want %v", msg.Type, tt.msgType)
			}
			if msg.Timestamp == 0 {
				t.Error("NewMessage() timestamp should be set")
			}
		})
	}
}

func TestLandmarksMessageRoundTrip(t *testing.T) {
	original := LandmarksData{
		Width:      1280,
		Height:     720,
		Normalized: true,
		Points:     []Point{{X: 0.25, Y: 0.5}, {X: 0.75, Y: 0.5}},
	}

	msg, err := NewLandmarksMessage(original)
	if err != nil {
		t.Fatalf("NewLandmarksMessage() error = %v", err)
	}
	b, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}

	parsed, err := ParseMessage(b)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if parsed.Type != TypeLandmarks {
		t.Errorf("type = %v, want %v", parsed.Type, TypeLandmarks)
	}

	data, err := parsed.GetLandmarksData()
	if err != nil {
		t.Fatalf("GetLandmarksData() error = %v", err)
	}
	if data.Width != 1280 || !data.Normalized || len(data.Points) != 2 || data.Points[1].X != 0.75 {
		t.Errorf("round trip mismatch: %+v", data)
	}
}

func TestParseMessage_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not json", "{nope"},
		{"missing type", `{"ts": 5}`},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseMessage([]byte(tt.input)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestMessage_Time(t *testing.T) {
	m := &Message{Type: TypePing}
	if !m.Time().IsZero() {
		t.Error("zero timestamp should give zero time")
	}
	m.Timestamp = 1700000000123
	if got := m.Time().UnixMilli(); got != 1700000000123 {
		t.Errorf("Time() = %d ms", got)
	}
}

func TestPingPong(t *testing.T) {
	ping, err := NewPingMessage("abc")
	if err != nil {
		t.Fatal(err)
	}
	pd, err := ping.GetPingData()
	if err != nil {
		t.Fatal(err)
	}
	if pd.ID != "abc" || pd.Timestamp == 0 {
		t.Errorf("ping data = %+v", pd)
	}

	pong, err := NewPongMessage("abc", 100, 130)
	if err != nil {
		t.Fatal(err)
	}
	var data PongData
	if err := pong.ParseData(&data); err != nil {
		t.Fatal(err)
	}
	if data.LatencyMs != 30 {
		t.Errorf("LatencyMs = %d, want 30", data.LatencyMs)
	}
}

func TestNewErrorMessage(t *testing.T) {
	msg, err := NewErrorMessage(errors.New("bad topology"))
	if err != nil {
		t.Fatal(err)
	}
	var data ErrorData
	if err := msg.ParseData(&data); err != nil {
		t.Fatal(err)
	}
	if msg.Type != TypeError || data.Error != "bad topology" {
		t.Errorf("got %v %+v", msg.Type, data)
	}
}

func TestLandmarksData_ToRaw(t *testing.T) {
	at := time.UnixMilli(1700000000000)

	tests := []struct {
		name     string
		topology string
		want     landmarks.Topology
		wantErr  bool
	}{
		{"default is mediapipe", "", landmarks.MediaPipe, false},
		{"explicit ibug", "ibug68", landmarks.IBUG68, false},
		{"unknown", "dlib5", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := LandmarksData{Width: 640, Height: 480, Topology: tt.topology, Points: []Point{{X: 3, Y: 4}}}
			raw, err := d.ToRaw(at)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ToRaw() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if raw.Topology != tt.want || raw.Source != landmarks.Local {
				t.Errorf("raw = %+v", raw)
			}
			if !raw.CapturedAt.Equal(at) || !raw.QualityOK || raw.Points[0] != (landmarks.Point2D{X: 3, Y: 4}) {
				t.Errorf("raw = %+v", raw)
			}
		})
	}
}

func TestTrackingData_JSON(t *testing.T) {
	// Shape produced by the websocket bridge.
	input := `{
		"timestamp": 1700000000.5,
		"faceId": 0,
		"width": 640.0,
		"height": 480.0,
		"eyeBlinkLeft": 0.9,
		"eyeBlinkRight": 0.8,
		"success": true,
		"quaternion": [0, 0, 0, 1],
		"euler": [10.0, -5.0, 2.0],
		"translation": [0.1, 0.2, 0.3],
		"landmarks": [{"x": 100, "y": 200, "confidence": 0.9}],
		"features": {"eyeLeft": 0.7, "eyeRight": 0.6}
	}`

	var d TrackingData
	if err := json.Unmarshal([]byte(input), &d); err != nil {
		t.Fatal(err)
	}

	raw := d.ToRaw()
	if raw.Source != landmarks.Network || raw.Topology != landmarks.IBUG68 {
		t.Errorf("source/topology = %v/%v", raw.Source, raw.Topology)
	}
	if raw.Width != 640 || raw.Height != 480 {
		t.Errorf("dims = %dx%d", raw.Width, raw.Height)
	}
	if raw.Euler == nil || *raw.Euler != (landmarks.Euler{10, -5, 2}) {
		t.Errorf("euler = %v", raw.Euler)
	}
	if raw.Points[0] != (landmarks.Point2D{X: 100, Y: 200}) {
		t.Errorf("point = %+v", raw.Points[0])
	}
	if want := time.Unix(1700000000, 500_000_000); !raw.CapturedAt.Equal(want) {
		t.Errorf("CapturedAt = %v, want %v", raw.CapturedAt, want)
	}
	if !raw.QualityOK {
		t.Error("QualityOK should follow success")
	}
	if d.Features == nil || d.Features.EyeLeft != 0.7 {
		t.Errorf("features = %+v", d.Features)
	}
}

func TestTrackingData_NoEulerNoLandmarks(t *testing.T) {
	var d TrackingData
	if err := json.Unmarshal([]byte(`{"success": false, "width": -1}`), &d); err != nil {
		t.Fatal(err)
	}
	if d.HasLandmarks() {
		t.Error("HasLandmarks() should be false")
	}
	raw := d.ToRaw()
	if raw.Euler != nil || raw.QualityOK || raw.Width != 0 || !raw.CapturedAt.IsZero() {
		t.Errorf("raw = %+v", raw)
	}
}
