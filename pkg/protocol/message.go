// Package protocol defines the wire formats spoken by tracking producers and
// puppet renderers: the JSON websocket envelope, the tracker JSON payload and
// the OpenSeeFace UDP packet.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Producer → server messages
	TypeLandmarks MessageType = "landmarks" // Local sensor landmark batch
	TypeTracking  MessageType = "tracking"  // Network tracker payload

	// Server → renderer messages
	TypeState  MessageType = "state"  // Smoothed animation state
	TypeStatus MessageType = "status" // Arbitration status
	TypeTuning MessageType = "tuning" // Runtime tuning snapshot

	// Bidirectional
	TypePing  MessageType = "ping"  // Health check
	TypePong  MessageType = "pong"  // Health check response
	TypeError MessageType = "error" // Rejected message
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data any) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v any) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Time returns the envelope timestamp, or the zero time if unset.
func (m *Message) Time() time.Time {
	if m.Timestamp == 0 {
		return time.Time{}
	}
	return time.UnixMilli(m.Timestamp)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Producer → Server Message Types
// =============================================================================

// Point is a landmark coordinate on the wire.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// LandmarksData is a landmark batch from the local sensor.
type LandmarksData struct {
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Normalized bool    `json:"normalized"`         // points in [0,1]
	Topology   string  `json:"topology,omitempty"` // "mediapipe" (default) or "ibug68"
	Points     []Point `json:"points"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}

// ErrorData explains why a message was rejected.
type ErrorData struct {
	Error string `json:"error"`
}
