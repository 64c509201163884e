// Package ingest adapts tracking producers (UDP tracker packets, the JSON
// websocket bridge, MQTT, local sensor websockets and pcap captures) into
// landmark batches offered to the pipeline.
package ingest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-puppet/pkg/landmarks"
	"github.com/teslashibe/go-puppet/pkg/protocol"
)

// Sink receives raw landmark batches. *puppet.Pipeline implements it.
type Sink interface {
	Offer(raw landmarks.Raw)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(raw landmarks.Raw)

// Offer calls f.
func (f SinkFunc) Offer(raw landmarks.Raw) { f(raw) }

// Stats contains adapter statistics
type Stats struct {
	Name      string `json:"name"`
	Received  uint64 `json:"received"` // Messages or packets read
	Accepted  uint64 `json:"accepted"` // Offered to the pipeline
	Dropped   uint64 `json:"dropped"`  // Malformed
	Ignored   uint64 `json:"ignored"`  // Well-formed but without landmarks
	Connected bool   `json:"connected"`
	Clients   int    `json:"clients,omitempty"`
}

// StatsProvider is implemented by every adapter.
type StatsProvider interface {
	Stats() Stats
}

type counters struct {
	received atomic.Uint64
	accepted atomic.Uint64
	dropped  atomic.Uint64
	ignored  atomic.Uint64
}

func (c *counters) snapshot(name string) Stats {
	return Stats{
		Name:     name,
		Received: c.received.Load(),
		Accepted: c.accepted.Load(),
		Dropped:  c.dropped.Load(),
		Ignored:  c.ignored.Load(),
	}
}

// trackingIngest is the shared path for network tracker payloads,
// whichever transport carried them.
type trackingIngest struct {
	counters
	sink   Sink
	logger *slog.Logger

	mu         sync.RWMutex
	onTracking func(*protocol.TrackingData)
}

func (t *trackingIngest) init(sink Sink, logger *slog.Logger, component string) {
	if logger == nil {
		logger = slog.Default()
	}
	t.sink = sink
	t.logger = logger.With("component", component)
}

// OnTracking sets a callback invoked with every decoded tracker frame,
// before the landmark check. Used to relay frames to websocket clients.
func (t *trackingIngest) OnTracking(callback func(*protocol.TrackingData)) {
	t.mu.Lock()
	t.onTracking = callback
	t.mu.Unlock()
}

// handlePacket decodes an OpenSeeFace datagram.
func (t *trackingIngest) handlePacket(b []byte) {
	t.received.Add(1)
	data, err := protocol.DecodeOpenSeeFace(b)
	if err != nil {
		t.dropped.Add(1)
		t.logger.Debug("dropped packet", "bytes", len(b), "error", err)
		return
	}
	t.handle(data)
}

// handleJSON accepts either a bare tracker payload, as the bridge sends, or
// one wrapped in a "tracking" envelope.
func (t *trackingIngest) handleJSON(b []byte) {
	t.received.Add(1)
	data, err := decodeTrackingJSON(b)
	if err != nil {
		t.dropped.Add(1)
		t.logger.Debug("dropped message", "bytes", len(b), "error", err)
		return
	}
	t.handle(data)
}

func decodeTrackingJSON(b []byte) (*protocol.TrackingData, error) {
	if msg, err := protocol.ParseMessage(b); err == nil {
		if msg.Type != protocol.TypeTracking {
			return nil, fmt.Errorf("unexpected message type %q", msg.Type)
		}
		return msg.GetTrackingData()
	}
	var data protocol.TrackingData
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

func (t *trackingIngest) handle(data *protocol.TrackingData) {
	t.mu.RLock()
	relay := t.onTracking
	t.mu.RUnlock()
	if relay != nil {
		relay(data)
	}

	if !data.HasLandmarks() {
		t.ignored.Add(1)
		return
	}
	t.accepted.Add(1)
	t.sink.Offer(data.ToRaw())
}
