package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// ReplayConfig configures pcap replay.
type ReplayConfig struct {
	// Port keeps only UDP datagrams sent to this port. 0 keeps all.
	Port int

	// Speed scales the original packet timing (1 = real time, 2 = twice as
	// fast). 0 replays as fast as possible.
	Speed float64

	// OnCapture, if set, is called with each packet's capture time before
	// the packet is filtered and offered.
	OnCapture func(captured time.Time)
}

// Replayer feeds tracker datagrams from a pcap capture into the pipeline.
type Replayer struct {
	trackingIngest
	config ReplayConfig
}

// NewReplayer creates a replayer.
func NewReplayer(config ReplayConfig, sink Sink, logger *slog.Logger) *Replayer {
	r := &Replayer{config: config}
	r.init(sink, logger, "replay")
	return r
}

// ReplayFile replays the capture at path.
func (r *Replayer) ReplayFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open PCAP file %s: %w", path, err)
	}
	defer f.Close()
	return r.Replay(ctx, f)
}

// Replay reads a pcap stream until EOF or cancellation.
func (r *Replayer) Replay(ctx context.Context, in io.Reader) error {
	reader, err := pcapgo.NewReader(in)
	if err != nil {
		return fmt.Errorf("failed to read PCAP header: %w", err)
	}

	source := gopacket.NewPacketSource(reader, reader.LinkType())
	source.DecodeOptions.Lazy = true

	r.logger.Info("PCAP replay started", "port", r.config.Port, "speed", r.config.Speed)
	started := time.Now()
	var lastCapture time.Time
	packets := 0

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("PCAP replay cancelled", "packets", packets)
			return ctx.Err()

		case packet, ok := <-source.Packets():
			if !ok || packet == nil {
				r.logger.Info("PCAP replay complete",
					"packets", packets,
					"elapsed", time.Since(started),
					"stats", r.Stats())
				return nil
			}

			captured := packet.Metadata().Timestamp
			if err := r.pace(ctx, lastCapture, captured); err != nil {
				return err
			}
			lastCapture = captured
			if r.config.OnCapture != nil {
				r.config.OnCapture(captured)
			}

			udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
			if !ok {
				continue
			}
			if r.config.Port != 0 && int(udp.DstPort) != r.config.Port {
				continue
			}
			if len(udp.Payload) == 0 {
				continue
			}

			packets++
			r.handlePacket(udp.Payload)
		}
	}
}

// pace sleeps for the scaled gap between two capture timestamps.
func (r *Replayer) pace(ctx context.Context, last, next time.Time) error {
	if r.config.Speed <= 0 || last.IsZero() {
		return nil
	}
	delay := time.Duration(float64(next.Sub(last)) / r.config.Speed)
	if delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// Stats returns replay statistics.
func (r *Replayer) Stats() Stats {
	return r.snapshot("replay")
}
