package ingest

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-puppet/pkg/protocol"
)

// BridgeClient dials a websocket bridge that republishes tracker frames as
// JSON, reconnecting until its context is cancelled.
type BridgeClient struct {
	trackingIngest

	url            string
	dialer         *websocket.Dialer
	reconnectDelay time.Duration
	connected      atomic.Bool
}

// NewBridgeClient creates a client for url. An empty url uses
// ws://localhost:8765.
func NewBridgeClient(url string, sink Sink, logger *slog.Logger) *BridgeClient {
	if url == "" {
		url = protocol.DefaultBridgeURL
	}
	b := &BridgeClient{
		url: url,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 5 * time.Second,
		},
		reconnectDelay: 2 * time.Second,
	}
	b.init(sink, logger, "bridge")
	return b
}

// SetReconnectDelay sets the pause between connection attempts.
func (b *BridgeClient) SetReconnectDelay(d time.Duration) {
	b.reconnectDelay = d
}

// Run connects and reads until ctx is cancelled.
func (b *BridgeClient) Run(ctx context.Context) error {
	attempt := 0
	for {
		conn, _, err := b.dialer.DialContext(ctx, b.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			attempt++
			// First failure at info, then quietly retry.
			if attempt == 1 {
				b.logger.Info("bridge unavailable, retrying", "url", b.url, "error", err)
			} else {
				b.logger.Debug("bridge dial failed", "url", b.url, "attempt", attempt, "error", err)
			}
		} else {
			attempt = 0
			b.logger.Info("bridge connected", "url", b.url)
			b.readLoop(ctx, conn)
			b.logger.Info("bridge disconnected", "url", b.url)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(b.reconnectDelay):
		}
	}
}

func (b *BridgeClient) readLoop(ctx context.Context, conn *websocket.Conn) {
	b.connected.Store(true)
	defer b.connected.Store(false)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				b.logger.Debug("bridge read error", "error", err)
			}
			return
		}
		b.handleJSON(data)
	}
}

// Connected reports whether a bridge connection is open.
func (b *BridgeClient) Connected() bool {
	return b.connected.Load()
}

// Stats returns client statistics.
func (b *BridgeClient) Stats() Stats {
	s := b.snapshot("bridge")
	s.Connected = b.Connected()
	return s
}
