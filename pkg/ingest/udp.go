package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/teslashibe/go-puppet/pkg/protocol"
)

// readTimeout bounds each blocking read so cancellation is noticed.
const readTimeout = 100 * time.Millisecond

// UDPListener receives OpenSeeFace tracker datagrams.
type UDPListener struct {
	trackingIngest

	address string
	rcvBuf  int

	connMu sync.RWMutex
	conn   *net.UDPConn
}

// NewUDPListener creates a listener for address (host:port). An empty
// address uses the tracker's default 127.0.0.1:11573.
func NewUDPListener(address string, sink Sink, logger *slog.Logger) *UDPListener {
	if address == "" {
		address = protocol.DefaultUDPAddr
	}
	l := &UDPListener{address: address, rcvBuf: 1 << 20}
	l.init(sink, logger, "udp")
	return l
}

// Start listens until ctx is cancelled. It returns nil on a clean shutdown.
func (l *UDPListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	l.setConn(conn)
	defer l.Close()

	if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
		l.logger.Warn("failed to set receive buffer", "bytes", l.rcvBuf, "error", err)
	}
	l.logger.Info("UDP listener started", "addr", conn.LocalAddr().String())

	buffer := make([]byte, 4096)
	for {
		if ctx.Err() != nil {
			l.logger.Info("UDP listener stopped", "stats", l.Stats())
			return nil
		}
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			l.logger.Debug("failed to set read deadline", "error", err)
		}

		n, _, err := conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			l.logger.Warn("UDP read error", "error", err)
			continue
		}
		l.handlePacket(buffer[:n])
	}
}

// Addr returns the bound address, or nil before Start has bound.
func (l *UDPListener) Addr() net.Addr {
	l.connMu.RLock()
	defer l.connMu.RUnlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Close closes the socket. It is safe to call Close multiple times.
func (l *UDPListener) Close() error {
	l.connMu.Lock()
	conn := l.conn
	l.conn = nil
	l.connMu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (l *UDPListener) setConn(conn *net.UDPConn) {
	l.connMu.Lock()
	defer l.connMu.Unlock()
	l.conn = conn
}

// Stats returns listener statistics.
func (l *UDPListener) Stats() Stats {
	s := l.snapshot("udp")
	s.Connected = l.Addr() != nil
	return s
}
