package ingest

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-puppet/pkg/protocol"
)

// SensorConnection represents a connected local sensor
type SensorConnection struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time
	LastSeen  time.Time

	mu sync.Mutex
}

// Send sends a message to the sensor
func (s *SensorConnection) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Conn.WriteMessage(websocket.TextMessage, data)
}

func (s *SensorConnection) touch() {
	s.mu.Lock()
	s.LastSeen = time.Now()
	s.mu.Unlock()
}

// LocalHub accepts websocket connections from on-device landmark sensors
// (for example a browser running Face Mesh) and offers their batches to
// the pipeline as the local source.
type LocalHub struct {
	counters
	sink   Sink
	logger *slog.Logger

	mu      sync.RWMutex
	sensors map[string]*SensorConnection
}

// NewLocalHub creates a hub offering to sink.
func NewLocalHub(sink Sink, logger *slog.Logger) *LocalHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalHub{
		sink:    sink,
		logger:  logger.With("component", "local"),
		sensors: make(map[string]*SensorConnection),
	}
}

// RegisterRoutes registers the sensor websocket routes
func (h *LocalHub) RegisterRoutes(app fiber.Router) {
	app.Use("/ws/local", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/local", websocket.New(h.handleSensor))
	app.Get("/ws/local/:id", websocket.New(h.handleSensor))
}

// handleSensor handles one sensor connection
func (h *LocalHub) handleSensor(c *websocket.Conn) {
	sensorID := c.Params("id")
	if sensorID == "" {
		sensorID = uuid.NewString()
	}

	sensor := &SensorConnection{
		ID:        sensorID,
		Conn:      c,
		Connected: time.Now(),
		LastSeen:  time.Now(),
	}

	h.mu.Lock()
	h.sensors[sensorID] = sensor
	count := len(h.sensors)
	h.mu.Unlock()

	h.logger.Info("sensor connected", "sensor", sensorID, "total", count)

	defer func() {
		h.mu.Lock()
		if h.sensors[sensorID] == sensor {
			delete(h.sensors, sensorID)
		}
		count := len(h.sensors)
		h.mu.Unlock()

		h.logger.Info("sensor disconnected", "sensor", sensorID, "total", count)
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			h.logger.Debug("sensor read error", "sensor", sensorID, "error", err)
			return
		}

		sensor.touch()
		h.received.Add(1)
		h.handleMessage(sensor, data)
	}
}

// handleMessage processes one message from a sensor
func (h *LocalHub) handleMessage(sensor *SensorConnection, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		h.reject(sensor, err)
		return
	}

	switch msg.Type {
	case protocol.TypeLandmarks:
		batch, err := msg.GetLandmarksData()
		if err != nil {
			h.reject(sensor, err)
			return
		}
		raw, err := batch.ToRaw(msg.Time())
		if err != nil {
			h.reject(sensor, err)
			return
		}
		if len(raw.Points) == 0 {
			h.ignored.Add(1)
			return
		}
		h.accepted.Add(1)
		h.sink.Offer(raw)

	case protocol.TypePing:
		pong, err := protocol.NewPongMessage(sensor.ID, msg.Timestamp, time.Now().UnixMilli())
		if err == nil {
			err = sensor.Send(pong)
		}
		if err != nil {
			h.logger.Debug("pong failed", "sensor", sensor.ID, "error", err)
		}

	default:
		h.reject(sensor, errors.New("unsupported message type: "+string(msg.Type)))
	}
}

func (h *LocalHub) reject(sensor *SensorConnection, cause error) {
	h.dropped.Add(1)
	h.logger.Debug("rejected sensor message", "sensor", sensor.ID, "error", cause)

	reply, err := protocol.NewErrorMessage(cause)
	if err != nil {
		return
	}
	if err := sensor.Send(reply); err != nil {
		h.logger.Debug("error reply failed", "sensor", sensor.ID, "error", err)
	}
}

// SensorCount returns the number of connected sensors
func (h *LocalHub) SensorCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sensors)
}

// SensorInfo contains info about a connected sensor
type SensorInfo struct {
	ID        string    `json:"id"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
}

// GetSensorInfos returns info about all connected sensors
func (h *LocalHub) GetSensorInfos() []SensorInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	infos := make([]SensorInfo, 0, len(h.sensors))
	for _, s := range h.sensors {
		s.mu.Lock()
		infos = append(infos, SensorInfo{
			ID:        s.ID,
			Connected: s.Connected,
			LastSeen:  s.LastSeen,
		})
		s.mu.Unlock()
	}
	return infos
}

// Stats returns hub statistics.
func (h *LocalHub) Stats() Stats {
	s := h.snapshot("local")
	s.Clients = h.SensorCount()
	s.Connected = s.Clients > 0
	return s
}
