// Package web serves the puppet's state to renderers and operators over
// HTTP and websockets.
package web

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-puppet/pkg/hub"
	"github.com/teslashibe/go-puppet/pkg/ingest"
	"github.com/teslashibe/go-puppet/pkg/protocol"
	"github.com/teslashibe/go-puppet/pkg/puppet"
	"github.com/teslashibe/go-puppet/pkg/smoothing"
)

// DefaultStatusEvery is how many ticks may pass between status broadcasts
// when nothing changes.
const DefaultStatusEvery = 60

// Pipeline is the part of *puppet.Pipeline the server reads and tunes.
type Pipeline interface {
	State() smoothing.AnimationState
	Status() puppet.Status
	GetTuningParams() puppet.TuningParams
	SetTuningParams(u puppet.TuningUpdate) error
}

// Config configures the server.
type Config struct {
	Addr        string // listen address, e.g. ":8080"
	Version     string // reported by /health
	StaticDir   string // optional renderer assets served at /
	StatusEvery uint64 // ticks between unchanged status broadcasts
}

// Server is the HTTP and websocket front end
type Server struct {
	app      *fiber.App
	config   Config
	pipeline Pipeline
	logger   *slog.Logger

	sourcesMu sync.RWMutex
	sources   []ingest.StatsProvider

	// Hubs for websocket broadcast
	stateHub    *hub.Hub
	statusHub   *hub.Hub
	trackingHub *hub.Hub
	packetHub   *hub.Hub

	statusMu   sync.Mutex
	lastStatus statusKey
	lastTick   uint64
	sentStatus bool
}

// statusKey is the part of Status whose change triggers a broadcast.
type statusKey struct {
	state   string
	mode    string
	quality string
}

// NewServer creates a server for pipeline.
func NewServer(config Config, pipeline Pipeline, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if config.StatusEvery == 0 {
		config.StatusEvery = DefaultStatusEvery
	}

	s := &Server{
		config:      config,
		pipeline:    pipeline,
		logger:      logger.With("component", "web"),
		stateHub:    hub.New("state", logger),
		statusHub:   hub.New("status", logger),
		trackingHub: hub.New("tracking", logger),
		packetHub:   hub.New("tracking-raw", logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Puppet",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())

	// CORS for renderers served from elsewhere
	app.Use(cors.New())

	app.Get("/health", s.handleHealth)

	if config.StaticDir != "" {
		app.Static("/", config.StaticDir)
	}

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/state", s.handleState)
	api.Get("/tuning", s.handleGetTuning)
	api.Post("/tuning", s.handleSetTuning)
	api.Get("/ingest", s.handleIngest)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket routes
	app.Get("/ws/state", websocket.New(s.serve(s.stateHub)))
	app.Get("/ws/status", websocket.New(s.serve(s.statusHub)))
	app.Get("/ws/tracking", websocket.New(s.serve(s.trackingHub)))
	app.Get("/ws/tracking/raw", websocket.New(s.serve(s.packetHub)))

	s.app = app
	return s
}

// Router returns the router so other components can mount routes.
func (s *Server) Router() fiber.Router {
	return s.app
}

// AddSource registers an ingest adapter for /api/ingest.
func (s *Server) AddSource(src ingest.StatsProvider) {
	s.sourcesMu.Lock()
	defer s.sourcesMu.Unlock()
	s.sources = append(s.sources, src)
}

// Start runs the hubs and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	for _, h := range s.hubs() {
		go h.Run(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("web server listening", "addr", s.config.Addr)
		errCh <- s.app.Listen(s.config.Addr)
	}()

	select {
	case <-ctx.Done():
		return s.app.Shutdown()
	case err := <-errCh:
		return err
	}
}

// Render broadcasts the animation state every tick, and the status when it
// changes or every StatusEvery ticks. It implements puppet.Renderer.
func (s *Server) Render(state smoothing.AnimationState, status puppet.Status) {
	s.broadcast(s.stateHub, protocol.TypeState, state)

	if s.statusDue(status) {
		s.broadcast(s.statusHub, protocol.TypeStatus, status)
	}
}

// RelayTracking forwards a decoded tracker frame to /ws/tracking as JSON and
// to /ws/tracking/raw as an OpenSeeFace packet.
func (s *Server) RelayTracking(data *protocol.TrackingData) {
	if s.trackingHub.ClientCount() > 0 {
		s.broadcast(s.trackingHub, protocol.TypeTracking, data)
	}
	if s.packetHub.ClientCount() > 0 && len(data.Landmarks) == protocol.LandmarkCount {
		s.packetHub.BroadcastBinary(protocol.EncodeOpenSeeFace(data))
	}
}

func (s *Server) statusDue(status puppet.Status) bool {
	key := statusKey{state: status.State.String(), mode: status.Mode, quality: status.NetworkQuality}

	s.statusMu.Lock()
	defer s.statusMu.Unlock()

	if s.sentStatus && key == s.lastStatus && status.Ticks-s.lastTick < s.config.StatusEvery {
		return false
	}
	s.sentStatus = true
	s.lastStatus = key
	s.lastTick = status.Ticks
	return true
}

func (s *Server) broadcast(h *hub.Hub, msgType protocol.MessageType, v any) {
	msg, err := protocol.NewMessage(msgType, v)
	if err != nil {
		s.logger.Warn("failed to encode broadcast", "type", msgType, "error", err)
		return
	}
	if err := h.BroadcastJSON(msg); err != nil {
		s.logger.Warn("failed to encode broadcast", "type", msgType, "error", err)
	}
}

func (s *Server) serve(h *hub.Hub) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		hub.Serve(h, c)
	}
}

func (s *Server) hubs() []*hub.Hub {
	return []*hub.Hub{s.stateHub, s.statusHub, s.trackingHub, s.packetHub}
}

// Shutdown gracefully stops the web server
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
