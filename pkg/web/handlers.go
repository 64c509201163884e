package web

import (
	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-puppet/pkg/hub"
	"github.com/teslashibe/go-puppet/pkg/ingest"
	"github.com/teslashibe/go-puppet/pkg/protocol"
	"github.com/teslashibe/go-puppet/pkg/puppet"
)

// handleHealth reports liveness
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"version": s.config.Version,
		"session": s.pipeline.Status().SessionID,
		"viewers":      s.stateHub.ClientCount() + s.statusHub.ClientCount(),
		"broadcasting": s.stateHub.IsRunning(),
	})
}

// handleStatus returns what is driving the puppet
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.pipeline.Status())
}

// handleState returns the current animation state
func (s *Server) handleState(c *fiber.Ctx) error {
	return c.JSON(s.pipeline.State())
}

// handleGetTuning returns the tuning parameters
func (s *Server) handleGetTuning(c *fiber.Ctx) error {
	return c.JSON(s.pipeline.GetTuningParams())
}

// handleSetTuning applies a partial tuning update
func (s *Server) handleSetTuning(c *fiber.Ctx) error {
	var update puppet.TuningUpdate
	if err := c.BodyParser(&update); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body: " + err.Error(),
		})
	}

	if err := s.pipeline.SetTuningParams(update); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	params := s.pipeline.GetTuningParams()
	s.broadcast(s.statusHub, protocol.TypeTuning, params)
	return c.JSON(params)
}

// IngestReport is the /api/ingest response.
type IngestReport struct {
	Sources []ingest.Stats      `json:"sources"`
	Sensors []ingest.SensorInfo `json:"sensors"`
	Hubs    []hub.Stats         `json:"hubs"`
}

// sensorLister is implemented by sources that accept sensor connections.
type sensorLister interface {
	GetSensorInfos() []ingest.SensorInfo
}

// handleIngest reports adapter and broadcast statistics
func (s *Server) handleIngest(c *fiber.Ctx) error {
	s.sourcesMu.RLock()
	report := IngestReport{
		Sources: make([]ingest.Stats, 0, len(s.sources)),
		Sensors: []ingest.SensorInfo{},
	}
	for _, src := range s.sources {
		report.Sources = append(report.Sources, src.Stats())
		if l, ok := src.(sensorLister); ok {
			report.Sensors = append(report.Sensors, l.GetSensorInfos()...)
		}
	}
	s.sourcesMu.RUnlock()

	for _, h := range s.hubs() {
		report.Hubs = append(report.Hubs, h.Stats())
	}
	return c.JSON(report)
}
