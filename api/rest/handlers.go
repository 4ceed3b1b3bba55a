package rest

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"yqhp/worker-fleet/pkg/controlsurface"
)

// healthCheck handles GET /health
func (s *Server) healthCheck(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// readyCheck handles GET /ready. Ready means a run has all its groups started.
func (s *Server) readyCheck(c *fiber.Ctx) error {
	resp := ReadyResponse{
		Status:    "not_ready",
		Timestamp: time.Now().Format(time.RFC3339),
	}

	id, cs := controlsurface.Latest()
	if cs != nil && cs.GetStatus != nil && cs.GetStatus().Phase == controlsurface.PhaseRunning {
		resp.Ready = true
		resp.Status = "ready"
		resp.RunID = id
	}

	if !resp.Ready {
		return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
	}
	return c.JSON(resp)
}

// lookup resolves the run addressed by id, or the latest run when id is empty.
func lookup(id string) (*controlsurface.ControlSurface, error) {
	var cs *controlsurface.ControlSurface
	if id == "" {
		_, cs = controlsurface.Latest()
	} else {
		cs = controlsurface.Get(id)
	}
	if cs == nil || cs.GetStatus == nil {
		return nil, fiber.NewError(fiber.StatusNotFound, "run not found")
	}
	return cs, nil
}

// getStatus handles GET /status
func (s *Server) getStatus(c *fiber.Ctx) error {
	cs, err := lookup(c.Query("run"))
	if err != nil {
		return err
	}
	return c.JSON(cs.GetStatus())
}

// getChannel handles GET /status/channels/:name
func (s *Server) getChannel(c *fiber.Ctx) error {
	cs, err := lookup(c.Query("run"))
	if err != nil {
		return err
	}

	stats, ok := cs.GetStatus().Channel(c.Params("name"))
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "channel not found")
	}
	return c.JSON(stats)
}

// listRuns handles GET /api/v1/runs
func (s *Server) listRuns(c *fiber.Ctx) error {
	runs := controlsurface.List()
	return c.JSON(RunListResponse{
		Runs:  runs,
		Total: len(runs),
	})
}

// getRun handles GET /api/v1/runs/:id
func (s *Server) getRun(c *fiber.Ctx) error {
	cs, err := lookup(c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(cs.GetStatus())
}

// stopRun handles POST /api/v1/runs/:id/stop
func (s *Server) stopRun(c *fiber.Ctx) error {
	cs, err := lookup(c.Params("id"))
	if err != nil {
		return err
	}
	if cs.StopRun == nil {
		return fiber.NewError(fiber.StatusConflict, "run cannot be stopped")
	}
	if err := cs.StopRun(); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "stop_failed",
			Message: err.Error(),
		})
	}
	return c.JSON(SuccessResponse{
		Success: true,
		Message: "stop requested",
	})
}
