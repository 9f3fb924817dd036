package web

import (
	"github.com/gofiber/fiber/v2"
)

// handleIndex serves the overlay page
func (s *Server) handleIndex(c *fiber.Ctx) error {
	c.Type("html")
	return c.Send(indexHTML)
}

// handleHealth reports readiness; 503 while loading
func (s *Server) handleHealth(c *fiber.Ctx) error {
	if !s.Ready() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"ready": false})
	}
	return c.JSON(fiber.Map{"ready": true})
}

// handleState returns the latest state
func (s *Server) handleState(c *fiber.Ctx) error {
	return c.JSON(s.State())
}

// handleStats returns loop counters
func (s *Server) handleStats(c *fiber.Ctx) error {
	if s.OnGetStats == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "stats not available",
		})
	}
	return c.JSON(s.OnGetStats())
}

// handleGetCamera returns the capture config
func (s *Server) handleGetCamera(c *fiber.Ctx) error {
	if s.OnGetCameraConfig == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "camera not configured",
		})
	}
	return c.JSON(s.OnGetCameraConfig())
}

// handleSetCamera applies a partial capture config update
func (s *Server) handleSetCamera(c *fiber.Ctx) error {
	if s.OnSetCameraConfig == nil || s.OnGetCameraConfig == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "camera not configured",
		})
	}

	var params map[string]interface{}
	if err := c.BodyParser(&params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid JSON body",
		})
	}

	if err := s.OnSetCameraConfig(params); err != nil {
		s.logger.Warn("camera config rejected", "params", params, "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(s.OnGetCameraConfig())
}
