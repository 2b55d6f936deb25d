package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-sonify/pkg/hub"
	"github.com/teslashibe/go-sonify/pkg/protocol"
)

// handleStatus returns the current status
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.ctrl.Snapshot())
}

// handleContinue presses the operator button
func (s *Server) handleContinue(c *fiber.Ctx) error {
	if err := s.ctrl.Continue(); err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	s.logger.Info("operator continue from web", "remote", c.IP())
	return c.JSON(s.ctrl.Snapshot())
}

// handleStatusWS sends the current status, then streams updates
func (s *Server) handleStatusWS(c *websocket.Conn) {
	m, err := protocol.NewStatusMessage(s.ctrl.Snapshot())
	if err == nil {
		var msg hub.Message
		if msg, err = hub.FromProtocol(m); err == nil {
			err = c.WriteMessage(websocket.TextMessage, msg.Data)
		}
	}
	if err != nil {
		s.logger.Debug("status websocket closed", "error", err)
		c.Close()
		return
	}

	client := hub.NewClient(s.statusHub, c)
	if client == nil {
		c.Close()
		return
	}
	client.Run()
}
