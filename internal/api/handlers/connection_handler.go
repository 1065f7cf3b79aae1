package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postengine/internal/repository"
)

type ConnectionHandler struct {
	cr repository.ConnectionRepository
}

func NewConnectionHandler(cr repository.ConnectionRepository) *ConnectionHandler {
	return &ConnectionHandler{cr: cr}
}

// ListConnections returns connection metadata; token fields are never
// serialized.
func (h *ConnectionHandler) ListConnections(c *fiber.Ctx) error {
	conns, err := h.cr.List(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "unable to list connections",
		})
	}
	return c.Status(fiber.StatusOK).JSON(conns)
}
