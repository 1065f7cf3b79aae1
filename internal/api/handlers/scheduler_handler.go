package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postengine/internal/scheduler"
	"github.com/maheshrc27/postengine/internal/transfer"
)

type SchedulerHandler struct {
	runtime *scheduler.Runtime
}

func NewSchedulerHandler(runtime *scheduler.Runtime) *SchedulerHandler {
	return &SchedulerHandler{runtime: runtime}
}

func (h *SchedulerHandler) Start(c *fiber.Ctx) error {
	h.runtime.Start()
	return c.Status(fiber.StatusOK).JSON(h.runtime.Status())
}

func (h *SchedulerHandler) Stop(c *fiber.Ctx) error {
	h.runtime.Stop()
	return c.Status(fiber.StatusOK).JSON(h.runtime.Status())
}

func (h *SchedulerHandler) Restart(c *fiber.Ctx) error {
	h.runtime.Restart()
	return c.Status(fiber.StatusOK).JSON(h.runtime.Status())
}

func (h *SchedulerHandler) UpdateSchedule(c *fiber.Ctx) error {
	var body transfer.ScheduleUpdate
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "unable to parse request body",
		})
	}

	if err := h.runtime.UpdateSchedule(body.Schedule); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(h.runtime.Status())
}

func (h *SchedulerHandler) Status(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(h.runtime.Status())
}
