package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postengine/internal/models"
	"github.com/maheshrc27/postengine/internal/repository"
	"github.com/maheshrc27/postengine/internal/service"
)

type PostHandler struct {
	pr repository.PostRepository
	s  service.AdminService
}

func NewPostHandler(pr repository.PostRepository, s service.AdminService) *PostHandler {
	return &PostHandler{pr: pr, s: s}
}

func (h *PostHandler) GetPost(c *fiber.Ctx) error {
	post, err := h.pr.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "unable to load post",
		})
	}
	if post == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "post does not exist",
		})
	}
	return c.Status(fiber.StatusOK).JSON(post)
}

func (h *PostHandler) ListPosts(c *fiber.Ctx) error {
	status := c.Query("status", models.PostStatusScheduled)

	posts, err := h.pr.ListByStatus(c.Context(), status)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "unable to list posts",
		})
	}
	return c.Status(fiber.StatusOK).JSON(posts)
}

// PublishNow bypasses the scheduled_for gate but still goes through the same
// claim, coordinate and finalize path as a scheduled publish.
func (h *PostHandler) PublishNow(c *fiber.Ctx) error {
	if err := h.s.PublishNow(c.Context(), c.Params("id")); err != nil {
		return adminError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "post dispatched for publishing",
	})
}

func (h *PostHandler) Retry(c *fiber.Ctx) error {
	if err := h.s.Retry(c.Context(), c.Params("id")); err != nil {
		return adminError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "post dispatched for retry",
	})
}

func (h *PostHandler) Repost(c *fiber.Ctx) error {
	newID, err := h.s.Repost(c.Context(), c.Params("id"))
	if err != nil {
		return adminError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"post_id": newID,
	})
}

func adminError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrPostNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, service.ErrPostNotClaimable), errors.Is(err, service.ErrPostNotFailed):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}
