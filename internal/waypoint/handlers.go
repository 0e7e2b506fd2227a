package waypoint

import (
	"errors"

	"backend-triplog/internal/recorder"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/kinds", func(c *fiber.Ctx) error {
		return c.JSON(svc.Kinds())
	})

	r.Get("/", func(c *fiber.Ctx) error {
		events, err := svc.Events()
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		return c.JSON(events)
	})

	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		var req LogRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.Kind == "" {
			req.Kind = KindNote
		}
		event, err := svc.LogEvent(req.Kind, req.Note)
		switch {
		case errors.Is(err, ErrUnknownKind):
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		case errors.Is(err, recorder.ErrNoActiveRoute), errors.Is(err, recorder.ErrNoFix):
			return fiber.NewError(fiber.StatusConflict, err.Error())
		case err != nil:
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(event)
	})
}
