package recorder

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// FixSink receives fixes reported by the device over HTTP.
type FixSink interface {
	Push(p Position) int
	PushError(err error) int
}

type stopRequest struct {
	Name string `json:"name"`
}

type errorReport struct {
	Message string `json:"message"`
}

// RegisterRoutes mounts the recorder endpoints. The device feed is only
// mounted when sink is non-nil.
func RegisterRoutes(r fiber.Router, rec *Recorder, sink FixSink, authMiddleware fiber.Handler) {
	r.Get("/recorder", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"state": rec.State(), "route": rec.Active()})
	})

	r.Post("/recorder/start", authMiddleware, func(c *fiber.Ctx) error {
		started, err := rec.Start(c.Context())
		if err != nil {
			return recorderError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(started)
	})

	r.Post("/recorder/pause", authMiddleware, func(c *fiber.Ctx) error {
		if err := rec.Pause(); err != nil {
			return recorderError(err)
		}
		return c.JSON(fiber.Map{"state": rec.State()})
	})

	r.Post("/recorder/resume", authMiddleware, func(c *fiber.Ctx) error {
		if err := rec.Resume(c.Context()); err != nil {
			return recorderError(err)
		}
		return c.JSON(fiber.Map{"state": rec.State()})
	})

	r.Post("/recorder/stop", authMiddleware, func(c *fiber.Ctx) error {
		var req stopRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
		}
		final, err := rec.Stop(c.Context(), req.Name)
		if err != nil {
			return recorderError(err)
		}
		return c.JSON(final)
	})

	if sink == nil {
		return
	}

	r.Post("/recorder/positions", func(c *fiber.Ctx) error {
		var p Position
		if err := c.BodyParser(&p); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if p.Lat < -90 || p.Lat > 90 || p.Lon < -180 || p.Lon > 180 {
			return fiber.NewError(fiber.StatusBadRequest, "lat/lon out of range")
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"delivered": sink.Push(p)})
	})

	r.Post("/recorder/errors", func(c *fiber.Ctx) error {
		var req errorReport
		if err := c.BodyParser(&req); err != nil || req.Message == "" {
			return fiber.NewError(fiber.StatusBadRequest, "message required")
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"delivered": sink.PushError(errors.New(req.Message))})
	})
}

func recorderError(err error) error {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return fiber.NewError(fiber.StatusForbidden, PermissionHelp)
	case errors.Is(err, ErrGeolocationUnavailable):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	case errors.Is(err, ErrNoActiveRoute), errors.Is(err, ErrNoFix):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrAlreadyActive), errors.Is(err, ErrBusy),
		errors.Is(err, ErrNotRecording), errors.Is(err, ErrNotPaused):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
