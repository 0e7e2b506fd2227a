package history

import (
	"errors"
	"strconv"

	"backend-triplog/internal/route"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/routes", func(c *fiber.Ctx) error {
		f, err := parseFilter(c)
		if err != nil {
			return err
		}
		return c.JSON(svc.List(f))
	})

	r.Get("/routes/summary", func(c *fiber.Ctx) error {
		f, err := parseFilter(c)
		if err != nil {
			return err
		}
		return c.JSON(svc.Summary(f))
	})

	r.Get("/routes/:id", func(c *fiber.Ctx) error {
		rt, err := svc.Get(c.Params("id"))
		if err != nil {
			return historyError(err)
		}
		draft, hasDraft := svc.EditDraft(rt.ID)
		if !hasDraft {
			return c.JSON(fiber.Map{"route": rt})
		}
		return c.JSON(fiber.Map{"route": rt, "draft": draft})
	})

	r.Get("/routes/:id/geojson", func(c *fiber.Ctx) error {
		fc, err := svc.GeoJSON(c.Params("id"))
		if err != nil {
			return historyError(err)
		}
		payload, err := fc.MarshalJSON()
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		c.Set(fiber.HeaderContentType, "application/geo+json")
		return c.Send(payload)
	})

	r.Put("/routes/:id/draft", authMiddleware, func(c *fiber.Ctx) error {
		var patch route.MetadataPatch
		if err := c.BodyParser(&patch); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := svc.SetEditDraft(c.Params("id"), patch); err != nil {
			return historyError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Post("/routes/:id/commit", authMiddleware, func(c *fiber.Ctx) error {
		rt, err := svc.Commit(c.Params("id"))
		if err != nil {
			return historyError(err)
		}
		return c.JSON(rt)
	})

	r.Post("/routes/:id/undo", authMiddleware, func(c *fiber.Ctx) error {
		rt, err := svc.Undo(c.Params("id"))
		if err != nil {
			return historyError(err)
		}
		return c.JSON(rt)
	})

	r.Post("/routes/:id/redo", authMiddleware, func(c *fiber.Ctx) error {
		rt, err := svc.Redo(c.Params("id"))
		if err != nil {
			return historyError(err)
		}
		return c.JSON(rt)
	})

	r.Delete("/routes/:id", authMiddleware, func(c *fiber.Ctx) error {
		if err := svc.Delete(c.Params("id")); err != nil {
			return historyError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Get("/sync/queue", func(c *fiber.Ctx) error {
		return c.JSON(svc.SyncQueue())
	})

	r.Post("/sync/reconnect", authMiddleware, func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"flushed": svc.Reconnect(c.Context())})
	})
}

func parseFilter(c *fiber.Ctx) (Filter, error) {
	f := Filter{Type: c.Query("type"), Query: c.Query("q")}
	for name, dst := range map[string]*int64{"from": &f.From, "to": &f.To} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Filter{}, fiber.NewError(fiber.StatusBadRequest, name+" must be epoch milliseconds")
		}
		*dst = v
	}
	return f, nil
}

func historyError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrNoDraft), errors.Is(err, ErrNothingToUndo), errors.Is(err, ErrNothingToRedo):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
