package runs

import (
	"errors"

	"backend-runbarbie/internal/auth"
	"backend-runbarbie/internal/shared/geo"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/start", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.RequireUser(c)
		if err != nil {
			return err
		}
		var req StartRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "invalid body")
			}
		}
		resp, err := svc.Start(c.Context(), userID, req)
		if err != nil {
			return mapError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(resp)
	})

	r.Patch("/:id/location", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.RequireUser(c)
		if err != nil {
			return err
		}
		var req LocationRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid body")
		}
		if req.Lat == nil || req.Lng == nil {
			return fiber.NewError(fiber.StatusBadRequest, "lat and lng required")
		}
		coord := geo.Coordinate{Lat: *req.Lat, Lng: *req.Lng}
		if !coord.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, "coordinates out of range")
		}
		if err := svc.UpdateLocation(c.Context(), userID, c.Params("id"), coord); err != nil {
			return mapError(err)
		}
		return c.JSON(OKResponse{OK: true})
	})

	r.Patch("/:id/end", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.RequireUser(c)
		if err != nil {
			return err
		}
		var req EndRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid body")
		}
		if req.DistanceKm == nil || req.DurationSeconds == nil {
			return fiber.NewError(fiber.StatusBadRequest, "distanceKm and durationSeconds required")
		}
		if *req.DistanceKm < 0 || *req.DurationSeconds < 0 {
			return fiber.NewError(fiber.StatusBadRequest, "totals must not be negative")
		}
		if err := svc.End(c.Context(), userID, c.Params("id"), *req.DistanceKm, *req.DurationSeconds); err != nil {
			return mapError(err)
		}
		return c.JSON(OKResponse{OK: true})
	})

	r.Post("/:id/sos", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.RequireUser(c)
		if err != nil {
			return err
		}
		resp, err := svc.TriggerSOS(c.Context(), userID, c.Params("id"))
		if err != nil {
			return mapError(err)
		}
		return c.JSON(resp)
	})

	r.Get("/history", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.RequireUser(c)
		if err != nil {
			return err
		}
		entries, err := svc.History(c.Context(), userID, c.QueryInt("limit", 0))
		if err != nil {
			return mapError(err)
		}
		return c.JSON(HistoryResponse{Runs: entries})
	})

	r.Get("/live/:userId", authMiddleware, func(c *fiber.Ctx) error {
		if _, err := auth.RequireUser(c); err != nil {
			return err
		}
		resp, err := svc.LiveLocation(c.Context(), c.Params("userId"))
		if err != nil {
			return mapError(err)
		}
		return c.JSON(resp)
	})
}

func mapError(err error) error {
	if errors.Is(err, ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, ErrNotFound.Error())
	}
	return err
}
