package places

import (
	"errors"
	"strconv"

	"backend-runbarbie/internal/auth"
	"backend-runbarbie/internal/shared/geo"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.RequireUser(c)
		if err != nil {
			return err
		}
		var req CreateRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid body")
		}
		p, err := svc.Create(c.Context(), userID, req)
		if err != nil {
			return mapError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(p)
	})

	r.Get("/nearby", authMiddleware, func(c *fiber.Ctx) error {
		if _, err := auth.RequireUser(c); err != nil {
			return err
		}
		lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
		lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
		if errLat != nil || errLng != nil {
			return fiber.NewError(fiber.StatusBadRequest, "lat and lng required")
		}
		radius, _ := strconv.ParseFloat(c.Query("radiusKm"), 64)
		found, err := svc.Nearby(c.Context(), geo.Coordinate{Lat: lat, Lng: lng}, radius)
		if err != nil {
			return mapError(err)
		}
		return c.JSON(found)
	})
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNameRequired), errors.Is(err, ErrInvalidKind), errors.Is(err, ErrInvalidPoint):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	default:
		return err
	}
}
