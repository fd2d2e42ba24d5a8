package chat

import (
	"errors"

	"backend-runbarbie/internal/auth"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/conversations", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.RequireUser(c)
		if err != nil {
			return err
		}
		var req CreateConversationRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid body")
		}
		conv, err := svc.CreateConversation(c.Context(), userID, req.ParticipantIDs)
		if err != nil {
			return mapError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(conv)
	})

	r.Get("/conversations", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.RequireUser(c)
		if err != nil {
			return err
		}
		convs, err := svc.Conversations(c.Context(), userID)
		if err != nil {
			return err
		}
		return c.JSON(convs)
	})

	r.Post("/conversations/:id/messages", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.RequireUser(c)
		if err != nil {
			return err
		}
		var req SendMessageRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid body")
		}
		msg, err := svc.SendMessage(c.Context(), userID, c.Params("id"), req.Body)
		if err != nil {
			return mapError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(msg)
	})

	r.Get("/conversations/:id/messages", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.RequireUser(c)
		if err != nil {
			return err
		}
		msgs, err := svc.Messages(c.Context(), userID, c.Params("id"), c.QueryInt("limit", 0))
		if err != nil {
			return mapError(err)
		}
		return c.JSON(msgs)
	})

	r.Get("/notifications", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.RequireUser(c)
		if err != nil {
			return err
		}
		list, err := svc.Notifications(c.Context(), userID, c.QueryInt("limit", 0))
		if err != nil {
			return err
		}
		return c.JSON(list)
	})

	r.Post("/notifications/read", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.RequireUser(c)
		if err != nil {
			return err
		}
		n, err := svc.MarkNotificationsRead(c.Context(), userID)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"updated": n})
	})
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotMember):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	case errors.Is(err, ErrNoParticipants), errors.Is(err, ErrEmptyMessage):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return err
}
