package social

import (
	"errors"

	"backend-runbarbie/internal/auth"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	create := func(kind Kind) fiber.Handler {
		return func(c *fiber.Ctx) error {
			userID, err := auth.RequireUser(c)
			if err != nil {
				return err
			}
			var req CreatePostRequest
			if err := c.BodyParser(&req); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "invalid body")
			}
			post, err := svc.Create(c.Context(), userID, kind, req)
			if err != nil {
				return mapError(err)
			}
			return c.Status(fiber.StatusCreated).JSON(post)
		}
	}
	r.Post("/posts", authMiddleware, create(KindPost))
	r.Post("/stories", authMiddleware, create(KindStory))
	r.Post("/reels", authMiddleware, create(KindReel))

	r.Post("/posts/:id/like", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.RequireUser(c)
		if err != nil {
			return err
		}
		if err := svc.LikePost(c.Context(), userID, c.Params("id")); err != nil {
			return mapError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Post("/posts/:id/comments", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.RequireUser(c)
		if err != nil {
			return err
		}
		var req CommentRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid body")
		}
		comment, err := svc.CommentPost(c.Context(), userID, c.Params("id"), req.Body)
		if err != nil {
			return mapError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(comment)
	})

	r.Post("/follow/:userId", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.RequireUser(c)
		if err != nil {
			return err
		}
		if err := svc.Follow(c.Context(), userID, c.Params("userId")); err != nil {
			return mapError(err)
		}
		return c.SendStatus(fiber.StatusCreated)
	})

	r.Delete("/follow/:userId", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.RequireUser(c)
		if err != nil {
			return err
		}
		if err := svc.Unfollow(c.Context(), userID, c.Params("userId")); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Get("/feed", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.RequireUser(c)
		if err != nil {
			return err
		}
		feed, err := svc.Feed(c.Context(), userID, c.QueryInt("limit", 0))
		if err != nil {
			return err
		}
		return c.JSON(feed)
	})

	r.Get("/stories", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := auth.RequireUser(c)
		if err != nil {
			return err
		}
		stories, err := svc.ActiveStories(c.Context(), userID)
		if err != nil {
			return err
		}
		return c.JSON(stories)
	})
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrPostNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrSelfFollow), errors.Is(err, ErrEmptyPost), errors.Is(err, ErrEmptyComment), errors.Is(err, ErrInvalidKind):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return err
}
