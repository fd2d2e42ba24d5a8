package server

import (
	"errors"

	"backend-runbarbie/internal/auth"
	"backend-runbarbie/internal/chat"
	"backend-runbarbie/internal/config"
	"backend-runbarbie/internal/db"
	"backend-runbarbie/internal/logger"
	"backend-runbarbie/internal/places"
	"backend-runbarbie/internal/runs"
	"backend-runbarbie/internal/social"
	"backend-runbarbie/internal/stream"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App    *fiber.App
	Cfg    config.Config
	DB     db.Querier
	Redis  *redis.Client
	Stream *stream.Hub
	Log    *logger.Logger

	Auth   *auth.Service
	Runs   *runs.Service
	Social *social.Service
	Chat   *chat.Service
	Places *places.Service
}

func NewServer(cfg config.Config, q db.Querier, redisClient *redis.Client, log *logger.Logger) *Server {
	log = logger.OrNop(log)

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(log)})
	app.Use(recover.New())
	app.Use(fiberlogger.New())

	hub := stream.NewHub(redisClient, cfg.StreamChannelPrefix, log)
	authSvc := auth.NewService(cfg.JWTSecret, q)
	runsSvc := runs.NewService(q, hub, authSvc, log)
	if cfg.HistoryDefaultLimit > 0 {
		runsSvc.SetDefaultHistoryLimit(cfg.HistoryDefaultLimit)
	}

	s := &Server{
		App:    app,
		Cfg:    cfg,
		DB:     q,
		Redis:  redisClient,
		Stream: hub,
		Log:    log,
		Auth:   authSvc,
		Runs:   runsSvc,
		Social: social.NewService(q, hub, log),
		Chat:   chat.NewService(q, hub, log),
		Places: places.NewService(q, log),
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	auth.RegisterRoutes(s.App.Group("/auth"), s.Auth)
	runs.RegisterRoutes(s.App.Group("/runs"), s.Runs, jwtMiddleware)
	social.RegisterRoutes(s.App.Group("/social"), s.Social, jwtMiddleware)
	chat.RegisterRoutes(s.App.Group("/chat"), s.Chat, jwtMiddleware)
	places.RegisterRoutes(s.App.Group("/places"), s.Places, jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream, s.Auth, s.Social)
}

// Close stops background work owned by the server.
func (s *Server) Close() {
	s.Stream.Close()
}

// ErrorHandler renders every error as {"error": message}. Server errors are
// logged and their detail is not sent to the client.
func ErrorHandler(log *logger.Logger) fiber.ErrorHandler {
	log = logger.OrNop(log)
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		msg := "internal server error"

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			msg = fe.Message
		}
		if code >= fiber.StatusInternalServerError {
			log.Error("request failed", "method", c.Method(), "path", c.Path(), "status", code, "error", err)
			msg = "internal server error"
		}
		return c.Status(code).JSON(fiber.Map{"error": msg})
	}
}
