package router

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"

	apiv1 "github.com/ManuelReschke/PhotoShrink/internal/api/v1"
	"github.com/ManuelReschke/PhotoShrink/internal/pkg/env"
)

type ApiRouter struct {
	server  *apiv1.APIServer
	limiter fiber.Handler
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", h.limiter)
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1")
	apiv1.RegisterHandlers(v1, h.server)
}

func NewApiRouter(server *apiv1.APIServer, limit fiber.Handler) *ApiRouter {
	if limit == nil {
		limit = NewLimiter()
	}
	return &ApiRouter{server: server, limiter: limit}
}

// NewLimiter builds the API rate limiter from RATE_LIMIT_* settings. With
// RATE_LIMIT_STORAGE=redis the counters are shared between instances.
func NewLimiter() fiber.Handler {
	cfg := limiter.Config{
		Max:        env.GetEnvInt("RATE_LIMIT_MAX", 30),
		Expiration: time.Duration(env.GetEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "rate_limited",
				"message": "Too many requests, please slow down",
			})
		},
	}

	if env.GetEnv("RATE_LIMIT_STORAGE", "memory") == "redis" {
		port, err := strconv.Atoi(env.GetEnv("CACHE_PORT", "6379"))
		if err != nil {
			port = 6379
		}
		// DB 1 keeps limiter keys apart from status keys and counters in DB 0
		cfg.Storage = redis.New(redis.Config{
			Host:     env.GetEnv("CACHE_HOST", "localhost"),
			Port:     port,
			Password: env.GetEnv("CACHE_PASSWORD", ""),
			Database: 1,
			Reset:    false,
		})
		log.Info("[Router] Rate limiter uses redis storage")
	}

	return limiter.New(cfg)
}
