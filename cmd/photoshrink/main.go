package main

import (
	"context"
	"fmt"
	stdlog "log"
	"os"
	"strings"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/PhotoShrink/app/controllers"
	apiv1 "github.com/ManuelReschke/PhotoShrink/internal/api/v1"
	"github.com/ManuelReschke/PhotoShrink/internal/pkg/cache"
	"github.com/ManuelReschke/PhotoShrink/internal/pkg/compressor"
	"github.com/ManuelReschke/PhotoShrink/internal/pkg/env"
	"github.com/ManuelReschke/PhotoShrink/internal/pkg/profilephoto"
	"github.com/ManuelReschke/PhotoShrink/internal/pkg/router"
	"github.com/ManuelReschke/PhotoShrink/internal/pkg/storage"
)

const openAPIFile = "./public/docs/v1/openapi.yml"

func main() {
	app, err := NewApplication(context.Background())
	if err != nil {
		stdlog.Fatal(err)
	}

	err = app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	stdlog.Fatal(err)
}

func NewApplication(ctx context.Context) (*fiber.App, error) {
	env.SetupEnvFile()
	cache.SetupCache()

	cfg, err := compressor.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid compressor config: %w", err)
	}
	comp, err := compressor.New(cfg)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to set up %s storage: %w", env.GetEnv("STORAGE_DRIVER", "local"), err)
	}
	log.Infof("[App] Using %s storage", store.Name())

	service := profilephoto.NewService(comp, store,
		profilephoto.WithTracker(profilephoto.RedisTracker{}),
		profilephoto.WithMaxConcurrent(env.GetEnvInt("COMPRESS_MAX_CONCURRENT", profilephoto.DefaultMaxConcurrent)),
		profilephoto.WithQueueTimeout(time.Duration(env.GetEnvInt("COMPRESS_QUEUE_TIMEOUT_SECONDS", int(profilephoto.DefaultQueueTimeout/time.Second)))*time.Second),
	)

	app := fiber.New(fiber.Config{
		BodyLimit: env.GetEnvInt("APP_BODY_LIMIT_MB", 60) << 20,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", monitor.New())

	// serve photos written by the local store
	if local, ok := store.(*storage.LocalStore); ok {
		base := env.GetEnv("STORAGE_PUBLIC_BASE_URL", "/uploads")
		if strings.HasPrefix(base, "/") {
			app.Static(base, local.BaseDir(), fiber.Static{
				CacheDuration: 10 * time.Second,
				Compress:      false,
				MaxAge:        604800, // 7 days
			})
		}
	}

	// SWAGGER / OPENAPI
	if _, err := os.Stat(openAPIFile); err == nil {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: openAPIFile,
			Path:     "v1",
			Title:    "PhotoShrink API",
		}))
	} else {
		log.Warnf("[App] API docs disabled, %s not found", openAPIFile)
	}

	// ROUTER
	router.InstallRouter(app, apiv1.NewAPIServer(controllers.NewProfilePhotoController(service)))

	return app, nil
}
