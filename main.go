package main

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm/logger"

	"opsconsole-backend/clock"
	"opsconsole-backend/config"
	"opsconsole-backend/controllers"
	"opsconsole-backend/database"
	"opsconsole-backend/middlewares"
	"opsconsole-backend/notify"
	"opsconsole-backend/routes"
	"opsconsole-backend/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := cfg.Logger()
	entry := logrus.NewEntry(log)

	// ---- Storage
	var (
		store workflow.Store
		idem  database.IdempotencyStore
	)
	switch cfg.StoreDriver {
	case config.StorePostgres:
		level := logger.Warn
		if !cfg.Production() {
			level = logger.Info
		}
		db, err := database.Connect(cfg.Database.ConnectionString(), level)
		if err != nil {
			log.WithError(err).Fatal("connect database")
		}
		if err := database.Migrate(db); err != nil {
			log.WithError(err).Fatal("migrate database")
		}
		store = database.NewGormStore(db)
		idem = database.NewGormIdempotencyStore(db)
	default:
		log.Warn("using in-memory store; data is lost on restart")
		store = database.NewMemoryStore()
		idem = database.NewMemoryIdempotencyStore()
	}

	// ---- Notifications
	notifiers := notify.Multi{notify.NewLog(entry.WithField("component", "notify"))}
	if cfg.RedisURL != "" {
		client, err := notify.Dial(context.Background(), cfg.RedisURL)
		if err != nil {
			log.WithError(err).Fatal("connect redis")
		}
		defer client.Close()
		notifiers = append(notifiers, notify.NewRedis(client, cfg.NotifyChannel))
	}

	svc := workflow.NewService(store, clock.System,
		workflow.WithNotifier(notifiers),
		workflow.WithLogger(entry.WithField("component", "workflow")),
	)

	// ---- Fiber app with global error handler + body limit
	app := fiber.New(fiber.Config{
		ErrorHandler: middlewares.ErrorHandler(entry),
		BodyLimit:    cfg.BodyLimitBytes(),
	})

	app.Use(middlewares.RequestLogger(entry.WithField("component", "http")))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowCredentials: false, // using Bearer tokens, not cookies
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Idempotency-Key",
	}))
	// Default KeyGenerator = client IP; default 429 handler is fine.
	app.Use(limiter.New(limiter.Config{
		Max:        cfg.RateLimitMax,
		Expiration: cfg.RateLimitWindow,
	}))

	// ---- Routes
	routes.Register(app, controllers.New(svc), routes.Options{
		Auth:        middlewares.IsAuthenticatedHeader(cfg.JWTSecret()),
		Idempotency: middlewares.Idempotency(idem, entry.WithField("component", "idempotency")),
		MetricsPath: cfg.MetricsPath,
	})

	// ---- Start
	log.WithField("port", cfg.Port).Info("API server starting")
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}
