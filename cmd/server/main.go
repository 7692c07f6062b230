// Package main is the entry point for the application.
// It initializes the databases, the work queue and the HTTP server, and
// shuts them down in order on SIGINT/SIGTERM.
package main

import (
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"billvend/internal/config"
	"billvend/internal/queue"
	"billvend/internal/repositories"
	"billvend/internal/routes"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
)

func main() {
	config.LoadEnv()

	if err := repositories.InitDB(); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	var appLogger *slog.Logger
	if config.IsProduction() {
		appLogger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	} else {
		appLogger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	slog.SetDefault(appLogger)

	// The queue shares the redis connection with the cache layer.
	workQueue := queue.NewRedisQueue(
		repositories.CacheService.Client(),
		"payments",
		queue.Config{
			MaxAttempts: config.GetIntEnv("QUEUE_MAX_ATTEMPTS", 5),
			BackoffBase: config.GetDurationEnv("QUEUE_BACKOFF_BASE", 2*time.Second),
			JobTimeout:  config.GetDurationEnv("QUEUE_JOB_TIMEOUT", time.Minute),
		},
		appLogger,
	)

	app := fiber.New(fiber.Config{
		AppName: "billvend",
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins: config.GetEnv("CORS_ORIGINS", "http://localhost:5173"),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH",
	}))

	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	for _, path := range []string{"/api/register", "/api/login"} {
		app.Use(path, limiter.New(limiter.Config{
			Max:        5,
			Expiration: time.Minute,
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"error": "Too many requests. Please try again later.",
				})
			},
		}))
	}

	// Registers routes and the queue workers.
	routes.SetupRoutes(app, routes.Deps{
		DB:     repositories.DB,
		Queue:  workQueue,
		Logger: appLogger,
	})

	workQueue.Start(config.GetIntEnv("QUEUE_WORKERS", 4))

	go func() {
		if err := app.Listen(":" + config.GetEnv("PORT", "3000")); err != nil {
			log.Fatalf("Server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")

	// Stop taking requests first, then drain the workers, then close the
	// shared connections.
	if err := app.Shutdown(); err != nil {
		log.Printf("Failed to shut down server: %v", err)
	}
	workQueue.Shutdown()

	if repositories.DB != nil {
		if sqlDB, err := repositories.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				log.Printf("Failed to close database connection: %v", err)
			}
		}
	}
	if repositories.CacheService != nil {
		if err := repositories.CacheService.Close(); err != nil {
			log.Printf("Failed to close redis connection: %v", err)
		}
	}
}
