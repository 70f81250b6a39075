// Package main is the entry point for the delu API server.
// It initializes all dependencies, sets up the HTTP server,
// and starts the application.
package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"delu/internal/config"
	applogger "delu/internal/logger"
	"delu/internal/repositories"
	"delu/internal/routes"
	"delu/internal/storage"
	"delu/internal/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"
)

func main() {
	config.LoadEnv()

	if err := applogger.Initialize(config.GetEnv("LOG_LEVEL", "info")); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	if err := repositories.InitDB(); err != nil {
		applogger.Log.Fatal("failed to initialize databases", zap.Error(err))
	}
	defer func() {
		if repositories.DB != nil {
			if sqlDB, err := repositories.DB.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		if repositories.CacheService != nil {
			_ = repositories.CacheService.Close()
		}
	}()

	store, err := storage.NewDiskStore(
		config.GetEnv("UPLOAD_DIR", "./uploads"),
		"/uploads",
	)
	if err != nil {
		applogger.Log.Fatal("failed to initialize file store", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 10 * 1024 * 1024, // uploads include photos
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:     config.GetEnv("CORS_ORIGINS", "http://localhost:5173"),
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET,POST,HEAD,PUT,DELETE,PATCH",
		AllowCredentials: true,
	}))

	// In production zap carries the request context; the console logger
	// is for local development only.
	if !config.IsProduction() {
		app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
		}))
	}

	for _, path := range []string{"/api/register", "/api/login"} {
		app.Use(path, limiter.New(limiter.Config{
			Max:        5,
			Expiration: 1 * time.Minute,
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(429).JSON(fiber.Map{
					"error": "Too many requests. Please try again later.",
				})
			},
		}))
	}

	app.Static("/uploads", store.Dir())

	services := routes.SetupRoutes(app, store)

	sweeper := workers.NewExpirySweeper(services.Gig,
		config.GetDurationEnv("EXPIRY_SWEEP_INTERVAL", workers.DefaultSweepInterval))
	sweeper.Start()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		applogger.Log.Info("shutting down")
		sweeper.Stop()
		_ = app.Shutdown()
	}()

	addr := ":" + config.GetEnv("PORT", "3000")
	applogger.Log.Info("server listening", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		applogger.Log.Fatal("server stopped", zap.Error(err))
	}
}
