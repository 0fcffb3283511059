package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/jwoo-kim/weather-etl/internal/api/http"
	"github.com/jwoo-kim/weather-etl/internal/config"
	"github.com/jwoo-kim/weather-etl/internal/etl"
	"github.com/jwoo-kim/weather-etl/internal/scheduler"
	"github.com/jwoo-kim/weather-etl/internal/store"
)

func main() {
	// Load configuration. Only malformed values are fatal here; required
	// values are re-checked at the start of every run, so a missing secret
	// fails runs, not the process.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// One timestamped log file per process start, mirrored to stdout.
	logFile, err := setupLogFile(cfg.LogDir)
	if err != nil {
		log.Fatalf("failed to set up log file: %v", err)
	}
	defer logFile.Close()

	log.Printf("starting weather ETL: %d cities, every %s, strategy=%s",
		len(cfg.Cities), cfg.RunInterval, cfg.Strategy)

	// Run history shared by the runner and the ops HTTP surface.
	history := store.NewRunHistory(cfg.RunHistoryMax, cfg.RunHistoryMaxAge)

	runner := etl.NewRunner(cfg, history)

	sched := scheduler.New(cfg.RunInterval, runner)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "weather-etl",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "weather-etl",
		})
	})

	// Run observability routes.
	httpapi.RegisterRoutes(app, history)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}

// setupLogFile creates the log directory if needed and redirects the
// standard logger to both stdout and a file named after the process start.
func setupLogFile(dir string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory %s: %w", dir, err)
	}

	name := fmt.Sprintf("etl_process_%s.log", time.Now().Format("2006-01-02_15-04-05"))
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	log.SetOutput(io.MultiWriter(os.Stdout, f))
	return f, nil
}
