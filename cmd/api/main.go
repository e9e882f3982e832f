package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"alfredoptarigan/cv-matcher/internal/app"
	"alfredoptarigan/cv-matcher/internal/config"
	"alfredoptarigan/cv-matcher/internal/handlers"
	"alfredoptarigan/cv-matcher/internal/logger"
	"alfredoptarigan/cv-matcher/internal/models"
	"alfredoptarigan/cv-matcher/internal/services"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.Log.JSON, cfg.Log.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if !cfg.EnvFileLoaded {
		log.Debug("no .env file found, using process environment")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	stack, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to initialise matching stack", zap.Error(err))
	}
	defer stack.Close()

	worker := services.NewWorker(stack.Service, cfg.Worker.Concurrency, cfg.Worker.QueueSize, cfg.Cache.PurgeInterval, log)
	worker.Start(ctx)

	matchHandler := handlers.NewMatchHandler(stack.Service, worker, log.Named("http"))

	server := fiber.New(fiber.Config{
		AppName:      "CV Matcher API",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 3 * time.Minute,
		BodyLimit:    cfg.Server.BodyLimit,
		ErrorHandler: customErrorHandler,
	})

	server.Use(recover.New())
	server.Use(fiberlogger.New(fiberlogger.Config{
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))
	server.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	api := server.Group("/api/v1")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "healthy",
			"time":      time.Now(),
			"reasoning": stack.Reasoning.Name(),
			"store":     cfg.Database.Driver,
		})
	})

	matchHandler.Register(api)

	server.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message":          "CV Matcher API",
			"version":          "1.0.0",
			"scoring_versions": services.ScoringVersions(),
			"endpoints": []string{
				"POST /api/v1/match",
				"GET /api/v1/match/:cv_id/:job_id",
				"DELETE /api/v1/match-cache/:cv_id/:job_id",
				"GET /api/v1/match-tasks/:task_id",
			},
		})
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info("shutting down server")
		worker.Stop()
		stop()
		if err := server.Shutdown(); err != nil {
			log.Error("server forced to shutdown", zap.Error(err))
		}
	}()

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	log.Info("server starting", zap.String("addr", addr), zap.String("env", cfg.Server.Env))

	if err := server.Listen(addr); err != nil {
		log.Fatal("failed to start server", zap.Error(err))
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	return c.Status(code).JSON(models.ErrorResponse{
		Error: err.Error(),
		Code:  code,
	})
}
