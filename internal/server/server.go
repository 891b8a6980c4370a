// Package server assembles the Fiber application for the backend gateway.
package server

import (
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/mixsmvrt/api/internal/config"
	"github.com/mixsmvrt/api/internal/handler"
	"github.com/mixsmvrt/api/internal/middleware"
	"github.com/mixsmvrt/api/internal/service"
	ws "github.com/mixsmvrt/api/internal/websocket"
	"github.com/mixsmvrt/api/pkg/response"
)

// Deps are the collaborators the HTTP layer is built from.
type Deps struct {
	Config      *config.Config
	Jobs        *service.JobService
	Uploads     *service.UploadService
	Hub         *ws.Hub
	UserAuth    fiber.Handler
	AuthHandler *handler.AuthHandler
	RateLimiter *middleware.RateLimiter
	AccessLog   bool
}

// New builds the Fiber app with every route registered.
func New(d Deps) *fiber.App {
	cfg := d.Config
	validate := validator.New()

	jobHandler := handler.NewJobHandler(d.Jobs, validate)
	workerHandler := handler.NewWorkerJobHandler(d.Jobs, validate)
	uploadHandler := handler.NewUploadHandler(d.Uploads, validate)
	healthHandler := handler.NewHealthHandler(d.Jobs, cfg.Server.Env, cfg.Server.Version)

	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
		BodyLimit:    1 * 1024 * 1024,
	})

	// Global middleware
	app.Use(recover.New())
	if d.AccessLog {
		logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
		if strings.EqualFold(cfg.Server.LogLevel, "debug") {
			logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body}\n"
		}
		app.Use(logger.New(logger.Config{
			Format: logFormat,
		}))
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PATCH,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	app.Get("/health", healthHandler.Live)
	app.Get("/health/ready", healthHandler.Ready)

	if d.AuthHandler != nil {
		// ForwardAuth verification endpoint (internal, called by Traefik)
		app.Get("/auth/verify", d.AuthHandler.Verify)
	}

	// Legacy unauthenticated routes that name the owner in the request
	app.Post("/create-job", jobHandler.LegacyCreate)
	app.Post("/generate-upload-url", uploadHandler.LegacyURL)
	app.Get("/job/:jobId", jobHandler.LegacyStatus)

	// Worker routes
	workerAuth := middleware.WorkerAuth(cfg.Worker.AuthToken)
	app.Get("/jobs", workerAuth, workerHandler.List)
	app.Post("/jobs/claim", workerAuth, workerHandler.Claim)
	app.Patch("/jobs/:jobId", workerAuth, workerHandler.Update)
	app.Patch("/jobs/:jobId/progress", workerAuth, workerHandler.Progress)
	app.Get("/jobs/:jobId/input-download-url", workerAuth, workerHandler.InputDownloadURL)

	// API routes
	api := app.Group("/api", d.UserAuth)
	api.Post("/jobs", d.RateLimiter.CreateJobLimit(cfg.RateLimit.CreateJobPerHour), jobHandler.Create)
	api.Get("/jobs/:jobId", jobHandler.Status)
	api.Post("/upload-url", d.RateLimiter.UploadLimit(cfg.RateLimit.UploadPerHour), uploadHandler.URL)

	// WebSocket routes
	if d.Hub != nil {
		app.Use("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})

		app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
			d.Hub.HandleConnection(c, c.Params("jobId"))
		}))
	}

	return app
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	} else {
		slog.Error("unhandled error", "method", c.Method(), "path", c.Path(), "error", err)
	}

	return response.Error(c, code, response.CodeServiceError, message, nil)
}
