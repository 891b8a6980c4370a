package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/mixsmvrt/api/pkg/response"
)

const serviceName = "mixsmvrt-api"

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db      Pinger
	env     string
	version string
	started time.Time
}

func NewHealthHandler(db Pinger, env, version string) *HealthHandler {
	return &HealthHandler{
		db:      db,
		env:     env,
		version: version,
		started: time.Now(),
	}
}

// Live handles GET /health
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return response.OK(c, fiber.Map{
		"status":      "ok",
		"service":     serviceName,
		"environment": h.env,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /health/ready
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	database := "ok"
	status := "ok"
	code := fiber.StatusOK
	if err := h.db.Ping(ctx); err != nil {
		database = err.Error()
		status = "degraded"
		code = fiber.StatusServiceUnavailable
	}

	return c.Status(code).JSON(fiber.Map{
		"status":         status,
		"service":        serviceName,
		"environment":    h.env,
		"version":        h.version,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"checks": fiber.Map{
			"database": database,
		},
	})
}
