package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	Version string
	Storage string
	// Ping checks the backing store. Nil means there is nothing to check.
	Ping func(ctx context.Context) error
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version, storage string, ping func(ctx context.Context) error) *HealthHandler {
	return &HealthHandler{
		Version: version,
		Storage: storage,
		Ping:    ping,
	}
}

// Check returns the health status of the service
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	status := "healthy"
	code := fiber.StatusOK
	database := true
	if h.Ping != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := h.Ping(ctx); err != nil {
			status = "unhealthy"
			code = fiber.StatusServiceUnavailable
			database = false
		}
	}

	return c.Status(code).JSON(fiber.Map{
		"status":  status,
		"service": "ResellerBot Backend",
		"version": h.Version,
		"storage": h.Storage,
		"services": fiber.Map{
			"database": database,
		},
	})
}
