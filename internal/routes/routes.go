package routes

import (
	"github.com/Ananth-NQI/resellerbot-backend/internal/handlers"
	"github.com/Ananth-NQI/resellerbot-backend/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

// Options configures route registration
type Options struct {
	WebhookSecret string
	AdminAPIKey   string
	// EnableTestRoutes exposes the development intercept endpoint.
	EnableTestRoutes bool
}

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, opts Options, health *handlers.HealthHandler, whatsapp *handlers.WhatsAppHandler, admin *handlers.AdminHandler) {

	// Root endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "ResellerBot Backend",
			"version": health.Version,
			"endpoints": fiber.Map{
				"health":  "/health",
				"webhook": "/webhook/evolution",
				"admin":   "/admin",
			},
		})
	})

	app.Get("/health", health.Check)

	// ========== WEBHOOK ROUTES ==========
	webhooks := app.Group("/webhook", middleware.ValidateWebhookSignature(opts.WebhookSecret))
	webhooks.Post("/evolution", whatsapp.HandleWebhook)
	webhooks.Post("/whatsapp", whatsapp.HandleWebhook)

	// ========== TEST ROUTES (Development Only) ==========
	if opts.EnableTestRoutes {
		app.Post("/test/intercept", whatsapp.HandleTestIntercept)
	}

	// ========== ADMIN ROUTES ==========
	operators := app.Group("/admin", middleware.RequireAdminKey(opts.AdminAPIKey))
	operators.Get("/sessions/:tenant/:contact", admin.GetSession)
	operators.Post("/sessions/:tenant/:contact/reset", admin.ResetSession)
	operators.Get("/handoffs", admin.ListHandoffs)
	operators.Post("/handoffs/:id/resolve", admin.ResolveHandoff)
	operators.Get("/tenants/:id/connection", admin.TenantConnection)
}
