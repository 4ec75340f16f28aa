package handlers

import (
	"errors"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/Ananth-NQI/resellerbot-backend/internal/services"
	"github.com/Ananth-NQI/resellerbot-backend/internal/storage"
	"github.com/Ananth-NQI/resellerbot-backend/internal/webhook"
	"github.com/gofiber/fiber/v2"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// WhatsAppHandler handles gateway webhook requests
type WhatsAppHandler struct {
	store       storage.Store
	interceptor *services.Interceptor
	deliver     bool
}

// NewWhatsAppHandler creates a new webhook handler. deliver controls whether
// replies are sent through the tenant transport or only returned.
func NewWhatsAppHandler(store storage.Store, interceptor *services.Interceptor, deliver bool) *WhatsAppHandler {
	return &WhatsAppHandler{
		store:       store,
		interceptor: interceptor,
		deliver:     deliver,
	}
}

// HandleWebhook runs one gateway delivery through the interceptor
func (h *WhatsAppHandler) HandleWebhook(c *fiber.Ctx) error {
	return h.intercept(c, services.InterceptRequest{
		Body:       c.Body(),
		TenantHint: c.Query("tenant"),
		Deliver:    h.deliver,
	})
}

func (h *WhatsAppHandler) intercept(c *fiber.Ctx, req services.InterceptRequest) error {
	result, err := h.interceptor.Intercept(c.UserContext(), req)
	if err != nil {
		if isValidationError(err) {
			zap.L().Warn("rejected webhook", zap.Error(err), zap.String("ip", c.IP()))
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":  "Invalid webhook payload",
				"reason": err.Error(),
			})
		}
		zap.L().Error("webhook processing failed", zap.Error(err))
		return c.JSON(services.InterceptResult{ShouldContinue: true, Reason: "internal_error"})
	}
	return c.JSON(result)
}

func isValidationError(err error) bool {
	return errors.Is(err, webhook.ErrMalformedPayload) ||
		errors.Is(err, services.ErrMissingTenant) ||
		errors.Is(err, services.ErrMalformedTenant) ||
		errors.Is(err, services.ErrUnknownTenant) ||
		errors.Is(err, services.ErrTenantMismatch)
}

// TestInterceptPayload is a simplified inbound message for development
type TestInterceptPayload struct {
	Tenant   string `json:"tenant"`
	Phone    string `json:"phone"`
	Message  string `json:"message"`
	PushName string `json:"push_name"`
}

// HandleTestIntercept wraps a simplified message into a gateway payload and
// runs it through the pipeline without delivering the reply.
func (h *WhatsAppHandler) HandleTestIntercept(c *fiber.Ctx) error {
	var payload TestInterceptPayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid test payload",
		})
	}
	if payload.Tenant == "" || payload.Phone == "" || payload.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "tenant, phone and message are required",
		})
	}
	if !services.ValidTenantID(payload.Tenant) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "Invalid test payload",
			"reason": services.ErrMalformedTenant.Error(),
		})
	}

	tenant, err := h.store.GetTenant(c.UserContext(), payload.Tenant)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Tenant not found",
			})
		}
		return err
	}

	body, err := json.Marshal(syntheticUpsert(tenant.InstanceName, payload))
	if err != nil {
		return err
	}
	zap.L().Debug("test intercept", zap.String("tenant", tenant.ID), zap.String("contact", payload.Phone))
	return h.intercept(c, services.InterceptRequest{Body: body, TenantHint: tenant.ID})
}

func syntheticUpsert(instance string, p TestInterceptPayload) fiber.Map {
	return fiber.Map{
		"event":    webhook.EventMessagesUpsert,
		"instance": instance,
		"data": fiber.Map{
			"key": fiber.Map{
				"remoteJid": p.Phone + "@s.whatsapp.net",
				"fromMe":    false,
				"id":        "test-" + p.Phone,
			},
			"pushName": p.PushName,
			"message": fiber.Map{
				"conversation": p.Message,
			},
		},
	}
}
