package handlers

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Ananth-NQI/resellerbot-backend/internal/models"
	"github.com/Ananth-NQI/resellerbot-backend/internal/services"
	"github.com/Ananth-NQI/resellerbot-backend/internal/storage"
	"github.com/gofiber/fiber/v2"
)

// ConnectionProber reports the live connection state of a gateway instance
type ConnectionProber interface {
	ConnectionState(ctx context.Context, instance string) (string, error)
}

// AdminHandler handles operator requests
type AdminHandler struct {
	store   storage.Store
	prober  ConnectionProber
	timeout time.Duration
	now     func() time.Time
}

// NewAdminHandler creates a new admin handler. prober may be nil when no
// gateway is configured.
func NewAdminHandler(store storage.Store, prober ConnectionProber, timeout time.Duration) *AdminHandler {
	return &AdminHandler{
		store:   store,
		prober:  prober,
		timeout: timeout,
		now:     time.Now,
	}
}

func (h *AdminHandler) sessionKey(c *fiber.Ctx) (tenantID, contactID string, err error) {
	tenantID = c.Params("tenant")
	contactID = c.Params("contact")
	if !services.ValidTenantID(tenantID) {
		return "", "", services.ErrMalformedTenant
	}
	if contactID == "" {
		return "", "", errors.New("missing contact")
	}
	return tenantID, contactID, nil
}

// GetSession returns the stored session of a contact
func (h *AdminHandler) GetSession(c *fiber.Ctx) error {
	tenantID, contactID, err := h.sessionKey(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	sess, err := h.store.GetSession(c.UserContext(), contactID, tenantID)
	if errors.Is(err, storage.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Session not found"})
	}
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"session": sess,
	})
}

// ResetSession puts a contact back at START with an empty stack
func (h *AdminHandler) ResetSession(c *fiber.Ctx) error {
	tenantID, contactID, err := h.sessionKey(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	err = h.store.ResetSession(c.UserContext(), contactID, tenantID)
	if errors.Is(err, storage.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Session not found"})
	}
	if err != nil {
		return err
	}

	zap.L().Info("session reset by operator", zap.String("tenant", tenantID), zap.String("contact", contactID))
	return c.JSON(fiber.Map{
		"success": true,
		"state":   models.StateStart,
	})
}

// ListHandoffs lists handoff tickets, optionally filtered by tenant and status
func (h *AdminHandler) ListHandoffs(c *fiber.Ctx) error {
	tenantID := c.Query("tenant")
	if tenantID != "" && !services.ValidTenantID(tenantID) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": services.ErrMalformedTenant.Error()})
	}
	status := c.Query("status", models.HandoffOpen)
	if status == "all" {
		status = ""
	}

	tickets, err := h.store.ListHandoffTickets(c.UserContext(), tenantID, status)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch handoff tickets",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"tickets": tickets,
		"count":   len(tickets),
	})
}

// ResolveHandoff closes a ticket and hands the conversation back to the bot
func (h *AdminHandler) ResolveHandoff(c *fiber.Ctx) error {
	ctx := c.UserContext()
	id := c.Params("id")

	ticket, err := h.store.GetHandoffTicket(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Ticket not found"})
	}
	if err != nil {
		return err
	}
	if ticket.Status == models.HandoffResolved {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Ticket already resolved"})
	}

	if err := h.store.ResolveHandoffTicket(ctx, id, h.now()); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to resolve ticket",
		})
	}
	if err := h.store.ResetSession(ctx, ticket.ContactID, ticket.TenantID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		zap.L().Error("failed to reset session after handoff",
			zap.String("tenant", ticket.TenantID),
			zap.String("contact", ticket.ContactID),
			zap.Error(err))
	}

	zap.L().Info("handoff resolved", zap.String("ticket", id), zap.String("tenant", ticket.TenantID))
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Ticket resolved, bot re-enabled for contact",
	})
}

// TenantConnection probes the gateway for the instance state of a tenant and
// records the answer.
func (h *AdminHandler) TenantConnection(c *fiber.Ctx) error {
	id := c.Params("id")
	if !services.ValidTenantID(id) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": services.ErrMalformedTenant.Error()})
	}

	tenant, err := h.store.GetTenant(c.UserContext(), id)
	if errors.Is(err, storage.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Tenant not found"})
	}
	if err != nil {
		return err
	}

	resp := fiber.Map{
		"tenant":          tenant.ID,
		"instance":        tenant.InstanceName,
		"connected_phone": tenant.ConnectedPhone,
		"state":           tenant.ConnectionState,
		"live":            false,
	}
	if h.prober == nil || tenant.Transport == models.TransportTwilio {
		return c.JSON(resp)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()
	state, err := h.prober.ConnectionState(ctx, tenant.InstanceName)
	if err != nil {
		zap.L().Warn("connection probe failed", zap.String("tenant", tenant.ID), zap.Error(err))
		resp["error"] = err.Error()
		return c.Status(fiber.StatusBadGateway).JSON(resp)
	}

	resp["state"] = state
	resp["live"] = true
	if state != tenant.ConnectionState {
		if err := h.store.UpdateTenantConnection(c.UserContext(), tenant.ID, state, ""); err != nil {
			zap.L().Warn("failed to record connection state", zap.String("tenant", tenant.ID), zap.Error(err))
		}
	}
	return c.JSON(resp)
}
