package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/panjf2000/ants/v2"
	"github.com/spf13/cast"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/Ananth-NQI/resellerbot-backend/internal/models"
	"github.com/Ananth-NQI/resellerbot-backend/internal/storage"
	"github.com/Ananth-NQI/resellerbot-backend/internal/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrTrialUnavailable means the tenant has no usable trial integration.
var ErrTrialUnavailable = errors.New("trial generation not configured")

// TrialResult is the outcome of a trial provisioning call
type TrialResult struct {
	Success   bool
	Username  string
	Password  string
	ExpiresAt time.Time
	Reason    string
}

// ActionExecutor runs the side effects menu and flow nodes trigger
type ActionExecutor struct {
	store     storage.Store
	http      *resty.Client
	pool      *ants.Pool
	planLimit int
	printer   *message.Printer
	now       func() time.Time
}

// NewActionExecutor creates an executor whose external calls are bounded by
// timeout. pool runs best-effort notifications; nil runs them inline.
func NewActionExecutor(store storage.Store, timeout time.Duration, pool *ants.Pool, planLimit int) *ActionExecutor {
	client := resty.New().
		SetTimeout(timeout).
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)
	if planLimit <= 0 {
		planLimit = 5
	}
	return &ActionExecutor{
		store:     store,
		http:      client,
		pool:      pool,
		planLimit: planLimit,
		printer:   message.NewPrinter(language.BrazilianPortuguese),
		now:       time.Now,
	}
}

// GenerateTrial provisions trial credentials for a contact. The counter is
// incremented and persisted before the external call, so a duplicate
// invocation issues a second, distinct trial rather than reusing a username.
func (a *ActionExecutor) GenerateTrial(ctx context.Context, tenantID, contactID, deviceType, deviceInfo string) (*TrialResult, error) {
	ti, err := a.store.GetTrialIntegration(ctx, tenantID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &TrialResult{Reason: "not_configured"}, ErrTrialUnavailable
		}
		return nil, err
	}
	if !ti.Enabled || ti.Endpoint == "" {
		return &TrialResult{Reason: "disabled"}, ErrTrialUnavailable
	}

	counter, err := a.store.IncrementTrialCounter(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("increment trial counter: %w", err)
	}
	username := utils.TrialUsername(ti.UsernamePrefix, counter)
	password, err := utils.GeneratePassword(ti.PasswordLength)
	if err != nil {
		return nil, err
	}
	hours := ti.TrialHours
	if hours <= 0 {
		hours = 4
	}

	field := func(name string) string {
		if mapped := ti.FieldMapping[name]; mapped != "" {
			return mapped
		}
		return name
	}
	body := map[string]interface{}{
		field("username"):    username,
		field("password"):    password,
		field("phone"):       contactID,
		field("device_type"): deviceType,
		field("device_info"): deviceInfo,
		field("hours"):       hours,
	}

	req := a.http.R().SetContext(ctx).SetBody(body)
	if ti.APIKey != "" {
		req.SetHeader("Authorization", "Bearer "+ti.APIKey)
	}
	method := strings.ToUpper(ti.Method)
	if method == "" {
		method = http.MethodPost
	}
	resp, err := req.Execute(method, ti.Endpoint)
	if err != nil {
		zap.L().Warn("trial provisioning call failed",
			zap.String("tenant", tenantID),
			zap.String("contact", contactID),
			zap.Error(err))
		return &TrialResult{Reason: "unreachable"}, nil
	}
	if resp.IsError() {
		zap.L().Warn("trial provisioning rejected",
			zap.String("tenant", tenantID),
			zap.Int("status", resp.StatusCode()),
			zap.String("body", truncate(resp.String(), 200)))
		return &TrialResult{Reason: fmt.Sprintf("status_%d", resp.StatusCode())}, nil
	}

	result := a.parseTrialResponse(resp.Body(), ti, username, password, hours)
	if !result.Success {
		return result, nil
	}

	client := &models.TrialClient{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		ContactID:  contactID,
		Username:   result.Username,
		Password:   result.Password,
		DeviceType: deviceType,
		DeviceInfo: deviceInfo,
		ExpiresAt:  result.ExpiresAt,
		CreatedAt:  a.now(),
	}
	if err := a.store.CreateTrialClient(ctx, client); err != nil {
		zap.L().Warn("failed to record trial client", zap.String("tenant", tenantID), zap.Error(err))
	}
	if ti.RegistrationWebhook != "" {
		a.notifyRegistration(ti.RegistrationWebhook, client)
	}
	return result, nil
}

func (a *ActionExecutor) parseTrialResponse(body []byte, ti *models.TrialIntegration, username, password string, hours int) *TrialResult {
	path := func(name, def string) string {
		if p := ti.FieldMapping[name]; p != "" {
			return p
		}
		return def
	}
	doc := gjson.ParseBytes(body)
	result := &TrialResult{Username: username, Password: password}

	if v := doc.Get(path("resp_success", "success")); v.Exists() && !cast.ToBool(v.Value()) {
		result.Reason = firstNonEmpty(doc.Get("message").String(), doc.Get("error").String(), "rejected")
		return result
	}
	if v := doc.Get(path("resp_username", "username")); v.Exists() {
		result.Username = cast.ToString(v.Value())
	}
	if v := doc.Get(path("resp_password", "password")); v.Exists() {
		result.Password = cast.ToString(v.Value())
	}
	result.ExpiresAt = a.now().Add(time.Duration(hours) * time.Hour)
	if v := doc.Get(path("resp_expires", "exp_date")); v.Exists() {
		if t, ok := parseExpiry(v.Value()); ok {
			result.ExpiresAt = t
		}
	}
	result.Success = result.Username != ""
	if !result.Success {
		result.Reason = "missing_username"
	}
	return result
}

// parseExpiry accepts unix seconds as a number or string, or a date string.
func parseExpiry(v interface{}) (time.Time, bool) {
	if secs, err := cast.ToInt64E(v); err == nil && secs > 0 {
		return time.Unix(secs, 0), true
	}
	if t, err := cast.ToTimeE(v); err == nil && !t.IsZero() {
		return t, true
	}
	return time.Time{}, false
}

// notifyRegistration posts the new client to the tenant's registration
// endpoint without blocking the conversation. Failures are only logged.
func (a *ActionExecutor) notifyRegistration(endpoint string, client *models.TrialClient) {
	task := func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.http.GetClient().Timeout)
		defer cancel()
		resp, err := a.http.R().SetContext(ctx).SetBody(map[string]interface{}{
			"tenant_id":   client.TenantID,
			"phone":       client.ContactID,
			"username":    client.Username,
			"device_type": client.DeviceType,
			"expires_at":  client.ExpiresAt,
			"origin":      "whatsapp_trial",
		}).Post(endpoint)
		if err != nil {
			zap.L().Warn("client registration notify failed", zap.String("tenant", client.TenantID), zap.Error(err))
			return
		}
		if resp.IsError() {
			zap.L().Warn("client registration notify rejected",
				zap.String("tenant", client.TenantID),
				zap.Int("status", resp.StatusCode()))
		}
	}
	if a.pool == nil {
		go task()
		return
	}
	if err := a.pool.Submit(task); err != nil {
		zap.L().Warn("client registration notify dropped", zap.Error(err))
	}
}

// FetchPlanList renders the tenant's cheapest active plans.
func (a *ActionExecutor) FetchPlanList(ctx context.Context, tenantID string) (string, error) {
	plans, err := a.store.ListActivePlans(ctx, tenantID, a.planLimit)
	if err != nil {
		return "", err
	}
	if len(plans) == 0 {
		return "No momento não há planos disponíveis.", nil
	}
	var b strings.Builder
	b.WriteString("📋 *Nossos planos*\n")
	for _, p := range plans {
		b.WriteString("\n")
		b.WriteString(a.printer.Sprintf("✅ *%s* - R$ %.2f", p.Name, p.Price))
		if p.DurationDays > 0 {
			b.WriteString(a.printer.Sprintf(" / %d dias", p.DurationDays))
		}
		if p.Screens > 1 {
			b.WriteString(a.printer.Sprintf(" (%d telas)", p.Screens))
		}
		if p.Description != "" {
			b.WriteString("\n   " + firstLine(p.Description))
		}
	}
	return b.String(), nil
}

// StartHandoff opens a ticket for a human operator.
func (a *ActionExecutor) StartHandoff(ctx context.Context, tenantID, contactID, lastMessage string) (*models.HandoffTicket, error) {
	ticket := &models.HandoffTicket{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		ContactID:   contactID,
		Status:      models.HandoffOpen,
		LastMessage: lastMessage,
		CreatedAt:   a.now(),
	}
	if err := a.store.CreateHandoffTicket(ctx, ticket); err != nil {
		return nil, fmt.Errorf("create handoff ticket: %w", err)
	}
	zap.L().Info("handoff requested",
		zap.String("tenant", tenantID),
		zap.String("contact", contactID),
		zap.String("ticket", ticket.ID))
	return ticket, nil
}

// TrialMessage formats credentials for the contact.
func (a *ActionExecutor) TrialMessage(r *TrialResult) string {
	return fmt.Sprintf("🎉 *Seu teste foi liberado!*\n\n👤 Usuário: %s\n🔑 Senha: %s\n⏰ Válido até: %s\n\nBom proveito! Digite *#* para voltar ao menu.",
		r.Username, r.Password, r.ExpiresAt.Format("02/01/2006 15:04"))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
