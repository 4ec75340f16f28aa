package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Ananth-NQI/resellerbot-backend/internal/models"
	"github.com/Ananth-NQI/resellerbot-backend/internal/utils"
)

// ErrTransportUnavailable means no transport is registered for a tenant.
var ErrTransportUnavailable = errors.New("transport unavailable")

// Transport delivers a text message through one gateway.
type Transport interface {
	SendText(ctx context.Context, identity, to, text string) error
}

// EvolutionTransport talks to the Evolution WhatsApp gateway
type EvolutionTransport struct {
	client *resty.Client
}

// NewEvolutionTransport creates a gateway client bounded by timeout
func NewEvolutionTransport(baseURL, apiKey string, timeout time.Duration) *EvolutionTransport {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)
	if apiKey != "" {
		client.SetHeader("apikey", apiKey)
	}
	return &EvolutionTransport{client: client}
}

// SendText sends text to the number `to` from the instance named identity.
func (e *EvolutionTransport) SendText(ctx context.Context, identity, to, text string) error {
	resp, err := e.client.R().
		SetContext(ctx).
		SetPathParam("instance", identity).
		SetBody(map[string]interface{}{"number": to, "text": text}).
		Post("/message/sendText/{instance}")
	if err != nil {
		return fmt.Errorf("evolution send: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("evolution send: status %d: %s", resp.StatusCode(), truncate(resp.String(), 200))
	}
	return nil
}

// ConnectionState asks the gateway for an instance's connection state.
func (e *EvolutionTransport) ConnectionState(ctx context.Context, instance string) (string, error) {
	resp, err := e.client.R().
		SetContext(ctx).
		SetPathParam("instance", instance).
		Get("/instance/connectionState/{instance}")
	if err != nil {
		return "", fmt.Errorf("evolution connection state: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("evolution connection state: status %d", resp.StatusCode())
	}
	doc := gjson.ParseBytes(resp.Body())
	state := doc.Get("instance.state").String()
	if state == "" {
		state = doc.Get("state").String()
	}
	return strings.ToLower(state), nil
}

// Sender delivers replies through the tenant's transport, trying alternate
// phone formats when the first one is rejected.
type Sender struct {
	transports map[string]Transport
	rps        float64

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewSender creates a sender limited to rps messages per second per tenant
func NewSender(rps float64) *Sender {
	return &Sender{
		transports: make(map[string]Transport),
		rps:        rps,
		limiters:   make(map[string]*rate.Limiter),
	}
}

// Register makes t available under name.
func (s *Sender) Register(name string, t Transport) {
	s.transports[name] = t
}

func (s *Sender) limiter(tenantID string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[tenantID]
	if !ok {
		limit := rate.Inf
		if s.rps > 0 {
			limit = rate.Limit(s.rps)
		}
		l = rate.NewLimiter(limit, 5)
		s.limiters[tenantID] = l
	}
	return l
}

// Send delivers text to phone. It returns the number format that was
// accepted.
func (s *Sender) Send(ctx context.Context, tenant *models.Tenant, phone, text string) (string, error) {
	name := tenant.Transport
	if name == "" {
		name = models.TransportEvolution
	}
	t, ok := s.transports[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrTransportUnavailable, name)
	}
	variants := utils.PhoneVariants(phone)
	if len(variants) == 0 {
		return "", fmt.Errorf("invalid destination %q", phone)
	}

	var lastErr error
	for _, to := range variants {
		if err := s.limiter(tenant.ID).Wait(ctx); err != nil {
			return "", err
		}
		err := t.SendText(ctx, tenant.TransportIdentity(), to, text)
		if err == nil {
			return to, nil
		}
		lastErr = err
		zap.L().Debug("send attempt failed",
			zap.String("tenant", tenant.ID),
			zap.String("to", to),
			zap.Error(err))
		if ctx.Err() != nil {
			break
		}
	}
	return "", fmt.Errorf("all %d phone formats failed: %w", len(variants), lastErr)
}
