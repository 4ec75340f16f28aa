package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Ananth-NQI/resellerbot-backend/internal/models"
	"github.com/Ananth-NQI/resellerbot-backend/internal/services"
	"github.com/Ananth-NQI/resellerbot-backend/internal/storage"
)

type stubProber struct {
	state string
	err   error
	calls int
}

func (p *stubProber) ConnectionState(ctx context.Context, instance string) (string, error) {
	p.calls++
	return p.state, p.err
}

type testApp struct {
	app    *fiber.App
	store  *storage.MemoryStore
	prober *stubProber
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	store := storage.NewMemoryStore()
	store.AddTenant(&models.Tenant{ID: "loja1", InstanceName: "loja1-zap", ConnectedPhone: "5511900000000", ConnectionState: "open", BotEnabled: true})
	store.AddTenant(&models.Tenant{ID: "loja2", InstanceName: "loja2-zap", Transport: models.TransportTwilio, BotEnabled: true})

	actions := services.NewActionExecutor(store, time.Second, nil, 5)
	navigator := services.NewNavigator(store, services.NewMenuEngine(store), services.NewFlowRunner(store), actions, 30*time.Minute)
	commands := services.NewCommandRegistry()
	services.RegisterDefaultCommands(commands, actions)
	interceptor := services.NewInterceptor(store,
		services.NewDedupCache(10*time.Second, 100),
		services.NewSessionLockManager(store, 30*time.Second),
		navigator, commands, services.NewSender(0), time.Second)

	prober := &stubProber{state: "open"}
	whatsapp := NewWhatsAppHandler(store, interceptor, false)
	admin := NewAdminHandler(store, prober, time.Second)
	health := NewHealthHandler("test", "In-Memory (Testing)", nil)

	app := fiber.New()
	app.Get("/health", health.Check)
	app.Post("/webhook/evolution", whatsapp.HandleWebhook)
	app.Post("/test/intercept", whatsapp.HandleTestIntercept)
	app.Get("/admin/sessions/:tenant/:contact", admin.GetSession)
	app.Post("/admin/sessions/:tenant/:contact/reset", admin.ResetSession)
	app.Get("/admin/handoffs", admin.ListHandoffs)
	app.Post("/admin/handoffs/:id/resolve", admin.ResolveHandoff)
	app.Get("/admin/tenants/:id/connection", admin.TenantConnection)
	return &testApp{app: app, store: store, prober: prober}
}

func (a *testApp) do(t *testing.T, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	out := map[string]interface{}{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("%s %s: decode %s: %v", method, path, raw, err)
		}
	}
	return resp.StatusCode, out
}

func upsert(instance, phone, text string) string {
	return fmt.Sprintf(`{"event":"messages.upsert","instance":%q,"data":{"key":{"remoteJid":"%s@s.whatsapp.net","fromMe":false,"id":"X1"},"pushName":"Ana","message":{"conversation":%q}}}`,
		instance, phone, text)
}

func TestHandleWebhook(t *testing.T) {
	a := newTestApp(t)

	code, body := a.do(t, http.MethodPost, "/webhook/evolution", upsert("loja1-zap", "5511999999999", "oi"))
	if code != fiber.StatusOK {
		t.Fatalf("status = %d body = %v", code, body)
	}
	if body["intercepted"] != true || body["should_continue"] != false || body["new_state"] != models.StateStart {
		t.Errorf("body = %v", body)
	}
	if resp, _ := body["response"].(string); !strings.Contains(resp, "Seja bem-vindo") {
		t.Errorf("response = %q", resp)
	}

	code, body = a.do(t, http.MethodPost, "/webhook/evolution", `{"event":"connection.update","instance":"loja1-zap","data":{"state":"close"}}`)
	if code != fiber.StatusOK || body["should_continue"] != true || body["reason"] != "connection_update" {
		t.Errorf("connection update: %d %v", code, body)
	}
}

func TestHandleWebhookValidation(t *testing.T) {
	a := newTestApp(t)

	tests := []struct {
		name string
		path string
		body string
	}{
		{"malformed body", "/webhook/evolution", `{"event":`},
		{"missing instance", "/webhook/evolution", `{"event":"messages.upsert","data":{}}`},
		{"malformed tenant hint", "/webhook/evolution?tenant=" + "a%20b", upsert("loja1-zap", "5511999999999", "oi")},
		{"unknown instance", "/webhook/evolution", upsert("ghost", "5511999999999", "oi")},
		{"tenant mismatch", "/webhook/evolution?tenant=loja2", upsert("loja1-zap", "5511999999999", "oi")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := a.do(t, http.MethodPost, tt.path, tt.body)
			if code != fiber.StatusBadRequest || body["error"] != "Invalid webhook payload" {
				t.Errorf("%d %v", code, body)
			}
		})
	}
}

func TestHandleTestIntercept(t *testing.T) {
	a := newTestApp(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"not json", `oi`, fiber.StatusBadRequest},
		{"missing message", `{"tenant":"loja1","phone":"5511999999999"}`, fiber.StatusBadRequest},
		{"bad tenant", `{"tenant":"loja 1","phone":"5511999999999","message":"oi"}`, fiber.StatusBadRequest},
		{"unknown tenant", `{"tenant":"loja9","phone":"5511999999999","message":"oi"}`, fiber.StatusNotFound},
	}
	for _, tt := range tests {
		if code, body := a.do(t, http.MethodPost, "/test/intercept", tt.body); code != tt.want {
			t.Errorf("%s: %d %v", tt.name, code, body)
		}
	}

	code, body := a.do(t, http.MethodPost, "/test/intercept", `{"tenant":"loja1","phone":"5511977777777","message":"1","push_name":"Bia"}`)
	if code != fiber.StatusOK || body["intercepted"] != true {
		t.Fatalf("%d %v", code, body)
	}
	sess, err := a.store.GetSession(context.Background(), "5511977777777", "loja1")
	if err != nil || sess.Ctx().PushName != "Bia" {
		t.Errorf("session = %+v, %v", sess, err)
	}
}

func TestAdminSessions(t *testing.T) {
	a := newTestApp(t)
	a.do(t, http.MethodPost, "/webhook/evolution", upsert("loja1-zap", "5511999999999", "oi"))
	a.do(t, http.MethodPost, "/webhook/evolution", upsert("loja1-zap", "5511999999999", "1"))

	code, body := a.do(t, http.MethodGet, "/admin/sessions/loja1/5511999999999", "")
	if code != fiber.StatusOK {
		t.Fatalf("get: %d %v", code, body)
	}
	sess, _ := body["session"].(map[string]interface{})
	if sess["state"] != models.StateAwaitDev {
		t.Errorf("session = %v", sess)
	}

	code, body = a.do(t, http.MethodPost, "/admin/sessions/loja1/5511999999999/reset", "")
	if code != fiber.StatusOK || body["state"] != models.StateStart {
		t.Errorf("reset: %d %v", code, body)
	}
	stored, _ := a.store.GetSession(context.Background(), "5511999999999", "loja1")
	if stored.State != models.StateStart || len(stored.Stack) != 0 {
		t.Errorf("stored = %+v", stored)
	}

	tests := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/admin/sessions/loja1/5511000000000", fiber.StatusNotFound},
		{http.MethodPost, "/admin/sessions/loja1/5511000000000/reset", fiber.StatusNotFound},
		{http.MethodGet, "/admin/sessions/loja%201/5511999999999", fiber.StatusBadRequest},
	}
	for _, tt := range tests {
		if code, body := a.do(t, tt.method, tt.path, ""); code != tt.want {
			t.Errorf("%s %s: %d %v", tt.method, tt.path, code, body)
		}
	}
}

func TestAdminHandoffs(t *testing.T) {
	a := newTestApp(t)
	a.do(t, http.MethodPost, "/webhook/evolution", upsert("loja1-zap", "5511999999999", "oi"))
	a.do(t, http.MethodPost, "/webhook/evolution", upsert("loja1-zap", "5511999999999", "atendente"))

	code, body := a.do(t, http.MethodGet, "/admin/handoffs?tenant=loja1", "")
	if code != fiber.StatusOK || body["count"] != float64(1) {
		t.Fatalf("list: %d %v", code, body)
	}
	tickets, _ := body["tickets"].([]interface{})
	ticket, _ := tickets[0].(map[string]interface{})
	id, _ := ticket["id"].(string)

	code, body = a.do(t, http.MethodPost, "/admin/handoffs/"+id+"/resolve", "")
	if code != fiber.StatusOK {
		t.Fatalf("resolve: %d %v", code, body)
	}
	sess, _ := a.store.GetSession(context.Background(), "5511999999999", "loja1")
	if sess.State != models.StateStart {
		t.Errorf("bot not re-enabled: state %q", sess.State)
	}

	tests := []struct {
		method, path string
		want         int
		count        float64
	}{
		{http.MethodPost, "/admin/handoffs/" + id + "/resolve", fiber.StatusConflict, -1},
		{http.MethodPost, "/admin/handoffs/missing/resolve", fiber.StatusNotFound, -1},
		{http.MethodGet, "/admin/handoffs", fiber.StatusOK, 0},
		{http.MethodGet, "/admin/handoffs?status=all", fiber.StatusOK, 1},
		{http.MethodGet, "/admin/handoffs?status=resolved&tenant=loja1", fiber.StatusOK, 1},
		{http.MethodGet, "/admin/handoffs?tenant=loja%201", fiber.StatusBadRequest, -1},
	}
	for _, tt := range tests {
		code, body := a.do(t, tt.method, tt.path, "")
		if code != tt.want {
			t.Errorf("%s %s: %d %v", tt.method, tt.path, code, body)
			continue
		}
		if tt.count >= 0 && body["count"] != tt.count {
			t.Errorf("%s: count = %v, want %v", tt.path, body["count"], tt.count)
		}
	}
}

func TestAdminTenantConnection(t *testing.T) {
	a := newTestApp(t)

	a.prober.state = "close"
	code, body := a.do(t, http.MethodGet, "/admin/tenants/loja1/connection", "")
	if code != fiber.StatusOK || body["state"] != "close" || body["live"] != true {
		t.Fatalf("%d %v", code, body)
	}
	tenant, _ := a.store.GetTenant(context.Background(), "loja1")
	if tenant.ConnectionState != "close" {
		t.Errorf("stored state = %q", tenant.ConnectionState)
	}

	a.prober.err = errors.New("gateway down")
	if code, body := a.do(t, http.MethodGet, "/admin/tenants/loja1/connection", ""); code != fiber.StatusBadGateway {
		t.Errorf("probe failure: %d %v", code, body)
	}

	calls := a.prober.calls
	code, body = a.do(t, http.MethodGet, "/admin/tenants/loja2/connection", "")
	if code != fiber.StatusOK || body["live"] != false || a.prober.calls != calls {
		t.Errorf("twilio tenant: %d %v", code, body)
	}
	if code, _ := a.do(t, http.MethodGet, "/admin/tenants/loja9/connection", ""); code != fiber.StatusNotFound {
		t.Errorf("unknown tenant: %d", code)
	}
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name   string
		ping   func(ctx context.Context) error
		want   int
		status string
	}{
		{"no database", nil, fiber.StatusOK, "healthy"},
		{"database up", func(ctx context.Context) error { return nil }, fiber.StatusOK, "healthy"},
		{"database down", func(ctx context.Context) error { return errors.New("refused") }, fiber.StatusServiceUnavailable, "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/health", NewHealthHandler("1.0.0", "PostgreSQL Database", tt.ping).Check)
			a := &testApp{app: app}
			code, body := a.do(t, http.MethodGet, "/health", "")
			if code != tt.want || body["status"] != tt.status || body["version"] != "1.0.0" {
				t.Errorf("%d %v", code, body)
			}
		})
	}
}
