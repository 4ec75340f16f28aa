package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Ananth-NQI/resellerbot-backend/internal/models"
	"github.com/Ananth-NQI/resellerbot-backend/internal/storage"
)

const (
	testTenant    = "loja1"
	testInstance  = "loja1-zap"
	testContact   = "5511999999999"
	instancePhone = "5511900000000"
)

func newTestStore() *storage.MemoryStore {
	store := storage.NewMemoryStore()
	store.AddTenant(&models.Tenant{
		ID:             testTenant,
		Name:           "Loja 1",
		InstanceName:   testInstance,
		ConnectedPhone: instancePhone,
		BotEnabled:     true,
	})
	return store
}

// seedMenuTree authors a root menu with one option of every type and a
// PLANOS submenu.
func seedMenuTree(store *storage.MemoryStore, flowID uint) {
	add := func(m models.MenuV2) {
		m.TenantID = testTenant
		m.Active = true
		store.AddMenuV2(&m)
	}
	add(models.MenuV2{Key: "ROOT", Title: "Menu Principal", IsRoot: true, FooterText: "Responda com o número"})
	add(models.MenuV2{Key: "PLANOS", ParentKey: "ROOT", Title: "Planos", Emoji: "📋", OptionType: models.OptionSubmenu, ShowBack: true, DisplayOrder: 1})
	add(models.MenuV2{Key: "SOBRE", ParentKey: "ROOT", Title: "Sobre nós", OptionType: models.OptionMessage, Payload: "Somos a Loja 1", DisplayOrder: 2})
	add(models.MenuV2{Key: "SITE", ParentKey: "ROOT", Title: "Site", OptionType: models.OptionLink, Payload: "https://loja1.example.com", DisplayOrder: 3})
	add(models.MenuV2{Key: "AJUDA", ParentKey: "ROOT", Title: "Ajuda", OptionType: models.OptionCommand, Payload: "/ajuda", DisplayOrder: 4})
	add(models.MenuV2{Key: "TESTE", ParentKey: "ROOT", Title: "Teste grátis", OptionType: models.OptionFlow, Payload: fmt.Sprint(flowID), DisplayOrder: 5})
	add(models.MenuV2{Key: "MENSAL", ParentKey: "PLANOS", Title: "Mensal", OptionType: models.OptionMessage, Payload: "Plano mensal: R$ 30", DisplayOrder: 1})
	add(models.MenuV2{Key: "ANUAL", ParentKey: "PLANOS", Title: "Anual", OptionType: models.OptionMessage, Payload: "Plano anual: R$ 300", DisplayOrder: 2})
}

// seedNameFlow authors a two node flow that captures the contact's name.
func seedNameFlow(store *storage.MemoryStore) uint {
	return store.AddFlow(
		&models.Flow{TenantID: testTenant, Name: "cadastro", Active: true},
		[]*models.FlowNode{
			{NodeKey: "ask", IsEntry: true, Config: models.FlowNodeConfig{Text: "Qual é o seu nome?", CaptureVar: "nome"}},
			{NodeKey: "done", Config: models.FlowNodeConfig{Text: "Obrigado, {{nome}}!"}},
		},
		[]*models.FlowEdge{
			{FromNode: "ask", ToNode: "done", ConditionType: models.ConditionAlways},
		},
	)
}

type fakeTransport struct {
	mu     sync.Mutex
	fail   map[string]bool
	sent   []string
	bodies []string
}

func (f *fakeTransport) SendText(ctx context.Context, identity, to, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, to)
	if f.fail[to] {
		return fmt.Errorf("rejected %s", to)
	}
	f.bodies = append(f.bodies, text)
	return nil
}

func (f *fakeTransport) attempts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type harness struct {
	store       *storage.MemoryStore
	actions     *ActionExecutor
	navigator   *Navigator
	interceptor *Interceptor
	transport   *fakeTransport
	dedup       *DedupCache
}

func newHarness(t *testing.T, store *storage.MemoryStore) *harness {
	t.Helper()
	actions := NewActionExecutor(store, 2*time.Second, nil, 5)
	navigator := NewNavigator(store, NewMenuEngine(store), NewFlowRunner(store), actions, 30*time.Minute)
	commands := NewCommandRegistry()
	RegisterDefaultCommands(commands, actions)

	transport := &fakeTransport{fail: map[string]bool{}}
	sender := NewSender(0)
	sender.Register(models.TransportEvolution, transport)

	dedup := NewDedupCache(10*time.Second, 100)
	locks := NewSessionLockManager(store, 30*time.Second)
	return &harness{
		store:       store,
		actions:     actions,
		navigator:   navigator,
		interceptor: NewInterceptor(store, dedup, locks, navigator, commands, sender, 2*time.Second),
		transport:   transport,
		dedup:       dedup,
	}
}

func upsertBody(instance, phone, text string) []byte {
	return []byte(fmt.Sprintf(`{"event":"messages.upsert","instance":%q,"data":{"key":{"remoteJid":"%s@s.whatsapp.net","fromMe":false,"id":"MSG-%s"},"pushName":"Ana","message":{"conversation":%q}}}`,
		instance, phone, text, text))
}

func (h *harness) send(t *testing.T, text string) *InterceptResult {
	t.Helper()
	res, err := h.interceptor.Intercept(context.Background(), InterceptRequest{Body: upsertBody(testInstance, testContact, text)})
	if err != nil {
		t.Fatalf("Intercept(%q): %v", text, err)
	}
	return res
}

func (h *harness) session(t *testing.T) *models.BotSession {
	t.Helper()
	sess, err := h.store.GetSession(context.Background(), testContact, testTenant)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	return sess
}

// putSession stores an unlocked session for the test contact.
func putSession(t *testing.T, store *storage.MemoryStore, sess *models.BotSession) {
	t.Helper()
	ctx := context.Background()
	sess.ContactID, sess.TenantID = testContact, testTenant
	if _, err := store.CreateLockedSession(ctx, sess); err != nil {
		t.Fatalf("CreateLockedSession: %v", err)
	}
	if !sess.Locked {
		if err := store.UnlockSession(ctx, testContact, testTenant); err != nil {
			t.Fatalf("UnlockSession: %v", err)
		}
	}
}
