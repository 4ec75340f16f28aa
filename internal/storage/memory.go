package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Ananth-NQI/resellerbot-backend/internal/models"
)

// MemoryStore holds all data in memory for development and tests
type MemoryStore struct {
	tenants  map[string]*models.Tenant
	sessions map[string]*models.BotSession

	menusV2     []*models.MenuV2
	legacyMenus []*models.LegacyMenu
	flows       map[uint]*models.Flow
	flowNodes   []*models.FlowNode
	flowEdges   []*models.FlowEdge
	plans       []*models.Plan
	trials      map[string]*models.TrialIntegration
	clients     []*models.TrialClient
	handoffs    map[string]*models.HandoffTicket
	logs        []*models.MessageLog

	// Mutexes for thread safety
	tenantMu  sync.RWMutex
	sessionMu sync.Mutex
	menuMu    sync.RWMutex
	trialMu   sync.Mutex
	handoffMu sync.RWMutex
	logMu     sync.Mutex

	// Counters for ID generation
	sessionCounter uint
	menuCounter    uint
	flowCounter    uint
}

// NewMemoryStore creates a new in-memory storage
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants:  make(map[string]*models.Tenant),
		sessions: make(map[string]*models.BotSession),
		flows:    make(map[uint]*models.Flow),
		trials:   make(map[string]*models.TrialIntegration),
		handoffs: make(map[string]*models.HandoffTicket),
	}
}

var _ Store = (*MemoryStore)(nil)

func sessionKey(contactID, tenantID string) string {
	return tenantID + "|" + contactID
}

// Seed helpers. The dashboard authors these rows in production.

func (m *MemoryStore) AddTenant(t *models.Tenant) {
	m.tenantMu.Lock()
	defer m.tenantMu.Unlock()
	cp := *t
	m.tenants[t.ID] = &cp
}

func (m *MemoryStore) AddMenuV2(menu *models.MenuV2) {
	m.menuMu.Lock()
	defer m.menuMu.Unlock()
	m.menuCounter++
	cp := *menu
	if cp.ID == 0 {
		cp.ID = m.menuCounter
	}
	m.menusV2 = append(m.menusV2, &cp)
}

func (m *MemoryStore) AddLegacyMenu(menu *models.LegacyMenu) {
	m.menuMu.Lock()
	defer m.menuMu.Unlock()
	m.menuCounter++
	cp := *menu
	if cp.ID == 0 {
		cp.ID = m.menuCounter
	}
	m.legacyMenus = append(m.legacyMenus, &cp)
}

// AddFlow stores a flow and returns its ID.
func (m *MemoryStore) AddFlow(flow *models.Flow, nodes []*models.FlowNode, edges []*models.FlowEdge) uint {
	m.menuMu.Lock()
	defer m.menuMu.Unlock()
	m.flowCounter++
	cp := *flow
	if cp.ID == 0 {
		cp.ID = m.flowCounter
	}
	m.flows[cp.ID] = &cp
	for _, n := range nodes {
		nc := *n
		nc.FlowID = cp.ID
		nc.TenantID = cp.TenantID
		m.flowNodes = append(m.flowNodes, &nc)
	}
	for _, e := range edges {
		ec := *e
		ec.FlowID = cp.ID
		m.flowEdges = append(m.flowEdges, &ec)
	}
	return cp.ID
}

func (m *MemoryStore) AddPlan(plan *models.Plan) {
	m.menuMu.Lock()
	defer m.menuMu.Unlock()
	cp := *plan
	m.plans = append(m.plans, &cp)
}

func (m *MemoryStore) SetTrialIntegration(ti *models.TrialIntegration) {
	m.trialMu.Lock()
	defer m.trialMu.Unlock()
	cp := *ti
	m.trials[ti.TenantID] = &cp
}

// MessageLogs returns a snapshot of the appended log entries.
func (m *MemoryStore) MessageLogs() []models.MessageLog {
	m.logMu.Lock()
	defer m.logMu.Unlock()
	out := make([]models.MessageLog, 0, len(m.logs))
	for _, l := range m.logs {
		out = append(out, *l)
	}
	return out
}

// TrialClients returns a snapshot of the issued credentials.
func (m *MemoryStore) TrialClients() []models.TrialClient {
	m.trialMu.Lock()
	defer m.trialMu.Unlock()
	out := make([]models.TrialClient, 0, len(m.clients))
	for _, c := range m.clients {
		out = append(out, *c)
	}
	return out
}

// Tenant operations
func (m *MemoryStore) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	m.tenantMu.RLock()
	defer m.tenantMu.RUnlock()

	t, exists := m.tenants[id]
	if !exists {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) GetTenantByInstance(ctx context.Context, instance string) (*models.Tenant, error) {
	m.tenantMu.RLock()
	defer m.tenantMu.RUnlock()

	for _, t := range m.tenants {
		if t.InstanceName == instance {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) UpdateTenantConnection(ctx context.Context, id, state, phone string) error {
	m.tenantMu.Lock()
	defer m.tenantMu.Unlock()

	t, exists := m.tenants[id]
	if !exists {
		return ErrNotFound
	}
	t.ConnectionState = state
	if phone != "" {
		t.ConnectedPhone = phone
	}
	t.UpdatedAt = time.Now()
	return nil
}

// Session operations
func (m *MemoryStore) GetSession(ctx context.Context, contactID, tenantID string) (*models.BotSession, error) {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	s, exists := m.sessions[sessionKey(contactID, tenantID)]
	if !exists {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) CreateLockedSession(ctx context.Context, s *models.BotSession) (bool, error) {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	key := sessionKey(s.ContactID, s.TenantID)
	if _, exists := m.sessions[key]; exists {
		return false, nil
	}
	m.sessionCounter++
	s.ID = m.sessionCounter
	m.sessions[key] = s.Clone()
	return true, nil
}

func (m *MemoryStore) TryLockSession(ctx context.Context, contactID, tenantID string, now, staleBefore time.Time) (bool, error) {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	s, exists := m.sessions[sessionKey(contactID, tenantID)]
	if !exists {
		return false, nil
	}
	if s.Locked && s.LockedAt != nil && !s.LockedAt.Before(staleBefore) {
		return false, nil
	}
	s.Locked = true
	s.LockedAt = &now
	s.UpdatedAt = now
	return true, nil
}

func (m *MemoryStore) UnlockSession(ctx context.Context, contactID, tenantID string) error {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	if s, exists := m.sessions[sessionKey(contactID, tenantID)]; exists {
		s.Locked = false
		s.LockedAt = nil
	}
	return nil
}

func (m *MemoryStore) SaveSession(ctx context.Context, s *models.BotSession) error {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	cur, exists := m.sessions[sessionKey(s.ContactID, s.TenantID)]
	if !exists {
		return ErrNotFound
	}
	next := s.Clone()
	cur.State = next.State
	cur.PreviousState = next.PreviousState
	cur.Stack = next.Stack
	cur.Context = next.Context
	cur.LastInteraction = next.LastInteraction
	cur.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) ResetSession(ctx context.Context, contactID, tenantID string) error {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	s, exists := m.sessions[sessionKey(contactID, tenantID)]
	if !exists {
		return ErrNotFound
	}
	s.State = models.StateStart
	s.PreviousState = ""
	s.Stack = []string{}
	s.Context = map[string]interface{}{"interaction_count": 0}
	s.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) ReleaseStaleLocks(ctx context.Context, lockedBefore time.Time) (int64, error) {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	var released int64
	for _, s := range m.sessions {
		if s.Locked && s.LockedAt != nil && s.LockedAt.Before(lockedBefore) {
			s.Locked = false
			s.LockedAt = nil
			released++
		}
	}
	return released, nil
}

// Menu operations
func (m *MemoryStore) GetRootMenuV2(ctx context.Context, tenantID string) (*models.MenuV2, error) {
	m.menuMu.RLock()
	defer m.menuMu.RUnlock()

	for _, menu := range m.menusV2 {
		if menu.TenantID == tenantID && menu.IsRoot && menu.Active {
			cp := *menu
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) GetMenuV2(ctx context.Context, tenantID, key string) (*models.MenuV2, error) {
	m.menuMu.RLock()
	defer m.menuMu.RUnlock()

	for _, menu := range m.menusV2 {
		if menu.TenantID == tenantID && menu.Key == key && menu.Active {
			cp := *menu
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListMenuV2Children(ctx context.Context, tenantID, parentKey string) ([]*models.MenuV2, error) {
	m.menuMu.RLock()
	defer m.menuMu.RUnlock()

	var out []*models.MenuV2
	for _, menu := range m.menusV2 {
		if menu.TenantID == tenantID && menu.ParentKey == parentKey && menu.Active {
			cp := *menu
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].Title < out[j].Title
	})
	return out, nil
}

func (m *MemoryStore) GetLegacyMenu(ctx context.Context, tenantID, key string) (*models.LegacyMenu, error) {
	m.menuMu.RLock()
	defer m.menuMu.RUnlock()

	for _, menu := range m.legacyMenus {
		if menu.TenantID == tenantID && menu.Key == key && menu.Active {
			cp := *menu
			cp.Options = append([]models.LegacyMenuOption(nil), menu.Options...)
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// Flow operations
func (m *MemoryStore) GetFlowEntryNode(ctx context.Context, tenantID string, flowID uint) (*models.FlowNode, error) {
	m.menuMu.RLock()
	defer m.menuMu.RUnlock()

	flow, exists := m.flows[flowID]
	if !exists || flow.TenantID != tenantID || !flow.Active {
		return nil, ErrNotFound
	}
	for _, n := range m.flowNodes {
		if n.FlowID == flowID && n.IsEntry {
			cp := *n
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) GetFlowNode(ctx context.Context, flowID uint, nodeKey string) (*models.FlowNode, error) {
	m.menuMu.RLock()
	defer m.menuMu.RUnlock()

	for _, n := range m.flowNodes {
		if n.FlowID == flowID && n.NodeKey == nodeKey {
			cp := *n
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) FindFlowNodeByState(ctx context.Context, tenantID, state string) (*models.FlowNode, error) {
	m.menuMu.RLock()
	defer m.menuMu.RUnlock()

	for _, n := range m.flowNodes {
		if n.TenantID != tenantID || n.StateName != state {
			continue
		}
		if flow, ok := m.flows[n.FlowID]; ok && flow.Active {
			cp := *n
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListFlowEdges(ctx context.Context, flowID uint, fromNode string) ([]*models.FlowEdge, error) {
	m.menuMu.RLock()
	defer m.menuMu.RUnlock()

	var out []*models.FlowEdge
	for _, e := range m.flowEdges {
		if e.FlowID == flowID && e.FromNode == fromNode {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out, nil
}

// Message log operations
func (m *MemoryStore) AppendMessageLog(ctx context.Context, entry *models.MessageLog) error {
	m.logMu.Lock()
	defer m.logMu.Unlock()

	cp := *entry
	m.logs = append(m.logs, &cp)
	return nil
}

func (m *MemoryStore) PurgeMessageLogs(ctx context.Context, before time.Time) (int64, error) {
	m.logMu.Lock()
	defer m.logMu.Unlock()

	kept := m.logs[:0]
	var purged int64
	for _, l := range m.logs {
		if l.CreatedAt.Before(before) {
			purged++
			continue
		}
		kept = append(kept, l)
	}
	m.logs = kept
	return purged, nil
}

// Plan operations
func (m *MemoryStore) ListActivePlans(ctx context.Context, tenantID string, limit int) ([]*models.Plan, error) {
	m.menuMu.RLock()
	defer m.menuMu.RUnlock()

	var out []*models.Plan
	for _, p := range m.plans {
		if p.TenantID == tenantID && p.Active {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Trial operations
func (m *MemoryStore) GetTrialIntegration(ctx context.Context, tenantID string) (*models.TrialIntegration, error) {
	m.trialMu.Lock()
	defer m.trialMu.Unlock()

	ti, exists := m.trials[tenantID]
	if !exists {
		return nil, ErrNotFound
	}
	cp := *ti
	return &cp, nil
}

func (m *MemoryStore) IncrementTrialCounter(ctx context.Context, tenantID string) (int64, error) {
	m.trialMu.Lock()
	defer m.trialMu.Unlock()

	ti, exists := m.trials[tenantID]
	if !exists {
		return 0, ErrNotFound
	}
	ti.Counter++
	return ti.Counter, nil
}

func (m *MemoryStore) CreateTrialClient(ctx context.Context, client *models.TrialClient) error {
	m.trialMu.Lock()
	defer m.trialMu.Unlock()

	cp := *client
	m.clients = append(m.clients, &cp)
	return nil
}

// Handoff operations
func (m *MemoryStore) CreateHandoffTicket(ctx context.Context, ticket *models.HandoffTicket) error {
	m.handoffMu.Lock()
	defer m.handoffMu.Unlock()

	if _, exists := m.handoffs[ticket.ID]; exists {
		return fmt.Errorf("handoff ticket %s already exists", ticket.ID)
	}
	cp := *ticket
	m.handoffs[ticket.ID] = &cp
	return nil
}

func (m *MemoryStore) GetHandoffTicket(ctx context.Context, id string) (*models.HandoffTicket, error) {
	m.handoffMu.RLock()
	defer m.handoffMu.RUnlock()

	t, exists := m.handoffs[id]
	if !exists {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) ListHandoffTickets(ctx context.Context, tenantID, status string) ([]*models.HandoffTicket, error) {
	m.handoffMu.RLock()
	defer m.handoffMu.RUnlock()

	var out []*models.HandoffTicket
	for _, t := range m.handoffs {
		if tenantID != "" && t.TenantID != tenantID {
			continue
		}
		if status != "" && t.Status != status {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) ResolveHandoffTicket(ctx context.Context, id string, at time.Time) error {
	m.handoffMu.Lock()
	defer m.handoffMu.Unlock()

	t, exists := m.handoffs[id]
	if !exists {
		return ErrNotFound
	}
	t.Status = models.HandoffResolved
	t.ResolvedAt = &at
	return nil
}
