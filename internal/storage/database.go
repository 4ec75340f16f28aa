package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Ananth-NQI/resellerbot-backend/internal/models"
)

// DatabaseStore implements Store on top of GORM
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore creates a store backed by db
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

var _ Store = (*DatabaseStore)(nil)

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// Tenant operations
func (d *DatabaseStore) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	var t models.Tenant
	if err := d.db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (d *DatabaseStore) GetTenantByInstance(ctx context.Context, instance string) (*models.Tenant, error) {
	var t models.Tenant
	if err := d.db.WithContext(ctx).Where("instance_name = ?", instance).First(&t).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (d *DatabaseStore) UpdateTenantConnection(ctx context.Context, id, state, phone string) error {
	updates := map[string]interface{}{"connection_state": state}
	if phone != "" {
		updates["connected_phone"] = phone
	}
	res := d.db.WithContext(ctx).Model(&models.Tenant{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Session operations
func (d *DatabaseStore) GetSession(ctx context.Context, contactID, tenantID string) (*models.BotSession, error) {
	var s models.BotSession
	err := d.db.WithContext(ctx).
		Where("contact_id = ? AND tenant_id = ?", contactID, tenantID).
		First(&s).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (d *DatabaseStore) CreateLockedSession(ctx context.Context, s *models.BotSession) (bool, error) {
	res := d.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(s)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (d *DatabaseStore) TryLockSession(ctx context.Context, contactID, tenantID string, now, staleBefore time.Time) (bool, error) {
	res := d.db.WithContext(ctx).Model(&models.BotSession{}).
		Where("contact_id = ? AND tenant_id = ?", contactID, tenantID).
		Where("locked = ? OR locked_at IS NULL OR locked_at < ?", false, staleBefore).
		Updates(map[string]interface{}{
			"locked":     true,
			"locked_at":  now,
			"updated_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (d *DatabaseStore) UnlockSession(ctx context.Context, contactID, tenantID string) error {
	return d.db.WithContext(ctx).Model(&models.BotSession{}).
		Where("contact_id = ? AND tenant_id = ?", contactID, tenantID).
		Updates(map[string]interface{}{"locked": false, "locked_at": nil}).Error
}

func (d *DatabaseStore) SaveSession(ctx context.Context, s *models.BotSession) error {
	s.UpdatedAt = time.Now()
	return d.db.WithContext(ctx).Model(&models.BotSession{}).
		Where("contact_id = ? AND tenant_id = ?", s.ContactID, s.TenantID).
		Select("state", "previous_state", "stack", "context", "last_interaction", "updated_at").
		Updates(s).Error
}

func (d *DatabaseStore) ResetSession(ctx context.Context, contactID, tenantID string) error {
	s := &models.BotSession{
		ContactID:     contactID,
		TenantID:      tenantID,
		State:         models.StateStart,
		PreviousState: "",
		Stack:         []string{},
		Context:       map[string]interface{}{"interaction_count": 0},
	}
	res := d.db.WithContext(ctx).Model(&models.BotSession{}).
		Where("contact_id = ? AND tenant_id = ?", contactID, tenantID).
		Select("state", "previous_state", "stack", "context", "updated_at").
		Updates(s)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *DatabaseStore) ReleaseStaleLocks(ctx context.Context, lockedBefore time.Time) (int64, error) {
	res := d.db.WithContext(ctx).Model(&models.BotSession{}).
		Where("locked = ? AND locked_at < ?", true, lockedBefore).
		Updates(map[string]interface{}{"locked": false, "locked_at": nil})
	return res.RowsAffected, res.Error
}

// Menu operations
func (d *DatabaseStore) GetRootMenuV2(ctx context.Context, tenantID string) (*models.MenuV2, error) {
	var m models.MenuV2
	err := d.db.WithContext(ctx).
		Where("tenant_id = ? AND is_root = ? AND active = ?", tenantID, true, true).
		Order("display_order ASC, id ASC").
		First(&m).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (d *DatabaseStore) GetMenuV2(ctx context.Context, tenantID, key string) (*models.MenuV2, error) {
	var m models.MenuV2
	err := d.db.WithContext(ctx).
		Where(map[string]interface{}{"tenant_id": tenantID, "key": key, "active": true}).
		First(&m).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (d *DatabaseStore) ListMenuV2Children(ctx context.Context, tenantID, parentKey string) ([]*models.MenuV2, error) {
	var out []*models.MenuV2
	err := d.db.WithContext(ctx).
		Where("tenant_id = ? AND parent_key = ? AND active = ?", tenantID, parentKey, true).
		Order("display_order ASC, title ASC").
		Find(&out).Error
	return out, err
}

func (d *DatabaseStore) GetLegacyMenu(ctx context.Context, tenantID, key string) (*models.LegacyMenu, error) {
	var m models.LegacyMenu
	err := d.db.WithContext(ctx).
		Where(map[string]interface{}{"tenant_id": tenantID, "key": key, "active": true}).
		First(&m).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// Flow operations
func (d *DatabaseStore) GetFlowEntryNode(ctx context.Context, tenantID string, flowID uint) (*models.FlowNode, error) {
	var n models.FlowNode
	err := d.db.WithContext(ctx).
		Joins("JOIN flows ON flows.id = flow_nodes.flow_id").
		Where("flows.id = ? AND flows.tenant_id = ? AND flows.active = ?", flowID, tenantID, true).
		Where("flow_nodes.is_entry = ?", true).
		First(&n).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &n, nil
}

func (d *DatabaseStore) GetFlowNode(ctx context.Context, flowID uint, nodeKey string) (*models.FlowNode, error) {
	var n models.FlowNode
	err := d.db.WithContext(ctx).
		Where("flow_id = ? AND node_key = ?", flowID, nodeKey).
		First(&n).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &n, nil
}

func (d *DatabaseStore) FindFlowNodeByState(ctx context.Context, tenantID, state string) (*models.FlowNode, error) {
	var n models.FlowNode
	err := d.db.WithContext(ctx).
		Joins("JOIN flows ON flows.id = flow_nodes.flow_id").
		Where("flow_nodes.tenant_id = ? AND flow_nodes.state_name = ? AND flows.active = ?", tenantID, state, true).
		Order("flow_nodes.id ASC").
		First(&n).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &n, nil
}

func (d *DatabaseStore) ListFlowEdges(ctx context.Context, flowID uint, fromNode string) ([]*models.FlowEdge, error) {
	var out []*models.FlowEdge
	err := d.db.WithContext(ctx).
		Where("flow_id = ? AND from_node = ?", flowID, fromNode).
		Order("priority DESC, id ASC").
		Find(&out).Error
	return out, err
}

// Message log operations
func (d *DatabaseStore) AppendMessageLog(ctx context.Context, entry *models.MessageLog) error {
	return d.db.WithContext(ctx).Create(entry).Error
}

func (d *DatabaseStore) PurgeMessageLogs(ctx context.Context, before time.Time) (int64, error) {
	res := d.db.WithContext(ctx).Where("created_at < ?", before).Delete(&models.MessageLog{})
	return res.RowsAffected, res.Error
}

// Plan operations
func (d *DatabaseStore) ListActivePlans(ctx context.Context, tenantID string, limit int) ([]*models.Plan, error) {
	var out []*models.Plan
	err := d.db.WithContext(ctx).
		Where("tenant_id = ? AND active = ?", tenantID, true).
		Order("price ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// Trial operations
func (d *DatabaseStore) GetTrialIntegration(ctx context.Context, tenantID string) (*models.TrialIntegration, error) {
	var ti models.TrialIntegration
	if err := d.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&ti).Error; err != nil {
		return nil, notFound(err)
	}
	return &ti, nil
}

// IncrementTrialCounter bumps the counter in one statement and returns the
// new value.
func (d *DatabaseStore) IncrementTrialCounter(ctx context.Context, tenantID string) (int64, error) {
	var counter int64
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.TrialIntegration{}).
			Where("tenant_id = ?", tenantID).
			Update("counter", gorm.Expr("counter + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Model(&models.TrialIntegration{}).
			Where("tenant_id = ?", tenantID).
			Pluck("counter", &counter).Error
	})
	return counter, err
}

func (d *DatabaseStore) CreateTrialClient(ctx context.Context, client *models.TrialClient) error {
	return d.db.WithContext(ctx).Create(client).Error
}

// Handoff operations
func (d *DatabaseStore) CreateHandoffTicket(ctx context.Context, ticket *models.HandoffTicket) error {
	return d.db.WithContext(ctx).Create(ticket).Error
}

func (d *DatabaseStore) GetHandoffTicket(ctx context.Context, id string) (*models.HandoffTicket, error) {
	var t models.HandoffTicket
	if err := d.db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (d *DatabaseStore) ListHandoffTickets(ctx context.Context, tenantID, status string) ([]*models.HandoffTicket, error) {
	q := d.db.WithContext(ctx).Model(&models.HandoffTicket{})
	if tenantID != "" {
		q = q.Where("tenant_id = ?", tenantID)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []*models.HandoffTicket
	err := q.Order("created_at DESC").Find(&out).Error
	return out, err
}

func (d *DatabaseStore) ResolveHandoffTicket(ctx context.Context, id string, at time.Time) error {
	res := d.db.WithContext(ctx).Model(&models.HandoffTicket{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": models.HandoffResolved, "resolved_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
