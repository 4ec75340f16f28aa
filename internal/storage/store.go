package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Ananth-NQI/resellerbot-backend/internal/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

var storeInstance Store

// SetStore sets the global store instance (call from main.go)
func SetStore(s Store) {
	storeInstance = s
}

// GetStore returns the global store instance
func GetStore() Store {
	return storeInstance
}

// Store defines the interface for storage operations
type Store interface {
	// Tenant operations
	GetTenant(ctx context.Context, id string) (*models.Tenant, error)
	GetTenantByInstance(ctx context.Context, instance string) (*models.Tenant, error)
	UpdateTenantConnection(ctx context.Context, id, state, phone string) error

	// Session operations
	GetSession(ctx context.Context, contactID, tenantID string) (*models.BotSession, error)
	// CreateLockedSession inserts s unless a row for the same contact and
	// tenant exists. created is false when another writer got there first.
	CreateLockedSession(ctx context.Context, s *models.BotSession) (created bool, err error)
	// TryLockSession sets locked=true only if the row is unlocked or its lock
	// was taken before staleBefore. It reports whether this call took the lock.
	TryLockSession(ctx context.Context, contactID, tenantID string, now, staleBefore time.Time) (bool, error)
	UnlockSession(ctx context.Context, contactID, tenantID string) error
	// SaveSession writes the navigation fields of s. The lock columns are
	// left alone.
	SaveSession(ctx context.Context, s *models.BotSession) error
	ResetSession(ctx context.Context, contactID, tenantID string) error
	ReleaseStaleLocks(ctx context.Context, lockedBefore time.Time) (int64, error)

	// Menu operations
	GetRootMenuV2(ctx context.Context, tenantID string) (*models.MenuV2, error)
	GetMenuV2(ctx context.Context, tenantID, key string) (*models.MenuV2, error)
	ListMenuV2Children(ctx context.Context, tenantID, parentKey string) ([]*models.MenuV2, error)
	GetLegacyMenu(ctx context.Context, tenantID, key string) (*models.LegacyMenu, error)

	// Flow operations
	GetFlowEntryNode(ctx context.Context, tenantID string, flowID uint) (*models.FlowNode, error)
	GetFlowNode(ctx context.Context, flowID uint, nodeKey string) (*models.FlowNode, error)
	FindFlowNodeByState(ctx context.Context, tenantID, state string) (*models.FlowNode, error)
	// ListFlowEdges returns the outgoing edges of a node, highest priority first.
	ListFlowEdges(ctx context.Context, flowID uint, fromNode string) ([]*models.FlowEdge, error)

	// Message log operations
	AppendMessageLog(ctx context.Context, entry *models.MessageLog) error
	PurgeMessageLogs(ctx context.Context, before time.Time) (int64, error)

	// Plan operations
	ListActivePlans(ctx context.Context, tenantID string, limit int) ([]*models.Plan, error)

	// Trial operations
	GetTrialIntegration(ctx context.Context, tenantID string) (*models.TrialIntegration, error)
	IncrementTrialCounter(ctx context.Context, tenantID string) (int64, error)
	CreateTrialClient(ctx context.Context, client *models.TrialClient) error

	// Handoff operations
	CreateHandoffTicket(ctx context.Context, ticket *models.HandoffTicket) error
	GetHandoffTicket(ctx context.Context, id string) (*models.HandoffTicket, error)
	ListHandoffTickets(ctx context.Context, tenantID, status string) ([]*models.HandoffTicket, error)
	ResolveHandoffTicket(ctx context.Context, id string, at time.Time) error
}
