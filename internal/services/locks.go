package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Ananth-NQI/resellerbot-backend/internal/models"
	"github.com/Ananth-NQI/resellerbot-backend/internal/storage"
)

// LockResult describes the outcome of an acquire attempt
type LockResult struct {
	Acquired bool
	// Created is set when the session row was created by this acquire.
	Created bool
	// Reclaimed is set when the previous holder's lock had gone stale.
	Reclaimed bool
}

// SessionLockManager serializes processing per contact and tenant through a
// conditional write on the session row.
type SessionLockManager struct {
	store      storage.Store
	staleAfter time.Duration
	now        func() time.Time
}

// NewSessionLockManager creates a lock manager treating locks older than
// staleAfter as abandoned
func NewSessionLockManager(store storage.Store, staleAfter time.Duration) *SessionLockManager {
	return &SessionLockManager{store: store, staleAfter: staleAfter, now: time.Now}
}

// Acquire takes the lock for a contact, creating the session row on first
// contact. A false Acquired with a nil error means another delivery holds a
// fresh lock.
func (l *SessionLockManager) Acquire(ctx context.Context, contactID, tenantID string) (LockResult, error) {
	now := l.now()

	existing, err := l.store.GetSession(ctx, contactID, tenantID)
	if errors.Is(err, storage.ErrNotFound) {
		created, err := l.store.CreateLockedSession(ctx, models.NewBotSession(contactID, tenantID, now))
		if err != nil {
			return LockResult{}, fmt.Errorf("create session: %w", err)
		}
		if created {
			return LockResult{Acquired: true, Created: true}, nil
		}
		// Lost the creation race; the winner holds a fresh lock.
		existing, err = l.store.GetSession(ctx, contactID, tenantID)
	}
	if err != nil {
		return LockResult{}, fmt.Errorf("load session: %w", err)
	}

	staleBefore := now.Add(-l.staleAfter)
	reclaiming := false
	if existing.Locked {
		if existing.LockedAt != nil && !existing.LockedAt.Before(staleBefore) {
			zap.L().Debug("session lock held",
				zap.String("tenant", tenantID),
				zap.String("contact", contactID))
			return LockResult{}, nil
		}
		reclaiming = true
	}

	ok, err := l.store.TryLockSession(ctx, contactID, tenantID, now, staleBefore)
	if err != nil {
		return LockResult{}, fmt.Errorf("lock session: %w", err)
	}
	if !ok {
		return LockResult{}, nil
	}
	if reclaiming {
		zap.L().Warn("reclaimed stale session lock",
			zap.String("tenant", tenantID),
			zap.String("contact", contactID))
	}
	return LockResult{Acquired: true, Reclaimed: reclaiming}, nil
}

// Release clears the lock unconditionally.
func (l *SessionLockManager) Release(ctx context.Context, contactID, tenantID string) error {
	if err := l.store.UnlockSession(ctx, contactID, tenantID); err != nil {
		return fmt.Errorf("unlock session: %w", err)
	}
	return nil
}
