package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/Ananth-NQI/resellerbot-backend/internal/models"
	"github.com/Ananth-NQI/resellerbot-backend/internal/services"
	"github.com/Ananth-NQI/resellerbot-backend/internal/storage"
)

func lockedSession(t *testing.T, store *storage.MemoryStore, contact string, lockedAt time.Time) {
	t.Helper()
	if _, err := store.CreateLockedSession(context.Background(), models.NewBotSession(contact, "loja1", lockedAt)); err != nil {
		t.Fatalf("CreateLockedSession: %v", err)
	}
}

func TestReleaseStaleLocks(t *testing.T) {
	store := storage.NewMemoryStore()
	now := time.Now()
	lockedSession(t, store, "5511911111111", now.Add(-time.Hour))
	lockedSession(t, store, "5511922222222", now.Add(-time.Minute))

	job := NewMaintenanceJob(store, nil, 30*time.Second, 0, time.Second)
	job.now = func() time.Time { return now }
	job.ReleaseStaleLocks()

	tests := []struct {
		contact    string
		wantLocked bool
	}{
		{"5511911111111", false},
		{"5511922222222", true},
	}
	for _, tt := range tests {
		sess, err := store.GetSession(context.Background(), tt.contact, "loja1")
		if err != nil {
			t.Fatalf("GetSession: %v", err)
		}
		if sess.Locked != tt.wantLocked {
			t.Errorf("%s locked = %v, want %v", tt.contact, sess.Locked, tt.wantLocked)
		}
	}
}

func TestPurgeMessageLogs(t *testing.T) {
	store := storage.NewMemoryStore()
	now := time.Now()
	for i, age := range []time.Duration{45 * 24 * time.Hour, 31 * 24 * time.Hour, 2 * time.Hour} {
		_ = store.AppendMessageLog(context.Background(), &models.MessageLog{
			ID:        []string{"a", "b", "c"}[i],
			TenantID:  "loja1",
			Direction: models.DirectionInbound,
			CreatedAt: now.Add(-age),
		})
	}

	job := NewMaintenanceJob(store, nil, 30*time.Second, 30, time.Second)
	job.now = func() time.Time { return now }
	job.PurgeMessageLogs()

	logs := store.MessageLogs()
	if len(logs) != 1 || logs[0].ID != "c" {
		t.Errorf("remaining logs = %+v", logs)
	}
}

func TestSweepDedup(t *testing.T) {
	dedup := services.NewDedupCache(time.Millisecond, 10)
	dedup.CheckAndMark("5511999999999", "loja1", "oi")
	time.Sleep(5 * time.Millisecond)

	job := NewMaintenanceJob(storage.NewMemoryStore(), dedup, 30*time.Second, 0, time.Second)
	job.SweepDedup()
	if n := dedup.Len(); n != 0 {
		t.Errorf("dedup entries after sweep = %d", n)
	}

	NewMaintenanceJob(storage.NewMemoryStore(), nil, time.Second, 0, time.Second).SweepDedup()
}

func TestMaintenanceSchedule(t *testing.T) {
	tests := []struct {
		name          string
		retentionDays int
		wantJobs      int
	}{
		{"without retention", 0, 2},
		{"with retention", 30, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewMaintenanceJob(storage.NewMemoryStore(), services.NewDedupCache(time.Second, 10), time.Second, tt.retentionDays, time.Second)
			if err := job.Start(); err != nil {
				t.Fatalf("Start: %v", err)
			}
			defer job.Stop()
			if err := job.Start(); err != nil {
				t.Fatalf("second Start: %v", err)
			}
			if got := len(job.cron.Entries()); got != tt.wantJobs {
				t.Errorf("jobs = %d, want %d", got, tt.wantJobs)
			}
		})
	}
}
