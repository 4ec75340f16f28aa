package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/Ananth-NQI/resellerbot-backend/internal/services"
	"github.com/Ananth-NQI/resellerbot-backend/internal/storage"
)

// Schedules of the maintenance jobs
const (
	DedupSweepSpec = "@every 1m"
	LockSweepSpec  = "@every 5m"
	LogPurgeSpec   = "0 3 * * *"
)

// staleLockFactor scales the lock staleness threshold for the sweeper, so it
// only frees locks no live processor can still hold.
const staleLockFactor = 10

// MaintenanceJob runs periodic housekeeping for the bot
type MaintenanceJob struct {
	store      storage.Store
	dedup      *services.DedupCache
	staleAfter time.Duration
	retention  time.Duration
	timeout    time.Duration
	now        func() time.Time

	mu        sync.Mutex
	cron      *cron.Cron
	isRunning bool
}

// NewMaintenanceJob creates the scheduler. retentionDays <= 0 disables the
// message log purge.
func NewMaintenanceJob(store storage.Store, dedup *services.DedupCache, staleAfter time.Duration, retentionDays int, timeout time.Duration) *MaintenanceJob {
	return &MaintenanceJob{
		store:      store,
		dedup:      dedup,
		staleAfter: staleAfter,
		retention:  time.Duration(retentionDays) * 24 * time.Hour,
		timeout:    timeout,
		now:        time.Now,
	}
}

// Start registers and starts all jobs
func (m *MaintenanceJob) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.isRunning {
		zap.L().Info("maintenance jobs already running")
		return nil
	}

	c := cron.New(cron.WithChain(cron.Recover(cronLogger{})))
	if _, err := c.AddFunc(DedupSweepSpec, m.SweepDedup); err != nil {
		return err
	}
	if _, err := c.AddFunc(LockSweepSpec, m.ReleaseStaleLocks); err != nil {
		return err
	}
	if m.retention > 0 {
		if _, err := c.AddFunc(LogPurgeSpec, m.PurgeMessageLogs); err != nil {
			return err
		}
	}
	c.Start()

	m.cron = c
	m.isRunning = true
	zap.L().Info("maintenance jobs started", zap.Int("jobs", len(c.Entries())))
	return nil
}

// Stop halts the scheduler and waits for running jobs
func (m *MaintenanceJob) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.isRunning {
		return
	}
	<-m.cron.Stop().Done()
	m.isRunning = false
	zap.L().Info("maintenance jobs stopped")
}

// SweepDedup drops expired fingerprints
func (m *MaintenanceJob) SweepDedup() {
	if m.dedup == nil {
		return
	}
	zap.L().Debug("dedup cache swept", zap.Int("remaining", m.dedup.Sweep()))
}

// ReleaseStaleLocks frees session locks abandoned long ago
func (m *MaintenanceJob) ReleaseStaleLocks() {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	before := m.now().Add(-staleLockFactor * m.staleAfter)
	n, err := m.store.ReleaseStaleLocks(ctx, before)
	if err != nil {
		zap.L().Error("stale lock sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		zap.L().Warn("released abandoned session locks", zap.Int64("count", n))
	}
}

// PurgeMessageLogs deletes message logs older than the retention period
func (m *MaintenanceJob) PurgeMessageLogs() {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	n, err := m.store.PurgeMessageLogs(ctx, m.now().Add(-m.retention))
	if err != nil {
		zap.L().Error("message log purge failed", zap.Error(err))
		return
	}
	zap.L().Info("message logs purged", zap.Int64("count", n))
}

// cronLogger adapts zap to cron.Logger
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	zap.S().Debugw(msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	zap.S().Errorw(msg, append(keysAndValues, "error", err)...)
}
