// Package migration tracks one import run per tenant through a persisted
// state machine. The "one non-terminal task per tenant" invariant is held by
// a conditional update on the tenant's settings document, not by in-process
// locking, so it survives restarts and multiple replicas.
package migration

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/wardenpanel/warden-backend/internal/models"
)

const (
	// Cooldown is the mandatory wait after a completed migration before the
	// next one may start. A failed migration does not restart it.
	Cooldown = 24 * time.Hour
	// HistoryLimit caps the per-tenant ring of finished tasks.
	HistoryLimit = 10
)

var (
	ErrAlreadyRunning = errors.New("a migration is already running for this tenant")
	ErrOnCooldown     = errors.New("the cooldown after the last completed migration has not elapsed")
	ErrNoRunningTask  = errors.New("no migration is running for this tenant")
	ErrNoTerminalTask = errors.New("no finished migration task to dismiss")
)

// SettingsStore persists the per-tenant migration config document. The
// conditional-start and monotonic-progress semantics live in the store so
// they hold across processes.
type SettingsStore interface {
	// GetMigration returns the tenant's migration config, creating an empty
	// one if none exists.
	GetMigration(ctx context.Context, tenant string) (*models.MigrationConfig, error)
	// TryStartTask installs task if and only if no non-terminal task exists
	// and the last completion is not after cooldownCutoff. Returns false
	// when the conditional update matched nothing.
	TryStartTask(ctx context.Context, tenant string, task *models.MigrationTask, cooldownCutoff time.Time) (bool, error)
	// UpdateProgress advances the running task's status and message and
	// raises its counters. Counter updates are monotonic: a racing post with
	// lower counts cannot revert a higher one.
	UpdateProgress(ctx context.Context, tenant string, status models.MigrationStatus, message string, processed, skipped, total int64) error
	// CompleteTask marks the running task completed, stamps the completion
	// time (restarting the cooldown) and pushes entry onto the history ring.
	CompleteTask(ctx context.Context, tenant string, entry models.MigrationHistoryEntry, message string, keepHistory int) error
	// FailTask marks the running task failed with entry.Error and pushes
	// entry onto the history ring. The cooldown anchor is left untouched.
	FailTask(ctx context.Context, tenant string, entry models.MigrationHistoryEntry, message string, keepHistory int) error
	// ClearTerminalTask removes a completed/failed task. Returns false when
	// the current task is missing or still running.
	ClearTerminalTask(ctx context.Context, tenant string) (bool, error)
}

// Coordinator is the migration state machine over a SettingsStore.
type Coordinator struct {
	store    SettingsStore
	cooldown time.Duration
	now      func() time.Time
}

func New(store SettingsStore) *Coordinator {
	return &Coordinator{store: store, cooldown: Cooldown, now: time.Now}
}

// Start begins a new migration task of the given type. It fails with
// ErrAlreadyRunning or ErrOnCooldown; both checks are evaluated atomically
// against the persisted document, so two racing starts cannot both win.
func (c *Coordinator) Start(ctx context.Context, tenant, taskType string) (*models.MigrationTask, error) {
	// Make sure the config document exists before the conditional update.
	if _, err := c.store.GetMigration(ctx, tenant); err != nil {
		return nil, err
	}

	task := &models.MigrationTask{
		ID:        uuid.NewString(),
		Type:      taskType,
		Status:    models.MigrationBuildingJSON,
		StartedAt: c.now(),
	}
	cutoff := c.now().Add(-c.cooldown)

	ok, err := c.store.TryStartTask(ctx, tenant, task, cutoff)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost the conditional update; read the document to tell the
		// caller which precondition blocked the start.
		cfg, err := c.store.GetMigration(ctx, tenant)
		if err != nil {
			return nil, err
		}
		if cfg.Task != nil && !cfg.Task.Status.Terminal() {
			return nil, ErrAlreadyRunning
		}
		return nil, ErrOnCooldown
	}
	return task, nil
}

// Sink returns a progress sink bound to one tenant. It satisfies the import
// pipeline's ProgressSink.
func (c *Coordinator) Sink(tenant string) *TenantSink {
	return &TenantSink{c: c, tenant: tenant}
}

// TenantSink posts progress updates for one tenant's running task.
type TenantSink struct {
	c      *Coordinator
	tenant string
}

func (s *TenantSink) Post(ctx context.Context, status models.MigrationStatus, message string, processed, skipped, total int64) error {
	return s.c.store.UpdateProgress(ctx, s.tenant, status, message, processed, skipped, total)
}

// Complete finishes the running task successfully, appends a history entry
// and starts the cooldown.
func (c *Coordinator) Complete(ctx context.Context, tenant, message string, processed, skipped, total int64) error {
	task, err := c.runningTask(ctx, tenant)
	if err != nil {
		return err
	}
	entry := models.MigrationHistoryEntry{
		TaskID:     task.ID,
		Type:       task.Type,
		Status:     models.MigrationCompleted,
		StartedAt:  task.StartedAt,
		FinishedAt: c.now(),
		Processed:  processed,
		Skipped:    skipped,
		Total:      total,
	}
	return c.store.CompleteTask(ctx, tenant, entry, message, HistoryLimit)
}

// Fail finishes the running task with an error and appends a history entry.
// The cooldown is not restarted, so a failed attempt can be retried at once.
func (c *Coordinator) Fail(ctx context.Context, tenant string, failure error, processed, skipped, total int64) error {
	task, err := c.runningTask(ctx, tenant)
	if err != nil {
		return err
	}
	entry := models.MigrationHistoryEntry{
		TaskID:     task.ID,
		Type:       task.Type,
		Status:     models.MigrationFailed,
		StartedAt:  task.StartedAt,
		FinishedAt: c.now(),
		Processed:  processed,
		Skipped:    skipped,
		Total:      total,
		Error:      failure.Error(),
	}
	return c.store.FailTask(ctx, tenant, entry, "Migration failed: "+failure.Error(), HistoryLimit)
}

// Status returns the tenant's current migration config (task and cooldown
// anchor included).
func (c *Coordinator) Status(ctx context.Context, tenant string) (*models.MigrationConfig, error) {
	return c.store.GetMigration(ctx, tenant)
}

// History returns the ring of finished tasks, newest first.
func (c *Coordinator) History(ctx context.Context, tenant string) ([]models.MigrationHistoryEntry, error) {
	cfg, err := c.store.GetMigration(ctx, tenant)
	if err != nil {
		return nil, err
	}
	return cfg.History, nil
}

// Dismiss clears a finished task so the panel stops showing it.
func (c *Coordinator) Dismiss(ctx context.Context, tenant string) error {
	ok, err := c.store.ClearTerminalTask(ctx, tenant)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoTerminalTask
	}
	return nil
}

func (c *Coordinator) runningTask(ctx context.Context, tenant string) (*models.MigrationTask, error) {
	cfg, err := c.store.GetMigration(ctx, tenant)
	if err != nil {
		return nil, err
	}
	if cfg.Task == nil || cfg.Task.Status.Terminal() {
		return nil, ErrNoRunningTask
	}
	return cfg.Task, nil
}
