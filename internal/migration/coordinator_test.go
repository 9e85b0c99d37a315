package migration

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenpanel/warden-backend/internal/models"
)

// memSettings mirrors the conditional-update and monotonic-counter semantics
// of the Mongo-backed settings store.
type memSettings struct {
	configs map[string]*models.MigrationConfig
}

func newMemSettings() *memSettings {
	return &memSettings{configs: make(map[string]*models.MigrationConfig)}
}

func (m *memSettings) GetMigration(ctx context.Context, tenant string) (*models.MigrationConfig, error) {
	cfg, ok := m.configs[tenant]
	if !ok {
		cfg = &models.MigrationConfig{ID: "migration"}
		m.configs[tenant] = cfg
	}
	cp := *cfg
	return &cp, nil
}

func (m *memSettings) TryStartTask(ctx context.Context, tenant string, task *models.MigrationTask, cutoff time.Time) (bool, error) {
	cfg := m.configs[tenant]
	if cfg == nil {
		return false, nil
	}
	if cfg.Task != nil && !cfg.Task.Status.Terminal() {
		return false, nil
	}
	if cfg.LastCompletedAt != nil && cfg.LastCompletedAt.After(cutoff) {
		return false, nil
	}
	cp := *task
	cfg.Task = &cp
	return true, nil
}

func (m *memSettings) UpdateProgress(ctx context.Context, tenant string, status models.MigrationStatus, message string, processed, skipped, total int64) error {
	cfg := m.configs[tenant]
	if cfg == nil || cfg.Task == nil || cfg.Task.Status.Terminal() {
		return nil
	}
	cfg.Task.Status = status
	cfg.Task.Progress.Message = message
	if processed > cfg.Task.Progress.Processed {
		cfg.Task.Progress.Processed = processed
	}
	if skipped > cfg.Task.Progress.Skipped {
		cfg.Task.Progress.Skipped = skipped
	}
	if total > cfg.Task.Progress.Total {
		cfg.Task.Progress.Total = total
	}
	return nil
}

func (m *memSettings) finishTask(tenant string, entry models.MigrationHistoryEntry, message string, keep int, status models.MigrationStatus) error {
	cfg := m.configs[tenant]
	if cfg == nil || cfg.Task == nil || cfg.Task.Status.Terminal() {
		return fmt.Errorf("no running task for %s", tenant)
	}
	cfg.Task.Status = status
	cfg.Task.Progress.Message = message
	if entry.Processed > cfg.Task.Progress.Processed {
		cfg.Task.Progress.Processed = entry.Processed
	}
	if entry.Skipped > cfg.Task.Progress.Skipped {
		cfg.Task.Progress.Skipped = entry.Skipped
	}
	if entry.Total > cfg.Task.Progress.Total {
		cfg.Task.Progress.Total = entry.Total
	}
	finished := entry.FinishedAt
	cfg.Task.CompletedAt = &finished
	cfg.History = append([]models.MigrationHistoryEntry{entry}, cfg.History...)
	if len(cfg.History) > keep {
		cfg.History = cfg.History[:keep]
	}
	return nil
}

func (m *memSettings) CompleteTask(ctx context.Context, tenant string, entry models.MigrationHistoryEntry, message string, keep int) error {
	if err := m.finishTask(tenant, entry, message, keep, models.MigrationCompleted); err != nil {
		return err
	}
	finished := entry.FinishedAt
	m.configs[tenant].LastCompletedAt = &finished
	return nil
}

func (m *memSettings) FailTask(ctx context.Context, tenant string, entry models.MigrationHistoryEntry, message string, keep int) error {
	if err := m.finishTask(tenant, entry, message, keep, models.MigrationFailed); err != nil {
		return err
	}
	m.configs[tenant].Task.Error = entry.Error
	return nil
}

func (m *memSettings) ClearTerminalTask(ctx context.Context, tenant string) (bool, error) {
	cfg := m.configs[tenant]
	if cfg == nil || cfg.Task == nil || !cfg.Task.Status.Terminal() {
		return false, nil
	}
	cfg.Task = nil
	return true, nil
}

func newTestCoordinator(store SettingsStore, at time.Time) (*Coordinator, *time.Time) {
	clock := at
	c := New(store)
	c.now = func() time.Time { return clock }
	return c, &clock
}

func TestCoordinator_StartWhileRunning(t *testing.T) {
	store := newMemSettings()
	c, _ := newTestCoordinator(store, time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	task, err := c.Start(ctx, "acme", "bulk_import")
	require.NoError(t, err)
	require.NotEmpty(t, task.ID)
	assert.Equal(t, models.MigrationBuildingJSON, task.Status)

	_, err = c.Start(ctx, "acme", "bulk_import")
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	// A different tenant is unaffected.
	_, err = c.Start(ctx, "globex", "bulk_import")
	assert.NoError(t, err)
}

func TestCoordinator_Cooldown(t *testing.T) {
	store := newMemSettings()
	start := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	c, clock := newTestCoordinator(store, start)
	ctx := context.Background()

	_, err := c.Start(ctx, "acme", "bulk_import")
	require.NoError(t, err)
	require.NoError(t, c.Complete(ctx, "acme", "Migration completed", 10, 0, 10))

	_, err = c.Start(ctx, "acme", "bulk_import")
	assert.ErrorIs(t, err, ErrOnCooldown)

	*clock = start.Add(23 * time.Hour)
	_, err = c.Start(ctx, "acme", "bulk_import")
	assert.ErrorIs(t, err, ErrOnCooldown)

	*clock = start.Add(Cooldown + time.Minute)
	_, err = c.Start(ctx, "acme", "bulk_import")
	assert.NoError(t, err)
}

func TestCoordinator_FailedRunDoesNotStartCooldown(t *testing.T) {
	store := newMemSettings()
	c, _ := newTestCoordinator(store, time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := c.Start(ctx, "acme", "bulk_import")
	require.NoError(t, err)
	require.NoError(t, c.Fail(ctx, "acme", errors.New("bulk write: connection reset"), 3, 1, 10))

	cfg, err := c.Status(ctx, "acme")
	require.NoError(t, err)
	require.NotNil(t, cfg.Task)
	assert.Equal(t, models.MigrationFailed, cfg.Task.Status)
	assert.Equal(t, "bulk write: connection reset", cfg.Task.Error)
	assert.Nil(t, cfg.LastCompletedAt)

	// Retry is allowed immediately.
	_, err = c.Start(ctx, "acme", "bulk_import")
	assert.NoError(t, err)
}

func TestCoordinator_SinkUpdatesProgress(t *testing.T) {
	store := newMemSettings()
	c, _ := newTestCoordinator(store, time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := c.Start(ctx, "acme", "bulk_import")
	require.NoError(t, err)

	sink := c.Sink("acme")
	require.NoError(t, sink.Post(ctx, models.MigrationProcessingData, "Imported 500 of 1000 players", 500, 2, 1000))
	// A racing lower count cannot move the counters backwards.
	require.NoError(t, sink.Post(ctx, models.MigrationProcessingData, "Imported 400 of 1000 players", 400, 1, 1000))

	cfg, err := c.Status(ctx, "acme")
	require.NoError(t, err)
	require.NotNil(t, cfg.Task)
	assert.Equal(t, models.MigrationProcessingData, cfg.Task.Status)
	assert.Equal(t, int64(500), cfg.Task.Progress.Processed)
	assert.Equal(t, int64(2), cfg.Task.Progress.Skipped)
}

func TestCoordinator_HistoryRing(t *testing.T) {
	store := newMemSettings()
	start := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	c, clock := newTestCoordinator(store, start)
	c.cooldown = 0
	ctx := context.Background()

	for i := 0; i < HistoryLimit+3; i++ {
		*clock = start.Add(time.Duration(i) * time.Hour)
		task, err := c.Start(ctx, "acme", "bulk_import")
		require.NoError(t, err)
		if i%2 == 0 {
			require.NoError(t, c.Complete(ctx, "acme", "done", int64(i), 0, int64(i)))
		} else {
			require.NoError(t, c.Fail(ctx, "acme", errors.New("boom"), 0, 0, int64(i)))
		}
		_ = task
	}

	history, err := c.History(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, history, HistoryLimit)

	// Newest first.
	for i := 1; i < len(history); i++ {
		assert.False(t, history[i].FinishedAt.After(history[i-1].FinishedAt))
	}
	assert.Equal(t, int64(HistoryLimit+2), history[0].Total)
}

func TestCoordinator_CompleteWithoutRunningTask(t *testing.T) {
	store := newMemSettings()
	c, _ := newTestCoordinator(store, time.Now())
	ctx := context.Background()

	err := c.Complete(ctx, "acme", "done", 0, 0, 0)
	assert.ErrorIs(t, err, ErrNoRunningTask)
	err = c.Fail(ctx, "acme", errors.New("boom"), 0, 0, 0)
	assert.ErrorIs(t, err, ErrNoRunningTask)
}

func TestCoordinator_Dismiss(t *testing.T) {
	store := newMemSettings()
	c, _ := newTestCoordinator(store, time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	// Nothing to dismiss yet.
	assert.ErrorIs(t, c.Dismiss(ctx, "acme"), ErrNoTerminalTask)

	_, err := c.Start(ctx, "acme", "bulk_import")
	require.NoError(t, err)

	// A running task cannot be dismissed.
	assert.ErrorIs(t, c.Dismiss(ctx, "acme"), ErrNoTerminalTask)

	require.NoError(t, c.Complete(ctx, "acme", "done", 1, 0, 1))
	require.NoError(t, c.Dismiss(ctx, "acme"))

	cfg, err := c.Status(ctx, "acme")
	require.NoError(t, err)
	assert.Nil(t, cfg.Task)

	// History survives the dismissal.
	history, err := c.History(ctx, "acme")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}
