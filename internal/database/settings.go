package database

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wardenpanel/warden-backend/internal/models"
)

const (
	settingsCollection = "settings"
	migrationDocID     = "migration"
)

var terminalStatuses = bson.A{models.MigrationCompleted, models.MigrationFailed}

// MigrationSettings persists the per-tenant migration config document in the
// tenant's settings collection. The start precondition and the monotonic
// progress counters are expressed as conditional Mongo updates, so the
// migration invariants hold across processes, not just within one runtime.
type MigrationSettings struct{}

func NewMigrationSettings() *MigrationSettings { return &MigrationSettings{} }

func (s *MigrationSettings) col(tenant string) *mongo.Collection {
	return Tenant(tenant).Collection(settingsCollection)
}

// GetMigration returns the tenant's migration config document, creating an
// empty one on first use.
func (s *MigrationSettings) GetMigration(ctx context.Context, tenant string) (*models.MigrationConfig, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)
	res := s.col(tenant).FindOneAndUpdate(ctx,
		bson.M{"_id": migrationDocID},
		bson.M{"$setOnInsert": bson.M{"_id": migrationDocID}},
		opts,
	)
	var cfg models.MigrationConfig
	if err := res.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// TryStartTask installs task in one conditional update: it matches only when
// no non-terminal task exists AND the last completion predates the cooldown
// cutoff. Two racing starts cannot both match.
func (s *MigrationSettings) TryStartTask(ctx context.Context, tenant string, task *models.MigrationTask, cooldownCutoff time.Time) (bool, error) {
	filter := bson.M{
		"_id": migrationDocID,
		"$and": bson.A{
			bson.M{"$or": bson.A{
				bson.M{"task": nil},
				bson.M{"task.status": bson.M{"$in": terminalStatuses}},
			}},
			bson.M{"$or": bson.A{
				bson.M{"last_completed_at": nil},
				bson.M{"last_completed_at": bson.M{"$lte": cooldownCutoff}},
			}},
		},
	}
	res, err := s.col(tenant).UpdateOne(ctx, filter, bson.M{"$set": bson.M{"task": task}})
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

// UpdateProgress advances the running task. Counters use $max so a racing
// post carrying lower counts cannot revert a higher one; a terminal task is
// never advanced.
func (s *MigrationSettings) UpdateProgress(ctx context.Context, tenant string, status models.MigrationStatus, message string, processed, skipped, total int64) error {
	filter := bson.M{
		"_id":         migrationDocID,
		"task.status": bson.M{"$nin": terminalStatuses},
	}
	update := bson.M{
		"$set": bson.M{
			"task.status":           status,
			"task.progress.message": message,
		},
		"$max": bson.M{
			"task.progress.processed": processed,
			"task.progress.skipped":   skipped,
			"task.progress.total":     total,
		},
	}
	_, err := s.col(tenant).UpdateOne(ctx, filter, update)
	return err
}

// CompleteTask finishes the running task, stamps the completion time that
// anchors the cooldown and pushes entry onto the history ring (newest first,
// capped at keepHistory).
func (s *MigrationSettings) CompleteTask(ctx context.Context, tenant string, entry models.MigrationHistoryEntry, message string, keepHistory int) error {
	filter := bson.M{
		"_id":         migrationDocID,
		"task.status": bson.M{"$nin": terminalStatuses},
	}
	update := bson.M{
		"$set": bson.M{
			"task.status":           models.MigrationCompleted,
			"task.progress.message": message,
			"task.completed_at":     entry.FinishedAt,
			"last_completed_at":     entry.FinishedAt,
		},
		"$max": bson.M{
			"task.progress.processed": entry.Processed,
			"task.progress.skipped":   entry.Skipped,
			"task.progress.total":     entry.Total,
		},
		"$push": bson.M{
			"history": bson.M{
				"$each":     bson.A{entry},
				"$position": 0,
				"$slice":    keepHistory,
			},
		},
	}
	_, err := s.col(tenant).UpdateOne(ctx, filter, update)
	return err
}

// FailTask finishes the running task with an error. The cooldown anchor is
// untouched: a failed migration may be retried immediately.
func (s *MigrationSettings) FailTask(ctx context.Context, tenant string, entry models.MigrationHistoryEntry, message string, keepHistory int) error {
	filter := bson.M{
		"_id":         migrationDocID,
		"task.status": bson.M{"$nin": terminalStatuses},
	}
	update := bson.M{
		"$set": bson.M{
			"task.status":           models.MigrationFailed,
			"task.error":            entry.Error,
			"task.progress.message": message,
			"task.completed_at":     entry.FinishedAt,
		},
		"$max": bson.M{
			"task.progress.processed": entry.Processed,
			"task.progress.skipped":   entry.Skipped,
			"task.progress.total":     entry.Total,
		},
		"$push": bson.M{
			"history": bson.M{
				"$each":     bson.A{entry},
				"$position": 0,
				"$slice":    keepHistory,
			},
		},
	}
	_, err := s.col(tenant).UpdateOne(ctx, filter, update)
	return err
}

// ClearTerminalTask dismisses a finished task. Returns false when the current
// task is absent or still running.
func (s *MigrationSettings) ClearTerminalTask(ctx context.Context, tenant string) (bool, error) {
	filter := bson.M{
		"_id":         migrationDocID,
		"task.status": bson.M{"$in": terminalStatuses},
	}
	res, err := s.col(tenant).UpdateOne(ctx, filter, bson.M{"$set": bson.M{"task": nil}})
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}
