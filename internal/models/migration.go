package models

import "time"

type MigrationStatus string

const (
	MigrationIdle           MigrationStatus = "idle"
	MigrationBuildingJSON   MigrationStatus = "building_json"
	MigrationUploadingJSON  MigrationStatus = "uploading_json"
	MigrationProcessingData MigrationStatus = "processing_data"
	MigrationCompleted      MigrationStatus = "completed"
	MigrationFailed         MigrationStatus = "failed"
)

// Terminal reports whether s is a final status. A task in a terminal status
// no longer blocks starting the next migration.
func (s MigrationStatus) Terminal() bool {
	return s == MigrationCompleted || s == MigrationFailed
}

// MigrationProgress is the progress snapshot posted by the import pipeline.
type MigrationProgress struct {
	Message   string `bson:"message,omitempty" json:"message,omitempty"`
	Processed int64  `bson:"processed" json:"processed"`
	Skipped   int64  `bson:"skipped" json:"skipped"`
	Total     int64  `bson:"total" json:"total"`
}

// MigrationTask is one run of the import pipeline. At most one non-terminal
// task exists per tenant; a completed or failed task stays visible until the
// tenant dismisses it.
type MigrationTask struct {
	ID          string            `bson:"id" json:"id"`
	Type        string            `bson:"type" json:"type"`
	Status      MigrationStatus   `bson:"status" json:"status"`
	StartedAt   time.Time         `bson:"started_at" json:"started_at"`
	Progress    MigrationProgress `bson:"progress" json:"progress"`
	Error       string            `bson:"error,omitempty" json:"error,omitempty"`
	CompletedAt *time.Time        `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
}

// MigrationHistoryEntry is an immutable record of one finished task.
type MigrationHistoryEntry struct {
	TaskID     string          `bson:"task_id" json:"task_id"`
	Type       string          `bson:"type" json:"type"`
	Status     MigrationStatus `bson:"status" json:"status"`
	StartedAt  time.Time       `bson:"started_at" json:"started_at"`
	FinishedAt time.Time       `bson:"finished_at" json:"finished_at"`
	Processed  int64           `bson:"processed" json:"processed"`
	Skipped    int64           `bson:"skipped" json:"skipped"`
	Total      int64           `bson:"total" json:"total"`
	Error      string          `bson:"error,omitempty" json:"error,omitempty"`
}

// MigrationConfig is the per-tenant settings document holding the current
// task, the completion timestamp that anchors the cooldown, and a capped
// history of finished tasks (newest first).
type MigrationConfig struct {
	ID              string                  `bson:"_id" json:"-"`
	Task            *MigrationTask          `bson:"task,omitempty" json:"task,omitempty"`
	LastCompletedAt *time.Time              `bson:"last_completed_at,omitempty" json:"last_completed_at,omitempty"`
	History         []MigrationHistoryEntry `bson:"history,omitempty" json:"history,omitempty"`
}
