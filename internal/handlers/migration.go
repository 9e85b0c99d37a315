package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/wardenpanel/warden-backend/internal/config"
	"github.com/wardenpanel/warden-backend/internal/database"
	"github.com/wardenpanel/warden-backend/internal/importer"
	"github.com/wardenpanel/warden-backend/internal/migration"
	"github.com/wardenpanel/warden-backend/internal/models"
)

var (
	coordinator *migration.Coordinator
	appConfig   *config.Config
)

// InitMigration wires the migration coordinator against the settings store.
// Must be called once after the database is connected.
func InitMigration(cfg *config.Config) {
	appConfig = cfg
	coordinator = migration.New(database.NewMigrationSettings())
}

// MigrationResponse is the shared envelope of the migration endpoints.
type MigrationResponse struct {
	Success         bool                           `json:"success"`
	Message         string                         `json:"message,omitempty"`
	Task            *models.MigrationTask          `json:"task,omitempty"`
	LastCompletedAt *time.Time                     `json:"last_completed_at,omitempty"`
	History         []models.MigrationHistoryEntry `json:"history,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// tenantFrom extracts and validates the tenant id. The panel proxy sets the
// header; authentication lives in front of this service.
func tenantFrom(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenant := r.Header.Get("X-Tenant-ID")
	if !database.ValidTenantID(tenant) {
		writeJSON(w, http.StatusBadRequest, MigrationResponse{
			Success: false,
			Message: "Missing or invalid X-Tenant-ID header",
		})
		return "", false
	}
	return tenant, true
}

// StartImport handles POST /api/migration/import. The uploaded export file is
// staged to a temp file and the caller is acknowledged with 202 immediately;
// processing runs in the background and progress is polled via the status
// endpoint.
func StartImport(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFrom(w, r)
	if !ok {
		return
	}

	// Byte ceiling on the whole upload, multipart framing included.
	r.Body = http.MaxBytesReader(w, r.Body, appConfig.ImportMaxBytes+(1<<20))

	task, err := coordinator.Start(r.Context(), tenant, "bulk_import")
	if err != nil {
		switch {
		case errors.Is(err, migration.ErrAlreadyRunning):
			writeJSON(w, http.StatusConflict, MigrationResponse{
				Success: false,
				Message: "A migration is already running",
			})
		case errors.Is(err, migration.ErrOnCooldown):
			writeJSON(w, http.StatusTooManyRequests, MigrationResponse{
				Success: false,
				Message: "A migration completed recently; please wait for the cooldown to elapse",
			})
		default:
			log.Printf("Migration start failed for tenant %s: %v", tenant, err)
			writeJSON(w, http.StatusInternalServerError, MigrationResponse{
				Success: false,
				Message: "Failed to start migration",
			})
		}
		return
	}

	path, err := saveImportFile(r)
	if err != nil {
		// The task was already installed; fail it so the tenant can retry.
		if ferr := coordinator.Fail(context.Background(), tenant, err, 0, 0, 0); ferr != nil {
			log.Printf("Could not fail migration task for tenant %s: %v", tenant, ferr)
		}
		writeJSON(w, http.StatusBadRequest, MigrationResponse{
			Success: false,
			Message: "Upload failed: " + err.Error(),
		})
		return
	}

	go runImport(tenant, path)

	writeJSON(w, http.StatusAccepted, MigrationResponse{
		Success: true,
		Message: "Migration started; poll /api/migration/status for progress",
		Task:    task,
	})
}

// saveImportFile streams the "file" multipart part to a temp file without
// buffering the upload in memory.
func saveImportFile(r *http.Request) (string, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return "", fmt.Errorf("expected a multipart upload: %w", err)
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return "", errors.New("no file field in upload")
		}
		if err != nil {
			return "", err
		}
		if part.FormName() != "file" {
			continue
		}

		tmp, err := os.CreateTemp(appConfig.ImportTmpDir, "warden-import-*.json")
		if err != nil {
			return "", err
		}
		if _, err := io.Copy(tmp, part); err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			return "", fmt.Errorf("saving upload: %w", err)
		}
		if err := tmp.Close(); err != nil {
			os.Remove(tmp.Name())
			return "", err
		}
		return tmp.Name(), nil
	}
}

// runImport executes the pipeline for one staged file. It owns the terminal
// state transition: every outcome ends in Complete or Fail, never silence.
func runImport(tenant, path string) {
	ctx := context.Background()
	repo := database.PlayersFor(tenant)
	if err := repo.EnsurePlayerIndexes(ctx); err != nil {
		log.Printf("Warning: could not ensure player indexes for tenant %s: %v", tenant, err)
	}

	im := &importer.Importer{
		Store:     repo,
		Sink:      coordinator.Sink(tenant),
		Limits:    importer.DefaultParseLimits(),
		ChunkSize: appConfig.ImportChunkSize,
	}

	res, err := im.Run(ctx, path)
	if err != nil {
		log.Printf("Migration failed for tenant %s: %v", tenant, err)
		if ferr := coordinator.Fail(ctx, tenant, err, res.Processed, res.Skipped, res.Total); ferr != nil {
			log.Printf("Could not record migration failure for tenant %s: %v", tenant, ferr)
		}
		return
	}

	msg := fmt.Sprintf("Imported %d of %d players (%d skipped)", res.Processed, res.Total, res.Skipped)
	if err := coordinator.Complete(ctx, tenant, msg, res.Processed, res.Skipped, res.Total); err != nil {
		log.Printf("Could not record migration completion for tenant %s: %v", tenant, err)
		return
	}
	log.Printf("Migration completed for tenant %s: %s", tenant, msg)
}

// MigrationStatus handles GET /api/migration/status.
func MigrationStatus(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFrom(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	cfg, err := coordinator.Status(ctx, tenant)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, MigrationResponse{
			Success: false,
			Message: "Failed to load migration status",
		})
		return
	}
	writeJSON(w, http.StatusOK, MigrationResponse{
		Success:         true,
		Task:            cfg.Task,
		LastCompletedAt: cfg.LastCompletedAt,
	})
}

// MigrationHistory handles GET /api/migration/history.
func MigrationHistory(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFrom(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	history, err := coordinator.History(ctx, tenant)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, MigrationResponse{
			Success: false,
			Message: "Failed to load migration history",
		})
		return
	}
	writeJSON(w, http.StatusOK, MigrationResponse{
		Success: true,
		History: history,
	})
}

// DismissMigration handles DELETE /api/migration/task. Only a finished task
// can be dismissed.
func DismissMigration(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFrom(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	err := coordinator.Dismiss(ctx, tenant)
	if errors.Is(err, migration.ErrNoTerminalTask) {
		writeJSON(w, http.StatusNotFound, MigrationResponse{
			Success: false,
			Message: "No finished migration task to dismiss",
		})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, MigrationResponse{
			Success: false,
			Message: "Failed to dismiss migration task",
		})
		return
	}
	writeJSON(w, http.StatusOK, MigrationResponse{
		Success: true,
		Message: "Migration task dismissed",
	})
}
