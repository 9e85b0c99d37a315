// Package importer implements the bulk import pipeline: bounds-checked
// parsing of a moderation export file, per-record validation and
// sanitization, merging into stored player documents and chunked bulk
// writes, with progress reported through a sink.
package importer

import (
	"context"
	"log"
	"os"

	"github.com/wardenpanel/warden-backend/internal/models"
)

// Importer runs the whole pipeline for one tenant against one import file.
type Importer struct {
	Store     PlayerStore
	Sink      ProgressSink
	Limits    ParseLimits
	ChunkSize int
}

// Result carries the final counters of a run.
type Result struct {
	Processed int64
	Skipped   int64
	Total     int64
}

// Run parses, validates, merges and writes the import file at path. The temp
// file is removed on every exit path. A returned error means the migration
// failed; per-record validation failures only increment Skipped.
func (im *Importer) Run(ctx context.Context, path string) (Result, error) {
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("Warning: could not remove import temp file %s: %v", path, err)
		}
	}()

	var res Result

	if err := im.Sink.Post(ctx, models.MigrationUploadingJSON, "Parsing import file", 0, 0, 0); err != nil {
		return res, &TransportError{Op: "progress update", Err: err}
	}

	doc, err := ParseFile(path, im.Limits)
	if err != nil {
		return res, err
	}
	rawPlayers, ok := doc["players"].([]interface{})
	if !ok {
		return res, inputErrorf("missing top-level players array")
	}
	res.Total = int64(len(rawPlayers))

	valid := make([]*models.Player, 0, len(rawPlayers))
	for i, raw := range rawPlayers {
		p, err := ValidatePlayer(raw, i)
		if err != nil {
			res.Skipped++
			log.Printf("Import: skipping record: %v", err)
			continue
		}
		valid = append(valid, p)
	}

	msg := "Importing players"
	if err := im.Sink.Post(ctx, models.MigrationProcessingData, msg, 0, res.Skipped, res.Total); err != nil {
		return res, &TransportError{Op: "progress update", Err: err}
	}

	exec := &BatchExecutor{Store: im.Store, Sink: im.Sink, ChunkSize: im.ChunkSize}
	res.Processed, res.Skipped, err = exec.Run(ctx, valid, res.Skipped, res.Total)
	return res, err
}
