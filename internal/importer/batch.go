package importer

import (
	"context"
	"fmt"

	"github.com/wardenpanel/warden-backend/internal/models"
)

// DefaultChunkSize is the bulk-write chunk size. It is the only
// throughput/memory tuning knob of an import: chunks run sequentially, so
// peak memory is bounded by one chunk of documents.
const DefaultChunkSize = 500

// BulkOutcome reports one chunk's bulk write: how many operations landed and
// how many failed individually inside an otherwise-successful write.
type BulkOutcome struct {
	Written int64
	Failed  int64
}

// PlayerStore is the tenant document store as the import pipeline sees it.
type PlayerStore interface {
	// FindByIDs returns the stored players among ids, keyed by stable id.
	FindByIDs(ctx context.Context, ids []string) (map[string]*models.Player, error)
	// BulkUpsert issues one unordered bulk write mixing inserts (new
	// players) and replacements (merged players). Individual operation
	// failures are reported in the outcome; the error return is reserved
	// for transport-level failures that doom the whole write.
	BulkUpsert(ctx context.Context, inserts, updates []*models.Player) (BulkOutcome, error)
}

// ProgressSink receives progress updates as the import advances. Updates are
// additive: counts never move backwards.
type ProgressSink interface {
	Post(ctx context.Context, status models.MigrationStatus, message string, processed, skipped, total int64) error
}

// BatchExecutor writes a validated record set to the store in fixed-size
// chunks. A failed operation inside a chunk only bumps the skip counter; a
// failed chunk (store unreachable) aborts the migration.
type BatchExecutor struct {
	Store     PlayerStore
	Sink      ProgressSink
	ChunkSize int
}

// Run merges and writes players sequentially, chunk by chunk. skipped is the
// running skip count carried over from validation; total is the record count
// of the whole file. It returns the final processed/skipped counts and the
// fatal error, if any.
func (e *BatchExecutor) Run(ctx context.Context, players []*models.Player, skipped, total int64) (int64, int64, error) {
	chunkSize := e.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	var processed int64
	for start := 0; start < len(players); start += chunkSize {
		if err := ctx.Err(); err != nil {
			return processed, skipped, err
		}

		end := start + chunkSize
		if end > len(players) {
			end = len(players)
		}

		written, failed, err := e.writeChunk(ctx, players[start:end])
		if err != nil {
			return processed, skipped, err
		}
		processed += written
		skipped += failed

		msg := fmt.Sprintf("Imported %d of %d players", processed, total)
		if err := e.Sink.Post(ctx, models.MigrationProcessingData, msg, processed, skipped, total); err != nil {
			return processed, skipped, &TransportError{Op: "progress update", Err: err}
		}
	}
	return processed, skipped, nil
}

func (e *BatchExecutor) writeChunk(ctx context.Context, chunk []*models.Player) (int64, int64, error) {
	ids := make([]string, 0, len(chunk))
	for _, p := range chunk {
		ids = append(ids, p.ID)
	}
	existing, err := e.Store.FindByIDs(ctx, ids)
	if err != nil {
		return 0, 0, &TransportError{Op: "lookup", Err: err}
	}

	// The same stable id can appear more than once in one file; later
	// occurrences merge into the pending document, not a second copy.
	pending := make(map[string]*models.Player, len(chunk))
	var inserts, updates []*models.Player
	for _, p := range chunk {
		if prev, ok := pending[p.ID]; ok {
			merged := MergePlayer(prev, p)
			*prev = *merged
			continue
		}
		merged := MergePlayer(existing[p.ID], p)
		pending[p.ID] = merged
		if existing[p.ID] == nil {
			inserts = append(inserts, merged)
		} else {
			updates = append(updates, merged)
		}
	}

	outcome, err := e.Store.BulkUpsert(ctx, inserts, updates)
	if err != nil {
		return 0, 0, &TransportError{Op: "bulk write", Err: err}
	}
	return outcome.Written, outcome.Failed, nil
}
