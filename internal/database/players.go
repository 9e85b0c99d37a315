package database

import (
	"context"
	"errors"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wardenpanel/warden-backend/internal/importer"
	"github.com/wardenpanel/warden-backend/internal/models"
)

const playersCollection = "players"

// PlayerRepo is the tenant player store. It satisfies the import pipeline's
// PlayerStore and backs the lookup endpoints.
type PlayerRepo struct {
	col *mongo.Collection
}

// PlayersFor returns the player repo for one tenant.
func PlayersFor(tenant string) *PlayerRepo {
	return &PlayerRepo{col: Tenant(tenant).Collection(playersCollection)}
}

// EnsurePlayerIndexes creates the indexes player lookups and imports rely on:
// a unique index on the stable id plus lookup indexes on username and
// punishment id.
func (r *PlayerRepo) EnsurePlayerIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "usernames.name", Value: 1}}},
		{Keys: bson.D{{Key: "punishments.id", Value: 1}}},
	})
	return err
}

// FindByIDs returns the stored players among ids, keyed by stable id.
func (r *PlayerRepo) FindByIDs(ctx context.Context, ids []string) (map[string]*models.Player, error) {
	if len(ids) == 0 {
		return map[string]*models.Player{}, nil
	}
	cur, err := r.col.Find(ctx, bson.M{"id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make(map[string]*models.Player, len(ids))
	for cur.Next(ctx) {
		var p models.Player
		if err := cur.Decode(&p); err != nil {
			return nil, err
		}
		out[p.ID] = &p
	}
	return out, cur.Err()
}

// BulkUpsert issues one unordered bulk write: inserts for players not yet on
// record, replacements for merged ones. Unordered means one failing
// operation does not abort the rest of the chunk; those failures come back
// in the outcome. Only a transport-level failure is returned as an error.
func (r *PlayerRepo) BulkUpsert(ctx context.Context, inserts, updates []*models.Player) (importer.BulkOutcome, error) {
	total := len(inserts) + len(updates)
	if total == 0 {
		return importer.BulkOutcome{}, nil
	}

	now := time.Now()
	ops := make([]mongo.WriteModel, 0, total)
	for _, p := range inserts {
		p.CreatedAt = now
		p.UpdatedAt = now
		ops = append(ops, mongo.NewInsertOneModel().SetDocument(p))
	}
	for _, p := range updates {
		p.UpdatedAt = now
		ops = append(ops, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"id": p.ID}).
			SetReplacement(p).
			SetUpsert(true))
	}

	res, err := r.col.BulkWrite(ctx, ops, options.BulkWrite().SetOrdered(false))
	if err != nil {
		var bwe mongo.BulkWriteException
		if errors.As(err, &bwe) {
			// Individual operations failed inside an otherwise-delivered
			// write. Count them as skipped and keep going.
			failed := int64(len(bwe.WriteErrors))
			for _, we := range bwe.WriteErrors {
				log.Printf("Bulk write: operation %d failed: %s", we.Index, we.Message)
			}
			written := int64(total) - failed
			if res != nil {
				written = res.InsertedCount + res.MatchedCount + res.UpsertedCount
			}
			return importer.BulkOutcome{Written: written, Failed: failed}, nil
		}
		return importer.BulkOutcome{}, err
	}

	// MatchedCount covers replacements that matched an existing document,
	// whether or not the replacement changed any bytes.
	written := res.InsertedCount + res.MatchedCount + res.UpsertedCount
	return importer.BulkOutcome{Written: written, Failed: int64(total) - written}, nil
}

// FindByID returns one player by stable id, or nil when absent.
func (r *PlayerRepo) FindByID(ctx context.Context, id string) (*models.Player, error) {
	var p models.Player
	err := r.col.FindOne(ctx, bson.M{"id": id}).Decode(&p)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindByName returns players whose username history contains name.
func (r *PlayerRepo) FindByName(ctx context.Context, name string, limit int64) ([]models.Player, error) {
	opts := options.Find().SetLimit(limit)
	cur, err := r.col.Find(ctx, bson.M{"usernames.name": name}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Player
	for cur.Next(ctx) {
		var p models.Player
		if err := cur.Decode(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, cur.Err()
}

// Count returns the number of player documents for the tenant.
func (r *PlayerRepo) Count(ctx context.Context) (int64, error) {
	return r.col.CountDocuments(ctx, bson.M{})
}
