package importer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenpanel/warden-backend/internal/models"
)

type fakeStore struct {
	players   map[string]*models.Player
	findErr   error
	bulkErr   error
	failIDs   map[string]bool // ids whose individual operations fail
	bulkCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{players: make(map[string]*models.Player)}
}

func (s *fakeStore) FindByIDs(ctx context.Context, ids []string) (map[string]*models.Player, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	out := make(map[string]*models.Player)
	for _, id := range ids {
		if p, ok := s.players[id]; ok {
			cp := *p
			out[id] = &cp
		}
	}
	return out, nil
}

func (s *fakeStore) BulkUpsert(ctx context.Context, inserts, updates []*models.Player) (BulkOutcome, error) {
	s.bulkCalls++
	if s.bulkErr != nil {
		return BulkOutcome{}, s.bulkErr
	}
	var out BulkOutcome
	for _, p := range append(append([]*models.Player{}, inserts...), updates...) {
		if s.failIDs[p.ID] {
			out.Failed++
			continue
		}
		cp := *p
		s.players[p.ID] = &cp
		out.Written++
	}
	return out, nil
}

type progressPost struct {
	status    models.MigrationStatus
	message   string
	processed int64
	skipped   int64
	total     int64
}

type fakeSink struct {
	posts []progressPost
	err   error
}

func (s *fakeSink) Post(ctx context.Context, status models.MigrationStatus, message string, processed, skipped, total int64) error {
	if s.err != nil {
		return s.err
	}
	s.posts = append(s.posts, progressPost{status, message, processed, skipped, total})
	return nil
}

func player(id string, names ...string) *models.Player {
	p := &models.Player{ID: id}
	for _, n := range names {
		p.Usernames = append(p.Usernames, models.UsernameEntry{Name: n})
	}
	return p
}

func TestBatchExecutor_SingleNewPlayer(t *testing.T) {
	store := newFakeStore()
	sink := &fakeSink{}
	exec := &BatchExecutor{Store: store, Sink: sink, ChunkSize: 100}

	processed, skipped, err := exec.Run(context.Background(), []*models.Player{player("u1", "Steve")}, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), processed)
	assert.Equal(t, int64(0), skipped)

	require.Contains(t, store.players, "u1")
	require.Len(t, store.players["u1"].Usernames, 1)
	assert.Equal(t, "Steve", store.players["u1"].Usernames[0].Name)
}

func TestBatchExecutor_Chunking(t *testing.T) {
	store := newFakeStore()
	sink := &fakeSink{}
	exec := &BatchExecutor{Store: store, Sink: sink, ChunkSize: 2}

	players := []*models.Player{player("u1"), player("u2"), player("u3"), player("u4"), player("u5")}
	processed, skipped, err := exec.Run(context.Background(), players, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), processed)
	assert.Equal(t, int64(0), skipped)
	assert.Equal(t, 3, store.bulkCalls)

	// One progress post per chunk, counters monotonic.
	require.Len(t, sink.posts, 3)
	var last int64
	for _, p := range sink.posts {
		assert.Equal(t, models.MigrationProcessingData, p.status)
		assert.GreaterOrEqual(t, p.processed, last)
		assert.Equal(t, int64(5), p.total)
		last = p.processed
	}
	assert.Equal(t, int64(5), sink.posts[2].processed)
}

func TestBatchExecutor_PerOperationFailure(t *testing.T) {
	store := newFakeStore()
	store.failIDs = map[string]bool{"u2": true}
	sink := &fakeSink{}
	exec := &BatchExecutor{Store: store, Sink: sink}

	processed, skipped, err := exec.Run(context.Background(),
		[]*models.Player{player("u1"), player("u2"), player("u3")}, 1, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(2), processed)
	assert.Equal(t, int64(2), skipped, "carries the validation skip and adds the failed operation")
	assert.NotContains(t, store.players, "u2")
}

func TestBatchExecutor_TransportFailureIsFatal(t *testing.T) {
	t.Run("bulk write", func(t *testing.T) {
		store := newFakeStore()
		store.bulkErr = errors.New("connection reset")
		exec := &BatchExecutor{Store: store, Sink: &fakeSink{}}

		_, _, err := exec.Run(context.Background(), []*models.Player{player("u1")}, 0, 1)
		require.Error(t, err)
		var te *TransportError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, "bulk write", te.Op)
	})

	t.Run("lookup", func(t *testing.T) {
		store := newFakeStore()
		store.findErr = errors.New("no reachable servers")
		exec := &BatchExecutor{Store: store, Sink: &fakeSink{}}

		_, _, err := exec.Run(context.Background(), []*models.Player{player("u1")}, 0, 1)
		var te *TransportError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, "lookup", te.Op)
	})
}

func TestBatchExecutor_MergesIntoExisting(t *testing.T) {
	store := newFakeStore()
	store.players["u1"] = &models.Player{
		ID:          "u1",
		Usernames:   []models.UsernameEntry{{Name: "Steve"}},
		Punishments: []models.Punishment{{ID: "p1"}},
	}
	exec := &BatchExecutor{Store: store, Sink: &fakeSink{}}

	incoming := player("u1", "Steve", "Alex")
	incoming.Punishments = []models.Punishment{{ID: "p1"}, {ID: "p2"}}

	processed, skipped, err := exec.Run(context.Background(), []*models.Player{incoming}, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), processed)
	assert.Equal(t, int64(0), skipped)

	got := store.players["u1"]
	assert.Len(t, got.Usernames, 2)
	assert.Len(t, got.Punishments, 2, "p1 is not duplicated")
}

func TestBatchExecutor_DuplicateIDWithinChunk(t *testing.T) {
	store := newFakeStore()
	exec := &BatchExecutor{Store: store, Sink: &fakeSink{}}

	a := player("u1", "Steve")
	b := player("u1", "Alex")
	processed, _, err := exec.Run(context.Background(), []*models.Player{a, b}, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), processed, "one document written for one stable id")
	require.Contains(t, store.players, "u1")
	assert.Len(t, store.players["u1"].Usernames, 2)
}

func TestBatchExecutor_ContextCancelledBetweenChunks(t *testing.T) {
	store := newFakeStore()
	exec := &BatchExecutor{Store: store, Sink: &fakeSink{}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := exec.Run(ctx, []*models.Player{player("u1")}, 0, 1)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, store.players)
}
