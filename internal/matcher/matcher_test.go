package matcher

import (
	"context"
	"testing"

	"github.com/soundtrace/soundtrace/internal/fingerprint"
	"github.com/soundtrace/soundtrace/internal/index"
	"github.com/soundtrace/soundtrace/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupTestDB creates an in-memory SQLite database, migrated with the
// fingerprint index's own tables.
func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.Track{}, &models.Posting{})
	require.NoError(t, err)

	return db
}

func seedTrack(t *testing.T, store index.Store, sourceID string, postings []models.Posting) uint32 {
	trackID, created, err := store.UpsertTrack(context.Background(), index.TrackMetadata{
		Title:      "Track " + sourceID,
		Artist:     "Artist",
		SourceType: models.SourceTypeFile,
		SourceID:   sourceID,
	})
	require.NoError(t, err)
	require.True(t, created)
	require.NoError(t, store.InsertPostings(context.Background(), trackID, postings))
	return trackID
}

func TestMatchReturnsEmptyOnEmptyQuery(t *testing.T) {
	store := index.NewStore(setupTestDB(t))
	m := New(store, DefaultConfig())

	results := m.Match(context.Background(), nil)
	assert.Empty(t, results)
}

func TestMatchReturnsEmptyWhenNoPostingsFound(t *testing.T) {
	store := index.NewStore(setupTestDB(t))
	m := New(store, DefaultConfig())

	query := []fingerprint.Fingerprint{{Hash: 42, Offset: 0}}
	results := m.Match(context.Background(), query)
	assert.Empty(t, results)
}

func TestMatchRanksAlignedTrackFirst(t *testing.T) {
	db := setupTestDB(t)
	store := index.NewStore(db)

	// track A aligns at delta=10 for three shared hashes
	trackA := seedTrack(t, store, "a", []models.Posting{
		{Hash: 1, Offset: 10},
		{Hash: 2, Offset: 11},
		{Hash: 3, Offset: 12},
	})
	// track B only shares one hash, no consistent alignment
	seedTrack(t, store, "b", []models.Posting{
		{Hash: 1, Offset: 50},
	})

	query := []fingerprint.Fingerprint{
		{Hash: 1, Offset: 0},
		{Hash: 2, Offset: 1},
		{Hash: 3, Offset: 2},
	}

	m := New(store, Config{MinAbsoluteMatches: 2, TopN: 5, HopSize: 1024, SampleRate: 11025})
	results := m.Match(context.Background(), query)

	require.Len(t, results, 1)
	assert.Equal(t, trackA, results[0].TrackID)
	assert.Equal(t, 3, results[0].Score)
	assert.InDelta(t, float64(10)*1024/11025, results[0].OffsetSeconds, 1e-9)
}

func TestMatchDiscardsBelowMinAbsoluteMatches(t *testing.T) {
	db := setupTestDB(t)
	store := index.NewStore(db)
	seedTrack(t, store, "a", []models.Posting{{Hash: 1, Offset: 10}})

	query := []fingerprint.Fingerprint{{Hash: 1, Offset: 0}}
	m := New(store, Config{MinAbsoluteMatches: 2, TopN: 5, HopSize: 1024, SampleRate: 11025})

	results := m.Match(context.Background(), query)
	assert.Empty(t, results)
}

func TestMatchClampsNegativeOffsetToZero(t *testing.T) {
	db := setupTestDB(t)
	store := index.NewStore(db)
	seedTrack(t, store, "a", []models.Posting{
		{Hash: 1, Offset: 0},
		{Hash: 2, Offset: 1},
	})

	// query anchor offsets are ahead of the reference offsets, so
	// ref - query is negative.
	query := []fingerprint.Fingerprint{
		{Hash: 1, Offset: 100},
		{Hash: 2, Offset: 101},
	}
	m := New(store, Config{MinAbsoluteMatches: 2, TopN: 5, HopSize: 1024, SampleRate: 11025})

	results := m.Match(context.Background(), query)
	require.Len(t, results, 1)
	assert.Equal(t, 0.0, results[0].OffsetSeconds)
}

func TestMatchBreaksTiesByAscendingTrackID(t *testing.T) {
	db := setupTestDB(t)
	store := index.NewStore(db)
	trackA := seedTrack(t, store, "a", []models.Posting{
		{Hash: 1, Offset: 10}, {Hash: 2, Offset: 11},
	})
	trackB := seedTrack(t, store, "b", []models.Posting{
		{Hash: 1, Offset: 20}, {Hash: 2, Offset: 21},
	})
	require.Less(t, trackA, trackB)

	query := []fingerprint.Fingerprint{
		{Hash: 1, Offset: 0},
		{Hash: 2, Offset: 1},
	}
	m := New(store, Config{MinAbsoluteMatches: 2, TopN: 5, HopSize: 1024, SampleRate: 11025})

	results := m.Match(context.Background(), query)
	require.Len(t, results, 2)
	assert.Equal(t, trackA, results[0].TrackID)
	assert.Equal(t, trackB, results[1].TrackID)
}

func TestMatchRespectsTopN(t *testing.T) {
	db := setupTestDB(t)
	store := index.NewStore(db)
	for _, id := range []string{"a", "b", "c"} {
		seedTrack(t, store, id, []models.Posting{
			{Hash: 1, Offset: 10}, {Hash: 2, Offset: 11},
		})
	}

	query := []fingerprint.Fingerprint{
		{Hash: 1, Offset: 0},
		{Hash: 2, Offset: 1},
	}
	m := New(store, Config{MinAbsoluteMatches: 2, TopN: 2, HopSize: 1024, SampleRate: 11025})

	results := m.Match(context.Background(), query)
	assert.Len(t, results, 2)
}
