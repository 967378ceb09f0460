// Package index is the append-only inverted fingerprint index: a track
// table and a (hash, track_id, offset) posting table. Follows the
// interface + unexported GORM-backed implementation split used
// throughout this repository's persistence layers.
package index

import (
	"context"
	"errors"
	"strings"
	"time"

	apierrors "github.com/soundtrace/soundtrace/internal/errors"
	"github.com/soundtrace/soundtrace/internal/metrics"
	"github.com/soundtrace/soundtrace/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrTrackNotFound is returned by reads when no track matches.
var ErrTrackNotFound = errors.New("track not found")

// TrackMetadata is the caller-supplied shape for upsert_track; unknown
// adapter fields are discarded at this boundary.
type TrackMetadata struct {
	Title       string
	Artist      string
	Album       string
	SourceType  models.SourceType
	SourceID    string
	DurationMs  *int64
	CoverURL    *string
	ReleaseDate *string
	SpotifyURL  *string
	YouTubeID   *string
}

// Store is the index's interface to the fingerprinting core.
type Store interface {
	UpsertTrack(ctx context.Context, meta TrackMetadata) (trackID uint32, created bool, err error)
	InsertPostings(ctx context.Context, trackID uint32, postings []models.Posting) error
	Lookup(ctx context.Context, hashes []uint32) ([]models.Posting, error)
	GetTrack(ctx context.Context, trackID uint32) (*models.Track, error)
	GetBySource(ctx context.Context, sourceType models.SourceType, sourceID string) (*models.Track, error)
	GetBySpotifyURL(ctx context.Context, url string) (*models.Track, error)
	ListTracks(ctx context.Context) ([]models.Track, error)
	DeleteTrack(ctx context.Context, trackID uint32) (bool, error)
	TrackHashes(ctx context.Context, trackID uint32) ([]uint32, error)
	CountTracks(ctx context.Context) (int64, error)
	CountPostings(ctx context.Context) (int64, error)
}

type store struct {
	db *gorm.DB
}

// writeRetryBudget bounds how long a write transaction retries on
// transient lock contention before escalating to a StoreError.
const writeRetryBudget = 30 * time.Second

// isContention matches the lock/serialization failures SQLite and
// Postgres report for transient write conflicts.
func isContention(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "deadlock detected") ||
		strings.Contains(msg, "could not serialize access") ||
		strings.Contains(msg, "lock timeout")
}

// withWriteRetry runs fn, retrying with exponential backoff while it
// fails with transient contention, up to writeRetryBudget.
func withWriteRetry(ctx context.Context, fn func() error) error {
	deadline := time.Now().Add(writeRetryBudget)
	backoff := 50 * time.Millisecond
	for {
		err := fn()
		if !isContention(err) {
			return err
		}
		if time.Now().Add(backoff).After(deadline) {
			return err
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		if backoff < time.Second {
			backoff *= 2
		}
	}
}

// NewStore wraps a GORM connection (postgres in production, sqlite in
// tests) as a Store.
func NewStore(db *gorm.DB) Store {
	return &store{db: db}
}

// UpsertTrack inserts a new track, or returns the existing track_id when
// (SourceType, SourceID) already exists. It never updates existing
// metadata.
func (s *store) UpsertTrack(ctx context.Context, meta TrackMetadata) (uint32, bool, error) {
	existing, err := s.GetBySource(ctx, meta.SourceType, meta.SourceID)
	if err == nil {
		return existing.ID, false, nil
	}
	if !errors.Is(err, ErrTrackNotFound) {
		return 0, false, err
	}

	track := models.Track{
		Title:       meta.Title,
		Artist:      meta.Artist,
		Album:       meta.Album,
		SourceType:  meta.SourceType,
		SourceID:    meta.SourceID,
		DurationMs:  meta.DurationMs,
		CoverURL:    meta.CoverURL,
		ReleaseDate: meta.ReleaseDate,
		SpotifyURL:  meta.SpotifyURL,
		YouTubeID:   meta.YouTubeID,
	}

	err = withWriteRetry(ctx, func() error {
		return s.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "source_type"}, {Name: "source_id"}},
				DoNothing: true,
			}).
			Create(&track).Error
	})
	if err != nil {
		return 0, false, apierrors.StoreErr("upsert_track", err)
	}

	if track.ID == 0 {
		// The insert was discarded by ON CONFLICT DO NOTHING: a concurrent
		// writer won the race. Re-read to get its id.
		existing, err := s.GetBySource(ctx, meta.SourceType, meta.SourceID)
		if err != nil {
			return 0, false, apierrors.StoreErr("upsert_track", err)
		}
		return existing.ID, false, nil
	}

	return track.ID, true, nil
}

// InsertPostings bulk-appends postings for trackID within a single
// transaction, so they are either fully visible to future lookups or
// not visible at all. The insert carries ON CONFLICT DO NOTHING, but the
// postings table has no unique constraint on (hash, track_id, offset), so
// duplicate rows are stored rather than discarded.
func (s *store) InsertPostings(ctx context.Context, trackID uint32, postings []models.Posting) error {
	if len(postings) == 0 {
		return nil
	}
	for i := range postings {
		postings[i].TrackID = trackID
	}

	const batchSize = 500
	err := withWriteRetry(ctx, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for start := 0; start < len(postings); start += batchSize {
				end := start + batchSize
				if end > len(postings) {
					end = len(postings)
				}
				if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
					CreateInBatches(postings[start:end], batchSize).Error; err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return apierrors.StoreErr("insert_postings", err)
	}
	return nil
}

// Lookup returns every posting whose hash is in hashes, no ordering
// guaranteed. An empty hashes slice returns an empty result without
// querying the store.
func (s *store) Lookup(ctx context.Context, hashes []uint32) ([]models.Posting, error) {
	if len(hashes) == 0 {
		return nil, nil
	}

	var postings []models.Posting
	err := s.db.WithContext(ctx).Where("hash IN ?", hashes).Find(&postings).Error
	metrics.Get().PostingsLookedUp.WithLabelValues("lookup").Observe(float64(len(postings)))
	if err != nil {
		return nil, apierrors.StoreErr("lookup", err)
	}
	return postings, nil
}

func (s *store) GetTrack(ctx context.Context, trackID uint32) (*models.Track, error) {
	var track models.Track
	err := s.db.WithContext(ctx).First(&track, "id = ?", trackID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTrackNotFound
	}
	if err != nil {
		return nil, apierrors.StoreErr("get_track", err)
	}
	return &track, nil
}

func (s *store) GetBySource(ctx context.Context, sourceType models.SourceType, sourceID string) (*models.Track, error) {
	var track models.Track
	err := s.db.WithContext(ctx).
		Where("source_type = ? AND source_id = ?", sourceType, sourceID).
		First(&track).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTrackNotFound
	}
	if err != nil {
		return nil, apierrors.StoreErr("get_by_source", err)
	}
	return &track, nil
}

func (s *store) GetBySpotifyURL(ctx context.Context, url string) (*models.Track, error) {
	var track models.Track
	err := s.db.WithContext(ctx).Where("spotify_url = ?", url).First(&track).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTrackNotFound
	}
	if err != nil {
		return nil, apierrors.StoreErr("get_by_spotify_url", err)
	}
	return &track, nil
}

func (s *store) ListTracks(ctx context.Context) ([]models.Track, error) {
	var tracks []models.Track
	if err := s.db.WithContext(ctx).Order("id asc").Find(&tracks).Error; err != nil {
		return nil, apierrors.StoreErr("list_tracks", err)
	}
	return tracks, nil
}

// DeleteTrack deletes the track and all its postings atomically. It
// reports false (no error) when the track does not exist, so callers can
// distinguish "nothing to do" from a store failure.
func (s *store) DeleteTrack(ctx context.Context, trackID uint32) (bool, error) {
	var deleted bool
	err := withWriteRetry(ctx, func() error {
		deleted = false
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res := tx.Where("id = ?", trackID).Delete(&models.Track{})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return nil
			}
			deleted = true
			return tx.Where("track_id = ?", trackID).Delete(&models.Posting{}).Error
		})
	})
	if err != nil {
		return false, apierrors.StoreErr("delete_track", err)
	}
	return deleted, nil
}

// TrackHashes returns the distinct hashes posted for trackID. The caching
// layer reads them before a delete and invalidates them after it.
func (s *store) TrackHashes(ctx context.Context, trackID uint32) ([]uint32, error) {
	var hashes []uint32
	err := s.db.WithContext(ctx).Model(&models.Posting{}).
		Where("track_id = ?", trackID).
		Distinct().
		Pluck("hash", &hashes).Error
	if err != nil {
		return nil, apierrors.StoreErr("track_hashes", err)
	}
	return hashes, nil
}

func (s *store) CountTracks(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Track{}).Count(&count).Error; err != nil {
		return 0, apierrors.StoreErr("count_tracks", err)
	}
	return count, nil
}

func (s *store) CountPostings(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Posting{}).Count(&count).Error; err != nil {
		return 0, apierrors.StoreErr("count_postings", err)
	}
	return count, nil
}
