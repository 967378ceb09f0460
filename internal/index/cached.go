package index

import (
	"context"

	"github.com/soundtrace/soundtrace/internal/models"
)

// PostingCache is the subset of the hot-hash cache Lookup consults. The
// concrete Redis-backed implementation lives in internal/cache; keeping
// the dependency behind this interface lets tests use a map.
type PostingCache interface {
	Get(ctx context.Context, hash uint32) ([]models.Posting, bool)
	Set(ctx context.Context, hash uint32, postings []models.Posting) error
	Invalidate(ctx context.Context, hash uint32) error
}

type cachedStore struct {
	Store
	cache PostingCache
}

// NewCachedStore layers a hot-hash posting cache over inner's Lookup.
// Writes and deletes invalidate the affected hashes, so a cached entry
// never outlives the rows behind it: delete_track followed by lookup
// observes the cascade immediately, not after the cache TTL.
func NewCachedStore(inner Store, cache PostingCache) Store {
	return &cachedStore{Store: inner, cache: cache}
}

func (s *cachedStore) Lookup(ctx context.Context, hashes []uint32) ([]models.Posting, error) {
	var out []models.Posting
	var misses []uint32
	for _, h := range hashes {
		if postings, ok := s.cache.Get(ctx, h); ok {
			out = append(out, postings...)
		} else {
			misses = append(misses, h)
		}
	}
	if len(misses) == 0 {
		return out, nil
	}

	fetched, err := s.Store.Lookup(ctx, misses)
	if err != nil {
		return nil, err
	}

	byHash := make(map[uint32][]models.Posting)
	for _, p := range fetched {
		byHash[p.Hash] = append(byHash[p.Hash], p)
	}
	// Empty results are cached too: a hash absent from the index stays
	// absent until a write invalidates it.
	for _, h := range misses {
		_ = s.cache.Set(ctx, h, byHash[h])
	}

	return append(out, fetched...), nil
}

func (s *cachedStore) InsertPostings(ctx context.Context, trackID uint32, postings []models.Posting) error {
	if err := s.Store.InsertPostings(ctx, trackID, postings); err != nil {
		return err
	}
	seen := make(map[uint32]struct{}, len(postings))
	for _, p := range postings {
		if _, ok := seen[p.Hash]; ok {
			continue
		}
		seen[p.Hash] = struct{}{}
		_ = s.cache.Invalidate(ctx, p.Hash)
	}
	return nil
}

func (s *cachedStore) DeleteTrack(ctx context.Context, trackID uint32) (bool, error) {
	hashes, err := s.Store.TrackHashes(ctx, trackID)
	if err != nil {
		return false, err
	}
	deleted, err := s.Store.DeleteTrack(ctx, trackID)
	if err != nil || !deleted {
		return deleted, err
	}
	for _, h := range hashes {
		_ = s.cache.Invalidate(ctx, h)
	}
	return true, nil
}
