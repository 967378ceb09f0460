// Package matcher implements the time-delta histogram match: rank
// candidate tracks by how many postings align under a single
// reference-minus-query offset.
package matcher

import (
	"context"
	"sort"
	"time"

	"github.com/soundtrace/soundtrace/internal/fingerprint"
	"github.com/soundtrace/soundtrace/internal/index"
	"github.com/soundtrace/soundtrace/internal/metrics"
)

// Config controls the matcher's ranking thresholds.
type Config struct {
	MinAbsoluteMatches int
	TopN               int
	HopSize            int
	SampleRate         int
}

// DefaultConfig returns the reference thresholds.
func DefaultConfig() Config {
	return Config{
		MinAbsoluteMatches: 2,
		TopN:               5,
		HopSize:            1024,
		SampleRate:         11025,
	}
}

// Result is one ranked candidate.
type Result struct {
	TrackID       uint32  `json:"track_id"`
	Score         int     `json:"score"`
	OffsetSeconds float64 `json:"offset_seconds"`
}

// Response is the caller-facing recognition payload shared by the HTTP,
// websocket, and CLI surfaces: the top candidate flattened out with its
// track metadata, or just {match_found: false}.
type Response struct {
	MatchFound    bool     `json:"match_found"`
	TrackID       uint32   `json:"track_id,omitempty"`
	Title         string   `json:"title,omitempty"`
	Artist        string   `json:"artist,omitempty"`
	Score         int      `json:"score,omitempty"`
	OffsetSeconds *float64 `json:"offset_seconds,omitempty"`
	Candidates    []Result `json:"candidates,omitempty"`
}

// NoMatch is the payload returned when recognition finds nothing.
func NoMatch() Response {
	return Response{MatchFound: false}
}

// Matcher ranks a query fingerprint set against the index store.
type Matcher struct {
	store index.Store
	cfg   Config
}

func New(store index.Store, cfg Config) *Matcher {
	return &Matcher{store: store, cfg: cfg}
}

// Match runs the ranking algorithm end to end. An empty query or an
// index with no matching postings returns an empty, non-error result:
// the matcher never returns an error.
func (m *Matcher) Match(ctx context.Context, query []fingerprint.Fingerprint) []Result {
	if len(query) == 0 {
		metrics.Get().MatchResultsTotal.WithLabelValues("empty_query").Inc()
		return nil
	}

	// Step 1: hash -> anchor offset. If a hash repeats, the last-seen
	// anchor offset wins, matching the reference implementation.
	queryOffsets := make(map[uint32]uint32, len(query))
	hashes := make([]uint32, 0, len(query))
	for _, fp := range query {
		if _, seen := queryOffsets[fp.Hash]; !seen {
			hashes = append(hashes, fp.Hash)
		}
		queryOffsets[fp.Hash] = fp.Offset
	}

	start := time.Now()
	postings, err := m.store.Lookup(ctx, hashes)
	if err != nil || len(postings) == 0 {
		metrics.Get().MatchResultsTotal.WithLabelValues("no_postings").Inc()
		return nil
	}

	// Step 3: per-track delta histograms.
	type histKey struct {
		trackID uint32
		delta   int64
	}
	hist := make(map[histKey]int)
	for _, p := range postings {
		qOffset, ok := queryOffsets[p.Hash]
		if !ok {
			continue
		}
		delta := int64(p.Offset) - int64(qOffset)
		hist[histKey{trackID: p.TrackID, delta: delta}]++
	}

	type scored struct {
		trackID   uint32
		score     int
		bestDelta int64
	}
	best := make(map[uint32]scored)
	for k, count := range hist {
		cur, ok := best[k.trackID]
		if !ok || count > cur.score || (count == cur.score && k.delta < cur.bestDelta) {
			best[k.trackID] = scored{trackID: k.trackID, score: count, bestDelta: k.delta}
		}
	}

	var results []Result
	for _, b := range best {
		if b.score < m.cfg.MinAbsoluteMatches {
			continue
		}
		offsetSeconds := float64(b.bestDelta) * float64(m.cfg.HopSize) / float64(m.cfg.SampleRate)
		if offsetSeconds < 0 {
			offsetSeconds = 0
		}
		results = append(results, Result{TrackID: b.trackID, Score: b.score, OffsetSeconds: offsetSeconds})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].TrackID < results[j].TrackID
	})

	if m.cfg.TopN > 0 && len(results) > m.cfg.TopN {
		results = results[:m.cfg.TopN]
	}

	outcome := "match"
	if len(results) == 0 {
		outcome = "below_threshold"
	}
	metrics.Get().MatchResultsTotal.WithLabelValues(outcome).Inc()
	metrics.Get().MatchDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	return results
}

// Identify runs Match and shapes the winner into a Response, resolving
// the winning track's title and artist from the store. Lower-ranked
// candidates ride along for callers that want the full ranking.
func (m *Matcher) Identify(ctx context.Context, query []fingerprint.Fingerprint) Response {
	results := m.Match(ctx, query)
	if len(results) == 0 {
		return NoMatch()
	}

	top := results[0]
	resp := Response{
		MatchFound:    true,
		TrackID:       top.TrackID,
		Score:         top.Score,
		OffsetSeconds: &top.OffsetSeconds,
		Candidates:    results,
	}
	if track, err := m.store.GetTrack(ctx, top.TrackID); err == nil {
		resp.Title = track.Title
		resp.Artist = track.Artist
	}
	return resp
}
