// Package adapter defines the external collaborator contracts kept
// outside the core: metadata lookup and audio retrieval. The core
// depends only on these interfaces; it never imports a concrete catalog
// client.
package adapter

import "context"

// TrackMetadata is the adapter-facing shape: {id, title, artist, album?,
// duration_ms?, images[], release_date?, spotify_url?}. Unknown fields
// from a real catalog adapter are discarded at this boundary.
type TrackMetadata struct {
	ID          string
	Title       string
	Artist      string
	Album       string
	DurationMs  *int64
	Images      []string
	ReleaseDate *string
	SpotifyURL  *string
}

// MetadataFetcher resolves a reference URL (or playlist URL) to track
// metadata, without touching audio bytes.
type MetadataFetcher interface {
	GetTrack(ctx context.Context, url string) (*TrackMetadata, error)
	// GetPlaylist resolves a playlist URL to its member tracks, paginated
	// lazily by the implementation. Deleted/unavailable items are skipped,
	// not returned as errors.
	GetPlaylist(ctx context.Context, url string) ([]TrackMetadata, error)
}

// AudioFetcher resolves a search query (typically "artist - title") to a
// local temp file containing the downloaded audio. The caller owns the
// returned path and must delete it once done.
type AudioFetcher interface {
	SearchAndDownload(ctx context.Context, query string) (tempPath string, meta *TrackMetadata, err error)
}
