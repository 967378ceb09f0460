package models

import "time"

// SourceType identifies the catalog a Track's audio was ingested from.
type SourceType string

const (
	SourceTypeSpotify SourceType = "spotify"
	SourceTypeYouTube SourceType = "youtube"
	SourceTypeFile    SourceType = "file"
	SourceTypeLocal   SourceType = "local"
)

// Track is a reference recording identified by fingerprint matching.
// It is immutable once inserted: ingestion never updates an existing row,
// it only returns the existing ID when (SourceType, SourceID) collides.
type Track struct {
	ID         uint32     `gorm:"primaryKey;autoIncrement" json:"id"`
	Title      string     `gorm:"not null" json:"title"`
	Artist     string     `json:"artist"`
	Album      string     `json:"album"`
	SourceType SourceType `gorm:"not null;uniqueIndex:idx_track_source" json:"source_type"`
	SourceID   string     `gorm:"not null;uniqueIndex:idx_track_source" json:"source_id"`

	DurationMs  *int64  `json:"duration_ms,omitempty"`
	CoverURL    *string `json:"cover_url,omitempty"`
	ReleaseDate *string `json:"release_date,omitempty"`
	SpotifyURL  *string `json:"spotify_url,omitempty"`
	YouTubeID   *string `json:"youtube_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (Track) TableName() string { return "tracks" }
