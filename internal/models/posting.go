package models

// Posting is one row of the inverted fingerprint index: a hash produced
// during ingestion of Track, together with the STFT frame offset of the
// anchor peak that produced it. Postings are append-only and are deleted
// only as a cascade of deleting their Track.
type Posting struct {
	ID      uint64 `gorm:"primaryKey;autoIncrement" json:"-"`
	Hash    uint32 `gorm:"not null;index:idx_posting_hash" json:"hash"`
	TrackID uint32 `gorm:"not null;index:idx_posting_track" json:"track_id"`
	Offset  uint32 `gorm:"not null" json:"offset"`
}

func (Posting) TableName() string { return "postings" }
