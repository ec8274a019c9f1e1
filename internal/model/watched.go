package model

import "time"

// WatchedFile is the tracker's view of one candidate path during a stability
// episode.
type WatchedFile struct {
	Path          string
	RelPath       string
	Size          int64
	ModTime       time.Time
	FirstSeenAt   time.Time
	LastChangedAt time.Time
	Episode       uint64
	Stable        bool
	Dispatched    bool
	Started       bool
}

// Fingerprint identifies file content well enough to tell whether it changed
// since it was last handled.
type Fingerprint struct {
	Size    int64
	ModTime time.Time
}

func (f Fingerprint) Equal(other Fingerprint) bool {
	return f.Size == other.Size && f.ModTime.Equal(other.ModTime)
}
