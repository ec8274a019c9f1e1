package model

import "time"

type SyncStatus string

const (
	SyncActive SyncStatus = "ACTIVE"
	SyncPaused SyncStatus = "PAUSED"
)

type Counts struct {
	Copied         int    `json:"copied"`
	Failed         int    `json:"failed"`
	Skipped        int    `json:"skipped"`
	Verified       int    `json:"verified"`
	Bytes          int64  `json:"bytes"`
	LastCopiedFile string `json:"last_copied_file"`
}

type StatusSnapshot struct {
	Status       SyncStatus `json:"status"`
	Source       string     `json:"source"`
	Destination  string     `json:"destination"`
	StartedAt    time.Time  `json:"started_at"`
	LastCopy     *time.Time `json:"last_copy"`
	Pending      int        `json:"pending"`
	ActiveCopies int        `json:"active_copies"`
	Counts
}
