package model

import "time"

type EventKind string

const (
	EventCreate EventKind = "CREATE"
	EventWrite  EventKind = "WRITE"
	EventScan   EventKind = "SCAN"
)

// FileEvent is a candidate notification from the watch source. Scan events
// come from reconciliation walks rather than the OS.
type FileEvent struct {
	Kind      EventKind
	Path      string
	Timestamp time.Time
}
