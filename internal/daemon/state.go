package daemon

import (
	"streamwatch/internal/model"
	"sync"
	"time"
)

type SyncState struct {
	mu          sync.RWMutex
	Source      string
	Destination string
	Status      model.SyncStatus
	StartedAt   time.Time
}

func NewSyncState(src, dst string) *SyncState {
	return &SyncState{
		Source:      src,
		Destination: dst,
		Status:      model.SyncActive,
		StartedAt:   time.Now(),
	}
}

func (s *SyncState) SetStatus(status model.SyncStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = status
}

func (s *SyncState) Paused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Status == model.SyncPaused
}

func (s *SyncState) Snapshot() model.StatusSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return model.StatusSnapshot{
		Status:      s.Status,
		Source:      s.Source,
		Destination: s.Destination,
		StartedAt:   s.StartedAt,
	}
}
