package sink

import (
	"streamwatch/internal/logger"
	"streamwatch/internal/model"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sink is the single writer of copy results. It keeps a bounded history and
// running counters, and fans records out to subscribers.
type Sink struct {
	mu       sync.RWMutex
	limit    int
	history  []model.CopyRecord
	counts   model.Counts
	lastCopy *time.Time

	subMu  sync.Mutex
	nextID int
	subs   map[int]chan model.CopyRecord
}

func New(limit int) *Sink {
	if limit < 1 {
		limit = 1
	}

	return &Sink{
		limit: limit,
		subs:  make(map[int]chan model.CopyRecord),
	}
}

func (s *Sink) Deliver(record model.CopyRecord) {
	s.mu.Lock()
	s.history = append(s.history, record)
	if over := len(s.history) - s.limit; over > 0 {
		s.history = append(s.history[:0:0], s.history[over:]...)
	}

	switch record.Outcome {
	case model.OutcomeCopied:
		s.counts.Copied++
		s.counts.Bytes += record.Size
		s.counts.LastCopiedFile = record.DestPath
		s.lastCopy = new(record.Timestamp)
		if record.Verified() {
			s.counts.Verified++
		}
	case model.OutcomeSkipped:
		s.counts.Skipped++
	case model.OutcomeFailed:
		s.counts.Failed++
	}
	s.mu.Unlock()

	s.subMu.Lock()
	defer s.subMu.Unlock()

	for id, ch := range s.subs {
		select {
		case ch <- record:
		default:
			logger.Log.Warn("subscriber is slow, dropping record",
				zap.Int("subscriber", id),
				zap.String("src", record.SourcePath))
		}
	}
}

// Subscribe returns a channel receiving every record delivered from now on.
// The returned func unsubscribes and closes the channel.
func (s *Sink) Subscribe(buffer int) (<-chan model.CopyRecord, func()) {
	ch := make(chan model.CopyRecord, max(buffer, 1))

	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

// Recent returns up to n records, newest first. n <= 0 returns all of them.
func (s *Sink) Recent(n int) []model.CopyRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 || n > len(s.history) {
		n = len(s.history)
	}

	out := make([]model.CopyRecord, 0, n)
	for i := len(s.history) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.history[i])
	}
	return out
}

func (s *Sink) Counts() model.Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counts
}

func (s *Sink) LastCopy() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.lastCopy == nil {
		return nil
	}
	return new(*s.lastCopy)
}
