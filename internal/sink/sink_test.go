package sink

import (
	"fmt"
	"streamwatch/internal/model"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(src string, outcome model.Outcome, verification model.Verification, size int64) model.CopyRecord {
	return model.CopyRecord{
		SourcePath:   src,
		DestPath:     "/dst/" + src,
		Outcome:      outcome,
		Verification: verification,
		Size:         size,
		Timestamp:    time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestCounts(t *testing.T) {
	s := New(10)
	s.Deliver(record("a", model.OutcomeCopied, model.VerifyPassed, 100))
	s.Deliver(record("b", model.OutcomeCopied, model.VerifyNotAttempted, 50))
	s.Deliver(record("c", model.OutcomeSkipped, model.VerifyNotAttempted, 0))
	s.Deliver(record("d", model.OutcomeFailed, model.VerifyFailed, 0))

	c := s.Counts()
	assert.Equal(t, 2, c.Copied)
	assert.Equal(t, 1, c.Verified)
	assert.Equal(t, 1, c.Skipped)
	assert.Equal(t, 1, c.Failed)
	assert.Equal(t, int64(150), c.Bytes)
	assert.Equal(t, "/dst/b", c.LastCopiedFile)

	last := s.LastCopy()
	require.NotNil(t, last)
	assert.Equal(t, 2025, last.Year())
}

func TestLastCopyNilBeforeCopy(t *testing.T) {
	s := New(10)
	s.Deliver(record("a", model.OutcomeFailed, model.VerifyNotAttempted, 0))
	assert.Nil(t, s.LastCopy())
}

func TestRecentIsBoundedNewestFirst(t *testing.T) {
	s := New(3)
	for i := range 5 {
		s.Deliver(record(fmt.Sprintf("f%d", i), model.OutcomeCopied, model.VerifyNotAttempted, 1))
	}

	recent := s.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, "f4", recent[0].SourcePath)
	assert.Equal(t, "f2", recent[2].SourcePath)

	assert.Len(t, s.Recent(2), 2)
	assert.Len(t, s.Recent(100), 3)

	// counters are not bounded by history
	assert.Equal(t, 5, s.Counts().Copied)
}

func TestSubscribe(t *testing.T) {
	s := New(10)
	ch, cancel := s.Subscribe(4)

	s.Deliver(record("a", model.OutcomeCopied, model.VerifyPassed, 1))

	select {
	case rec := <-ch:
		assert.Equal(t, "a", rec.SourcePath)
	case <-time.After(time.Second):
		t.Fatal("no record delivered")
	}

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)

	s.Deliver(record("b", model.OutcomeCopied, model.VerifyPassed, 1))
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	s := New(10)
	_, cancel := s.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for range 5 {
			s.Deliver(record("a", model.OutcomeCopied, model.VerifyPassed, 1))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("deliver blocked on slow subscriber")
	}
	assert.Equal(t, 5, s.Counts().Copied)
}

func TestConcurrentDeliverAndRead(t *testing.T) {
	s := New(50)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Go(func() {
			for j := range 25 {
				s.Deliver(record(fmt.Sprintf("%d-%d", i, j), model.OutcomeCopied, model.VerifyPassed, 2))
				_ = s.Recent(5)
				_ = s.Counts()
			}
		})
	}
	wg.Wait()

	c := s.Counts()
	assert.Equal(t, 200, c.Copied)
	assert.Equal(t, int64(400), c.Bytes)
	assert.Len(t, s.Recent(0), 50)
}
