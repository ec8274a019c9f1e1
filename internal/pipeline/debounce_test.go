package pipeline_test

import (
	"streamwatch/internal/model"
	"streamwatch/internal/pipeline"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebounceCollapsesBurst(t *testing.T) {
	inCh := make(chan model.FileEvent, 16)
	outCh := pipeline.Debounce(inCh, 30*time.Millisecond)

	inCh <- model.FileEvent{Kind: model.EventCreate, Path: "/src/a"}
	for range 5 {
		inCh <- model.FileEvent{Kind: model.EventWrite, Path: "/src/a"}
	}
	inCh <- model.FileEvent{Kind: model.EventWrite, Path: "/src/b"}

	got := make(map[string]model.EventKind)
	for len(got) < 2 {
		select {
		case ev := <-outCh:
			_, dup := got[ev.Path]
			require.False(t, dup, "duplicate event for %s", ev.Path)
			got[ev.Path] = ev.Kind
		case <-time.After(2 * time.Second):
			t.Fatal("timed out")
		}
	}

	assert.Equal(t, model.EventCreate, got["/src/a"])
	assert.Equal(t, model.EventWrite, got["/src/b"])

	close(inCh)
	_, open := <-outCh
	assert.False(t, open)
}

func TestDebounceFlushesOnClose(t *testing.T) {
	inCh := make(chan model.FileEvent, 4)
	outCh := pipeline.Debounce(inCh, time.Hour)

	inCh <- model.FileEvent{Kind: model.EventScan, Path: "/src/a"}
	close(inCh)

	select {
	case ev := <-outCh:
		assert.Equal(t, "/src/a", ev.Path)
	case <-time.After(2 * time.Second):
		t.Fatal("pending event not flushed")
	}
}

func TestDebounceZeroDelayPassesThrough(t *testing.T) {
	inCh := make(chan model.FileEvent, 2)
	outCh := pipeline.Debounce(inCh, 0)

	inCh <- model.FileEvent{Path: "/a"}
	inCh <- model.FileEvent{Path: "/a"}
	close(inCh)

	var n int
	for range outCh {
		n++
	}
	assert.Equal(t, 2, n)
}
