package daemon

import (
	"context"
	"os"
	"path/filepath"
	"streamwatch/internal/config"
	"streamwatch/internal/model"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu      sync.Mutex
	records []model.CopyRecord
}

func (s *memStore) Save(record model.CopyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func (s *memStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.Default
	cfg.SourceRoot = t.TempDir()
	cfg.DestinationRoot = t.TempDir()
	cfg.CheckInterval = 10 * time.Millisecond
	cfg.StableTime = 50 * time.Millisecond
	cfg.RetryDelay = time.Millisecond
	cfg.ReconcileInterval = 0
	cfg.ShutdownGrace = time.Second
	cfg.QueueSize = 16
	return &cfg
}

func startManager(t *testing.T, cfg *config.Config, store HistoryStore) *Manager {
	t.Helper()

	m, err := NewManager(cfg, store)
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { m.Stop(context.Background()) })
	return m
}

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))
}

func TestNewManagerRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.SourceRoot = filepath.Join(cfg.SourceRoot, "missing")

	_, err := NewManager(cfg, nil)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestManagerCopiesStableFile(t *testing.T) {
	cfg := testConfig(t)
	store := &memStore{}
	m := startManager(t, cfg, store)

	writeFile(t, filepath.Join(cfg.SourceRoot, "episode.mp3"), "audio")

	require.Eventually(t, func() bool {
		return m.Snapshot().Copied == 1
	}, 5*time.Second, 10*time.Millisecond)

	got, err := os.ReadFile(filepath.Join(cfg.DestinationRoot, "episode.mp3"))
	require.NoError(t, err)
	assert.Equal(t, "audio", string(got))

	snap := m.Snapshot()
	assert.Equal(t, model.SyncActive, snap.Status)
	assert.Equal(t, 1, snap.Verified)
	assert.Equal(t, int64(5), snap.Bytes)
	assert.NotNil(t, snap.LastCopy)

	recent := m.Recent(10)
	require.Len(t, recent, 1)
	assert.Equal(t, model.OutcomeCopied, recent[0].Outcome)
	assert.Eventually(t, func() bool { return store.Len() == 1 }, time.Second, 10*time.Millisecond)

	// unchanged content is not copied again
	time.Sleep(5 * cfg.StableTime)
	assert.Equal(t, 1, m.Snapshot().Copied)
}

func TestManagerExcludedFileNeverCopied(t *testing.T) {
	cfg := testConfig(t)
	m := startManager(t, cfg, nil)

	writeFile(t, filepath.Join(cfg.SourceRoot, "upload.part"), "partial")
	writeFile(t, filepath.Join(cfg.SourceRoot, "done.txt"), "done")

	require.Eventually(t, func() bool {
		return m.Snapshot().Copied == 1
	}, 5*time.Second, 10*time.Millisecond)

	assert.NoFileExists(t, filepath.Join(cfg.DestinationRoot, "upload.part"))
}

func TestManagerBaselinesExistingFiles(t *testing.T) {
	cfg := testConfig(t)
	existing := filepath.Join(cfg.SourceRoot, "old.wav")
	writeFile(t, existing, "old")

	m := startManager(t, cfg, nil)

	time.Sleep(5 * cfg.StableTime)
	assert.Equal(t, 0, m.Snapshot().Copied)

	writeFile(t, existing, "edited")
	require.Eventually(t, func() bool {
		return m.Snapshot().Copied == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestManagerCopyExisting(t *testing.T) {
	cfg := testConfig(t)
	cfg.CopyExisting = true
	writeFile(t, filepath.Join(cfg.SourceRoot, "old.wav"), "old")

	m := startManager(t, cfg, nil)

	require.Eventually(t, func() bool {
		return m.Snapshot().Copied == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.FileExists(t, filepath.Join(cfg.DestinationRoot, "old.wav"))
}

func TestManagerPauseResume(t *testing.T) {
	cfg := testConfig(t)
	m := startManager(t, cfg, nil)

	m.Pause()
	assert.Equal(t, model.SyncPaused, m.Snapshot().Status)
	assert.ErrorIs(t, m.TriggerCopyNow(), ErrPaused)

	writeFile(t, filepath.Join(cfg.SourceRoot, "held.txt"), "x")

	require.Eventually(t, func() bool {
		return len(m.Pending()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	time.Sleep(5 * cfg.StableTime)
	assert.Equal(t, 0, m.Snapshot().Copied)

	m.Resume()
	assert.NoError(t, m.TriggerCopyNow())

	require.Eventually(t, func() bool {
		return m.Snapshot().Copied == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Empty(t, m.Pending())
}

func TestManagerSubscribe(t *testing.T) {
	cfg := testConfig(t)
	m := startManager(t, cfg, nil)

	ch, cancel := m.Subscribe(4)
	defer cancel()

	path := filepath.Join(cfg.SourceRoot, "notify.txt")
	writeFile(t, path, "x")

	select {
	case rec := <-ch:
		assert.Equal(t, path, rec.SourcePath)
		assert.Equal(t, model.OutcomeCopied, rec.Outcome)
	case <-time.After(5 * time.Second):
		t.Fatal("no record delivered")
	}
}

func TestManagerStop(t *testing.T) {
	cfg := testConfig(t)
	m, err := NewManager(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	m.Stop(ctx)
	m.Stop(ctx)

	select {
	case <-m.Done():
	default:
		t.Fatal("done not closed after stop")
	}
}

func TestManagerStopWithoutStart(t *testing.T) {
	m, err := NewManager(testConfig(t), nil)
	require.NoError(t, err)

	m.Stop(context.Background())
	<-m.Done()
}
