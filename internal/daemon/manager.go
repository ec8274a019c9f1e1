package daemon

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"streamwatch/internal/config"
	"streamwatch/internal/conflict"
	"streamwatch/internal/copier"
	"streamwatch/internal/logger"
	"streamwatch/internal/model"
	"streamwatch/internal/pipeline"
	"streamwatch/internal/sink"
	"streamwatch/internal/stability"
	"streamwatch/internal/watcher"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrPaused = errors.New("sync is paused")

const debounceDelay = 100 * time.Millisecond

// HistoryStore persists terminal records. A nil store keeps history in
// memory only.
type HistoryStore interface {
	Save(record model.CopyRecord) error
}

// Manager owns one watch → stabilize → copy pipeline and is the only way the
// outside world talks to it.
type Manager struct {
	cfg       *config.Config
	state     *SyncState
	store     HistoryStore
	admission *pipeline.Admission

	watcher *watcher.Watcher
	tracker *stability.Tracker
	engine  *copier.Engine
	sink    *sink.Sink

	started  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
	doneCh   chan struct{}
}

func NewManager(cfg *config.Config, store HistoryStore) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	policy, err := conflict.ParsePolicy(cfg.CollisionMode, cfg.RenamePattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}

	w, err := watcher.New(watcher.Options{
		Root:              cfg.SourceRoot,
		Recursive:         cfg.Recursive,
		BufferSize:        cfg.BufferSize,
		ReconcileInterval: cfg.ReconcileInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	admission := &pipeline.Admission{
		Root:       w.Root(),
		Extensions: cfg.Extensions,
		Include:    cfg.IncludePatterns,
		Exclude:    cfg.ExcludePatterns,
		MinSize:    cfg.MinSize,
		MaxSize:    cfg.MaxSize,
	}

	queue := make(chan model.CopyJob, cfg.QueueSize)

	tracker := stability.New(stability.Options{
		Root:          w.Root(),
		CheckInterval: cfg.CheckInterval,
		StableTime:    cfg.StableTime,
		MaxAttempts:   cfg.MaxAttempts(),
		Admission:     admission,
	}, queue)

	engine := copier.NewEngine(copier.Options{
		DestinationRoot: cfg.DestinationRoot,
		MirrorSubdirs:   cfg.MirrorSubdirs,
		Verify:          cfg.VerifyCopies,
		RetryDelay:      cfg.RetryDelay,
		Workers:         cfg.Workers,
		Admission:       admission,
	}, conflict.NewResolver(policy), queue)
	engine.OnStart(tracker.MarkStarted)

	return &Manager{
		cfg:       cfg,
		state:     NewSyncState(w.Root(), cfg.DestinationRoot),
		store:     store,
		admission: admission,
		watcher:   w,
		tracker:   tracker,
		engine:    engine,
		sink:      sink.New(cfg.HistoryLimit),
		doneCh:    make(chan struct{}),
	}, nil
}

func (m *Manager) Start(ctx context.Context) error {
	if !m.cfg.CopyExisting {
		n := 0
		err := watcher.Walk(m.watcher.Root(), m.cfg.Recursive, func(path string, _ fs.FileInfo) bool {
			m.tracker.Baseline(path)
			n++
			return true
		})
		if err != nil {
			return fmt.Errorf("failed to baseline source: %w", err)
		}

		logger.Log.Info("existing files baselined",
			zap.Int("files", n))
	}

	ctx, m.cancel = context.WithCancel(ctx)

	if err := m.watcher.Start(ctx); err != nil {
		m.cancel()
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	if m.cfg.CopyExisting {
		m.watcher.RequestScan()
	}

	filteredCh := pipeline.Filter(pipeline.Debounce(m.watcher.Events(), debounceDelay), m.admission)

	m.wg.Go(func() {
		m.tracker.Run(ctx, filteredCh)
	})

	m.engine.Start(context.WithoutCancel(ctx))

	m.wg.Go(m.collect)
	m.started = true

	logger.Log.Info("sync started",
		zap.String("src", m.watcher.Root()),
		zap.String("dst", m.cfg.DestinationRoot),
		zap.Duration("stable_time", m.cfg.StableTime),
		zap.String("collision_mode", m.cfg.CollisionMode))

	return nil
}

func (m *Manager) collect() {
	for record := range m.engine.Results() {
		m.tracker.Complete(record)
		m.sink.Deliver(record)

		if m.store == nil {
			continue
		}
		if err := m.store.Save(record); err != nil {
			logger.Log.Warn("failed to save history",
				zap.String("src", record.SourcePath),
				zap.Error(err))
		}
	}
}

func (m *Manager) Pause() {
	m.tracker.SetPaused(true)
	m.state.SetStatus(model.SyncPaused)
	logger.Log.Info("sync paused")
}

func (m *Manager) Resume() {
	m.tracker.SetPaused(false)
	m.state.SetStatus(model.SyncActive)
	m.tracker.TriggerCopyNow()
	logger.Log.Info("sync resumed")
}

func (m *Manager) TriggerCopyNow() error {
	if m.state.Paused() {
		return ErrPaused
	}

	m.tracker.TriggerCopyNow()
	return nil
}

func (m *Manager) Snapshot() model.StatusSnapshot {
	snap := m.state.Snapshot()
	snap.Pending = len(m.tracker.Pending())
	snap.ActiveCopies = m.engine.Active()
	snap.Counts = m.sink.Counts()
	snap.LastCopy = m.sink.LastCopy()
	return snap
}

func (m *Manager) Pending() []string {
	return m.tracker.Pending()
}

func (m *Manager) Recent(n int) []model.CopyRecord {
	return m.sink.Recent(n)
}

func (m *Manager) Subscribe(buffer int) (<-chan model.CopyRecord, func()) {
	return m.sink.Subscribe(buffer)
}

// Done is closed once Stop has finished.
func (m *Manager) Done() <-chan struct{} {
	return m.doneCh
}

// Stop ends watching and waits for in-flight copies up to the configured
// grace period or the ctx deadline, whichever comes first.
func (m *Manager) Stop(ctx context.Context) {
	m.stopOnce.Do(func() {
		defer close(m.doneCh)

		m.watcher.Stop()
		if !m.started {
			return
		}
		m.cancel()

		grace := m.cfg.ShutdownGrace
		if deadline, ok := ctx.Deadline(); ok {
			grace = min(grace, time.Until(deadline))
		}

		drained := m.engine.Shutdown(max(grace, 0))
		m.wg.Wait()

		logger.Log.Info("sync stopped",
			zap.Bool("drained", drained))
	})
}
