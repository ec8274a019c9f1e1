package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"streamwatch/internal/logger"
	"streamwatch/internal/model"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

type Options struct {
	Root              string
	Recursive         bool
	BufferSize        int
	ReconcileInterval time.Duration
	RestartBackoff    time.Duration
}

// Watcher turns OS file notifications under Root into candidate events and
// periodically re-walks the tree to surface anything the OS missed. A broken
// notification handle is torn down and re-created.
type Watcher struct {
	opts    Options
	root    string
	eventCh chan model.FileEvent
	scanCh  chan struct{}
	doneCh  chan struct{}

	stopOnce sync.Once
	wg       sync.WaitGroup

	newFS func() (*fsnotify.Watcher, error)
}

func New(opts Options) (*Watcher, error) {
	absRoot, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("source directory not found: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source is not a directory: %s", absRoot)
	}

	if opts.BufferSize < 1 {
		opts.BufferSize = 1
	}
	if opts.RestartBackoff <= 0 {
		opts.RestartBackoff = time.Second
	}

	return &Watcher{
		opts:    opts,
		root:    absRoot,
		eventCh: make(chan model.FileEvent, opts.BufferSize),
		scanCh:  make(chan struct{}, 1),
		doneCh:  make(chan struct{}),
		newFS:   fsnotify.NewWatcher,
	}, nil
}

func (w *Watcher) Root() string {
	return w.root
}

// Start begins watching. The returned error only covers the first attempt
// to register the tree; later failures are retried in the background.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := w.open()
	if err != nil {
		return err
	}

	w.wg.Add(1)
	go w.run(ctx, fw)

	logger.Log.Info("watcher started",
		zap.String("dir", w.root),
		zap.Bool("recursive", w.opts.Recursive),
		zap.Duration("reconcile_interval", w.opts.ReconcileInterval))
	return nil
}

func (w *Watcher) Events() <-chan model.FileEvent {
	return w.eventCh
}

func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.doneCh) })
	w.wg.Wait()
}

// RequestScan asks the watch loop for a reconciliation scan as soon as
// possible.
func (w *Watcher) RequestScan() {
	select {
	case w.scanCh <- struct{}{}:
	default:
	}
}

// scan walks the tree and emits a scan event for every regular file. Only
// called from the run goroutine, which owns eventCh.
func (w *Watcher) scan() {
	n := 0
	err := Walk(w.root, w.opts.Recursive, func(path string, _ fs.FileInfo) bool {
		if !w.send(model.FileEvent{Kind: model.EventScan, Path: path, Timestamp: time.Now()}) {
			return false
		}
		n++
		return true
	})
	if err != nil {
		logger.Log.Warn("reconciliation scan incomplete",
			zap.String("dir", w.root),
			zap.Error(err))
	}

	logger.Log.Debug("reconciliation scan finished",
		zap.Int("files", n))
}

// Walk calls fn for every regular file under root, descending into
// subdirectories only when recursive. Unreadable entries are logged and
// skipped. fn returning false stops the walk.
func Walk(root string, recursive bool, fn func(path string, info fs.FileInfo) bool) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			logger.Log.Warn("failed to read entry",
				zap.String("path", path),
				zap.Error(err))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path != root && !recursive {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		if !fn(path, info) {
			return filepath.SkipAll
		}
		return nil
	})
}

func (w *Watcher) open() (*fsnotify.Watcher, error) {
	fw, err := w.newFS()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if err := w.addTree(fw, w.root); err != nil {
		_ = fw.Close()
		return nil, err
	}

	return fw, nil
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string) error {
	if !w.opts.Recursive {
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		return nil
	}

	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if err := fw.Add(path); err != nil {
				return fmt.Errorf("failed to watch %s: %w", path, err)
			}
			logger.Log.Debug("watching directory",
				zap.String("path", path))
		}

		return nil
	})
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher) {
	defer w.wg.Done()
	defer close(w.eventCh)

	var reconcile <-chan time.Time
	if w.opts.ReconcileInterval > 0 {
		ticker := time.NewTicker(w.opts.ReconcileInterval)
		defer ticker.Stop()
		reconcile = ticker.C
	}

	for {
		err := w.loop(ctx, fw, fw.Events, fw.Errors, reconcile)
		_ = fw.Close()
		if err == nil {
			logger.Log.Info("watcher stopping")
			return
		}

		logger.Log.Error("watch handle failed, restarting",
			zap.String("dir", w.root),
			zap.Error(err))

		fw = w.reopen(ctx)
		if fw == nil {
			logger.Log.Info("watcher stopping")
			return
		}

		// recover anything written while the handle was down
		w.scan()
	}
}

func (w *Watcher) reopen(ctx context.Context) *fsnotify.Watcher {
	backoff := w.opts.RestartBackoff

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.doneCh:
			return nil
		case <-time.After(backoff):
		}

		fw, err := w.open()
		if err == nil {
			logger.Log.Info("watch handle restored",
				zap.String("dir", w.root))
			return fw
		}

		logger.Log.Error("failed to restore watch handle",
			zap.String("dir", w.root),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		backoff = min(backoff*2, time.Minute)
	}
}

// loop forwards events until stopped (nil) or the handle breaks (non-nil).
func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher, events <-chan fsnotify.Event, errs <-chan error, reconcile <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case <-w.doneCh:
			return nil

		case <-reconcile:
			w.scan()

		case <-w.scanCh:
			w.scan()

		case fsEvent, ok := <-events:
			if !ok {
				return errors.New("event channel closed")
			}
			w.handle(fw, fsEvent)

		case err, ok := <-errs:
			if !ok {
				return errors.New("error channel closed")
			}

			if errors.Is(err, fsnotify.ErrEventOverflow) {
				logger.Log.Warn("event queue overflowed, rescanning",
					zap.String("dir", w.root))
				w.scan()
				continue
			}

			return err
		}
	}
}

func (w *Watcher) handle(fw *fsnotify.Watcher, fsEvent fsnotify.Event) {
	kind := toEventKind(fsEvent.Op)
	if kind == "" {
		return
	}

	if fsEvent.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(fsEvent.Name); err == nil && info.IsDir() {
			if !w.opts.Recursive {
				return
			}

			if err := w.addTree(fw, fsEvent.Name); err != nil {
				logger.Log.Warn("failed to watch new directory",
					zap.String("path", fsEvent.Name),
					zap.Error(err))
			} else {
				logger.Log.Debug("added new directory to watch",
					zap.String("path", fsEvent.Name))
			}

			// files may land before the directory watch is registered
			_ = Walk(fsEvent.Name, true, func(path string, _ fs.FileInfo) bool {
				return w.send(model.FileEvent{Kind: model.EventScan, Path: path, Timestamp: time.Now()})
			})
			return
		}
	}

	event := model.FileEvent{
		Kind:      kind,
		Path:      fsEvent.Name,
		Timestamp: time.Now(),
	}

	select {
	case w.eventCh <- event:
	default:
		logger.Log.Warn("event channel is full, dropping event",
			zap.String("path", fsEvent.Name))
	}
}

// send blocks until the event is accepted or the watcher stops.
func (w *Watcher) send(event model.FileEvent) bool {
	select {
	case w.eventCh <- event:
		return true
	case <-w.doneCh:
		return false
	}
}

func toEventKind(op fsnotify.Op) model.EventKind {
	switch {
	case op.Has(fsnotify.Create):
		return model.EventCreate
	case op.Has(fsnotify.Write):
		return model.EventWrite
	default:
		return ""
	}
}
