package stability

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"streamwatch/internal/logger"
	"streamwatch/internal/model"
	"streamwatch/internal/pipeline"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Options struct {
	Root          string
	CheckInterval time.Duration
	StableTime    time.Duration
	MaxAttempts   int
	Admission     *pipeline.Admission
}

// Tracker follows candidate files until their size and modification time
// stay unchanged for StableTime, then hands each one to the copy queue once
// per stability episode.
type Tracker struct {
	opts  Options
	queue chan<- model.CopyJob

	mu      sync.Mutex
	files   map[string]*model.WatchedFile
	handled map[string]model.Fingerprint
	episode uint64
	paused  bool

	triggerCh chan struct{}

	now  func() time.Time
	stat func(string) (os.FileInfo, error)
}

func New(opts Options, queue chan<- model.CopyJob) *Tracker {
	if opts.Admission == nil {
		opts.Admission = &pipeline.Admission{Root: opts.Root}
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = time.Second
	}

	return &Tracker{
		opts:      opts,
		queue:     queue,
		files:     make(map[string]*model.WatchedFile),
		handled:   make(map[string]model.Fingerprint),
		triggerCh: make(chan struct{}, 1),
		now:       time.Now,
		stat:      os.Stat,
	}
}

// Run consumes candidate events and polls on CheckInterval until ctx is done
// or inCh is closed. After ctx is done inCh is drained until it closes.
func (t *Tracker) Run(ctx context.Context, inCh <-chan model.FileEvent) {
	ticker := time.NewTicker(t.opts.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// upstream stages only exit once their output is consumed
			go func() {
				for range inCh {
				}
			}()
			return

		case event, ok := <-inCh:
			if !ok {
				return
			}
			t.Observe(event)

		case <-ticker.C:
			t.Poll()

		case <-t.triggerCh:
			n := t.Poll()
			logger.Log.Info("copy now evaluated",
				zap.Int("dispatched", n))
		}
	}
}

// TriggerCopyNow asks the run loop to evaluate every tracked file right away.
func (t *Tracker) TriggerCopyNow() {
	select {
	case t.triggerCh <- struct{}{}:
	default:
	}
}

func (t *Tracker) Observe(event model.FileEvent) {
	info, err := t.stat(event.Path)

	t.mu.Lock()
	defer t.mu.Unlock()

	f, tracked := t.files[event.Path]

	if err != nil || !info.Mode().IsRegular() {
		if tracked && !f.Dispatched {
			delete(t.files, event.Path)
		}
		return
	}

	fp := model.Fingerprint{Size: info.Size(), ModTime: info.ModTime()}
	now := t.now()

	if tracked {
		current := model.Fingerprint{Size: f.Size, ModTime: f.ModTime}
		if current.Equal(fp) {
			return
		}

		if f.Dispatched {
			if f.Started {
				return
			}

			t.episode++
			f.Episode = t.episode
			f.Dispatched = false
			logger.Log.Info("file changed while queued, tracking new episode",
				zap.String("path", f.Path))
		}

		f.Size, f.ModTime = fp.Size, fp.ModTime
		f.LastChangedAt = now
		f.Stable = false
		return
	}

	if prev, ok := t.handled[event.Path]; ok && prev.Equal(fp) {
		return
	}

	t.episode++
	t.files[event.Path] = &model.WatchedFile{
		Path:          event.Path,
		RelPath:       t.relPath(event.Path),
		Size:          fp.Size,
		ModTime:       fp.ModTime,
		FirstSeenAt:   now,
		LastChangedAt: now,
		Episode:       t.episode,
	}

	logger.Log.Debug("tracking file",
		zap.String("path", event.Path),
		zap.String("event", string(event.Kind)),
		zap.Int64("size", fp.Size))
}

// Baseline marks an existing file as already handled so it is only copied
// after it changes.
func (t *Tracker) Baseline(path string) {
	info, err := t.stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.handled[path] = model.Fingerprint{Size: info.Size(), ModTime: info.ModTime()}
}

// Poll re-stats every undispatched file, marks those unchanged for StableTime
// as stable and, unless paused, dispatches every stable file. Returns the
// number of jobs queued.
func (t *Tracker) Poll() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()

	for path, f := range t.files {
		if f.Dispatched {
			continue
		}

		info, err := t.stat(path)
		if err != nil || !info.Mode().IsRegular() {
			logger.Log.Info("file disappeared before stabilizing",
				zap.String("path", path))
			delete(t.files, path)
			continue
		}

		if info.Size() != f.Size || !info.ModTime().Equal(f.ModTime) {
			f.Size, f.ModTime = info.Size(), info.ModTime()
			f.LastChangedAt = now
			f.Stable = false
			continue
		}

		if f.Stable || now.Sub(f.LastChangedAt) < t.opts.StableTime {
			continue
		}

		if ok, reason := t.opts.Admission.AdmitSize(f.Size); !ok {
			logger.Log.Info("stable file rejected",
				zap.String("path", path),
				zap.String("reason", reason))
			delete(t.files, path)
			continue
		}

		f.Stable = true
		logger.Log.Info("file stable",
			zap.String("path", path),
			zap.Int64("size", f.Size))
	}

	if t.paused {
		return 0
	}

	return t.dispatchLocked()
}

func (t *Tracker) dispatchLocked() int {
	stable := make([]*model.WatchedFile, 0)
	for _, f := range t.files {
		if f.Stable && !f.Dispatched {
			stable = append(stable, f)
		}
	}

	// oldest first keeps the queue roughly FIFO by arrival
	sort.Slice(stable, func(i, j int) bool {
		return stable[i].FirstSeenAt.Before(stable[j].FirstSeenAt)
	})

	dispatched := 0
	for _, f := range stable {
		job := model.NewCopyJob(*f, t.opts.MaxAttempts)
		select {
		case t.queue <- job:
			f.Dispatched = true
			dispatched++
		default:
			logger.Log.Warn("copy queue full, will retry dispatch",
				zap.String("path", f.Path))
			return dispatched
		}
	}

	return dispatched
}

// MarkStarted records that a worker picked up the job, after which changes
// no longer re-arm the episode.
func (t *Tracker) MarkStarted(job model.CopyJob) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if f, ok := t.files[job.SourcePath]; ok && f.Episode == job.Episode {
		f.Started = true
	}
}

// Complete ends the episode a terminal record belongs to and remembers the
// fingerprint the job was dispatched with.
func (t *Tracker) Complete(record model.CopyRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, ok := t.files[record.SourcePath]
	if !ok || f.Episode != record.Episode {
		return
	}

	delete(t.files, record.SourcePath)
	t.handled[record.SourcePath] = record.Snapshot
}

func (t *Tracker) SetPaused(paused bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.paused = paused
}

func (t *Tracker) Paused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}

// Pending lists tracked files that have not been handed to the copy queue.
func (t *Tracker) Pending() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]string, 0, len(t.files))
	for path, f := range t.files {
		if !f.Dispatched {
			out = append(out, path)
		}
	}
	sort.Strings(out)

	return out
}

func (t *Tracker) relPath(path string) string {
	rel, err := filepath.Rel(t.opts.Root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.Base(path)
	}

	return rel
}
