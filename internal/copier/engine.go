package copier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"streamwatch/internal/conflict"
	"streamwatch/internal/logger"
	"streamwatch/internal/model"
	"streamwatch/internal/pipeline"
	"streamwatch/internal/util"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrVerifyMismatch = errors.New("verification failed: SHA-256 mismatch")
	ErrSizeMismatch   = errors.New("post-copy size mismatch")
)

type Options struct {
	DestinationRoot string
	MirrorSubdirs   bool
	Verify          bool
	RetryDelay      time.Duration
	Workers         int
	Admission       *pipeline.Admission
}

// Engine runs copy jobs from the queue on a fixed pool of workers. A job stays
// with the worker that picked it up until it reaches a terminal record.
type Engine struct {
	opts     Options
	resolver *conflict.Resolver
	queue    <-chan model.CopyJob
	results  chan model.CopyRecord

	onStart func(model.CopyJob)
	active  atomic.Int32

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	cancel   context.CancelFunc

	copyFile func(ctx context.Context, src, dst string) (int64, error)
	checksum func(path string) ([]byte, error)
	exists   func(path string) bool
	now      func() time.Time
}

func NewEngine(opts Options, resolver *conflict.Resolver, queue <-chan model.CopyJob) *Engine {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Admission == nil {
		opts.Admission = &pipeline.Admission{}
	}

	return &Engine{
		opts:     opts,
		resolver: resolver,
		queue:    queue,
		results:  make(chan model.CopyRecord, max(cap(queue), opts.Workers)),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
		copyFile: util.CopyFile,
		checksum: util.FileChecksum,
		exists:   util.Exists,
		now:      time.Now,
	}
}

// OnStart registers a hook called when a worker takes ownership of a job.
// Must be set before Start.
func (e *Engine) OnStart(fn func(model.CopyJob)) {
	e.onStart = fn
}

func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)

	g, gctx := errgroup.WithContext(ctx)
	for i := range e.opts.Workers {
		g.Go(func() error {
			e.worker(gctx, i)
			return nil
		})
	}

	go func() {
		_ = g.Wait()
		close(e.results)
		close(e.done)
	}()

	logger.Log.Info("copy engine started",
		zap.Int("workers", e.opts.Workers),
		zap.Bool("verify", e.opts.Verify))
}

// Results yields one record per terminal job outcome and is closed once all
// workers have exited.
func (e *Engine) Results() <-chan model.CopyRecord {
	return e.results
}

func (e *Engine) Active() int {
	return int(e.active.Load())
}

// Shutdown stops workers from taking new jobs and waits up to grace for
// in-flight jobs. After that in-flight copies are cancelled and produce no
// record. Reports whether everything drained in time.
func (e *Engine) Shutdown(grace time.Duration) bool {
	e.stopOnce.Do(func() { close(e.stopCh) })

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-e.done:
		return true
	case <-timer.C:
		logger.Log.Warn("copy engine grace period expired, cancelling in-flight copies",
			zap.Int("active", e.Active()))
		e.cancel()
		<-e.done
		return false
	}
}

func (e *Engine) worker(ctx context.Context, id int) {
	for {
		select {
		case <-e.stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case job, ok := <-e.queue:
			if !ok {
				return
			}

			record, ok := e.execute(ctx, job)
			if !ok {
				logger.Log.Warn("copy abandoned at shutdown",
					zap.Int("worker", id),
					zap.String("src", job.SourcePath))
				return
			}

			select {
			case e.results <- record:
			case <-ctx.Done():
				return
			}
		}
	}
}

type attemptResult struct {
	outcome      model.Outcome
	dest         string
	size         int64
	verification model.Verification
	reason       model.Reason
	err          error
	terminal     bool
}

// execute runs every attempt of job. It returns false only when ctx was
// cancelled before the job reached a terminal outcome.
func (e *Engine) execute(ctx context.Context, job model.CopyJob) (model.CopyRecord, bool) {
	e.active.Add(1)
	defer e.active.Add(-1)

	if e.onStart != nil {
		e.onStart(job)
	}

	record := model.CopyRecord{
		ID:           uuid.NewString(),
		JobID:        job.ID,
		SourcePath:   job.SourcePath,
		Episode:      job.Episode,
		Snapshot:     job.Snapshot,
		Verification: model.VerifyNotAttempted,
	}

	var (
		res     attemptResult
		held    claim
		started time.Time
	)
	defer func() {
		if held.path != "" {
			e.resolver.Release(held.path)
		}
	}()

	for job.Attempt = 1; job.Attempt <= job.MaxAttempts; job.Attempt++ {
		started = e.now()
		logger.Log.Info("copying",
			zap.String("job", job.ID),
			zap.String("src", job.SourcePath),
			zap.Int("attempt", job.Attempt),
			zap.Int("max_attempts", job.MaxAttempts))

		res = e.attempt(ctx, job, &held)
		if res.terminal {
			break
		}

		if ctx.Err() != nil {
			return model.CopyRecord{}, false
		}

		logger.Log.Warn("copy attempt failed",
			zap.String("job", job.ID),
			zap.String("src", job.SourcePath),
			zap.Int("attempt", job.Attempt),
			zap.Error(res.err))

		if job.Attempt < job.MaxAttempts && !e.wait(ctx) {
			return model.CopyRecord{}, false
		}
	}

	record.Attempts = min(job.Attempt, job.MaxAttempts)
	record.DestPath = res.dest
	record.Size = res.size
	record.Verification = res.verification
	record.Reason = res.reason
	record.Timestamp = e.now()
	record.Duration = record.Timestamp.Sub(started)

	if res.terminal {
		record.Outcome = res.outcome
	} else {
		record.Outcome = model.OutcomeFailed
	}
	if res.err != nil {
		record.Error = res.err.Error()
	}

	e.logRecord(record)
	return record, true
}

func (e *Engine) wait(ctx context.Context) bool {
	if e.opts.RetryDelay <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(e.opts.RetryDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// claim is the destination a job resolved and still holds across attempts.
// written is set once a copy of this job landed there.
type claim struct {
	path    string
	written bool
}

// attempt performs one pass of filter re-check, collision resolution, copy
// and verification. A destination held from an earlier attempt is reused
// unless something else has created it since.
func (e *Engine) attempt(ctx context.Context, job model.CopyJob, held *claim) attemptResult {
	res := attemptResult{verification: model.VerifyNotAttempted}

	info, err := os.Stat(job.SourcePath)
	if err != nil {
		res.reason = model.ReasonIO
		res.err = fmt.Errorf("failed to stat src: %w", err)
		return res
	}
	res.size = info.Size()

	if ok, reason := e.opts.Admission.Admit(job.SourcePath, info.Size()); !ok {
		res.terminal = true
		res.outcome = model.OutcomeSkipped
		res.reason = model.ReasonFiltered
		res.err = errors.New(reason)
		return res
	}

	dst := e.destination(job)
	res.dest = dst

	if held.path != "" && !held.written && e.exists(held.path) {
		logger.Log.Info("held destination taken meanwhile, resolving again",
			zap.String("job", job.ID),
			zap.String("dst", held.path))
		e.resolver.Release(held.path)
		*held = claim{}
	}

	if held.path == "" {
		decision, err := e.resolver.Resolve(dst)
		if err != nil {
			res.terminal = true
			res.outcome = model.OutcomeSkipped
			res.reason = model.ReasonUnresolvable
			res.err = err
			return res
		}

		if decision.Action == conflict.ActionSkip {
			res.terminal = true
			res.outcome = model.OutcomeSkipped
			res.reason = model.ReasonCollision
			res.err = fmt.Errorf("destination already exists: %s", dst)
			return res
		}

		held.path = decision.Path
	}

	target := held.path
	res.dest = target

	n, err := e.copyFile(ctx, job.SourcePath, target)
	if err != nil {
		res.reason = model.ReasonIO
		res.err = err
		return res
	}
	res.size = n
	held.written = true

	if !e.opts.Verify {
		dstInfo, err := os.Stat(target)
		if err != nil {
			res.reason = model.ReasonIO
			res.err = fmt.Errorf("failed to stat dst: %w", err)
			return res
		}
		if dstInfo.Size() != n {
			res.reason = model.ReasonIO
			res.err = fmt.Errorf("%w: wrote %d bytes, found %d", ErrSizeMismatch, n, dstInfo.Size())
			return res
		}

		res.terminal = true
		res.outcome = model.OutcomeCopied
		return res
	}

	srcSum, err := e.checksum(job.SourcePath)
	if err != nil {
		res.reason = model.ReasonIO
		res.err = fmt.Errorf("failed to hash src: %w", err)
		return res
	}

	dstSum, err := e.checksum(target)
	if err != nil {
		res.reason = model.ReasonIO
		res.err = fmt.Errorf("failed to hash dst: %w", err)
		return res
	}

	if !bytes.Equal(srcSum, dstSum) {
		res.verification = model.VerifyFailed
		res.reason = model.ReasonVerifyMismatch
		res.err = fmt.Errorf("%w (src=%x dst=%x)", ErrVerifyMismatch, srcSum[:min(6, len(srcSum))], dstSum[:min(6, len(dstSum))])
		return res
	}

	res.terminal = true
	res.outcome = model.OutcomeCopied
	res.verification = model.VerifyPassed
	return res
}

func (e *Engine) destination(job model.CopyJob) string {
	if e.opts.MirrorSubdirs && job.RelPath != "" {
		return filepath.Join(e.opts.DestinationRoot, job.RelPath)
	}

	return filepath.Join(e.opts.DestinationRoot, filepath.Base(job.SourcePath))
}

func (e *Engine) logRecord(r model.CopyRecord) {
	fields := []zap.Field{
		zap.String("job", r.JobID),
		zap.String("src", r.SourcePath),
		zap.String("dst", r.DestPath),
		zap.Int("attempts", r.Attempts),
		zap.Int64("size", r.Size),
		zap.Duration("duration", r.Duration),
		zap.String("verification", string(r.Verification)),
	}

	switch r.Outcome {
	case model.OutcomeCopied:
		logger.Log.Info("copied", fields...)
	case model.OutcomeSkipped:
		logger.Log.Info("skipped", append(fields,
			zap.String("reason", string(r.Reason)),
			zap.String("detail", r.Error))...)
	default:
		logger.Log.Error("copy failed", append(fields,
			zap.String("reason", string(r.Reason)),
			zap.String("error", r.Error))...)
	}
}
