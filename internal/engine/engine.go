// Package engine drains planned sync jobs: it walks each source slide,
// moves files into the receiving volume through staged, checksum-verified
// writes and tidies up what the drain leaves behind. Jobs run concurrently
// and a failed file never takes down its job, nor a failed job the run.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bitslides/bitslides/internal/event"
	"github.com/bitslides/bitslides/internal/plan"
	"github.com/bitslides/bitslides/internal/platform"
	"github.com/bitslides/bitslides/internal/stats"
	"github.com/bitslides/bitslides/internal/trace"
	"github.com/bitslides/bitslides/internal/volume"
)

// DefaultFileTimeout bounds how long a single file move may take.
const DefaultFileTimeout = 5 * time.Minute

// Config controls a run of the engine.
type Config struct {
	// Workers is the number of jobs drained concurrently.
	Workers int
	// FileWorkers is the number of files moved concurrently per job.
	FileWorkers int
	// Retries is the per-file retry budget for transient failures.
	Retries int
	// DryRun reports what would move without touching the filesystem.
	DryRun bool
	// Safe stages each copy in a hidden work-in-progress sibling that is
	// renamed into place only after verification. When off, copies stream
	// straight to their final name. The destination digest is checked
	// either way before the source is deleted.
	Safe bool
	// Collision selects behavior when the destination file exists.
	Collision Collision
	// Checksum selects the verification digest.
	Checksum Algorithm
	// BWLimit caps aggregate read throughput in bytes per second.
	// Zero means unlimited.
	BWLimit int64
	// FileTimeout bounds one file move attempt.
	FileTimeout time.Duration
	// Stats receives counters; a fresh collector is used when nil.
	Stats *stats.Collector
	// Trace receives the run's event stream. Nil disables tracing.
	Trace *trace.Tracer
}

// Result summarizes a run.
type Result struct {
	Jobs       int
	JobsFailed int
	Stats      stats.Snapshot
}

// Engine executes sync jobs against discovered volumes.
type Engine struct {
	cfg     Config
	limiter *rate.Limiter
	wip     *wipRegistry
}

// New validates cfg and prepares an engine.
func New(cfg Config) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.FileWorkers <= 0 {
		cfg.FileWorkers = 1
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.Collision == "" {
		cfg.Collision = CollisionDefault
	}
	if cfg.Checksum == "" {
		cfg.Checksum = SHA256
	}
	if cfg.FileTimeout == 0 {
		cfg.FileTimeout = DefaultFileTimeout
	}
	if cfg.Stats == nil {
		cfg.Stats = stats.NewCollector()
	}

	e := &Engine{cfg: cfg, wip: newWIPRegistry()}
	if cfg.BWLimit > 0 {
		e.limiter = NewBWLimiter(cfg.BWLimit)
	}
	return e
}

func (e *Engine) emit(ev event.Event) {
	e.cfg.Trace.Emit(ev)
}

// Run drains all jobs. Jobs are dispatched in their planned order across
// the worker pool, so direct deliveries start before routed ones. A
// cancelled context stops new work; files already staged are either
// finished or their staging removed, and no source file is deleted after
// cancellation.
func (e *Engine) Run(ctx context.Context, volumes map[string]*volume.Volume, jobs []*plan.SyncJob) (Result, error) {
	res := Result{Jobs: len(jobs)}

	queue := make(chan *plan.SyncJob)
	var (
		mu       sync.Mutex
		failed   int
		firstErr error
	)

	var wg sync.WaitGroup
	for i := 0; i < e.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range queue {
				if err := e.runJob(ctx, volumes, job); err != nil {
					mu.Lock()
					failed++
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
				}
			}
		}()
	}

	for _, job := range jobs {
		select {
		case queue <- job:
		case <-ctx.Done():
			// Jobs never dispatched still owe their trigger.
			if signal, terr := job.TakeTrigger(); terr == nil {
				close(signal)
			}
		}
	}
	close(queue)
	wg.Wait()

	// Remove staging files orphaned by cancellation.
	for _, p := range e.wip.active() {
		if err := os.Remove(p); err == nil || os.IsNotExist(err) {
			e.wip.remove(p)
		}
	}

	res.JobsFailed = failed
	res.Stats = e.cfg.Stats.Snapshot()

	if failed > 0 {
		return res, fmt.Errorf("%d of %d jobs failed: %w", failed, len(jobs), firstErr)
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

// runJob drains one slide. File failures are counted but do not abort the
// job; the job fails when its trigger was already taken, one of its volumes
// is not mounted, its tree cannot be walked, the run is cancelled or its
// cleanup passes error out.
func (e *Engine) runJob(ctx context.Context, volumes map[string]*volume.Volume, job *plan.SyncJob) (err error) {
	name := job.String()

	signal, terr := job.TakeTrigger()
	if terr != nil {
		return fmt.Errorf("job %s: %w", name, terr)
	}
	defer close(signal)

	e.emit(event.Event{Type: event.JobStarted, Job: name})
	defer func() {
		if err != nil {
			e.emit(event.Event{Type: event.JobFailed, Job: name, Err: err})
		} else {
			e.emit(event.Event{Type: event.JobCompleted, Job: name})
		}
	}()

	src, ok := volumes[job.Src]
	if !ok {
		return fmt.Errorf("job %s: source volume not mounted", name)
	}
	recv, ok := volumes[job.Via]
	if !ok {
		return fmt.Errorf("job %s: receiving volume not mounted", name)
	}

	srcRoot := src.SlidePath(job.Dst)
	dstRoot := recv.SlidePath(job.Dst)
	if srcRoot == dstRoot {
		return nil
	}

	e.checkFreeSpace(name, srcRoot, recv)

	if !e.cfg.DryRun {
		if err := e.sweepStaleWIP(name, dstRoot); err != nil {
			return err
		}
	}

	tasks := make(chan fileTask, e.cfg.FileWorkers*2)
	var (
		fileMu    sync.Mutex
		fileErrs  int
		firstFile error
	)

	var fwg sync.WaitGroup
	for i := 0; i < e.cfg.FileWorkers; i++ {
		fwg.Add(1)
		go func() {
			defer fwg.Done()
			for task := range tasks {
				if ctx.Err() != nil {
					continue
				}
				if ferr := e.moveFile(ctx, name, task); ferr != nil {
					fileMu.Lock()
					fileErrs++
					if firstFile == nil {
						firstFile = ferr
					}
					fileMu.Unlock()
				}
			}
		}()
	}

	_, walkErr := e.walkSlide(ctx, name, srcRoot, dstRoot, tasks)
	close(tasks)
	fwg.Wait()

	if walkErr != nil && !errors.Is(walkErr, context.Canceled) {
		return walkErr
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if fileErrs > 0 {
		slog.Warn("job finished with failed files",
			"job", name, "failed", fileErrs, "error", firstFile)
	}

	if !e.cfg.DryRun {
		if err := e.removeEmptyDirs(name, srcRoot); err != nil {
			return err
		}
	}
	return nil
}

// checkFreeSpace warns when the receiving volume looks too small for the
// slide's payload. Advisory only; moves proceed regardless because files
// drained during the run free space as they go.
func (e *Engine) checkFreeSpace(job, srcRoot string, recv *volume.Volume) {
	need := slideSize(srcRoot)
	if need == 0 {
		return
	}
	free, err := platform.FreeSpace(recv.Path)
	if err != nil {
		if !errors.Is(err, platform.ErrUnsupported) {
			slog.Debug("free space probe failed", "volume", recv.Name, "error", err)
		}
		return
	}
	if free < uint64(need) {
		slog.Warn("receiving volume may be short on space",
			"job", job, "volume", recv.Name, "need", need, "free", free)
	}
}
