package engine

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/bitslides/bitslides/internal/event"
)

// ErrRetriesExhausted marks a file whose transient failures outlasted the
// retry budget.
var ErrRetriesExhausted = errors.New("retry budget exhausted")

// ErrCollision marks a file blocked by the fail collision policy.
var ErrCollision = errors.New("destination already exists")

// errTerminal wraps failures that retrying cannot fix, such as permission
// denials or a source that stopped being a regular file.
type errTerminal struct{ err error }

func (e errTerminal) Error() string { return e.err.Error() }
func (e errTerminal) Unwrap() error { return e.err }

func terminal(err error) error { return errTerminal{err: err} }

func isTerminal(err error) bool {
	var t errTerminal
	return errors.As(err, &t)
}

// moveFile relocates one file from task.SrcPath to task.DstPath. The
// source is deleted only after the destination copy's checksum has been
// verified against it. Returns nil when the file was moved or
// legitimately skipped.
func (e *Engine) moveFile(ctx context.Context, job string, task fileTask) error {
	e.emit(event.Event{Type: event.FileStarted, Job: job, Path: task.SrcPath,
		Detail: fmt.Sprintf("-> %s", task.DstPath)})

	if e.cfg.DryRun {
		e.cfg.Stats.AddFilesMoved(1)
		e.cfg.Stats.AddBytesMoved(task.Size)
		return nil
	}

	proceed, err := e.resolveCollision(job, task)
	if err != nil {
		e.cfg.Stats.AddFilesFailed(1)
		e.emit(event.Event{Type: event.FileFailed, Job: job, Path: task.SrcPath, Err: err})
		return err
	}
	if !proceed {
		return nil
	}

	var lastErr error
	for attempt := 0; attempt <= e.cfg.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if attempt > 0 {
			e.cfg.Stats.AddRetries(1)
			e.emit(event.Event{Type: event.Retry, Job: job, Path: task.SrcPath,
				Detail: fmt.Sprintf("attempt %d/%d", attempt+1, e.cfg.Retries+1), Err: lastErr})
		}

		lastErr = e.attemptMove(ctx, job, task)
		if lastErr == nil {
			e.cfg.Stats.AddFilesMoved(1)
			e.cfg.Stats.AddBytesMoved(task.Size)
			return nil
		}
		if isTerminal(lastErr) || errors.Is(lastErr, context.Canceled) ||
			errors.Is(lastErr, context.DeadlineExceeded) {
			break
		}
		if attempt == e.cfg.Retries {
			lastErr = fmt.Errorf("%w: %v", ErrRetriesExhausted, lastErr)
		}
	}

	e.cfg.Stats.AddFilesFailed(1)
	e.emit(event.Event{Type: event.FileFailed, Job: job, Path: task.SrcPath, Err: lastErr})
	return lastErr
}

// resolveCollision applies the collision policy when the destination file
// already exists. It reports whether the copy should proceed; a false
// return with nil error means the file was handled (skipped or deduped).
func (e *Engine) resolveCollision(job string, task fileTask) (bool, error) {
	if _, err := os.Lstat(task.DstPath); err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, fmt.Errorf("stat destination %s: %w", task.DstPath, err)
	}

	switch e.cfg.Collision {
	case CollisionSkip:
		e.cfg.Stats.AddFilesSkipped(1)
		e.emit(event.Event{Type: event.FileSkipped, Job: job, Path: task.SrcPath,
			Detail: "destination exists"})
		return false, nil

	case CollisionFail:
		return false, fmt.Errorf("%w: %s", ErrCollision, task.DstPath)

	case CollisionOverwrite:
		return true, nil

	default:
		srcSum, err := HashFile(e.cfg.Checksum, task.SrcPath)
		if err != nil {
			return false, err
		}
		dstSum, err := HashFile(e.cfg.Checksum, task.DstPath)
		if err != nil {
			return false, err
		}
		if srcSum != dstSum {
			return true, nil
		}
		// Identical payload already delivered; the source copy is
		// redundant.
		if err := os.Remove(task.SrcPath); err != nil {
			return false, fmt.Errorf("remove duplicate source %s: %w", task.SrcPath, err)
		}
		e.cfg.Stats.AddFilesSkipped(1)
		e.emit(event.Event{Type: event.FileSkipped, Job: job, Path: task.SrcPath,
			Detail: "identical at destination"})
		e.emit(event.Event{Type: event.SourceDeleted, Job: job, Path: task.SrcPath})
		return false, nil
	}
}

// attemptMove performs one copy-verify-finalize-delete cycle. In safe
// mode the copy lands in a hidden staging sibling and is renamed over the
// destination only after its digest matches; otherwise it streams
// straight to the final name and a failed verification removes the
// partial. Either way the source is deleted only after the destination
// bytes have been verified.
func (e *Engine) attemptMove(ctx context.Context, job string, task fileTask) error {
	if e.cfg.FileTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.FileTimeout)
		defer cancel()
	}

	info, err := os.Lstat(task.SrcPath)
	if err != nil {
		if os.IsNotExist(err) || os.IsPermission(err) {
			return terminal(fmt.Errorf("stat %s: %w", task.SrcPath, err))
		}
		return fmt.Errorf("stat %s: %w", task.SrcPath, err)
	}
	if !info.Mode().IsRegular() {
		return terminal(fmt.Errorf("%s is not a regular file", task.SrcPath))
	}

	src, err := os.Open(task.SrcPath)
	if err != nil {
		if os.IsPermission(err) {
			return terminal(fmt.Errorf("open %s: %w", task.SrcPath, err))
		}
		return fmt.Errorf("open %s: %w", task.SrcPath, err)
	}
	defer src.Close()

	committed := false
	writePath := task.DstPath
	if e.cfg.Safe {
		writePath = WIPName(task.DstPath)
		e.wip.add(writePath)
		defer func() {
			e.wip.remove(writePath)
			_ = os.Remove(writePath) // no-op once renamed into place
		}()
	} else {
		defer func() {
			if !committed {
				_ = os.Remove(writePath)
			}
		}()
	}

	out, err := os.OpenFile(writePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		if os.IsPermission(err) {
			return terminal(fmt.Errorf("create %s: %w", writePath, err))
		}
		return fmt.Errorf("create %s: %w", writePath, err)
	}

	srcSum, err := e.copyHashing(ctx, out, src)
	if err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", task.SrcPath, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", writePath, err)
	}

	dstSum, err := HashFile(e.cfg.Checksum, writePath)
	if err != nil {
		return err
	}
	if dstSum != srcSum {
		e.emit(event.Event{Type: event.ChecksumMismatch, Job: job, Path: task.SrcPath,
			Detail: fmt.Sprintf("want %s got %s", srcSum, dstSum)})
		return fmt.Errorf("checksum mismatch for %s", task.SrcPath)
	}
	e.emit(event.Event{Type: event.ChecksumOK, Job: job, Path: task.DstPath, Detail: dstSum})

	if e.cfg.Safe {
		if err := os.Rename(writePath, task.DstPath); err != nil {
			return fmt.Errorf("rename %s -> %s: %w", writePath, task.DstPath, err)
		}
		e.emit(event.Event{Type: event.Renamed, Job: job, Path: task.DstPath})
	}
	committed = true

	// Once cancellation is requested the destination copy stays, but the
	// source is preserved so an interrupted run never loses data.
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(task.SrcPath); err != nil {
		return fmt.Errorf("remove source %s: %w", task.SrcPath, err)
	}
	e.emit(event.Event{Type: event.SourceDeleted, Job: job, Path: task.SrcPath})
	return nil
}

// copyHashing streams src into dst while hashing the bytes read, so the
// source digest comes for free with the copy.
func (e *Engine) copyHashing(ctx context.Context, dst io.Writer, src io.Reader) (string, error) {
	h := e.cfg.Checksum.newHasher()

	var r io.Reader = io.TeeReader(src, h)
	if e.limiter != nil {
		r = newRateLimitedReader(ctx, r, e.limiter)
	}

	buf := make([]byte, 32*1024)
	if _, err := io.CopyBuffer(dst, r, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
