package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bitslides/bitslides/internal/config"
	"github.com/bitslides/bitslides/internal/event"
)

// fileTask is one file movement within a job.
type fileTask struct {
	SrcPath string
	DstPath string
	Size    int64
}

// walkSlide traverses the source slide tree iteratively, mirroring
// directories under dstRoot as it goes and sending a task per regular
// file. Slide metadata and staging leftovers are never moved. Returns the
// total payload size queued.
func (e *Engine) walkSlide(ctx context.Context, job, srcRoot, dstRoot string, tasks chan<- fileTask) (int64, error) {
	var total int64

	stack := []string{""}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		rel := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		srcDir := filepath.Join(srcRoot, rel)
		dstDir := filepath.Join(dstRoot, rel)

		if rel != "" && !e.cfg.DryRun {
			if err := os.MkdirAll(dstDir, 0o755); err != nil {
				return total, fmt.Errorf("mkdir %s: %w", dstDir, err)
			}
			e.cfg.Stats.AddDirsCreated(1)
			e.emit(event.Event{Type: event.MkDir, Job: job, Path: dstDir})
		}

		entries, err := os.ReadDir(srcDir)
		if err != nil {
			return total, fmt.Errorf("read dir %s: %w", srcDir, err)
		}

		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() {
				stack = append(stack, filepath.Join(rel, name))
				continue
			}
			if rel == "" && name == config.SlideMetaFile {
				continue
			}
			if IsWIPName(name) {
				continue
			}

			info, err := entry.Info()
			if err != nil {
				return total, fmt.Errorf("stat %s: %w", filepath.Join(srcDir, name), err)
			}

			total += info.Size()
			task := fileTask{
				SrcPath: filepath.Join(srcDir, name),
				DstPath: filepath.Join(dstDir, name),
				Size:    info.Size(),
			}
			select {
			case tasks <- task:
			case <-ctx.Done():
				return total, ctx.Err()
			}
		}
	}

	return total, nil
}

// slideSize sums the payload bytes under root without queueing work. Used
// for the pre-flight free space check.
func slideSize(root string) int64 {
	var total int64
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, ierr := d.Info(); ierr == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}
