package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bitslides/bitslides/internal/event"
)

// sweepStaleWIP removes staging files under root left behind by an
// interrupted run. Fresh staging files belonging to the current run are
// registered and therefore skipped.
func (e *Engine) sweepStaleWIP(job, root string) error {
	current := make(map[string]struct{})
	for _, p := range e.wip.active() {
		current[p] = struct{}{}
	}

	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !IsWIPName(d.Name()) {
			return nil
		}
		if _, ours := current[path]; ours {
			return nil
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("remove stale staging %s: %w", path, err)
		}
		e.cfg.Stats.AddWipCleaned(1)
		e.emit(event.Event{Type: event.WipCleaned, Job: job, Path: path})
		return nil
	})
}

// removeEmptyDirs deletes directories under root that a drained job left
// empty, deepest first so parents empty out as children disappear. The
// root itself is the slide folder and always survives.
func (e *Engine) removeEmptyDirs(job, root string) error {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && path != root {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk %s: %w", root, err)
	}

	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("read dir %s: %w", dir, err)
		}
		if len(entries) > 0 {
			continue
		}
		if err := os.Remove(dir); err != nil {
			return fmt.Errorf("remove dir %s: %w", dir, err)
		}
		e.cfg.Stats.AddDirsRemoved(1)
		e.emit(event.Event{Type: event.DirRemoved, Job: job, Path: dir})
	}
	return nil
}
