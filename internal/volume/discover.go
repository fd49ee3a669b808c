package volume

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bitslides/bitslides/internal/config"
	"github.com/bitslides/bitslides/internal/platform"
)

// Identify walks the configured roots and returns the live volumes with
// their slides indexed. Per-candidate failures are logged and skipped; a
// failing root does not stop the others. On platforms with lettered drives
// the live drives are considered as additional volume candidates.
func Identify(keyword string, roots []string) map[string]*Volume {
	volumes := make(map[string]*Volume)

	for _, root := range roots {
		if err := discoverRoot(root, keyword, volumes); err != nil {
			slog.Warn("skipping root", "root", root, "error", err)
		}
	}

	for _, drive := range platform.DriveRoots() {
		v, err := FromPath(drive, keyword)
		if err != nil {
			slog.Warn("skipping drive", "drive", drive, "error", err)
			continue
		}
		if v != nil {
			addVolume(volumes, v)
		}
	}

	for _, v := range volumes {
		if err := IndexSlides(v); err != nil {
			slog.Warn("indexing slides failed", "volume", v.Name, "error", err)
		}
	}

	return volumes
}

func discoverRoot(root, keyword string, volumes map[string]*Volume) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("read root %s: %w", root, err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		candidate := filepath.Join(root, entry.Name())
		v, err := FromPath(candidate, keyword)
		if err != nil {
			slog.Warn("skipping candidate", "path", candidate, "error", err)
			continue
		}
		if v != nil {
			addVolume(volumes, v)
		}
	}

	return nil
}

// FromPath inspects one candidate directory. It returns nil (and no error)
// when the candidate carries no slides container, a Volume when it does, and
// an error when the candidate's metadata is unreadable or malformed. A
// volume declared disabled is reported as absent.
func FromPath(candidate, keyword string) (*Volume, error) {
	info, err := os.Stat(filepath.Join(candidate, keyword))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("probe %s: %w", candidate, err)
	}
	if !info.IsDir() {
		return nil, nil
	}

	name := filepath.Base(filepath.Clean(candidate))

	meta, err := config.ReadVolumeMeta(filepath.Join(candidate, config.VolumeMetaFile))
	if err != nil {
		return nil, err
	}
	if meta.Name != "" {
		name = meta.Name
	}
	if meta.Disabled {
		slog.Debug("volume disabled", "name", name, "path", candidate)
		return nil, nil
	}

	return New(name, keyword, candidate), nil
}

// addVolume records v unless its name is already taken, in which case the
// first occurrence wins and the duplicate is reported.
func addVolume(volumes map[string]*Volume, v *Volume) {
	if prev, ok := volumes[v.Name]; ok {
		slog.Warn("duplicate volume name, keeping first",
			"name", v.Name, "kept", prev.Path, "dropped", v.Path)
		return
	}
	volumes[v.Name] = v
}

// IndexSlides enumerates the slide subfolders of v's container and records a
// Slide per directory entry. Non-directory entries are ignored. A slide's
// optional .slide.yml supplies its route hint.
func IndexSlides(v *Volume) error {
	entries, err := os.ReadDir(v.ContainerPath())
	if err != nil {
		return fmt.Errorf("read container %s: %w", v.ContainerPath(), err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		path := filepath.Join(v.ContainerPath(), entry.Name())
		meta, err := config.ReadSlideMeta(filepath.Join(path, config.SlideMetaFile))
		if err != nil {
			slog.Warn("ignoring slide metadata", "slide", path, "error", err)
			meta = config.SlideMeta{}
		}

		v.AddSlide(&Slide{
			Name:  entry.Name(),
			Path:  path,
			Route: meta.Route,
		})
	}

	return nil
}
