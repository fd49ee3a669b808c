// Package volume models the on-disk topology: a volume is any directory that
// carries a slides container, and each named subfolder of that container is a
// slide addressed to the volume of the same name.
package volume

import (
	"fmt"
	"os"
	"path/filepath"
)

// Volume is a mounted storage location holding a slides container.
// Immutable after discovery, except for slides materialized by the planner.
type Volume struct {
	// Name is the declared volume name: the .volume.yml override when
	// present, otherwise the folder basename.
	Name string
	// Keyword is the slides container directory name (default "Slides").
	Keyword string
	// Path is the absolute volume root, e.g. /mnt/volumes/Laptop.
	Path string
	// Slides indexes the slide subfolders by target volume name. The
	// volume's own inbox appears here under its own name.
	Slides map[string]*Slide
}

// Slide is a named subdirectory of a slides container. Its name is the
// volume its contents are addressed to.
type Slide struct {
	// Name of the destination volume.
	Name string
	// Path to the slide folder, e.g. /mnt/volumes/Laptop/Slides/Pendrive.
	Path string
	// Route optionally names an intermediate volume to hop through when
	// the destination is not mounted.
	Route string
}

// New constructs a Volume with an empty slide index.
func New(name, keyword, path string) *Volume {
	return &Volume{
		Name:    name,
		Keyword: keyword,
		Path:    path,
		Slides:  make(map[string]*Slide),
	}
}

// ContainerPath returns the volume's slides container directory.
func (v *Volume) ContainerPath() string {
	return filepath.Join(v.Path, v.Keyword)
}

// SlidePath returns the path of the slide addressed to name, whether or not
// it currently exists.
func (v *Volume) SlidePath(name string) string {
	return filepath.Join(v.Path, v.Keyword, name)
}

// AddSlide records a slide in the volume's index.
func (v *Volume) AddSlide(s *Slide) {
	v.Slides[s.Name] = s
}

// CreateSlide materializes the slide folder addressed to name and records
// it. Used by the planner when a job targets a slide that does not exist on
// the receiving volume yet.
func (v *Volume) CreateSlide(name string) (*Slide, error) {
	path := v.SlidePath(name)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create slide %s on %s: %w", name, v.Name, err)
	}
	s := &Slide{Name: name, Path: path}
	v.AddSlide(s)
	return s, nil
}
