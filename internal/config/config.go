// Package config reads the three YAML surfaces of a run: the rootset
// configuration named by --config, the optional per-volume metadata file and
// the optional per-slide metadata file. It also loads the optional TOML
// defaults file shared across runs.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultKeyword names the slides container directory within each volume.
const DefaultKeyword = "Slides"

// VolumeMetaFile is the optional metadata file at a volume's root.
const VolumeMetaFile = ".volume.yml"

// SlideMetaFile is the optional metadata file inside a slide folder.
const SlideMetaFile = ".slide.yml"

// Rootset is one --config file's worth of scanning instructions: the roots
// to walk, the container keyword and an optional trace path template.
type Rootset struct {
	Roots   []string `yaml:"roots"`
	Keyword string   `yaml:"keyword"`
	Trace   string   `yaml:"trace"`
}

// Load reads and validates a rootset configuration file.
func Load(path string) (Rootset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rootset{}, fmt.Errorf("read config %s: %w", path, err)
	}

	var rs Rootset
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return Rootset{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	if len(rs.Roots) == 0 {
		return Rootset{}, fmt.Errorf("config %s: %w", path, errors.New("no roots configured"))
	}
	if rs.Keyword == "" {
		rs.Keyword = DefaultKeyword
	}
	return rs, nil
}

// VolumeMeta is the parsed contents of a .volume.yml file.
type VolumeMeta struct {
	Name     string `yaml:"name"`
	Disabled bool   `yaml:"disabled"`
}

// ReadVolumeMeta parses the metadata file at path. A missing file yields the
// zero value and no error; a malformed file is an error so the discoverer
// can report and skip the candidate.
func ReadVolumeMeta(path string) (VolumeMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return VolumeMeta{}, nil
		}
		return VolumeMeta{}, fmt.Errorf("read volume meta %s: %w", path, err)
	}

	var m VolumeMeta
	if err := yaml.Unmarshal(data, &m); err != nil {
		return VolumeMeta{}, fmt.Errorf("parse volume meta %s: %w", path, err)
	}
	return m, nil
}

// SlideMeta is the parsed contents of a .slide.yml file.
type SlideMeta struct {
	Route string `yaml:"route"`
}

// ReadSlideMeta parses the metadata file at path. A missing file yields the
// zero value and no error.
func ReadSlideMeta(path string) (SlideMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return SlideMeta{}, nil
		}
		return SlideMeta{}, fmt.Errorf("read slide meta %s: %w", path, err)
	}

	var m SlideMeta
	if err := yaml.Unmarshal(data, &m); err != nil {
		return SlideMeta{}, fmt.Errorf("parse slide meta %s: %w", path, err)
	}
	return m, nil
}
