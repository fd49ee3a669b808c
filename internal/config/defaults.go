package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Defaults holds persistent flag defaults from the optional user config.
type Defaults struct {
	Workers     *int    `toml:"workers"`
	FileWorkers *int    `toml:"file_workers"`
	Retries     *int    `toml:"retries"`
	Checksum    *string `toml:"checksum"`
	Collision   *string `toml:"collision"`
	Safe        *bool   `toml:"safe"`
	BWLimit     *string `toml:"bwlimit"`
}

// DefaultsPath returns the resolved path to the defaults file.
func DefaultsPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "bitslides", "defaults.toml")
}

// LoadDefaults reads the defaults file from the XDG path. Returns a zero
// Defaults (no error) if the file does not exist. Defaults are always
// optional.
func LoadDefaults() (Defaults, error) {
	path := DefaultsPath()
	if path == "" {
		return Defaults{}, nil
	}

	var d Defaults
	_, err := toml.DecodeFile(path, &d)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Defaults{}, nil
		}
		return Defaults{}, err
	}
	return d, nil
}
