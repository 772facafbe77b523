// Package config loads the optional rombp.toml file that supplies
// defaults for flags the CLI doesn't receive explicitly.
package config

import (
	"os"

	"github.com/BurntSushi/toml"
	pkgerrors "github.com/pkg/errors"
)

// File is the parsed shape of rombp.toml. CLI flags always win over
// these values; these values always win over the zero-value built-in
// defaults.
type File struct {
	NoProgress bool `toml:"no_progress"`
	Verbose    bool `toml:"verbose"`
	// Theme overrides comm's autodetected charset ("unicode", "ascii",
	// or "cp437") via comm.SetTheme. Left empty, comm keeps autodetecting
	// from the locale the way it always has.
	Theme string `toml:"theme"`
}

// Load parses path as TOML. A missing file is not an error — it
// returns the zero File so callers can fall back to built-in defaults
// without special-casing "no config given" versus "empty config".
func Load(path string) (File, error) {
	if path == "" {
		return File{}, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return File{}, nil
	}

	var f File
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return File{}, pkgerrors.Wrapf(err, "config: parse %s", path)
	}
	return f, nil
}
