// Package confkit holds the small helpers shared by the config loaders: path
// resolution relative to the main config file, per-section files and .env
// discovery.
package confkit

import (
	"fmt"
	"os"
	"path/filepath"
)

// ResolvePath expands environment variables in file and anchors it at base
// unless it is already absolute.
func ResolvePath(base, file string) string {
	file = os.ExpandEnv(file)
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(base, file)
}

// BaseDir returns the directory holding the main config file.
func BaseDir(mainPath string) string {
	return filepath.Dir(mainPath)
}

// Open loads .env once and opens the config file for the named section.
func Open(section, path string) (*os.File, error) {
	LoadDotenvOnce()
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s config: %w", section, err)
	}
	return file, nil
}

// Section is a config block kept in its own file, referenced from the main
// config by File. Value is filled by Hydrate.
type Section[T any] struct {
	File  string `json:",optional"`
	Value *T     `json:"-"`
}

// Hydrate loads File through loader. An empty File leaves the section unset.
// On success File is replaced by the resolved path.
func (s *Section[T]) Hydrate(base string, loader func(string) (*T, error)) error {
	if s.File == "" {
		return nil
	}
	p := ResolvePath(base, s.File)
	v, err := loader(p)
	if err != nil {
		return err
	}
	s.File, s.Value = p, v
	return nil
}

// Loaded reports whether Hydrate produced a value.
func (s *Section[T]) Loaded() bool {
	return s != nil && s.Value != nil
}
