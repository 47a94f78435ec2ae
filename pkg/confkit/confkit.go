// Package confkit holds the small pieces of configuration plumbing shared
// by every config loader: per-package section hydration, project-root path
// resolution, and .env bootstrap.
package confkit

import (
	"os"
	"path/filepath"
)

// Section points the top-level config at a per-package YAML file. The raw
// config carries only File; Value is filled during hydration. Tests set
// Value directly and skip the file indirection.
type Section[T any] struct {
	File  string `json:",optional"`
	Value *T     `json:"-"`
}

// Hydrate runs loader on the section's file, resolved against base when
// relative, and stores the result in Value. A section without a File is
// left empty; the consumer decides whether that is an error.
func (s *Section[T]) Hydrate(base string, loader func(string) (*T, error)) error {
	if s.File == "" {
		return nil
	}

	path := os.ExpandEnv(s.File)
	if !filepath.IsAbs(path) {
		path = filepath.Join(base, path)
	}

	v, err := loader(path)
	if err != nil {
		return err
	}
	s.File, s.Value = path, v
	return nil
}
