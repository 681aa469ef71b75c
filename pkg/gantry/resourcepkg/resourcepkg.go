/*
Copyright 2026 The Gantry Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package resourcepkg stores named file bundles that builds inject into
// their workspace. A package is either a directory or a gzipped tarball
// under the store root.
package resourcepkg

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	cp "github.com/otiai10/copy"

	gErrors "github.com/gantry-ci/gantry/pkg/gantry/errors"
	"github.com/gantry-ci/gantry/pkg/gantry/util"
)

const tarSuffix = ".tar.gz"

// Package describes one stored resource package.
type Package struct {
	ID        string    `json:"id"`
	Archive   bool      `json:"archive"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store manages packages under a single root directory.
type Store struct {
	root string
}

// NewStore returns a store rooted at root, creating it if needed.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating resource package root: %w", err)
	}
	return &Store{root: root}, nil
}

// List enumerates stored packages ordered by id.
func (s *Store) List() ([]Package, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("listing resource packages: %w", err)
	}

	var list []Package
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		switch {
		case e.IsDir():
			list = append(list, Package{ID: e.Name(), UpdatedAt: info.ModTime()})
		case strings.HasSuffix(e.Name(), tarSuffix):
			list = append(list, Package{
				ID:        strings.TrimSuffix(e.Name(), tarSuffix),
				Archive:   true,
				UpdatedAt: info.ModTime(),
			})
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

// SaveArchive stores the gzipped tarball read from r as package id,
// replacing any previous content.
func (s *Store) SaveArchive(id string, r io.Reader) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := s.remove(id); err != nil {
		return err
	}

	dst := filepath.Join(s.root, id+tarSuffix)
	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("creating resource package %q: %w", id, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(dst)
		return fmt.Errorf("writing resource package %q: %w", id, err)
	}
	return f.Close()
}

// Delete removes package id.
func (s *Store) Delete(id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	if !s.exists(id) {
		return gErrors.Newf(gErrors.NotFound, "resource package %q not found", id)
	}
	return s.remove(id)
}

// ExtractTo materializes package id under dst, creating dst if needed.
func (s *Store) ExtractTo(id string, dst string) error {
	if err := validateID(id); err != nil {
		return err
	}

	dir := filepath.Join(s.root, id)
	if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
		if err := cp.Copy(dir, dst); err != nil {
			return fmt.Errorf("copying resource package %q: %w", id, err)
		}
		return nil
	}

	archive := filepath.Join(s.root, id+tarSuffix)
	f, err := os.Open(archive)
	if os.IsNotExist(err) {
		return gErrors.Newf(gErrors.NotFound, "resource package %q not found", id)
	}
	if err != nil {
		return fmt.Errorf("opening resource package %q: %w", id, err)
	}
	defer f.Close()

	if err := os.MkdirAll(dst, 0755); err != nil {
		return err
	}
	if err := util.ExtractTarGz(f, dst); err != nil {
		return fmt.Errorf("extracting resource package %q: %w", id, err)
	}
	return nil
}

func (s *Store) exists(id string) bool {
	if fi, err := os.Stat(filepath.Join(s.root, id)); err == nil && fi.IsDir() {
		return true
	}
	if _, err := os.Stat(filepath.Join(s.root, id + tarSuffix)); err == nil {
		return true
	}
	return false
}

func (s *Store) remove(id string) error {
	if err := os.RemoveAll(filepath.Join(s.root, id)); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.root, id+tarSuffix)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func validateID(id string) error {
	if id == "" {
		return gErrors.New(gErrors.Validation, "resource package id is required")
	}
	if id != util.SanitizeName(id) || strings.Contains(id, "..") {
		return gErrors.Newf(gErrors.Validation, "invalid resource package id %q", id)
	}
	return nil
}
