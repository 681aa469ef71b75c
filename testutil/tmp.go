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

package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TempDir offers actions on a temp directory.
type TempDir struct {
	t    *testing.T
	root string
}

// NewTempDir creates a temporary directory and a teardown that removes it.
func NewTempDir(t *testing.T) *TempDir {
	root, err := os.MkdirTemp("", "gantry")
	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() {
		os.RemoveAll(root)
	})

	return &TempDir{
		t:    t,
		root: root,
	}
}

// Root returns the temp directory.
func (h *TempDir) Root() string {
	return h.root
}

// Remove deletes a file from the temp directory.
func (h *TempDir) Remove(file string) *TempDir {
	if err := os.Remove(h.Path(file)); err != nil {
		h.t.Fatal(err)
	}
	return h
}

// Chdir changes current directory to this temp directory.
func (h *TempDir) Chdir() *TempDir {
	pwd, err := os.Getwd()
	if err != nil {
		h.t.Fatal(err)
	}
	if err := os.Chdir(h.root); err != nil {
		h.t.Fatal(err)
	}
	h.t.Cleanup(func() {
		if err := os.Chdir(pwd); err != nil {
			h.t.Error(err)
		}
	})
	return h
}

// Mkdir makes a sub-directory.
func (h *TempDir) Mkdir(dir string) *TempDir {
	if err := os.MkdirAll(h.Path(dir), os.ModePerm); err != nil {
		h.t.Fatal(err)
	}
	return h
}

// Touch creates a list of empty files.
func (h *TempDir) Touch(files ...string) *TempDir {
	for _, file := range files {
		h.Write(file, "")
	}
	return h
}

// Write write content to a file.
func (h *TempDir) Write(file, content string) *TempDir {
	if err := os.MkdirAll(filepath.Dir(h.Path(file)), os.ModePerm); err != nil {
		h.t.Fatal(err)
	}
	if err := os.WriteFile(h.Path(file), []byte(content), os.ModePerm); err != nil {
		h.t.Fatal(err)
	}
	return h
}

// Symlink creates a symlink.
func (h *TempDir) Symlink(dst, link string) *TempDir {
	if err := os.Symlink(h.Path(dst), h.Path(link)); err != nil {
		h.t.Fatal(err)
	}
	return h
}

// Path returns the path to a file in the temp directory.
func (h *TempDir) Path(file string) string {
	elem := []string{h.root}
	elem = append(elem, strings.Split(file, "/")...)
	return filepath.Join(elem...)
}

// Paths returns the paths to a list of files in the temp directory.
func (h *TempDir) Paths(files ...string) []string {
	var paths []string
	for _, file := range files {
		paths = append(paths, h.Path(file))
	}
	return paths
}
