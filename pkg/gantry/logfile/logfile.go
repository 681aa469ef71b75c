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

package logfile

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// Logger is the single writer of one task's log file. Readers may tail the
// file while it is being appended to.
type Logger struct {
	File *os.File
}

// Create creates or truncates a log file under root.
func Create(root string, path ...string) (*Logger, error) {
	logfile := root
	for _, p := range path {
		logfile = filepath.Join(logfile, escape(p))
	}

	dir := filepath.Dir(logfile)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("unable to create log directory %q: %w", dir, err)
	}

	f, err := os.OpenFile(logfile, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	return &Logger{f}, err
}

// Append opens a log file under root for appending, creating it if needed.
func Append(root string, path ...string) (*Logger, error) {
	logfile := root
	for _, p := range path {
		logfile = filepath.Join(logfile, escape(p))
	}

	dir := filepath.Dir(logfile)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("unable to create log directory %q: %w", dir, err)
	}

	f, err := os.OpenFile(logfile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	return &Logger{f}, err
}

var escapeRegexp = regexp.MustCompile(`[^a-zA-Z0-9-_.]`)

func escape(s string) string {
	return escapeRegexp.ReplaceAllString(s, "-")
}

func (l *Logger) Name() string {
	return l.File.Name()
}

func (l *Logger) Close() error {
	return l.File.Close()
}

func (l *Logger) Write(b []byte) (int, error) {
	return l.File.Write(b)
}

// Sync flushes pending writes so concurrent readers observe them.
func (l *Logger) Sync() error {
	return l.File.Sync()
}
