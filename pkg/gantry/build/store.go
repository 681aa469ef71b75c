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

package build

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	gErrors "github.com/gantry-ci/gantry/pkg/gantry/errors"
	"github.com/gantry-ci/gantry/pkg/gantry/logfile"
	"github.com/gantry-ci/gantry/pkg/gantry/output/log"
	"github.com/gantry-ci/gantry/pkg/gantry/util"
)

// Store persists build tasks, one JSON file per task plus an append-only
// log file next to it.
type Store struct {
	dir string

	mu      sync.RWMutex
	records map[string]*Task
}

// TaskFilter narrows ListByPipeline.
type TaskFilter struct {
	Source TriggerSource
	Status Status
	Limit  int
	Offset int
}

// NewStore loads every task under dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating build tasks directory: %w", err)
	}

	s := &Store{
		dir:     dir,
		records: map[string]*Task{},
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading build task %s: %w", entry.Name(), err)
		}
		var task Task
		if err := json.Unmarshal(data, &task); err != nil {
			return nil, fmt.Errorf("parsing build task %s: %w", entry.Name(), err)
		}
		s.records[task.ID] = &task
	}
	return s, nil
}

// SweepStale fails every task the previous process left in pending or
// running. Called once at boot, before the scheduler starts.
func (s *Store) SweepStale(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	swept := 0
	for _, task := range s.records {
		if task.Status != StatusPending && task.Status != StatusRunning {
			continue
		}
		now := time.Now()
		task.Status = StatusFailed
		task.Error = "process restarted"
		task.CompletedAt = &now
		if err := s.persist(task); err != nil {
			log.Entry(ctx).Warnf("sweeping stale task %s: %v", task.ID, err)
			continue
		}
		swept++
	}
	if swept > 0 {
		log.Entry(ctx).Infof("Marked %d interrupted build task(s) as failed", swept)
	}
	return swept
}

// Get returns a copy of the task with the given id.
func (s *Store) Get(id string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.records[id]
	if !ok {
		return nil, gErrors.Newf(gErrors.NotFound, "build task %q not found", id)
	}
	copied := *task
	return &copied, nil
}

// Save persists a new task.
func (s *Store) Save(task *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[task.ID]; exists {
		return gErrors.Newf(gErrors.Conflict, "build task %q already exists", task.ID)
	}
	copied := *task
	if err := s.persist(&copied); err != nil {
		return err
	}
	s.records[task.ID] = &copied
	return nil
}

// Mutate applies fn to the stored task atomically. Illegal transitions out
// of a terminal status are rejected, so terminal states stay write-once.
func (s *Store) Mutate(id string, fn func(task *Task)) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, ok := s.records[id]
	if !ok {
		return nil, gErrors.Newf(gErrors.NotFound, "build task %q not found", id)
	}

	copied := *previous
	fn(&copied)
	copied.ID = previous.ID

	if previous.Status.Terminal() && copied.Status != previous.Status {
		return nil, gErrors.Newf(gErrors.Conflict, "build task %q is already %s", id, previous.Status)
	}

	if err := s.persist(&copied); err != nil {
		return nil, err
	}
	s.records[id] = &copied
	result := copied
	return &result, nil
}

// Delete removes a task and its log. Active tasks must be stopped first.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.records[id]
	if !ok {
		return gErrors.Newf(gErrors.NotFound, "build task %q not found", id)
	}
	if !task.Status.Terminal() {
		return gErrors.Newf(gErrors.Conflict, "build task %q is %s; stop it before deleting", id, task.Status)
	}

	if err := os.Remove(s.file(id)); err != nil && !os.IsNotExist(err) {
		return err
	}
	os.Remove(s.logFile(task))
	delete(s.records, id)
	return nil
}

// ListByPipeline returns the pipeline's tasks ordered newest first, after
// filtering, plus the filtered total. Ad-hoc tasks live under the empty
// pipeline id.
func (s *Store) ListByPipeline(pipelineID string, filter TaskFilter) ([]*Task, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var list []*Task
	for _, task := range s.records {
		if task.PipelineID != pipelineID {
			continue
		}
		if filter.Source != "" && task.Source != filter.Source {
			continue
		}
		if filter.Status != "" && task.Status != filter.Status {
			continue
		}
		copied := *task
		list = append(list, &copied)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID > list[j].ID
	})

	total := len(list)
	if filter.Offset > 0 {
		if filter.Offset >= len(list) {
			return nil, total
		}
		list = list[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(list) {
		list = list[:filter.Limit]
	}
	return list, total
}

// DissociatePipeline clears the pipeline reference of the pipeline's tasks.
// Called when a pipeline is deleted; history survives as ad-hoc records.
func (s *Store) DissociatePipeline(pipelineID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, task := range s.records {
		if task.PipelineID != pipelineID {
			continue
		}
		task.PipelineID = ""
		if err := s.persist(task); err != nil {
			log.Entry(context.TODO()).Warnf("dissociating task %s: %v", task.ID, err)
		}
	}
}

// OpenLog creates (or truncates) the task's log file for the single writer.
func (s *Store) OpenLog(task *Task) (*logfile.Logger, error) {
	return logfile.Create(s.dir, task.LogPath)
}

// ReadLog opens the task's log for reading. Safe while a writer appends.
func (s *Store) ReadLog(id string) (*os.File, error) {
	task, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(s.logFile(task))
	if os.IsNotExist(err) {
		return nil, gErrors.Newf(gErrors.NotFound, "no log for build task %q", id)
	}
	return f, err
}

func (s *Store) persist(task *Task) error {
	data, err := json.MarshalIndent(task, "", "  ")
	if err != nil {
		return err
	}
	return util.AtomicWriteFile(s.file(task.ID), data, 0600)
}

func (s *Store) file(id string) string {
	return filepath.Join(s.dir, util.SanitizeName(id)+".json")
}

func (s *Store) logFile(task *Task) string {
	return filepath.Join(s.dir, util.SanitizeName(task.LogPath))
}
