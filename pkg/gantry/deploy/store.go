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

package deploy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gantry-ci/gantry/pkg/gantry/deploy/schema"
	gErrors "github.com/gantry-ci/gantry/pkg/gantry/errors"
	"github.com/gantry-ci/gantry/pkg/gantry/util"
)

// Store persists deploy tasks: `{id}.yaml` holds the verbatim
// configuration, `{id}.json` the execution state. The parsed config is
// derived when loading, so a parser change re-normalizes old records.
type Store struct {
	dir string

	mu      sync.RWMutex
	records map[string]*Task
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating deploy tasks directory: %w", err)
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
		task, err := s.load(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			return nil, err
		}
		s.records[task.ID] = task
	}
	return s, nil
}

func (s *Store) load(id string) (*Task, error) {
	data, err := os.ReadFile(s.stateFile(id))
	if err != nil {
		return nil, fmt.Errorf("reading deploy task %s: %w", id, err)
	}
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("parsing deploy task %s: %w", id, err)
	}

	content, err := os.ReadFile(s.yamlFile(id))
	if err != nil {
		return nil, fmt.Errorf("reading deploy task %s config: %w", id, err)
	}
	task.ConfigContent = string(content)

	config, err := schema.Parse(content)
	if err != nil {
		return nil, fmt.Errorf("deploy task %s: %w", id, err)
	}
	task.Config = config
	return &task, nil
}

// Create persists a new task.
func (s *Store) Create(task *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[task.ID]; exists {
		return gErrors.Newf(gErrors.Conflict, "deploy task %q already exists", task.ID)
	}
	copied := *task
	if err := s.persist(&copied); err != nil {
		return err
	}
	s.records[task.ID] = &copied
	return nil
}

// Get returns a copy of the task.
func (s *Store) Get(id string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(id)
}

func (s *Store) get(id string) (*Task, error) {
	task, ok := s.records[id]
	if !ok {
		return nil, gErrors.Newf(gErrors.NotFound, "deploy task %q not found", id)
	}
	copied := *task
	copied.Targets = append([]TargetState(nil), task.Targets...)
	return &copied, nil
}

// List returns all tasks, newest first.
func (s *Store) List() []*Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*Task, 0, len(s.records))
	for id := range s.records {
		task, _ := s.get(id)
		list = append(list, task)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID > list[j].ID
	})
	return list
}

// Mutate applies fn to the stored task atomically. The executor uses it
// for every target-state transition and message append.
func (s *Store) Mutate(id string, fn func(task *Task)) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, ok := s.records[id]
	if !ok {
		return nil, gErrors.Newf(gErrors.NotFound, "deploy task %q not found", id)
	}

	copied := *previous
	copied.Targets = append([]TargetState(nil), previous.Targets...)
	fn(&copied)
	copied.ID = previous.ID
	copied.UpdatedAt = time.Now()

	if err := s.persist(&copied); err != nil {
		return nil, err
	}
	s.records[id] = &copied
	result := copied
	return &result, nil
}

// Delete removes a task and both its files.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.records[id]
	if !ok {
		return gErrors.Newf(gErrors.NotFound, "deploy task %q not found", id)
	}
	if task.AggregateStatus() == StatusRunning {
		return gErrors.Newf(gErrors.Conflict, "deploy task %q is running", id)
	}

	if err := os.Remove(s.stateFile(id)); err != nil && !os.IsNotExist(err) {
		return err
	}
	os.Remove(s.yamlFile(id))
	delete(s.records, id)
	return nil
}

func (s *Store) persist(task *Task) error {
	if err := util.AtomicWriteFile(s.yamlFile(task.ID), []byte(task.ConfigContent), 0600); err != nil {
		return err
	}
	data, err := json.MarshalIndent(task, "", "  ")
	if err != nil {
		return err
	}
	return util.AtomicWriteFile(s.stateFile(task.ID), data, 0600)
}

func (s *Store) stateFile(id string) string {
	return filepath.Join(s.dir, util.SanitizeName(id)+".json")
}

func (s *Store) yamlFile(id string) string {
	return filepath.Join(s.dir, util.SanitizeName(id)+".yaml")
}
