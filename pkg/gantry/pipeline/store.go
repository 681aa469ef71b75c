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

package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	gErrors "github.com/gantry-ci/gantry/pkg/gantry/errors"
	"github.com/gantry-ci/gantry/pkg/gantry/util"
)

// Store persists pipelines as one JSON file each and keeps the webhook
// token and source id indexes in memory. The token index is updated under
// the same lock as the record, so a token is never resolvable to a stale
// pipeline.
type Store struct {
	dir string

	mu       sync.RWMutex
	records  map[string]*Pipeline
	byToken  map[string]string
	bySource map[string][]string
}

// NewStore loads every pipeline under dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating pipelines directory: %w", err)
	}

	s := &Store{
		dir:      dir,
		records:  map[string]*Pipeline{},
		byToken:  map[string]string{},
		bySource: map[string][]string{},
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
			return nil, fmt.Errorf("reading pipeline %s: %w", entry.Name(), err)
		}
		var p Pipeline
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("parsing pipeline %s: %w", entry.Name(), err)
		}
		s.index(&p)
	}
	return s, nil
}

// index registers p in the in-memory maps. Caller holds the lock (or is
// still single-threaded in NewStore).
func (s *Store) index(p *Pipeline) {
	s.records[p.ID] = p
	if p.WebhookToken != "" {
		s.byToken[p.WebhookToken] = p.ID
	}
	if p.SourceID != "" {
		s.bySource[p.SourceID] = append(s.bySource[p.SourceID], p.ID)
	}
}

func (s *Store) unindex(p *Pipeline) {
	delete(s.records, p.ID)
	delete(s.byToken, p.WebhookToken)
	if p.SourceID != "" {
		ids := s.bySource[p.SourceID]
		for i, id := range ids {
			if id == p.ID {
				s.bySource[p.SourceID] = append(ids[:i], ids[i+1:]...)
				break
			}
		}
	}
}

// Get returns a copy of the pipeline with the given id.
func (s *Store) Get(id string) (*Pipeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(id)
}

func (s *Store) get(id string) (*Pipeline, error) {
	p, ok := s.records[id]
	if !ok {
		return nil, gErrors.Newf(gErrors.NotFound, "pipeline %q not found", id)
	}
	copied := *p
	return &copied, nil
}

// GetByToken resolves a webhook token to its pipeline.
func (s *Store) GetByToken(token string) (*Pipeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byToken[token]
	if !ok {
		return nil, gErrors.New(gErrors.NotFound, "unknown webhook token")
	}
	return s.get(id)
}

// ListBySource returns the pipelines referencing a git source.
func (s *Store) ListBySource(sourceID string) []*Pipeline {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var list []*Pipeline
	for _, id := range s.bySource[sourceID] {
		if p, err := s.get(id); err == nil {
			list = append(list, p)
		}
	}
	return list
}

// List returns all pipelines, oldest first.
func (s *Store) List() []*Pipeline {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*Pipeline, 0, len(s.records))
	for _, p := range s.records {
		copied := *p
		list = append(list, &copied)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
	return list
}

// Create validates and persists a new pipeline. Blank id, webhook token,
// and webhook secret are generated.
func (s *Store) Create(p *Pipeline) (*Pipeline, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if _, exists := s.records[p.ID]; exists {
		return nil, gErrors.Newf(gErrors.Conflict, "pipeline %q already exists", p.ID)
	}
	if p.WebhookToken == "" {
		p.WebhookToken = uuid.NewString()
	}
	if p.WebhookSecret == "" {
		p.WebhookSecret = uuid.NewString()
	}
	if other, taken := s.byToken[p.WebhookToken]; taken {
		return nil, gErrors.Newf(gErrors.Conflict, "webhook token already used by pipeline %q", other)
	}
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now

	copied := *p
	if err := s.persist(&copied); err != nil {
		return nil, err
	}
	s.index(&copied)
	return p, nil
}

// Update validates and persists changes to an existing pipeline. Changing
// the webhook token is an explicit regeneration; the token index follows
// the record atomically. Stats fields are kept from the stored record.
func (s *Store) Update(p *Pipeline) (*Pipeline, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous, ok := s.records[p.ID]
	if !ok {
		return nil, gErrors.Newf(gErrors.NotFound, "pipeline %q not found", p.ID)
	}

	if p.WebhookToken == "" {
		p.WebhookToken = previous.WebhookToken
	}
	if p.WebhookSecret == "" {
		p.WebhookSecret = previous.WebhookSecret
	}
	if other, taken := s.byToken[p.WebhookToken]; taken && other != p.ID {
		return nil, gErrors.Newf(gErrors.Conflict, "webhook token already used by pipeline %q", other)
	}

	p.CreatedAt = previous.CreatedAt
	p.UpdatedAt = time.Now()
	p.TriggerCount = previous.TriggerCount
	p.LastTriggeredAt = previous.LastTriggeredAt
	p.SuccessCount = previous.SuccessCount
	p.FailedCount = previous.FailedCount
	p.LastBuild = previous.LastBuild

	copied := *p
	if err := s.persist(&copied); err != nil {
		return nil, err
	}
	s.unindex(previous)
	s.index(&copied)
	return p, nil
}

// Delete removes the pipeline. Its build tasks are left in place.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.records[id]
	if !ok {
		return gErrors.Newf(gErrors.NotFound, "pipeline %q not found", id)
	}
	if err := os.Remove(s.file(id)); err != nil && !os.IsNotExist(err) {
		return err
	}
	s.unindex(p)
	return nil
}

// Mutate applies fn to the stored pipeline under the store lock and
// persists the result. The engine uses this for stats updates so they never
// race with operator edits.
func (s *Store) Mutate(id string, fn func(p *Pipeline)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, ok := s.records[id]
	if !ok {
		return gErrors.Newf(gErrors.NotFound, "pipeline %q not found", id)
	}

	copied := *previous
	fn(&copied)
	copied.ID = previous.ID
	copied.UpdatedAt = time.Now()

	if err := s.persist(&copied); err != nil {
		return err
	}
	s.unindex(previous)
	s.index(&copied)
	return nil
}

func (s *Store) persist(p *Pipeline) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return util.AtomicWriteFile(s.file(p.ID), data, 0600)
}

func (s *Store) file(id string) string {
	return filepath.Join(s.dir, util.SanitizeName(id)+".json")
}
