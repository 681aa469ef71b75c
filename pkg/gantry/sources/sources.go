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

// Package sources stores saved git credential records referenced by
// pipelines through source_id.
package sources

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	gErrors "github.com/gantry-ci/gantry/pkg/gantry/errors"
	"github.com/gantry-ci/gantry/pkg/gantry/util"
)

// GitSource is a saved credential record for a git hosting account.
type GitSource struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Username  string    `json:"username,omitempty"`
	Token     string    `json:"token,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AuthenticateURL embeds the source's credentials into an http(s) clone URL.
// Non-http URLs and nil sources pass through unchanged.
func (s *GitSource) AuthenticateURL(gitURL string) string {
	if s == nil || s.Token == "" {
		return gitURL
	}
	u, err := url.Parse(gitURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return gitURL
	}
	username := s.Username
	if username == "" {
		username = "oauth2"
	}
	u.User = url.UserPassword(username, s.Token)
	return u.String()
}

// Store keeps all git sources in one JSON file.
type Store struct {
	path string

	mu      sync.RWMutex
	records map[string]*GitSource
}

// NewStore loads the store from path, starting empty if the file is absent.
func NewStore(path string) (*Store, error) {
	s := &Store{
		path:    path,
		records: map[string]*GitSource{},
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading git sources: %w", err)
	}

	var list []*GitSource
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parsing git sources: %w", err)
	}
	for _, src := range list {
		s.records[src.ID] = src
	}
	return s, nil
}

// Get returns the source with the given id.
func (s *Store) Get(id string) (*GitSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src, ok := s.records[id]
	if !ok {
		return nil, gErrors.Newf(gErrors.NotFound, "git source %q not found", id)
	}
	copied := *src
	return &copied, nil
}

// List returns all sources ordered by name.
func (s *Store) List() []*GitSource {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var list []*GitSource
	for _, src := range s.records {
		copied := *src
		list = append(list, &copied)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// Create validates and persists a new source. A blank id is generated.
func (s *Store) Create(src *GitSource) (*GitSource, error) {
	if src.Name == "" {
		return nil, gErrors.New(gErrors.Validation, "git source name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if src.ID == "" {
		src.ID = uuid.NewString()
	}
	if _, exists := s.records[src.ID]; exists {
		return nil, gErrors.Newf(gErrors.Conflict, "git source %q already exists", src.ID)
	}
	src.CreatedAt = time.Now()

	copied := *src
	s.records[src.ID] = &copied
	if err := s.flush(); err != nil {
		delete(s.records, src.ID)
		return nil, err
	}
	return src, nil
}

// Delete removes a source. Pipelines referencing it keep their source_id.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.records[id]
	if !ok {
		return gErrors.Newf(gErrors.NotFound, "git source %q not found", id)
	}
	delete(s.records, id)
	if err := s.flush(); err != nil {
		s.records[id] = src
		return err
	}
	return nil
}

func (s *Store) flush() error {
	list := make([]*GitSource, 0, len(s.records))
	for _, src := range s.records {
		list = append(list, src)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}
	return util.AtomicWriteFile(s.path, data, 0600)
}
