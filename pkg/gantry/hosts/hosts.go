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

// Package hosts keeps the inventory of deploy target hosts.
package hosts

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	gErrors "github.com/gantry-ci/gantry/pkg/gantry/errors"
	"github.com/gantry-ci/gantry/pkg/gantry/util"
)

// Kind is how a host is reached.
type Kind string

const (
	KindAgent     Kind = "agent"
	KindPortainer Kind = "portainer"
	KindSSH       Kind = "ssh"
)

// ValidKind reports whether k names a supported host kind.
func ValidKind(k string) bool {
	switch Kind(k) {
	case KindAgent, KindPortainer, KindSSH:
		return true
	}
	return false
}

// Host is one deploy target. Which fields are required depends on the kind:
// ssh needs User plus KeyPEM or Password, agent needs APIKey, portainer
// needs APIKey and EndpointID.
type Host struct {
	Name    string `json:"name"`
	Kind    Kind   `json:"kind"`
	Address string `json:"address"`

	User     string `json:"user,omitempty"`
	KeyPEM   string `json:"key_pem,omitempty"`
	Password string `json:"password,omitempty"`

	APIKey     string `json:"api_key,omitempty"`
	EndpointID int    `json:"endpoint_id,omitempty"`

	// ExecContainer is the container portainer targets run commands in.
	ExecContainer string `json:"exec_container,omitempty"`
}

func (h *Host) validate() error {
	if h.Name == "" {
		return gErrors.New(gErrors.Validation, "host name is required")
	}
	if !ValidKind(string(h.Kind)) {
		return gErrors.Newf(gErrors.Validation, "unknown host kind %q", h.Kind)
	}
	if h.Address == "" {
		return gErrors.New(gErrors.Validation, "host address is required")
	}
	return nil
}

// Store keeps all hosts in one JSON file, keyed by (kind, name).
type Store struct {
	path string

	mu      sync.RWMutex
	records map[string]*Host
}

func key(kind Kind, name string) string {
	return string(kind) + "/" + name
}

// NewStore loads the store from path, starting empty if the file is absent.
func NewStore(path string) (*Store, error) {
	s := &Store{
		path:    path,
		records: map[string]*Host{},
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading hosts: %w", err)
	}

	var list []*Host
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parsing hosts: %w", err)
	}
	for _, h := range list {
		s.records[key(h.Kind, h.Name)] = h
	}
	return s, nil
}

// Resolve returns the host registered under (kind, name).
func (s *Store) Resolve(kind Kind, name string) (*Host, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.records[key(kind, name)]
	if !ok {
		return nil, gErrors.Newf(gErrors.HostNotFound, "host %q of kind %q not found", name, kind)
	}
	copied := *h
	return &copied, nil
}

// List returns all hosts ordered by kind then name.
func (s *Store) List() []*Host {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var list []*Host
	for _, h := range s.records {
		copied := *h
		list = append(list, &copied)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Kind != list[j].Kind {
			return list[i].Kind < list[j].Kind
		}
		return list[i].Name < list[j].Name
	})
	return list
}

// Save validates and persists a host, replacing any record under the same
// (kind, name).
func (s *Store) Save(h *Host) error {
	if err := h.validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(h.Kind, h.Name)
	previous := s.records[k]
	copied := *h
	s.records[k] = &copied
	if err := s.flush(); err != nil {
		if previous != nil {
			s.records[k] = previous
		} else {
			delete(s.records, k)
		}
		return err
	}
	return nil
}

// Delete removes the host under (kind, name).
func (s *Store) Delete(kind Kind, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(kind, name)
	h, ok := s.records[k]
	if !ok {
		return gErrors.Newf(gErrors.HostNotFound, "host %q of kind %q not found", name, kind)
	}
	delete(s.records, k)
	if err := s.flush(); err != nil {
		s.records[k] = h
		return err
	}
	return nil
}

func (s *Store) flush() error {
	list := make([]*Host, 0, len(s.records))
	for _, h := range s.records {
		list = append(list, h)
	}
	sort.Slice(list, func(i, j int) bool {
		return key(list[i].Kind, list[i].Name) < key(list[j].Kind, list[j].Name)
	})

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}
	return util.AtomicWriteFile(s.path, data, 0600)
}
