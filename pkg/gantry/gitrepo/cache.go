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

package gitrepo

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/gantry-ci/gantry/pkg/gantry/util"
)

// cache is a TTL cache with write-through persistence under a directory.
// Concurrent refreshes of the same key coalesce into one fill call.
type cache[V any] struct {
	dir string
	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]cacheEntry[V]
	group   singleflight.Group
}

type cacheEntry[V any] struct {
	Time  time.Time `json:"time"`
	Value V         `json:"value"`
}

func newCache[V any](dir string, ttl time.Duration) *cache[V] {
	return &cache[V]{
		dir:     dir,
		ttl:     ttl,
		entries: map[string]cacheEntry[V]{},
	}
}

// get returns the cached value for key, filling it when absent, expired, or
// force is set. Only successful fills are cached.
func (c *cache[V]) get(ctx context.Context, key string, force bool, fill func(context.Context) (V, error)) (V, error) {
	if !force {
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Another caller may have refreshed while we waited on the flight.
		if !force {
			if v, ok := c.lookup(key); ok {
				return v, nil
			}
		}

		v, err := fill(ctx)
		if err != nil {
			return nil, err
		}
		c.put(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

func (c *cache[V]) lookup(key string) (V, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		entry, ok = c.load(key)
	}
	if !ok || time.Since(entry.Time) > c.ttl {
		var zero V
		return zero, false
	}
	return entry.Value, true
}

func (c *cache[V]) put(key string, v V) {
	entry := cacheEntry[V]{Time: time.Now(), Value: v}

	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()

	if c.dir != "" {
		data, err := json.Marshal(entry)
		if err == nil {
			_ = util.AtomicWriteFile(c.file(key), data, 0600)
		}
	}
}

// load reads a persisted entry left by a previous process.
func (c *cache[V]) load(key string) (cacheEntry[V], bool) {
	var entry cacheEntry[V]
	if c.dir == "" {
		return entry, false
	}
	data, err := os.ReadFile(c.file(key))
	if err != nil {
		return entry, false
	}
	if err := json.Unmarshal(data, &entry); err != nil {
		return entry, false
	}

	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
	return entry, true
}

// invalidate drops the entry for key.
func (c *cache[V]) invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()

	if c.dir != "" {
		os.Remove(c.file(key))
	}
}

// evictExpired drops every entry older than the TTL. Called by the
// housekeeping loop.
func (c *cache[V]) evictExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.entries {
		if time.Since(entry.Time) > c.ttl {
			delete(c.entries, key)
			if c.dir != "" {
				os.Remove(c.file(key))
			}
		}
	}
}

func (c *cache[V]) file(key string) string {
	return filepath.Join(c.dir, fmt.Sprintf("%x.json", sha256.Sum256([]byte(key))))
}
