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

// Package gitrepo answers questions about remote repositories: which
// branches and tags exist, where the Dockerfiles are at a given ref, and
// which services a Dockerfile declares. Answers are cached with a TTL and
// concurrent refreshes of the same key coalesce.
package gitrepo

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/karrick/godirwalk"

	"github.com/gantry-ci/gantry/pkg/gantry/constants"
	"github.com/gantry-ci/gantry/pkg/gantry/dockerfile"
	gErrors "github.com/gantry-ci/gantry/pkg/gantry/errors"
	"github.com/gantry-ci/gantry/pkg/gantry/sources"
)

// Service resolves repository metadata through per-operation caches.
type Service struct {
	sources *sources.Store

	refs        *cache[*RepoRefs]
	dockerfiles *cache[[]string]
	services    *cache[[]dockerfile.Service]
}

// NewService returns a Service caching under cacheDir with the given TTL.
// sourceStore may be nil when saved credentials are not in play.
func NewService(sourceStore *sources.Store, cacheDir string, ttl time.Duration) *Service {
	return &Service{
		sources:     sourceStore,
		refs:        newCache[*RepoRefs](filepath.Join(cacheDir, "refs"), ttl),
		dockerfiles: newCache[[]string](filepath.Join(cacheDir, "dockerfiles"), ttl),
		services:    newCache[[]dockerfile.Service](filepath.Join(cacheDir, "services"), ttl),
	}
}

// ResolveBranchesAndTags lists the remote's branches, tags, and default
// branch. force bypasses the cache and refreshes the entry.
func (s *Service) ResolveBranchesAndTags(ctx context.Context, gitURL, sourceID string, force bool) (*RepoRefs, error) {
	authURL, err := s.authenticate(gitURL, sourceID)
	if err != nil {
		return nil, err
	}

	key := gitURL + "|" + sourceID
	return s.refs.get(ctx, key, force, func(ctx context.Context) (*RepoRefs, error) {
		return listRemoteRefs(ctx, authURL)
	})
}

// ScanDockerfiles enumerates every file named Dockerfile* in the tree at
// ref. The root Dockerfile comes first, the rest follow lexicographically.
// An empty result is not an error.
func (s *Service) ScanDockerfiles(ctx context.Context, gitURL, ref, sourceID string, force bool) ([]string, error) {
	authURL, err := s.authenticate(gitURL, sourceID)
	if err != nil {
		return nil, err
	}

	key := gitURL + "|" + ref + "|" + sourceID
	return s.dockerfiles.get(ctx, key, force, func(ctx context.Context) ([]string, error) {
		return withCheckout(ctx, authURL, ref, func(dir string) ([]string, error) {
			return scanDockerfiles(dir)
		})
	})
}

// AnalyzeServices parses the named Dockerfile at ref and reports its
// services.
func (s *Service) AnalyzeServices(ctx context.Context, gitURL, ref, dockerfilePath, sourceID string, force bool) ([]dockerfile.Service, error) {
	authURL, err := s.authenticate(gitURL, sourceID)
	if err != nil {
		return nil, err
	}

	key := gitURL + "|" + ref + "|" + dockerfilePath + "|" + sourceID
	return s.services.get(ctx, key, force, func(ctx context.Context) ([]dockerfile.Service, error) {
		return withCheckout(ctx, authURL, ref, func(dir string) ([]dockerfile.Service, error) {
			content, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(dockerfilePath)))
			if os.IsNotExist(err) {
				return nil, gErrors.Newf(gErrors.DockerfileMissing, "no %s at ref %q", dockerfilePath, ref)
			}
			if err != nil {
				return nil, err
			}
			return dockerfile.Analyze(content, repoName(gitURL))
		})
	})
}

// Invalidate drops every cache entry for the repository.
func (s *Service) Invalidate(gitURL, sourceID string) {
	s.refs.invalidate(gitURL + "|" + sourceID)
	// Dockerfile and service keys embed refs and paths, so they are swept by
	// the housekeeping loop instead of enumerated here.
}

// Housekeep evicts expired entries from all caches. The owner calls this
// periodically.
func (s *Service) Housekeep() {
	s.refs.evictExpired()
	s.dockerfiles.evictExpired()
	s.services.evictExpired()
}

func (s *Service) authenticate(gitURL, sourceID string) (string, error) {
	if sourceID == "" || s.sources == nil {
		return gitURL, nil
	}
	src, err := s.sources.Get(sourceID)
	if err != nil {
		return "", err
	}
	return src.AuthenticateURL(gitURL), nil
}

// withCheckout runs fn against a scratch shallow checkout that is removed
// afterwards.
func withCheckout[V any](ctx context.Context, gitURL, ref string, fn func(dir string) (V, error)) (V, error) {
	var zero V
	dir, err := os.MkdirTemp("", "gantry-scan-")
	if err != nil {
		return zero, err
	}
	defer os.RemoveAll(dir)

	if err := ShallowClone(ctx, gitURL, ref, dir); err != nil {
		return zero, err
	}
	return fn(dir)
}

func scanDockerfiles(dir string) ([]string, error) {
	var paths []string
	err := godirwalk.Walk(dir, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, info *godirwalk.Dirent) error {
			if info.IsDir() {
				if info.Name() == ".git" {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasPrefix(info.Name(), constants.DefaultDockerfileName) {
				rel, err := filepath.Rel(dir, path)
				if err != nil {
					return err
				}
				paths = append(paths, filepath.ToSlash(rel))
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(paths, func(i, j int) bool {
		// The root Dockerfile always sorts first.
		if paths[i] == constants.DefaultDockerfileName {
			return true
		}
		if paths[j] == constants.DefaultDockerfileName {
			return false
		}
		return paths[i] < paths[j]
	})
	return paths, nil
}

func repoName(gitURL string) string {
	name := strings.TrimSuffix(filepath.Base(gitURL), ".git")
	if name == "" || name == "." || name == "/" {
		return "app"
	}
	return name
}
