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

package docker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/karrick/godirwalk"
	"github.com/moby/patternmatcher"

	"github.com/gantry-ci/gantry/pkg/gantry/util"
)

// CreateDockerTarContext tars the workspace to w, honoring the workspace's
// .dockerignore. The Dockerfile itself is never excluded.
func CreateDockerTarContext(ctx context.Context, w io.Writer, workspace string, dockerfile string) error {
	paths, err := contextFiles(workspace, dockerfile)
	if err != nil {
		return fmt.Errorf("listing build context files: %w", err)
	}
	return util.CreateTar(w, workspace, paths)
}

// contextFiles lists the files under workspace that are part of the build
// context, in walk order.
func contextFiles(workspace string, dockerfile string) ([]string, error) {
	excludes, err := readDockerignore(workspace)
	if err != nil {
		return nil, err
	}

	matcher, err := patternmatcher.New(excludes)
	if err != nil {
		return nil, fmt.Errorf("invalid .dockerignore patterns: %w", err)
	}

	var paths []string
	err = godirwalk.Walk(workspace, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, info *godirwalk.Dirent) error {
			if path == workspace {
				return nil
			}

			relPath, err := filepath.Rel(workspace, path)
			if err != nil {
				return err
			}

			// docker always sends the Dockerfile, .dockerignore or not.
			if filepath.ToSlash(relPath) == filepath.ToSlash(dockerfile) {
				paths = append(paths, path)
				return nil
			}

			ignored, err := matcher.MatchesOrParentMatches(filepath.ToSlash(relPath))
			if err != nil {
				return err
			}

			if info.IsDir() {
				if ignored && !hasExceptionFor(matcher, filepath.ToSlash(relPath)) {
					return filepath.SkipDir
				}
				return nil
			}

			if !ignored {
				paths = append(paths, path)
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// hasExceptionFor reports whether any negated pattern could re-include a file
// below dir, in which case the directory cannot be skipped wholesale.
func hasExceptionFor(matcher *patternmatcher.PatternMatcher, dir string) bool {
	for _, p := range matcher.Patterns() {
		if p.Exclusion() && strings.HasPrefix(p.String()+"/", dir+"/") {
			return true
		}
	}
	return false
}

func readDockerignore(workspace string) ([]string, error) {
	f, err := os.Open(filepath.Join(workspace, ".dockerignore"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var excludes []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		excludes = append(excludes, line)
	}
	return excludes, scanner.Err()
}
