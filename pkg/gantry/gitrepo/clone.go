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
	"os/exec"
	"regexp"
	"strings"

	gErrors "github.com/gantry-ci/gantry/pkg/gantry/errors"
	"github.com/gantry-ci/gantry/pkg/gantry/util"
)

var commitSHARegexp = regexp.MustCompile(`^[0-9a-f]{7,40}$`)

// ShallowClone checks out ref from gitURL into dir at depth 1. Branch and
// tag names clone directly; a commit SHA is fetched into a fresh repository
// because git does not allow cloning one. A blank ref clones the remote's
// default branch.
func ShallowClone(ctx context.Context, gitURL, ref, dir string) error {
	if commitSHARegexp.MatchString(ref) {
		return fetchCommit(ctx, gitURL, ref, dir)
	}

	args := []string{"clone", "--depth", "1", "--single-branch"}
	if ref != "" {
		args = append(args, "--branch", ref)
	}
	args = append(args, gitURL, dir)

	if out, err := util.RunCmdOut(ctx, exec.CommandContext(ctx, "git", args...)); err != nil {
		return classifyCloneErr(gitURL, string(out), err)
	}
	return nil
}

// fetchCommit materializes a single commit: init, fetch --depth 1, checkout.
func fetchCommit(ctx context.Context, gitURL, sha, dir string) error {
	steps := [][]string{
		{"git", "init", "--quiet", dir},
		{"git", "-C", dir, "remote", "add", "origin", gitURL},
		{"git", "-C", dir, "fetch", "--depth", "1", "origin", sha},
		{"git", "-C", dir, "checkout", "--quiet", "FETCH_HEAD"},
	}
	for _, step := range steps {
		if out, err := util.RunCmdOut(ctx, exec.CommandContext(ctx, step[0], step[1:]...)); err != nil {
			return classifyCloneErr(gitURL, string(out), err)
		}
	}
	return nil
}

// classifyCloneErr maps git CLI failures onto the introspection error kinds.
// git prints auth failures in a handful of recognizable shapes.
func classifyCloneErr(gitURL, out string, err error) error {
	text := out + " " + err.Error()
	switch {
	case strings.Contains(text, "Authentication failed"),
		strings.Contains(text, "could not read Username"),
		strings.Contains(text, "Permission denied"):
		return gErrors.Wrapf(gErrors.AuthRequired, err, "git credentials required for %q", gitURL)
	default:
		return gErrors.Wrapf(gErrors.RepoUnreachable, err, "cloning %q", gitURL)
	}
}
