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
	"errors"
	"sort"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage/memory"

	gErrors "github.com/gantry-ci/gantry/pkg/gantry/errors"
)

// RepoRefs is the branch and tag inventory of a remote repository.
type RepoRefs struct {
	Branches      []string `json:"branches"`
	Tags          []string `json:"tags"`
	DefaultBranch string   `json:"default_branch"`
}

// For testing
var listRemoteRefs = listRemote

// listRemote enumerates a remote's refs without cloning, like git ls-remote.
func listRemote(ctx context.Context, gitURL string) (*RepoRefs, error) {
	remote := git.NewRemote(memory.NewStorage(), &gitconfig.RemoteConfig{
		Name: "origin",
		URLs: []string{gitURL},
	})

	refs, err := remote.ListContext(ctx, &git.ListOptions{})
	if err != nil {
		return nil, classifyRemoteErr(gitURL, err)
	}

	result := &RepoRefs{}
	var head plumbing.ReferenceName
	for _, ref := range refs {
		switch {
		case ref.Name() == plumbing.HEAD && ref.Type() == plumbing.SymbolicReference:
			head = ref.Target()
		case ref.Name().IsBranch():
			result.Branches = append(result.Branches, ref.Name().Short())
		case ref.Name().IsTag():
			result.Tags = append(result.Tags, ref.Name().Short())
		}
	}
	sort.Strings(result.Branches)
	sort.Strings(result.Tags)

	switch {
	case head.IsBranch():
		result.DefaultBranch = head.Short()
	case contains(result.Branches, "main"):
		result.DefaultBranch = "main"
	case contains(result.Branches, "master"):
		result.DefaultBranch = "master"
	case len(result.Branches) > 0:
		result.DefaultBranch = result.Branches[0]
	}

	return result, nil
}

func classifyRemoteErr(gitURL string, err error) error {
	if errors.Is(err, transport.ErrAuthenticationRequired) || errors.Is(err, transport.ErrAuthorizationFailed) {
		return gErrors.Wrapf(gErrors.AuthRequired, err, "git credentials required for %q", gitURL)
	}
	return gErrors.Wrapf(gErrors.RepoUnreachable, err, "listing refs of %q", gitURL)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
