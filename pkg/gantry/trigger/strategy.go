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

package trigger

import (
	"strings"

	"github.com/bmatcuk/doublestar"

	"github.com/gantry-ci/gantry/pkg/gantry/pipeline"
)

// effectiveBranch applies the pipeline's branch strategy to a pushed
// branch. proceed is false when the push must not build. A blank branch
// with proceed=true means "use the repository's default branch".
func effectiveBranch(p *pipeline.Pipeline, pushed string) (branch string, proceed bool) {
	switch p.WebhookBranchStrategy {
	case pipeline.StrategyFilterMatch:
		if pushed == p.Branch && p.Branch != "" {
			return pushed, true
		}
		for _, rule := range p.BranchTagMapping {
			if matchBranch(rule.Branch, pushed) {
				return pushed, true
			}
		}
		return "", false

	case pipeline.StrategyUseConfigured:
		return p.Branch, true

	default: // use_push
		return pushed, true
	}
}

// resolveTag scans the branch→tag mapping in declaration order; the first
// matching rule overrides the pipeline's global tag.
func resolveTag(p *pipeline.Pipeline, branch string) string {
	for _, rule := range p.BranchTagMapping {
		if matchBranch(rule.Branch, branch) {
			return rule.Tag
		}
	}
	return p.Tag
}

// matchBranch accepts exact names and trailing-glob patterns like
// "feature/*".
func matchBranch(pattern, branch string) bool {
	if pattern == branch {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return false
	}
	ok, err := doublestar.Match(pattern, branch)
	return err == nil && ok
}
