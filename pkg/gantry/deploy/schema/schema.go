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

// Package schema parses deploy task configuration documents into their
// normalized form. The YAML text stays the source of truth; this package
// only derives structure from it.
package schema

import (
	"strings"

	gErrors "github.com/gantry-ci/gantry/pkg/gantry/errors"
	"github.com/gantry-ci/gantry/pkg/gantry/hosts"
	yaml "github.com/gantry-ci/gantry/pkg/gantry/yaml"
)

// Plan types.
const (
	TypeDockerRun     = "docker_run"
	TypeDockerCompose = "docker_compose"
	TypeSteps         = "steps"
)

// Config is the normalized deploy configuration.
type Config struct {
	Version string   `yaml:"version,omitempty" json:"version,omitempty"`
	App     App      `yaml:"app" json:"app"`
	Deploy  *Plan    `yaml:"deploy,omitempty" json:"deploy,omitempty"`
	Targets []Target `yaml:"targets" json:"targets"`
}

type App struct {
	Name string `yaml:"name" json:"name"`
}

// Plan is what gets executed on every target. Type selects between a
// single docker run arg string, a compose bundle, and an ordered script;
// a plan with steps carries no type.
type Plan struct {
	Type           string `yaml:"type,omitempty" json:"type,omitempty"`
	Command        string `yaml:"command,omitempty" json:"command,omitempty"`
	ComposeContent string `yaml:"compose_content,omitempty" json:"compose_content,omitempty"`
	Steps          []Step `yaml:"steps,omitempty" json:"steps,omitempty"`
	Redeploy       bool   `yaml:"redeploy,omitempty" json:"redeploy,omitempty"`
}

type Step struct {
	Name    string `yaml:"name" json:"name"`
	Command string `yaml:"command" json:"command"`
}

// Target names one deploy destination by host record reference. The
// legacy per-target docker block is consumed during normalization and
// never re-emitted.
type Target struct {
	Name     string `yaml:"name" json:"name"`
	HostType string `yaml:"host_type" json:"host_type"`
	HostName string `yaml:"host_name" json:"host_name"`

	Docker *legacyDocker `yaml:"docker,omitempty" json:"-"`
}

// legacyDocker is the pre-unified shape: each target carried its own run
// or compose block.
type legacyDocker struct {
	Type           string `yaml:"type,omitempty"`
	Command        string `yaml:"command,omitempty"`
	ComposeContent string `yaml:"compose_content,omitempty"`
	Redeploy       bool   `yaml:"redeploy,omitempty"`
}

// Parse reads a configuration document and normalizes it: the legacy
// per-target docker block is lifted into the unified deploy plan, and a
// leading literal "docker run" is stripped from run commands.
func Parse(content []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(content, &config); err != nil {
		return nil, gErrors.Wrap(gErrors.Validation, err, "parsing deploy configuration")
	}

	normalize(&config)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Emit renders the normalized form back to YAML. Parsing the result gives
// the same structure back.
func Emit(config *Config) ([]byte, error) {
	return yaml.Marshal(config)
}

func normalize(config *Config) {
	if config.Deploy == nil {
		for _, target := range config.Targets {
			if target.Docker == nil {
				continue
			}
			config.Deploy = &Plan{
				Type:           target.Docker.Type,
				Command:        target.Docker.Command,
				ComposeContent: target.Docker.ComposeContent,
				Redeploy:       target.Docker.Redeploy,
			}
			break
		}
	}
	for i := range config.Targets {
		config.Targets[i].Docker = nil
	}

	if config.Deploy == nil {
		return
	}
	plan := config.Deploy
	if len(plan.Steps) > 0 {
		plan.Type = ""
	}
	if plan.Type == TypeDockerRun {
		plan.Command = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(plan.Command), "docker run"))
	}
}

// Validate enforces the structural invariants of a normalized config.
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return gErrors.New(gErrors.Validation, "app.name is required")
	}
	if len(c.Targets) == 0 {
		return gErrors.New(gErrors.Validation, "at least one target is required")
	}
	for i, target := range c.Targets {
		if !hosts.ValidKind(target.HostType) {
			return gErrors.Newf(gErrors.Validation, "target %d: unknown host_type %q", i, target.HostType)
		}
		if target.HostName == "" {
			return gErrors.Newf(gErrors.Validation, "target %d: host_name is required", i)
		}
	}

	plan := c.Deploy
	if plan == nil {
		return gErrors.New(gErrors.Validation, "a deploy plan is required")
	}
	switch {
	case len(plan.Steps) > 0:
		for i, step := range plan.Steps {
			if strings.TrimSpace(step.Command) == "" {
				return gErrors.Newf(gErrors.Validation, "step %d (%s): command is required", i, step.Name)
			}
		}
	case plan.Type == TypeDockerRun:
		if plan.Command == "" {
			return gErrors.New(gErrors.Validation, "docker_run plan needs a command")
		}
	case plan.Type == TypeDockerCompose:
		if plan.Command == "" {
			return gErrors.New(gErrors.Validation, "docker_compose plan needs a command")
		}
		if plan.ComposeContent == "" {
			return gErrors.New(gErrors.Validation, "docker_compose plan needs compose_content")
		}
	default:
		return gErrors.Newf(gErrors.Validation, "unknown deploy type %q", plan.Type)
	}
	return nil
}
