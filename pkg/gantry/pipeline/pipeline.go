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

// Package pipeline defines the persistent build pipeline model and its
// store.
package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	gErrors "github.com/gantry-ci/gantry/pkg/gantry/errors"
)

// ProjectType names the build shape of a repository.
type ProjectType string

const (
	ProjectJar    ProjectType = "jar"
	ProjectNodeJS ProjectType = "nodejs"
	ProjectPython ProjectType = "python"
	ProjectGo     ProjectType = "go"
	ProjectWeb    ProjectType = "web"
)

// PushMode selects between one image and one image per service.
type PushMode string

const (
	PushSingle PushMode = "single"
	PushMulti  PushMode = "multi"
)

// BranchStrategy decides which webhook pushes build and which ref they use.
type BranchStrategy string

const (
	StrategyUsePush       BranchStrategy = "use_push"
	StrategyFilterMatch   BranchStrategy = "filter_match"
	StrategyUseConfigured BranchStrategy = "use_configured"
)

// ServicePush is the per-service push configuration. Older records stored a
// bare boolean; UnmarshalJSON upgrades those so the engine only ever sees
// this form.
type ServicePush struct {
	Push      bool   `json:"push"`
	ImageName string `json:"imageName,omitempty"`
	Tag       string `json:"tag,omitempty"`
}

func (s *ServicePush) UnmarshalJSON(data []byte) error {
	var legacy bool
	if err := json.Unmarshal(data, &legacy); err == nil {
		*s = ServicePush{Push: legacy}
		return nil
	}

	type plain ServicePush
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = ServicePush(p)
	return nil
}

// BranchTagRule maps a branch pattern (exact or trailing-glob "prefix/*")
// to the tag builds of that branch get.
type BranchTagRule struct {
	Branch string `json:"branch"`
	Tag    string `json:"tag"`
}

// BranchTagMapping is an ordered rule list. Older records stored a JSON
// object; UnmarshalJSON upgrades those preserving the declared key order.
type BranchTagMapping []BranchTagRule

func (m *BranchTagMapping) UnmarshalJSON(data []byte) error {
	var rules []BranchTagRule
	if err := json.Unmarshal(data, &rules); err == nil {
		*m = rules
		return nil
	}
	rules, err := decodeOrderedObject(data)
	if err != nil {
		return err
	}
	*m = rules
	return nil
}

// decodeOrderedObject walks an object token by token because unmarshalling
// into a map would lose the declaration order the matcher depends on.
func decodeOrderedObject(data []byte) ([]BranchTagRule, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if tok != json.Delim('{') {
		return nil, fmt.Errorf("branch_tag_mapping must be a list or an object")
	}

	var rules []BranchTagRule
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		var tag string
		if err := dec.Decode(&tag); err != nil {
			return nil, err
		}
		rules = append(rules, BranchTagRule{Branch: keyTok.(string), Tag: tag})
	}
	return rules, nil
}

// ResourcePackageConfig injects a stored package at a workspace-relative
// path.
type ResourcePackageConfig struct {
	PackageID  string `json:"package_id"`
	TargetPath string `json:"target_path"`
}

// BuildSnapshot is the condensed record of a pipeline's most recent build.
type BuildSnapshot struct {
	TaskID      string    `json:"task_id"`
	Status      string    `json:"status"`
	Branch      string    `json:"branch,omitempty"`
	Tag         string    `json:"tag,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// Pipeline is a reusable description of how to build one repository into
// one or more images.
type Pipeline struct {
	ID string `json:"pipeline_id"`

	// Source
	GitURL   string `json:"git_url"`
	SourceID string `json:"source_id,omitempty"`
	Branch   string `json:"branch,omitempty"`
	SubPath  string `json:"sub_path,omitempty"`

	// Build shape
	ProjectType          ProjectType `json:"project_type"`
	UseProjectDockerfile bool        `json:"use_project_dockerfile"`
	DockerfileName       string      `json:"dockerfile_name,omitempty"`
	Template             string      `json:"template,omitempty"`
	ImageName            string      `json:"image_name"`
	Tag                  string      `json:"tag,omitempty"`
	Push                 bool        `json:"push"`

	// Multi-service
	PushMode              PushMode                     `json:"push_mode,omitempty"`
	SelectedServices      []string                     `json:"selected_services,omitempty"`
	ServicePushConfig     map[string]ServicePush       `json:"service_push_config,omitempty"`
	ServiceTemplateParams map[string]map[string]string `json:"service_template_params,omitempty"`

	// Resources
	ResourcePackages []ResourcePackageConfig `json:"resource_package_configs,omitempty"`

	// Triggering
	Enabled               bool             `json:"enabled"`
	WebhookToken          string           `json:"webhook_token"`
	WebhookSecret         string           `json:"webhook_secret,omitempty"`
	WebhookBranchStrategy BranchStrategy   `json:"webhook_branch_strategy,omitempty"`
	BranchTagMapping      BranchTagMapping `json:"branch_tag_mapping,omitempty"`
	CronExpression        string           `json:"cron_expression,omitempty"`

	// Stats, maintained by the engine.
	TriggerCount    int            `json:"trigger_count"`
	LastTriggeredAt *time.Time     `json:"last_triggered_at,omitempty"`
	SuccessCount    int            `json:"success_count"`
	FailedCount     int            `json:"failed_count"`
	LastBuild       *BuildSnapshot `json:"last_build,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CronParser accepts the standard five-field cron grammar.
var CronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Validate checks the pipeline's internal invariants. Uniqueness of the
// webhook token is the store's concern.
func (p *Pipeline) Validate() error {
	if p.GitURL == "" {
		return gErrors.New(gErrors.Validation, "git_url is required")
	}
	if p.ImageName == "" {
		return gErrors.New(gErrors.Validation, "image_name is required")
	}

	switch p.ProjectType {
	case ProjectJar, ProjectNodeJS, ProjectPython, ProjectGo, ProjectWeb:
	default:
		return gErrors.Newf(gErrors.Validation, "unknown project_type %q", p.ProjectType)
	}

	if p.UseProjectDockerfile && p.Template != "" {
		return gErrors.New(gErrors.Validation, "use_project_dockerfile excludes template")
	}
	if !p.UseProjectDockerfile && p.Template == "" {
		return gErrors.New(gErrors.Validation, "template is required unless use_project_dockerfile is set")
	}

	switch p.PushMode {
	case "", PushSingle:
		if len(p.SelectedServices) > 1 {
			return gErrors.New(gErrors.Validation, "push_mode single allows at most one selected service")
		}
	case PushMulti:
	default:
		return gErrors.Newf(gErrors.Validation, "unknown push_mode %q", p.PushMode)
	}

	switch p.WebhookBranchStrategy {
	case "", StrategyUsePush, StrategyFilterMatch, StrategyUseConfigured:
	default:
		return gErrors.Newf(gErrors.Validation, "unknown webhook_branch_strategy %q", p.WebhookBranchStrategy)
	}

	if p.CronExpression != "" {
		if _, err := CronParser.Parse(p.CronExpression); err != nil {
			return gErrors.Wrapf(gErrors.Validation, err, "invalid cron_expression %q", p.CronExpression)
		}
	}
	return nil
}

// ServicePushFor returns the push configuration for a service, falling back
// to the pipeline-level push flag.
func (p *Pipeline) ServicePushFor(service string) ServicePush {
	if cfg, ok := p.ServicePushConfig[service]; ok {
		return cfg
	}
	return ServicePush{Push: p.Push}
}

// TemplateParamsFor merges the pipeline-wide template params (key "*") with
// the service's own.
func (p *Pipeline) TemplateParamsFor(service string) map[string]string {
	merged := map[string]string{}
	for k, v := range p.ServiceTemplateParams["*"] {
		merged[k] = v
	}
	for k, v := range p.ServiceTemplateParams[service] {
		merged[k] = v
	}
	return merged
}
