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

// Package build executes pipelines: its store persists build tasks, its
// scheduler serializes them per pipeline under a global worker cap, and its
// builder turns a checkout into images.
package build

import (
	"time"

	"github.com/google/uuid"

	"github.com/gantry-ci/gantry/pkg/gantry/docker"
	"github.com/gantry-ci/gantry/pkg/gantry/pipeline"
)

// Status is the lifecycle state of a build task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusStopped   Status = "stopped"
)

// Terminal reports whether a status is final. Terminal states are
// write-once.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusStopped:
		return true
	}
	return false
}

// TriggerSource is what caused a task to exist.
type TriggerSource string

const (
	TriggerWebhook TriggerSource = "webhook"
	TriggerManual  TriggerSource = "manual"
	TriggerCron    TriggerSource = "cron"
)

// TriggerInfo is captured verbatim from the trigger.
type TriggerInfo struct {
	Platform string `json:"platform,omitempty"`
	Branch   string `json:"branch,omitempty"`
	Commit   string `json:"commit,omitempty"`
	Pusher   string `json:"pusher,omitempty"`
}

// ServiceBuild is the resolved plan and the result of one service's build.
type ServiceBuild struct {
	Name           string            `json:"name,omitempty"`
	ImageRef       string            `json:"image_ref"`
	Push           bool              `json:"push"`
	Tag            string            `json:"tag,omitempty"`
	TemplateParams map[string]string `json:"template_params,omitempty"`

	// Results, written by the builder.
	Built  bool   `json:"built"`
	Pushed bool   `json:"pushed"`
	Digest string `json:"digest,omitempty"`
}

// Plan is the snapshot of everything the builder needs, resolved from the
// pipeline at trigger time so later pipeline edits don't change a queued
// task.
type Plan struct {
	GitURL   string `json:"git_url"`
	SourceID string `json:"source_id,omitempty"`
	Branch   string `json:"branch,omitempty"`
	SubPath  string `json:"sub_path,omitempty"`

	ProjectType          string `json:"project_type,omitempty"`
	UseProjectDockerfile bool   `json:"use_project_dockerfile"`
	DockerfileName       string `json:"dockerfile_name,omitempty"`
	Template             string `json:"template,omitempty"`

	Services         []ServiceBuild                   `json:"services"`
	ResourcePackages []pipeline.ResourcePackageConfig `json:"resource_packages,omitempty"`
}

// Task is one execution of a pipeline.
type Task struct {
	ID         string        `json:"task_id"`
	PipelineID string        `json:"pipeline_id,omitempty"`
	Source     TriggerSource `json:"trigger_source"`
	Trigger    TriggerInfo   `json:"trigger_info"`

	Branch string `json:"branch,omitempty"`
	Tag    string `json:"tag,omitempty"`
	Plan   Plan   `json:"plan"`

	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	TriggeredAt time.Time  `json:"triggered_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	LogPath string `json:"log_path,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewTask snapshots a pipeline into a pending task for the given effective
// branch and tag.
func NewTask(p *pipeline.Pipeline, branch, tag string, source TriggerSource, info TriggerInfo) *Task {
	now := time.Now()
	task := &Task{
		ID:          uuid.NewString(),
		PipelineID:  p.ID,
		Source:      source,
		Trigger:     info,
		Branch:      branch,
		Tag:         tag,
		Status:      StatusPending,
		CreatedAt:   now,
		TriggeredAt: now,
		Plan: Plan{
			GitURL:               p.GitURL,
			SourceID:             p.SourceID,
			Branch:               branch,
			SubPath:              p.SubPath,
			ProjectType:          string(p.ProjectType),
			UseProjectDockerfile: p.UseProjectDockerfile,
			DockerfileName:       p.DockerfileName,
			Template:             p.Template,
			ResourcePackages:     p.ResourcePackages,
			Services:             resolveServices(p, tag),
		},
	}
	task.LogPath = task.ID + ".log"
	return task
}

// resolveServices derives the per-service image references. A per-service
// override is used verbatim; otherwise multi mode joins the pipeline image
// name with the service name and single mode uses the image name directly.
func resolveServices(p *pipeline.Pipeline, tag string) []ServiceBuild {
	if p.PushMode == pipeline.PushMulti && len(p.SelectedServices) > 0 {
		var services []ServiceBuild
		for _, name := range p.SelectedServices {
			cfg := p.ServicePushFor(name)
			effTag := tag
			if cfg.Tag != "" {
				effTag = cfg.Tag
			}
			ref := docker.ServiceImageRef(p.ImageName, name, effTag)
			if cfg.ImageName != "" {
				ref = docker.SingleImageRef(cfg.ImageName, effTag)
			}
			services = append(services, ServiceBuild{
				Name:           name,
				ImageRef:       ref,
				Push:           cfg.Push,
				Tag:            effTag,
				TemplateParams: p.TemplateParamsFor(name),
			})
		}
		return services
	}

	name := ""
	if len(p.SelectedServices) == 1 {
		name = p.SelectedServices[0]
	}
	cfg := p.ServicePushFor(name)
	effTag := tag
	if cfg.Tag != "" {
		effTag = cfg.Tag
	}
	imageName := p.ImageName
	if cfg.ImageName != "" {
		imageName = cfg.ImageName
	}
	return []ServiceBuild{{
		Name:           name,
		ImageRef:       docker.SingleImageRef(imageName, effTag),
		Push:           cfg.Push,
		Tag:            effTag,
		TemplateParams: p.TemplateParamsFor(name),
	}}
}
