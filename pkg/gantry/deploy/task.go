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

package deploy

import (
	"time"

	"github.com/google/uuid"

	"github.com/gantry-ci/gantry/pkg/gantry/deploy/schema"
)

// Status of one target, and of the task as an aggregate.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Result captures the decisive command of a target's execution: the last
// one on success, the failing one otherwise.
type Result struct {
	Success    bool   `json:"success"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
	Output     string `json:"output,omitempty"`
	Command    string `json:"command,omitempty"`
	ExitStatus int    `json:"exit_status"`
}

// Message is one line of a target's human-readable execution log.
type Message struct {
	Time time.Time `json:"time"`
	Text string    `json:"text"`
}

// TargetState is the per-target execution record.
type TargetState struct {
	Name     string `json:"name"`
	HostType string `json:"host_type"`
	HostRef  string `json:"host_ref"`

	Status      Status     `json:"status"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Result      *Result    `json:"result,omitempty"`
	Messages    []Message  `json:"messages,omitempty"`
}

// Task is a persistent deploy artifact. The YAML text is the source of
// truth; Config is derived from it on load and never stored.
type Task struct {
	ID            string `json:"task_id"`
	ConfigContent string `json:"-"`

	Config *schema.Config `json:"-"`

	Targets []TargetState `json:"targets"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewTask builds a task from already-parsed configuration, with every
// target pending.
func NewTask(content string, config *schema.Config) *Task {
	now := time.Now()
	task := &Task{
		ID:            uuid.NewString(),
		ConfigContent: content,
		Config:        config,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	task.ResetTargets()
	return task
}

// ResetTargets re-derives the pending target states from the config.
// Called on creation and before each execution.
func (t *Task) ResetTargets() {
	t.Targets = make([]TargetState, 0, len(t.Config.Targets))
	for _, target := range t.Config.Targets {
		t.Targets = append(t.Targets, TargetState{
			Name:     target.Name,
			HostType: target.HostType,
			HostRef:  target.HostName,
			Status:   StatusPending,
		})
	}
}

// AggregateStatus is computed, never stored: running while any target
// runs, failed if any target failed, completed when all succeeded.
func (t *Task) AggregateStatus() Status {
	anyRunning, anyFailed, anyPending := false, false, false
	for _, target := range t.Targets {
		switch target.Status {
		case StatusRunning:
			anyRunning = true
		case StatusFailed:
			anyFailed = true
		case StatusPending:
			anyPending = true
		}
	}
	switch {
	case anyRunning:
		return StatusRunning
	case anyFailed:
		return StatusFailed
	case anyPending:
		return StatusPending
	}
	return StatusCompleted
}

// AppName is a display helper for listings.
func (t *Task) AppName() string {
	if t.Config == nil {
		return ""
	}
	return t.Config.App.Name
}
