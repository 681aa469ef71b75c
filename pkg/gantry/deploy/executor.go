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
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/semgroup"
	"github.com/kballard/go-shellquote"

	"github.com/gantry-ci/gantry/pkg/gantry/constants"
	"github.com/gantry-ci/gantry/pkg/gantry/deploy/schema"
	gErrors "github.com/gantry-ci/gantry/pkg/gantry/errors"
	"github.com/gantry-ci/gantry/pkg/gantry/hosts"
	"github.com/gantry-ci/gantry/pkg/gantry/output/log"
	"github.com/gantry-ci/gantry/pkg/gantry/remote"
)

const remoteWorkRoot = "/tmp/gantry-deploys"

// Executor runs deploy tasks. Targets of one task run sequentially in
// declaration order; distinct tasks run concurrently up to the cap.
type Executor struct {
	store *Store
	hosts *hosts.Store
	group *semgroup.Group
}

func NewExecutor(store *Store, hostStore *hosts.Store, maxConcurrent int) *Executor {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Executor{
		store: store,
		hosts: hostStore,
		group: semgroup.NewGroup(context.Background(), int64(maxConcurrent)),
	}
}

// Execute starts the task in the background and returns immediately.
// Progress is observed by polling the store.
func (e *Executor) Execute(ctx context.Context, taskID string) error {
	task, err := e.store.Get(taskID)
	if err != nil {
		return err
	}
	if task.AggregateStatus() == StatusRunning {
		return gErrors.Newf(gErrors.Conflict, "deploy task %q is already running", taskID)
	}

	if _, err := e.store.Mutate(taskID, func(t *Task) {
		t.ResetTargets()
	}); err != nil {
		return err
	}

	runCtx := log.WithEventContext(context.Background(), constants.Deploy, taskID)
	e.group.Go(func() error {
		e.run(runCtx, taskID)
		return nil
	})
	return nil
}

// Wait blocks until every started execution completed. Used for graceful
// shutdown.
func (e *Executor) Wait() {
	if err := e.group.Wait(); err != nil {
		log.Entry(context.TODO()).Warnf("deploy executions: %v", err)
	}
}

func (e *Executor) run(ctx context.Context, taskID string) {
	task, err := e.store.Get(taskID)
	if err != nil {
		log.Entry(ctx).Warnf("loading deploy task: %v", err)
		return
	}

	for i := range task.Targets {
		e.runTarget(ctx, task, i)
	}
	log.Entry(ctx).Infof("Deploy task %s finished: %s", taskID, mustStatus(e.store, taskID))
}

func (e *Executor) runTarget(ctx context.Context, task *Task, idx int) {
	target := task.Targets[idx]
	now := time.Now()
	e.mutateTarget(task.ID, idx, func(t *TargetState) {
		t.Status = StatusRunning
		t.StartedAt = &now
	})
	e.say(task.ID, idx, fmt.Sprintf("deploying to %s (%s %s)", target.Name, target.HostType, target.HostRef))

	host, err := e.hosts.Resolve(hosts.Kind(target.HostType), target.HostRef)
	if err != nil {
		e.failTarget(task.ID, idx, &Result{Error: err.Error(), Message: "host not found", ExitStatus: -1})
		return
	}

	runner, err := remote.NewRunner(host)
	if err != nil {
		e.failTarget(task.ID, idx, &Result{Error: err.Error(), Message: "connecting to host failed", ExitStatus: -1})
		return
	}
	defer runner.Close()

	result := e.runPlan(ctx, runner, task, idx)
	if result.Success {
		completed := time.Now()
		e.mutateTarget(task.ID, idx, func(t *TargetState) {
			t.Status = StatusCompleted
			t.CompletedAt = &completed
			t.Result = result
		})
		e.say(task.ID, idx, result.Message)
	} else {
		e.failTarget(task.ID, idx, result)
	}
}

// runPlan executes the task's plan on one connected target and returns
// the decisive result.
func (e *Executor) runPlan(ctx context.Context, runner remote.Runner, task *Task, idx int) *Result {
	plan := task.Config.Deploy

	switch {
	case len(plan.Steps) > 0:
		return e.runSteps(ctx, runner, task, idx, plan.Steps)
	case plan.Type == schema.TypeDockerCompose:
		return e.runCompose(ctx, runner, task, idx, plan)
	default:
		return e.runDockerRun(ctx, runner, task, idx, plan)
	}
}

func (e *Executor) runDockerRun(ctx context.Context, runner remote.Runner, task *Task, idx int, plan *schema.Plan) *Result {
	if plan.Redeploy {
		if name := containerName(plan.Command); name != "" {
			// Best effort: the container may not exist yet.
			e.exec(ctx, runner, task.ID, idx, "docker stop "+name+" || true")
			e.exec(ctx, runner, task.ID, idx, "docker rm "+name+" || true")
		}
	}

	command := "docker run " + plan.Command
	output, exitStatus, err := e.exec(ctx, runner, task.ID, idx, command)
	return resultOf(command, output, exitStatus, err, "container started")
}

func (e *Executor) runCompose(ctx context.Context, runner remote.Runner, task *Task, idx int, plan *schema.Plan) *Result {
	workdir := remoteWorkRoot + "/" + task.ID
	manifest := workdir + "/docker-compose.yml"

	e.say(task.ID, idx, "uploading "+manifest)
	if err := runner.WriteFile(ctx, manifest, []byte(plan.ComposeContent)); err != nil {
		return &Result{Error: err.Error(), Message: "uploading compose manifest failed", ExitStatus: -1}
	}

	if plan.Redeploy {
		e.exec(ctx, runner, task.ID, idx, "cd "+workdir+" && docker-compose down || true")
	}

	command := "cd " + workdir + " && docker-compose " + plan.Command
	output, exitStatus, err := e.exec(ctx, runner, task.ID, idx, command)
	return resultOf(command, output, exitStatus, err, "compose applied")
}

func (e *Executor) runSteps(ctx context.Context, runner remote.Runner, task *Task, idx int, steps []schema.Step) *Result {
	var last *Result
	for i, step := range steps {
		e.say(task.ID, idx, fmt.Sprintf("step %d/%d: %s", i+1, len(steps), step.Name))
		output, exitStatus, err := e.exec(ctx, runner, task.ID, idx, step.Command)
		last = resultOf(step.Command, output, exitStatus, err, fmt.Sprintf("step %q succeeded", step.Name))
		if !last.Success {
			last.Message = fmt.Sprintf("step %q failed", step.Name)
			return last
		}
	}
	if last == nil {
		return &Result{Success: true, Message: "nothing to do"}
	}
	last.Message = "all steps succeeded"
	return last
}

// exec runs one command on the target, mirroring it and its output into
// the message stream.
func (e *Executor) exec(ctx context.Context, runner remote.Runner, taskID string, idx int, command string) (string, int, error) {
	e.say(taskID, idx, "$ "+command)
	output, exitStatus, err := runner.Run(ctx, command)
	if trimmed := strings.TrimSpace(output); trimmed != "" {
		e.say(taskID, idx, trimmed)
	}
	if err != nil {
		e.say(taskID, idx, "error: "+err.Error())
	} else if exitStatus != 0 {
		e.say(taskID, idx, fmt.Sprintf("exit status %d", exitStatus))
	}
	return output, exitStatus, err
}

func (e *Executor) failTarget(taskID string, idx int, result *Result) {
	now := time.Now()
	e.mutateTarget(taskID, idx, func(t *TargetState) {
		t.Status = StatusFailed
		t.CompletedAt = &now
		t.Result = result
	})
	text := result.Message
	if result.Error != "" {
		text += ": " + result.Error
	}
	e.say(taskID, idx, text)
}

func (e *Executor) mutateTarget(taskID string, idx int, fn func(t *TargetState)) {
	if _, err := e.store.Mutate(taskID, func(t *Task) {
		if idx < len(t.Targets) {
			fn(&t.Targets[idx])
		}
	}); err != nil {
		log.Entry(context.TODO()).Warnf("updating deploy task %s: %v", taskID, err)
	}
}

func (e *Executor) say(taskID string, idx int, text string) {
	e.mutateTarget(taskID, idx, func(t *TargetState) {
		t.Messages = append(t.Messages, Message{Time: time.Now(), Text: text})
	})
}

func resultOf(command, output string, exitStatus int, err error, successMessage string) *Result {
	result := &Result{
		Command:    command,
		Output:     output,
		ExitStatus: exitStatus,
	}
	switch {
	case err != nil:
		result.Error = err.Error()
		result.Message = "execution failed"
	case exitStatus != 0:
		result.Error = gErrors.Newf(gErrors.RemoteExecFailed, "exit status %d", exitStatus).Error()
		result.Message = "command failed"
	default:
		result.Success = true
		result.Message = successMessage
	}
	return result
}

// containerName extracts the value of --name (or --name=) from a docker
// run arg string.
func containerName(command string) string {
	args, err := shellquote.Split(command)
	if err != nil {
		return ""
	}
	for i, arg := range args {
		if arg == "--name" && i+1 < len(args) {
			return args[i+1]
		}
		if strings.HasPrefix(arg, "--name=") {
			return strings.TrimPrefix(arg, "--name=")
		}
	}
	return ""
}

func mustStatus(store *Store, taskID string) Status {
	task, err := store.Get(taskID)
	if err != nil {
		return StatusFailed
	}
	return task.AggregateStatus()
}
