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
	"sync"
	"testing"
	"time"

	"github.com/gantry-ci/gantry/pkg/gantry/deploy/schema"
	"github.com/gantry-ci/gantry/pkg/gantry/hosts"
	"github.com/gantry-ci/gantry/pkg/gantry/remote"
	"github.com/gantry-ci/gantry/testutil"
)

// fakeRunner records commands and replies from a script of exit codes.
type fakeRunner struct {
	mu       sync.Mutex
	commands []string
	files    map[string]string
	exits    map[string]int
}

func (f *fakeRunner) Run(_ context.Context, command string) (string, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, command)
	return "ok\n", f.exits[command], nil
}

func (f *fakeRunner) WriteFile(_ context.Context, path string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.files == nil {
		f.files = map[string]string{}
	}
	f.files[path] = string(data)
	return nil
}

func (f *fakeRunner) Close() error { return nil }

func (f *fakeRunner) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

func testHosts(t *testutil.T) *hosts.Store {
	store, err := hosts.NewStore(t.NewTempDir().Path("hosts.json"))
	t.RequireNoError(err)
	t.RequireNoError(store.Save(&hosts.Host{
		Name:    "prod-1",
		Kind:    hosts.KindSSH,
		Address: "10.0.0.1",
		User:    "deploy",
		KeyPEM:  "irrelevant, the runner is faked",
	}))
	return store
}

func createTask(t *testutil.T, store *Store, content string) *Task {
	config, err := schema.Parse([]byte(content))
	t.RequireNoError(err)
	task := NewTask(content, config)
	t.RequireNoError(store.Create(task))
	return task
}

func waitDone(t *testutil.T, store *Store, taskID string) *Task {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		task, err := store.Get(taskID)
		t.RequireNoError(err)
		status := task.AggregateStatus()
		if status != StatusRunning && status != StatusPending {
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("deploy task %s never finished", taskID)
	return nil
}

func TestExecuteDockerRunRedeploy(t *testing.T) {
	testutil.Run(t, "stop and rm precede the run", func(t *testutil.T) {
		runner := &fakeRunner{}
		t.Override(&remote.NewRunner, func(*hosts.Host) (remote.Runner, error) { return runner, nil })

		store, err := NewStore(t.NewTempDir().Root())
		t.RequireNoError(err)
		task := createTask(t, store, `
app:
  name: svc
deploy:
  type: docker_run
  command: -d --name svc acme/app:1.0
  redeploy: true
targets:
  - name: prod
    host_type: ssh
    host_name: prod-1
`)
		executor := NewExecutor(store, testHosts(t), 2)

		t.RequireNoError(executor.Execute(context.Background(), task.ID))
		done := waitDone(t, store, task.ID)

		t.CheckDeepEqual(StatusCompleted, done.AggregateStatus())
		t.CheckDeepEqual([]string{
			"docker stop svc || true",
			"docker rm svc || true",
			"docker run -d --name svc acme/app:1.0",
		}, runner.recorded())

		target := done.Targets[0]
		t.CheckDeepEqual(StatusCompleted, target.Status)
		t.CheckTrue(target.Result.Success)
		t.CheckDeepEqual("docker run -d --name svc acme/app:1.0", target.Result.Command)
		t.CheckDeepEqual(0, target.Result.ExitStatus)
	})
}

func TestExecuteCompose(t *testing.T) {
	testutil.Run(t, "manifest is uploaded before compose runs", func(t *testutil.T) {
		runner := &fakeRunner{}
		t.Override(&remote.NewRunner, func(*hosts.Host) (remote.Runner, error) { return runner, nil })

		store, err := NewStore(t.NewTempDir().Root())
		t.RequireNoError(err)
		task := createTask(t, store, `
app:
  name: web
deploy:
  type: docker_compose
  command: up -d
  compose_content: "services:\n  web:\n    image: nginx\n"
targets:
  - name: prod
    host_type: ssh
    host_name: prod-1
`)
		executor := NewExecutor(store, testHosts(t), 2)

		t.RequireNoError(executor.Execute(context.Background(), task.ID))
		done := waitDone(t, store, task.ID)

		t.CheckDeepEqual(StatusCompleted, done.AggregateStatus())
		manifest := remoteWorkRoot + "/" + task.ID + "/docker-compose.yml"
		t.CheckContains("image: nginx", runner.files[manifest])
		t.CheckDeepEqual([]string{
			"cd " + remoteWorkRoot + "/" + task.ID + " && docker-compose up -d",
		}, runner.recorded())
	})
}

func TestExecuteStepsStopOnFailure(t *testing.T) {
	testutil.Run(t, "a failing step skips the rest of its target", func(t *testutil.T) {
		runner := &fakeRunner{exits: map[string]int{"false": 7}}
		t.Override(&remote.NewRunner, func(*hosts.Host) (remote.Runner, error) { return runner, nil })

		store, err := NewStore(t.NewTempDir().Root())
		t.RequireNoError(err)
		task := createTask(t, store, `
app:
  name: batch
deploy:
  steps:
    - name: ok
      command: "true"
    - name: boom
      command: "false"
    - name: never
      command: echo unreachable
targets:
  - name: prod
    host_type: ssh
    host_name: prod-1
`)
		executor := NewExecutor(store, testHosts(t), 2)

		t.RequireNoError(executor.Execute(context.Background(), task.ID))
		done := waitDone(t, store, task.ID)

		t.CheckDeepEqual(StatusFailed, done.AggregateStatus())
		t.CheckDeepEqual([]string{"true", "false"}, runner.recorded())
		target := done.Targets[0]
		t.CheckDeepEqual(`step "boom" failed`, target.Result.Message)
		t.CheckDeepEqual(7, target.Result.ExitStatus)
	})
}

func TestExecuteMissingHostContinues(t *testing.T) {
	testutil.Run(t, "unknown host fails its target only", func(t *testutil.T) {
		runner := &fakeRunner{}
		t.Override(&remote.NewRunner, func(*hosts.Host) (remote.Runner, error) { return runner, nil })

		store, err := NewStore(t.NewTempDir().Root())
		t.RequireNoError(err)
		task := createTask(t, store, `
app:
  name: svc
deploy:
  type: docker_run
  command: -d acme/app:1.0
targets:
  - name: ghost
    host_type: ssh
    host_name: nowhere
  - name: prod
    host_type: ssh
    host_name: prod-1
`)
		executor := NewExecutor(store, testHosts(t), 2)

		t.RequireNoError(executor.Execute(context.Background(), task.ID))
		done := waitDone(t, store, task.ID)

		t.CheckDeepEqual(StatusFailed, done.AggregateStatus())
		t.CheckDeepEqual(StatusFailed, done.Targets[0].Status)
		t.CheckContains("not found", done.Targets[0].Result.Error)
		t.CheckDeepEqual(StatusCompleted, done.Targets[1].Status)

		// Target start times follow declaration order.
		t.CheckTrue(!done.Targets[1].StartedAt.Before(*done.Targets[0].StartedAt))
	})
}

func TestExecuteRejectsWhileRunning(t *testing.T) {
	testutil.Run(t, "second execute conflicts", func(t *testutil.T) {
		release := make(chan struct{})
		started := make(chan struct{})
		var once sync.Once
		blocking := &blockingRunner{release: release, started: started, once: &once}
		t.Override(&remote.NewRunner, func(*hosts.Host) (remote.Runner, error) { return blocking, nil })

		store, err := NewStore(t.NewTempDir().Root())
		t.RequireNoError(err)
		task := createTask(t, store, `
app:
  name: svc
deploy:
  type: docker_run
  command: -d acme/app:1.0
targets:
  - name: prod
    host_type: ssh
    host_name: prod-1
`)
		executor := NewExecutor(store, testHosts(t), 2)

		t.RequireNoError(executor.Execute(context.Background(), task.ID))
		<-started

		err = executor.Execute(context.Background(), task.ID)
		t.CheckErrorContains("already running", err)

		close(release)
		waitDone(t, store, task.ID)
	})
}

type blockingRunner struct {
	release chan struct{}
	started chan struct{}
	once    *sync.Once
}

func (b *blockingRunner) Run(context.Context, string) (string, int, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return "", 0, nil
}

func (b *blockingRunner) WriteFile(context.Context, string, []byte) error { return nil }

func (b *blockingRunner) Close() error { return nil }
