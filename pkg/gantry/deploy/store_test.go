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
	"os"
	"testing"
	"time"

	gErrors "github.com/gantry-ci/gantry/pkg/gantry/errors"
	"github.com/gantry-ci/gantry/testutil"
)

const storeTestConfig = `
app:
  name: web
deploy:
  type: docker_run
  command: docker run -d --name web nginx:1.27
targets:
  - name: prod
    host_type: ssh
    host_name: prod-1
`

func TestStoreReparsesOnLoad(t *testing.T) {
	testutil.Run(t, "yaml verbatim, config derived", func(t *testutil.T) {
		dir := t.NewTempDir().Root()
		store, err := NewStore(dir)
		t.RequireNoError(err)
		task := createTask(t, store, storeTestConfig)

		reloaded, err := NewStore(dir)
		t.RequireNoError(err)
		got, err := reloaded.Get(task.ID)
		t.RequireNoError(err)

		t.CheckDeepEqual(storeTestConfig, got.ConfigContent)
		// Normalization happens on load, not in the stored text.
		t.CheckDeepEqual("-d --name web nginx:1.27", got.Config.Deploy.Command)
		t.CheckDeepEqual(1, len(got.Targets))
		t.CheckDeepEqual(StatusPending, got.Targets[0].Status)
	})
}

func TestStoreMessagesSurviveReload(t *testing.T) {
	testutil.Run(t, "execution state persists", func(t *testutil.T) {
		dir := t.NewTempDir().Root()
		store, err := NewStore(dir)
		t.RequireNoError(err)
		task := createTask(t, store, storeTestConfig)

		_, err = store.Mutate(task.ID, func(t *Task) {
			t.Targets[0].Status = StatusCompleted
			t.Targets[0].Messages = append(t.Targets[0].Messages, Message{Time: time.Now(), Text: "container started"})
		})
		t.RequireNoError(err)

		reloaded, err := NewStore(dir)
		t.RequireNoError(err)
		got, err := reloaded.Get(task.ID)
		t.RequireNoError(err)

		t.CheckDeepEqual(StatusCompleted, got.Targets[0].Status)
		t.CheckDeepEqual("container started", got.Targets[0].Messages[0].Text)
		t.CheckDeepEqual(StatusCompleted, got.AggregateStatus())
	})
}

func TestStoreDelete(t *testing.T) {
	testutil.Run(t, "both files removed", func(t *testutil.T) {
		tmp := t.NewTempDir()
		store, err := NewStore(tmp.Root())
		t.RequireNoError(err)
		task := createTask(t, store, storeTestConfig)

		t.RequireNoError(store.Delete(task.ID))

		_, err = store.Get(task.ID)
		t.CheckDeepEqual(gErrors.NotFound, gErrors.KindOf(err))
		_, err = os.Stat(tmp.Path(task.ID + ".yaml"))
		t.CheckTrue(os.IsNotExist(err))
	})
}

func TestStoreDeleteRunningRejected(t *testing.T) {
	testutil.Run(t, "running task stays", func(t *testutil.T) {
		store, err := NewStore(t.NewTempDir().Root())
		t.RequireNoError(err)
		task := createTask(t, store, storeTestConfig)

		_, err = store.Mutate(task.ID, func(t *Task) {
			t.Targets[0].Status = StatusRunning
		})
		t.RequireNoError(err)

		err = store.Delete(task.ID)
		t.CheckDeepEqual(gErrors.Conflict, gErrors.KindOf(err))
	})
}

func TestAggregateStatus(t *testing.T) {
	tests := []struct {
		description string
		statuses    []Status
		expected    Status
	}{
		{description: "all pending", statuses: []Status{StatusPending, StatusPending}, expected: StatusPending},
		{description: "any running wins", statuses: []Status{StatusCompleted, StatusRunning}, expected: StatusRunning},
		{description: "any failure fails", statuses: []Status{StatusCompleted, StatusFailed}, expected: StatusFailed},
		{description: "all completed", statuses: []Status{StatusCompleted, StatusCompleted}, expected: StatusCompleted},
	}
	for _, test := range tests {
		testutil.Run(t, test.description, func(t *testutil.T) {
			task := &Task{}
			for _, status := range test.statuses {
				task.Targets = append(task.Targets, TargetState{Status: status})
			}

			t.CheckDeepEqual(test.expected, task.AggregateStatus())
		})
	}
}
