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

package build

import (
	"context"
	"io"
	"testing"
	"time"

	gErrors "github.com/gantry-ci/gantry/pkg/gantry/errors"
	"github.com/gantry-ci/gantry/testutil"
)

func newTask(pipelineID string, source TriggerSource, status Status, age time.Duration) *Task {
	task := NewTask(multiServicePipeline(), "main", "1.0", source, TriggerInfo{})
	task.PipelineID = pipelineID
	task.Status = status
	task.CreatedAt = time.Now().Add(-age)
	return task
}

func TestSweepStale(t *testing.T) {
	testutil.Run(t, "pending and running fail at boot", func(t *testutil.T) {
		store, err := NewStore(t.NewTempDir().Root())
		t.RequireNoError(err)
		t.RequireNoError(store.Save(newTask("p1", TriggerManual, StatusPending, 0)))
		t.RequireNoError(store.Save(newTask("p1", TriggerManual, StatusRunning, 0)))
		t.RequireNoError(store.Save(newTask("p1", TriggerManual, StatusCompleted, 0)))

		swept := store.SweepStale(context.Background())

		t.CheckDeepEqual(2, swept)
		tasks, _ := store.ListByPipeline("p1", TaskFilter{Status: StatusFailed})
		t.CheckDeepEqual(2, len(tasks))
		for _, task := range tasks {
			t.CheckDeepEqual("process restarted", task.Error)
			t.CheckTrue(task.CompletedAt != nil)
		}
	})
}

func TestTerminalStatesWriteOnce(t *testing.T) {
	testutil.Run(t, "completed cannot become failed", func(t *testutil.T) {
		store, err := NewStore(t.NewTempDir().Root())
		t.RequireNoError(err)
		task := newTask("p1", TriggerManual, StatusCompleted, 0)
		t.RequireNoError(store.Save(task))

		_, err = store.Mutate(task.ID, func(t *Task) {
			t.Status = StatusFailed
		})

		t.CheckError(true, err)
		t.CheckDeepEqual(gErrors.Conflict, gErrors.KindOf(err))
	})
}

func TestListByPipeline(t *testing.T) {
	testutil.Run(t, "ordering, filters, pagination", func(t *testutil.T) {
		store, err := NewStore(t.NewTempDir().Root())
		t.RequireNoError(err)
		oldest := newTask("p1", TriggerCron, StatusCompleted, 3*time.Hour)
		middle := newTask("p1", TriggerWebhook, StatusFailed, 2*time.Hour)
		newest := newTask("p1", TriggerWebhook, StatusCompleted, time.Hour)
		other := newTask("p2", TriggerManual, StatusCompleted, time.Minute)
		for _, task := range []*Task{oldest, middle, newest, other} {
			t.RequireNoError(store.Save(task))
		}

		tasks, total := store.ListByPipeline("p1", TaskFilter{})
		t.CheckDeepEqual(3, total)
		t.CheckDeepEqual(newest.ID, tasks[0].ID)
		t.CheckDeepEqual(oldest.ID, tasks[2].ID)

		tasks, total = store.ListByPipeline("p1", TaskFilter{Source: TriggerWebhook})
		t.CheckDeepEqual(2, total)
		t.CheckDeepEqual(2, len(tasks))

		tasks, total = store.ListByPipeline("p1", TaskFilter{Limit: 2, Offset: 2})
		t.CheckDeepEqual(3, total)
		t.CheckDeepEqual(1, len(tasks))
		t.CheckDeepEqual(oldest.ID, tasks[0].ID)
	})
}

func TestDeleteActiveTaskRejected(t *testing.T) {
	testutil.Run(t, "running tasks must be stopped first", func(t *testutil.T) {
		store, err := NewStore(t.NewTempDir().Root())
		t.RequireNoError(err)
		task := newTask("p1", TriggerManual, StatusRunning, 0)
		t.RequireNoError(store.Save(task))

		err = store.Delete(task.ID)

		t.CheckDeepEqual(gErrors.Conflict, gErrors.KindOf(err))
	})
}

func TestLogRoundTrip(t *testing.T) {
	testutil.Run(t, "reader sees what the writer appended", func(t *testutil.T) {
		store, err := NewStore(t.NewTempDir().Root())
		t.RequireNoError(err)
		task := newTask("p1", TriggerManual, StatusRunning, 0)
		t.RequireNoError(store.Save(task))

		logger, err := store.OpenLog(task)
		t.RequireNoError(err)
		_, err = logger.Write([]byte("line one\n"))
		t.RequireNoError(err)
		t.RequireNoError(logger.Sync())

		// Readers may tail while the writer holds the file open.
		r, err := store.ReadLog(task.ID)
		t.RequireNoError(err)
		content, err := io.ReadAll(r)
		r.Close()
		t.RequireNoError(err)
		t.CheckDeepEqual("line one\n", string(content))

		t.CheckNoError(logger.Close())
	})
}

func TestDissociatePipeline(t *testing.T) {
	testutil.Run(t, "history survives pipeline deletion", func(t *testutil.T) {
		store, err := NewStore(t.NewTempDir().Root())
		t.RequireNoError(err)
		task := newTask("p1", TriggerManual, StatusCompleted, 0)
		t.RequireNoError(store.Save(task))

		store.DissociatePipeline("p1")

		got, err := store.Get(task.ID)
		t.CheckNoError(err)
		t.CheckDeepEqual("", got.PipelineID)
	})
}

func TestStoreReloadTasks(t *testing.T) {
	testutil.Run(t, "records survive a restart", func(t *testutil.T) {
		dir := t.NewTempDir().Root()
		store, err := NewStore(dir)
		t.RequireNoError(err)
		task := newTask("p1", TriggerManual, StatusCompleted, 0)
		t.RequireNoError(store.Save(task))

		reloaded, err := NewStore(dir)
		t.RequireNoError(err)

		got, err := reloaded.Get(task.ID)
		t.CheckNoError(err)
		t.CheckDeepEqual(task.ID, got.ID)
	})
}
