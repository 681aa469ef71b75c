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
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/gantry-ci/gantry/pkg/gantry/build"
	gErrors "github.com/gantry-ci/gantry/pkg/gantry/errors"
	"github.com/gantry-ci/gantry/pkg/gantry/pipeline"
	"github.com/gantry-ci/gantry/testutil"
)

func testRouter(t *testutil.T) (*Router, *pipeline.Store, *build.Store) {
	pipelines, err := pipeline.NewStore(t.NewTempDir().Root())
	t.RequireNoError(err)
	builds, err := build.NewStore(t.NewTempDir().Root())
	t.RequireNoError(err)
	noopRun := func(context.Context, *build.Task, io.Writer) error { return nil }
	scheduler := build.NewScheduler(builds, noopRun, 1, nil)
	// Workers never start: enqueued tasks stay pending for inspection.
	return NewRouter(pipelines, scheduler, nil), pipelines, builds
}

func testPipeline() *pipeline.Pipeline {
	return &pipeline.Pipeline{
		GitURL:               "https://example.com/acme/app.git",
		ProjectType:          pipeline.ProjectGo,
		UseProjectDockerfile: true,
		ImageName:            "acme/app",
		Tag:                  "latest",
		Branch:               "main",
		Enabled:              true,
		WebhookBranchStrategy: pipeline.StrategyUsePush,
		BranchTagMapping: pipeline.BranchTagMapping{
			{Branch: "main", Tag: "prod"},
			{Branch: "feature/*", Tag: "dev"},
		},
	}
}

func githubPush(branch, commit string) (http.Header, []byte) {
	header := http.Header{}
	header.Set("X-GitHub-Event", "push")
	body := []byte(`{"ref":"refs/heads/` + branch + `","after":"` + commit + `","pusher":{"name":"alice"}}`)
	return header, body
}

func TestWebhookTagMapping(t *testing.T) {
	tests := []struct {
		description string
		branch      string
		wantTag     string
	}{
		{description: "exact rule wins", branch: "main", wantTag: "prod"},
		{description: "glob rule wins", branch: "feature/x", wantTag: "dev"},
		{description: "no rule keeps the global tag", branch: "hotfix", wantTag: "latest"},
	}
	for _, test := range tests {
		testutil.Run(t, test.description, func(t *testutil.T) {
			router, pipelines, builds := testRouter(t)
			p, err := pipelines.Create(testPipeline())
			t.RequireNoError(err)

			header, body := githubPush(test.branch, "abc123")
			outcome, err := router.HandleWebhook(context.Background(), p.WebhookToken, header, body)

			t.RequireNoError(err)
			t.CheckDeepEqual(test.branch, outcome.Branch)
			t.CheckDeepEqual(test.wantTag, outcome.Tag)

			task, err := builds.Get(outcome.TaskID)
			t.RequireNoError(err)
			t.CheckDeepEqual(test.branch, task.Branch)
			t.CheckDeepEqual(test.wantTag, task.Tag)
			t.CheckDeepEqual(build.TriggerWebhook, task.Source)
			t.CheckDeepEqual("alice", task.Trigger.Pusher)
			t.CheckDeepEqual("abc123", task.Trigger.Commit)
		})
	}
}

func TestWebhookUnknownToken(t *testing.T) {
	testutil.Run(t, "no task, not found", func(t *testutil.T) {
		router, _, _ := testRouter(t)

		header, body := githubPush("main", "abc")
		_, err := router.HandleWebhook(context.Background(), "no-such-token", header, body)

		t.CheckDeepEqual(gErrors.NotFound, gErrors.KindOf(err))
	})
}

func TestWebhookSignature(t *testing.T) {
	testutil.Run(t, "valid signature builds", func(t *testutil.T) {
		router, pipelines, _ := testRouter(t)
		src := testPipeline()
		src.WebhookSecret = "s3cret"
		p, err := pipelines.Create(src)
		t.RequireNoError(err)

		header, body := githubPush("main", "abc")
		mac := hmac.New(sha256.New, []byte(p.WebhookSecret))
		mac.Write(body)
		header.Set("X-Hub-Signature-256", "sha256="+hex.EncodeToString(mac.Sum(nil)))

		outcome, err := router.HandleWebhook(context.Background(), p.WebhookToken, header, body)
		t.CheckNoError(err)
		t.CheckTrue(outcome.TaskID != "")
	})

	testutil.Run(t, "mismatch rejects without a task", func(t *testutil.T) {
		router, pipelines, builds := testRouter(t)
		src := testPipeline()
		src.WebhookSecret = "s3cret"
		p, err := pipelines.Create(src)
		t.RequireNoError(err)

		header, body := githubPush("main", "abc")
		header.Set("X-Hub-Signature-256", "sha256=deadbeef")

		_, err = router.HandleWebhook(context.Background(), p.WebhookToken, header, body)

		t.CheckDeepEqual(gErrors.SignatureInvalid, gErrors.KindOf(err))
		tasks, _ := builds.ListByPipeline(p.ID, build.TaskFilter{})
		t.CheckEmpty(tasks)
	})
}

func TestWebhookNonPushAcknowledged(t *testing.T) {
	testutil.Run(t, "ping produces no build", func(t *testutil.T) {
		router, pipelines, builds := testRouter(t)
		p, err := pipelines.Create(testPipeline())
		t.RequireNoError(err)

		header := http.Header{}
		header.Set("X-GitHub-Event", "ping")

		outcome, err := router.HandleWebhook(context.Background(), p.WebhookToken, header, []byte(`{"zen":"ok"}`))

		t.RequireNoError(err)
		t.CheckTrue(outcome.Skipped)
		tasks, _ := builds.ListByPipeline(p.ID, build.TaskFilter{})
		t.CheckEmpty(tasks)
	})
}

func TestWebhookFilterMatch(t *testing.T) {
	tests := []struct {
		description string
		branch      string
		wantSkipped bool
	}{
		{description: "configured branch builds", branch: "main"},
		{description: "mapping key builds", branch: "feature/login"},
		{description: "anything else is filtered", branch: "scratch", wantSkipped: true},
	}
	for _, test := range tests {
		testutil.Run(t, test.description, func(t *testutil.T) {
			router, pipelines, builds := testRouter(t)
			src := testPipeline()
			src.WebhookBranchStrategy = pipeline.StrategyFilterMatch
			p, err := pipelines.Create(src)
			t.RequireNoError(err)

			header, body := githubPush(test.branch, "abc")
			outcome, err := router.HandleWebhook(context.Background(), p.WebhookToken, header, body)

			t.RequireNoError(err)
			t.CheckDeepEqual(test.wantSkipped, outcome.Skipped)
			tasks, _ := builds.ListByPipeline(p.ID, build.TaskFilter{})
			if test.wantSkipped {
				t.CheckEmpty(tasks)
			} else {
				t.CheckDeepEqual(1, len(tasks))
			}
		})
	}
}

func TestWebhookUseConfigured(t *testing.T) {
	testutil.Run(t, "pushed branch only informs trigger_info", func(t *testutil.T) {
		router, pipelines, builds := testRouter(t)
		src := testPipeline()
		src.WebhookBranchStrategy = pipeline.StrategyUseConfigured
		p, err := pipelines.Create(src)
		t.RequireNoError(err)

		header, body := githubPush("feature/x", "abc")
		outcome, err := router.HandleWebhook(context.Background(), p.WebhookToken, header, body)

		t.RequireNoError(err)
		t.CheckDeepEqual("main", outcome.Branch)
		task, err := builds.Get(outcome.TaskID)
		t.RequireNoError(err)
		t.CheckDeepEqual("main", task.Branch)
		t.CheckDeepEqual("feature/x", task.Trigger.Branch)
	})
}

func TestManualRun(t *testing.T) {
	testutil.Run(t, "branch override and stats", func(t *testutil.T) {
		router, pipelines, builds := testRouter(t)
		p, err := pipelines.Create(testPipeline())
		t.RequireNoError(err)

		outcome, err := router.Run(context.Background(), p.ID, "release/1.2")

		t.RequireNoError(err)
		t.CheckDeepEqual("release/1.2", outcome.Branch)
		t.CheckFalse(outcome.Queued)

		task, err := builds.Get(outcome.TaskID)
		t.RequireNoError(err)
		t.CheckDeepEqual(build.TriggerManual, task.Source)

		updated, err := pipelines.Get(p.ID)
		t.RequireNoError(err)
		t.CheckDeepEqual(1, updated.TriggerCount)
		t.CheckTrue(updated.LastTriggeredAt != nil)
	})
}

func TestOnBuildFinished(t *testing.T) {
	testutil.Run(t, "counters and last build snapshot", func(t *testutil.T) {
		router, pipelines, _ := testRouter(t)
		p, err := pipelines.Create(testPipeline())
		t.RequireNoError(err)

		now := time.Now()
		completed := build.NewTask(p, "main", "prod", build.TriggerWebhook, build.TriggerInfo{})
		completed.Status = build.StatusCompleted
		completed.CompletedAt = &now
		router.OnBuildFinished(completed)

		failed := build.NewTask(p, "main", "prod", build.TriggerWebhook, build.TriggerInfo{})
		failed.Status = build.StatusFailed
		failed.CompletedAt = &now
		router.OnBuildFinished(failed)

		updated, err := pipelines.Get(p.ID)
		t.RequireNoError(err)
		t.CheckDeepEqual(1, updated.SuccessCount)
		t.CheckDeepEqual(1, updated.FailedCount)
		t.CheckDeepEqual(failed.ID, updated.LastBuild.TaskID)
		t.CheckDeepEqual("failed", updated.LastBuild.Status)
	})
}
