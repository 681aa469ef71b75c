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
	"net/http"
	"time"

	"github.com/gantry-ci/gantry/pkg/gantry/build"
	gErrors "github.com/gantry-ci/gantry/pkg/gantry/errors"
	"github.com/gantry-ci/gantry/pkg/gantry/gitrepo"
	"github.com/gantry-ci/gantry/pkg/gantry/output/log"
	"github.com/gantry-ci/gantry/pkg/gantry/pipeline"
)

// Outcome is the result of feeding a trigger through the router. A
// skipped outcome carries no task: the trigger was accepted but, per the
// pipeline's configuration, nothing had to be built.
type Outcome struct {
	TaskID      string
	Branch      string
	Tag         string
	Queued      bool
	QueueLength int

	Skipped bool
	Reason  string
}

// Router turns webhook deliveries, manual runs, and cron matches into
// build tasks. Each entry point enqueues at most one task.
type Router struct {
	pipelines *pipeline.Store
	scheduler *build.Scheduler
	repos     *gitrepo.Service
}

func NewRouter(pipelines *pipeline.Store, scheduler *build.Scheduler, repos *gitrepo.Service) *Router {
	return &Router{
		pipelines: pipelines,
		scheduler: scheduler,
		repos:     repos,
	}
}

// HandleWebhook routes one provider delivery addressed by webhook token.
// Unknown tokens are NotFound; a verification failure is SignatureInvalid.
func (r *Router) HandleWebhook(ctx context.Context, token string, header http.Header, body []byte) (*Outcome, error) {
	p, err := r.pipelines.GetByToken(token)
	if err != nil {
		return nil, err
	}

	ev, err := ParseEvent(header, body)
	if err != nil {
		return nil, err
	}

	if err := VerifySignature(p.WebhookSecret, ev.Platform, header, body); err != nil {
		return nil, err
	}

	if !p.Enabled {
		return &Outcome{Skipped: true, Reason: "pipeline disabled"}, nil
	}
	if !ev.Push {
		return &Outcome{Skipped: true, Reason: "event ignored"}, nil
	}

	branch, proceed := effectiveBranch(p, ev.Branch)
	if !proceed {
		return &Outcome{Skipped: true, Reason: "branch filtered"}, nil
	}
	if branch == "" {
		branch = r.defaultBranch(ctx, p)
	}

	return r.synthesize(ctx, p, branch, build.TriggerWebhook, build.TriggerInfo{
		Platform: ev.Platform,
		Branch:   ev.Branch,
		Commit:   ev.Commit,
		Pusher:   ev.Pusher,
	})
}

// Run triggers a pipeline manually, optionally overriding the branch.
func (r *Router) Run(ctx context.Context, pipelineID, branchOverride string) (*Outcome, error) {
	p, err := r.pipelines.Get(pipelineID)
	if err != nil {
		return nil, err
	}

	branch := branchOverride
	if branch == "" {
		branch = p.Branch
	}
	if branch == "" {
		branch = r.defaultBranch(ctx, p)
	}

	return r.synthesize(ctx, p, branch, build.TriggerManual, build.TriggerInfo{Branch: branch})
}

// runCron enqueues one cron-matched build using the configured branch.
func (r *Router) runCron(ctx context.Context, p *pipeline.Pipeline) (*Outcome, error) {
	branch := p.Branch
	if branch == "" {
		branch = r.defaultBranch(ctx, p)
	}
	return r.synthesize(ctx, p, branch, build.TriggerCron, build.TriggerInfo{Branch: branch})
}

func (r *Router) synthesize(ctx context.Context, p *pipeline.Pipeline, branch string, source build.TriggerSource, info build.TriggerInfo) (*Outcome, error) {
	tag := resolveTag(p, branch)

	task := build.NewTask(p, branch, tag, source, info)
	queued, queueLen, err := r.scheduler.Enqueue(task)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := r.pipelines.Mutate(p.ID, func(p *pipeline.Pipeline) {
		p.TriggerCount++
		p.LastTriggeredAt = &now
	}); err != nil {
		log.Entry(ctx).Warnf("recording trigger on pipeline %s: %v", p.ID, err)
	}

	return &Outcome{
		TaskID:      task.ID,
		Branch:      branch,
		Tag:         tag,
		Queued:      queued,
		QueueLength: queueLen,
	}, nil
}

// defaultBranch asks the introspection service; an unreachable repository
// falls back to master so the clone surfaces the real error in the log.
func (r *Router) defaultBranch(ctx context.Context, p *pipeline.Pipeline) string {
	if r.repos != nil {
		refs, err := r.repos.ResolveBranchesAndTags(ctx, p.GitURL, p.SourceID, false)
		if err == nil && refs.DefaultBranch != "" {
			return refs.DefaultBranch
		}
		if err != nil {
			log.Entry(ctx).Debugf("resolving default branch of %s: %v", p.GitURL, err)
		}
	}
	return "master"
}

// OnBuildFinished is the scheduler's terminal-state callback: it maintains
// the owning pipeline's success/failure counters and last-build snapshot.
func (r *Router) OnBuildFinished(task *build.Task) {
	if task.PipelineID == "" {
		return
	}

	snapshot := &pipeline.BuildSnapshot{
		TaskID: task.ID,
		Status: string(task.Status),
		Branch: task.Branch,
		Tag:    task.Tag,
	}
	if task.CompletedAt != nil {
		snapshot.CompletedAt = *task.CompletedAt
	}

	err := r.pipelines.Mutate(task.PipelineID, func(p *pipeline.Pipeline) {
		switch task.Status {
		case build.StatusCompleted:
			p.SuccessCount++
		case build.StatusFailed:
			p.FailedCount++
		}
		p.LastBuild = snapshot
	})
	if err != nil && gErrors.KindOf(err) != gErrors.NotFound {
		log.Entry(context.TODO()).Warnf("recording build result on pipeline %s: %v", task.PipelineID, err)
	}
}
