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
	"time"

	"github.com/gantry-ci/gantry/pkg/gantry/constants"
	"github.com/gantry-ci/gantry/pkg/gantry/output/log"
	"github.com/gantry-ci/gantry/pkg/gantry/pipeline"
)

// Cron evaluates every enabled pipeline's cron expression once per minute
// and enqueues a build for each match.
type Cron struct {
	pipelines *pipeline.Store
	router    *Router
}

func NewCron(pipelines *pipeline.Store, router *Router) *Cron {
	return &Cron{pipelines: pipelines, router: router}
}

// Start runs the ticker until ctx is cancelled. Ticks align to minute
// boundaries; each minute is evaluated exactly once.
func (c *Cron) Start(ctx context.Context) {
	ctx = log.WithEventContext(ctx, constants.Trigger, "cron")
	go func() {
		for {
			now := time.Now()
			next := now.Truncate(time.Minute).Add(time.Minute)
			select {
			case <-ctx.Done():
				return
			case <-time.After(next.Sub(now)):
			}
			c.Tick(ctx, next)
		}
	}()
}

// Tick evaluates one minute boundary.
func (c *Cron) Tick(ctx context.Context, now time.Time) {
	minute := now.Truncate(time.Minute)

	for _, p := range c.pipelines.List() {
		if !p.Enabled || p.CronExpression == "" {
			continue
		}
		schedule, err := pipeline.CronParser.Parse(p.CronExpression)
		if err != nil {
			// Validate rejects bad expressions; stored records predating a
			// grammar change could still carry one.
			log.Entry(ctx).Warnf("pipeline %s: bad cron expression %q: %v", p.ID, p.CronExpression, err)
			continue
		}
		if !schedule.Next(minute.Add(-time.Second)).Equal(minute) {
			continue
		}

		outcome, err := c.router.runCron(ctx, p)
		if err != nil {
			log.Entry(ctx).Warnf("cron trigger of pipeline %s: %v", p.ID, err)
			continue
		}
		log.Entry(ctx).Infof("Cron triggered pipeline %s: task %s", p.ID, outcome.TaskID)
	}
}
