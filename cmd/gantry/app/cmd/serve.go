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

package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gantry-ci/gantry/pkg/gantry/build"
	"github.com/gantry-ci/gantry/pkg/gantry/deploy"
	"github.com/gantry-ci/gantry/pkg/gantry/gitrepo"
	"github.com/gantry-ci/gantry/pkg/gantry/hosts"
	"github.com/gantry-ci/gantry/pkg/gantry/output/log"
	"github.com/gantry-ci/gantry/pkg/gantry/pipeline"
	"github.com/gantry-ci/gantry/pkg/gantry/resourcepkg"
	"github.com/gantry-ci/gantry/pkg/gantry/server"
	"github.com/gantry-ci/gantry/pkg/gantry/sources"
	"github.com/gantry-ci/gantry/pkg/gantry/trigger"
	"github.com/gantry-ci/gantry/pkg/gantry/version"
)

func NewCmdServe(out io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gantry API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(out)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", opts.Addr, "HTTP listen address")
	cmd.Flags().StringVar(&opts.DataDir, "data-dir", opts.DataDir, "Directory holding all persisted state")
	cmd.Flags().IntVar(&opts.BuildWorkers, "workers", opts.BuildWorkers, "Number of concurrently running build tasks")
	cmd.Flags().IntVar(&opts.DeployWorkers, "deploy-workers", opts.DeployWorkers, "Number of concurrently executing deploy tasks")
	cmd.Flags().DurationVar(&opts.CacheTTL, "cache-ttl", opts.CacheTTL, "How long repository introspection results are cached")
	return cmd
}

func runServe(out io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	pipelines, err := pipeline.NewStore(opts.PipelinesDir())
	if err != nil {
		return err
	}
	builds, err := build.NewStore(opts.BuildTasksDir())
	if err != nil {
		return err
	}
	deploys, err := deploy.NewStore(opts.DeployTasksDir())
	if err != nil {
		return err
	}
	hostStore, err := hosts.NewStore(opts.HostsFile())
	if err != nil {
		return err
	}
	sourceStore, err := sources.NewStore(opts.GitSourcesFile())
	if err != nil {
		return err
	}
	resources, err := resourcepkg.NewStore(opts.ResourcesDir())
	if err != nil {
		return err
	}

	if swept := builds.SweepStale(ctx); swept > 0 {
		log.Entry(ctx).Infof("marked %d interrupted build task(s) failed", swept)
	}

	repos := gitrepo.NewService(sourceStore, opts.CacheDir(), opts.CacheTTL)
	builder := build.NewBuilder(sourceStore, resources, opts.WorkspacesDir())

	// The router records build results back on pipelines, so it observes
	// every terminal task. It needs the scheduler it feeds; break the cycle
	// with a late binding.
	var router *trigger.Router
	scheduler := build.NewScheduler(builds, builder.Build, opts.BuildWorkers, func(task *build.Task) {
		router.OnBuildFinished(task)
	})
	router = trigger.NewRouter(pipelines, scheduler, repos)
	executor := deploy.NewExecutor(deploys, hostStore, opts.DeployWorkers)

	scheduler.Start(ctx)
	trigger.NewCron(pipelines, router).Start(ctx)
	go housekeep(ctx, repos, opts.CacheTTL)

	srv := &server.Server{
		Pipelines: pipelines,
		Builds:    builds,
		Scheduler: scheduler,
		Trigger:   router,
		Repos:     repos,
		Deploys:   deploys,
		Executor:  executor,
		Hosts:     hostStore,
		Sources:   sourceStore,
		Resources: resources,
	}
	httpServer := &http.Server{
		Addr:    opts.Addr,
		Handler: srv.Handler(),
	}

	errc := make(chan error, 1)
	go func() {
		errc <- httpServer.ListenAndServe()
	}()
	fmt.Fprintf(out, "gantry %s listening on %s\n", version.Get().Version, opts.Addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Entry(ctx).Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Entry(ctx).Warnf("http shutdown: %v", err)
	}
	scheduler.Stop()
	executor.Wait()
	return nil
}

func housekeep(ctx context.Context, repos *gitrepo.Service, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			repos.Housekeep()
		}
	}
}
