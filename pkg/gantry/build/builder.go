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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"

	"github.com/gantry-ci/gantry/pkg/gantry/constants"
	"github.com/gantry-ci/gantry/pkg/gantry/docker"
	"github.com/gantry-ci/gantry/pkg/gantry/dockerfile"
	gErrors "github.com/gantry-ci/gantry/pkg/gantry/errors"
	"github.com/gantry-ci/gantry/pkg/gantry/gitrepo"
	"github.com/gantry-ci/gantry/pkg/gantry/output/log"
	"github.com/gantry-ci/gantry/pkg/gantry/resourcepkg"
	"github.com/gantry-ci/gantry/pkg/gantry/sources"
	"github.com/gantry-ci/gantry/pkg/gantry/util"
)

// For testing
var shallowClone = gitrepo.ShallowClone

// Builder materializes a task's workspace and builds its services.
type Builder struct {
	sources    *sources.Store
	resources  *resourcepkg.Store
	workspaces string

	// daemon is resolved lazily so the process starts without a docker
	// daemon; builds fail individually instead.
	daemon func(ctx context.Context) (docker.LocalDaemon, error)
}

// NewBuilder wires a builder against the given stores and workspace root.
func NewBuilder(sourceStore *sources.Store, resourceStore *resourcepkg.Store, workspaceDir string) *Builder {
	return &Builder{
		sources:    sourceStore,
		resources:  resourceStore,
		workspaces: workspaceDir,
		daemon: func(ctx context.Context) (docker.LocalDaemon, error) {
			apiClient, err := docker.NewAPIClient(ctx)
			if err != nil {
				return nil, err
			}
			return docker.NewLocalDaemon(apiClient), nil
		},
	}
}

// Build is the scheduler's RunFunc: it checks out the task's ref, prepares
// the effective Dockerfile, injects resource packages, and builds (and
// optionally pushes) every service, streaming all output to out. Service
// results are recorded on the task in place.
func (b *Builder) Build(ctx context.Context, task *Task, out io.Writer) error {
	ctx = log.WithEventContext(ctx, constants.Build, task.ID)
	scrubbed := newScrubWriter(out)
	defer scrubbed.Flush()

	started := time.Now()
	fmt.Fprintf(scrubbed, "Starting build %s (branch %q)\n", task.ID, task.Plan.Branch)

	workspace, err := b.acquireWorkspace(task.ID)
	if err != nil {
		return err
	}
	defer os.RemoveAll(workspace)

	if err := b.checkout(ctx, task, workspace, scrubbed); err != nil {
		return err
	}

	checkout := workspace
	if task.Plan.SubPath != "" {
		checkout = filepath.Join(workspace, filepath.FromSlash(task.Plan.SubPath))
		if !util.IsSubPath(workspace, checkout) {
			return gErrors.Newf(gErrors.Validation, "sub_path %q escapes the checkout", task.Plan.SubPath)
		}
	}

	if err := b.injectResources(task, checkout, scrubbed); err != nil {
		return err
	}

	daemon, err := b.daemon(ctx)
	if err != nil {
		return fmt.Errorf("connecting to docker: %w", err)
	}

	buildArgs, err := workspaceBuildArgs(checkout)
	if err != nil {
		return err
	}

	for i := range task.Plan.Services {
		// Cancellation is honored between services.
		if err := ctx.Err(); err != nil {
			return err
		}

		svc := &task.Plan.Services[i]
		if err := b.buildService(ctx, daemon, task, svc, checkout, buildArgs, scrubbed); err != nil {
			if svc.Name != "" {
				return fmt.Errorf("service %q: %w", svc.Name, err)
			}
			return err
		}
	}

	fmt.Fprintf(scrubbed, "Build finished in %s\n", humanize.RelTime(started, time.Now(), "", ""))
	return nil
}

func (b *Builder) acquireWorkspace(taskID string) (string, error) {
	if err := os.MkdirAll(b.workspaces, 0755); err != nil {
		return "", fmt.Errorf("creating workspace root: %w", err)
	}
	dir, err := os.MkdirTemp(b.workspaces, util.SanitizeName(taskID)+"-")
	if err != nil {
		return "", fmt.Errorf("acquiring workspace: %w", err)
	}
	return dir, nil
}

func (b *Builder) checkout(ctx context.Context, task *Task, workspace string, out io.Writer) error {
	gitURL := task.Plan.GitURL
	if task.Plan.SourceID != "" && b.sources != nil {
		src, err := b.sources.Get(task.Plan.SourceID)
		if err != nil {
			return err
		}
		gitURL = src.AuthenticateURL(gitURL)
	}

	fmt.Fprintf(out, "Cloning %s@%s\n", task.Plan.GitURL, task.Plan.Branch)
	return shallowClone(ctx, gitURL, task.Plan.Branch, workspace)
}

// injectResources extracts each configured resource package beneath the
// checkout. Target paths escaping the workspace are rejected.
func (b *Builder) injectResources(task *Task, checkout string, out io.Writer) error {
	for _, rp := range task.Plan.ResourcePackages {
		target := filepath.Join(checkout, filepath.FromSlash(rp.TargetPath))
		if filepath.IsAbs(rp.TargetPath) || !util.IsSubPath(checkout, target) {
			return gErrors.Newf(gErrors.InvalidResourcePath, "resource target %q escapes the workspace", rp.TargetPath)
		}
		fmt.Fprintf(out, "Injecting resource package %s at %s\n", rp.PackageID, rp.TargetPath)
		if err := b.resources.ExtractTo(rp.PackageID, target); err != nil {
			return err
		}
	}
	return nil
}

// materializeDockerfile returns the Dockerfile path to build with, relative
// to the checkout. Template mode renders into the workspace.
func (b *Builder) materializeDockerfile(task *Task, svc *ServiceBuild, checkout string) (string, error) {
	if task.Plan.UseProjectDockerfile {
		name := task.Plan.DockerfileName
		if name == "" {
			name = constants.DefaultDockerfileName
		}
		if _, err := os.Stat(filepath.Join(checkout, filepath.FromSlash(name))); os.IsNotExist(err) {
			return "", gErrors.Newf(gErrors.DockerfileMissing, "no %s in the checkout", name)
		}
		return name, nil
	}

	tmpl, err := dockerfile.Lookup(task.Plan.Template, task.Plan.ProjectType)
	if err != nil {
		return "", err
	}
	content, err := tmpl.Render(svc.TemplateParams)
	if err != nil {
		return "", err
	}

	name := ".gantry-Dockerfile"
	if svc.Name != "" {
		name = ".gantry-Dockerfile." + util.SanitizeName(svc.Name)
	}
	if err := os.WriteFile(filepath.Join(checkout, name), content, 0600); err != nil {
		return "", fmt.Errorf("writing rendered Dockerfile: %w", err)
	}
	return name, nil
}

func (b *Builder) buildService(ctx context.Context, daemon docker.LocalDaemon, task *Task, svc *ServiceBuild, checkout string, envArgs map[string]*string, out io.Writer) error {
	dockerfilePath, err := b.materializeDockerfile(task, svc, checkout)
	if err != nil {
		return err
	}

	if err := docker.ValidateRef(svc.ImageRef); err != nil {
		return err
	}

	args := map[string]*string{}
	for k, v := range envArgs {
		args[k] = v
	}
	for k, v := range svc.TemplateParams {
		value := v
		args[k] = &value
	}

	w := serviceWriter(out, svc.Name)
	fmt.Fprintf(w, "Building %s\n", svc.ImageRef)
	if _, err := daemon.Build(ctx, w, checkout, docker.BuildOptions{
		Tag:        svc.ImageRef,
		Dockerfile: dockerfilePath,
		BuildArgs:  args,
		Labels:     constants.Labels,
	}); err != nil {
		return err
	}
	svc.Built = true

	if !svc.Push {
		return nil
	}

	fmt.Fprintf(w, "Pushing %s\n", svc.ImageRef)
	digest, err := daemon.Push(ctx, w, svc.ImageRef)
	if err != nil {
		return err
	}
	svc.Pushed = true
	svc.Digest = digest
	return nil
}

// workspaceBuildArgs loads optional build args from the checkout's .env.
func workspaceBuildArgs(checkout string) (map[string]*string, error) {
	envFile := filepath.Join(checkout, ".env")
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		return nil, nil
	}
	env, err := godotenv.Read(envFile)
	if err != nil {
		return nil, fmt.Errorf("reading .env: %w", err)
	}
	args := make(map[string]*string, len(env))
	for k, v := range env {
		value := v
		args[k] = &value
	}
	return args, nil
}
