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

package docker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/docker/docker/api/types"
	imagetypes "github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/progress"
	"github.com/docker/docker/pkg/streamformatter"

	gErrors "github.com/gantry-ci/gantry/pkg/gantry/errors"
	"github.com/gantry-ci/gantry/pkg/gantry/output/log"
)

// LocalDaemon talks to a local Docker API.
type LocalDaemon interface {
	Close() error
	ServerVersion(ctx context.Context) (types.Version, error)
	Build(ctx context.Context, out io.Writer, workspace string, opts BuildOptions) (string, error)
	Push(ctx context.Context, out io.Writer, ref string) (string, error)
	Tag(ctx context.Context, image, ref string) error
	ImageID(ctx context.Context, ref string) (string, error)
	ImageExists(ctx context.Context, ref string) bool
	RawClient() client.CommonAPIClient
}

// BuildOptions provides parameters for one LocalDaemon build.
type BuildOptions struct {
	// Tag is the image reference the built image is tagged with.
	Tag string

	// Dockerfile is the path of the Dockerfile, relative to the workspace.
	Dockerfile string

	// BuildArgs are passed to the build as --build-arg equivalents.
	BuildArgs map[string]*string

	// Labels are applied to the built image.
	Labels map[string]string
}

// BuildResult is the aux message the daemon emits on a successful build.
type BuildResult struct {
	ID string
}

// PushResult is the aux message the daemon emits on a successful push.
type PushResult struct {
	Tag    string
	Digest string
	Size   int
}

type localDaemon struct {
	apiClient client.CommonAPIClient
}

// NewLocalDaemon wraps a docker API client.
func NewLocalDaemon(apiClient client.CommonAPIClient) LocalDaemon {
	return &localDaemon{apiClient: apiClient}
}

func (l *localDaemon) RawClient() client.CommonAPIClient {
	return l.apiClient
}

func (l *localDaemon) Close() error {
	return l.apiClient.Close()
}

func (l *localDaemon) ServerVersion(ctx context.Context) (types.Version, error) {
	return l.apiClient.ServerVersion(ctx)
}

// Build performs a docker build against the workspace directory and returns
// the image ID. Output lines are streamed to out as they arrive.
func (l *localDaemon) Build(ctx context.Context, out io.Writer, workspace string, opts BuildOptions) (string, error) {
	log.Entry(ctx).Debugf("Running docker build: context: %s, dockerfile: %s", workspace, opts.Dockerfile)

	// Like `docker build`, we ignore any error fetching credentials: builds
	// from public bases must work without a docker login.
	authConfigs, _ := DefaultAuthHelper.GetAllAuthConfigs(ctx)

	buildCtx, buildCtxWriter := io.Pipe()
	go func() {
		err := CreateDockerTarContext(ctx, buildCtxWriter, workspace, opts.Dockerfile)
		if err != nil {
			buildCtxWriter.CloseWithError(fmt.Errorf("creating docker context: %w", err))
			return
		}
		buildCtxWriter.Close()
	}()

	progressOutput := streamformatter.NewProgressOutput(out)
	body := progress.NewProgressReader(buildCtx, progressOutput, 0, "", "Sending build context to Docker daemon")

	resp, err := l.apiClient.ImageBuild(ctx, body, types.ImageBuildOptions{
		Tags:        []string{opts.Tag},
		Dockerfile:  opts.Dockerfile,
		BuildArgs:   opts.BuildArgs,
		Labels:      opts.Labels,
		AuthConfigs: authConfigs,
	})
	if err != nil {
		return "", gErrors.Wrapf(gErrors.BuildFailed, err, "docker build %q", opts.Tag)
	}
	defer resp.Body.Close()

	var imageID string
	auxCallback := func(msg jsonmessage.JSONMessage) {
		if msg.Aux == nil {
			return
		}

		var result BuildResult
		if err := json.Unmarshal(*msg.Aux, &result); err != nil {
			log.Entry(ctx).Debug("Unable to parse build output:", err)
			return
		}
		imageID = result.ID
	}

	if err := streamDockerMessages(out, resp.Body, auxCallback); err != nil {
		var jm *jsonmessage.JSONError
		if errors.As(err, &jm) {
			return "", gErrors.Wrapf(gErrors.BuildFailed, err, "docker build %q", opts.Tag)
		}
		return "", fmt.Errorf("unable to stream build output: %w", err)
	}

	if imageID == "" {
		// Maybe this version of Docker doesn't return the digest of the image
		// that has been built.
		imageID, err = l.ImageID(ctx, opts.Tag)
		if err != nil {
			return "", fmt.Errorf("getting image id: %w", err)
		}
	}

	return imageID, nil
}

// streamDockerMessages streams formatted json output from the docker daemon.
func streamDockerMessages(dst io.Writer, src io.Reader, auxCallback func(jsonmessage.JSONMessage)) error {
	return jsonmessage.DisplayJSONMessagesStream(src, dst, 0, false, auxCallback)
}

// Push pushes an image reference to a registry. Returns the image digest.
func (l *localDaemon) Push(ctx context.Context, out io.Writer, ref string) (string, error) {
	registryAuth, err := l.encodedRegistryAuth(ctx, DefaultAuthHelper, ref)
	if err != nil {
		return "", fmt.Errorf("getting auth config for %q: %w", ref, err)
	}

	rc, err := l.apiClient.ImagePush(ctx, ref, imagetypes.PushOptions{
		RegistryAuth: registryAuth,
	})
	if err != nil {
		return "", gErrors.Wrapf(gErrors.PushFailed, err, "pushing image %q", ref)
	}
	defer rc.Close()

	var digest string
	auxCallback := func(msg jsonmessage.JSONMessage) {
		if msg.Aux == nil {
			return
		}

		var result PushResult
		if err := json.Unmarshal(*msg.Aux, &result); err != nil {
			log.Entry(ctx).Debug("Unable to parse push output:", err)
			return
		}
		digest = result.Digest
	}

	if err := streamDockerMessages(out, rc, auxCallback); err != nil {
		return "", gErrors.Wrapf(gErrors.PushFailed, err, "pushing image %q", ref)
	}

	if digest == "" {
		digest, err = l.remoteDigest(ctx, ref)
		if err != nil {
			return "", fmt.Errorf("getting digest: %w", err)
		}
	}

	return digest, nil
}

// remoteDigest asks the registry for the digest of a pushed reference.
func (l *localDaemon) remoteDigest(ctx context.Context, ref string) (string, error) {
	registryAuth, err := l.encodedRegistryAuth(ctx, DefaultAuthHelper, ref)
	if err != nil {
		return "", err
	}
	inspect, err := l.apiClient.DistributionInspect(ctx, ref, registryAuth)
	if err != nil {
		return "", err
	}
	return string(inspect.Descriptor.Digest), nil
}

// Tag adds a tag to an image.
func (l *localDaemon) Tag(ctx context.Context, image, ref string) error {
	return l.apiClient.ImageTag(ctx, image, ref)
}

// ImageID returns the image ID for a corresponding reference.
func (l *localDaemon) ImageID(ctx context.Context, ref string) (string, error) {
	image, _, err := l.apiClient.ImageInspectWithRaw(ctx, ref)
	if err != nil {
		if client.IsErrNotFound(err) {
			return "", nil
		}
		return "", err
	}

	return image.ID, nil
}

func (l *localDaemon) ImageExists(ctx context.Context, ref string) bool {
	_, _, err := l.apiClient.ImageInspectWithRaw(ctx, ref)
	return err == nil
}
