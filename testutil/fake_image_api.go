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

package testutil

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/api/types/system"
	"github.com/docker/docker/client"
	reg "github.com/docker/docker/registry"
	digest "github.com/opencontainers/go-digest"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
)

// FakeAPIClient fakes the subset of the docker engine API the builder talks
// to. Built and pushed images are recorded for assertions.
type FakeAPIClient struct {
	client.CommonAPIClient

	tagToImageID    map[string]string
	ErrImageBuild   bool
	ErrImageInspect bool
	ErrImagePush    bool
	ErrImageTag     bool
	ErrStream       bool

	nextImageID int
	Pushed      map[string]string
	Built       []types.ImageBuildOptions

	mu sync.Mutex
}

// Add registers a local image with the given tag.
func (f *FakeAPIClient) Add(tag, imageID string) *FakeAPIClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.add(tag, imageID)
}

func (f *FakeAPIClient) add(tag, imageID string) *FakeAPIClient {
	if f.tagToImageID == nil {
		f.tagToImageID = make(map[string]string)
	}

	f.tagToImageID[imageID] = imageID
	f.tagToImageID[tag] = imageID
	if !strings.Contains(tag, ":") {
		f.tagToImageID[tag+":latest"] = imageID
	}
	return f
}

type notFoundError struct {
	error
}

func (e notFoundError) NotFound() {}

func (e notFoundError) Error() string { return "not found" }

type errReader struct{}

func (f errReader) Read([]byte) (int, error) { return 0, fmt.Errorf("bad stream") }

func (f *FakeAPIClient) body(digest string) io.ReadCloser {
	if f.ErrStream {
		return io.NopCloser(&errReader{})
	}

	return io.NopCloser(strings.NewReader(fmt.Sprintf(`{"aux":{"digest":%q,"ID":%q}}`, digest, digest)))
}

func (f *FakeAPIClient) ImageBuild(_ context.Context, _ io.Reader, options types.ImageBuildOptions) (types.ImageBuildResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ErrImageBuild {
		return types.ImageBuildResponse{}, fmt.Errorf("docker build error")
	}

	f.nextImageID++
	imageID := fmt.Sprintf("sha256:%d", f.nextImageID)

	for _, tag := range options.Tags {
		f.add(tag, imageID)
	}

	f.Built = append(f.Built, options)

	return types.ImageBuildResponse{
		Body: f.body(imageID),
	}, nil
}

func (f *FakeAPIClient) ImageInspectWithRaw(_ context.Context, ref string) (types.ImageInspect, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ErrImageInspect {
		return types.ImageInspect{}, nil, fmt.Errorf("docker inspect error")
	}

	for tag, imageID := range f.tagToImageID {
		if tag == ref || imageID == ref {
			rawConfig := []byte(fmt.Sprintf(`{"Config":{"Image":%q}}`, imageID))

			var repoDigests []string
			if digest, found := f.Pushed[ref]; found {
				repoDigests = append(repoDigests, ref+"@"+digest)
			}

			return types.ImageInspect{
				ID:          imageID,
				RepoDigests: repoDigests,
			}, rawConfig, nil
		}
	}

	return types.ImageInspect{}, nil, &notFoundError{}
}

func (f *FakeAPIClient) DistributionInspect(_ context.Context, ref, _ string) (registry.DistributionInspect, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if sha, found := f.Pushed[ref]; found {
		return registry.DistributionInspect{
			Descriptor: v1.Descriptor{
				Digest: digest.Digest(sha),
			},
		}, nil
	}

	return registry.DistributionInspect{}, &notFoundError{}
}

func (f *FakeAPIClient) ImageTag(_ context.Context, img, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ErrImageTag {
		return fmt.Errorf("docker tag error")
	}

	imageID, ok := f.tagToImageID[img]
	if !ok {
		return fmt.Errorf("image %s not found", img)
	}

	f.add(ref, imageID)
	return nil
}

func (f *FakeAPIClient) ImagePush(_ context.Context, ref string, _ image.PushOptions) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ErrImagePush {
		return nil, fmt.Errorf("docker push error")
	}

	sha256Digester := sha256.New()
	if _, err := sha256Digester.Write([]byte(f.tagToImageID[ref])); err != nil {
		return nil, err
	}

	digest := "sha256:" + fmt.Sprintf("%x", sha256Digester.Sum(nil))[0:64]
	if f.Pushed == nil {
		f.Pushed = make(map[string]string)
	}
	f.Pushed[ref] = digest

	return f.body(digest), nil
}

func (f *FakeAPIClient) Info(context.Context) (system.Info, error) {
	return system.Info{
		IndexServerAddress: reg.IndexServer,
	}, nil
}

func (f *FakeAPIClient) ServerVersion(context.Context) (types.Version, error) {
	return types.Version{Version: "27.0.0-fake"}, nil
}

func (f *FakeAPIClient) Close() error { return nil }
