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
	"bytes"
	"context"
	"testing"

	registrytypes "github.com/docker/docker/api/types/registry"

	gErrors "github.com/gantry-ci/gantry/pkg/gantry/errors"
	"github.com/gantry-ci/gantry/testutil"
)

type testAuthHelper struct{}

func (t testAuthHelper) GetAuthConfig(context.Context, string) (registrytypes.AuthConfig, error) {
	return registrytypes.AuthConfig{}, nil
}

func (t testAuthHelper) GetAllAuthConfigs(context.Context) (map[string]registrytypes.AuthConfig, error) {
	return nil, nil
}

func TestBuild(t *testing.T) {
	tests := []struct {
		description string
		api         *testutil.FakeAPIClient
		shouldErr   bool
		expectedErr gErrors.Kind
	}{
		{
			description: "build succeeds",
			api:         &testutil.FakeAPIClient{},
		},
		{
			description: "build fails",
			api: &testutil.FakeAPIClient{
				ErrImageBuild: true,
			},
			shouldErr:   true,
			expectedErr: gErrors.BuildFailed,
		},
		{
			description: "bad image output stream",
			api: &testutil.FakeAPIClient{
				ErrStream: true,
			},
			shouldErr: true,
		},
	}
	for _, test := range tests {
		testutil.Run(t, test.description, func(t *testutil.T) {
			t.Override(&DefaultAuthHelper, testAuthHelper{})
			workspace := t.NewTempDir().Write("Dockerfile", "FROM busybox")

			localDocker := NewLocalDaemon(test.api)
			var out bytes.Buffer
			_, err := localDocker.Build(context.Background(), &out, workspace.Root(), BuildOptions{
				Tag:        "gantry/test:1.0",
				Dockerfile: "Dockerfile",
			})

			t.CheckError(test.shouldErr, err)
			if test.shouldErr && test.expectedErr != "" {
				t.CheckDeepEqual(test.expectedErr, gErrors.KindOf(err))
			}
			if !test.shouldErr {
				t.CheckDeepEqual(1, len(test.api.Built))
				t.CheckDeepEqual([]string{"gantry/test:1.0"}, test.api.Built[0].Tags)
			}
		})
	}
}

func TestPush(t *testing.T) {
	tests := []struct {
		description string
		api         *testutil.FakeAPIClient
		shouldErr   bool
	}{
		{
			description: "push succeeds",
			api:         &testutil.FakeAPIClient{},
		},
		{
			description: "push fails",
			api: &testutil.FakeAPIClient{
				ErrImagePush: true,
			},
			shouldErr: true,
		},
	}
	for _, test := range tests {
		testutil.Run(t, test.description, func(t *testutil.T) {
			t.Override(&DefaultAuthHelper, testAuthHelper{})
			test.api.Add("gantry/test:1.0", "sha256:1")

			localDocker := NewLocalDaemon(test.api)
			var out bytes.Buffer
			digest, err := localDocker.Push(context.Background(), &out, "gantry/test:1.0")

			t.CheckError(test.shouldErr, err)
			if !test.shouldErr {
				t.CheckDeepEqual(test.api.Pushed["gantry/test:1.0"], digest)
				t.CheckTrue(digest != "")
			}
		})
	}
}

func TestImageID(t *testing.T) {
	testutil.Run(t, "known and unknown refs", func(t *testutil.T) {
		api := (&testutil.FakeAPIClient{}).Add("gantry/test:1.0", "sha256:7")
		localDocker := NewLocalDaemon(api)

		id, err := localDocker.ImageID(context.Background(), "gantry/test:1.0")
		t.CheckNoError(err)
		t.CheckDeepEqual("sha256:7", id)

		id, err = localDocker.ImageID(context.Background(), "unknown:tag")
		t.CheckNoError(err)
		t.CheckDeepEqual("", id)
	})
}
