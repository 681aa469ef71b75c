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

package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/gantry-ci/gantry/testutil"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		description string
		err         error
		expected    Kind
	}{
		{
			description: "direct kind",
			err:         New(NotFound, "no such pipeline"),
			expected:    NotFound,
		},
		{
			description: "wrapped cause keeps outer kind",
			err:         Wrap(RepoUnreachable, errors.New("dial tcp: timeout"), "listing remote refs"),
			expected:    RepoUnreachable,
		},
		{
			description: "kind survives fmt wrapping",
			err:         fmt.Errorf("running trigger: %w", New(SignatureInvalid, "signature mismatch")),
			expected:    SignatureInvalid,
		},
		{
			description: "plain error maps to internal",
			err:         errors.New("boom"),
			expected:    Internal,
		},
	}
	for _, test := range tests {
		testutil.Run(t, test.description, func(t *testutil.T) {
			t.CheckDeepEqual(test.expected, KindOf(test.err))
		})
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		description string
		err         error
		expected    int
	}{
		{"validation", New(Validation, "bad request"), http.StatusBadRequest},
		{"dockerfile missing", New(DockerfileMissing, "no Dockerfile"), http.StatusBadRequest},
		{"auth required", New(AuthRequired, "credentials required"), http.StatusUnauthorized},
		{"signature invalid", New(SignatureInvalid, "mismatch"), http.StatusUnauthorized},
		{"not found", New(NotFound, "gone"), http.StatusNotFound},
		{"host not found", New(HostNotFound, "no host"), http.StatusNotFound},
		{"conflict", New(Conflict, "already queued"), http.StatusConflict},
		{"build failure", New(BuildFailed, "exit 1"), http.StatusInternalServerError},
		{"untyped", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, test := range tests {
		testutil.Run(t, test.description, func(t *testutil.T) {
			t.CheckDeepEqual(test.expected, StatusCode(test.err))
		})
	}
}

func TestWrapNil(t *testing.T) {
	testutil.CheckError(t, false, Wrap(Internal, nil, "ignored"))
	testutil.CheckError(t, false, Wrapf(Internal, nil, "ignored %s", "too"))
}

func TestErrorMessage(t *testing.T) {
	err := Wrap(BuildFailed, errors.New("exit status 1"), "building [api]")
	testutil.CheckDeepEqual(t, "building [api]: exit status 1", err.Error())
	testutil.CheckDeepEqual(t, "exit status 1", errors.Unwrap(err).Error())
}
