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
	"net/http"
	"testing"

	gErrors "github.com/gantry-ci/gantry/pkg/gantry/errors"
	"github.com/gantry-ci/gantry/testutil"
)

func TestParseEvent(t *testing.T) {
	tests := []struct {
		description string
		headers     map[string]string
		body        string
		expected    Event
		shouldErr   bool
	}{
		{
			description: "github push",
			headers:     map[string]string{"X-GitHub-Event": "push"},
			body:        `{"ref":"refs/heads/main","after":"abc123","pusher":{"name":"alice"}}`,
			expected:    Event{Platform: PlatformGitHub, Branch: "main", Commit: "abc123", Pusher: "alice", Push: true},
		},
		{
			description: "gitlab push",
			headers:     map[string]string{"X-Gitlab-Event": "Push Hook"},
			body:        `{"ref":"refs/heads/dev","checkout_sha":"def456","user_name":"bob"}`,
			expected:    Event{Platform: PlatformGitLab, Branch: "dev", Commit: "def456", Pusher: "bob", Push: true},
		},
		{
			description: "gitee push",
			headers:     map[string]string{"X-Gitee-Event": "Push Hook"},
			body:        `{"ref":"refs/heads/main","after":"aaa","pusher":{"name":"carol"}}`,
			expected:    Event{Platform: PlatformGitee, Branch: "main", Commit: "aaa", Pusher: "carol", Push: true},
		},
		{
			description: "github ping is not a push",
			headers:     map[string]string{"X-GitHub-Event": "ping"},
			body:        `{"zen":"keep it simple"}`,
			expected:    Event{Platform: PlatformGitHub},
		},
		{
			description: "tag push never builds",
			headers:     map[string]string{"X-GitHub-Event": "push"},
			body:        `{"ref":"refs/tags/v1.0.0","after":"abc"}`,
			expected:    Event{Platform: PlatformGitHub},
		},
		{
			description: "unknown provider",
			headers:     map[string]string{},
			body:        `{}`,
			shouldErr:   true,
		},
		{
			description: "malformed payload",
			headers:     map[string]string{"X-GitHub-Event": "push"},
			body:        `{not json`,
			shouldErr:   true,
		},
	}
	for _, test := range tests {
		testutil.Run(t, test.description, func(t *testutil.T) {
			header := http.Header{}
			for k, v := range test.headers {
				header.Set(k, v)
			}

			ev, err := ParseEvent(header, []byte(test.body))

			t.CheckErrorAndDeepEqual(test.shouldErr, err, test.expected, ev)
		})
	}
}

func TestVerifySignatureTokens(t *testing.T) {
	tests := []struct {
		description string
		platform    string
		header      string
		value       string
		shouldErr   bool
	}{
		{description: "gitlab token match", platform: PlatformGitLab, header: "X-Gitlab-Token", value: "s3cret"},
		{description: "gitlab token mismatch", platform: PlatformGitLab, header: "X-Gitlab-Token", value: "wrong", shouldErr: true},
		{description: "gitee token match", platform: PlatformGitee, header: "X-Gitee-Token", value: "s3cret"},
		{description: "gitee token missing", platform: PlatformGitee, header: "", value: "", shouldErr: true},
	}
	for _, test := range tests {
		testutil.Run(t, test.description, func(t *testutil.T) {
			header := http.Header{}
			if test.header != "" {
				header.Set(test.header, test.value)
			}

			err := VerifySignature("s3cret", test.platform, header, []byte(`{}`))

			t.CheckError(test.shouldErr, err)
			if test.shouldErr {
				t.CheckDeepEqual(gErrors.SignatureInvalid, gErrors.KindOf(err))
			}
		})
	}
}

func TestVerifySignatureBlankSecret(t *testing.T) {
	testutil.CheckError(t, false, VerifySignature("", PlatformGitHub, http.Header{}, nil))
}
