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
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	gErrors "github.com/gantry-ci/gantry/pkg/gantry/errors"
)

// Git provider platforms recognized by the webhook receiver.
const (
	PlatformGitHub = "github"
	PlatformGitLab = "gitlab"
	PlatformGitee  = "gitee"
)

const branchRefPrefix = "refs/heads/"

// Event is what a provider webhook told us, captured verbatim.
type Event struct {
	Platform string
	Branch   string
	Commit   string
	Pusher   string

	// Push is false for event types that never trigger a build, such as
	// pings, merge requests, and tag pushes.
	Push bool
}

// webhookPayload is the union of the push payload fields the three
// providers send; each uses a subset.
type webhookPayload struct {
	Ref    string `json:"ref"`
	After  string `json:"after"`
	Pusher struct {
		Name string `json:"name"`
	} `json:"pusher"`
	UserName    string `json:"user_name"`    // gitlab
	CheckoutSHA string `json:"checkout_sha"` // gitlab
}

// ParseEvent identifies the sending platform from the request headers and
// extracts the push details from the payload.
func ParseEvent(header http.Header, body []byte) (Event, error) {
	platform, push := detectPlatform(header)
	if platform == "" {
		return Event{}, gErrors.New(gErrors.Validation, "unrecognized webhook: no provider event header")
	}

	ev := Event{Platform: platform, Push: push}
	if !push {
		// Acknowledged but never builds; no payload fields needed.
		return ev, nil
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Event{}, gErrors.Wrap(gErrors.Validation, err, "parsing webhook payload")
	}

	if !strings.HasPrefix(payload.Ref, branchRefPrefix) {
		// Tag pushes arrive as push events too; they never build.
		ev.Push = false
		return ev, nil
	}
	ev.Branch = strings.TrimPrefix(payload.Ref, branchRefPrefix)

	ev.Commit = payload.After
	if ev.Commit == "" {
		ev.Commit = payload.CheckoutSHA
	}
	ev.Pusher = payload.Pusher.Name
	if ev.Pusher == "" {
		ev.Pusher = payload.UserName
	}
	return ev, nil
}

func detectPlatform(header http.Header) (platform string, push bool) {
	if ev := header.Get("X-GitHub-Event"); ev != "" {
		return PlatformGitHub, ev == "push"
	}
	if ev := header.Get("X-Gitlab-Event"); ev != "" {
		return PlatformGitLab, ev == "Push Hook"
	}
	if ev := header.Get("X-Gitee-Event"); ev != "" {
		return PlatformGitee, ev == "Push Hook"
	}
	return "", false
}

// VerifySignature checks the provider-specific authentication header
// against the pipeline's webhook secret. A blank secret disables
// verification.
func VerifySignature(secret, platform string, header http.Header, body []byte) error {
	if secret == "" {
		return nil
	}

	switch platform {
	case PlatformGitHub:
		sig := header.Get("X-Hub-Signature-256")
		if sig == "" {
			return gErrors.New(gErrors.SignatureInvalid, "missing X-Hub-Signature-256 header")
		}
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)
		expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
		if !hmac.Equal([]byte(sig), []byte(expected)) {
			return gErrors.New(gErrors.SignatureInvalid, "webhook signature mismatch")
		}
		return nil

	case PlatformGitLab:
		return compareToken(header.Get("X-Gitlab-Token"), secret)

	case PlatformGitee:
		return compareToken(header.Get("X-Gitee-Token"), secret)
	}

	return gErrors.Newf(gErrors.SignatureInvalid, "no signature scheme for platform %q", platform)
}

func compareToken(got, want string) error {
	if got == "" {
		return gErrors.New(gErrors.SignatureInvalid, "missing webhook token header")
	}
	if !hmac.Equal([]byte(got), []byte(want)) {
		return gErrors.New(gErrors.SignatureInvalid, "webhook token mismatch")
	}
	return nil
}
