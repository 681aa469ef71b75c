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

package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	gErrors "github.com/gantry-ci/gantry/pkg/gantry/errors"
	"github.com/gantry-ci/gantry/pkg/gantry/hosts"
)

// agentRunner talks JSON to the gantry agent daemon on the target host.
// Transient connection errors are retried with exponential backoff; HTTP
// errors from a reachable agent are not.
type agentRunner struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func newAgentRunner(host *hosts.Host) Runner {
	base := host.Address
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &agentRunner{
		baseURL: strings.TrimRight(base, "/"),
		apiKey:  host.APIKey,
		client:  &http.Client{Timeout: 10 * time.Minute},
	}
}

type agentExecRequest struct {
	Command string `json:"command"`
}

type agentExecResponse struct {
	Output     string `json:"output"`
	ExitStatus int    `json:"exit_status"`
}

type agentFileRequest struct {
	Path    string `json:"path"`
	Content []byte `json:"content"`
}

func (r *agentRunner) Run(ctx context.Context, command string) (string, int, error) {
	var result agentExecResponse
	if err := r.post(ctx, "/api/exec", agentExecRequest{Command: command}, &result); err != nil {
		return "", -1, err
	}
	return result.Output, result.ExitStatus, nil
}

func (r *agentRunner) WriteFile(ctx context.Context, path string, data []byte) error {
	return r.post(ctx, "/api/files", agentFileRequest{Path: path, Content: data}, nil)
}

func (r *agentRunner) Close() error {
	r.client.CloseIdleConnections()
	return nil
}

func (r *agentRunner) post(ctx context.Context, path string, payload, result interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	return backoff.Retry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if r.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+r.apiKey)
		}

		resp, err := r.client.Do(req)
		if err != nil {
			// The agent may be restarting; retry.
			return gErrors.Wrapf(gErrors.RemoteExecFailed, err, "reaching agent at %s", r.baseURL)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			return backoff.Permanent(gErrors.Newf(gErrors.RemoteExecFailed, "agent returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail))))
		}
		if result == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return backoff.Permanent(fmt.Errorf("decoding agent response: %w", err))
		}
		return nil
	}, policy)
}
