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
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	gErrors "github.com/gantry-ci/gantry/pkg/gantry/errors"
	"github.com/gantry-ci/gantry/pkg/gantry/hosts"
)

// portainerRunner executes commands through Portainer's docker exec proxy
// against the host's configured exec container.
type portainerRunner struct {
	baseURL    string
	apiKey     string
	endpointID int
	container  string
	client     *http.Client
}

func newPortainerRunner(host *hosts.Host) (Runner, error) {
	if host.EndpointID == 0 {
		return nil, gErrors.Newf(gErrors.Validation, "portainer host %q has no endpoint_id", host.Name)
	}
	if host.ExecContainer == "" {
		return nil, gErrors.Newf(gErrors.Validation, "portainer host %q has no exec_container", host.Name)
	}

	base := host.Address
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	return &portainerRunner{
		baseURL:    strings.TrimRight(base, "/"),
		apiKey:     host.APIKey,
		endpointID: host.EndpointID,
		container:  host.ExecContainer,
		client:     &http.Client{Timeout: 10 * time.Minute},
	}, nil
}

func (r *portainerRunner) Run(ctx context.Context, command string) (string, int, error) {
	execID, err := r.createExec(ctx, []string{"sh", "-c", command})
	if err != nil {
		return "", -1, err
	}

	output, err := r.startExec(ctx, execID)
	if err != nil {
		return "", -1, err
	}

	exitStatus, err := r.inspectExec(ctx, execID)
	if err != nil {
		return output, -1, err
	}
	return output, exitStatus, nil
}

// WriteFile materializes the file inside the exec container by piping the
// content through base64; Portainer's proxy has no file upload API.
func (r *portainerRunner) WriteFile(ctx context.Context, path string, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	cmd := fmt.Sprintf("mkdir -p $(dirname %q) && echo %s | base64 -d > %q", path, encoded, path)
	output, exitStatus, err := r.Run(ctx, cmd)
	if err != nil {
		return err
	}
	if exitStatus != 0 {
		return gErrors.Newf(gErrors.RemoteExecFailed, "writing %q: %s", path, strings.TrimSpace(output))
	}
	return nil
}

func (r *portainerRunner) Close() error {
	r.client.CloseIdleConnections()
	return nil
}

func (r *portainerRunner) createExec(ctx context.Context, cmd []string) (string, error) {
	payload := map[string]interface{}{
		"AttachStdout": true,
		"AttachStderr": true,
		"Cmd":          cmd,
	}
	var result struct {
		ID string `json:"Id"`
	}
	url := fmt.Sprintf("%s/api/endpoints/%d/docker/containers/%s/exec", r.baseURL, r.endpointID, r.container)
	if err := r.post(ctx, url, payload, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", gErrors.New(gErrors.RemoteExecFailed, "portainer returned no exec id")
	}
	return result.ID, nil
}

func (r *portainerRunner) startExec(ctx context.Context, execID string) (string, error) {
	payload := map[string]interface{}{"Detach": false, "Tty": true}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/api/endpoints/%d/docker/exec/%s/start", r.baseURL, r.endpointID, execID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	r.authenticate(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", gErrors.Wrap(gErrors.RemoteExecFailed, err, "starting portainer exec")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", gErrors.Wrap(gErrors.RemoteExecFailed, err, "reading portainer exec output")
	}
	if resp.StatusCode != http.StatusOK {
		return "", gErrors.Newf(gErrors.RemoteExecFailed, "portainer exec start returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return string(raw), nil
}

func (r *portainerRunner) inspectExec(ctx context.Context, execID string) (int, error) {
	url := fmt.Sprintf("%s/api/endpoints/%d/docker/exec/%s/json", r.baseURL, r.endpointID, execID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return -1, err
	}
	r.authenticate(req)

	resp, err := r.client.Do(req)
	if err != nil {
		return -1, gErrors.Wrap(gErrors.RemoteExecFailed, err, "inspecting portainer exec")
	}
	defer resp.Body.Close()

	var result struct {
		ExitCode int `json:"ExitCode"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return -1, gErrors.Wrap(gErrors.RemoteExecFailed, err, "decoding portainer exec state")
	}
	return result.ExitCode, nil
}

func (r *portainerRunner) post(ctx context.Context, url string, payload, result interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	r.authenticate(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return gErrors.Wrap(gErrors.RemoteExecFailed, err, "calling portainer")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return gErrors.Newf(gErrors.RemoteExecFailed, "portainer returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	if result == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(result)
}

func (r *portainerRunner) authenticate(req *http.Request) {
	if r.apiKey != "" {
		req.Header.Set("X-API-Key", r.apiKey)
	}
}
