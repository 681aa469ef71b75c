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
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	gErrors "github.com/gantry-ci/gantry/pkg/gantry/errors"
	"github.com/gantry-ci/gantry/pkg/gantry/hosts"
	"github.com/gantry-ci/gantry/testutil"
)

func TestAgentRun(t *testing.T) {
	testutil.Run(t, "exec round trip with auth header", func(t *testutil.T) {
		var gotAuth, gotCommand string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			var req agentExecRequest
			json.NewDecoder(r.Body).Decode(&req)
			gotCommand = req.Command
			json.NewEncoder(w).Encode(agentExecResponse{Output: "hello\n", ExitStatus: 3})
		}))
		defer server.Close()

		runner := newAgentRunner(&hosts.Host{
			Name:    "agent-1",
			Kind:    hosts.KindAgent,
			Address: server.URL,
			APIKey:  "k3y",
		})
		defer runner.Close()

		output, exitStatus, err := runner.Run(context.Background(), "docker ps")

		t.CheckNoError(err)
		t.CheckDeepEqual("hello\n", output)
		t.CheckDeepEqual(3, exitStatus)
		t.CheckDeepEqual("docker ps", gotCommand)
		t.CheckDeepEqual("Bearer k3y", gotAuth)
	})
}

func TestAgentHTTPErrorIsNotRetried(t *testing.T) {
	testutil.Run(t, "a reachable agent's error is final", func(t *testutil.T) {
		calls := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			http.Error(w, "no such container", http.StatusInternalServerError)
		}))
		defer server.Close()

		runner := newAgentRunner(&hosts.Host{Name: "agent-1", Kind: hosts.KindAgent, Address: server.URL})
		defer runner.Close()

		_, _, err := runner.Run(context.Background(), "docker ps")

		t.CheckDeepEqual(gErrors.RemoteExecFailed, gErrors.KindOf(err))
		t.CheckErrorContains("no such container", err)
		t.CheckDeepEqual(1, calls)
	})
}

func TestAgentWriteFile(t *testing.T) {
	testutil.Run(t, "file content travels as base64 JSON", func(t *testutil.T) {
		var gotReq agentFileRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewDecoder(r.Body).Decode(&gotReq)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		runner := newAgentRunner(&hosts.Host{Name: "agent-1", Kind: hosts.KindAgent, Address: server.URL})
		defer runner.Close()

		err := runner.WriteFile(context.Background(), "/srv/app/docker-compose.yml", []byte("services: {}\n"))

		t.CheckNoError(err)
		t.CheckDeepEqual("/srv/app/docker-compose.yml", gotReq.Path)
		t.CheckDeepEqual("services: {}\n", string(gotReq.Content))
	})
}

func TestRunnerForUnknownKind(t *testing.T) {
	_, err := newRunner(&hosts.Host{Name: "x", Kind: "ftp", Address: "example.com"})
	testutil.CheckError(t, true, err)
}
