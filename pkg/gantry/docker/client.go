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

// Package docker wraps the subset of the docker engine API the builder
// needs: building a context into an image, tagging it, and pushing it with
// the credentials from the local docker config.
package docker

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/docker/docker/client"
	"github.com/docker/go-connections/tlsconfig"

	"github.com/gantry-ci/gantry/pkg/gantry/version"
)

// For testing
var (
	NewAPIClient = newAPIClient
)

var (
	apiClientOnce sync.Once
	apiClient     client.CommonAPIClient
	apiClientErr  error
)

// newAPIClient returns a docker client configured from the environment,
// created once and shared by every build.
func newAPIClient(ctx context.Context) (client.CommonAPIClient, error) {
	apiClientOnce.Do(func() {
		apiClient, apiClientErr = newEnvAPIClient(ctx)
	})
	return apiClient, apiClientErr
}

// newEnvAPIClient returns a docker client based on the environment variables
// set. It will "negotiate" the highest possible API version supported by both
// the client and the server if there is a mismatch.
func newEnvAPIClient(ctx context.Context) (client.CommonAPIClient, error) {
	opts := []client.Opt{
		client.FromEnv,
		client.WithHTTPHeaders(map[string]string{"User-Agent": version.UserAgent()}),
	}

	if certPath := os.Getenv("DOCKER_CERT_PATH"); certPath != "" {
		options := tlsconfig.Options{
			CAFile:             filepath.Join(certPath, "ca.pem"),
			CertFile:           filepath.Join(certPath, "cert.pem"),
			KeyFile:            filepath.Join(certPath, "key.pem"),
			InsecureSkipVerify: os.Getenv("DOCKER_TLS_VERIFY") == "",
		}
		tlsc, err := tlsconfig.Client(options)
		if err != nil {
			apiClientErr = err
			return nil, err
		}
		httpClient := &http.Client{
			Transport:     &http.Transport{TLSClientConfig: tlsc},
			CheckRedirect: client.CheckRedirect,
		}
		opts = append(opts, client.WithHTTPClient(httpClient))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("getting docker client: %w", err)
	}
	cli.NegotiateAPIVersion(ctx)

	return cli, nil
}
