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

package config

import (
	"path/filepath"
	"time"

	"github.com/gantry-ci/gantry/pkg/gantry/constants"
	"github.com/gantry-ci/gantry/pkg/gantry/util"
)

// Config carries the process-wide options. It is built once by the CLI and
// passed down explicitly; packages never read flags themselves.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string

	// DataDir is the root of all persisted state.
	DataDir string

	// BuildWorkers caps concurrently running build tasks.
	BuildWorkers int

	// DeployWorkers caps concurrently executing deploy tasks.
	DeployWorkers int

	// CacheTTL bounds the age of repo introspection cache entries.
	CacheTTL time.Duration
}

// Default returns the configuration used when no flags are given.
func Default() Config {
	return Config{
		Addr:          constants.DefaultAddr,
		DataDir:       util.ExpandHomePath(filepath.Join("~", constants.DefaultDataDirName)),
		BuildWorkers:  constants.DefaultBuildWorkers,
		DeployWorkers: constants.DefaultDeployWorkers,
		CacheTTL:      constants.DefaultCacheTTL,
	}
}

// PipelinesDir is where pipeline records live.
func (c Config) PipelinesDir() string { return filepath.Join(c.DataDir, "pipelines") }

// BuildTasksDir is where build task records and their logs live.
func (c Config) BuildTasksDir() string { return filepath.Join(c.DataDir, "build-tasks") }

// DeployTasksDir is where deploy task configs and state live.
func (c Config) DeployTasksDir() string { return filepath.Join(c.DataDir, "deploy-tasks") }

// CacheDir is where repo introspection cache entries live.
func (c Config) CacheDir() string { return filepath.Join(c.DataDir, "cache") }

// ResourcesDir is where resource packages live.
func (c Config) ResourcesDir() string { return filepath.Join(c.DataDir, "resources") }

// WorkspacesDir is where build checkouts are materialized.
func (c Config) WorkspacesDir() string { return filepath.Join(c.DataDir, "workspaces") }

// HostsFile is the target host inventory.
func (c Config) HostsFile() string { return filepath.Join(c.DataDir, "hosts.json") }

// GitSourcesFile is the saved git credential records.
func (c Config) GitSourcesFile() string { return filepath.Join(c.DataDir, "git-sources.json") }
