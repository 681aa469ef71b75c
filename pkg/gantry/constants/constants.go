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

package constants

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Phase tags the subsystem a log entry belongs to.
type Phase string

const (
	// DefaultLogLevel is the default global verbosity
	DefaultLogLevel = logrus.InfoLevel

	// DefaultAddr is the default listen address of the API server
	DefaultAddr = ":8300"

	// DefaultDataDirName is the directory under $HOME holding all persisted state
	DefaultDataDirName = ".gantry"

	// DefaultDockerfileName is the project-mode Dockerfile looked up at the
	// checkout root when the pipeline does not name one
	DefaultDockerfileName = "Dockerfile"

	// DefaultBuildWorkers caps concurrently running build tasks
	DefaultBuildWorkers = 2

	// DefaultDeployWorkers caps concurrently executing deploy tasks
	DefaultDeployWorkers = 4

	// DefaultCacheTTL bounds the age of repo introspection cache entries
	DefaultCacheTTL = 5 * time.Minute

	Build      Phase = "Build"
	Deploy     Phase = "Deploy"
	Trigger    Phase = "Trigger"
	Introspect Phase = "Introspect"
	DevLoop    Phase = "DevLoop"

	SubtaskIDNone = "-1"
)

var (
	// Images are labeled with the tool that produced them
	Labels = map[string]string{
		"builder": "gantry",
	}
)
