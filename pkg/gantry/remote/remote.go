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

// Package remote executes shell commands and writes files on deploy
// targets: over ssh, through the gantry agent, or through a Portainer
// endpoint.
package remote

import (
	"context"

	gErrors "github.com/gantry-ci/gantry/pkg/gantry/errors"
	"github.com/gantry-ci/gantry/pkg/gantry/hosts"
)

// Runner executes on one target host. Run returns the merged
// stdout+stderr and the command's exit status; a non-zero exit is
// reported through exitStatus, not err — err means the command could not
// be attempted or its outcome is unknown.
type Runner interface {
	Run(ctx context.Context, command string) (output string, exitStatus int, err error)
	WriteFile(ctx context.Context, path string, data []byte) error
	Close() error
}

// For testing
var NewRunner = newRunner

func newRunner(host *hosts.Host) (Runner, error) {
	switch host.Kind {
	case hosts.KindSSH:
		return newSSHRunner(host)
	case hosts.KindAgent:
		return newAgentRunner(host), nil
	case hosts.KindPortainer:
		return newPortainerRunner(host)
	}
	return nil, gErrors.Newf(gErrors.Validation, "no runner for host kind %q", host.Kind)
}
