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

package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/gantry-ci/gantry/pkg/gantry/version"
)

func NewCmdVersion(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return RunVersion(out)
		},
	}
}

func RunVersion(out io.Writer) error {
	info := version.Get()
	_, err := fmt.Fprintf(out, "gantry %s (%s, %s, built %s)\n",
		info.Version, info.GitCommit, info.Platform, info.BuildDate)
	return err
}
