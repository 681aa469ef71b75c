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

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gantry-ci/gantry/pkg/gantry/config"
	"github.com/gantry-ci/gantry/pkg/gantry/constants"
)

var (
	opts = config.Default()
	v    string
)

var rootCmd = &cobra.Command{
	Use:           "gantry",
	Short:         "A self-hosted pipeline server that builds container images from git pushes and ships them to your hosts.",
	SilenceErrors: true,
}

func NewGantryCommand(out, stderr io.Writer) *cobra.Command {
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return SetUpLogs(stderr, v)
	}

	rootCmd.AddCommand(NewCmdServe(out))
	rootCmd.AddCommand(NewCmdVersion(out))

	rootCmd.PersistentFlags().StringVarP(&v, "verbosity", "v", constants.DefaultLogLevel.String(), "Log level (debug, info, warn, error, fatal, panic)")
	return rootCmd
}

func SetUpLogs(stderr io.Writer, level string) error {
	logrus.SetOutput(stderr)
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}
	logrus.SetLevel(lvl)
	return nil
}
