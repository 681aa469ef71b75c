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

package app

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/gantry-ci/gantry/testutil"
)

func TestMainHelp(t *testing.T) {
	testutil.Run(t, "", func(t *testutil.T) {
		t.Override(&os.Args, []string{"gantry", "help"})

		var output, errOutput bytes.Buffer
		err := Run(&output, &errOutput)

		t.CheckNoError(err)
		t.CheckContains("serve", output.String())
		t.CheckContains("version", output.String())
		t.CheckEmpty(errOutput.String())
	})
}

func TestMainUnknownCommand(t *testing.T) {
	testutil.Run(t, "", func(t *testutil.T) {
		t.Override(&os.Args, []string{"gantry", "unknown"})

		err := Run(io.Discard, io.Discard)

		t.CheckError(true, err)
	})
}
