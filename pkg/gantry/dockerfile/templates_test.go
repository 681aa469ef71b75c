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

package dockerfile

import (
	"strings"
	"testing"

	"github.com/gantry-ci/gantry/testutil"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		description string
		name        string
		projectType string
		expected    string
		shouldErr   bool
	}{
		{description: "by name", name: "go", projectType: "jar", expected: "go"},
		{description: "blank name falls back to project type", name: "", projectType: "nodejs", expected: "nodejs"},
		{description: "unknown", name: "cobol", projectType: "jar", shouldErr: true},
	}
	for _, test := range tests {
		testutil.Run(t, test.description, func(t *testutil.T) {
			tmpl, err := Lookup(test.name, test.projectType)

			t.CheckError(test.shouldErr, err)
			if !test.shouldErr {
				t.CheckDeepEqual(test.expected, tmpl.Name)
			}
		})
	}
}

func TestRenderAllTemplates(t *testing.T) {
	for _, name := range Names() {
		testutil.Run(t, name, func(t *testutil.T) {
			tmpl, err := Lookup(name, "")
			t.RequireNoError(err)

			content, err := tmpl.Render(nil)

			t.CheckNoError(err)
			t.CheckTrue(strings.HasPrefix(string(content), "FROM "))
		})
	}
}

func TestRenderParamOverride(t *testing.T) {
	testutil.Run(t, "port override", func(t *testutil.T) {
		tmpl, err := Lookup("python", "")
		t.RequireNoError(err)

		content, err := tmpl.Render(map[string]string{"port": "9999"})

		t.CheckNoError(err)
		t.CheckContains("EXPOSE 9999", string(content))
	})
}

func TestTemplateParams(t *testing.T) {
	testutil.Run(t, "overrides layered over defaults", func(t *testutil.T) {
		tmpl, err := Lookup("go", "")
		t.RequireNoError(err)

		params := tmpl.Params(map[string]string{"binaryName": "gantryd"})

		t.CheckDeepEqual("gantryd", params["binaryName"])
		t.CheckDeepEqual("8080", params["port"])
	})
}
