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

package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/gantry-ci/gantry/testutil"
)

func validPipeline() *Pipeline {
	return &Pipeline{
		GitURL:               "https://example.com/acme/app.git",
		ProjectType:          ProjectGo,
		UseProjectDockerfile: true,
		ImageName:            "acme/app",
		Tag:                  "latest",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		description string
		mutate      func(p *Pipeline)
		shouldErr   bool
	}{
		{
			description: "valid",
			mutate:      func(p *Pipeline) {},
		},
		{
			description: "missing git_url",
			mutate:      func(p *Pipeline) { p.GitURL = "" },
			shouldErr:   true,
		},
		{
			description: "missing image_name",
			mutate:      func(p *Pipeline) { p.ImageName = "" },
			shouldErr:   true,
		},
		{
			description: "project dockerfile excludes template",
			mutate:      func(p *Pipeline) { p.Template = "go" },
			shouldErr:   true,
		},
		{
			description: "template mode requires template",
			mutate:      func(p *Pipeline) { p.UseProjectDockerfile = false },
			shouldErr:   true,
		},
		{
			description: "template mode with template",
			mutate: func(p *Pipeline) {
				p.UseProjectDockerfile = false
				p.Template = "go"
			},
		},
		{
			description: "single push mode caps selected services",
			mutate: func(p *Pipeline) {
				p.PushMode = PushSingle
				p.SelectedServices = []string{"api", "worker"}
			},
			shouldErr: true,
		},
		{
			description: "multi push mode allows several services",
			mutate: func(p *Pipeline) {
				p.PushMode = PushMulti
				p.SelectedServices = []string{"api", "worker"}
			},
		},
		{
			description: "bad cron expression",
			mutate:      func(p *Pipeline) { p.CronExpression = "not cron" },
			shouldErr:   true,
		},
		{
			description: "good cron expression",
			mutate:      func(p *Pipeline) { p.CronExpression = "*/30 * * * *" },
		},
		{
			description: "unknown project type",
			mutate:      func(p *Pipeline) { p.ProjectType = "cobol" },
			shouldErr:   true,
		},
		{
			description: "unknown branch strategy",
			mutate:      func(p *Pipeline) { p.WebhookBranchStrategy = "guess" },
			shouldErr:   true,
		},
	}
	for _, test := range tests {
		testutil.Run(t, test.description, func(t *testutil.T) {
			p := validPipeline()
			test.mutate(p)

			t.CheckError(test.shouldErr, p.Validate())
		})
	}
}

func TestServicePushLegacyUpgrade(t *testing.T) {
	testutil.Run(t, "bare booleans become objects", func(t *testutil.T) {
		var p Pipeline
		err := json.Unmarshal([]byte(`{
			"pipeline_id": "p1",
			"git_url": "g",
			"image_name": "acme/app",
			"project_type": "go",
			"use_project_dockerfile": true,
			"service_push_config": {
				"api": true,
				"worker": {"push": false, "imageName": "acme/worker", "tag": "dev"}
			}
		}`), &p)

		t.CheckNoError(err)
		t.CheckDeepEqual(ServicePush{Push: true}, p.ServicePushConfig["api"])
		t.CheckDeepEqual(ServicePush{Push: false, ImageName: "acme/worker", Tag: "dev"}, p.ServicePushConfig["worker"])
	})
}

func TestBranchTagMappingOrderPreserved(t *testing.T) {
	tests := []struct {
		description string
		input       string
		expected    BranchTagMapping
	}{
		{
			description: "list form",
			input:       `[{"branch":"main","tag":"prod"},{"branch":"feature/*","tag":"dev"}]`,
			expected: BranchTagMapping{
				{Branch: "main", Tag: "prod"},
				{Branch: "feature/*", Tag: "dev"},
			},
		},
		{
			description: "legacy object form keeps declaration order",
			input:       `{"release/*":"rc","main":"prod","feature/*":"dev"}`,
			expected: BranchTagMapping{
				{Branch: "release/*", Tag: "rc"},
				{Branch: "main", Tag: "prod"},
				{Branch: "feature/*", Tag: "dev"},
			},
		},
	}
	for _, test := range tests {
		testutil.Run(t, test.description, func(t *testutil.T) {
			var m BranchTagMapping
			err := json.Unmarshal([]byte(test.input), &m)

			t.CheckErrorAndDeepEqual(false, err, test.expected, m)
		})
	}
}

func TestServicePushFor(t *testing.T) {
	testutil.Run(t, "falls back to the pipeline push flag", func(t *testutil.T) {
		p := validPipeline()
		p.Push = true
		p.ServicePushConfig = map[string]ServicePush{
			"api": {Push: false},
		}

		t.CheckDeepEqual(ServicePush{Push: false}, p.ServicePushFor("api"))
		t.CheckDeepEqual(ServicePush{Push: true}, p.ServicePushFor("worker"))
	})
}

func TestTemplateParamsFor(t *testing.T) {
	testutil.Run(t, "service params layer over global params", func(t *testutil.T) {
		p := validPipeline()
		p.ServiceTemplateParams = map[string]map[string]string{
			"*":   {"port": "8080", "baseImage": "alpine"},
			"api": {"port": "9000"},
		}

		t.CheckDeepEqual(map[string]string{"port": "9000", "baseImage": "alpine"}, p.TemplateParamsFor("api"))
		t.CheckDeepEqual(map[string]string{"port": "8080", "baseImage": "alpine"}, p.TemplateParamsFor("worker"))
	})
}
