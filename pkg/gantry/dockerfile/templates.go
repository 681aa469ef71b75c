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
	"bytes"
	"sort"
	"text/template"

	"github.com/imdario/mergo"

	gErrors "github.com/gantry-ci/gantry/pkg/gantry/errors"
)

// Template is one built-in Dockerfile template.
type Template struct {
	Name          string
	ProjectType   string
	DefaultParams map[string]string
	text          *template.Template
}

var templates = map[string]*Template{}

func register(name, projectType, text string, defaults map[string]string) {
	templates[name] = &Template{
		Name:          name,
		ProjectType:   projectType,
		DefaultParams: defaults,
		text:          template.Must(template.New(name).Option("missingkey=error").Parse(text)),
	}
}

func init() {
	register("jar", "jar", jarTemplate, map[string]string{
		"baseImage": "eclipse-temurin:17-jre",
		"jarPath":   "target/*.jar",
		"port":      "8080",
		"javaOpts":  "",
	})
	register("nodejs", "nodejs", nodejsTemplate, map[string]string{
		"baseImage":  "node:20-alpine",
		"installCmd": "npm ci",
		"buildCmd":   "npm run build",
		"startCmd":   "npm start",
		"port":       "3000",
	})
	register("python", "python", pythonTemplate, map[string]string{
		"baseImage":    "python:3.12-slim",
		"requirements": "requirements.txt",
		"entrypoint":   "app.py",
		"port":         "8000",
	})
	register("go", "go", goTemplate, map[string]string{
		"baseImage":  "golang:1.23-alpine",
		"runImage":   "alpine:3.20",
		"mainPath":   ".",
		"binaryName": "app",
		"port":       "8080",
	})
	register("web", "web", webTemplate, map[string]string{
		"baseImage": "nginx:alpine",
		"distDir":   "dist",
		"port":      "80",
	})
}

// Lookup returns the named template, falling back to the project type's
// default template when name is blank.
func Lookup(name, projectType string) (*Template, error) {
	if name == "" {
		name = projectType
	}
	t, ok := templates[name]
	if !ok {
		return nil, gErrors.Newf(gErrors.NotFound, "unknown Dockerfile template %q", name)
	}
	return t, nil
}

// Names lists the registered template names.
func Names() []string {
	var names []string
	for name := range templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Params returns the template's parameters with params layered over the
// defaults.
func (t *Template) Params(params map[string]string) map[string]string {
	merged := map[string]string{}
	for k, v := range params {
		merged[k] = v
	}
	if err := mergo.Merge(&merged, t.DefaultParams); err != nil {
		return t.DefaultParams
	}
	return merged
}

// Render produces Dockerfile content from the template and parameters. The
// output is parsed before it is returned so a bad parameter set fails the
// build here, not inside the docker daemon.
func (t *Template) Render(params map[string]string) ([]byte, error) {
	var buf bytes.Buffer
	if err := t.text.Execute(&buf, t.Params(params)); err != nil {
		return nil, gErrors.Wrapf(gErrors.TemplateRender, err, "rendering Dockerfile template %q", t.Name)
	}

	if _, err := Analyze(buf.Bytes(), "validate"); err != nil {
		return nil, gErrors.Wrapf(gErrors.TemplateRender, err, "template %q produced an invalid Dockerfile", t.Name)
	}
	return buf.Bytes(), nil
}

const jarTemplate = `FROM {{.baseImage}}
WORKDIR /app
COPY {{.jarPath}} /app/app.jar
ENV JAVA_OPTS="{{.javaOpts}}"
EXPOSE {{.port}}
ENTRYPOINT ["sh", "-c", "java $JAVA_OPTS -jar /app/app.jar"]
`

const nodejsTemplate = `FROM {{.baseImage}} AS build
WORKDIR /app
COPY package*.json ./
RUN {{.installCmd}}
COPY . .
RUN {{.buildCmd}}

FROM {{.baseImage}}
WORKDIR /app
COPY --from=build /app /app
EXPOSE {{.port}}
CMD ["sh", "-c", "{{.startCmd}}"]
`

const pythonTemplate = `FROM {{.baseImage}}
WORKDIR /app
COPY {{.requirements}} ./
RUN pip install --no-cache-dir -r {{.requirements}}
COPY . .
EXPOSE {{.port}}
CMD ["python", "{{.entrypoint}}"]
`

const goTemplate = `FROM {{.baseImage}} AS build
WORKDIR /src
COPY go.* ./
RUN go mod download
COPY . .
RUN CGO_ENABLED=0 go build -o /out/{{.binaryName}} {{.mainPath}}

FROM {{.runImage}}
COPY --from=build /out/{{.binaryName}} /usr/local/bin/{{.binaryName}}
EXPOSE {{.port}}
ENTRYPOINT ["{{.binaryName}}"]
`

const webTemplate = `FROM {{.baseImage}}
COPY {{.distDir}} /usr/share/nginx/html
EXPOSE {{.port}}
`
