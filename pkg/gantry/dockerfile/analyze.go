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

// Package dockerfile parses Dockerfiles for their shippable services and
// renders the built-in templates used by pipelines that don't ship their
// own Dockerfile.
package dockerfile

import (
	"bytes"
	"strings"

	"github.com/moby/buildkit/frontend/dockerfile/command"
	"github.com/moby/buildkit/frontend/dockerfile/parser"

	gErrors "github.com/gantry-ci/gantry/pkg/gantry/errors"
)

// servicePrefix marks stage aliases that are services by convention, as the
// built-in templates emit them ("svc-api" is service "api").
const servicePrefix = "svc-"

// Service is one independently shippable image declared by a Dockerfile.
type Service struct {
	Name string `json:"name"`
	Port string `json:"port,omitempty"`
	User string `json:"user,omitempty"`
}

type stage struct {
	name string
	base int // index of the stage the FROM names, -1 for external images
	port string
	user string
}

// Analyze parses Dockerfile content and returns its services in declaration
// order. A stage is a service when its alias carries the template service
// convention, when it exposes a port, or when a final unaliased stage is a
// bare re-export of it. Dockerfiles where no stage qualifies yield one
// service named fallbackName.
func Analyze(content []byte, fallbackName string) ([]Service, error) {
	res, err := parser.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, gErrors.Wrap(gErrors.DockerfileMalformed, err, "parsing Dockerfile")
	}

	var stages []*stage
	index := map[string]int{}
	var current *stage

	for _, node := range res.AST.Children {
		switch strings.ToLower(node.Value) {
		case command.From:
			base, alias := fromParts(node)
			if base == "" {
				return nil, gErrors.New(gErrors.DockerfileMalformed, "FROM with no image")
			}
			current = &stage{name: alias, base: -1}
			if i, ok := index[strings.ToLower(base)]; ok {
				current.base = i
			}
			stages = append(stages, current)
			if alias != "" {
				index[strings.ToLower(alias)] = len(stages) - 1
			}
		case command.Expose:
			if current != nil && node.Next != nil && current.port == "" {
				current.port = strings.SplitN(node.Next.Value, "/", 2)[0]
			}
		case command.User:
			if current != nil && node.Next != nil {
				current.user = node.Next.Value
			}
		}
	}

	if len(stages) == 0 {
		return nil, gErrors.New(gErrors.DockerfileMalformed, "Dockerfile has no FROM instruction")
	}

	// A final stage with no alias naming an earlier stage is a re-export:
	// the aliased stage is the image that actually ships.
	reexported := -1
	if last := stages[len(stages)-1]; last.name == "" && last.base >= 0 {
		reexported = last.base
	}

	var services []Service
	for i, s := range stages {
		if s.name == "" {
			continue
		}
		if !strings.HasPrefix(s.name, servicePrefix) && s.port == "" && i != reexported {
			continue
		}
		services = append(services, Service{
			Name: strings.TrimPrefix(s.name, servicePrefix),
			Port: s.port,
			User: s.user,
		})
	}

	if len(services) == 0 {
		fallback := stages[len(stages)-1]
		services = append(services, Service{
			Name: fallbackName,
			Port: fallback.port,
			User: fallback.user,
		})
	}
	return services, nil
}

func fromParts(node *parser.Node) (base, alias string) {
	n := node.Next
	if n == nil {
		return "", ""
	}
	base = n.Value
	if n.Next != nil && strings.EqualFold(n.Next.Value, "as") && n.Next.Next != nil {
		alias = n.Next.Next.Value
	}
	return base, alias
}
