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

package docker

import (
	"strings"

	"github.com/distribution/reference"
	"github.com/google/go-containerregistry/pkg/name"

	gErrors "github.com/gantry-ci/gantry/pkg/gantry/errors"
)

// ImageReference is a parsed image name.
type ImageReference struct {
	BaseName       string
	Tag            string
	FullyQualified bool
}

// ParseReference parses an image name to a reference.
func ParseReference(image string) (*ImageReference, error) {
	r, err := reference.Parse(image)
	if err != nil {
		return nil, err
	}

	baseName := image
	if n, ok := r.(reference.Named); ok {
		baseName = n.Name()
	}

	fullyQualified := false
	tag := ""
	switch n := r.(type) {
	case reference.Tagged:
		tag = n.Tag()
		fullyQualified = n.Tag() != "latest"
	case reference.Digested:
		fullyQualified = true
	}

	return &ImageReference{
		BaseName:       baseName,
		Tag:            tag,
		FullyQualified: fullyQualified,
	}, nil
}

// ServiceImageRef derives the image reference for one service of a
// multi-service build: {prefix}/{service}:{tag}. Trailing slashes on the
// prefix are trimmed so the result never contains "//", and a prefix that
// already ends with "/{service}" does not get the service appended again.
func ServiceImageRef(prefix, service, tag string) string {
	repo := strings.TrimRight(prefix, "/")
	if !strings.HasSuffix(repo, "/"+service) && repo != service {
		repo = repo + "/" + service
	}
	return withTag(repo, tag)
}

// SingleImageRef derives the image reference for a single-service build.
func SingleImageRef(imageName, tag string) string {
	return withTag(strings.TrimRight(imageName, "/"), tag)
}

func withTag(repo, tag string) string {
	if tag == "" {
		tag = "latest"
	}
	return repo + ":" + tag
}

// ValidateRef rejects image references the registry would refuse.
func ValidateRef(ref string) error {
	if _, err := name.NewTag(ref, name.WeakValidation); err != nil {
		return gErrors.Wrapf(gErrors.Validation, err, "invalid image reference %q", ref)
	}
	return nil
}
