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
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/distribution/reference"
	"github.com/docker/cli/cli/config"
	"github.com/docker/cli/cli/config/configfile"
	registrytypes "github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/registry"
	"github.com/mitchellh/go-homedir"
)

const configFileDir = ".docker"

var (
	// DefaultAuthHelper is exposed so that tests can override it; shelling
	// out to native credential store helpers is not testable otherwise.
	DefaultAuthHelper AuthConfigHelper
	configDir         = os.Getenv("DOCKER_CONFIG")
)

func init() {
	DefaultAuthHelper = credsHelper{}
	if configDir == "" {
		home, err := homedir.Dir()
		if err == nil {
			configDir = filepath.Join(home, configFileDir)
		}
	}
}

// AuthConfigHelper provides registry credentials from the docker config.
type AuthConfigHelper interface {
	GetAuthConfig(ctx context.Context, registry string) (registrytypes.AuthConfig, error)
	GetAllAuthConfigs(ctx context.Context) (map[string]registrytypes.AuthConfig, error)
}

type credsHelper struct{}

func loadDockerConfig() (*configfile.ConfigFile, error) {
	cf, err := config.Load(configDir)
	if err != nil {
		return nil, fmt.Errorf("docker config: %w", err)
	}
	return cf, nil
}

func (credsHelper) GetAuthConfig(_ context.Context, registryName string) (registrytypes.AuthConfig, error) {
	cf, err := loadDockerConfig()
	if err != nil {
		return registrytypes.AuthConfig{}, err
	}

	auth, err := cf.GetAuthConfig(registryName)
	if err != nil {
		return registrytypes.AuthConfig{}, err
	}

	return registrytypes.AuthConfig(auth), nil
}

func (credsHelper) GetAllAuthConfigs(_ context.Context) (map[string]registrytypes.AuthConfig, error) {
	cf, err := loadDockerConfig()
	if err != nil {
		return nil, err
	}

	credentials, err := cf.GetAllCredentials()
	if err != nil {
		return nil, err
	}

	authConfigs := make(map[string]registrytypes.AuthConfig, len(credentials))
	for k, auth := range credentials {
		authConfigs[k] = registrytypes.AuthConfig(auth)
	}

	return authConfigs, nil
}

// encodedRegistryAuth returns the base64 auth payload for the registry that
// serves the given image.
func (l *localDaemon) encodedRegistryAuth(ctx context.Context, a AuthConfigHelper, image string) (string, error) {
	ref, err := reference.ParseNormalizedNamed(image)
	if err != nil {
		return "", fmt.Errorf("parsing image name for registry: %w", err)
	}

	repoInfo, err := registry.ParseRepositoryInfo(ref)
	if err != nil {
		return "", err
	}

	configKey := repoInfo.Index.Name
	if repoInfo.Index.Official {
		configKey = registry.IndexServer
	}

	ac, err := a.GetAuthConfig(ctx, configKey)
	if err != nil {
		return "", err
	}

	return registrytypes.EncodeAuthConfig(ac)
}
