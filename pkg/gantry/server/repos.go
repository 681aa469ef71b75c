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

package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gantry-ci/gantry/pkg/gantry/dockerfile"
	gErrors "github.com/gantry-ci/gantry/pkg/gantry/errors"
)

type repoRequest struct {
	GitURL         string `json:"git_url"`
	Branch         string `json:"branch"`
	DockerfileName string `json:"dockerfile_name"`
	SourceID       string `json:"source_id"`
	Force          bool   `json:"force"`
}

func (r *repoRequest) validate() error {
	if r.GitURL == "" {
		return gErrors.New(gErrors.Validation, "git_url is required")
	}
	return nil
}

func (s *Server) verifyGitRepo(c *gin.Context) {
	var req repoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err)
		return
	}
	if err := req.validate(); err != nil {
		abort(c, err)
		return
	}

	refs, err := s.Repos.ResolveBranchesAndTags(c.Request.Context(), req.GitURL, req.SourceID, req.Force)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, refs)
}

func (s *Server) scanDockerfiles(c *gin.Context) {
	var req repoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err)
		return
	}
	if err := req.validate(); err != nil {
		abort(c, err)
		return
	}

	branch, err := s.effectiveBranch(c, &req)
	if err != nil {
		abort(c, err)
		return
	}
	paths, err := s.Repos.ScanDockerfiles(c.Request.Context(), req.GitURL, branch, req.SourceID, req.Force)
	if err != nil {
		abort(c, err)
		return
	}
	if paths == nil {
		paths = []string{}
	}
	c.JSON(http.StatusOK, paths)
}

func (s *Server) parseDockerfileServices(c *gin.Context) {
	var req repoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err)
		return
	}
	if err := req.validate(); err != nil {
		abort(c, err)
		return
	}
	if req.DockerfileName == "" {
		req.DockerfileName = "Dockerfile"
	}

	branch, err := s.effectiveBranch(c, &req)
	if err != nil {
		abort(c, err)
		return
	}
	services, err := s.Repos.AnalyzeServices(c.Request.Context(), req.GitURL, branch, req.DockerfileName, req.SourceID, req.Force)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"services": services})
}

// effectiveBranch resolves a blank branch to the repository default.
func (s *Server) effectiveBranch(c *gin.Context, req *repoRequest) (string, error) {
	if req.Branch != "" {
		return req.Branch, nil
	}
	refs, err := s.Repos.ResolveBranchesAndTags(c.Request.Context(), req.GitURL, req.SourceID, false)
	if err != nil {
		return "", err
	}
	return refs.DefaultBranch, nil
}

func (s *Server) templateParams(c *gin.Context) {
	tmpl, err := dockerfile.Lookup(c.Query("template"), c.Query("project_type"))
	if err != nil {
		abort(c, err)
		return
	}

	params := tmpl.Params(nil)
	content, err := tmpl.Render(nil)
	if err != nil {
		abort(c, err)
		return
	}
	services, err := dockerfile.Analyze(content, c.Query("project_type"))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"services": services,
		"params":   params,
	})
}
