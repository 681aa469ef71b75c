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
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	gErrors "github.com/gantry-ci/gantry/pkg/gantry/errors"
	"github.com/gantry-ci/gantry/pkg/gantry/hosts"
	"github.com/gantry-ci/gantry/pkg/gantry/sources"
)

const redacted = "********"

func (s *Server) listHosts(c *gin.Context) {
	list := s.Hosts.List()
	views := make([]*hosts.Host, 0, len(list))
	for _, h := range list {
		redactedHost := *h
		if redactedHost.KeyPEM != "" {
			redactedHost.KeyPEM = redacted
		}
		if redactedHost.Password != "" {
			redactedHost.Password = redacted
		}
		if redactedHost.APIKey != "" {
			redactedHost.APIKey = redacted
		}
		views = append(views, &redactedHost)
	}
	c.JSON(http.StatusOK, gin.H{"hosts": views})
}

func (s *Server) saveHost(c *gin.Context) {
	var h hosts.Host
	if err := c.ShouldBindJSON(&h); err != nil {
		abortBadRequest(c, err)
		return
	}
	if err := s.Hosts.Save(&h); err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"kind": h.Kind, "name": h.Name})
}

func (s *Server) deleteHost(c *gin.Context) {
	kind := c.Param("kind")
	if !hosts.ValidKind(kind) {
		abort(c, gErrors.Newf(gErrors.Validation, "unknown host kind %q", kind))
		return
	}
	if err := s.Hosts.Delete(hosts.Kind(kind), c.Param("name")); err != nil {
		abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listGitSources(c *gin.Context) {
	list := s.Sources.List()
	views := make([]*sources.GitSource, 0, len(list))
	for _, src := range list {
		redactedSource := *src
		if redactedSource.Token != "" {
			redactedSource.Token = redacted
		}
		views = append(views, &redactedSource)
	}
	c.JSON(http.StatusOK, gin.H{"sources": views})
}

func (s *Server) createGitSource(c *gin.Context) {
	var src sources.GitSource
	if err := c.ShouldBindJSON(&src); err != nil {
		abortBadRequest(c, err)
		return
	}
	created, err := s.Sources.Create(&src)
	if err != nil {
		abort(c, err)
		return
	}
	view := *created
	if view.Token != "" {
		view.Token = redacted
	}
	c.JSON(http.StatusCreated, view)
}

func (s *Server) deleteGitSource(c *gin.Context) {
	if err := s.Sources.Delete(c.Param("id")); err != nil {
		abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listResourcePackages(c *gin.Context) {
	list, err := s.Resources.List()
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"packages": list})
}

// uploadResourcePackage registers or replaces a package from a multipart
// tar.gz upload.
func (s *Server) uploadResourcePackage(c *gin.Context) {
	id := c.PostForm("id")
	if id == "" {
		abort(c, gErrors.New(gErrors.Validation, "package id is required"))
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		abort(c, gErrors.Wrap(gErrors.Validation, err, "an archive file is required"))
		return
	}
	f, err := file.Open()
	if err != nil {
		abort(c, err)
		return
	}
	defer f.Close()

	if err := s.Resources.SaveArchive(id, io.LimitReader(f, 100<<20)); err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) deleteResourcePackage(c *gin.Context) {
	if err := s.Resources.Delete(c.Param("id")); err != nil {
		abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
