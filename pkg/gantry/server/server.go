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

// Package server exposes the control plane over HTTP. Handlers are thin:
// they translate JSON to store and engine calls and error kinds to status
// codes, and never block on long work.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gantry-ci/gantry/pkg/gantry/build"
	"github.com/gantry-ci/gantry/pkg/gantry/deploy"
	gErrors "github.com/gantry-ci/gantry/pkg/gantry/errors"
	"github.com/gantry-ci/gantry/pkg/gantry/gitrepo"
	"github.com/gantry-ci/gantry/pkg/gantry/hosts"
	"github.com/gantry-ci/gantry/pkg/gantry/pipeline"
	"github.com/gantry-ci/gantry/pkg/gantry/resourcepkg"
	"github.com/gantry-ci/gantry/pkg/gantry/sources"
	"github.com/gantry-ci/gantry/pkg/gantry/trigger"
	"github.com/gantry-ci/gantry/pkg/gantry/version"
)

// Server bundles every service the API fronts.
type Server struct {
	Pipelines *pipeline.Store
	Builds    *build.Store
	Scheduler *build.Scheduler
	Trigger   *trigger.Router
	Repos     *gitrepo.Service
	Deploys   *deploy.Store
	Executor  *deploy.Executor
	Hosts     *hosts.Store
	Sources   *sources.Store
	Resources *resourcepkg.Store
}

// Handler builds the full route table.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(requestLogger(), gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, version.Get())
	})

	api := router.Group("/api")
	{
		api.GET("/pipelines", s.listPipelines)
		api.POST("/pipelines", s.createPipeline)
		api.PUT("/pipelines/:id", s.updatePipeline)
		api.DELETE("/pipelines/:id", s.deletePipeline)
		api.POST("/pipelines/:id/run", s.runPipeline)
		api.GET("/pipelines/:id/tasks", s.listPipelineTasks)

		api.GET("/build-tasks/:id", s.getBuildTask)
		api.GET("/build-tasks/:id/logs", s.readBuildLog)
		api.POST("/build-tasks/:id/stop", s.stopBuildTask)
		api.DELETE("/build-tasks/:id", s.deleteBuildTask)

		api.POST("/webhook/:token", s.handleWebhook)

		api.POST("/verify-git-repo", s.verifyGitRepo)
		api.POST("/git-sources/scan-dockerfiles", s.scanDockerfiles)
		api.POST("/parse-dockerfile-services", s.parseDockerfileServices)
		api.GET("/template-params", s.templateParams)

		api.GET("/deploy-tasks", s.listDeployTasks)
		api.GET("/deploy-tasks/:id", s.getDeployTask)
		api.POST("/deploy-tasks", s.createDeployTask)
		api.POST("/deploy-tasks/import", s.importDeployTask)
		api.POST("/deploy-tasks/:id/execute", s.executeDeployTask)
		api.DELETE("/deploy-tasks/:id", s.deleteDeployTask)
		api.GET("/deploy-tasks/:id/export", s.exportDeployTask)

		api.GET("/hosts", s.listHosts)
		api.POST("/hosts", s.saveHost)
		api.DELETE("/hosts/:kind/:name", s.deleteHost)

		api.GET("/git-sources", s.listGitSources)
		api.POST("/git-sources", s.createGitSource)
		api.DELETE("/git-sources/:id", s.deleteGitSource)

		api.GET("/resource-packages", s.listResourcePackages)
		api.POST("/resource-packages", s.uploadResourcePackage)
		api.DELETE("/resource-packages/:id", s.deleteResourcePackage)
	}

	return router
}

// abort renders the error as `{detail}` with its mapped status code.
func abort(c *gin.Context, err error) {
	c.AbortWithStatusJSON(gErrors.StatusCode(err), gin.H{"detail": err.Error()})
}

func abortBadRequest(c *gin.Context, err error) {
	abort(c, gErrors.Wrap(gErrors.Validation, err, "malformed request"))
}
