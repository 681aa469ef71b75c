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
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gantry-ci/gantry/pkg/gantry/deploy"
	"github.com/gantry-ci/gantry/pkg/gantry/deploy/schema"
	gErrors "github.com/gantry-ci/gantry/pkg/gantry/errors"
)

// deployTaskView adds the computed aggregate status and app name to the
// persisted record.
type deployTaskView struct {
	*deploy.Task
	AppName string        `json:"app_name"`
	Status  deploy.Status `json:"status"`
}

func viewOf(task *deploy.Task) deployTaskView {
	return deployTaskView{
		Task:    task,
		AppName: task.AppName(),
		Status:  task.AggregateStatus(),
	}
}

func (s *Server) listDeployTasks(c *gin.Context) {
	list := s.Deploys.List()
	views := make([]deployTaskView, 0, len(list))
	for _, task := range list {
		views = append(views, viewOf(task))
	}
	c.JSON(http.StatusOK, gin.H{"tasks": views})
}

func (s *Server) getDeployTask(c *gin.Context) {
	task, err := s.Deploys.Get(c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}
	view := viewOf(task)
	c.JSON(http.StatusOK, gin.H{
		"task":           view,
		"config_content": task.ConfigContent,
		"config":         task.Config,
	})
}

func (s *Server) createDeployTask(c *gin.Context) {
	var req struct {
		ConfigContent string `json:"config_content"`
		Registry      string `json:"registry"`
		Tag           string `json:"tag"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err)
		return
	}
	if req.ConfigContent == "" {
		abort(c, gErrors.New(gErrors.Validation, "config_content is required"))
		return
	}

	s.storeDeployConfig(c, substitute(req.ConfigContent, req.Registry, req.Tag))
}

// importDeployTask accepts the configuration as a multipart file upload.
func (s *Server) importDeployTask(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		abort(c, gErrors.Wrap(gErrors.Validation, err, "a yaml file is required"))
		return
	}
	f, err := file.Open()
	if err != nil {
		abort(c, err)
		return
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, 1<<20))
	if err != nil {
		abort(c, err)
		return
	}
	s.storeDeployConfig(c, string(content))
}

func (s *Server) storeDeployConfig(c *gin.Context, content string) {
	config, err := schema.Parse([]byte(content))
	if err != nil {
		abort(c, err)
		return
	}

	task := deploy.NewTask(content, config)
	if err := s.Deploys.Create(task); err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, viewOf(task))
}

func (s *Server) executeDeployTask(c *gin.Context) {
	id := c.Param("id")
	if err := s.Executor.Execute(c.Request.Context(), id); err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": id, "status": deploy.StatusRunning})
}

func (s *Server) deleteDeployTask(c *gin.Context) {
	if err := s.Deploys.Delete(c.Param("id")); err != nil {
		abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) exportDeployTask(c *gin.Context) {
	task, err := s.Deploys.Get(c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+task.ID+`.yaml"`)
	c.Data(http.StatusOK, "application/x-yaml", []byte(task.ConfigContent))
}

// substitute fills the ${REGISTRY} and ${TAG} placeholders a pipeline's
// publish step leaves in shared deploy configurations.
func substitute(content, registry, tag string) string {
	if registry != "" {
		content = strings.ReplaceAll(content, "${REGISTRY}", registry)
	}
	if tag != "" {
		content = strings.ReplaceAll(content, "${TAG}", tag)
	}
	return content
}
