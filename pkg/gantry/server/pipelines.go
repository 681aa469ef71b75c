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
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/gantry-ci/gantry/pkg/gantry/build"
	"github.com/gantry-ci/gantry/pkg/gantry/pipeline"
)

// pipelineView is a pipeline plus its live queue signals.
type pipelineView struct {
	*pipeline.Pipeline
	build.QueueInfo
}

func (s *Server) listPipelines(c *gin.Context) {
	list := s.Pipelines.List()
	views := make([]pipelineView, 0, len(list))
	for _, p := range list {
		views = append(views, pipelineView{
			Pipeline:  p,
			QueueInfo: s.Scheduler.QueueInfo(p.ID),
		})
	}
	c.JSON(http.StatusOK, gin.H{"pipelines": views})
}

func (s *Server) createPipeline(c *gin.Context) {
	var p pipeline.Pipeline
	if err := c.ShouldBindJSON(&p); err != nil {
		abortBadRequest(c, err)
		return
	}

	created, err := s.Pipelines.Create(&p)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) updatePipeline(c *gin.Context) {
	var p pipeline.Pipeline
	if err := c.ShouldBindJSON(&p); err != nil {
		abortBadRequest(c, err)
		return
	}
	p.ID = c.Param("id")

	updated, err := s.Pipelines.Update(&p)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) deletePipeline(c *gin.Context) {
	id := c.Param("id")
	if err := s.Pipelines.Delete(id); err != nil {
		abort(c, err)
		return
	}
	// History survives as ad-hoc records.
	s.Builds.DissociatePipeline(id)
	c.Status(http.StatusNoContent)
}

func (s *Server) runPipeline(c *gin.Context) {
	var req struct {
		Branch string `json:"branch"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortBadRequest(c, err)
			return
		}
	}

	outcome, err := s.Trigger.Run(c.Request.Context(), c.Param("id"), req.Branch)
	if err != nil {
		abort(c, err)
		return
	}
	respondOutcome(c, outcome)
}

func (s *Server) listPipelineTasks(c *gin.Context) {
	filter := build.TaskFilter{
		Source: build.TriggerSource(c.Query("trigger_source")),
		Status: build.Status(c.Query("status")),
	}
	filter.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	filter.Offset, _ = strconv.Atoi(c.Query("offset"))

	tasks, total := s.Builds.ListByPipeline(c.Param("id"), filter)
	if tasks == nil {
		tasks = []*build.Task{}
	}
	c.JSON(http.StatusOK, gin.H{
		"tasks":    tasks,
		"total":    total,
		"has_more": filter.Offset+len(tasks) < total,
	})
}
