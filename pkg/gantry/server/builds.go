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

	"github.com/gantry-ci/gantry/pkg/gantry/trigger"
)

func (s *Server) getBuildTask(c *gin.Context) {
	task, err := s.Builds.Get(c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// readBuildLog streams the append-only log; safe while the task runs.
func (s *Server) readBuildLog(c *gin.Context) {
	r, err := s.Builds.ReadLog(c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}
	defer r.Close()

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Status(http.StatusOK)
	io.Copy(c.Writer, r)
}

func (s *Server) stopBuildTask(c *gin.Context) {
	if err := s.Scheduler.Cancel(c.Param("id")); err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopping"})
}

func (s *Server) deleteBuildTask(c *gin.Context) {
	if err := s.Builds.Delete(c.Param("id")); err != nil {
		abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 10<<20))
	if err != nil {
		abortBadRequest(c, err)
		return
	}

	outcome, err := s.Trigger.HandleWebhook(c.Request.Context(), c.Param("token"), c.Request.Header, body)
	if err != nil {
		abort(c, err)
		return
	}
	respondOutcome(c, outcome)
}

// respondOutcome shapes a trigger outcome per the run/webhook contract:
// immediate dispatch carries the task id, a queued run carries its queue
// position, and a skipped trigger is acknowledged without a task.
func respondOutcome(c *gin.Context, outcome *trigger.Outcome) {
	switch {
	case outcome.Skipped:
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "detail": outcome.Reason})
	case outcome.Queued:
		c.JSON(http.StatusOK, gin.H{
			"status":       "queued",
			"queue_length": outcome.QueueLength,
			"branch":       outcome.Branch,
			"task_id":      outcome.TaskID,
		})
	default:
		c.JSON(http.StatusOK, gin.H{
			"task_id": outcome.TaskID,
			"branch":  outcome.Branch,
		})
	}
}
