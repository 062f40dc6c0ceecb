package transport

import (
	"github.com/agentctx/platform/internal/entity"
	"github.com/agentctx/platform/internal/errs"
	instancesync "github.com/agentctx/platform/internal/sync"
	"github.com/gin-gonic/gin"
)

func (s *Server) handleListJobs(c *gin.Context) {
	jobs, err := s.deps.Jobs.ForAgentUser(c.Request.Context(), c.Query("agent_id"), c.Query("user_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(200, jobs)
}

func (s *Server) handleGetJob(c *gin.Context) {
	job, err := s.deps.Jobs.Get(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(200, job)
}

// handleCancelJob mirrors the chat-tool cancellation path: terminate the
// job and park its owning instance as cancelled.
func (s *Server) handleCancelJob(c *gin.Context) {
	ctx := c.Request.Context()
	jobID := c.Param("job_id")
	job, err := s.deps.Jobs.Get(ctx, jobID)
	if err != nil {
		writeError(c, err)
		return
	}
	caller := requestingUserID(c)
	if caller == "" {
		caller = c.Query("user_id")
	}
	if caller != job.UserID {
		writeError(c, errs.Unauthorized("transport: only the job's creator may cancel it"))
		return
	}
	if err := s.deps.Jobs.Complete(ctx, jobID, entity.JobCancelled, "", nil); err != nil {
		writeError(c, err)
		return
	}
	if err := s.deps.Instances.SetStatus(ctx, job.InstanceID, entity.InstanceCancelled); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(200, gin.H{"status": "cancelled"})
}

type complexJobRequest struct {
	AgentID     string                      `json:"agent_id" binding:"required"`
	UserID      string                      `json:"user_id" binding:"required"`
	NarrativeID string                      `json:"narrative_id"`
	Jobs        []instancesync.BatchJobSpec `json:"jobs" binding:"required"`
}

// handleCreateComplexJob materializes a batch of jobs with an explicit
// dependency graph in one call, bypassing the planner. The sync layer
// applies the same cycle detection and duplicate suppression the
// per-turn path gets.
func (s *Server) handleCreateComplexJob(c *gin.Context) {
	var req complexJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	result, err := s.deps.Syncer.ProcessBatch(c.Request.Context(), req.Jobs, req.AgentID, req.UserID, req.NarrativeID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(201, gin.H{
		"key_to_id":  result.KeyToID,
		"suppressed": result.Suppressed,
	})
}
