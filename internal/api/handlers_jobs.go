package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"casare-orchestrator/internal/models"
	"casare-orchestrator/internal/orcherr"
	"casare-orchestrator/internal/orchestrator"
)

type submitJobRequest struct {
	WorkflowID         string                 `json:"workflow_id" binding:"required"`
	WorkflowName       string                 `json:"workflow_name"`
	WorkflowDefinition string                 `json:"workflow_definition"`
	Variables          map[string]interface{} `json:"variables"`
	TenantID           string                 `json:"tenant_id"`
	Tags               []string               `json:"tags"`
	AffinityKey        string                 `json:"affinity_key"`
	Priority           int                    `json:"priority"`
	MaxRetries         int                    `json:"max_retries"`
	Deduplicate        bool                   `json:"deduplicate"`
	DelaySeconds       int                    `json:"delay_seconds"`
}

func (s *Server) submitJob(c *gin.Context) {
	var req submitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := s.validator.ValidateWorkflowID(req.WorkflowID); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := s.validator.ValidateTags(req.Tags); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := s.validator.ValidatePriority(req.Priority); err != nil {
		badRequest(c, err.Error())
		return
	}

	job, err := s.facade.SubmitJob(c.Request.Context(), orchestrator.SubmitJobRequest{
		WorkflowID:         req.WorkflowID,
		WorkflowName:       req.WorkflowName,
		WorkflowDefinition: req.WorkflowDefinition,
		Variables:          models.Variables(req.Variables),
		TenantID:           req.TenantID,
		Tags:               req.Tags,
		AffinityKey:        req.AffinityKey,
		Priority:           req.Priority,
		MaxRetries:         req.MaxRetries,
		Deduplicate:        req.Deduplicate,
		DelaySeconds:       req.DelaySeconds,
	})
	if err != nil && orcherr.CodeOf(err) == orcherr.Conflict {
		c.JSON(http.StatusConflict, job)
		return
	}
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

func (s *Server) listJobs(c *gin.Context) {
	status := models.JobStatus(c.Query("status"))
	limit, _ := strconv.Atoi(c.Query("limit"))

	jobs, err := s.facade.ListJobs(c.Request.Context(), status, limit)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (s *Server) getJob(c *gin.Context) {
	job, err := s.facade.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) cancelJob(c *gin.Context) {
	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&body)

	cancelled, err := s.facade.CancelJob(c.Request.Context(), c.Param("id"), body.Reason)
	if err != nil {
		respondErr(c, err)
		return
	}
	if !cancelled {
		c.JSON(http.StatusConflict, gin.H{"error": "job already terminal or claimed past cancellation window"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": true})
}

func (s *Server) retryJob(c *gin.Context) {
	job, err := s.facade.RetryJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

type updateProgressRequest struct {
	Progress    int    `json:"progress"`
	CurrentStep string `json:"current_step"`
}

// updateJobProgress also doubles as the robot's "mark running" signal: a
// robot calls this immediately after claiming, with progress 0, and the
// facade handles the CLAIMED->RUNNING transition separately via markRunning
// below when the job is still CLAIMED.
func (s *Server) updateJobProgress(c *gin.Context) {
	var req updateProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	jobID := c.Param("id")
	job, err := s.facade.GetJob(c.Request.Context(), jobID)
	if err != nil {
		respondErr(c, err)
		return
	}
	if job.Status == models.JobClaimed {
		if err := s.facade.MarkRunning(c.Request.Context(), jobID); err != nil {
			respondErr(c, err)
			return
		}
	}
	if err := s.facade.UpdateJobProgress(c.Request.Context(), jobID, req.Progress, req.CurrentStep); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true})
}

type completeJobRequest struct {
	Result string `json:"result"`
}

func (s *Server) completeJob(c *gin.Context) {
	var req completeJobRequest
	_ = c.ShouldBindJSON(&req)

	if err := s.facade.CompleteJob(c.Request.Context(), c.Param("id"), req.Result); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"completed": true})
}

type failJobRequest struct {
	Error string `json:"error" binding:"required"`
}

func (s *Server) failJob(c *gin.Context) {
	var req failJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	if err := s.facade.FailJob(c.Request.Context(), c.Param("id"), req.Error); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"failed": true})
}

type putCheckpointRequest struct {
	State         models.CheckpointState `json:"state" binding:"required"`
	CurrentStep   int                    `json:"current_step"`
	ExecutedNodes []string               `json:"executed_nodes"`
}

func (s *Server) putCheckpoint(c *gin.Context) {
	var req putCheckpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	cp := &models.Checkpoint{
		WorkflowInstanceID: c.Param("id"),
		State:              req.State,
		CurrentStep:        req.CurrentStep,
		ExecutedNodes:      models.StepList(req.ExecutedNodes),
	}
	if err := s.facade.PutCheckpoint(c.Request.Context(), cp); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"saved": true})
}

// reportNodeFailure exposes the per-job recovery policy engine (component
// C7) directly: a robot hitting a node-level error calls this to learn
// whether to retry, skip, fall back, compensate, abort, or escalate, before
// deciding whether to also call failJob for the job as a whole.
type reportNodeFailureRequest struct {
	NodeID     string            `json:"node_id" binding:"required"`
	NodeKind   string            `json:"node_kind"`
	RobotID    string            `json:"robot_id" binding:"required"`
	ErrorKind  models.ErrorKind  `json:"error_kind" binding:"required"`
	Severity   int               `json:"severity"`
	RetryCount int               `json:"retry_count"`
	Message    string            `json:"message"`
}

func (s *Server) reportNodeFailure(c *gin.Context) {
	var req reportNodeFailureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	action := s.facade.ReportNodeFailure(models.ErrorContext{
		JobID:      c.Param("id"),
		NodeID:     req.NodeID,
		NodeKind:   req.NodeKind,
		RobotID:    req.RobotID,
		ErrorKind:  req.ErrorKind,
		Severity:   req.Severity,
		RetryCount: req.RetryCount,
		Message:    req.Message,
	})
	c.JSON(http.StatusOK, action)
}
