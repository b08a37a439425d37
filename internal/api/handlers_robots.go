package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"casare-orchestrator/internal/models"
)

type registerRobotRequest struct {
	Name              string   `json:"name" binding:"required"`
	Environment       string   `json:"environment"`
	Tags              []string `json:"tags"`
	MaxConcurrentJobs int      `json:"max_concurrent_jobs"`
	AffinityKey       string   `json:"affinity_key"`
	TotalCPU          int      `json:"total_cpu"`
	TotalMemoryMB     uint64   `json:"total_memory_mb"`
}

func (s *Server) registerRobot(c *gin.Context) {
	var req registerRobotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.MaxConcurrentJobs <= 0 {
		req.MaxConcurrentJobs = 1
	}

	robot, err := s.facade.RegisterRobot(c.Request.Context(), &models.Robot{
		Name:              req.Name,
		Environment:       req.Environment,
		Tags:              models.Tags(req.Tags),
		MaxConcurrentJobs: req.MaxConcurrentJobs,
		AffinityKey:       req.AffinityKey,
		TotalCPU:          req.TotalCPU,
		TotalMemoryMB:     req.TotalMemoryMB,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, robot)
}

func (s *Server) listRobots(c *gin.Context) {
	robots, err := s.facade.ListRobots(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"robots": robots})
}

type heartbeatRequest struct {
	Status          models.RobotStatus `json:"status" binding:"required"`
	CurrentJobCount int                `json:"current_job_count"`
}

func (s *Server) heartbeat(c *gin.Context) {
	var req heartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	if err := s.facade.Heartbeat(c.Request.Context(), c.Param("id"), req.Status, req.CurrentJobCount); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type updateRobotStatusRequest struct {
	Status models.RobotStatus `json:"status" binding:"required"`
}

func (s *Server) updateRobotStatus(c *gin.Context) {
	var req updateRobotStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	if err := s.facade.UpdateRobotStatus(c.Request.Context(), c.Param("id"), req.Status); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// waitForAssignment implements the robot long-poll pickup endpoint: the
// robot blocks here (up to the server's configured assignment poll
// timeout) until a job is claimed for it, returning 204 on timeout so the
// robot's own retry loop can simply call again.
func (s *Server) waitForAssignment(c *gin.Context) {
	robotID := c.Param("id")

	timeout := s.cfg.AssignmentPollTimeout
	if q := c.Query("timeout_seconds"); q != "" {
		if secs, err := time.ParseDuration(q + "s"); err == nil && secs > 0 && secs < timeout {
			timeout = secs
		}
	}

	job, err := s.facade.WaitForAssignment(c.Request.Context(), robotID, timeout)
	if err != nil {
		respondErr(c, err)
		return
	}
	if job == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, job)
}

type manuallyRecoverRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) manuallyRecover(c *gin.Context) {
	var req manuallyRecoverRequest
	_ = c.ShouldBindJSON(&req)

	if err := s.facade.ManuallyRecover(c.Request.Context(), c.Param("id"), req.Reason); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recovered": true})
}
