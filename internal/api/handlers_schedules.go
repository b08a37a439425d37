package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"casare-orchestrator/internal/models"
)

type scheduleRequest struct {
	Name            string           `json:"name" binding:"required"`
	WorkflowID      string           `json:"workflow_id" binding:"required"`
	Frequency       models.Frequency `json:"frequency" binding:"required"`
	CronExpr        string           `json:"cron_expr"`
	IntervalSeconds int              `json:"interval_seconds"`
	DayOfWeek       int              `json:"day_of_week"`
	DayOfMonth      int              `json:"day_of_month"`
	Hour            int              `json:"hour"`
	Minute          int              `json:"minute"`
	Priority        int              `json:"priority"`
	Enabled         *bool            `json:"enabled"`
}

func (req scheduleRequest) toModel(id string) models.Schedule {
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	return models.Schedule{
		ScheduleID:      id,
		Name:            req.Name,
		WorkflowID:      req.WorkflowID,
		Frequency:       req.Frequency,
		CronExpr:        req.CronExpr,
		IntervalSeconds: req.IntervalSeconds,
		DayOfWeek:       req.DayOfWeek,
		DayOfMonth:      req.DayOfMonth,
		Hour:            req.Hour,
		Minute:          req.Minute,
		Priority:        req.Priority,
		Enabled:         enabled,
	}
}

func (s *Server) createSchedule(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	sched, err := s.facade.CreateSchedule(c.Request.Context(), req.toModel(""))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, sched)
}

func (s *Server) updateSchedule(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	sched, err := s.facade.UpdateSchedule(c.Request.Context(), req.toModel(c.Param("id")))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, sched)
}

type toggleScheduleRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) toggleSchedule(c *gin.Context) {
	var req toggleScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	if err := s.facade.ToggleSchedule(c.Request.Context(), c.Param("id"), req.Enabled); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) deleteSchedule(c *gin.Context) {
	if err := s.facade.DeleteSchedule(c.Request.Context(), c.Param("id")); err != nil {
		respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) upcomingSchedules(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	scheds, err := s.facade.GetUpcomingSchedules(c.Request.Context(), limit)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedules": scheds})
}
