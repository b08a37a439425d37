package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

func (s *Server) queueStats(c *gin.Context) {
	counts, dlqDepth, err := s.facade.GetQueueStats(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"by_status": counts,
		"dlq_depth": dlqDepth,
	})
}

func (s *Server) dispatcherStats(c *gin.Context) {
	heartbeatTimeout := s.cfg.HeartbeatTimeout
	if heartbeatTimeout <= 0 {
		heartbeatTimeout = 30 * time.Second
	}

	stats, err := s.facade.GetDispatcherStats(c.Request.Context(), heartbeatTimeout)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) listDLQ(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	entries, err := s.facade.ListDLQ(c.Request.Context(), limit)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (s *Server) replayDLQ(c *gin.Context) {
	job, err := s.facade.ReplayDLQEntry(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}
