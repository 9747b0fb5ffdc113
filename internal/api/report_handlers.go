package api

import (
	"net/http"
	"strconv"

	"github.com/bhrochdi/parentguard/internal/storage"
	"github.com/gin-gonic/gin"
)

func (s *Server) usageToday(c *gin.Context) {
	u, err := s.tracker.Today(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (s *Server) usageWeek(c *gin.Context) {
	days, err := s.tracker.Last7Days(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, days)
}

func (s *Server) listActivity(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	entries, err := s.activity.List(c.Query("profile_id"), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (s *Server) listProcesses(c *gin.Context) {
	procs, err := s.agent.ListActiveProcesses(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"processes": procs})
}

func (s *Server) syncStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.bridge.Status())
}

// ---- Agent feed ------------------------------------------------------------

type agentUsageRequest struct {
	ProfileID string `json:"profile_id"`
	Minutes   int    `json:"minutes"`
}

// agentUsage receives the agent's cumulative screen-time reading for today.
// The reported value replaces the stored one.
func (s *Server) agentUsage(c *gin.Context) {
	var req agentUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	u, err := s.tracker.Record(req.ProfileID, req.Minutes)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

type agentEventRequest struct {
	ProfileID string            `json:"profile_id"`
	Kind      storage.EventKind `json:"kind"`
	Detail    string            `json:"detail"`
}

// agentEvent receives enforcement events from the agent: blocked sites and
// apps, budget exhaustion, attempts outside an allowed window. Block events
// also bump the per-day counters.
func (s *Server) agentEvent(c *gin.Context) {
	var req agentEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := s.activity.Record(req.ProfileID, req.Kind, req.Detail); err != nil {
		s.writeError(c, err)
		return
	}
	switch req.Kind {
	case storage.EventSiteBlocked:
		if err := s.tracker.CountSiteBlock(req.ProfileID); err != nil {
			s.log.Warn().Err(err).Str("profile_id", req.ProfileID).Msg("site block count failed")
		}
	case storage.EventAppBlocked:
		if err := s.tracker.CountAppBlock(req.ProfileID); err != nil {
			s.log.Warn().Err(err).Str("profile_id", req.ProfileID).Msg("app block count failed")
		}
	}
	c.Status(http.StatusAccepted)
}
