package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type sessionView struct {
	State               string `json:"state"`
	ActiveProfileID     string `json:"active_profile_id,omitempty"`
	RestrictedProfileID string `json:"restricted_profile_id,omitempty"`
}

func (s *Server) getSession(c *gin.Context) {
	view := sessionView{
		State:           string(s.sessions.State()),
		ActiveProfileID: s.sessions.ActiveProfileID(),
	}
	if p := s.sessions.RestrictedProfile(); p != nil {
		view.RestrictedProfileID = p.ID
	}
	c.JSON(http.StatusOK, view)
}

type loginRequest struct {
	Password string `json:"password"`
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	ok, err := s.sessions.Authenticate(req.Password)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid password"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": string(s.sessions.State())})
}

func (s *Server) logout(c *gin.Context) {
	s.sessions.Logout()
	c.JSON(http.StatusOK, gin.H{"state": string(s.sessions.State())})
}

type restrictRequest struct {
	ProfileID string `json:"profile_id"`
}

func (s *Server) enterRestricted(c *gin.Context) {
	var req restrictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := s.sessions.EnterRestricted(req.ProfileID); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": string(s.sessions.State())})
}

type exitRequest struct {
	PIN string `json:"pin"`
}

func (s *Server) exitRestricted(c *gin.Context) {
	var req exitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	ok, err := s.sessions.ExitRestricted(req.PIN)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid pin"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": string(s.sessions.State())})
}

func (s *Server) selectProfile(c *gin.Context) {
	var req restrictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := s.sessions.SetActiveProfile(req.ProfileID); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"active_profile_id": req.ProfileID})
}

type passwordRequest struct {
	Password string `json:"password"`
	Confirm  string `json:"confirm"`
}

func (s *Server) setPassword(c *gin.Context) {
	var req passwordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := s.creds.SetSupervisorPassword(req.Password, req.Confirm); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type pinRequest struct {
	PIN     string `json:"pin"`
	Confirm string `json:"confirm"`
}

func (s *Server) setPIN(c *gin.Context) {
	var req pinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := s.creds.SetExitPIN(req.PIN, req.Confirm); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
