// Package api exposes the core to the presentation layer: a local JSON API
// for profile and rule management, session transitions, usage reports, and
// the agent-facing event feed.
package api

import (
	"errors"
	"net/http"

	"github.com/bhrochdi/parentguard/internal/activity"
	"github.com/bhrochdi/parentguard/internal/agent"
	"github.com/bhrochdi/parentguard/internal/credentials"
	"github.com/bhrochdi/parentguard/internal/policy"
	"github.com/bhrochdi/parentguard/internal/session"
	"github.com/bhrochdi/parentguard/internal/syncbridge"
	"github.com/bhrochdi/parentguard/internal/usage"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Server bundles the core services behind the HTTP surface.
type Server struct {
	policies *policy.Service
	sessions *session.Manager
	bridge   *syncbridge.Bridge
	tracker  *usage.Tracker
	activity *activity.Logger
	creds    *credentials.Manager
	agent    agent.Agent
	agentKey string
	log      zerolog.Logger
}

// NewServer constructs the API server. agentKey, when non-empty, is required
// on the agent feed endpoints.
func NewServer(policies *policy.Service, sessions *session.Manager,
	bridge *syncbridge.Bridge, tracker *usage.Tracker,
	act *activity.Logger, creds *credentials.Manager,
	ag agent.Agent, agentKey string, log zerolog.Logger) *Server {

	return &Server{
		policies: policies,
		sessions: sessions,
		bridge:   bridge,
		tracker:  tracker,
		activity: act,
		creds:    creds,
		agent:    ag,
		agentKey: agentKey,
		log:      log,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	api := r.Group("/api")

	// Session transitions and read-only state: reachable in any mode.
	api.GET("/session", s.getSession)
	api.POST("/session/login", s.login)
	api.POST("/session/exit", s.exitRestricted)
	api.GET("/sync/status", s.syncStatus)

	// Agent feed: the enforcement agent reports usage and block events
	// here while a restricted session runs. Authenticated with the shared
	// agent API key.
	feed := api.Group("/agent", s.requireAgentKey())
	feed.POST("/usage", s.agentUsage)
	feed.POST("/events", s.agentEvent)

	// Everything below mutates or reads policy and requires an
	// authenticated supervisor session.
	sup := api.Group("", s.requireSupervising())
	{
		sup.POST("/session/logout", s.logout)
		sup.POST("/session/restrict", s.enterRestricted)
		sup.POST("/session/profile", s.selectProfile)

		sup.GET("/profiles", s.listProfiles)
		sup.POST("/profiles", s.createProfile)
		sup.GET("/profiles/:id", s.getProfile)
		sup.PUT("/profiles/:id", s.updateProfile)
		sup.DELETE("/profiles/:id", s.deleteProfile)

		sup.GET("/profiles/:id/sites", s.listSiteRules)
		sup.POST("/profiles/:id/sites", s.addSiteRule)
		sup.DELETE("/sites/:id", s.removeSiteRule)
		sup.POST("/sites/:id/toggle", s.toggleSiteRule)

		sup.GET("/profiles/:id/apps", s.listAppRules)
		sup.POST("/profiles/:id/apps", s.addAppRule)
		sup.DELETE("/apps/:id", s.removeAppRule)
		sup.POST("/apps/:id/toggle", s.toggleAppRule)

		sup.GET("/profiles/:id/usage/today", s.usageToday)
		sup.GET("/profiles/:id/usage/week", s.usageWeek)

		sup.GET("/activity", s.listActivity)
		sup.GET("/processes", s.listProcesses)

		sup.PUT("/settings/password", s.setPassword)
		sup.PUT("/settings/pin", s.setPIN)
	}

	return r
}

// requireAgentKey rejects feed posts whose X-API-Key header does not match
// the configured agent key. With no key configured the feed stays open to
// local callers.
func (s *Server) requireAgentKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.agentKey != "" && c.GetHeader("X-API-Key") != s.agentKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			return
		}
		c.Next()
	}
}

// requireSupervising rejects requests unless a supervisor session is active.
func (s *Server) requireSupervising() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.sessions.State() != session.StateSupervising {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "supervisor session required"})
			return
		}
		c.Next()
	}
}

// writeError maps core error types onto HTTP status codes.
func (s *Server) writeError(c *gin.Context, err error) {
	var ve *policy.ValidationError
	var nf *policy.NotFoundError
	var cf *policy.ConflictError

	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &nf):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &cf):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrNotSupervising):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrNotRestricted):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrRestricted):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		s.log.Error().Err(err).Str("path", c.FullPath()).Msg("internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
