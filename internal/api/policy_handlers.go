package api

import (
	"net/http"

	"github.com/bhrochdi/parentguard/internal/policy"
	"github.com/bhrochdi/parentguard/internal/storage"
	"github.com/gin-gonic/gin"
)

type profileRequest struct {
	Name              string                `json:"name"`
	AvatarColor       string                `json:"avatar_color"`
	AvatarEmoji       string                `json:"avatar_emoji"`
	Active            bool                  `json:"active"`
	DailyMinuteBudget int                   `json:"daily_minute_budget"`
	SiteFilterMode    storage.FilterMode    `json:"site_filter_mode"`
	TimeWindows       []storage.TimeWindow  `json:"time_windows"`
}

type profileUpdateRequest struct {
	Name              *string               `json:"name"`
	AvatarColor       *string               `json:"avatar_color"`
	AvatarEmoji       *string               `json:"avatar_emoji"`
	Active            *bool                 `json:"active"`
	DailyMinuteBudget *int                  `json:"daily_minute_budget"`
	SiteFilterMode    *storage.FilterMode   `json:"site_filter_mode"`
	TimeWindows       *[]storage.TimeWindow `json:"time_windows"`
}

func (s *Server) listProfiles(c *gin.Context) {
	profiles, err := s.policies.ListProfiles()
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profiles)
}

func (s *Server) createProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	p, err := s.policies.CreateProfile(policy.ProfileInput{
		Name:              req.Name,
		AvatarColor:       req.AvatarColor,
		AvatarEmoji:       req.AvatarEmoji,
		Active:            req.Active,
		DailyMinuteBudget: req.DailyMinuteBudget,
		SiteFilterMode:    req.SiteFilterMode,
		TimeWindows:       req.TimeWindows,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (s *Server) getProfile(c *gin.Context) {
	p, err := s.policies.GetProfile(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) updateProfile(c *gin.Context) {
	var req profileUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	p, err := s.policies.UpdateProfile(c.Param("id"), policy.ProfileUpdate{
		Name:              req.Name,
		AvatarColor:       req.AvatarColor,
		AvatarEmoji:       req.AvatarEmoji,
		Active:            req.Active,
		DailyMinuteBudget: req.DailyMinuteBudget,
		SiteFilterMode:    req.SiteFilterMode,
		TimeWindows:       req.TimeWindows,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	// Resync the agent if the edited profile is currently enforced.
	if st := s.bridge.Status(); st.Enforced && st.ProfileID == p.ID {
		if err := s.bridge.Activate(*p); err != nil {
			s.log.Warn().Err(err).Str("profile_id", p.ID).Msg("resync after update failed")
		}
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) deleteProfile(c *gin.Context) {
	id := c.Param("id")
	if st := s.bridge.Status(); st.Enforced && st.ProfileID == id {
		c.JSON(http.StatusConflict, gin.H{"error": "profile is currently enforced"})
		return
	}
	if err := s.policies.DeleteProfile(id); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type siteRuleRequest struct {
	Domain   string           `json:"domain"`
	Category storage.Category `json:"category"`
	Blocked  *bool            `json:"blocked"`
}

func (s *Server) listSiteRules(c *gin.Context) {
	rules, err := s.policies.ListSiteRules(c.Param("id"), storage.Category(c.Query("category")))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rules)
}

func (s *Server) addSiteRule(c *gin.Context) {
	var req siteRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	blocked := true
	if req.Blocked != nil {
		blocked = *req.Blocked
	}
	r, err := s.policies.AddSiteRule(c.Param("id"), req.Domain, req.Category, blocked)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.pushSiteChange(r.ProfileID, r.Domain, r.Blocked)
	c.JSON(http.StatusCreated, r)
}

func (s *Server) removeSiteRule(c *gin.Context) {
	r, err := s.policies.RemoveSiteRule(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	// A removed rule no longer blocks anything.
	s.pushSiteChange(r.ProfileID, r.Domain, false)
	c.Status(http.StatusNoContent)
}

func (s *Server) toggleSiteRule(c *gin.Context) {
	r, err := s.policies.ToggleSiteRule(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.pushSiteChange(r.ProfileID, r.Domain, r.Blocked)
	c.JSON(http.StatusOK, r)
}

// pushSiteChange forwards a single-domain change to the agent when the rule
// belongs to the profile being enforced right now. Other profiles pick the
// change up on their next activation. The incremental block/unblock calls
// carry blacklist semantics only; a whitelist-mode profile gets a full
// rule set replacement instead.
func (s *Server) pushSiteChange(profileID, domain string, blocked bool) {
	st := s.bridge.Status()
	if !st.Enforced || st.ProfileID != profileID {
		return
	}
	p, err := s.policies.GetProfile(profileID)
	if err != nil {
		s.log.Warn().Err(err).Str("profile_id", profileID).Msg("site change lookup failed")
		return
	}
	if p.SiteFilterMode == storage.FilterModeWhitelist {
		if err := s.bridge.Activate(*p); err != nil {
			s.log.Warn().Err(err).Str("profile_id", profileID).Msg("resync failed")
		}
		return
	}
	if blocked {
		s.bridge.BlockSite(domain)
	} else {
		s.bridge.UnblockSite(domain)
	}
}

type appRuleRequest struct {
	Name       string `json:"name"`
	Executable string `json:"executable"`
	Blocked    *bool  `json:"blocked"`
}

func (s *Server) listAppRules(c *gin.Context) {
	rules, err := s.policies.ListAppRules(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rules)
}

func (s *Server) addAppRule(c *gin.Context) {
	var req appRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	blocked := true
	if req.Blocked != nil {
		blocked = *req.Blocked
	}
	r, err := s.policies.AddAppRule(c.Param("id"), req.Name, req.Executable, blocked)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.resyncIfEnforced(r.ProfileID)
	c.JSON(http.StatusCreated, r)
}

func (s *Server) removeAppRule(c *gin.Context) {
	r, err := s.policies.RemoveAppRule(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.resyncIfEnforced(r.ProfileID)
	c.Status(http.StatusNoContent)
}

func (s *Server) toggleAppRule(c *gin.Context) {
	r, err := s.policies.ToggleAppRule(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.resyncIfEnforced(r.ProfileID)
	c.JSON(http.StatusOK, r)
}

// resyncIfEnforced pushes a full rule set replacement. App rules have no
// single-item agent endpoint.
func (s *Server) resyncIfEnforced(profileID string) {
	st := s.bridge.Status()
	if !st.Enforced || st.ProfileID != profileID {
		return
	}
	p, err := s.policies.GetProfile(profileID)
	if err != nil {
		s.log.Warn().Err(err).Str("profile_id", profileID).Msg("resync lookup failed")
		return
	}
	if err := s.bridge.Activate(*p); err != nil {
		s.log.Warn().Err(err).Str("profile_id", profileID).Msg("resync failed")
	}
}
