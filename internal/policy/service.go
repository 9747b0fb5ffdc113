package policy

import (
	"strings"
	"time"

	"github.com/bhrochdi/parentguard/internal/metrics"
	"github.com/bhrochdi/parentguard/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service is the policy store: it owns all profile-scoped records and
// enforces validation, uniqueness, and cascade invariants before anything
// reaches the persistence port.
type Service struct {
	store storage.Store
	log   zerolog.Logger
	now   func() time.Time
}

// NewService constructs a Service backed by the given store.
func NewService(store storage.Store, log zerolog.Logger) *Service {
	return &Service{store: store, log: log, now: time.Now}
}

// ProfileInput carries the supervisor-editable fields of a profile.
type ProfileInput struct {
	Name              string
	AvatarColor       string
	AvatarEmoji       string
	Active            bool
	DailyMinuteBudget int
	SiteFilterMode    storage.FilterMode
	TimeWindows       []storage.TimeWindow
}

// ProfileUpdate is a partial profile mutation; nil fields are left untouched.
type ProfileUpdate struct {
	Name              *string
	AvatarColor       *string
	AvatarEmoji       *string
	Active            *bool
	DailyMinuteBudget *int
	SiteFilterMode    *storage.FilterMode
	TimeWindows       *[]storage.TimeWindow
}

// ---- Profiles --------------------------------------------------------------

// CreateProfile validates the input, assigns an identifier, and persists a
// new profile.
func (s *Service) CreateProfile(in ProfileInput) (*storage.Profile, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, &ValidationError{Field: "name", Msg: "must not be empty"}
	}
	if in.DailyMinuteBudget < 0 {
		return nil, &ValidationError{Field: "daily_minute_budget", Msg: "must be >= 0"}
	}
	mode := in.SiteFilterMode
	if mode == "" {
		mode = storage.FilterModeBlacklist
	}
	if mode != storage.FilterModeBlacklist && mode != storage.FilterModeWhitelist {
		return nil, &ValidationError{Field: "site_filter_mode", Msg: "must be blacklist or whitelist"}
	}
	windows, err := validateWindows(in.TimeWindows)
	if err != nil {
		return nil, err
	}

	p := storage.Profile{
		ID:                uuid.NewString(),
		Name:              strings.TrimSpace(in.Name),
		AvatarColor:       in.AvatarColor,
		AvatarEmoji:       in.AvatarEmoji,
		Active:            in.Active,
		CreatedAt:         s.now().UTC(),
		DailyMinuteBudget: in.DailyMinuteBudget,
		SiteFilterMode:    mode,
		TimeWindows:       windows,
	}
	if err := s.store.PutProfile(p); err != nil {
		return nil, err
	}
	metrics.PolicyMutations.WithLabelValues("profile", "create").Inc()
	s.log.Info().Str("profile_id", p.ID).Str("name", p.Name).Msg("profile created")
	return &p, nil
}

// UpdateProfile applies a partial update. Validation happens against the
// merged record before anything is written.
func (s *Service) UpdateProfile(id string, upd ProfileUpdate) (*storage.Profile, error) {
	p, err := s.store.GetProfile(id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, &NotFoundError{Kind: "profile", ID: id}
	}

	if upd.Name != nil {
		if strings.TrimSpace(*upd.Name) == "" {
			return nil, &ValidationError{Field: "name", Msg: "must not be empty"}
		}
		p.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.AvatarColor != nil {
		p.AvatarColor = *upd.AvatarColor
	}
	if upd.AvatarEmoji != nil {
		p.AvatarEmoji = *upd.AvatarEmoji
	}
	if upd.Active != nil {
		p.Active = *upd.Active
	}
	if upd.DailyMinuteBudget != nil {
		if *upd.DailyMinuteBudget < 0 {
			return nil, &ValidationError{Field: "daily_minute_budget", Msg: "must be >= 0"}
		}
		p.DailyMinuteBudget = *upd.DailyMinuteBudget
	}
	if upd.SiteFilterMode != nil {
		mode := *upd.SiteFilterMode
		if mode != storage.FilterModeBlacklist && mode != storage.FilterModeWhitelist {
			return nil, &ValidationError{Field: "site_filter_mode", Msg: "must be blacklist or whitelist"}
		}
		p.SiteFilterMode = mode
	}
	if upd.TimeWindows != nil {
		windows, err := validateWindows(*upd.TimeWindows)
		if err != nil {
			return nil, err
		}
		p.TimeWindows = windows
	}

	if err := s.store.PutProfile(*p); err != nil {
		return nil, err
	}
	metrics.PolicyMutations.WithLabelValues("profile", "update").Inc()
	return p, nil
}

// DeleteProfile removes the profile and cascades to every record it owns.
func (s *Service) DeleteProfile(id string) error {
	p, err := s.store.GetProfile(id)
	if err != nil {
		return err
	}
	if p == nil {
		return &NotFoundError{Kind: "profile", ID: id}
	}
	res, err := s.store.DeleteProfileCascade(id)
	if err != nil {
		return err
	}
	metrics.PolicyMutations.WithLabelValues("profile", "delete").Inc()
	s.log.Info().Str("profile_id", id).
		Int("site_rules", res.SiteRules).Int("app_rules", res.AppRules).
		Int("activity", res.Activity).Int("usage", res.Usage).
		Msg("profile deleted with cascade")
	return nil
}

// GetProfile fetches one profile by id.
func (s *Service) GetProfile(id string) (*storage.Profile, error) {
	p, err := s.store.GetProfile(id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, &NotFoundError{Kind: "profile", ID: id}
	}
	return p, nil
}

// ListProfiles returns all profiles in creation order.
func (s *Service) ListProfiles() ([]storage.Profile, error) {
	return s.store.ListProfiles()
}

// ---- Site rules ------------------------------------------------------------

// AddSiteRule creates a domain restriction for a profile. The domain is
// normalized first; duplicates of the same (profile, domain) pair are
// rejected.
func (s *Service) AddSiteRule(profileID, domain string, category storage.Category, blocked bool) (*storage.SiteRule, error) {
	domain = NormalizeDomain(domain)
	if domain == "" {
		return nil, &ValidationError{Field: "domain", Msg: "must not be empty"}
	}
	if !validCategory(category) {
		return nil, &ValidationError{Field: "category", Msg: "unknown category"}
	}
	p, err := s.store.GetProfile(profileID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, &NotFoundError{Kind: "profile", ID: profileID}
	}
	existing, err := s.store.ListSiteRules(profileID)
	if err != nil {
		return nil, err
	}
	for _, r := range existing {
		if r.Domain == domain {
			return nil, &ConflictError{Kind: "site rule", Key: domain}
		}
	}

	r := storage.SiteRule{
		ID:        uuid.NewString(),
		ProfileID: profileID,
		Domain:    domain,
		Category:  category,
		Blocked:   blocked,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.PutSiteRule(r); err != nil {
		return nil, err
	}
	metrics.PolicyMutations.WithLabelValues("site_rule", "create").Inc()
	return &r, nil
}

// RemoveSiteRule deletes one site rule by id and returns the removed rule,
// so callers can retract its enforcement.
func (s *Service) RemoveSiteRule(id string) (*storage.SiteRule, error) {
	r, err := s.store.GetSiteRule(id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, &NotFoundError{Kind: "site rule", ID: id}
	}
	if err := s.store.DeleteSiteRule(id); err != nil {
		return nil, err
	}
	metrics.PolicyMutations.WithLabelValues("site_rule", "delete").Inc()
	return r, nil
}

// ToggleSiteRule flips the blocked flag and returns the updated rule.
func (s *Service) ToggleSiteRule(id string) (*storage.SiteRule, error) {
	r, err := s.store.GetSiteRule(id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, &NotFoundError{Kind: "site rule", ID: id}
	}
	r.Blocked = !r.Blocked
	if err := s.store.PutSiteRule(*r); err != nil {
		return nil, err
	}
	metrics.PolicyMutations.WithLabelValues("site_rule", "toggle").Inc()
	return r, nil
}

// ListSiteRules returns a profile's site rules, optionally filtered by
// category ("" = all). The profile must exist.
func (s *Service) ListSiteRules(profileID string, category storage.Category) ([]storage.SiteRule, error) {
	p, err := s.store.GetProfile(profileID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, &NotFoundError{Kind: "profile", ID: profileID}
	}
	rules, err := s.store.ListSiteRules(profileID)
	if err != nil {
		return nil, err
	}
	if category == "" {
		return rules, nil
	}
	filtered := rules[:0]
	for _, r := range rules {
		if r.Category == category {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

// ---- App rules -------------------------------------------------------------

// AddAppRule creates an executable restriction for a profile. Duplicates of
// the same (profile, executable) pair are rejected.
func (s *Service) AddAppRule(profileID, name, executable string, blocked bool) (*storage.AppRule, error) {
	executable = strings.ToLower(strings.TrimSpace(executable))
	if executable == "" {
		return nil, &ValidationError{Field: "executable", Msg: "must not be empty"}
	}
	p, err := s.store.GetProfile(profileID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, &NotFoundError{Kind: "profile", ID: profileID}
	}
	existing, err := s.store.ListAppRules(profileID)
	if err != nil {
		return nil, err
	}
	for _, r := range existing {
		if r.Executable == executable {
			return nil, &ConflictError{Kind: "app rule", Key: executable}
		}
	}

	r := storage.AppRule{
		ID:         uuid.NewString(),
		ProfileID:  profileID,
		Name:       strings.TrimSpace(name),
		Executable: executable,
		Blocked:    blocked,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.PutAppRule(r); err != nil {
		return nil, err
	}
	metrics.PolicyMutations.WithLabelValues("app_rule", "create").Inc()
	return &r, nil
}

// RemoveAppRule deletes one app rule by id and returns the removed rule.
func (s *Service) RemoveAppRule(id string) (*storage.AppRule, error) {
	r, err := s.store.GetAppRule(id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, &NotFoundError{Kind: "app rule", ID: id}
	}
	if err := s.store.DeleteAppRule(id); err != nil {
		return nil, err
	}
	metrics.PolicyMutations.WithLabelValues("app_rule", "delete").Inc()
	return r, nil
}

// ToggleAppRule flips the blocked flag and returns the updated rule.
func (s *Service) ToggleAppRule(id string) (*storage.AppRule, error) {
	r, err := s.store.GetAppRule(id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, &NotFoundError{Kind: "app rule", ID: id}
	}
	r.Blocked = !r.Blocked
	if err := s.store.PutAppRule(*r); err != nil {
		return nil, err
	}
	metrics.PolicyMutations.WithLabelValues("app_rule", "toggle").Inc()
	return r, nil
}

// ListAppRules returns a profile's app rules. The profile must exist.
func (s *Service) ListAppRules(profileID string) ([]storage.AppRule, error) {
	p, err := s.store.GetProfile(profileID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, &NotFoundError{Kind: "profile", ID: profileID}
	}
	return s.store.ListAppRules(profileID)
}

// ---- Validation helpers ----------------------------------------------------

func validCategory(c storage.Category) bool {
	switch c {
	case storage.CategorySocial, storage.CategoryGaming, storage.CategoryStreaming,
		storage.CategoryAdult, storage.CategoryOther:
		return true
	}
	return false
}

// validateWindows checks every window and assigns ids to new ones.
// No overnight wraparound: start must precede end within the same day.
func validateWindows(windows []storage.TimeWindow) ([]storage.TimeWindow, error) {
	out := make([]storage.TimeWindow, 0, len(windows))
	for _, w := range windows {
		start, err := parseClock(w.Start)
		if err != nil {
			return nil, &ValidationError{Field: "time_window.start", Msg: err.Error()}
		}
		end, err := parseClock(w.End)
		if err != nil {
			return nil, &ValidationError{Field: "time_window.end", Msg: err.Error()}
		}
		if start >= end {
			return nil, &ValidationError{Field: "time_window", Msg: "start must be before end"}
		}
		if w.Active && len(w.Weekdays) == 0 {
			return nil, &ValidationError{Field: "time_window.weekdays", Msg: "must not be empty when active"}
		}
		for _, d := range w.Weekdays {
			if d < 0 || d > 6 {
				return nil, &ValidationError{Field: "time_window.weekdays", Msg: "weekdays are 0 (Sunday) to 6 (Saturday)"}
			}
		}
		if w.ID == "" {
			w.ID = uuid.NewString()
		}
		out = append(out, w)
	}
	return out, nil
}

// parseClock parses "HH:MM" into minutes since midnight.
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}
