package policy

import (
	"errors"
	"testing"

	"github.com/bhrochdi/parentguard/internal/storage"
	"github.com/rs/zerolog"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	store, err := storage.NewBboltStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBboltStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewService(store, zerolog.Nop())
}

func mustCreateProfile(t *testing.T, s *Service, name string) *storage.Profile {
	t.Helper()
	p, err := s.CreateProfile(ProfileInput{Name: name, DailyMinuteBudget: 120})
	if err != nil {
		t.Fatalf("CreateProfile(%q): %v", name, err)
	}
	return p
}

func TestCreateProfileValidation(t *testing.T) {
	s := newTestService(t)

	var ve *ValidationError

	if _, err := s.CreateProfile(ProfileInput{Name: "   "}); !errors.As(err, &ve) {
		t.Errorf("blank name: got %v, want ValidationError", err)
	}
	if _, err := s.CreateProfile(ProfileInput{Name: "Kid", DailyMinuteBudget: -1}); !errors.As(err, &ve) {
		t.Errorf("negative budget: got %v, want ValidationError", err)
	}
	if _, err := s.CreateProfile(ProfileInput{Name: "Kid", SiteFilterMode: "greylist"}); !errors.As(err, &ve) {
		t.Errorf("bad mode: got %v, want ValidationError", err)
	}
}

func TestCreateProfileDefaults(t *testing.T) {
	s := newTestService(t)
	p, err := s.CreateProfile(ProfileInput{Name: "  Emma  "})
	if err != nil {
		t.Fatal(err)
	}
	if p.ID == "" {
		t.Error("no id assigned")
	}
	if p.Name != "Emma" {
		t.Errorf("name not trimmed: %q", p.Name)
	}
	if p.SiteFilterMode != storage.FilterModeBlacklist {
		t.Errorf("default mode = %q, want blacklist", p.SiteFilterMode)
	}
	if p.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestUpdateProfilePartial(t *testing.T) {
	s := newTestService(t)
	p := mustCreateProfile(t, s, "Emma")

	budget := 60
	updated, err := s.UpdateProfile(p.ID, ProfileUpdate{DailyMinuteBudget: &budget})
	if err != nil {
		t.Fatal(err)
	}
	if updated.DailyMinuteBudget != 60 {
		t.Errorf("budget = %d, want 60", updated.DailyMinuteBudget)
	}
	if updated.Name != "Emma" {
		t.Errorf("untouched field changed: %q", updated.Name)
	}

	var nf *NotFoundError
	if _, err := s.UpdateProfile("ghost", ProfileUpdate{DailyMinuteBudget: &budget}); !errors.As(err, &nf) {
		t.Errorf("unknown id: got %v, want NotFoundError", err)
	}
}

func TestTimeWindowValidation(t *testing.T) {
	s := newTestService(t)
	var ve *ValidationError

	bad := []storage.TimeWindow{{Start: "19:00", End: "08:00", Weekdays: []int{1}, Active: true}}
	if _, err := s.CreateProfile(ProfileInput{Name: "Kid", TimeWindows: bad}); !errors.As(err, &ve) {
		t.Errorf("inverted window: got %v, want ValidationError", err)
	}

	bad = []storage.TimeWindow{{Start: "08:00", End: "19:00", Active: true}}
	if _, err := s.CreateProfile(ProfileInput{Name: "Kid", TimeWindows: bad}); !errors.As(err, &ve) {
		t.Errorf("active window without weekdays: got %v, want ValidationError", err)
	}

	bad = []storage.TimeWindow{{Start: "08:00", End: "19:00", Weekdays: []int{7}, Active: true}}
	if _, err := s.CreateProfile(ProfileInput{Name: "Kid", TimeWindows: bad}); !errors.As(err, &ve) {
		t.Errorf("weekday 7: got %v, want ValidationError", err)
	}

	good := []storage.TimeWindow{{Label: "evenings", Start: "17:30", End: "20:00", Weekdays: []int{0, 6}, Active: true}}
	p, err := s.CreateProfile(ProfileInput{Name: "Kid", TimeWindows: good})
	if err != nil {
		t.Fatalf("valid window rejected: %v", err)
	}
	if p.TimeWindows[0].ID == "" {
		t.Error("window id not assigned")
	}
}

func TestAddSiteRuleNormalizesAndRejectsDuplicates(t *testing.T) {
	s := newTestService(t)
	p := mustCreateProfile(t, s, "Emma")

	r, err := s.AddSiteRule(p.ID, "https://www.TikTok.com/feed", storage.CategorySocial, true)
	if err != nil {
		t.Fatal(err)
	}
	if r.Domain != "tiktok.com" {
		t.Errorf("domain = %q, want tiktok.com", r.Domain)
	}

	// Same domain in different spelling is the same rule
	var cf *ConflictError
	if _, err := s.AddSiteRule(p.ID, "TIKTOK.com", storage.CategorySocial, true); !errors.As(err, &cf) {
		t.Errorf("duplicate: got %v, want ConflictError", err)
	}

	// Same domain on another profile is fine
	p2 := mustCreateProfile(t, s, "Max")
	if _, err := s.AddSiteRule(p2.ID, "tiktok.com", storage.CategorySocial, true); err != nil {
		t.Errorf("cross-profile duplicate rejected: %v", err)
	}

	var nf *NotFoundError
	if _, err := s.AddSiteRule("ghost", "x.com", storage.CategoryOther, true); !errors.As(err, &nf) {
		t.Errorf("unknown profile: got %v, want NotFoundError", err)
	}
	var ve *ValidationError
	if _, err := s.AddSiteRule(p.ID, "   ", storage.CategoryOther, true); !errors.As(err, &ve) {
		t.Errorf("blank domain: got %v, want ValidationError", err)
	}
	if _, err := s.AddSiteRule(p.ID, "y.com", "sports", true); !errors.As(err, &ve) {
		t.Errorf("unknown category: got %v, want ValidationError", err)
	}
}

func TestToggleSiteRuleIsInvolution(t *testing.T) {
	s := newTestService(t)
	p := mustCreateProfile(t, s, "Emma")
	r, err := s.AddSiteRule(p.ID, "youtube.com", storage.CategoryStreaming, true)
	if err != nil {
		t.Fatal(err)
	}

	once, err := s.ToggleSiteRule(r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if once.Blocked {
		t.Error("first toggle should unblock")
	}
	twice, err := s.ToggleSiteRule(r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !twice.Blocked {
		t.Error("second toggle should restore blocked")
	}
}

func TestListSiteRulesCategoryFilter(t *testing.T) {
	s := newTestService(t)
	p := mustCreateProfile(t, s, "Emma")
	if _, err := s.AddSiteRule(p.ID, "tiktok.com", storage.CategorySocial, true); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddSiteRule(p.ID, "twitch.tv", storage.CategoryStreaming, true); err != nil {
		t.Fatal(err)
	}

	all, err := s.ListSiteRules(p.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("all: %d rules, want 2", len(all))
	}

	social, err := s.ListSiteRules(p.ID, storage.CategorySocial)
	if err != nil {
		t.Fatal(err)
	}
	if len(social) != 1 || social[0].Domain != "tiktok.com" {
		t.Errorf("social filter: %+v", social)
	}
}

func TestAddAppRuleLowercasesAndRejectsDuplicates(t *testing.T) {
	s := newTestService(t)
	p := mustCreateProfile(t, s, "Emma")

	r, err := s.AddAppRule(p.ID, "Fortnite", "  Fortnite.EXE  ", true)
	if err != nil {
		t.Fatal(err)
	}
	if r.Executable != "fortnite.exe" {
		t.Errorf("executable = %q, want fortnite.exe", r.Executable)
	}
	if r.Name != "Fortnite" {
		t.Errorf("display name changed: %q", r.Name)
	}

	var cf *ConflictError
	if _, err := s.AddAppRule(p.ID, "Fortnite again", "FORTNITE.exe", true); !errors.As(err, &cf) {
		t.Errorf("duplicate executable: got %v, want ConflictError", err)
	}
}

func TestDeleteProfileNotFound(t *testing.T) {
	s := newTestService(t)
	var nf *NotFoundError
	if err := s.DeleteProfile("ghost"); !errors.As(err, &nf) {
		t.Errorf("got %v, want NotFoundError", err)
	}
}

func TestRemoveRulesNotFound(t *testing.T) {
	s := newTestService(t)
	var nf *NotFoundError
	if _, err := s.RemoveSiteRule("ghost"); !errors.As(err, &nf) {
		t.Errorf("site rule: got %v, want NotFoundError", err)
	}
	if _, err := s.RemoveAppRule("ghost"); !errors.As(err, &nf) {
		t.Errorf("app rule: got %v, want NotFoundError", err)
	}
	if _, err := s.ToggleSiteRule("ghost"); !errors.As(err, &nf) {
		t.Errorf("toggle site: got %v, want NotFoundError", err)
	}
	if _, err := s.ToggleAppRule("ghost"); !errors.As(err, &nf) {
		t.Errorf("toggle app: got %v, want NotFoundError", err)
	}
}
