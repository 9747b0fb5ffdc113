package storage

import (
	"fmt"
	"testing"
	"time"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	dir := t.TempDir()
	s, err := NewBboltStore(dir)
	if err != nil {
		t.Fatalf("NewBboltStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testProfile(id string) Profile {
	return Profile{
		ID:                id,
		Name:              "Kid " + id,
		Active:            true,
		CreatedAt:         time.Now().UTC(),
		DailyMinuteBudget: 120,
		SiteFilterMode:    FilterModeBlacklist,
	}
}

func TestProfileCRUD(t *testing.T) {
	s := newTestStore(t)

	// Miss yields (nil, nil)
	p, err := s.GetProfile("nope")
	if err != nil || p != nil {
		t.Fatalf("GetProfile miss: p=%v, err=%v", p, err)
	}

	want := testProfile("p1")
	want.TimeWindows = []TimeWindow{{
		ID: "w1", Label: "after school", Start: "15:00", End: "19:00",
		Weekdays: []int{1, 2, 3, 4, 5}, Active: true,
	}}
	if err := s.PutProfile(want); err != nil {
		t.Fatalf("PutProfile: %v", err)
	}

	got, err := s.GetProfile("p1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if got == nil || got.Name != want.Name || got.DailyMinuteBudget != 120 {
		t.Fatalf("GetProfile mismatch: %+v", got)
	}
	if len(got.TimeWindows) != 1 || got.TimeWindows[0].Start != "15:00" {
		t.Fatalf("TimeWindows not round-tripped: %+v", got.TimeWindows)
	}

	// Overwrite in place
	got.Name = "Renamed"
	if err := s.PutProfile(*got); err != nil {
		t.Fatalf("PutProfile overwrite: %v", err)
	}
	again, _ := s.GetProfile("p1")
	if again.Name != "Renamed" {
		t.Errorf("overwrite lost: %q", again.Name)
	}
}

func TestListProfilesCreationOrder(t *testing.T) {
	s := newTestStore(t)
	base := time.Now().UTC()

	// Insert out of order; listing must come back by creation time.
	for _, n := range []int{2, 0, 1} {
		p := testProfile(fmt.Sprintf("p%d", n))
		p.CreatedAt = base.Add(time.Duration(n) * time.Minute)
		if err := s.PutProfile(p); err != nil {
			t.Fatal(err)
		}
	}

	list, err := s.ListProfiles()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("got %d profiles, want 3", len(list))
	}
	for i, p := range list {
		if want := fmt.Sprintf("p%d", i); p.ID != want {
			t.Errorf("list[%d] = %q, want %q", i, p.ID, want)
		}
	}
}

func TestSiteRulesScopedByProfile(t *testing.T) {
	s := newTestStore(t)
	if err := s.PutSiteRule(SiteRule{ID: "r1", ProfileID: "p1", Domain: "tiktok.com", Category: CategorySocial, Blocked: true, CreatedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := s.PutSiteRule(SiteRule{ID: "r2", ProfileID: "p2", Domain: "tiktok.com", Category: CategorySocial, Blocked: true, CreatedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	rules, err := s.ListSiteRules("p1")
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 1 || rules[0].ID != "r1" {
		t.Fatalf("p1 rules: %+v", rules)
	}

	if err := s.DeleteSiteRule("r1"); err != nil {
		t.Fatal(err)
	}
	r, err := s.GetSiteRule("r1")
	if err != nil || r != nil {
		t.Fatalf("deleted rule still present: %+v, err=%v", r, err)
	}
	// Other profile's rule untouched
	other, _ := s.GetSiteRule("r2")
	if other == nil {
		t.Fatal("unrelated rule deleted")
	}
}

func TestDeleteProfileCascade(t *testing.T) {
	s := newTestStore(t)
	if err := s.PutProfile(testProfile("p1")); err != nil {
		t.Fatal(err)
	}
	if err := s.PutProfile(testProfile("p2")); err != nil {
		t.Fatal(err)
	}

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		if err := s.PutSiteRule(SiteRule{ID: fmt.Sprintf("s%d", i), ProfileID: "p1", Domain: fmt.Sprintf("d%d.com", i), Category: CategoryOther, CreatedAt: now}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.PutAppRule(AppRule{ID: "a1", ProfileID: "p1", Executable: "game.exe", CreatedAt: now}); err != nil {
		t.Fatal(err)
	}
	if err := s.PutAppRule(AppRule{ID: "a2", ProfileID: "p2", Executable: "game.exe", CreatedAt: now}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if _, err := s.AppendActivity(ActivityEntry{ID: fmt.Sprintf("e%d", i), ProfileID: "p1", Kind: EventSiteBlocked, Timestamp: now}, 100); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.AppendActivity(ActivityEntry{ID: "e-other", ProfileID: "p2", Kind: EventSiteBlocked, Timestamp: now}, 100); err != nil {
		t.Fatal(err)
	}
	if err := s.PutUsage(DayUsage{ProfileID: "p1", Date: "2026-08-30", MinutesUsed: 45}); err != nil {
		t.Fatal(err)
	}
	if err := s.PutUsage(DayUsage{ProfileID: "p2", Date: "2026-08-30", MinutesUsed: 10}); err != nil {
		t.Fatal(err)
	}

	res, err := s.DeleteProfileCascade("p1")
	if err != nil {
		t.Fatalf("DeleteProfileCascade: %v", err)
	}
	if res.SiteRules != 3 || res.AppRules != 1 || res.Activity != 2 || res.Usage != 1 {
		t.Errorf("cascade result: %+v", res)
	}

	// p1 fully gone
	if p, _ := s.GetProfile("p1"); p != nil {
		t.Error("profile survived cascade")
	}
	if rules, _ := s.ListSiteRules("p1"); len(rules) != 0 {
		t.Errorf("site rules survived cascade: %+v", rules)
	}
	if rules, _ := s.ListAppRules("p1"); len(rules) != 0 {
		t.Errorf("app rules survived cascade: %+v", rules)
	}
	if entries, _ := s.ListActivity("p1", 0); len(entries) != 0 {
		t.Errorf("activity survived cascade: %+v", entries)
	}
	if u, _ := s.GetUsage("p1", "2026-08-30"); u != nil {
		t.Error("usage survived cascade")
	}

	// p2 untouched
	if p, _ := s.GetProfile("p2"); p == nil {
		t.Error("unrelated profile deleted")
	}
	if rules, _ := s.ListAppRules("p2"); len(rules) != 1 {
		t.Error("unrelated app rule deleted")
	}
	if entries, _ := s.ListActivity("p2", 0); len(entries) != 1 {
		t.Error("unrelated activity deleted")
	}
	if u, _ := s.GetUsage("p2", "2026-08-30"); u == nil {
		t.Error("unrelated usage deleted")
	}
}

func TestAppendActivityEvictsOldestFirst(t *testing.T) {
	s := newTestStore(t)
	base := time.Now().UTC()

	const maxEntries = 5
	for i := 0; i < maxEntries; i++ {
		evicted, err := s.AppendActivity(ActivityEntry{
			ID: fmt.Sprintf("e%d", i), ProfileID: "p1",
			Kind: EventSiteBlocked, Timestamp: base.Add(time.Duration(i) * time.Second),
		}, maxEntries)
		if err != nil {
			t.Fatal(err)
		}
		if evicted != 0 {
			t.Fatalf("append %d evicted %d under the cap", i, evicted)
		}
	}

	// One over the cap: exactly the oldest goes
	evicted, err := s.AppendActivity(ActivityEntry{
		ID: "e5", ProfileID: "p1", Kind: EventSiteBlocked,
		Timestamp: base.Add(5 * time.Second),
	}, maxEntries)
	if err != nil {
		t.Fatal(err)
	}
	if evicted != 1 {
		t.Fatalf("expected 1 eviction, got %d", evicted)
	}

	count, err := s.CountActivity()
	if err != nil {
		t.Fatal(err)
	}
	if count != maxEntries {
		t.Errorf("count after eviction = %d, want %d", count, maxEntries)
	}

	entries, err := s.ListActivity("", 0)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.ID == "e0" {
			t.Error("oldest entry survived eviction")
		}
	}
	// Newest first
	if entries[0].ID != "e5" {
		t.Errorf("first entry = %q, want e5", entries[0].ID)
	}
}

func TestListActivityFilterAndLimit(t *testing.T) {
	s := newTestStore(t)
	base := time.Now().UTC()
	for i := 0; i < 4; i++ {
		pid := "p1"
		if i%2 == 1 {
			pid = "p2"
		}
		if _, err := s.AppendActivity(ActivityEntry{
			ID: fmt.Sprintf("e%d", i), ProfileID: pid,
			Kind: EventAppBlocked, Timestamp: base.Add(time.Duration(i) * time.Second),
		}, 100); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := s.ListActivity("p1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("p1 entries: %d, want 2", len(entries))
	}
	if entries[0].ID != "e2" || entries[1].ID != "e0" {
		t.Errorf("not newest-first: %q, %q", entries[0].ID, entries[1].ID)
	}

	limited, err := s.ListActivity("", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 3 {
		t.Errorf("limit ignored: got %d", len(limited))
	}
}

func TestUsageRoundTrip(t *testing.T) {
	s := newTestStore(t)

	// Miss yields (nil, nil)
	u, err := s.GetUsage("p1", "2026-08-31")
	if err != nil || u != nil {
		t.Fatalf("GetUsage miss: u=%v, err=%v", u, err)
	}

	if err := s.PutUsage(DayUsage{ProfileID: "p1", Date: "2026-08-31", MinutesUsed: 42, SiteBlocks: 2, AppBlocks: 1}); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetUsage("p1", "2026-08-31")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.MinutesUsed != 42 || got.SiteBlocks != 2 || got.AppBlocks != 1 {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	// Same date, different profile is a separate record
	other, _ := s.GetUsage("p2", "2026-08-31")
	if other != nil {
		t.Error("usage leaked across profiles")
	}
}

func TestCredentialsRoundTrip(t *testing.T) {
	s := newTestStore(t)

	c, err := s.GetCredentials()
	if err != nil || c != nil {
		t.Fatalf("GetCredentials miss: c=%v, err=%v", c, err)
	}

	if err := s.PutCredentials(Credentials{PasswordHash: []byte("hash-a"), PINHash: []byte("hash-b"), UpdatedAt: time.Now().UTC()}); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetCredentials()
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || string(got.PasswordHash) != "hash-a" || string(got.PINHash) != "hash-b" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestSizeBytes(t *testing.T) {
	s := newTestStore(t)
	size, err := s.SizeBytes()
	if err != nil {
		t.Fatal(err)
	}
	if size <= 0 {
		t.Errorf("SizeBytes = %d, want > 0", size)
	}
}
