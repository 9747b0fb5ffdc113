package storage

import (
	"time"
)

// FilterMode selects how a profile's site rules are interpreted.
type FilterMode string

const (
	// FilterModeBlacklist blocks the listed domains and allows everything else.
	FilterModeBlacklist FilterMode = "blacklist"
	// FilterModeWhitelist allows the listed domains and blocks everything else.
	FilterModeWhitelist FilterMode = "whitelist"
)

// Category classifies a site rule for reporting purposes.
type Category string

const (
	CategorySocial    Category = "social"
	CategoryGaming    Category = "gaming"
	CategoryStreaming Category = "streaming"
	CategoryAdult     Category = "adult"
	CategoryOther     Category = "other"
)

// EventKind is the closed enum of activity log event types.
type EventKind string

const (
	EventSessionStart   EventKind = "session_start"
	EventSessionEnd     EventKind = "session_end"
	EventSiteBlocked    EventKind = "site_blocked"
	EventAppBlocked     EventKind = "app_blocked"
	EventBudgetExceeded EventKind = "budget_exceeded"
	EventOutsideWindow  EventKind = "outside_window"
	EventRecoveryLogin  EventKind = "recovery_login"
)

// TimeWindow is a recurring weekly interval during which access is permitted.
// Windows are embedded in their owning Profile and have no independent lifecycle.
type TimeWindow struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Start    string `json:"start"` // "08:00"
	End      string `json:"end"`   // "20:00"
	Weekdays []int  `json:"weekdays"` // 0=Sunday … 6=Saturday
	Active   bool   `json:"active"`
}

// Profile is one monitored child identity and its screen-time settings.
type Profile struct {
	ID                string       `json:"id"`
	Name              string       `json:"name"`
	AvatarColor       string       `json:"avatar_color"`
	AvatarEmoji       string       `json:"avatar_emoji"`
	Active            bool         `json:"active"`
	CreatedAt         time.Time    `json:"created_at"`
	DailyMinuteBudget int          `json:"daily_minute_budget"` // 0 = unlimited
	SiteFilterMode    FilterMode   `json:"site_filter_mode"`
	TimeWindows       []TimeWindow `json:"time_windows"`
}

// SiteRule is one domain-level restriction owned by a profile.
// In blacklist mode entries with Blocked=true form the block list; in
// whitelist mode entries with Blocked=false form the allow list.
type SiteRule struct {
	ID        string    `json:"id"`
	ProfileID string    `json:"profile_id"`
	Domain    string    `json:"domain"`
	Category  Category  `json:"category"`
	Blocked   bool      `json:"blocked"`
	CreatedAt time.Time `json:"created_at"`
}

// AppRule is one executable-level restriction owned by a profile.
type AppRule struct {
	ID         string    `json:"id"`
	ProfileID  string    `json:"profile_id"`
	Name       string    `json:"name"`
	Executable string    `json:"executable"` // e.g. "fortnite.exe"
	Blocked    bool      `json:"blocked"`
	CreatedAt  time.Time `json:"created_at"`
}

// ActivityEntry is an immutable append-only record of a notable event.
type ActivityEntry struct {
	ID        string    `json:"id"`
	ProfileID string    `json:"profile_id"`
	Kind      EventKind `json:"kind"`
	Detail    string    `json:"detail"`
	Timestamp time.Time `json:"timestamp"`
}

// DayUsage is the per-(profile, calendar day) usage record.
type DayUsage struct {
	ProfileID   string `json:"profile_id"`
	Date        string `json:"date"` // "2006-01-02"
	MinutesUsed int    `json:"minutes_used"`
	SiteBlocks  int    `json:"site_blocks"`
	AppBlocks   int    `json:"app_blocks"`
}

// Credentials is the single global supervisor credential record.
// Hashes are bcrypt; the record is overwritten in place on change.
type Credentials struct {
	PasswordHash []byte
	PINHash      []byte
	UpdatedAt    time.Time
}

// CascadeResult reports what a cascading profile delete removed.
type CascadeResult struct {
	SiteRules int
	AppRules  int
	Activity  int
	Usage     int
}

// Store is the persistence port. Implementations must treat missing
// collections and missing records as empty results, not errors: a lookup
// miss yields (nil, nil) and a list over nothing yields an empty slice.
type Store interface {
	// Profiles
	GetProfile(id string) (*Profile, error)
	PutProfile(p Profile) error
	ListProfiles() ([]Profile, error)
	// DeleteProfileCascade removes the profile and every site rule, app
	// rule, activity entry, and usage record it owns in one transaction.
	DeleteProfileCascade(id string) (CascadeResult, error)

	// Site rules
	GetSiteRule(id string) (*SiteRule, error)
	PutSiteRule(r SiteRule) error
	DeleteSiteRule(id string) error
	ListSiteRules(profileID string) ([]SiteRule, error)

	// App rules
	GetAppRule(id string) (*AppRule, error)
	PutAppRule(r AppRule) error
	DeleteAppRule(id string) error
	ListAppRules(profileID string) ([]AppRule, error)

	// Activity log. AppendActivity enforces the global retention cap in
	// the same transaction as the write, evicting oldest-first.
	AppendActivity(e ActivityEntry, maxEntries int) (evicted int, err error)
	ListActivity(profileID string, limit int) ([]ActivityEntry, error)
	CountActivity() (int, error)

	// Daily usage
	GetUsage(profileID, date string) (*DayUsage, error)
	PutUsage(u DayUsage) error

	// Credentials
	GetCredentials() (*Credentials, error)
	PutCredentials(c Credentials) error

	// Utility
	SizeBytes() (int64, error)
	Close() error
}
