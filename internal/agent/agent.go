// Package agent is the client seam to the external enforcement agent: the
// separate process that owns host-level site blocking, process termination,
// and traffic cut-off. This core only hands it rule sets and commands.
package agent

import (
	"context"
	"fmt"
)

// RuleSetWindow is a permitted interval inside a rule set document.
type RuleSetWindow struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Weekdays []int  `json:"weekdays"`
	Active   bool   `json:"active"`
}

// RuleSet is the derived, agent-facing snapshot of one profile's active
// restrictions. The site filter mode is explicit: blocked_sites is populated
// only in blacklist mode and allowed_sites only in whitelist mode, so the
// agent never has to infer precedence.
type RuleSet struct {
	ProfileID         string          `json:"profile_id"`
	SiteFilterMode    string          `json:"site_filter_mode"`
	BlockedApps       []string        `json:"blocked_apps"`
	BlockedSites      []string        `json:"blocked_sites,omitempty"`
	AllowedSites      []string        `json:"allowed_sites,omitempty"`
	DailyMinuteBudget int             `json:"daily_minute_budget"` // 0 = unlimited
	TimeWindows       []RuleSetWindow `json:"time_windows"`
	Active            bool            `json:"active"`
}

// Agent is the enforcement agent command surface. All methods accept context
// for deadline control. Each activation fully replaces the prior rule set;
// there is no incremental diffing.
type Agent interface {
	ReplaceRuleSet(ctx context.Context, rs RuleSet) error
	StartMonitoring(ctx context.Context) error
	StopMonitoring(ctx context.Context) error

	// Incremental site toggles, for ad-hoc changes outside a full
	// rule-set replacement.
	BlockSite(ctx context.Context, domain string) error
	UnblockSite(ctx context.Context, domain string) error

	// ListActiveProcesses is used for display only.
	ListActiveProcesses(ctx context.Context) ([]string, error)

	Ping(ctx context.Context) error
	Close() error
}

// --- Typed errors -----------------------------------------------------------

// ErrUnavailable is returned when the agent cannot be reached. Callers at
// the sync bridge boundary swallow it and degrade; it never reaches a user.
type ErrUnavailable struct {
	Cause error
}

func (e *ErrUnavailable) Error() string {
	return fmt.Sprintf("agent unavailable: %v", e.Cause)
}

func (e *ErrUnavailable) Unwrap() error { return e.Cause }

// ErrUnauthorized is returned on HTTP 401 responses from the agent.
type ErrUnauthorized struct {
	Msg string
}

func (e *ErrUnauthorized) Error() string {
	return fmt.Sprintf("agent rejected credentials: %s", e.Msg)
}
