// Package syncbridge derives agent-facing rule sets from the policy store
// and pushes them to the enforcement agent. All agent traffic is
// asynchronous and best-effort: policy editing and session transitions are
// never blocked by agent unavailability. Outcomes are folded into an
// observable sync status instead of being raised to callers.
package syncbridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bhrochdi/parentguard/internal/agent"
	"github.com/bhrochdi/parentguard/internal/metrics"
	"github.com/bhrochdi/parentguard/internal/pool"
	"github.com/bhrochdi/parentguard/internal/storage"
	"github.com/rs/zerolog"
)

// Status is the last observed outcome of agent synchronization. "Rules
// exist, not enforced" is a legal degraded state; this is how an operator
// sees it.
type Status struct {
	LastAttempt time.Time `json:"last_attempt"`
	LastOp      string    `json:"last_op"`
	LastError   string    `json:"last_error,omitempty"`
	Enforced    bool      `json:"enforced"`
	ProfileID   string    `json:"profile_id,omitempty"`
}

// Bridge owns the worker pool that carries agent calls and the sync status.
type Bridge struct {
	agent   agent.Agent
	store   storage.Store
	pool    *pool.Pool
	timeout time.Duration
	log     zerolog.Logger

	mu     sync.Mutex
	status Status
}

// Config holds bridge construction parameters.
type Config struct {
	Pool        pool.Config
	CallTimeout time.Duration // per agent call; the transition never waits on it
}

// New constructs a Bridge with its own worker pool.
func New(cfg Config, ag agent.Agent, store storage.Store, log zerolog.Logger) (*Bridge, error) {
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	b := &Bridge{
		agent:   ag,
		store:   store,
		timeout: cfg.CallTimeout,
		log:     log,
	}
	p, err := pool.New(cfg.Pool, b.handle, log)
	if err != nil {
		return nil, fmt.Errorf("create sync pool: %w", err)
	}
	b.pool = p
	return b, nil
}

// Start launches the bridge workers. ctx controls their lifetime.
func (b *Bridge) Start(ctx context.Context) {
	b.pool.Start(ctx)
}

// Stop drains pending jobs and stops the workers.
func (b *Bridge) Stop() {
	b.pool.Stop()
}

// QueueDepth reports pending agent calls.
func (b *Bridge) QueueDepth() int {
	return b.pool.Depth()
}

// BuildRuleSet derives the immutable rule set document for a profile from
// the current policy store contents. In blacklist mode only blocked domains
// are forwarded; in whitelist mode only allowed domains. The agent never
// has to infer precedence from raw lists.
func (b *Bridge) BuildRuleSet(p storage.Profile) (agent.RuleSet, error) {
	siteRules, err := b.store.ListSiteRules(p.ID)
	if err != nil {
		return agent.RuleSet{}, fmt.Errorf("list site rules: %w", err)
	}
	appRules, err := b.store.ListAppRules(p.ID)
	if err != nil {
		return agent.RuleSet{}, fmt.Errorf("list app rules: %w", err)
	}

	rs := agent.RuleSet{
		ProfileID:         p.ID,
		SiteFilterMode:    string(p.SiteFilterMode),
		BlockedApps:       []string{},
		DailyMinuteBudget: p.DailyMinuteBudget,
		TimeWindows:       make([]agent.RuleSetWindow, 0, len(p.TimeWindows)),
		Active:            true,
	}
	for _, r := range appRules {
		if r.Blocked {
			rs.BlockedApps = append(rs.BlockedApps, r.Executable)
		}
	}
	for _, r := range siteRules {
		switch p.SiteFilterMode {
		case storage.FilterModeWhitelist:
			if !r.Blocked {
				rs.AllowedSites = append(rs.AllowedSites, r.Domain)
			}
		default:
			if r.Blocked {
				rs.BlockedSites = append(rs.BlockedSites, r.Domain)
			}
		}
	}
	for _, w := range p.TimeWindows {
		rs.TimeWindows = append(rs.TimeWindows, agent.RuleSetWindow{
			Start:    w.Start,
			End:      w.End,
			Weekdays: w.Weekdays,
			Active:   w.Active,
		})
	}
	return rs, nil
}

// Activate builds the profile's rule set and queues a full replacement
// followed by a monitoring start. The returned error covers local store
// reads only; agent outcomes surface through Status.
func (b *Bridge) Activate(p storage.Profile) error {
	rs, err := b.BuildRuleSet(p)
	if err != nil {
		return err
	}
	b.setProfile(p.ID)
	b.enqueue(pool.SyncJob{Op: pool.OpReplaceRuleSet, RuleSet: &rs})
	b.enqueue(pool.SyncJob{Op: pool.OpStartMonitoring})
	return nil
}

// Deactivate queues a monitoring stop. Idempotent: stopping an agent with
// nothing active is harmless.
func (b *Bridge) Deactivate() {
	b.enqueue(pool.SyncJob{Op: pool.OpStopMonitoring})
}

// BlockSite queues an ad-hoc single-domain block outside a full replacement.
func (b *Bridge) BlockSite(domain string) {
	b.enqueue(pool.SyncJob{Op: pool.OpBlockSite, Domain: domain})
}

// UnblockSite queues an ad-hoc single-domain unblock.
func (b *Bridge) UnblockSite(domain string) {
	b.enqueue(pool.SyncJob{Op: pool.OpUnblockSite, Domain: domain})
}

// Ping checks agent reachability directly, bypassing the pool.
func (b *Bridge) Ping(ctx context.Context) error {
	return b.agent.Ping(ctx)
}

// Status returns the last observed sync outcome.
func (b *Bridge) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *Bridge) enqueue(job pool.SyncJob) {
	if !b.pool.Enqueue(job) {
		b.recordOutcome(string(job.Op), fmt.Errorf("sync queue full"))
	}
}

// handle executes one queued agent call. Failures are recorded, never
// propagated beyond the pool's retry budget.
func (b *Bridge) handle(ctx context.Context, job pool.SyncJob) error {
	cctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	var err error
	switch job.Op {
	case pool.OpReplaceRuleSet:
		err = b.agent.ReplaceRuleSet(cctx, *job.RuleSet)
	case pool.OpStartMonitoring:
		err = b.agent.StartMonitoring(cctx)
	case pool.OpStopMonitoring:
		err = b.agent.StopMonitoring(cctx)
	case pool.OpBlockSite:
		err = b.agent.BlockSite(cctx, job.Domain)
	case pool.OpUnblockSite:
		err = b.agent.UnblockSite(cctx, job.Domain)
	default:
		err = fmt.Errorf("unknown op %q", job.Op)
	}

	b.recordOutcome(string(job.Op), err)
	return err
}

func (b *Bridge) setProfile(profileID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status.ProfileID = profileID
}

// recordOutcome updates the observable status and the enforcement gauge.
func (b *Bridge) recordOutcome(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.status.LastAttempt = time.Now().UTC()
	b.status.LastOp = op

	if err != nil {
		b.status.LastError = err.Error()
		if op == string(pool.OpReplaceRuleSet) || op == string(pool.OpStartMonitoring) {
			b.status.Enforced = false
			metrics.EnforcementActive.Set(0)
		}
		b.log.Warn().Err(err).Str("op", op).Msg("agent sync failed, enforcement degraded")
		return
	}

	b.status.LastError = ""
	switch op {
	case string(pool.OpStartMonitoring):
		b.status.Enforced = true
		metrics.EnforcementActive.Set(1)
	case string(pool.OpStopMonitoring):
		b.status.Enforced = false
		b.status.ProfileID = ""
		metrics.EnforcementActive.Set(0)
	}
}
