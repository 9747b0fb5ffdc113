// Package session is the state machine gating access to the policy store:
// Locked (nobody authenticated), Supervising (full editing access), and
// Restricted (one profile's enforcement session is active). All mode changes
// enter through here.
package session

import (
	"errors"
	"sync"

	"github.com/bhrochdi/parentguard/internal/activity"
	"github.com/bhrochdi/parentguard/internal/credentials"
	"github.com/bhrochdi/parentguard/internal/metrics"
	"github.com/bhrochdi/parentguard/internal/policy"
	"github.com/bhrochdi/parentguard/internal/storage"
	"github.com/bhrochdi/parentguard/internal/syncbridge"
	"github.com/rs/zerolog"
)

// State is the session mode. The three states are mutually exclusive.
type State string

const (
	StateLocked      State = "locked"
	StateSupervising State = "supervising"
	StateRestricted  State = "restricted"
)

// ErrNotSupervising is returned when an operation requires the Supervising
// state.
var ErrNotSupervising = errors.New("supervisor session required")

// ErrNotRestricted is returned when ExitRestricted is called with no
// restricted session active.
var ErrNotRestricted = errors.New("no restricted session active")

// ErrRestricted is returned when Authenticate is called while a restricted
// session is active. The only way out of Restricted is ExitRestricted with
// the PIN.
var ErrRestricted = errors.New("restricted session active")

// Manager owns the session state and drives enforcement through the sync
// bridge on every transition. A transition is complete the instant local
// state changes; agent synchronization is never awaited.
type Manager struct {
	creds    *credentials.Manager
	policies *policy.Service
	bridge   *syncbridge.Bridge
	activity *activity.Logger
	log      zerolog.Logger

	// recoveryCode, when non-empty, is accepted in place of the password
	// or PIN. Every use is logged and recorded; empty disables recovery
	// entirely.
	recoveryCode string

	mu            sync.Mutex
	state         State
	restricted    *storage.Profile
	activeProfile string
}

// NewManager constructs a Manager in the Locked state.
func NewManager(creds *credentials.Manager, policies *policy.Service,
	bridge *syncbridge.Bridge, act *activity.Logger,
	recoveryCode string, log zerolog.Logger) *Manager {

	return &Manager{
		creds:        creds,
		policies:     policies,
		bridge:       bridge,
		activity:     act,
		recoveryCode: recoveryCode,
		log:          log,
		state:        StateLocked,
	}
}

// State returns the current session mode.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// RestrictedProfile returns a copy of the profile under restriction, or nil.
func (m *Manager) RestrictedProfile() *storage.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.restricted == nil {
		return nil
	}
	p := *m.restricted
	return &p
}

// ActiveProfileID returns the supervisor's current profile selection. The
// selector is independent of the session state.
func (m *Manager) ActiveProfileID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeProfile
}

// SetActiveProfile changes the profile selection. Allowed only while
// Supervising; the profile must exist.
func (m *Manager) SetActiveProfile(profileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateSupervising {
		return ErrNotSupervising
	}
	if _, err := m.policies.GetProfile(profileID); err != nil {
		return err
	}
	m.activeProfile = profileID
	return nil
}

// Authenticate attempts Locked → Supervising. A wrong password changes
// nothing and is reported as a boolean; there is no lockout. Rejected with
// ErrRestricted while a restricted session is active. On success any
// lingering enforcement is retracted (idempotent).
func (m *Manager) Authenticate(password string) (bool, error) {
	m.mu.Lock()
	if m.state == StateRestricted {
		m.mu.Unlock()
		return false, ErrRestricted
	}
	m.mu.Unlock()

	ok, err := m.creds.VerifyPassword(password)
	if err != nil {
		return false, err
	}
	recovery := false
	if !ok && m.recoveryCode != "" && password == m.recoveryCode {
		ok = true
		recovery = true
	}
	if !ok {
		metrics.AuthAttempts.WithLabelValues("password", "failure").Inc()
		m.log.Info().Msg("supervisor authentication failed")
		return false, nil
	}

	m.mu.Lock()
	m.state = StateSupervising
	m.restricted = nil
	m.mu.Unlock()

	metrics.AuthAttempts.WithLabelValues("password", "success").Inc()
	metrics.SessionTransitions.WithLabelValues(string(StateSupervising)).Inc()

	if recovery {
		m.log.Warn().Msg("recovery code used for supervisor login")
		if err := m.activity.Record("", storage.EventRecoveryLogin, "recovery code used for supervisor login"); err != nil {
			m.log.Warn().Err(err).Msg("record recovery login failed")
		}
	}

	// Retract any enforcement left over from a previous run.
	m.bridge.Deactivate()
	m.log.Info().Msg("supervisor session started")
	return true, nil
}

// EnterRestricted performs Supervising → Restricted(profile): reads the
// profile's rules, pushes the derived rule set, and starts monitoring. The
// transition succeeds once local state changes, even if agent activation
// later fails; enforcement outcome is visible via the bridge status.
func (m *Manager) EnterRestricted(profileID string) error {
	m.mu.Lock()
	if m.state != StateSupervising {
		m.mu.Unlock()
		return ErrNotSupervising
	}
	m.mu.Unlock()

	p, err := m.policies.GetProfile(profileID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.state = StateRestricted
	m.restricted = p
	m.activeProfile = p.ID
	m.mu.Unlock()

	metrics.SessionTransitions.WithLabelValues(string(StateRestricted)).Inc()
	if err := m.activity.Record(p.ID, storage.EventSessionStart, "restricted session started for "+p.Name); err != nil {
		m.log.Warn().Err(err).Msg("record session start failed")
	}

	if err := m.bridge.Activate(*p); err != nil {
		// Local read failure: the session is restricted regardless, the
		// degraded enforcement state is observable via sync status.
		m.log.Warn().Err(err).Str("profile_id", p.ID).Msg("rule set build failed")
	}
	m.log.Info().Str("profile_id", p.ID).Msg("restricted session started")
	return nil
}

// ExitRestricted attempts Restricted → Locked. A wrong PIN changes nothing
// and issues no enforcement calls.
func (m *Manager) ExitRestricted(pin string) (bool, error) {
	m.mu.Lock()
	if m.state != StateRestricted {
		m.mu.Unlock()
		return false, ErrNotRestricted
	}
	profile := m.restricted
	m.mu.Unlock()

	ok, err := m.creds.VerifyPIN(pin)
	if err != nil {
		return false, err
	}
	recovery := false
	if !ok && m.recoveryCode != "" && pin == m.recoveryCode {
		ok = true
		recovery = true
	}
	if !ok {
		metrics.AuthAttempts.WithLabelValues("pin", "failure").Inc()
		m.log.Info().Msg("exit PIN check failed")
		return false, nil
	}

	m.mu.Lock()
	m.state = StateLocked
	m.restricted = nil
	m.mu.Unlock()

	metrics.AuthAttempts.WithLabelValues("pin", "success").Inc()
	metrics.SessionTransitions.WithLabelValues(string(StateLocked)).Inc()

	profileID := ""
	if profile != nil {
		profileID = profile.ID
	}
	if recovery {
		m.log.Warn().Msg("recovery code used to exit restricted session")
		if err := m.activity.Record(profileID, storage.EventRecoveryLogin, "recovery code used to exit restricted session"); err != nil {
			m.log.Warn().Err(err).Msg("record recovery exit failed")
		}
	}
	if err := m.activity.Record(profileID, storage.EventSessionEnd, "restricted session ended"); err != nil {
		m.log.Warn().Err(err).Msg("record session end failed")
	}

	m.bridge.Deactivate()
	m.log.Info().Str("profile_id", profileID).Msg("restricted session ended")
	return true, nil
}

// Logout performs Supervising → Locked. Always succeeds; any lingering
// enforcement is retracted.
func (m *Manager) Logout() {
	m.mu.Lock()
	m.state = StateLocked
	m.restricted = nil
	m.mu.Unlock()

	metrics.SessionTransitions.WithLabelValues(string(StateLocked)).Inc()
	m.bridge.Deactivate()
	m.log.Info().Msg("supervisor session ended")
}
