// Package usage tracks per-day screen-time minutes and block counters per
// profile, to support budget comparisons and weekly reports.
package usage

import (
	"time"

	"github.com/bhrochdi/parentguard/internal/policy"
	"github.com/bhrochdi/parentguard/internal/storage"
	"github.com/rs/zerolog"
)

const dateLayout = "2006-01-02"

// Tracker reads and writes daily usage records.
type Tracker struct {
	store storage.Store
	log   zerolog.Logger
	now   func() time.Time
}

// NewTracker constructs a Tracker backed by the given store.
func NewTracker(store storage.Store, log zerolog.Logger) *Tracker {
	return &Tracker{store: store, log: log, now: time.Now}
}

// Record upserts today's record for the profile, setting minutes-used to the
// given cumulative total. Callers supply the total, not a delta: recording
// the same value twice is idempotent. No monotonicity check is applied.
func (t *Tracker) Record(profileID string, minutes int) (*storage.DayUsage, error) {
	if minutes < 0 {
		return nil, &policy.ValidationError{Field: "minutes", Msg: "must be >= 0"}
	}
	if err := t.profileExists(profileID); err != nil {
		return nil, err
	}
	u, err := t.todayRecord(profileID)
	if err != nil {
		return nil, err
	}
	u.MinutesUsed = minutes
	if err := t.store.PutUsage(*u); err != nil {
		return nil, err
	}
	return u, nil
}

// CountSiteBlock increments today's site-block counter for the profile.
func (t *Tracker) CountSiteBlock(profileID string) error {
	return t.bump(profileID, func(u *storage.DayUsage) { u.SiteBlocks++ })
}

// CountAppBlock increments today's app-block counter for the profile.
func (t *Tracker) CountAppBlock(profileID string) error {
	return t.bump(profileID, func(u *storage.DayUsage) { u.AppBlocks++ })
}

func (t *Tracker) bump(profileID string, apply func(*storage.DayUsage)) error {
	if err := t.profileExists(profileID); err != nil {
		return err
	}
	u, err := t.todayRecord(profileID)
	if err != nil {
		return err
	}
	apply(u)
	return t.store.PutUsage(*u)
}

// Today returns today's record, synthesizing a zero-usage placeholder when
// no write has happened yet.
func (t *Tracker) Today(profileID string) (storage.DayUsage, error) {
	date := t.now().Format(dateLayout)
	u, err := t.store.GetUsage(profileID, date)
	if err != nil {
		return storage.DayUsage{}, err
	}
	if u == nil {
		return storage.DayUsage{ProfileID: profileID, Date: date}, nil
	}
	return *u, nil
}

// Last7Days returns one record per day, oldest first, ending today. Days
// with no stored record are filled with zero-usage placeholders so callers
// can always render a full week.
func (t *Tracker) Last7Days(profileID string) ([]storage.DayUsage, error) {
	days := make([]storage.DayUsage, 0, 7)
	for i := 6; i >= 0; i-- {
		date := t.now().AddDate(0, 0, -i).Format(dateLayout)
		u, err := t.store.GetUsage(profileID, date)
		if err != nil {
			return nil, err
		}
		if u == nil {
			u = &storage.DayUsage{ProfileID: profileID, Date: date}
		}
		days = append(days, *u)
	}
	return days, nil
}

func (t *Tracker) todayRecord(profileID string) (*storage.DayUsage, error) {
	date := t.now().Format(dateLayout)
	u, err := t.store.GetUsage(profileID, date)
	if err != nil {
		return nil, err
	}
	if u == nil {
		u = &storage.DayUsage{ProfileID: profileID, Date: date}
	}
	return u, nil
}

func (t *Tracker) profileExists(profileID string) error {
	p, err := t.store.GetProfile(profileID)
	if err != nil {
		return err
	}
	if p == nil {
		return &policy.NotFoundError{Kind: "profile", ID: profileID}
	}
	return nil
}
