// Package activity is the append-only event log: session starts, blocked
// sites and apps, budget overruns. Retention is a global cap with
// oldest-first eviction, enforced at append time.
package activity

import (
	"time"

	"github.com/bhrochdi/parentguard/internal/metrics"
	"github.com/bhrochdi/parentguard/internal/policy"
	"github.com/bhrochdi/parentguard/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultRetention is the global entry cap when none is configured.
const DefaultRetention = 500

// Logger appends and lists activity entries.
type Logger struct {
	store     storage.Store
	retention int
	log       zerolog.Logger
	now       func() time.Time
}

// NewLogger constructs a Logger. retention <= 0 falls back to DefaultRetention.
func NewLogger(store storage.Store, retention int, log zerolog.Logger) *Logger {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Logger{store: store, retention: retention, log: log, now: time.Now}
}

// Record appends one entry. The event kind is a closed enum; anything else
// is rejected before the write.
func (l *Logger) Record(profileID string, kind storage.EventKind, detail string) error {
	if !validKind(kind) {
		return &policy.ValidationError{Field: "kind", Msg: "unknown event kind"}
	}
	evicted, err := l.store.AppendActivity(storage.ActivityEntry{
		ID:        uuid.NewString(),
		ProfileID: profileID,
		Kind:      kind,
		Detail:    detail,
		Timestamp: l.now().UTC(),
	}, l.retention)
	if err != nil {
		return err
	}
	if evicted > 0 {
		metrics.ActivityEvicted.Add(float64(evicted))
	}
	return nil
}

// List returns entries newest-first, optionally filtered by profile.
// limit <= 0 returns everything retained.
func (l *Logger) List(profileID string, limit int) ([]storage.ActivityEntry, error) {
	return l.store.ListActivity(profileID, limit)
}

func validKind(kind storage.EventKind) bool {
	switch kind {
	case storage.EventSessionStart, storage.EventSessionEnd,
		storage.EventSiteBlocked, storage.EventAppBlocked,
		storage.EventBudgetExceeded, storage.EventOutsideWindow,
		storage.EventRecoveryLogin:
		return true
	}
	return false
}
