package policy

import "fmt"

// ValidationError is returned for malformed input. It is raised before any
// mutation reaches the store.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// NotFoundError is returned when an operation references an unknown record.
type NotFoundError struct {
	Kind string // "profile", "site rule", "app rule"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// ConflictError is returned when an add would duplicate an existing
// (profile, domain) or (profile, executable) pair.
type ConflictError struct {
	Kind string
	Key  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("duplicate %s: %s", e.Kind, e.Key)
}
