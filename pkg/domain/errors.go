package domain

import "fmt"

// ErrNotFound is returned when a referenced record does not exist.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ValidationError reports a rejected operation input. The operation aborts
// with no partial state change.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// InvariantViolationError reports an operation rejected unconditionally,
// regardless of caller privilege (e.g. editing a system role).
type InvariantViolationError struct {
	Invariant string
	Reason    string
}

func (e InvariantViolationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Invariant, e.Reason)
}

// PermissionError reports an actor lacking the permission an operation requires.
type PermissionError struct {
	Username   string
	Permission string
	AssayType  string
}

func (e PermissionError) Error() string {
	if e.AssayType == "" {
		return fmt.Sprintf("user %s lacks permission %s", e.Username, e.Permission)
	}
	return fmt.Sprintf("user %s lacks permission %s for assay %s", e.Username, e.Permission, e.AssayType)
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
