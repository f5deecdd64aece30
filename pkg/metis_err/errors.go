// Package metis_err defines the engine's typed error kinds and the
// expected-user-error classification used by the CLI layer.
//
// Every error surfaced by the sync engine carries enough structured
// detail (entity ref, conflict id, reason) to drive both terminal
// messages and machine-readable reports. Nothing is logged and
// swallowed.
package metis_err

import (
	"errors"
	"fmt"
)

// Kind classifies engine errors for handling and exit codes.
type Kind int

const (
	// KindFetchFailure - a system adapter was unreachable; the sync pass
	// aborts before any mutation and is fully recoverable by retry.
	KindFetchFailure Kind = iota
	// KindInvalidResolution - the caller supplied an incomplete or illegal
	// resolution; the conflict stays Pending.
	KindInvalidResolution
	// KindApplyFailure - a per-entity write to the target failed; other
	// entities are unaffected.
	KindApplyFailure
	// KindAuditWriteFailure - the audit record could not be written; the
	// entity must not be marked Applied.
	KindAuditWriteFailure
	// KindChainIntegrityViolation - audit chain verification found a broken
	// link; surfaced to compliance tooling, never auto-repaired.
	KindChainIntegrityViolation
)

func (k Kind) String() string {
	switch k {
	case KindFetchFailure:
		return "fetch_failure"
	case KindInvalidResolution:
		return "invalid_resolution"
	case KindApplyFailure:
		return "apply_failure"
	case KindAuditWriteFailure:
		return "audit_write_failure"
	case KindChainIntegrityViolation:
		return "chain_integrity_violation"
	default:
		return "unknown"
	}
}

// EngineError wraps a cause with its kind and the identifiers needed to
// report it.
type EngineError struct {
	Kind       Kind
	EntityRef  string
	ConflictID string
	Reason     string
	Cause      error
}

func (e *EngineError) Error() string {
	msg := e.Kind.String()
	if e.EntityRef != "" {
		msg = fmt.Sprintf("%s: entity %s", msg, e.EntityRef)
	}
	if e.ConflictID != "" {
		msg = fmt.Sprintf("%s: conflict %s", msg, e.ConflictID)
	}
	if e.Reason != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Reason)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *EngineError) Unwrap() error {
	return e.Cause
}

// NewFetchFailure reports an unreachable adapter before any mutation.
func NewFetchFailure(system string, cause error) error {
	return &EngineError{Kind: KindFetchFailure, Reason: fmt.Sprintf("system %q unreachable", system), Cause: cause}
}

// NewInvalidResolution rejects an incomplete or illegal resolution.
func NewInvalidResolution(conflictID, reason string) error {
	return &EngineError{Kind: KindInvalidResolution, ConflictID: conflictID, Reason: reason}
}

// NewApplyFailure reports a per-entity write failure.
func NewApplyFailure(entityRef string, cause error) error {
	return &EngineError{Kind: KindApplyFailure, EntityRef: entityRef, Cause: cause}
}

// NewAuditWriteFailure reports a failed audit append for an entity transition.
func NewAuditWriteFailure(entityRef string, cause error) error {
	return &EngineError{Kind: KindAuditWriteFailure, EntityRef: entityRef, Cause: cause}
}

// NewChainIntegrityViolation reports the first broken link found by Verify.
func NewChainIntegrityViolation(namespace string, seq int, reason string) error {
	return &EngineError{
		Kind:   KindChainIntegrityViolation,
		Reason: fmt.Sprintf("namespace %s entry %d: %s", namespace, seq, reason),
	}
}

// IsKind reports whether err carries the given engine error kind.
func IsKind(err error, kind Kind) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
