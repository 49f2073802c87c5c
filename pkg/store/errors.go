// Copyright 2025 Certen Protocol
//
// Sentinel errors and the invariant-violation type for the authority
// store. F.4-style: explicit errors instead of nil, nil returns.
package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("store: entity not found")

	// ErrTransactionLockConflict is returned by LockAndWriteTransaction
	// when an owned input is already locked to a different transaction
	// digest. Non-retryable: the client is equivocating.
	ErrTransactionLockConflict = errors.New("store: transaction lock conflict")

	// ErrTransactionNotFound is returned by GetTransactionEnvelope when no
	// transaction envelope is stored for the requested digest.
	ErrTransactionNotFound = errors.New("store: transaction envelope not found")

	// ErrRevertSharedObjectAdvanced is returned by RevertStateUpdate when
	// the transaction touched a shared object whose schedule has already
	// advanced past the version assigned to it. See SPEC_FULL.md §5 for
	// the rationale: rewinding the schedule would let a later-sequenced
	// transaction's already-assigned version collide with a version now
	// available for reuse.
	ErrRevertSharedObjectAdvanced = errors.New("store: cannot revert a transaction that touched an already-advanced shared object")

	// ErrEffectsNotFound is returned when effects do not yet exist for a
	// transaction digest.
	ErrEffectsNotFound = errors.New("store: effects not found")

	// ErrCircularObjectOwnership is returned by UpdateState when an output
	// object's ownership chain loops back on an ancestor: an object owned
	// by another object forms a graph, and a transfer that closes a cycle
	// (A owns B; transfer B to A) is rejected rather than committed.
	ErrCircularObjectOwnership = errors.New("store: circular object ownership")
)

// InvariantViolation marks an error as a store-consistency failure: the
// data on disk violates an invariant the rest of the system depends on
// (e.g. a lock exists with no corresponding transaction after the bounded
// retry window, or effects exist with no executed-sequence entry). These
// are fatal: the caller should surface them to the operator rather than
// retry.
type InvariantViolation struct {
	Op  string
	Err error
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("store: invariant violation in %s: %v", e.Op, e.Err)
}

func (e *InvariantViolation) Unwrap() error {
	return e.Err
}

func invariantViolation(op string, err error) error {
	return &InvariantViolation{Op: op, Err: err}
}
