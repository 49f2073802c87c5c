// Copyright 2025 Certen Protocol
//
// Package vm defines the execution backend contract (spec.md §6): the
// boundary between the authority store's bookkeeping and the actual
// interpretation of a certificate's instructions. The store and execution
// driver never reach into transaction internals; everything they need to
// know about a run comes back through this interface.
package vm

import (
	"context"

	"github.com/certen/authority-core/pkg/objtype"
	"github.com/certen/authority-core/pkg/store"
)

// PackageStore resolves the bytecode/modules a transaction's kind names,
// so the backend can load them without the store package knowing
// anything about package formats.
type PackageStore interface {
	GetPackage(id objtype.ID) ([]byte, error)
}

// TemporaryStore is a transaction-scoped working set: the live objects it
// read, and the ones it wrote, kept apart from the durable store until
// UpdateState commits them. Backends populate Written and Deleted as they
// execute; the execution driver reads them back to build Effects.
type TemporaryStore struct {
	Inputs   map[objtype.ID]objtype.Object
	Written  map[objtype.ID]objtype.Object
	Deleted  map[objtype.ID]objtype.Digest // tombstone per deleted/wrapped id
	GasUsed  uint64
}

// NewTemporaryStore seeds a TemporaryStore from the live objects a
// certificate's inputs resolved to.
func NewTemporaryStore(inputs map[objtype.ID]objtype.Object) *TemporaryStore {
	return &TemporaryStore{
		Inputs:  inputs,
		Written: make(map[objtype.ID]objtype.Object),
		Deleted: make(map[objtype.ID]objtype.Digest),
	}
}

// Events is the opaque, canonically encoded event log a transaction
// emitted; the core does not interpret its contents.
type Events []byte

// Result is what Backend.Execute returns: the working set, the events
// emitted, and the effects envelope ready for UpdateState once the
// execution driver has assigned output versions.
type Result struct {
	Store  *TemporaryStore
	Events Events
	Status store.EffectsStatus
	// FailureReason is set only when Status is EffectsUserFailure — a
	// gas-exhaustion or explicit-abort outcome the spec requires still be
	// committed, not treated as a driver-level error (spec.md §4.3 step 6).
	FailureReason string
}

// Backend executes a certified transaction against a temporary store. It
// must be a pure, deterministic function of its inputs so that every
// honest validator produces bit-identical effects (spec.md §6:
// "deterministic across validators").
type Backend interface {
	Execute(ctx context.Context, cert store.Certificate, inputs map[objtype.ID]objtype.Object, packages PackageStore) (Result, error)
}

// Linker resolves a module publish/upgrade request into a module context,
// the backend's counterpart to verify_and_link (spec.md §6).
type Linker interface {
	VerifyAndLink(ctx context.Context, modules [][]byte, dependencies []objtype.ID) (ModuleContext, error)
}

// ModuleContext is an opaque handle to a resolved, linked module set.
// Backends define their own concrete type; the core only ever threads it
// through, never inspects it.
type ModuleContext interface {
	PackageID() objtype.ID
}
