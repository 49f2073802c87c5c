// Copyright 2025 Certen Protocol
package main

import (
	"context"
	"fmt"

	"github.com/certen/authority-core/pkg/objtype"
	"github.com/certen/authority-core/pkg/store"
	"github.com/certen/authority-core/pkg/vm"
)

// passthroughBackend is a placeholder vm.Backend: it does not interpret a
// certificate's payload at all, it simply echoes every input object it
// is given back as an identical-version mutation with no state change. Actual VM
// semantics are out of scope here (spec.md §1 Non-goals: "specifying the
// VM's semantics"); this exists only so the execution driver has a
// concrete Backend to drive end-to-end at startup. A real deployment
// swaps this for a Move- or EVM-style interpreter satisfying the same
// vm.Backend contract.
type passthroughBackend struct{}

func (passthroughBackend) Execute(ctx context.Context, cert store.Certificate, inputs map[objtype.ID]objtype.Object, packages vm.PackageStore) (vm.Result, error) {
	ts := vm.NewTemporaryStore(inputs)
	for id, obj := range inputs {
		ts.Written[id] = obj
	}
	return vm.Result{Store: ts, Status: store.EffectsSuccess}, nil
}

// noPackageStore answers every GetPackage call with "not found": the
// passthrough backend never looks up bytecode, so there is nothing to
// resolve.
type noPackageStore struct{}

func (noPackageStore) GetPackage(id objtype.ID) ([]byte, error) {
	return nil, fmt.Errorf("backend: no package store configured (id=%s)", id)
}
