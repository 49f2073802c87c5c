// Copyright 2025 Certen Protocol
//
// Epoch-boundary quiescing: tracks certificates a worker has dequeued
// but not yet committed, so pkg/epoch's close_epoch can wait for them to
// finish (or safely abandon and revert them) before advancing. Grounded
// on the same worker-loop structure as driver.go; this is the Go
// equivalent of a WaitGroup-per-in-flight-item pattern the teacher uses
// nowhere explicitly, since nothing in the pack has an epoch-boundary
// concept — a sync.Map keyed by digest is the natural fit here.
package execution

import (
	"context"
	"time"

	"github.com/certen/authority-core/pkg/epoch"
	"github.com/certen/authority-core/pkg/objtype"
	"github.com/certen/authority-core/pkg/store"
)

type inflightEntry struct {
	cert       store.Certificate
	effects    store.Effects
	hasEffects bool
}

// trackStart records cert as in flight; call trackDone exactly once per
// trackStart call, on every exit path from processOne.
func (d *Driver) trackStart(cert store.Certificate) {
	d.inflight.Store(cert.TxDigest, &inflightEntry{cert: cert})
}

// trackEffects updates the in-flight record with the effects computed
// for cert, so Outstanding can report a revert-capable snapshot even if
// the commit itself hasn't happened yet.
func (d *Driver) trackEffects(digest objtype.TxDigest, effects store.Effects) {
	if v, ok := d.inflight.Load(digest); ok {
		entry := v.(*inflightEntry)
		entry.effects = effects
		entry.hasEffects = true
	}
}

func (d *Driver) trackDone(digest objtype.TxDigest) {
	d.inflight.Delete(digest)
}

// Outstanding implements epoch.ExecutionQuiescer.
func (d *Driver) Outstanding() []epoch.PendingCertificate {
	var out []epoch.PendingCertificate
	d.inflight.Range(func(_, v interface{}) bool {
		entry := v.(*inflightEntry)
		out = append(out, epoch.PendingCertificate{
			Cert:       entry.cert,
			Effects:    entry.effects,
			HasEffects: entry.hasEffects,
		})
		return true
	})
	return out
}

// Quiesce implements epoch.ExecutionQuiescer: polls until no certificate
// is in flight (including ones dequeued after the call), or ctx is done.
func (d *Driver) Quiesce(ctx context.Context) error {
	const pollInterval = 20 * time.Millisecond
	for {
		empty := true
		d.inflight.Range(func(_, _ interface{}) bool {
			empty = false
			return false
		})
		if empty {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}
