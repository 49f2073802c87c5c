// Copyright 2025 Certen Protocol
//
// Package epoch drives the reconfiguration handshake of spec.md §4.6:
// flip the active epoch into RejectUserCerts, let in-flight consensus
// submissions finish or be cancelled, revert any certificate that was
// sequenced but never finished executing before the boundary, then
// record the new committee and resume.
//
// Grounded on the teacher's reconfiguration-adjacent lifecycle code in
// main.go (ordered startup/shutdown of components) and on
// pkg/consensus/abci_validator.go's EndBlock/Commit pairing for the
// "quiesce before advancing" idiom; the close/revert/advance sequencing
// itself is new domain logic ported from authority_store.rs's
// close_epoch since nothing in the pack implements BFT epoch boundaries.
package epoch

import (
	"context"
	"fmt"
	"time"

	"github.com/certen/authority-core/pkg/consensusadapter"
	"github.com/certen/authority-core/pkg/store"
)

// Logger is the narrow logging interface used throughout this module.
type Logger interface {
	Printf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...interface{}) {}

// PendingCertificate names a sequenced-but-not-yet-executed certificate
// the execution driver still has in flight when close_epoch is called.
type PendingCertificate struct {
	Cert store.Certificate
	// Effects is the execution driver's locally-computed result, present
	// only if execution reached the point of producing effects before
	// CloseEpoch was called; HasEffects distinguishes that from a
	// certificate that never started executing.
	Effects    store.Effects
	HasEffects bool
}

// ExecutionQuiescer lets Manager ask the execution driver for the set of
// certificates still outstanding and wait for them to either finish or
// be safely abandoned, without pkg/epoch importing pkg/execution
// directly (the dependency runs the other way: cmd/validator wires both
// against this narrow interface).
type ExecutionQuiescer interface {
	// Outstanding returns certificates accepted but not yet committed via
	// UpdateState as of the call.
	Outstanding() []PendingCertificate
	// Quiesce blocks until every outstanding certificate as of the call
	// either commits or ctx is cancelled, whichever comes first.
	Quiesce(ctx context.Context) error
}

// Manager coordinates one validator's view of epoch boundaries.
type Manager struct {
	store    *store.Store
	adapter  *consensusadapter.Adapter
	executor ExecutionQuiescer
	log      Logger

	// quiesceTimeout bounds how long CloseEpoch waits for in-flight
	// execution to drain before reverting the remainder, so a stuck
	// worker cannot block reconfiguration indefinitely.
	quiesceTimeout time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option { return func(m *Manager) { m.log = l } }

// WithQuiesceTimeout overrides the default 10s quiesce bound.
func WithQuiesceTimeout(d time.Duration) Option {
	return func(m *Manager) { m.quiesceTimeout = d }
}

// New builds a Manager over store s, driving adapter's reconfiguration
// state and quiescing in-flight work through executor.
func New(s *store.Store, adapter *consensusadapter.Adapter, executor ExecutionQuiescer, opts ...Option) *Manager {
	m := &Manager{
		store:          s,
		adapter:        adapter,
		executor:       executor,
		log:            nopLogger{},
		quiesceTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CloseEpoch implements spec.md §4.6's close_epoch: transitions the
// adapter into RejectUserCerts (step 1), sends EndOfPublish at once if
// the adapter's pending table is already empty (otherwise the adapter's
// own pending-count-to-zero hook sends it later), waits up to
// quiesceTimeout for the execution driver's in-flight certificates to
// drain (step 2), passes each still-outstanding certificate to
// revertIfIncomplete (step 3), and finally records the new committee
// (step 4).
func (m *Manager) CloseEpoch(ctx context.Context, nextCommittee store.EpochInfo) error {
	m.log.Printf("[epoch] closing epoch, entering reject_user_certs")
	m.adapter.ReconfigState().RejectUserCerts()
	m.adapter.CheckEndOfPublish()

	quiesceCtx, cancel := context.WithTimeout(ctx, m.quiesceTimeout)
	defer cancel()
	if err := m.executor.Quiesce(quiesceCtx); err != nil {
		m.log.Printf("[epoch] quiesce did not complete before deadline, reverting remainder: %v", err)
	}

	for _, pending := range m.executor.Outstanding() {
		if err := m.revertIfIncomplete(pending); err != nil {
			return fmt.Errorf("epoch: close_epoch: revert %s: %w", pending.Cert.TxDigest, err)
		}
	}

	if err := m.store.InsertNewEpochInfo(nextCommittee); err != nil {
		return fmt.Errorf("epoch: close_epoch: insert_new_epoch_info: %w", err)
	}

	m.adapter.ReconfigState().StartNewEpoch()
	m.log.Printf("[epoch] advanced to epoch %d with %d committee members", nextCommittee.Epoch, len(nextCommittee.Committee))
	return nil
}

// revertIfIncomplete leaves pending alone when its effects are already
// durable or when it carries no locally computed effects. Otherwise it
// calls RevertStateUpdate, which, finding no effects record for the
// digest, runs only its shared-object schedule check and deletes
// nothing. Executions whose effects are durable are never reverted here.
func (m *Manager) revertIfIncomplete(pending PendingCertificate) error {
	exists, err := m.store.EffectsExists(pending.Cert.TxDigest)
	if err != nil {
		return fmt.Errorf("effects_exists: %w", err)
	}
	if exists {
		return nil
	}
	if !pending.HasEffects {
		// Never actually executed: nothing to revert, the certificate
		// simply stays pending for replay next epoch via the normal
		// pending-certificate sweep.
		return nil
	}
	return m.store.RevertStateUpdate(pending.Cert, pending.Effects)
}
