// Copyright 2025 Certen Protocol
//
// Package consensusadapter implements the Consensus Adapter (spec.md
// §4.5): the client that submits transactions into the external
// total-order broadcast, arbitrates which validator is responsible for
// each submission via the submission-position algorithm, tolerates
// garbage-collection retries, and drives the end-of-publish handshake at
// epoch boundary.
//
// Grounded on Sui's consensus_adapter.rs (submission_position,
// await_submit_delay, submit_and_wait_inner, InflightDropGuard — ported
// directly since the teacher has no analogous submission-arbitration
// concept) and on the teacher's pkg/consensus/bft_integration.go for Go
// idiom: logger injection, retry/backoff with counted warnings.
package consensusadapter

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/certen/authority-core/pkg/consensusclient"
	"github.com/certen/authority-core/pkg/metrics"
	"github.com/certen/authority-core/pkg/objtype"
)

// Logger is the narrow logging interface used throughout this module.
type Logger interface {
	Printf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...interface{}) {}

// ConnectionMonitor reports which committee members are currently
// reachable over the (out of scope, per spec.md §1) gossip layer. The
// adapter only ever consults it as a read-only collaborator.
type ConnectionMonitor interface {
	IsConnected(validator objtype.Address) bool
}

// ReputationScores reports which committee members are currently
// classified low-performing by the (out of scope) shared reputation
// map.
type ReputationScores interface {
	IsLowPerforming(validator objtype.Address) bool
}

// ProtocolConfig names the tunables spec.md §9 leaves to "protocol
// config": the amplification activation threshold, the reference gas
// price amplification is measured against, and the admission limits.
type ProtocolConfig struct {
	ReferenceGasPrice            uint64
	AmplificationThreshold       float64 // k: multiplier must be >= this to activate (spec.md §4.5 step 4)
	MaxPendingTransactions       int64   // inflight counter bound
	MaxPendingLocalSubmissions   int64   // local semaphore bound
	MinDelay                     time.Duration
	MaxDelay                     time.Duration
	DefaultBaseLatency           time.Duration
}

// DefaultProtocolConfig returns the spec.md §4.5 defaults: delay clamped
// to [150ms, 3s], base latency defaulting to 1s.
func DefaultProtocolConfig() ProtocolConfig {
	return ProtocolConfig{
		ReferenceGasPrice:          1000,
		AmplificationThreshold:     2.0,
		MaxPendingTransactions:     20_000,
		MaxPendingLocalSubmissions: 2_000,
		MinDelay:                   150 * time.Millisecond,
		MaxDelay:                   3 * time.Second,
		DefaultBaseLatency:         time.Second,
	}
}

// ErrTooManyTransactionsPendingConsensus is the overload error spec.md
// §4.5 step 1 and §7 name: an advisory, immediately-rejected admission
// failure, not retried.
var ErrTooManyTransactionsPendingConsensus = fmt.Errorf("consensusadapter: too many transactions pending consensus")

// Submission is one certified transaction or soft bundle accepted for
// consensus submission.
type Submission struct {
	// MinDigest is the transaction digest (or, for a soft bundle, the
	// minimum digest across the bundle — spec.md §4.5 "Soft bundles":
	// "the submission position is computed from the minimum digest in
	// the batch") used to derive the submission position.
	MinDigest objtype.TxDigest
	// Wire is the already-encoded consensus transaction(s) to submit.
	Wire []consensusclient.Transaction
	// GasPrice drives the amplification factor (spec.md §4.5 step 4);
	// zero for admin/system transactions, which are never amplified.
	GasPrice uint64
	// TimeCritical marks messages like DKG whose submit-retry backoff is
	// the fast 100ms tier rather than the default 10s tier (spec.md
	// §4.5 step 3).
	TimeCritical bool
}

// Adapter is the Consensus Adapter of spec.md §4.5.
type Adapter struct {
	self      objtype.Address
	committee Committee
	client    consensusclient.Client
	conn      ConnectionMonitor
	scores    ReputationScores
	cfg       ProtocolConfig
	log       Logger
	metrics   *metrics.ConsensusAdapter

	inflight      atomic.Int64
	localSem      *semaphore.Weighted
	latencyEst    *latencyEstimator
	throughput    ThroughputProfile

	reconfig *ReconfigState

	mu      sync.Mutex
	pending map[objtype.TxDigest]*pendingEntry // per-epoch pending table (spec.md §4.5 "Pending")
}

type pendingEntry struct {
	cancel context.CancelFunc
}

// ThroughputProfile lets a low-throughput regime shorten the delay for
// the position-1 validator (spec.md §4.5 "Delay": "a throughput-aware
// override may reduce delay for position 1 when throughput is low").
type ThroughputProfile interface {
	IsLowThroughput() bool
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option { return func(a *Adapter) { a.log = l } }

// WithMetrics wires a metrics collector.
func WithMetrics(m *metrics.ConsensusAdapter) Option { return func(a *Adapter) { a.metrics = m } }

// WithThroughputProfile wires the low-throughput delay override.
func WithThroughputProfile(t ThroughputProfile) Option {
	return func(a *Adapter) { a.throughput = t }
}

// New builds an Adapter for self, submitting into client under
// committee, consulting conn/scores for the position filters.
func New(self objtype.Address, committee Committee, client consensusclient.Client, conn ConnectionMonitor, scores ReputationScores, cfg ProtocolConfig, opts ...Option) *Adapter {
	a := &Adapter{
		self:      self,
		committee: committee,
		client:    client,
		conn:      conn,
		scores:    scores,
		cfg:       cfg,
		log:       nopLogger{},
		localSem:  semaphore.NewWeighted(cfg.MaxPendingLocalSubmissions),
		latencyEst: newLatencyEstimator(cfg.DefaultBaseLatency),
		reconfig:  newReconfigState(),
		pending:   make(map[objtype.TxDigest]*pendingEntry),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// CheckConsensusOverload is the advisory admission check of spec.md §6:
// reject new submissions immediately once the inflight counter is at its
// bound, rather than letting them queue behind the semaphore.
func (a *Adapter) CheckConsensusOverload() error {
	if a.inflight.Load() >= a.cfg.MaxPendingTransactions {
		return ErrTooManyTransactionsPendingConsensus
	}
	return nil
}

// Submit accepts a single consensus transaction: persists it to the
// per-epoch pending table, then spawns the submit-and-wait goroutine —
// the Go analog of spec.md §6's "submit(...) -> JoinHandle<()>". The
// returned function blocks until the submission reaches a terminal state
// (Sequenced, externally observed, or epoch end); callers that want
// fire-and-forget semantics should not wait on it.
func (a *Adapter) Submit(ctx context.Context, sub Submission, processed ProcessedNotifier) (func(), error) {
	if err := a.CheckConsensusOverload(); err != nil {
		return nil, err
	}
	if !a.localSem.TryAcquire(1) {
		return nil, ErrTooManyTransactionsPendingConsensus
	}
	a.inflight.Add(1)
	release := func() {
		a.inflight.Add(-1)
		a.localSem.Release(1)
	}

	subCtx, cancel := a.reconfig.withinAliveEpoch(ctx)

	a.mu.Lock()
	a.pending[sub.MinDigest] = &pendingEntry{cancel: cancel}
	a.mu.Unlock()

	if a.metrics != nil {
		a.metrics.PendingGauge.Inc()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer release()
		defer cancel()
		a.submitAndWait(subCtx, sub, processed)
		a.completeSubmission(sub.MinDigest)
	}()

	wait := func() { <-done }
	return wait, nil
}

// SubmitBatch is the soft-bundle submission of spec.md §4.5: all
// transactions must be certified-transaction kind (enforced by the
// caller constructing sub.Wire — this package does not decode wire
// bytes), submitted atomically with the position computed from the
// minimum digest across the bundle.
func (a *Adapter) SubmitBatch(ctx context.Context, sub Submission, processed ProcessedNotifier) (func(), error) {
	return a.Submit(ctx, sub, processed)
}

// completeSubmission removes the pending-consensus-transactions entry
// (spec.md §4.5 step 6) and, if the epoch is rejecting user certs and the
// pending count has reached zero, enqueues EndOfPublish exactly once.
func (a *Adapter) completeSubmission(digest objtype.TxDigest) {
	a.mu.Lock()
	delete(a.pending, digest)
	remaining := len(a.pending)
	a.mu.Unlock()

	if a.metrics != nil {
		a.metrics.PendingGauge.Dec()
	}

	if remaining == 0 {
		a.reconfig.maybeSendEndOfPublish(a.self, a.client)
	}
}

// PendingCount reports the current per-epoch pending table size, used by
// close_epoch (pkg/epoch) to decide whether EndOfPublish can be sent
// immediately.
func (a *Adapter) PendingCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// ReconfigState exposes the adapter's reconfiguration state for
// pkg/epoch's close_epoch to drive.
func (a *Adapter) ReconfigState() *ReconfigState { return a.reconfig }

// CheckEndOfPublish re-evaluates the zero-pending/rejecting-certs
// condition immediately, for the case where RejectUserCerts is called
// while the pending table is already empty (spec.md §4.6: "if already
// zero when reconfiguration starts, send EndOfPublish immediately rather
// than waiting for the next submission to drain").
func (a *Adapter) CheckEndOfPublish() {
	a.mu.Lock()
	remaining := len(a.pending)
	a.mu.Unlock()
	if remaining == 0 {
		a.reconfig.maybeSendEndOfPublish(a.self, a.client)
	}
}
