// Copyright 2025 Certen Protocol
//
// Package execution implements the Execution Driver (spec.md §4.3): the
// worker pool that consumes the pending-execution queue, invokes the VM
// backend, and commits results through the store's update_state.
package execution

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/certen/authority-core/pkg/metrics"
	"github.com/certen/authority-core/pkg/objtype"
	"github.com/certen/authority-core/pkg/sharedseq"
	"github.com/certen/authority-core/pkg/store"
	"github.com/certen/authority-core/pkg/vm"
)

// Logger is the narrow logging interface used throughout this module.
type Logger interface {
	Printf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...interface{}) {}

// sharedInputPollInterval bounds how often a worker re-checks whether a
// certificate's shared inputs have all been sequenced (spec.md §4.3 step
// 3). There is no notification channel for this specific condition, so
// the driver polls — bounded and infrequent enough not to matter under
// normal consensus latency.
const sharedInputPollInterval = 20 * time.Millisecond

// Driver consumes the pending-execution queue and commits executed
// certificates.
type Driver struct {
	store      *store.Store
	sequencer  *sharedseq.Sequencer
	backend    vm.Backend
	packages   vm.PackageStore
	numWorkers int
	log        Logger
	metrics    *metrics.Execution

	seqCounter atomic.Uint64 // monotonic counter, racy-safe allocation
	epochOver  atomic.Bool

	// inflight tracks certificates currently between dequeue and commit,
	// consulted by epoch.Manager.CloseEpoch via Outstanding/Quiesce
	// (quiesce.go).
	inflight sync.Map
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return func(d *Driver) { d.log = l }
}

// WithMetrics wires a metrics collector.
func WithMetrics(m *metrics.Execution) Option {
	return func(d *Driver) { d.metrics = m }
}

// New builds a Driver with numWorkers concurrent pending-queue consumers.
func New(s *store.Store, sequencer *sharedseq.Sequencer, backend vm.Backend, packages vm.PackageStore, numWorkers int, opts ...Option) *Driver {
	d := &Driver{
		store:      s,
		sequencer:  sequencer,
		backend:    backend,
		packages:   packages,
		numWorkers: numWorkers,
		log:        nopLogger{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// nextExecutedSeq allocates a process-wide-unique executed-sequence
// candidate; store.UpdateState only actually consumes it the first time a
// given digest commits, so races between workers racing for the same
// digest never produce a gap — only a handful of discarded candidates
// under contention, which is an accepted cost of the simpler atomic
// counter over a persisted high-water mark recomputed at startup.
func (d *Driver) nextExecutedSeq() (uint64, error) {
	return d.seqCounter.Add(1) - 1, nil
}

// SignalEpochEnd tells all workers to stop pulling new certificates once
// their current one finishes (spec.md §4.3 "Cancellation").
func (d *Driver) SignalEpochEnd() {
	d.epochOver.Store(true)
}

// Run blocks, driving numWorkers workers until all of them return: on
// ctx cancellation, at epoch end, or after the first worker error, which
// cancels the context shared by the others. It returns that first error.
func (d *Driver) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < d.numWorkers; i++ {
		g.Go(func() error { return d.workerLoop(ctx) })
	}
	return g.Wait()
}

func (d *Driver) workerLoop(ctx context.Context) error {
	for {
		if d.epochOver.Load() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		certs, err := d.store.GetPendingCertificates()
		if err != nil {
			return fmt.Errorf("execution: get pending certificates: %w", err)
		}
		if d.metrics != nil {
			d.metrics.WorkerQueueDepth.Set(float64(len(certs)))
		}
		if len(certs) == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-d.store.PendingChanged():
			}
			continue
		}

		for _, cert := range certs {
			if d.epochOver.Load() {
				return nil
			}
			if err := d.processOne(ctx, cert); err != nil {
				d.log.Printf("execution: certificate %s failed: %v", cert.TxDigest, err)
			}
		}
	}
}

// processOne runs the per-certificate protocol of spec.md §4.3 steps 2-6.
func (d *Driver) processOne(ctx context.Context, cert store.Certificate) error {
	start := time.Now()
	defer func() {
		if d.metrics != nil {
			d.metrics.ExecutionLatency.Observe(time.Since(start).Seconds())
		}
	}()

	done, err := d.store.EffectsExists(cert.TxDigest)
	if err != nil {
		return fmt.Errorf("effects_exists %s: %w", cert.TxDigest, err)
	}
	if done {
		return d.store.RemovePendingCertificates([]objtype.TxDigest{cert.TxDigest})
	}

	d.trackStart(cert)
	defer d.trackDone(cert.TxDigest)

	if len(cert.Data.SharedInputs) > 0 {
		if err := d.awaitSharedInputsSequenced(ctx, cert); err != nil {
			return err
		}
	}

	inputs, err := d.collectInputs(cert)
	if err != nil {
		return fmt.Errorf("collect inputs for %s: %w", cert.TxDigest, err)
	}

	result, err := d.backend.Execute(ctx, cert, inputs, d.packages)
	if err != nil {
		return fmt.Errorf("vm execute %s: %w", cert.TxDigest, err)
	}

	effects, outputs := buildEffects(cert, inputs, result)
	d.trackEffects(cert.TxDigest, effects)
	if err := d.store.UpdateState(cert, effects, outputs, d.nextExecutedSeq); err != nil {
		return fmt.Errorf("update_state %s: %w", cert.TxDigest, err)
	}

	if len(cert.Data.SharedInputs) > 0 {
		if err := d.sequencer.RemoveSharedObjectsLocks(cert.TxDigest, cert.Data.SharedInputs); err != nil {
			return fmt.Errorf("remove_shared_objects_locks %s: %w", cert.TxDigest, err)
		}
	}

	if d.metrics != nil {
		d.metrics.CertificatesExecutedTotal.Inc()
	}
	return d.store.RemovePendingCertificates([]objtype.TxDigest{cert.TxDigest})
}

func (d *Driver) awaitSharedInputsSequenced(ctx context.Context, cert store.Certificate) error {
	for {
		_, oks, err := d.sequencer.Sequenced(cert.TxDigest, cert.Data.SharedInputs)
		if err != nil {
			return fmt.Errorf("sequenced %s: %w", cert.TxDigest, err)
		}
		allSequenced := true
		for _, ok := range oks {
			if !ok {
				allSequenced = false
				break
			}
		}
		if allSequenced {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sharedInputPollInterval):
		}
	}
}

func (d *Driver) collectInputs(cert store.Certificate) (map[objtype.ID]objtype.Object, error) {
	inputs := make(map[objtype.ID]objtype.Object, len(cert.Data.OwnedInputs)+len(cert.Data.SharedInputs))
	for _, ref := range cert.Data.OwnedInputs {
		obj, err := d.store.GetObject(ref.ID)
		if err != nil {
			return nil, err
		}
		inputs[ref.ID] = obj
	}
	for _, id := range cert.Data.SharedInputs {
		obj, err := d.store.GetObject(id)
		if err != nil {
			return nil, err
		}
		inputs[id] = obj
	}
	return inputs, nil
}

// buildEffects turns a VM result into a committable Effects plus the full
// output objects UpdateState needs. An id present in both inputs and the
// VM's written set is a mutation; an id only in the written set is a
// creation.
func buildEffects(cert store.Certificate, inputs map[objtype.ID]objtype.Object, result vm.Result) (store.Effects, []objtype.Object) {
	effects := store.Effects{
		TransactionDigest: cert.TxDigest,
		Status:            result.Status,
		FailureReason:     result.FailureReason,
		Events:            result.Events,
		GasUsed:           result.Store.GasUsed,
	}
	var outputs []objtype.Object
	for id, obj := range result.Store.Written {
		outputs = append(outputs, obj)
		if _, wasInput := inputs[id]; wasInput {
			effects.Mutated = append(effects.Mutated, obj.Ref)
		} else {
			effects.Created = append(effects.Created, obj.Ref)
		}
	}
	for id, digest := range result.Store.Deleted {
		ref := objtype.Ref{ID: id, Digest: digest}
		if input, ok := inputs[id]; ok {
			ref.Version = input.Ref.Version.Increment()
		}
		if digest == objtype.DigestWrapped {
			effects.Wrapped = append(effects.Wrapped, ref)
		} else {
			effects.Deleted = append(effects.Deleted, ref)
		}
	}
	return effects, outputs
}
