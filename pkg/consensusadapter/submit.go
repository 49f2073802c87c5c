// Copyright 2025 Certen Protocol
//
// submit_and_wait_inner (spec.md §4.5 steps 3-5): delay per submission
// position, submit, await Sequenced/GarbageCollected racing against an
// externally-observed "already processed" signal, retry after a fixed
// 1s delay on garbage collection and with tiered backoff (100ms or 10s)
// on submit errors. Grounded on Sui's consensus_adapter.rs
// submit_and_wait_inner/await_submit plus the teacher's
// bft_integration.go retry/logging idiom (counted warnings at 3 and 30
// attempts).
package consensusadapter

import (
	"context"
	"time"

	"github.com/certen/authority-core/pkg/consensusclient"
)

// ProcessedNotifier is satisfied by the execution driver's notification
// that a transaction has already been sequenced via another path
// (checkpoint sync, direct gossip) — spec.md §4.5 step 5's "race against
// processed_via_consensus_or_checkpoint". A nil notifier disables the
// race (submission only completes via the consensus client itself).
type ProcessedNotifier interface {
	// Processed returns a channel that closes once the transaction this
	// submission carries has been observed committed by any means.
	Processed() <-chan struct{}
}

const (
	timeCriticalRetryDelay     = 100 * time.Millisecond
	defaultRetryDelay          = 10 * time.Second
	garbageCollectedRetryDelay = time.Second
	warnAfterAttempts          = 3
	escalateAfterAttempts      = 30
)

// submitAndWait runs the full submit/await/retry loop for sub until it
// either observes Sequenced, is told the transaction was processed via
// another path, or the context is cancelled (epoch change or caller
// abort).
func (a *Adapter) submitAndWait(ctx context.Context, sub Submission, processed ProcessedNotifier) {
	var processedCh <-chan struct{}
	if processed != nil {
		processedCh = processed.Processed()
	}

	position := a.submissionPosition(sub.MinDigest, sub.GasPrice)
	delay := a.computeDelay(position)

	if a.metrics != nil {
		a.metrics.SubmissionPosition.Observe(float64(position))
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-processedCh:
			return
		case <-ctx.Done():
			return
		}
	}

	attempt := 0
	for {
		select {
		case <-processedCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		attempt++
		start := time.Now()

		receiver, err := a.client.Submit(ctx, sub.Wire, epochStoreAdapter{})
		if err != nil {
			a.logRetry(sub, attempt, err)
			if !a.sleepRetry(ctx, sub.TimeCritical, processedCh) {
				return
			}
			continue
		}

		select {
		case status, ok := <-receiver:
			if !ok {
				// Channel closed without a terminal status: treat the
				// same as GarbageCollected (spec.md §4.5 step 4).
				if !a.sleepGarbageCollectedRetry(ctx, processedCh) {
					return
				}
				continue
			}
			switch status.Kind {
			case consensusclient.Sequenced:
				a.latencyEst.observe(time.Since(start))
				if a.metrics != nil {
					a.metrics.CommitLatency.Observe(time.Since(start).Seconds())
				}
				return
			case consensusclient.GarbageCollected:
				if a.metrics != nil {
					a.metrics.GarbageCollectedTotal.Inc()
				}
				if !a.sleepGarbageCollectedRetry(ctx, processedCh) {
					return
				}
				continue
			}
		case <-processedCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (a *Adapter) sleepRetry(ctx context.Context, timeCritical bool, processedCh <-chan struct{}) bool {
	d := defaultRetryDelay
	if timeCritical {
		d = timeCriticalRetryDelay
	}
	select {
	case <-time.After(d):
		return true
	case <-processedCh:
		return false
	case <-ctx.Done():
		return false
	}
}

// sleepGarbageCollectedRetry implements the fixed 1s delay spec.md:161-162
// defines for the GarbageCollected and channel-closed-without-status
// retries, distinct from sleepRetry's submit-error backoff (spec.md:158).
func (a *Adapter) sleepGarbageCollectedRetry(ctx context.Context, processedCh <-chan struct{}) bool {
	select {
	case <-time.After(garbageCollectedRetryDelay):
		return true
	case <-processedCh:
		return false
	case <-ctx.Done():
		return false
	}
}

func (a *Adapter) logRetry(sub Submission, attempt int, err error) {
	switch {
	case attempt == escalateAfterAttempts:
		a.log.Printf("[consensusadapter] submission %x still failing after %d attempts: %v", sub.MinDigest[:8], attempt, err)
	case attempt == warnAfterAttempts:
		a.log.Printf("[consensusadapter] submission %x retrying (attempt %d): %v", sub.MinDigest[:8], attempt, err)
	}
}

// epochStoreAdapter satisfies consensusclient.EpochStore trivially; this
// validator's adapter does not currently vary submission behavior by
// epoch number beyond what ReconfigState already tracks.
type epochStoreAdapter struct{}

func (epochStoreAdapter) Epoch() uint64 { return 0 }
