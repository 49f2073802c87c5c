// Copyright 2025 Certen Protocol
//
// Reconfiguration state and the EndOfPublish handshake: spec.md §4.6's
// "reject_user_certs" transition plus "when the per-epoch pending count
// reaches zero, send EndOfPublish exactly once". Grounded on Sui's
// ReconfigState in consensus_adapter.rs (RwLock-guarded accepting flag,
// cancellation of in-flight submissions on epoch close).
package consensusadapter

import (
	"context"
	"sync"

	"github.com/certen/authority-core/pkg/consensusclient"
	"github.com/certen/authority-core/pkg/objtype"
)

// ReconfigState tracks whether the current epoch still accepts new user
// certificates and whether EndOfPublish has already been sent for it.
type ReconfigState struct {
	mu               sync.RWMutex
	acceptingCerts   bool
	endOfPublishSent bool
	epochCancel      context.CancelFunc
	epochCtx         context.Context
}

func newReconfigState() *ReconfigState {
	ctx, cancel := context.WithCancel(context.Background())
	return &ReconfigState{acceptingCerts: true, epochCtx: ctx, epochCancel: cancel}
}

// AcceptingUserCerts reports whether this epoch still admits new user
// certificate submissions.
func (r *ReconfigState) AcceptingUserCerts() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.acceptingCerts
}

// RejectUserCerts flips the epoch into the closing state (spec.md §4.6):
// AcceptingUserCerts reports false from then on, and EndOfPublish becomes
// eligible to send once the pending count is zero. Adapter.Submit does
// not consult this flag, so new submissions are still accepted;
// already-pending submissions keep running until cancelled by
// StartNewEpoch.
func (r *ReconfigState) RejectUserCerts() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acceptingCerts = false
}

// StartNewEpoch resets reconfiguration state for the next epoch and
// cancels any submissions still bound to the previous one's context.
func (r *ReconfigState) StartNewEpoch() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.epochCancel != nil {
		r.epochCancel()
	}
	r.epochCtx, r.epochCancel = context.WithCancel(context.Background())
	r.acceptingCerts = true
	r.endOfPublishSent = false
}

// withinAliveEpoch derives a submission context cancelled either by the
// caller or by the next StartNewEpoch, matching spec.md §4.5's
// within_alive_epoch wrapper around submit_and_wait_inner.
func (r *ReconfigState) withinAliveEpoch(parent context.Context) (context.Context, context.CancelFunc) {
	r.mu.RLock()
	epochCtx := r.epochCtx
	r.mu.RUnlock()

	ctx, cancel := context.WithCancel(parent)
	stop := make(chan struct{})
	go func() {
		select {
		case <-epochCtx.Done():
			cancel()
		case <-stop:
		}
	}()
	return ctx, func() {
		close(stop)
		cancel()
	}
}

// maybeSendEndOfPublish submits the EndOfPublish consensus message
// exactly once per epoch, once RejectUserCerts is in effect and the
// pending-submission count has reached zero (spec.md §4.6).
func (r *ReconfigState) maybeSendEndOfPublish(self objtype.Address, client consensusclient.Client) {
	r.mu.Lock()
	if r.acceptingCerts || r.endOfPublishSent {
		r.mu.Unlock()
		return
	}
	r.endOfPublishSent = true
	r.mu.Unlock()

	payload := encodeEndOfPublish(self)
	// Best-effort: the result of Submit is discarded, so a failed
	// EndOfPublish delivery is neither logged nor retried.
	_, _ = client.Submit(context.Background(), []consensusclient.Transaction{payload}, nil)
}

func encodeEndOfPublish(self objtype.Address) consensusclient.Transaction {
	out := make([]byte, 1+len(self))
	out[0] = 0xEF // EndOfPublish message tag, distinct from certified-transaction wire tags
	copy(out[1:], self[:])
	return out
}
