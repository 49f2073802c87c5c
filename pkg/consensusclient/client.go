// Copyright 2025 Certen Protocol
//
// Package consensusclient defines the broadcast-client contract spec.md
// §6 treats as an external collaborator (the total-order broadcast the
// consensus adapter submits into) and a CometBFT-backed implementation
// of it.
package consensusclient

import (
	"context"
	"fmt"
)

// BlockRef identifies the consensus block (or equivalent unit) a
// submission landed in, opaque beyond string comparison/logging.
type BlockRef struct {
	Height uint64
	Hash   string
}

func (r BlockRef) String() string {
	return fmt.Sprintf("%d/%s", r.Height, r.Hash)
}

// StatusKind discriminates a BlockStatus.
type StatusKind int

const (
	// Sequenced means the submission was included in consensus order.
	Sequenced StatusKind = iota
	// GarbageCollected means the submitted block was dropped before
	// ordering; the client must resubmit (spec.md §4.5 step 4).
	GarbageCollected
)

// BlockStatus is a single message from a BlockStatusReceiver.
type BlockStatus struct {
	Kind StatusKind
	Ref  BlockRef
}

// BlockStatusReceiver produces exactly the statuses described in spec.md
// §6: a Sequenced or GarbageCollected per submission, with channel
// closure treated by the adapter as a transient error (consensusadapter
// retries on close the same as on an explicit GarbageCollected).
type BlockStatusReceiver <-chan BlockStatus

// EpochStore is the minimal epoch-scoped context a submission needs: the
// narrow slice of the epoch store spec.md's external interface actually
// touches (epoch number, for signing/intent scoping). The full epoch
// store lives in pkg/epoch; this interface exists so consensusclient
// does not import it back (pkg/epoch depends on this package's types for
// close_epoch's EndOfPublish submission, so the dependency only runs one
// way).
type EpochStore interface {
	Epoch() uint64
}

// Transaction is one ordered unit submitted into consensus: a certified
// transaction digest's wire bytes, opaque to the client.
type Transaction []byte

// Client is the total-order broadcast contract (spec.md §6): "submit one
// or more ordered consensus transactions; returns a single receiver
// producing Sequenced(block_ref) or GarbageCollected(block_ref)". Safe
// to call concurrently and during epoch change.
type Client interface {
	Submit(ctx context.Context, transactions []Transaction, epochStore EpochStore) (BlockStatusReceiver, error)
}
