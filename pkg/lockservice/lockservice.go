// Copyright 2025 Certen Protocol
//
// Package lockservice implements the authority store's owned-object
// locking discipline (spec.md §4.2): a durable, per-(id, version)
// mapping from owned-object ref to at-most-one bound transaction digest,
// acquired atomically across the inputs of a multi-input transaction.
package lockservice

import (
	"bytes"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/certen/authority-core/pkg/objtype"
	"github.com/certen/authority-core/pkg/serialize"
)

var bucketLocks = []byte("locks")

// unbound is the value stored for a lock that exists but has not yet
// been bound to a transaction digest (the None variant of
// Option<TransactionDigest>). It is distinguished from "key absent"
// (LockDoesNotExist) by key presence, not value content.
var unbound = []byte{}

// Service owns the durable lock table and the sharded mutex that
// serializes logical mutation of a given object across concurrent
// executions (spec.md §5: "a sharded mutex table ... keyed by a hash of
// the object digest", default 4096 shards).
type Service struct {
	db     *bbolt.DB
	shards [shardCount]shardMutex
}

// Open creates (if absent) the locks bucket in db and returns a Service
// bound to it. The caller owns db's lifecycle.
func Open(db *bbolt.DB) (*Service, error) {
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketLocks)
		return err
	}); err != nil {
		return nil, fmt.Errorf("lockservice: open: %w", err)
	}
	return &Service{db: db}, nil
}

func lockKey(ref objtype.Ref) []byte {
	return serialize.Concat(ref.ID[:], serialize.BigEndianUint64(uint64(ref.Version)))
}

// InitializeLocks creates locks for new outputs with value None
// (unbound). With forceReset=true, existing locks are overwritten with
// the unbound value. The reset_transaction_lock rollback of SPEC_FULL.md
// §4 is store.ResetTransactionLock, which does not call this.
func (s *Service) InitializeLocks(refs []objtype.Ref, forceReset bool) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketLocks)
		for _, ref := range refs {
			key := lockKey(ref)
			if !forceReset {
				if existing := b.Get(key); existing != nil {
					continue // already initialized; idempotent
				}
			}
			if err := b.Put(key, unbound); err != nil {
				return fmt.Errorf("lockservice: init lock %s: %w", ref, err)
			}
		}
		return nil
	})
}

// AcquireLocks sets the lock to Some(txDigest) for every ref, failing the
// entire call with ErrLockConflict if any ref is already bound to a
// different digest. The operation is all-or-nothing: bbolt's single
// read-write transaction gives us that atomicity for free.
func (s *Service) AcquireLocks(refs []objtype.Ref, txDigest objtype.TxDigest) error {
	unlock := s.lockShardsFor(refs)
	defer unlock()

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketLocks)
		for _, ref := range refs {
			key := lockKey(ref)
			existing := b.Get(key)
			if existing == nil {
				return fmt.Errorf("%w: %s", ErrLockDoesNotExist, ref)
			}
			if len(existing) > 0 && !bytes.Equal(existing, txDigest[:]) {
				return fmt.Errorf("%w: %s already bound to a different transaction", ErrLockConflict, ref)
			}
		}
		// Second pass: all refs validated, now bind them. A concurrent
		// AcquireLocks call with the same digest on overlapping refs is a
		// no-op success the second time through (spec.md §8 boundary
		// behavior).
		for _, ref := range refs {
			if err := b.Put(lockKey(ref), txDigest[:]); err != nil {
				return fmt.Errorf("lockservice: acquire lock %s: %w", ref, err)
			}
		}
		return nil
	})
}

// LockState is the three-way result of GetLock.
type LockState int

const (
	// LockUnbound means the lock exists but is not yet bound to a digest.
	LockUnbound LockState = iota
	// LockBound means the lock is bound; Digest carries the bound value.
	LockBound
	// LockAbsent means no lock exists for this ref (LockDoesNotExist).
	LockAbsent
)

// GetLock returns the lock state for ref and, if bound, the digest.
func (s *Service) GetLock(ref objtype.Ref) (LockState, objtype.TxDigest, error) {
	var state LockState
	var digest objtype.TxDigest
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketLocks)
		v := b.Get(lockKey(ref))
		if v == nil {
			state = LockAbsent
			return nil
		}
		if len(v) == 0 {
			state = LockUnbound
			return nil
		}
		state = LockBound
		copy(digest[:], v)
		return nil
	})
	if err != nil {
		return LockAbsent, objtype.TxDigest{}, fmt.Errorf("lockservice: get lock %s: %w", ref, err)
	}
	return state, digest, nil
}

// DeleteLocks removes the lock entries for refs outright. Used for spent
// owned inputs once their successor output lock exists (spec.md §4.1
// invariant: "deletion of an old lock follows the successor lock's
// creation").
func (s *Service) DeleteLocks(tx *bbolt.Tx, refs []objtype.Ref) error {
	b := tx.Bucket(bucketLocks)
	for _, ref := range refs {
		if err := b.Delete(lockKey(ref)); err != nil {
			return fmt.Errorf("lockservice: delete lock %s: %w", ref, err)
		}
	}
	return nil
}

// InitializeLocksTx is InitializeLocks run inside a caller-supplied
// transaction, so the execution commit path (store.UpdateState) can
// include lock rotation in the same atomic batch as the rest of its
// writes (spec.md §4.1 step 8).
func (s *Service) InitializeLocksTx(tx *bbolt.Tx, refs []objtype.Ref, forceReset bool) error {
	b := tx.Bucket(bucketLocks)
	for _, ref := range refs {
		key := lockKey(ref)
		if !forceReset {
			if existing := b.Get(key); existing != nil {
				continue
			}
		}
		if err := b.Put(key, unbound); err != nil {
			return fmt.Errorf("lockservice: init lock %s: %w", ref, err)
		}
	}
	return nil
}

// Bucket returns the locks bucket name, exported so callers that share
// the underlying *bbolt.DB (the store package) can address it inside
// their own transactions without a second package-private constant.
func Bucket() []byte { return bucketLocks }

// LockKey exposes the key encoding to callers in the same module that
// need to read/write the locks bucket directly within a shared
// transaction (store.UpdateState).
func LockKey(ref objtype.Ref) []byte { return lockKey(ref) }
