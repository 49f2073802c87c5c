// Copyright 2025 Certen Protocol
//
// Package sharedseq converts the consensus engine's total order into
// strictly monotonic per-object versions for shared objects (spec.md
// §4.4). Unlike owned objects, whose next version is fixed by whichever
// transaction the client locked them to, a shared object's next version
// is not known until consensus orders the transactions that read it —
// this package is where that ordering becomes a version assignment.
//
// There is no equivalent component in the teacher repo, which has no
// shared-object concept; the algorithm here is ported directly from the
// original's persist_certificate_and_lock_shared_objects and
// remove_shared_objects_locks (authority_store.rs).
package sharedseq

import (
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/certen/authority-core/pkg/objtype"
	"github.com/certen/authority-core/pkg/serialize"
	"github.com/certen/authority-core/pkg/store"
)

// Sequencer assigns and releases shared-object version locks against a
// store's sequenced/schedule tables.
type Sequencer struct {
	s *store.Store
}

// New wraps a store for shared-object sequencing.
func New(s *store.Store) *Sequencer {
	return &Sequencer{s: s}
}

// PersistCertificateAndLockSharedObjects is called once per consensus
// commit for every certificate consensus output contains a sequenced
// position for. It assigns each shared input the version currently
// recorded in the schedule table (or objtype.ObjectStartVersion if this
// is the object's first-ever sequencing), advances the schedule to the
// next version, and persists both the certificate and the last consensus
// index in the same atomic transaction — so a crash between sequencing a
// batch of certificates and recording how far consensus has been
// processed can never replay or skip one.
func (q *Sequencer) PersistCertificateAndLockSharedObjects(cert store.Certificate, idx store.ConsensusIndex) error {
	return q.s.WithTx(func(tx *bbolt.Tx) error {
		if err := store.PutCertificateTx(tx, cert); err != nil {
			return fmt.Errorf("sharedseq: persist certificate %s: %w", cert.TxDigest, err)
		}

		scheduleB := tx.Bucket(store.ScheduleBucket())
		sequencedB := tx.Bucket(store.SequencedBucket())
		for _, id := range cert.Data.SharedInputs {
			version := objtype.ObjectStartVersion
			if v := scheduleB.Get(id[:]); v != nil {
				parsed, err := serialize.ParseBigEndianUint64(v)
				if err != nil {
					return fmt.Errorf("decode schedule entry for %s: %w", id, err)
				}
				version = objtype.Version(parsed)
			}

			if err := sequencedB.Put(store.SequencedKeyFor(cert.TxDigest, id), serialize.BigEndianUint64(uint64(version))); err != nil {
				return fmt.Errorf("assign sequenced version for %s: %w", id, err)
			}
			next := version.Increment()
			if err := scheduleB.Put(id[:], serialize.BigEndianUint64(uint64(next))); err != nil {
				return fmt.Errorf("advance schedule for %s: %w", id, err)
			}
		}

		if err := q.s.SetLastConsensusIndex(tx, idx); err != nil {
			return fmt.Errorf("sharedseq: %w", err)
		}
		return nil
	})
}

// RemoveSharedObjectsLocks releases the sequenced-table entries a
// transaction's shared inputs held once its execution has committed
// (spec.md §4.4: "released once the transaction's effects are durable").
// A shared object's schedule entry is removed alongside only if the
// object was never actually created — a transaction can name a shared
// input that turns out not to exist yet, and in that narrow case there is
// nothing left to schedule against.
func (q *Sequencer) RemoveSharedObjectsLocks(digest objtype.TxDigest, sharedInputs []objtype.ID) error {
	return q.s.WithTx(func(tx *bbolt.Tx) error {
		sequencedB := tx.Bucket(store.SequencedBucket())
		scheduleB := tx.Bucket(store.ScheduleBucket())
		for _, id := range sharedInputs {
			if err := sequencedB.Delete(store.SequencedKeyFor(digest, id)); err != nil {
				return fmt.Errorf("sharedseq: delete sequenced entry for %s: %w", id, err)
			}
			if _, exists := store.LatestParentEntryTx(tx, id); !exists {
				if err := scheduleB.Delete(id[:]); err != nil {
					return fmt.Errorf("sharedseq: delete schedule entry for %s: %w", id, err)
				}
			}
		}
		return nil
	})
}

// Sequenced returns the version assigned to each of ids for digest, in
// the same order, with ok[i] false where no assignment exists.
func (q *Sequencer) Sequenced(digest objtype.TxDigest, ids []objtype.ID) ([]objtype.Version, []bool, error) {
	versions := make([]objtype.Version, len(ids))
	oks := make([]bool, len(ids))
	err := q.s.DB().View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(store.SequencedBucket())
		for i, id := range ids {
			v := b.Get(store.SequencedKeyFor(digest, id))
			if v == nil {
				continue
			}
			parsed, err := serialize.ParseBigEndianUint64(v)
			if err != nil {
				return fmt.Errorf("decode sequenced entry for %s: %w", id, err)
			}
			versions[i] = objtype.Version(parsed)
			oks[i] = true
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("sharedseq: sequenced: %w", err)
	}
	return versions, oks, nil
}

// SharedLock pairs a shared object ID with its assigned version.
type SharedLock struct {
	ID      objtype.ID
	Version objtype.Version
}

// AllSharedLocks returns every shared-object lock held by digest.
func (q *Sequencer) AllSharedLocks(digest objtype.TxDigest) ([]SharedLock, error) {
	var out []SharedLock
	err := q.s.DB().View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(store.SequencedBucket()).Cursor()
		prefix := store.SequencedPrefixFor(digest)
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var id objtype.ID
			copy(id[:], k[len(prefix):])
			version, err := serialize.ParseBigEndianUint64(v)
			if err != nil {
				return fmt.Errorf("decode sequenced entry: %w", err)
			}
			out = append(out, SharedLock{ID: id, Version: objtype.Version(version)})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sharedseq: all_shared_locks: %w", err)
	}
	return out, nil
}

func hasPrefix(k, prefix []byte) bool {
	if len(k) < len(prefix) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}
