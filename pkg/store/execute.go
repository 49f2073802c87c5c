package store

import (
	"bytes"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/certen/authority-core/pkg/lockservice"
	"github.com/certen/authority-core/pkg/objtype"
	"github.com/certen/authority-core/pkg/serialize"
)

// UpdateState is the single atomic commit point of the execution pipeline
// (spec.md §4.1): given a certificate and the effects/output objects its
// execution produced, it durably applies every one of:
//
//  1. writes each output object into objects/parent_sync, and into
//     owner_index when owned and live;
//  2. records tombstones in parent_sync for deleted/wrapped refs;
//  3. writes effects exactly once — a pre-existing effects record for the
//     same digest makes this call an idempotent no-op, which is how a
//     replayed or retried commit is made safe;
//  4. assigns (or reuses, on retry) a strictly monotonic executed-sequence
//     number and records the (digest, effects digest) entry;
//  5. advances the schedule table for every shared input to its
//     post-execution version, so a later revert attempt can detect it;
//  6. initializes locks for every owned output and deletes locks for
//     every owned input, rotating lock ownership to the new objects;
//
// all inside one bbolt transaction, under the per-object shard mutexes
// covering every ID the certificate's inputs and the effects' outputs
// touch, so no concurrent commit can interleave with this one over a
// shared object.
func (s *Store) UpdateState(cert Certificate, effects Effects, outputs []objtype.Object, nextExecutedSeq func() (uint64, error)) error {
	touched := touchedIDs(cert, effects)
	unlock := s.lock.LockShardsFor(touched)
	defer unlock()

	return s.db.Update(func(tx *bbolt.Tx) error {
		effectsB := tx.Bucket(bucketEffects)
		if effectsB.Get(effects.TransactionDigest[:]) != nil {
			return nil // already applied; idempotent retry
		}

		if err := rejectOwnershipCycles(tx, outputs); err != nil {
			return err
		}

		// Clear every ID's pre-commit owner_index entry before any
		// parent_sync writes below touch it, so the lookup inside
		// removeStalePriorOwnerIndex still sees the pre-commit owner
		// (spec.md:75: stale rows under a transfer's old owner, or a
		// deleted/wrapped output's owner, must not survive).
		for _, obj := range outputs {
			stillLive := obj.Owner.IsOwned() && obj.Live()
			if err := removeStalePriorOwnerIndex(tx, obj.Ref.ID, obj.Owner, stillLive); err != nil {
				return err
			}
		}
		for _, ref := range effects.Deleted {
			if err := removeStalePriorOwnerIndex(tx, ref.ID, objtype.Owner{}, false); err != nil {
				return err
			}
		}
		for _, ref := range effects.Wrapped {
			if err := removeStalePriorOwnerIndex(tx, ref.ID, objtype.Owner{}, false); err != nil {
				return err
			}
		}

		for _, obj := range outputs {
			if err := s.putObject(tx, obj); err != nil {
				return err
			}
		}
		for _, ref := range effects.Deleted {
			if err := recordTombstone(tx, ref, effects.TransactionDigest); err != nil {
				return err
			}
		}
		for _, ref := range effects.Wrapped {
			if err := recordTombstone(tx, ref, effects.TransactionDigest); err != nil {
				return err
			}
		}

		encEffects, err := serialize.JSON(effects)
		if err != nil {
			return fmt.Errorf("encode effects %s: %w", effects.TransactionDigest, err)
		}
		if err := effectsB.Put(effects.TransactionDigest[:], encEffects); err != nil {
			return fmt.Errorf("put effects %s: %w", effects.TransactionDigest, err)
		}

		// The envelope is removed once its effects are durable (§6
		// persisted state layout: "transactions | ... | removed on
		// execute"). Deleting an absent key is a harmless no-op, which
		// keeps this step safe to replay.
		if err := tx.Bucket(bucketTransactions).Delete(effects.TransactionDigest[:]); err != nil {
			return fmt.Errorf("remove envelope %s: %w", effects.TransactionDigest, err)
		}

		seq, err := s.lock.SequenceTransaction(tx, effects.TransactionDigest, nextExecutedSeq,
			cert.Data.OwnedInputs, ownedOutputRefs(outputs))
		if err != nil {
			return fmt.Errorf("sequence transaction %s: %w", effects.TransactionDigest, err)
		}
		sideSeq, err := tx.Bucket(bucketExecutedSequence).NextSequence()
		if err != nil {
			return fmt.Errorf("allocate side_sequence for %s: %w", effects.TransactionDigest, err)
		}
		entry := ExecutedSequenceEntry{TxDigest: effects.TransactionDigest, EffectsDigest: effects.Digest, SideSequence: sideSeq}
		encEntry, err := serialize.JSON(entry)
		if err != nil {
			return fmt.Errorf("encode executed_sequence entry: %w", err)
		}
		if err := tx.Bucket(bucketExecutedSequence).Put(serialize.BigEndianUint64(seq), encEntry); err != nil {
			return fmt.Errorf("put executed_sequence entry: %w", err)
		}

		if err := advanceSchedule(tx, cert.Data.SharedInputs, effects); err != nil {
			return err
		}

		return nil
	})
}

// maxOwnershipDepth bounds the ancestor walk rejectOwnershipCycles
// performs, so a very long (but acyclic) ownership chain fails closed
// with an error rather than a pathological-length transaction.
const maxOwnershipDepth = 64

// rejectOwnershipCycles walks the object-owner chain of every output
// that is itself object-owned, refusing to commit if that chain loops
// back onto the object itself. Child-owned objects form a forest under
// well-behaved use; this transaction's own outputs are consulted first
// (a parent object may be mutated in the same batch) before falling back
// to already-committed state.
func rejectOwnershipCycles(tx *bbolt.Tx, outputs []objtype.Object) error {
	byID := make(map[objtype.ID]objtype.Object, len(outputs))
	for _, obj := range outputs {
		byID[obj.Ref.ID] = obj
	}

	for _, obj := range outputs {
		if obj.Owner.Kind != objtype.OwnerKindObject {
			continue
		}
		if err := walkOwnershipChain(tx, byID, obj.Ref.ID, obj.Owner.ObjectOwner); err != nil {
			return err
		}
	}
	return nil
}

func walkOwnershipChain(tx *bbolt.Tx, byID map[objtype.ID]objtype.Object, origin, parent objtype.ID) error {
	for depth := 0; depth < maxOwnershipDepth; depth++ {
		if parent == origin {
			return fmt.Errorf("%w: object %s owns an ancestor that owns it back", ErrCircularObjectOwnership, origin)
		}
		var owner objtype.Owner
		if obj, ok := byID[parent]; ok {
			owner = obj.Owner
		} else {
			obj, found, err := getObjectInTx(tx, parent)
			if err != nil {
				return fmt.Errorf("walk ownership chain from %s: %w", origin, err)
			}
			if !found {
				return nil // dangling parent reference; not this check's concern
			}
			owner = obj.Owner
		}
		if owner.Kind != objtype.OwnerKindObject {
			return nil
		}
		parent = owner.ObjectOwner
	}
	return fmt.Errorf("%w: ownership chain from %s exceeds depth %d", ErrCircularObjectOwnership, origin, maxOwnershipDepth)
}

func touchedIDs(cert Certificate, effects Effects) []objtype.ID {
	seen := make(map[objtype.ID]struct{})
	for _, ref := range cert.Data.OwnedInputs {
		seen[ref.ID] = struct{}{}
	}
	for _, id := range cert.Data.SharedInputs {
		seen[id] = struct{}{}
	}
	for _, ref := range effects.AllMutatedOrDeletedRefs() {
		seen[ref.ID] = struct{}{}
	}
	for _, ref := range effects.Created {
		seen[ref.ID] = struct{}{}
	}
	out := make([]objtype.ID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	return out
}

func ownedOutputRefs(outputs []objtype.Object) []objtype.Ref {
	var out []objtype.Ref
	for _, obj := range outputs {
		if obj.Owner.IsOwned() {
			out = append(out, obj.Ref)
		}
	}
	return out
}

func recordTombstone(tx *bbolt.Tx, ref objtype.Ref, digest objtype.TxDigest) error {
	if err := tx.Bucket(bucketParentSync).Put(parentSyncKey(ref), digest[:]); err != nil {
		return fmt.Errorf("record tombstone %s: %w", ref, err)
	}
	return nil
}

// advanceSchedule bumps the recorded high-water version for every shared
// object this effects touched, keyed by object ID, so RevertStateUpdate
// can tell whether a later commit has already built on this one.
func advanceSchedule(tx *bbolt.Tx, sharedInputs []objtype.ID, effects Effects) error {
	if len(sharedInputs) == 0 {
		return nil
	}
	shared := make(map[objtype.ID]struct{}, len(sharedInputs))
	for _, id := range sharedInputs {
		shared[id] = struct{}{}
	}
	scheduleB := tx.Bucket(bucketSchedule)
	for _, ref := range effects.AllMutatedOrDeletedRefs() {
		if _, ok := shared[ref.ID]; !ok {
			continue
		}
		key := ref.ID[:]
		current := uint64(0)
		if v := scheduleB.Get(key); v != nil {
			parsed, err := serialize.ParseBigEndianUint64(v)
			if err != nil {
				return fmt.Errorf("decode schedule entry for %s: %w", ref.ID, err)
			}
			current = parsed
		}
		if uint64(ref.Version) > current {
			if err := scheduleB.Put(key, serialize.BigEndianUint64(uint64(ref.Version))); err != nil {
				return fmt.Errorf("advance schedule for %s: %w", ref.ID, err)
			}
		}
	}
	return nil
}

// RevertStateUpdate undoes a previously applied UpdateState for digest,
// used by epoch close to discard a certificate that was sequenced by
// consensus but never finished executing before the epoch ended. It
// refuses — atomically, leaving no partial effect — if any shared object
// the transaction touched has a schedule entry strictly newer than the
// version this transaction assigned it, per SPEC_FULL.md §5 Open
// Question 2: a later transaction may already have built its own version
// on top of this one's output, and rewinding would make that version
// available for reuse.
func (s *Store) RevertStateUpdate(cert Certificate, effects Effects) error {
	touched := touchedIDs(cert, effects)
	unlock := s.lock.LockShardsFor(touched)
	defer unlock()

	return s.db.Update(func(tx *bbolt.Tx) error {
		shared := make(map[objtype.ID]struct{}, len(cert.Data.SharedInputs))
		for _, id := range cert.Data.SharedInputs {
			shared[id] = struct{}{}
		}
		scheduleB := tx.Bucket(bucketSchedule)
		for _, ref := range effects.AllMutatedOrDeletedRefs() {
			if _, ok := shared[ref.ID]; !ok {
				continue
			}
			v := scheduleB.Get(ref.ID[:])
			if v == nil {
				continue
			}
			current, err := serialize.ParseBigEndianUint64(v)
			if err != nil {
				return fmt.Errorf("decode schedule entry for %s: %w", ref.ID, err)
			}
			if current > uint64(ref.Version) {
				return ErrRevertSharedObjectAdvanced
			}
		}

		effectsB := tx.Bucket(bucketEffects)
		if effectsB.Get(effects.TransactionDigest[:]) == nil {
			return nil // nothing to revert
		}
		if err := effectsB.Delete(effects.TransactionDigest[:]); err != nil {
			return fmt.Errorf("delete effects %s: %w", effects.TransactionDigest, err)
		}

		objectsB := tx.Bucket(bucketObjects)
		parentB := tx.Bucket(bucketParentSync)
		ownerB := tx.Bucket(bucketOwnerIndex)
		for _, ref := range effects.Created {
			if err := removeObjectState(objectsB, parentB, ownerB, ref); err != nil {
				return err
			}
		}
		for _, ref := range effects.Mutated {
			if err := removeObjectState(objectsB, parentB, ownerB, ref); err != nil {
				return err
			}
		}
		for _, ref := range append(append([]objtype.Ref{}, effects.Deleted...), effects.Wrapped...) {
			if err := parentB.Delete(parentSyncKey(ref)); err != nil {
				return fmt.Errorf("revert tombstone %s: %w", ref, err)
			}
		}

		locksB := tx.Bucket(lockservice.Bucket())
		for _, ref := range append(append([]objtype.Ref{}, effects.Created...), effects.Mutated...) {
			// Delete is a no-op for refs that were never owned (shared or
			// immutable objects never have a locks-bucket entry).
			if err := locksB.Delete(lockKeyOf(ref)); err != nil {
				return fmt.Errorf("revert output lock %s: %w", ref, err)
			}
		}
		for _, ref := range cert.Data.OwnedInputs {
			if err := locksB.Put(lockKeyOf(ref), cert.TxDigest[:]); err != nil {
				return fmt.Errorf("restore input lock %s: %w", ref, err)
			}
		}

		return nil
	})
}

func removeObjectState(objectsB, parentB, ownerB *bbolt.Bucket, ref objtype.Ref) error {
	if err := objectsB.Delete(objectKey(ref.ID, ref.Version)); err != nil {
		return fmt.Errorf("revert object %s: %w", ref, err)
	}
	if err := parentB.Delete(parentSyncKey(ref)); err != nil {
		return fmt.Errorf("revert parent_sync %s: %w", ref, err)
	}
	if err := deleteOwnerIndexEntryByID(ownerB, ref.ID); err != nil {
		return fmt.Errorf("revert owner_index %s: %w", ref, err)
	}
	return restorePriorOwnerIndex(objectsB, parentB, ownerB, ref.ID)
}

// deleteOwnerIndexEntryByID removes whatever owner_index row id currently
// has, found by scanning for its id-suffixed key, since the caller only
// knows the id, not the owner-prefix half of the key.
func deleteOwnerIndexEntryByID(ownerB *bbolt.Bucket, id objtype.ID) error {
	c := ownerB.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		if bytes.HasSuffix(k, id[:]) {
			return ownerB.Delete(k)
		}
	}
	return nil
}

// restorePriorOwnerIndex rewrites the owner_index to the pre-execution
// state for id (spec.md:85), reading whatever parent_sync entry is now
// the latest after removeObjectState deleted the reverted version — the
// pre-execution version, whose row a normal UpdateState never deletes
// from objectsB. A freshly created id has no earlier entry and nothing
// to restore.
func restorePriorOwnerIndex(objectsB, parentB, ownerB *bbolt.Bucket, id objtype.ID) error {
	prior, found := latestParentEntryInBucket(parentB, id)
	if !found {
		return nil
	}
	v := objectsB.Get(objectKey(id, prior.Version))
	if v == nil {
		return nil
	}
	var obj objtype.Object
	if err := serialize.FromJSON(v, &obj); err != nil {
		return fmt.Errorf("decode prior object %s: %w", id, err)
	}
	if !obj.Owner.IsOwned() || !obj.Live() {
		return nil
	}
	info := ObjectInfo{Ref: obj.Ref, Owner: obj.Owner, TypeTag: obj.TypeTag}
	enc, err := serialize.JSON(info)
	if err != nil {
		return fmt.Errorf("encode restored owner_index entry %s: %w", id, err)
	}
	if err := ownerB.Put(ownerIndexKey(obj.Owner, id), enc); err != nil {
		return fmt.Errorf("put restored owner_index entry %s: %w", id, err)
	}
	return nil
}

func lockKeyOf(ref objtype.Ref) []byte {
	return lockservice.LockKey(ref)
}
