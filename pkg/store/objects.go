package store

import (
	"bytes"
	"errors"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/certen/authority-core/pkg/objtype"
	"github.com/certen/authority-core/pkg/serialize"
)

// InsertGenesisObject writes an object at its starting version directly,
// bypassing lock acquisition and transaction bookkeeping. Used only
// during chain genesis and in tests that need to seed object state.
func (s *Store) InsertGenesisObject(obj objtype.Object) error {
	if obj.Ref.Version != objtype.ObjectStartVersion {
		return invariantViolation("insert_genesis_object",
			fmt.Errorf("object %s must start at version %d, got %d", obj.Ref.ID, objtype.ObjectStartVersion, obj.Ref.Version))
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return s.putObject(tx, obj)
	})
}

// BulkObjectInsert writes many objects in one batch, for snapshot
// restoration. Each must already carry a consistent ref.
func (s *Store) BulkObjectInsert(objs []objtype.Object) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, obj := range objs {
			if err := s.putObject(tx, obj); err != nil {
				return err
			}
		}
		return nil
	})
}

// removeStalePriorOwnerIndex looks up id's owner_index entry as it stood
// before this commit and deletes it if id no longer lives there: either
// because ownership moved to newOwner (a transfer) or because stillLive
// is false (the output was deleted or wrapped). ownerIndexKey is keyed by
// (owner, id), so a transfer's new entry lands under a disjoint key and
// the old owner's row would otherwise never be reclaimed (spec.md:75).
// Must run before putObject/tombstone writes touch id's parent_sync
// entries, so the lookup still observes the pre-commit owner.
func removeStalePriorOwnerIndex(tx *bbolt.Tx, id objtype.ID, newOwner objtype.Owner, stillLive bool) error {
	prior, found, err := getObjectInTx(tx, id)
	if err != nil {
		return fmt.Errorf("look up prior owner_index state for %s: %w", id, err)
	}
	if !found || !prior.Owner.IsOwned() {
		return nil
	}
	if stillLive && bytes.Equal(ownerPrefix(prior.Owner), ownerPrefix(newOwner)) {
		return nil // same owner, same key: putObject's overwrite covers it
	}
	if err := tx.Bucket(bucketOwnerIndex).Delete(ownerIndexKey(prior.Owner, id)); err != nil {
		return fmt.Errorf("remove stale owner_index entry for %s: %w", id, err)
	}
	return nil
}

func (s *Store) putObject(tx *bbolt.Tx, obj objtype.Object) error {
	enc, err := serialize.JSON(obj)
	if err != nil {
		return fmt.Errorf("encode object %s: %w", obj.Ref, err)
	}
	objectsB := tx.Bucket(bucketObjects)
	if err := objectsB.Put(objectKey(obj.Ref.ID, obj.Ref.Version), enc); err != nil {
		return fmt.Errorf("put object %s: %w", obj.Ref, err)
	}
	parentB := tx.Bucket(bucketParentSync)
	if err := parentB.Put(parentSyncKey(obj.Ref), obj.PrevTxn[:]); err != nil {
		return fmt.Errorf("put parent_sync %s: %w", obj.Ref, err)
	}
	if obj.Owner.IsOwned() && obj.Live() {
		ownerB := tx.Bucket(bucketOwnerIndex)
		info := ObjectInfo{Ref: obj.Ref, Owner: obj.Owner, TypeTag: obj.TypeTag}
		encInfo, err := serialize.JSON(info)
		if err != nil {
			return fmt.Errorf("encode owner_index entry %s: %w", obj.Ref, err)
		}
		if err := ownerB.Put(ownerIndexKey(obj.Owner, obj.Ref.ID), encInfo); err != nil {
			return fmt.Errorf("put owner_index %s: %w", obj.Ref, err)
		}
	}
	return nil
}

// GetObject returns the live object at its current version, as recorded
// by the most recent parent_sync entry. Mirrors the original's two-read
// race (SPEC_FULL.md §5 Open Question 3): the parent_sync lookup and the
// objects-table read run in separate read transactions, so a commit
// landing between them is not seen and the call returns the older
// version, and a RevertStateUpdate landing between them (which deletes
// the reverted version's row) makes the call return ErrNotFound.
func (s *Store) GetObject(id objtype.ID) (objtype.Object, error) {
	var latest objtype.Ref
	var found bool
	if err := s.db.View(func(tx *bbolt.Tx) error {
		latest, found = latestParentEntry(tx, id)
		return nil
	}); err != nil {
		return objtype.Object{}, fmt.Errorf("store: get_object %s: %w", id, err)
	}
	if !found {
		return objtype.Object{}, fmt.Errorf("%w: object %s", ErrNotFound, id)
	}

	var obj objtype.Object
	if err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketObjects).Get(objectKey(id, latest.Version))
		if v == nil {
			return fmt.Errorf("%w: object %s at version %d", ErrNotFound, id, latest.Version)
		}
		return serialize.FromJSON(v, &obj)
	}); err != nil {
		return objtype.Object{}, fmt.Errorf("store: get_object %s: %w", id, err)
	}
	return obj, nil
}

// GetObjects fetches several objects, returning a parallel slice where
// unresolved entries are the zero Object with ok=false, so a caller
// building a batch response can distinguish "missing" from an error that
// should abort the whole request.
func (s *Store) GetObjects(ids []objtype.ID) ([]objtype.Object, []bool, error) {
	objs := make([]objtype.Object, len(ids))
	oks := make([]bool, len(ids))
	for i, id := range ids {
		obj, err := s.GetObject(id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		objs[i] = obj
		oks[i] = true
	}
	return objs, oks, nil
}

// latestParentEntry scans the parent_sync table's id-prefixed range and
// returns the ref with the highest version, i.e. get_latest_parent_entry.
// The key alone carries (id, version, digest); the value is the digest of
// the transaction that produced this version (prev_txn), used only by
// callers that need provenance, not by version resolution.
func latestParentEntry(tx *bbolt.Tx, id objtype.ID) (objtype.Ref, bool) {
	return latestParentEntryInBucket(tx.Bucket(bucketParentSync), id)
}

// latestParentEntryInBucket is latestParentEntry's bucket-scoped form, for
// callers (RevertStateUpdate's owner_index restoration) that already hold
// the parent_sync bucket handle and must observe it mid-transaction, after
// some of its entries have just been deleted.
func latestParentEntryInBucket(parentB *bbolt.Bucket, id objtype.ID) (objtype.Ref, bool) {
	c := parentB.Cursor()
	prefix := id[:]
	var best objtype.Ref
	found := false
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		version, err := serialize.ParseBigEndianUint64(k[len(prefix) : len(prefix)+8])
		if err != nil {
			continue
		}
		var digest objtype.Digest
		copy(digest[:], k[len(prefix)+8:])
		if !found || objtype.Version(version) > best.Version {
			best = objtype.Ref{ID: id, Version: objtype.Version(version), Digest: digest}
			found = true
		}
	}
	return best, found
}

// getObjectInTx resolves id to its latest live object using tx directly,
// for callers already inside a bbolt transaction (UpdateState's
// ownership-cycle check) that must not nest another db.View.
func getObjectInTx(tx *bbolt.Tx, id objtype.ID) (objtype.Object, bool, error) {
	ref, found := latestParentEntry(tx, id)
	if !found {
		return objtype.Object{}, false, nil
	}
	v := tx.Bucket(bucketObjects).Get(objectKey(id, ref.Version))
	if v == nil {
		return objtype.Object{}, false, nil
	}
	var obj objtype.Object
	if err := serialize.FromJSON(v, &obj); err != nil {
		return objtype.Object{}, false, fmt.Errorf("decode object %s: %w", id, err)
	}
	return obj, true, nil
}

// GetLatestParentEntry is the exported form of latestParentEntry.
func (s *Store) GetLatestParentEntry(id objtype.ID) (objtype.Ref, bool, error) {
	var ref objtype.Ref
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		ref, found = latestParentEntry(tx, id)
		return nil
	})
	if err != nil {
		return objtype.Ref{}, false, fmt.Errorf("store: get_latest_parent_entry %s: %w", id, err)
	}
	return ref, found, nil
}

// GetOwnerObjects lists every live object indexed under owner.
func (s *Store) GetOwnerObjects(owner objtype.Owner) ([]ObjectInfo, error) {
	var out []ObjectInfo
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketOwnerIndex).Cursor()
		prefix := ownerPrefix(owner)
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var info ObjectInfo
			if err := serialize.FromJSON(v, &info); err != nil {
				return fmt.Errorf("decode owner_index entry: %w", err)
			}
			out = append(out, info)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: get_owner_objects: %w", err)
	}
	return out, nil
}

// DatabaseIsEmpty reports whether the objects table has never been
// written to, used to distinguish genesis startup from a crash restart.
func (s *Store) DatabaseIsEmpty() (bool, error) {
	empty := true
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketObjects).Cursor()
		if k, _ := c.First(); k != nil {
			empty = false
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("store: database_is_empty: %w", err)
	}
	return empty, nil
}
