package store

import (
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/certen/authority-core/pkg/lockservice"
	"github.com/certen/authority-core/pkg/objtype"
	"github.com/certen/authority-core/pkg/serialize"
)

var keyLastRecovery = []byte("last_recovery")

// recover runs on every Open and re-establishes the invariants the rest
// of this package assumes, the way the original's AuthorityStore::recover
// does after a validator restart. bbolt's own write-ahead log already
// guarantees no torn page survives a crash — every bbolt.Update either
// fully committed or never happened — so there is no byte-level WAL to
// replay here. What recover does check is the application-level
// invariant that a committed state transition always leaves the store in
// a state GetTransactionEnvelope/GetPendingCertificates can make sense
// of: a bound lock with no envelope, or a pending entry with no backing
// certificate, both indicate corruption rather than a legitimate
// in-flight state and are reported as an InvariantViolation rather than
// silently skipped.
func (s *Store) recover() error {
	if err := s.checkBoundLocksHaveEnvelopes(); err != nil {
		return err
	}
	if _, err := s.GetPendingCertificates(); err != nil {
		return fmt.Errorf("store: recover: pending certificate queue: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		enc, err := serialize.JSON(time.Now().UTC())
		if err != nil {
			return fmt.Errorf("encode recovery timestamp: %w", err)
		}
		return tx.Bucket(bucketRecoveryLog).Put(keyLastRecovery, enc)
	})
}

func (s *Store) checkBoundLocksHaveEnvelopes() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		locksB := tx.Bucket(lockservice.Bucket())
		txB := tx.Bucket(bucketTransactions)
		c := locksB.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if len(v) == 0 {
				continue // unbound lock, nothing to cross-check
			}
			var digest objtype.TxDigest
			copy(digest[:], v)
			if txB.Get(digest[:]) == nil {
				return invariantViolation("recover",
					fmt.Errorf("lock %x bound to %s with no stored envelope", k, digest))
			}
		}
		return nil
	})
}

// LastRecoveryTime returns the timestamp of the most recent successful
// Open/recover cycle, mainly useful in diagnostics and tests.
func (s *Store) LastRecoveryTime() (time.Time, bool, error) {
	var t time.Time
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketRecoveryLog).Get(keyLastRecovery)
		if v == nil {
			return nil
		}
		found = true
		return serialize.FromJSON(v, &t)
	})
	if err != nil {
		return time.Time{}, false, fmt.Errorf("store: last_recovery_time: %w", err)
	}
	return t, found, nil
}
