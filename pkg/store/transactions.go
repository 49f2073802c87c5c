package store

import (
	"bytes"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/certen/authority-core/pkg/lockservice"
	"github.com/certen/authority-core/pkg/objtype"
	"github.com/certen/authority-core/pkg/serialize"
)

// transactionEnvelopeRetries/Delay bound GetTransactionEnvelope's retry of
// a lock that exists but whose envelope has not yet committed — a narrow
// window between AcquireLocks and the envelope write in a racing
// LockAndWriteTransaction call (spec.md §7: bounded retry, not an
// indefinite wait).
const (
	transactionEnvelopeRetries = 3
	transactionEnvelopeDelay   = 10 * time.Millisecond
)

// LockAndWriteTransaction is the client-facing entry point for a new
// transaction: it binds every owned input's lock to txDigest and persists
// the envelope in one atomic bbolt transaction. A ref already bound to a
// different digest fails the whole call with ErrTransactionLockConflict
// (equivocation); a ref bound to the same digest makes this a no-op retry
// that still succeeds.
func (s *Store) LockAndWriteTransaction(env Envelope) error {
	unlock := s.lock.LockShardsFor(refIDs(env.Data.OwnedInputs))
	defer unlock()

	return s.db.Update(func(tx *bbolt.Tx) error {
		locksB := tx.Bucket(lockservice.Bucket())
		for _, ref := range env.Data.OwnedInputs {
			key := lockservice.LockKey(ref)
			existing := locksB.Get(key)
			if existing == nil {
				return fmt.Errorf("%w: %s", ErrNotFound, ref)
			}
			if len(existing) > 0 && !bytes.Equal(existing, env.Digest[:]) {
				return fmt.Errorf("%w: %s", ErrTransactionLockConflict, ref)
			}
		}
		for _, ref := range env.Data.OwnedInputs {
			if err := locksB.Put(lockservice.LockKey(ref), env.Digest[:]); err != nil {
				return fmt.Errorf("bind lock %s: %w", ref, err)
			}
		}

		enc, err := serialize.JSON(env)
		if err != nil {
			return fmt.Errorf("encode envelope %s: %w", env.Digest, err)
		}
		if err := tx.Bucket(bucketTransactions).Put(env.Digest[:], enc); err != nil {
			return fmt.Errorf("put envelope %s: %w", env.Digest, err)
		}
		return nil
	})
}

func refIDs(refs []objtype.Ref) []objtype.ID {
	ids := make([]objtype.ID, len(refs))
	for i, r := range refs {
		ids[i] = r.ID
	}
	return ids
}

// GetTransactionEnvelope reads back a previously written envelope,
// retrying a short bounded number of times whenever no envelope is
// stored for digest (see transactionEnvelopeRetries); the retry does not
// check whether any lock is bound to digest.
func (s *Store) GetTransactionEnvelope(digest objtype.TxDigest) (Envelope, error) {
	var env Envelope
	var err error
	for attempt := 0; attempt < transactionEnvelopeRetries; attempt++ {
		err = s.db.View(func(tx *bbolt.Tx) error {
			v := tx.Bucket(bucketTransactions).Get(digest[:])
			if v == nil {
				return fmt.Errorf("%w: %s", ErrTransactionNotFound, digest)
			}
			return serialize.FromJSON(v, &env)
		})
		if err == nil {
			return env, nil
		}
		if attempt < transactionEnvelopeRetries-1 {
			time.Sleep(transactionEnvelopeDelay)
		}
	}
	return Envelope{}, fmt.Errorf("store: get_transaction_envelope %s: %w", digest, err)
}

// TransactionExists reports whether an envelope has been stored for digest.
func (s *Store) TransactionExists(digest objtype.TxDigest) (bool, error) {
	exists := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		exists = tx.Bucket(bucketTransactions).Get(digest[:]) != nil
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("store: transaction_exists %s: %w", digest, err)
	}
	return exists, nil
}

// AddPendingCertificates enqueues certificates for the execution driver
// to consume, assigning each a monotonic pending-sequence key so
// GetPendingCertificates can resume an ordered scan after a crash.
func (s *Store) AddPendingCertificates(certs []Certificate) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		singleton := tx.Bucket(bucketSingleton)
		pending := tx.Bucket(bucketPendingExecution)
		certsB := tx.Bucket(bucketCertificates)

		counter := uint64(0)
		if v := singleton.Get(keyPendingSeqCounter); v != nil {
			c, err := serialize.ParseBigEndianUint64(v)
			if err != nil {
				return fmt.Errorf("decode pending seq counter: %w", err)
			}
			counter = c
		}

		for _, cert := range certs {
			if certsB.Get(cert.TxDigest[:]) == nil {
				enc, err := serialize.JSON(cert)
				if err != nil {
					return fmt.Errorf("encode certificate %s: %w", cert.TxDigest, err)
				}
				if err := certsB.Put(cert.TxDigest[:], enc); err != nil {
					return fmt.Errorf("put certificate %s: %w", cert.TxDigest, err)
				}
			}
			key := serialize.BigEndianUint64(counter)
			if err := pending.Put(key, cert.TxDigest[:]); err != nil {
				return fmt.Errorf("put pending entry for %s: %w", cert.TxDigest, err)
			}
			counter++
		}
		return singleton.Put(keyPendingSeqCounter, serialize.BigEndianUint64(counter))
	})
	if err != nil {
		return fmt.Errorf("store: add_pending_certificates: %w", err)
	}
	s.notifyPendingChanged()
	return nil
}

// GetPendingCertificates returns every certificate still queued for
// execution, in the order they were added.
func (s *Store) GetPendingCertificates() ([]Certificate, error) {
	var out []Certificate
	err := s.db.View(func(tx *bbolt.Tx) error {
		pending := tx.Bucket(bucketPendingExecution)
		certsB := tx.Bucket(bucketCertificates)
		c := pending.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var digest objtype.TxDigest
			copy(digest[:], v)
			encCert := certsB.Get(digest[:])
			if encCert == nil {
				return invariantViolation("get_pending_certificates",
					fmt.Errorf("pending entry %x references missing certificate %s", k, digest))
			}
			var cert Certificate
			if err := serialize.FromJSON(encCert, &cert); err != nil {
				return fmt.Errorf("decode certificate %s: %w", digest, err)
			}
			out = append(out, cert)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: get_pending_certificates: %w", err)
	}
	return out, nil
}

// RemovePendingCertificates drops the pending_execution entries for the
// given digests once the execution driver has committed their effects.
// The certificate itself remains in bucketCertificates for audit lookups.
func (s *Store) RemovePendingCertificates(digests []objtype.TxDigest) error {
	want := make(map[objtype.TxDigest]struct{}, len(digests))
	for _, d := range digests {
		want[d] = struct{}{}
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		pending := tx.Bucket(bucketPendingExecution)
		c := pending.Cursor()
		var toDelete [][]byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var digest objtype.TxDigest
			copy(digest[:], v)
			if _, ok := want[digest]; ok {
				toDelete = append(toDelete, append([]byte{}, k...))
			}
		}
		for _, k := range toDelete {
			if err := pending.Delete(k); err != nil {
				return fmt.Errorf("delete pending entry %x: %w", k, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: remove_pending_certificates: %w", err)
	}
	s.notifyPendingChanged()
	return nil
}

// RemoveAllPendingCertificates drains the entire pending queue, used at
// epoch close once execution has been halted.
func (s *Store) RemoveAllPendingCertificates() error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketPendingExecution); err != nil && err != bbolt.ErrBucketNotFound {
			return err
		}
		_, err := tx.CreateBucket(bucketPendingExecution)
		return err
	})
	if err != nil {
		return fmt.Errorf("store: remove_all_pending_certificates: %w", err)
	}
	s.notifyPendingChanged()
	return nil
}

// ReadCertificate returns a previously stored certificate by digest.
func (s *Store) ReadCertificate(digest objtype.TxDigest) (Certificate, error) {
	var cert Certificate
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketCertificates).Get(digest[:])
		if v == nil {
			return fmt.Errorf("%w: certificate %s", ErrNotFound, digest)
		}
		return serialize.FromJSON(v, &cert)
	})
	if err != nil {
		return Certificate{}, fmt.Errorf("store: read_certificate %s: %w", digest, err)
	}
	return cert, nil
}

// ResetTransactionLock rolls back a speculative client-side lock
// acquisition when a transaction is rejected before certification
// (SPEC_FULL.md §4 supplemented feature): every owned input's lock is
// force-reset to unbound, discarding any binding to digest.
func (s *Store) ResetTransactionLock(digest objtype.TxDigest, ownedInputs []objtype.Ref) error {
	unlock := s.lock.LockShardsFor(refIDs(ownedInputs))
	defer unlock()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		locksB := tx.Bucket(lockservice.Bucket())
		for _, ref := range ownedInputs {
			key := lockservice.LockKey(ref)
			existing := locksB.Get(key)
			if existing != nil && bytes.Equal(existing, digest[:]) {
				if err := locksB.Put(key, []byte{}); err != nil {
					return fmt.Errorf("reset lock %s: %w", ref, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: reset_transaction_lock %s: %w", digest, err)
	}
	return nil
}
