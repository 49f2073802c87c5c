package lockservice

import (
	"encoding/binary"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/certen/authority-core/pkg/objtype"
)

var bucketExecutedSeqAssignment = []byte("lockservice_executed_seq_assignment")

// Open creates only the locks bucket; the assignment bucket is created
// on first use, by SequenceTransaction calling ensureBuckets inside its
// caller's transaction.
func init() {
	// no-op: bucket creation happens in SequenceTransaction via ensureBuckets, see below.
}

func ensureBuckets(tx *bbolt.Tx) error {
	if _, err := tx.CreateBucketIfNotExists(bucketLocks); err != nil {
		return err
	}
	_, err := tx.CreateBucketIfNotExists(bucketExecutedSeqAssignment)
	return err
}

// SequenceTransaction atomically, within the caller-supplied transaction:
//  1. assigns the next executed-sequence number for txDigest if not
//     already assigned, returning the existing one on retry;
//  2. initializes locks for newOutputs;
//  3. deletes the locks for ownedInputs.
//
// It is called exactly once per executed transaction by store.UpdateState
// but must be idempotent on retry (spec.md §4.2), since recovery may
// replay a partially-applied update_state.
func (s *Service) SequenceTransaction(
	tx *bbolt.Tx,
	txDigest objtype.TxDigest,
	nextSeq func() (uint64, error),
	ownedInputs, newOutputs []objtype.Ref,
) (assignedSeq uint64, err error) {
	if err := ensureBuckets(tx); err != nil {
		return 0, fmt.Errorf("lockservice: sequence_transaction: %w", err)
	}

	assignB := tx.Bucket(bucketExecutedSeqAssignment)
	if existing := assignB.Get(txDigest[:]); existing != nil {
		assignedSeq = binary.BigEndian.Uint64(existing)
	} else {
		assignedSeq, err = nextSeq()
		if err != nil {
			return 0, fmt.Errorf("lockservice: allocate executed sequence: %w", err)
		}
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], assignedSeq)
		if err := assignB.Put(txDigest[:], buf[:]); err != nil {
			return 0, fmt.Errorf("lockservice: persist executed sequence assignment: %w", err)
		}
	}

	locksB := tx.Bucket(bucketLocks)
	for _, ref := range newOutputs {
		key := lockKey(ref)
		if existing := locksB.Get(key); existing == nil {
			if err := locksB.Put(key, unbound); err != nil {
				return 0, fmt.Errorf("lockservice: init output lock %s: %w", ref, err)
			}
		}
	}
	for _, ref := range ownedInputs {
		if err := locksB.Delete(lockKey(ref)); err != nil {
			return 0, fmt.Errorf("lockservice: delete spent lock %s: %w", ref, err)
		}
	}

	return assignedSeq, nil
}
