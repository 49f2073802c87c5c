package store

import (
	"github.com/certen/authority-core/pkg/objtype"
	"github.com/certen/authority-core/pkg/serialize"
)

// Bucket names, one per logical column family in spec.md §6. Kept as raw
// byte slices the way the teacher's pkg/ledger/store.go keys its tables
// (a []byte constant per logical table, rather than a string enum).
var (
	bucketObjects          = []byte("objects")
	bucketTransactions     = []byte("transactions")
	bucketCertificates     = []byte("certificates")
	bucketPendingExecution = []byte("pending_execution")
	bucketParentSync       = []byte("parent_sync")
	bucketEffects          = []byte("effects")
	bucketOwnerIndex       = []byte("owner_index")
	bucketSequenced        = []byte("sequenced")
	bucketSchedule         = []byte("schedule")
	bucketExecutedSequence = []byte("executed_sequence")
	bucketBatches          = []byte("batches")
	bucketSingleton        = []byte("singleton")
	bucketEpochs           = []byte("epochs")
	bucketRecoveryLog      = []byte("recovery_log")

	allBuckets = [][]byte{
		bucketObjects, bucketTransactions, bucketCertificates,
		bucketPendingExecution, bucketParentSync, bucketEffects,
		bucketOwnerIndex, bucketSequenced, bucketSchedule,
		bucketExecutedSequence, bucketBatches, bucketSingleton,
		bucketEpochs, bucketRecoveryLog,
	}

	keyLastConsensusIndex = []byte("last_consensus_index")
	keyPendingSeqCounter  = []byte("pending_seq_counter")
)

// objectKey is the (id, version) key used by the objects table.
func objectKey(id objtype.ID, v objtype.Version) []byte {
	return serialize.Concat(id[:], serialize.BigEndianUint64(uint64(v)))
}

// parentSyncKey is the (id, version, digest) key used by the parent_sync
// table; it includes tombstones.
func parentSyncKey(ref objtype.Ref) []byte {
	return serialize.Concat(ref.ID[:], serialize.BigEndianUint64(uint64(ref.Version)), ref.Digest[:])
}

// ownerIndexKey is (owner-bytes || 0x00 || id), so a prefix scan over
// owner-bytes enumerates every object an owner holds.
func ownerIndexKey(owner objtype.Owner, id objtype.ID) []byte {
	return serialize.Concat(ownerPrefix(owner), id[:])
}

func ownerPrefix(owner objtype.Owner) []byte {
	switch owner.Kind {
	case objtype.OwnerKindAddress:
		return serialize.Concat([]byte{byte(owner.Kind)}, owner.AddressOwner[:], []byte{0})
	case objtype.OwnerKindObject:
		return serialize.Concat([]byte{byte(owner.Kind)}, owner.ObjectOwner[:], []byte{0})
	default:
		return serialize.Concat([]byte{byte(owner.Kind)}, []byte{0})
	}
}

// sequencedKey is the (tx digest, id) key used by the sequenced table.
func sequencedKey(digest objtype.TxDigest, id objtype.ID) []byte {
	return serialize.Concat(digest[:], id[:])
}

// sequencedPrefixForDigest scans all shared inputs sequenced for digest.
func sequencedPrefixForDigest(digest objtype.TxDigest) []byte {
	return digest[:]
}
