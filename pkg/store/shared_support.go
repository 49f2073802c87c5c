package store

import (
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/certen/authority-core/pkg/objtype"
	"github.com/certen/authority-core/pkg/serialize"
)

// This file exposes the minimal set of bucket handles and key encodings
// pkg/sharedseq needs to manage the sequenced/schedule tables directly
// inside the same bbolt transactions as certificate persistence and
// last-consensus-index bookkeeping. Keeping the bucket name constants
// private to this package and exporting narrow accessors (rather than
// making them public vars) keeps the key-encoding rules in one place.

// SequencedBucket is the (tx digest, shared object id) -> assigned
// version table.
func SequencedBucket() []byte { return bucketSequenced }

// ScheduleBucket is the shared object id -> next version to assign table.
func ScheduleBucket() []byte { return bucketSchedule }

// CertificatesBucket is the certificate-by-digest table.
func CertificatesBucket() []byte { return bucketCertificates }

// SequencedKeyFor encodes the (digest, id) key used by SequencedBucket.
func SequencedKeyFor(digest objtype.TxDigest, id objtype.ID) []byte {
	return sequencedKey(digest, id)
}

// SequencedPrefixFor returns the prefix covering every shared input
// sequenced for digest, for an ordered cursor scan.
func SequencedPrefixFor(digest objtype.TxDigest) []byte {
	return sequencedPrefixForDigest(digest)
}

// LatestParentEntryTx is latestParentEntry exposed for use inside a
// caller-supplied transaction (needed by sharedseq.RemoveSharedObjectsLocks
// to check whether a shared object was ever actually created).
func LatestParentEntryTx(tx *bbolt.Tx, id objtype.ID) (objtype.Ref, bool) {
	return latestParentEntry(tx, id)
}

// PutCertificateTx stores cert under CertificatesBucket if not already
// present, for use inside a caller-supplied transaction.
func PutCertificateTx(tx *bbolt.Tx, cert Certificate) error {
	b := tx.Bucket(bucketCertificates)
	if b.Get(cert.TxDigest[:]) != nil {
		return nil
	}
	enc, err := serialize.JSON(cert)
	if err != nil {
		return fmt.Errorf("encode certificate %s: %w", cert.TxDigest, err)
	}
	return b.Put(cert.TxDigest[:], enc)
}
