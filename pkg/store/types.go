package store

import (
	"time"

	"github.com/certen/authority-core/pkg/objtype"
)

// TransactionData is the opaque, signer-intended content of a
// transaction: the owned and shared inputs it reads, the kind of
// operation, and whatever arguments the VM backend needs. The core
// treats it as opaque beyond the input lists it must extract to drive
// locking and sequencing.
type TransactionData struct {
	Sender       objtype.Address
	OwnedInputs  []objtype.Ref
	SharedInputs []objtype.ID
	GasPrice     uint64
	GasBudget    uint64
	Kind         string
	Payload      []byte
}

// Envelope is an immutable, digest-keyed transaction as received from a
// client, before certification.
type Envelope struct {
	Digest    objtype.TxDigest
	Data      TransactionData
	SignerSig []byte
	StoredAt  time.Time
}

// Certificate is a transaction plus a quorum of validator signatures.
// Acceptance requires the signature to verify under the current epoch's
// committee (enforced by the caller before Store.AddPendingCertificates
// is invoked; the store itself does not re-verify).
type Certificate struct {
	TxDigest      objtype.TxDigest
	Data          TransactionData
	Epoch         uint64
	QuorumSig     []byte
	SignerIndices []uint32
	StoredAt      time.Time
}

// EffectsStatus is the user-visible outcome of executing a certificate.
type EffectsStatus int

const (
	EffectsSuccess EffectsStatus = iota
	EffectsUserFailure
)

// Effects is the structured result of executing one transaction. It is
// written only after objects are atomically persisted and acts as the
// execution "done" marker; effects are never overwritten once written.
type Effects struct {
	TransactionDigest objtype.TxDigest
	Status            EffectsStatus
	FailureReason      string
	Created           []objtype.Ref
	Mutated           []objtype.Ref
	Deleted           []objtype.Ref
	Wrapped           []objtype.Ref
	Events            []byte // opaque, canonically encoded
	GasUsed           uint64
	ExecutedEpoch     uint64
	Digest            objtype.Digest // digest of this Effects value
	StoredAt          time.Time
}

// AllMutatedOrDeletedRefs returns every ref this Effects touched besides
// fresh creations: the refs whose shared-object schedule entries
// UpdateState advances and RevertStateUpdate checks.
func (e Effects) AllMutatedOrDeletedRefs() []objtype.Ref {
	out := make([]objtype.Ref, 0, len(e.Mutated)+len(e.Deleted)+len(e.Wrapped))
	out = append(out, e.Mutated...)
	out = append(out, e.Deleted...)
	out = append(out, e.Wrapped...)
	return out
}

// ObjectInfo is the value stored in the owner_index table: enough to
// list an owner's objects without a second read of the objects table.
type ObjectInfo struct {
	Ref     objtype.Ref
	Owner   objtype.Owner
	TypeTag string
}

// ExecutedSequenceEntry records the strictly monotonic per-validator
// order in which transactions finished executing.
type ExecutedSequenceEntry struct {
	TxDigest      objtype.TxDigest
	EffectsDigest objtype.Digest

	// SideSequence is a second, independently-incrementing marker written
	// alongside the primary executed-sequence number. A checkpoint/batch
	// builder external to this store uses it to track how far it has
	// already swept without disturbing the primary sequence's semantics;
	// this store only maintains the counter, it does not consume it.
	SideSequence uint64
}

// SignedBatch is a broadcast unit built from a contiguous range of
// executed_sequence entries.
type SignedBatch struct {
	Seq        uint64
	FirstEntry uint64
	LastEntry  uint64
	Signature  []byte
}

// EpochInfo is the per-epoch committee snapshot appended on epoch
// boundary. The committee-change algorithm itself is out of scope (spec.md
// §1); this struct only records the resulting membership.
type EpochInfo struct {
	Epoch     uint64
	Committee map[objtype.Address]uint64 // address -> voting stake
	StartedAt time.Time
}

// ConsensusIndex is the opaque last-processed position in the external
// consensus output, monotonic across Sequencer.Persist calls.
type ConsensusIndex struct {
	Round       uint64
	SubDagIndex uint64
}

// Less reports whether i precedes other.
func (i ConsensusIndex) Less(other ConsensusIndex) bool {
	if i.Round != other.Round {
		return i.Round < other.Round
	}
	return i.SubDagIndex < other.SubDagIndex
}
