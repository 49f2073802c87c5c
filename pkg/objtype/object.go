package objtype

import "time"

// Object is a live (or tombstoned-via-ParentSync) entry in the objects
// table: exactly one live version per ID at any time, its version
// strictly increasing on each mutation.
type Object struct {
	Ref       Ref
	Owner     Owner
	TypeTag   string // fully-qualified Move-style type, opaque to the store
	Contents  []byte // canonical-encoded payload, opaque to the store
	PrevTxn   TxDigest
	StoredAt  time.Time
}

// Live reports whether this object's ref digest is not a tombstone.
func (o Object) Live() bool {
	return !o.Ref.Digest.IsTombstone()
}
