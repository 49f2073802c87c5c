package objtype

import (
	"encoding/hex"
	"fmt"
)

// OwnerKind discriminates the tagged union in Owner.
type OwnerKind uint8

const (
	// OwnerKindAddress is an object exclusively owned by a user address.
	OwnerKindAddress OwnerKind = iota
	// OwnerKindObject is an object owned by another object (a child).
	OwnerKindObject
	// OwnerKindShared is a mutable object sequenced through consensus.
	OwnerKindShared
	// OwnerKindImmutable is a read-only object owned by no one.
	OwnerKindImmutable
)

// Address is a 32-byte account address, the AddressOwner payload.
type Address [32]byte

func (a Address) String() string {
	return ID(a).String()
}

// ParseAddress decodes a hex-encoded address, the inverse of
// Address.String, for configuration and transport layers that carry
// addresses as strings.
func ParseAddress(s string) (Address, error) {
	var a Address
	b, err := hex.DecodeString(s)
	if err != nil {
		return a, fmt.Errorf("objtype: parse address: %w", err)
	}
	if len(b) != len(a) {
		return a, fmt.Errorf("objtype: address must be %d bytes, got %d", len(a), len(b))
	}
	copy(a[:], b)
	return a, nil
}

// Owner is one of AddressOwner(addr), ObjectOwner(id), Shared{initial
// version}, or Immutable. Exactly one of the fields below is meaningful,
// selected by Kind.
type Owner struct {
	Kind OwnerKind

	AddressOwner  Address
	ObjectOwner   ID
	InitialShared Version
}

// NewAddressOwner builds an exclusively-owned-by-address Owner.
func NewAddressOwner(addr Address) Owner {
	return Owner{Kind: OwnerKindAddress, AddressOwner: addr}
}

// NewObjectOwner builds a child-object Owner.
func NewObjectOwner(parent ID) Owner {
	return Owner{Kind: OwnerKindObject, ObjectOwner: parent}
}

// NewSharedOwner builds a Shared Owner with the given initial version.
func NewSharedOwner(initial Version) Owner {
	return Owner{Kind: OwnerKindShared, InitialShared: initial}
}

// ImmutableOwner is the single Immutable owner value.
var ImmutableOwner = Owner{Kind: OwnerKindImmutable}

// IsOwned reports whether the object is exclusively usable by one
// transaction via its lock (AddressOwner or ObjectOwner), as opposed to
// Shared (sequenced through consensus) or Immutable (never mutated).
func (o Owner) IsOwned() bool {
	return o.Kind == OwnerKindAddress || o.Kind == OwnerKindObject
}

// IsShared reports whether the object is a shared object.
func (o Owner) IsShared() bool {
	return o.Kind == OwnerKindShared
}

func (o Owner) String() string {
	switch o.Kind {
	case OwnerKindAddress:
		return fmt.Sprintf("AddressOwner(%s)", o.AddressOwner)
	case OwnerKindObject:
		return fmt.Sprintf("ObjectOwner(%s)", o.ObjectOwner)
	case OwnerKindShared:
		return fmt.Sprintf("Shared{initial_version=%d}", o.InitialShared)
	case OwnerKindImmutable:
		return "Immutable"
	default:
		return "Unknown"
	}
}
