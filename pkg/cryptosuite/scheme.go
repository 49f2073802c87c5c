// Copyright 2025 Certen Protocol
//
// Package cryptosuite implements the cryptography contract spec.md §6
// treats as an external collaborator: an aggregate signature scheme over
// BLS12-381 for quorum certificates, plus the flag-byte multiplexed
// public key scheme used to identify which algorithm signed a given
// envelope.
//
// Grounded on pkg/crypto/bls/bls.go's gnark-crypto BLS12-381 wrapper
// (key types, domain separation, aggregate verify), generalized from
// four CERTEN-specific attestation domains to the spec's epoch-scoped
// intent-message contract (new_secure/verify_secure, spec.md §6).
package cryptosuite

import "fmt"

// SchemeFlag is the single byte prefixing a serialized public key,
// multiplexing which signature scheme produced it. Public keys serialize
// as [flag || bytes] per spec.md §6.
type SchemeFlag byte

const (
	SchemeEd25519   SchemeFlag = 0x00
	SchemeSecp256k1 SchemeFlag = 0x01
	SchemeSecp256r1 SchemeFlag = 0x02
	SchemeBLS12381  SchemeFlag = 0x03
	SchemeMultiSig  SchemeFlag = 0x04
	SchemeZkLogin   SchemeFlag = 0x05
	SchemePasskey   SchemeFlag = 0x06
)

func (f SchemeFlag) String() string {
	switch f {
	case SchemeEd25519:
		return "Ed25519"
	case SchemeSecp256k1:
		return "Secp256k1"
	case SchemeSecp256r1:
		return "Secp256r1"
	case SchemeBLS12381:
		return "BLS12381"
	case SchemeMultiSig:
		return "MultiSig"
	case SchemeZkLogin:
		return "ZkLogin"
	case SchemePasskey:
		return "Passkey"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", byte(f))
	}
}

// FlaggedPublicKey is the [flag || bytes] wire form spec.md §6 specifies.
type FlaggedPublicKey struct {
	Flag  SchemeFlag
	Bytes []byte
}

// Encode produces the [flag || bytes] wire form.
func (k FlaggedPublicKey) Encode() []byte {
	out := make([]byte, 0, 1+len(k.Bytes))
	out = append(out, byte(k.Flag))
	return append(out, k.Bytes...)
}

// DecodeFlaggedPublicKey splits a wire-form public key back into its
// scheme flag and raw bytes.
func DecodeFlaggedPublicKey(data []byte) (FlaggedPublicKey, error) {
	if len(data) < 1 {
		return FlaggedPublicKey{}, fmt.Errorf("cryptosuite: empty public key")
	}
	return FlaggedPublicKey{Flag: SchemeFlag(data[0]), Bytes: data[1:]}, nil
}

// Verifier is implemented by every scheme this suite supports. Schemes
// named in spec.md §6 with no in-scope verification backend (MultiSig,
// ZkLogin, Passkey — their VM/ZK backends are out of scope per spec.md
// §1) register a stub that always returns ErrSchemeNotSupported, so the
// flag byte is still recognized but never silently accepted.
type Verifier interface {
	Verify(pubKey, message, signature []byte) error
}

// ErrSchemeNotSupported is returned by a registered-but-unimplemented
// scheme's Verify.
var ErrSchemeNotSupported = fmt.Errorf("cryptosuite: signature scheme not supported by this validator's execution backend")

// registry maps a scheme flag to its verifier. Populated in init() by
// each scheme's own file so this file stays a pure contract definition.
var registry = map[SchemeFlag]Verifier{}

func register(flag SchemeFlag, v Verifier) {
	registry[flag] = v
}

// VerifyWithFlag dispatches to the registered verifier for pk.Flag.
func VerifyWithFlag(pk FlaggedPublicKey, message, signature []byte) error {
	v, ok := registry[pk.Flag]
	if !ok {
		return fmt.Errorf("cryptosuite: %w: flag %s", ErrSchemeNotSupported, pk.Flag)
	}
	return v.Verify(pk.Bytes, message, signature)
}

type unsupportedVerifier struct{ flag SchemeFlag }

func (u unsupportedVerifier) Verify([]byte, []byte, []byte) error {
	return fmt.Errorf("%w: flag %s", ErrSchemeNotSupported, u.flag)
}

func init() {
	register(SchemeMultiSig, unsupportedVerifier{SchemeMultiSig})
	register(SchemeZkLogin, unsupportedVerifier{SchemeZkLogin})
	register(SchemePasskey, unsupportedVerifier{SchemePasskey})
}
