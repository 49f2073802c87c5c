// Copyright 2025 Certen Protocol
//
// Secp256r1 (NIST P-256) verification. No pack dependency covers this
// curve — go-ethereum and gnark-crypto are both secp256k1/BLS-only — so
// this one scheme is built on the standard library's crypto/ecdsa and
// crypto/elliptic rather than an ecosystem library.
package cryptosuite

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"fmt"
	"math/big"
)

type secp256r1Verifier struct{}

func (secp256r1Verifier) Verify(pubKey, message, signature []byte) error {
	x, y := elliptic.Unmarshal(elliptic.P256(), pubKey)
	if x == nil {
		return fmt.Errorf("cryptosuite: invalid secp256r1 public key encoding")
	}
	pub := &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}

	if len(signature) != 64 {
		return fmt.Errorf("cryptosuite: secp256r1 signature must be 64 bytes (r||s), got %d", len(signature))
	}
	r := new(big.Int).SetBytes(signature[:32])
	s := new(big.Int).SetBytes(signature[32:])

	hash := sha256.Sum256(message)
	if !ecdsa.Verify(pub, hash[:], r, s) {
		return fmt.Errorf("cryptosuite: secp256r1 signature verification failed")
	}
	return nil
}

func init() {
	register(SchemeSecp256r1, secp256r1Verifier{})
}
