// Copyright 2025 Certen Protocol
package cryptosuite

import (
	"crypto/ed25519"
	"fmt"
)

type ed25519Verifier struct{}

func (ed25519Verifier) Verify(pubKey, message, signature []byte) error {
	if len(pubKey) != ed25519.PublicKeySize {
		return fmt.Errorf("cryptosuite: ed25519 public key must be %d bytes, got %d", ed25519.PublicKeySize, len(pubKey))
	}
	if !ed25519.Verify(ed25519.PublicKey(pubKey), message, signature) {
		return fmt.Errorf("cryptosuite: ed25519 signature verification failed")
	}
	return nil
}

func init() {
	register(SchemeEd25519, ed25519Verifier{})
}
