// Copyright 2025 Certen Protocol
//
// Secp256k1 verification via go-ethereum/crypto, the same library the
// wider example pack uses for Ethereum-facing signature handling
// (SPEC_FULL.md §2: "Secp256k1 via go-ethereum/btcec").
package cryptosuite

import (
	"crypto/sha256"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

type secp256k1Verifier struct{}

func (secp256k1Verifier) Verify(pubKey, message, signature []byte) error {
	hash := sha256.Sum256(message)
	sig := signature
	if len(sig) == 65 {
		// Drop the recovery id byte; VerifySignature wants a bare R||S pair.
		sig = sig[:64]
	}
	if !ethcrypto.VerifySignature(pubKey, hash[:], sig) {
		return fmt.Errorf("cryptosuite: secp256k1 signature verification failed")
	}
	return nil
}

func init() {
	register(SchemeSecp256k1, secp256k1Verifier{})
}
