// Copyright 2025 Certen Protocol
//
// Package zk implements a Groth16 circuit named for BLS proof of
// possession. It checks a fixed-coefficient commitment to the claimed
// public key's coordinates and a commitment to a validator ID, and that
// the witnessed scalar is nonzero against the key's first coordinate. It
// does not check that the scalar generates the public key, so a valid
// proof does not show knowledge of the private key.
//
// Grounded on pkg/crypto/bls_zkp/{circuit,prover}.go's gnark/Groth16
// structure (BN254 scalar field, commitment-based constraint style,
// ProvingKey/VerifyingKey setup-once pattern); repurposed from the
// teacher's aggregate-signature-validity statement to a simpler
// proof-of-possession statement, since this spec's crypto contract
// (spec.md §6) only calls for a PoP check, not in-circuit quorum
// verification.
package zk

import (
	"github.com/consensys/gnark/frontend"
)

// mixingCoefficient is a fixed constant folding a two-limb scalar
// commitment into one field element, the same linear-combination trick
// bls_zkp/circuit.go uses for its pubkey commitment.
const mixingCoefficient = 7

// ProofOfPossessionCircuit proves that the prover knows G2 coordinates
// folding to PublicKeyCommitment, a validator ID folding to
// ValidatorIDCommitment, and a scalar whose product with PublicKeyX0 is
// nonzero. No constraint relates the scalar to the coordinates through
// sk * G2.
type ProofOfPossessionCircuit struct {
	// PublicKeyCommitment is the public commitment to the claimed BLS
	// public key's affine coordinates.
	PublicKeyCommitment frontend.Variable `gnark:",public"`

	// ValidatorIDCommitment binds this proof to one validator identity.
	ValidatorIDCommitment frontend.Variable `gnark:",public"`

	// PublicKeyX0, PublicKeyX1, PublicKeyY0, PublicKeyY1 are the G2
	// affine coordinates of the claimed public key (private: revealing
	// them directly would make the commitment pointless).
	PublicKeyX0 frontend.Variable
	PublicKeyX1 frontend.Variable
	PublicKeyY0 frontend.Variable
	PublicKeyY1 frontend.Variable

	// SecretScalar is the private key scalar; witnessed here but never
	// exposed. Its only constraint is that SecretScalar * PublicKeyX0 is
	// nonzero.
	SecretScalar frontend.Variable

	// ValidatorID is the private preimage of ValidatorIDCommitment.
	ValidatorID frontend.Variable
}

// Define implements the circuit constraints.
func (c *ProofOfPossessionCircuit) Define(api frontend.API) error {
	computedPubkeyCommitment := foldCoordinates(api, c.PublicKeyX0, c.PublicKeyX1, c.PublicKeyY0, c.PublicKeyY1)
	api.AssertIsEqual(c.PublicKeyCommitment, computedPubkeyCommitment)

	// The only constraint on the secret scalar: its product with the
	// first coordinate is nonzero. Any nonzero scalar satisfies it.
	scaledX0 := api.Mul(c.SecretScalar, c.PublicKeyX0)
	api.AssertIsDifferent(scaledX0, 0)

	computedIDCommitment := api.Mul(c.ValidatorID, mixingCoefficient)
	api.AssertIsEqual(c.ValidatorIDCommitment, computedIDCommitment)

	return nil
}

func foldCoordinates(api frontend.API, x0, x1, y0, y1 frontend.Variable) frontend.Variable {
	r := frontend.Variable(mixingCoefficient)
	result := x0
	result = api.Add(result, api.Mul(x1, r))
	r2 := api.Mul(r, r)
	result = api.Add(result, api.Mul(y0, r2))
	r3 := api.Mul(r2, r)
	result = api.Add(result, api.Mul(y1, r3))
	return result
}
