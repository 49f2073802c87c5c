// Copyright 2025 Certen Protocol
package zk

import (
	"bytes"
	"fmt"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
)

// Prover wraps the compiled proof-of-possession circuit and its
// Groth16 setup, mirroring BLSZKProver's initialize-once-then-reuse
// lifecycle in pkg/crypto/bls_zkp/prover.go.
type Prover struct {
	mu sync.Mutex
	cs frontend.CompiledConstraintSystem
	pk groth16.ProvingKey
	vk groth16.VerifyingKey
}

// NewProver constructs an uninitialized Prover; call Initialize (or
// InitializeFromKeys, not implemented here since this validator always
// performs a fresh trusted setup per process) before use.
func NewProver() *Prover {
	return &Prover{}
}

// Initialize compiles the circuit and runs a Groth16 trusted setup. Only
// safe for test/single-validator-admission use; production committee
// admission would load a pre-generated ceremony's keys instead.
func (p *Prover) Initialize() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var circuit ProofOfPossessionCircuit
	cs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &circuit)
	if err != nil {
		return fmt.Errorf("cryptosuite/zk: compile circuit: %w", err)
	}
	pk, vk, err := groth16.Setup(cs)
	if err != nil {
		return fmt.Errorf("cryptosuite/zk: groth16 setup: %w", err)
	}
	p.cs = cs
	p.pk = pk
	p.vk = vk
	return nil
}

// Witness is the assignment a candidate validator supplies to prove
// possession of its advertised BLS public key.
type Witness struct {
	PublicKeyX0, PublicKeyX1 big.Int
	PublicKeyY0, PublicKeyY1 big.Int
	SecretScalar             big.Int
	ValidatorID              big.Int
}

func (w Witness) commitment() *big.Int {
	r := big.NewInt(mixingCoefficient)
	result := new(big.Int).Set(&w.PublicKeyX0)
	r2 := new(big.Int).Mul(r, r)
	r3 := new(big.Int).Mul(r2, r)
	term := new(big.Int).Mul(&w.PublicKeyX1, r)
	result.Add(result, term)
	term = new(big.Int).Mul(&w.PublicKeyY0, r2)
	result.Add(result, term)
	term = new(big.Int).Mul(&w.PublicKeyY1, r3)
	result.Add(result, term)
	return result
}

// Proof is an opaque Groth16 proof plus the public inputs it commits to.
type Proof struct {
	Raw                    []byte
	PublicKeyCommitment    big.Int
	ValidatorIDCommitment  big.Int
}

// GenerateProof produces a proof-of-possession proof for w.
func (p *Prover) GenerateProof(w Witness) (*Proof, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cs == nil {
		return nil, fmt.Errorf("cryptosuite/zk: prover not initialized")
	}

	idCommitment := new(big.Int).Mul(&w.ValidatorID, big.NewInt(mixingCoefficient))

	assignment := &ProofOfPossessionCircuit{
		PublicKeyCommitment:    w.commitment(),
		ValidatorIDCommitment:  idCommitment,
		PublicKeyX0:            &w.PublicKeyX0,
		PublicKeyX1:            &w.PublicKeyX1,
		PublicKeyY0:            &w.PublicKeyY0,
		PublicKeyY1:            &w.PublicKeyY1,
		SecretScalar:           &w.SecretScalar,
		ValidatorID:            &w.ValidatorID,
	}
	witness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("cryptosuite/zk: build witness: %w", err)
	}
	proof, err := groth16.Prove(p.cs, p.pk, witness)
	if err != nil {
		return nil, fmt.Errorf("cryptosuite/zk: prove: %w", err)
	}

	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("cryptosuite/zk: serialize proof: %w", err)
	}
	return &Proof{
		Raw:                   buf.Bytes(),
		PublicKeyCommitment:   *w.commitment(),
		ValidatorIDCommitment: *idCommitment,
	}, nil
}

// VerifyProof checks proof against the circuit's verifying key.
func (p *Prover) VerifyProof(proof *Proof) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.vk == nil {
		return false, fmt.Errorf("cryptosuite/zk: prover not initialized")
	}

	assignment := &ProofOfPossessionCircuit{
		PublicKeyCommitment:   &proof.PublicKeyCommitment,
		ValidatorIDCommitment: &proof.ValidatorIDCommitment,
	}
	publicWitness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return false, fmt.Errorf("cryptosuite/zk: build public witness: %w", err)
	}

	parsedProof := groth16.NewProof(ecc.BN254)
	if _, err := parsedProof.ReadFrom(bytes.NewReader(proof.Raw)); err != nil {
		return false, fmt.Errorf("cryptosuite/zk: parse proof: %w", err)
	}

	if err := groth16.Verify(parsedProof, p.vk, publicWitness); err != nil {
		return false, nil
	}
	return true, nil
}
