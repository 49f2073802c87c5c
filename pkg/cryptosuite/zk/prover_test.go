// Copyright 2025 Certen Protocol
package zk

import (
	"math/big"
	"testing"
)

func TestProverGenerateAndVerifyRoundTrips(t *testing.T) {
	p := NewProver()
	if err := p.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	w := Witness{
		PublicKeyX0:  *big.NewInt(11),
		PublicKeyX1:  *big.NewInt(22),
		PublicKeyY0:  *big.NewInt(33),
		PublicKeyY1:  *big.NewInt(44),
		SecretScalar: *big.NewInt(7),
		ValidatorID:  *big.NewInt(99),
	}

	proof, err := p.GenerateProof(w)
	if err != nil {
		t.Fatalf("GenerateProof: %v", err)
	}
	ok, err := p.VerifyProof(proof)
	if err != nil {
		t.Fatalf("VerifyProof: %v", err)
	}
	if !ok {
		t.Fatalf("expected an honestly generated proof to verify")
	}
}

func TestProverVerifyRejectsTamperedCommitment(t *testing.T) {
	p := NewProver()
	if err := p.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	w := Witness{
		PublicKeyX0:  *big.NewInt(1),
		PublicKeyX1:  *big.NewInt(2),
		PublicKeyY0:  *big.NewInt(3),
		PublicKeyY1:  *big.NewInt(4),
		SecretScalar: *big.NewInt(5),
		ValidatorID:  *big.NewInt(6),
	}
	proof, err := p.GenerateProof(w)
	if err != nil {
		t.Fatalf("GenerateProof: %v", err)
	}

	proof.ValidatorIDCommitment = *big.NewInt(0).Add(&proof.ValidatorIDCommitment, big.NewInt(1))
	ok, err := p.VerifyProof(proof)
	if err == nil && ok {
		t.Fatalf("expected a tampered commitment to fail verification")
	}
}

func TestVerifyProofWithoutInitializeFails(t *testing.T) {
	p := NewProver()
	if _, err := p.VerifyProof(&Proof{}); err == nil {
		t.Fatalf("expected an error verifying with an uninitialized prover")
	}
}
