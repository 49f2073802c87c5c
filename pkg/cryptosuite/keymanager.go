// Copyright 2025 Certen Protocol
//
// KeyManager loads or generates a validator's BLS key on disk. Grounded
// on pkg/crypto/bls/key_manager.go's LoadKey/GenerateNewKey/SaveKey
// trio (hex-encoded key file, 0600 permissions, directory creation on
// save); the validator-ID-seeded deterministic derivation and the
// Ethereum-style address helper are dropped since this store identifies
// validators by objtype.Address, not a key-derived Ethereum address.
package cryptosuite

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sync"

	"github.com/certen/authority-core/pkg/cryptosuite/zk"
)

// KeyManager owns one validator's BLS key pair and its on-disk
// persistence.
type KeyManager struct {
	keyPath    string
	privateKey *BLSPrivateKey
	publicKey  *BLSPublicKey

	proverOnce sync.Once
	prover     *zk.Prover
	proverErr  error
}

// NewKeyManager builds a KeyManager over keyPath. An empty keyPath
// disables persistence: LoadOrGenerateKey always generates, and
// GenerateNewKey never saves.
func NewKeyManager(keyPath string) *KeyManager {
	return &KeyManager{keyPath: keyPath}
}

// LoadOrGenerateKey loads the key at keyPath if it exists, otherwise
// generates a fresh key pair and (if keyPath is set) persists it.
func (km *KeyManager) LoadOrGenerateKey() error {
	if km.keyPath != "" {
		if _, err := os.Stat(km.keyPath); err == nil {
			return km.LoadKey()
		}
	}
	return km.GenerateNewKey()
}

// LoadKey reads and decodes the hex-encoded private key at keyPath.
func (km *KeyManager) LoadKey() error {
	if km.keyPath == "" {
		return fmt.Errorf("cryptosuite: no key path specified")
	}
	data, err := os.ReadFile(km.keyPath)
	if err != nil {
		return fmt.Errorf("cryptosuite: read key file: %w", err)
	}
	keyBytes, err := hex.DecodeString(string(data))
	if err != nil {
		return fmt.Errorf("cryptosuite: decode key hex: %w", err)
	}
	priv, err := BLSPrivateKeyFromBytes(keyBytes)
	if err != nil {
		return fmt.Errorf("cryptosuite: parse private key: %w", err)
	}
	km.privateKey = priv
	km.publicKey = priv.Public()
	return nil
}

// GenerateNewKey produces a fresh key pair and, if keyPath is set,
// persists it via SaveKey.
func (km *KeyManager) GenerateNewKey() error {
	priv, pub, err := GenerateBLSKeyPair()
	if err != nil {
		return fmt.Errorf("cryptosuite: generate bls key pair: %w", err)
	}
	km.privateKey, km.publicKey = priv, pub
	if km.keyPath != "" {
		return km.SaveKey()
	}
	return nil
}

// SaveKey writes the hex-encoded private key to keyPath with owner-only
// permissions, creating the containing directory if needed.
func (km *KeyManager) SaveKey() error {
	if km.keyPath == "" {
		return fmt.Errorf("cryptosuite: no key path specified")
	}
	if km.privateKey == nil {
		return fmt.Errorf("cryptosuite: no private key to save")
	}
	if err := os.MkdirAll(filepath.Dir(km.keyPath), 0o700); err != nil {
		return fmt.Errorf("cryptosuite: create key directory: %w", err)
	}
	keyHex := hex.EncodeToString(km.privateKey.Bytes())
	if err := os.WriteFile(km.keyPath, []byte(keyHex), 0o600); err != nil {
		return fmt.Errorf("cryptosuite: write key file: %w", err)
	}
	return nil
}

// PrivateKey returns the loaded or generated private key, nil if neither
// has happened yet.
func (km *KeyManager) PrivateKey() *BLSPrivateKey { return km.privateKey }

// PublicKey returns the corresponding public key.
func (km *KeyManager) PublicKey() *BLSPublicKey { return km.publicKey }

// ProveKnowledge produces a pkg/cryptosuite/zk proof from this
// KeyManager's loaded key pair (its public key's G2 coordinates and its
// private scalar, which stays unrevealed), bound to validatorID. The
// circuit does not check that the scalar generates the public key; see
// zk.ProofOfPossessionCircuit.
func (km *KeyManager) ProveKnowledge(validatorID uint64) (*zk.Proof, error) {
	if km.privateKey == nil || km.publicKey == nil {
		return nil, fmt.Errorf("cryptosuite: no key loaded, call LoadOrGenerateKey first")
	}
	prover, err := km.ensureProver()
	if err != nil {
		return nil, err
	}
	x0, x1, y0, y1 := km.publicKey.G2Coordinates()
	proof, err := prover.GenerateProof(zk.Witness{
		PublicKeyX0:  x0,
		PublicKeyX1:  x1,
		PublicKeyY0:  y0,
		PublicKeyY1:  y1,
		SecretScalar: km.privateKey.ScalarBigInt(),
		ValidatorID:  *big.NewInt(0).SetUint64(validatorID),
	})
	if err != nil {
		return nil, fmt.Errorf("cryptosuite: generate proof of possession: %w", err)
	}
	return proof, nil
}

// VerifyKnowledge checks a proof produced by ProveKnowledge (by this or
// any other validator sharing the same circuit setup).
func (km *KeyManager) VerifyKnowledge(proof *zk.Proof) (bool, error) {
	prover, err := km.ensureProver()
	if err != nil {
		return false, err
	}
	return prover.VerifyProof(proof)
}

// ExportBech32 encodes the loaded private key as a bech32 string under
// AuthorityPrivKeyPrefix (spec.md §6's SUI_PRIV_KEY_PREFIX analog),
// suitable for a validator operator to back up or transfer out of band.
func (km *KeyManager) ExportBech32() (string, error) {
	if km.privateKey == nil {
		return "", fmt.Errorf("cryptosuite: no key loaded, call LoadOrGenerateKey first")
	}
	return ExportPrivateKey(SchemeBLS12381, km.privateKey.Bytes())
}

// ImportBech32 loads a private key previously produced by ExportBech32
// (or any compatible bech32-encoded BLS12-381 private key export),
// persisting it to keyPath if one is configured.
func (km *KeyManager) ImportBech32(encoded string) error {
	flag, raw, err := ImportPrivateKey(encoded)
	if err != nil {
		return fmt.Errorf("cryptosuite: import bech32 key: %w", err)
	}
	if flag != SchemeBLS12381 {
		return fmt.Errorf("cryptosuite: import bech32 key: expected scheme %s, got %s", SchemeBLS12381, flag)
	}
	priv, err := BLSPrivateKeyFromBytes(raw)
	if err != nil {
		return fmt.Errorf("cryptosuite: import bech32 key: %w", err)
	}
	km.privateKey = priv
	km.publicKey = priv.Public()
	if km.keyPath != "" {
		return km.SaveKey()
	}
	return nil
}

func (km *KeyManager) ensureProver() (*zk.Prover, error) {
	km.proverOnce.Do(func() {
		p := zk.NewProver()
		if err := p.Initialize(); err != nil {
			km.proverErr = fmt.Errorf("cryptosuite: initialize proof-of-possession prover: %w", err)
			return
		}
		km.prover = p
	})
	return km.prover, km.proverErr
}
