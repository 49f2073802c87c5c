// Copyright 2025 Certen Protocol
package cryptosuite

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOrGenerateKeyGeneratesAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "bls.key")
	km := NewKeyManager(path)

	if err := km.LoadOrGenerateKey(); err != nil {
		t.Fatalf("LoadOrGenerateKey: %v", err)
	}
	if km.PrivateKey() == nil || km.PublicKey() == nil {
		t.Fatalf("expected a generated key pair")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected key file to be written: %v", err)
	}
}

func TestLoadOrGenerateKeyLoadsExistingKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bls.key")

	first := NewKeyManager(path)
	if err := first.LoadOrGenerateKey(); err != nil {
		t.Fatalf("LoadOrGenerateKey (generate): %v", err)
	}
	wantPub := first.PublicKey().Bytes()

	second := NewKeyManager(path)
	if err := second.LoadOrGenerateKey(); err != nil {
		t.Fatalf("LoadOrGenerateKey (load): %v", err)
	}
	gotPub := second.PublicKey().Bytes()

	if string(gotPub) != string(wantPub) {
		t.Fatalf("reloaded key pair does not match the one generated and saved")
	}
}

func TestLoadKeyWithoutPathFails(t *testing.T) {
	km := NewKeyManager("")
	if err := km.LoadKey(); err == nil {
		t.Fatalf("expected LoadKey to fail with no key path")
	}
}

func TestProveAndVerifyKnowledgeRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bls.key")
	km := NewKeyManager(path)
	if err := km.LoadOrGenerateKey(); err != nil {
		t.Fatalf("LoadOrGenerateKey: %v", err)
	}

	proof, err := km.ProveKnowledge(42)
	if err != nil {
		t.Fatalf("ProveKnowledge: %v", err)
	}
	ok, err := km.VerifyKnowledge(proof)
	if err != nil {
		t.Fatalf("VerifyKnowledge: %v", err)
	}
	if !ok {
		t.Fatalf("expected proof of possession to verify against its own key")
	}
}

func TestProveKnowledgeWithoutLoadedKeyFails(t *testing.T) {
	km := NewKeyManager("")
	if _, err := km.ProveKnowledge(1); err == nil {
		t.Fatalf("expected an error generating proof of possession without a loaded key")
	}
}

func TestExportImportBech32RoundTrips(t *testing.T) {
	km := NewKeyManager(filepath.Join(t.TempDir(), "bls.key"))
	if err := km.LoadOrGenerateKey(); err != nil {
		t.Fatalf("LoadOrGenerateKey: %v", err)
	}
	encoded, err := km.ExportBech32()
	if err != nil {
		t.Fatalf("ExportBech32: %v", err)
	}

	imported := NewKeyManager("")
	if err := imported.ImportBech32(encoded); err != nil {
		t.Fatalf("ImportBech32: %v", err)
	}
	if string(imported.PublicKey().Bytes()) != string(km.PublicKey().Bytes()) {
		t.Fatalf("imported public key does not match the exported key's")
	}
}

func TestImportBech32RejectsWrongScheme(t *testing.T) {
	encoded, err := ExportPrivateKey(SchemeEd25519, []byte{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("ExportPrivateKey: %v", err)
	}
	km := NewKeyManager("")
	if err := km.ImportBech32(encoded); err == nil {
		t.Fatalf("expected an error importing a non-BLS12381 bech32 key")
	}
}

func TestSaveKeyWithoutGeneratedKeyFails(t *testing.T) {
	km := NewKeyManager(filepath.Join(t.TempDir(), "bls.key"))
	if err := km.SaveKey(); err == nil {
		t.Fatalf("expected SaveKey to fail before a key is generated")
	}
}
