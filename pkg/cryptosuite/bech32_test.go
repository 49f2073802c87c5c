// Copyright 2025 Certen Protocol
package cryptosuite

import "testing"

func TestBech32EncodeDecodeRoundTrips(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0xff, 0x00, 0xab}
	encoded, err := Bech32Encode(AuthorityPrivKeyPrefix, data)
	if err != nil {
		t.Fatalf("Bech32Encode: %v", err)
	}
	hrp, decoded, err := Bech32Decode(encoded)
	if err != nil {
		t.Fatalf("Bech32Decode: %v", err)
	}
	if hrp != AuthorityPrivKeyPrefix {
		t.Fatalf("hrp = %q, want %q", hrp, AuthorityPrivKeyPrefix)
	}
	if string(decoded) != string(data) {
		t.Fatalf("decoded = %x, want %x", decoded, data)
	}
}

func TestBech32DecodeRejectsCorruptedChecksum(t *testing.T) {
	encoded, err := Bech32Encode(AuthorityPrivKeyPrefix, []byte{0x11, 0x22})
	if err != nil {
		t.Fatalf("Bech32Encode: %v", err)
	}
	corrupted := []byte(encoded)
	corrupted[len(corrupted)-1] ^= 0x01
	if _, _, err := Bech32Decode(string(corrupted)); err == nil {
		t.Fatalf("expected checksum mismatch on corrupted input")
	}
}

func TestExportImportPrivateKeyRoundTrips(t *testing.T) {
	raw := []byte{0xde, 0xad, 0xbe, 0xef}
	encoded, err := ExportPrivateKey(SchemeBLS12381, raw)
	if err != nil {
		t.Fatalf("ExportPrivateKey: %v", err)
	}
	flag, decoded, err := ImportPrivateKey(encoded)
	if err != nil {
		t.Fatalf("ImportPrivateKey: %v", err)
	}
	if flag != SchemeBLS12381 {
		t.Fatalf("flag = %v, want %v", flag, SchemeBLS12381)
	}
	if string(decoded) != string(raw) {
		t.Fatalf("decoded = %x, want %x", decoded, raw)
	}
}

func TestImportPrivateKeyRejectsWrongPrefix(t *testing.T) {
	encoded, err := Bech32Encode("somethingelse", []byte{byte(SchemeBLS12381), 0x01})
	if err != nil {
		t.Fatalf("Bech32Encode: %v", err)
	}
	if _, _, err := ImportPrivateKey(encoded); err == nil {
		t.Fatalf("expected an error importing a key with the wrong bech32 prefix")
	}
}
