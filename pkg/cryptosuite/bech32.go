// Copyright 2025 Certen Protocol
//
// Bech32 private-key export, the analog of Sui's SUI_PRIV_KEY_PREFIX
// (spec.md §6). No example repo in the pack carries a bech32 dependency
// (cosmos-sdk/btcutil are both absent from every retrieved go.mod), so
// this is a direct, self-contained implementation of BIP-173 rather than
// an imported library.
package cryptosuite

import (
	"fmt"
	"strings"
)

// AuthorityPrivKeyPrefix is this validator's bech32 human-readable part
// for exported private keys, the SUI_PRIV_KEY_PREFIX analog named in
// spec.md §6.
const AuthorityPrivKeyPrefix = "authprivkey"

const bech32Charset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

func bech32Polymod(values []byte) uint32 {
	gen := [5]uint32{0x3b6a57b2, 0x26508e6d, 0x1ea119fa, 0x3d4233dd, 0x2a1462b3}
	chk := uint32(1)
	for _, v := range values {
		top := chk >> 25
		chk = (chk&0x1ffffff)<<5 ^ uint32(v)
		for i := 0; i < 5; i++ {
			if (top>>uint(i))&1 == 1 {
				chk ^= gen[i]
			}
		}
	}
	return chk
}

func bech32HRPExpand(hrp string) []byte {
	out := make([]byte, 0, len(hrp)*2+1)
	for _, c := range hrp {
		out = append(out, byte(c)>>5)
	}
	out = append(out, 0)
	for _, c := range hrp {
		out = append(out, byte(c)&31)
	}
	return out
}

func bech32CreateChecksum(hrp string, data []byte) []byte {
	values := append(bech32HRPExpand(hrp), data...)
	values = append(values, 0, 0, 0, 0, 0, 0)
	mod := bech32Polymod(values) ^ 1
	checksum := make([]byte, 6)
	for i := 0; i < 6; i++ {
		checksum[i] = byte((mod >> uint(5*(5-i))) & 31)
	}
	return checksum
}

func convertBits(data []byte, fromBits, toBits uint, pad bool) ([]byte, error) {
	acc, bits := uint32(0), uint(0)
	maxv := uint32(1<<toBits) - 1
	var out []byte
	for _, b := range data {
		if uint32(b)>>fromBits != 0 {
			return nil, fmt.Errorf("cryptosuite: invalid byte for %d-bit group", fromBits)
		}
		acc = (acc << fromBits) | uint32(b)
		bits += fromBits
		for bits >= toBits {
			bits -= toBits
			out = append(out, byte((acc>>bits)&maxv))
		}
	}
	if pad {
		if bits > 0 {
			out = append(out, byte((acc<<(toBits-bits))&maxv))
		}
	} else if bits >= fromBits || (acc<<(toBits-bits))&maxv != 0 {
		return nil, fmt.Errorf("cryptosuite: invalid padding in bit conversion")
	}
	return out, nil
}

// Bech32Encode encodes data under human-readable part hrp, BIP-173 style.
func Bech32Encode(hrp string, data []byte) (string, error) {
	converted, err := convertBits(data, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("cryptosuite: bech32 encode: %w", err)
	}
	checksum := bech32CreateChecksum(hrp, converted)
	combined := append(converted, checksum...)
	var sb strings.Builder
	sb.WriteString(hrp)
	sb.WriteByte('1')
	for _, b := range combined {
		sb.WriteByte(bech32Charset[b])
	}
	return sb.String(), nil
}

// Bech32Decode reverses Bech32Encode, verifying the checksum and
// returning the decoded hrp and raw data bytes.
func Bech32Decode(s string) (hrp string, data []byte, err error) {
	pos := strings.LastIndex(s, "1")
	if pos < 1 || pos+7 > len(s) {
		return "", nil, fmt.Errorf("cryptosuite: malformed bech32 string")
	}
	hrp = s[:pos]
	values := make([]byte, len(s)-pos-1)
	for i, c := range s[pos+1:] {
		idx := strings.IndexRune(bech32Charset, c)
		if idx < 0 {
			return "", nil, fmt.Errorf("cryptosuite: invalid bech32 character %q", c)
		}
		values[i] = byte(idx)
	}
	expected := bech32CreateChecksum(hrp, values[:len(values)-6])
	for i, b := range expected {
		if values[len(values)-6+i] != b {
			return "", nil, fmt.Errorf("cryptosuite: bech32 checksum mismatch")
		}
	}
	raw, err := convertBits(values[:len(values)-6], 5, 8, false)
	if err != nil {
		return "", nil, fmt.Errorf("cryptosuite: bech32 decode: %w", err)
	}
	return hrp, raw, nil
}

// ExportPrivateKey encodes a flag-prefixed private key (the scheme flag
// byte followed by the raw scalar) as a bech32 string under
// AuthorityPrivKeyPrefix, the same shape Sui uses for "suiprivkey..."
// exports.
func ExportPrivateKey(flag SchemeFlag, raw []byte) (string, error) {
	payload := append([]byte{byte(flag)}, raw...)
	return Bech32Encode(AuthorityPrivKeyPrefix, payload)
}

// ImportPrivateKey reverses ExportPrivateKey.
func ImportPrivateKey(encoded string) (SchemeFlag, []byte, error) {
	hrp, data, err := Bech32Decode(encoded)
	if err != nil {
		return 0, nil, err
	}
	if hrp != AuthorityPrivKeyPrefix {
		return 0, nil, fmt.Errorf("cryptosuite: unexpected bech32 prefix %q, want %q", hrp, AuthorityPrivKeyPrefix)
	}
	if len(data) < 1 {
		return 0, nil, fmt.Errorf("cryptosuite: empty private key payload")
	}
	return SchemeFlag(data[0]), data[1:], nil
}
