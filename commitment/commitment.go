// Package commitment produces binding commitments to invocation and
// response content. The hash is MiMC over the BN254 scalar field, the
// same function the solvency circuit evaluates in-circuit, so a
// commitment made here can be opened inside a proof without a second
// hash function.
package commitment

import (
	"encoding/hex"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
)

// Hash is a 32-byte MiMC digest, big-endian, always a canonical field
// element.
type Hash [32]byte

// Zero is the empty commitment.
var Zero Hash

// IsZero reports whether the hash is the empty commitment.
func (h Hash) IsZero() bool {
	return h == Zero
}

// Hex returns the 0x-prefixed hex encoding.
func (h Hash) Hex() string {
	return "0x" + hex.EncodeToString(h[:])
}

func (h Hash) String() string {
	return h.Hex()
}

// MarshalText implements encoding.TextMarshaler, so hashes serialize
// as hex in JSON.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHex(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHex decodes a 0x-prefixed or bare 64-digit hex string.
func ParseHex(s string) (Hash, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	var h Hash
	if len(s) != 2*len(h) {
		return Zero, fmt.Errorf("commitment: expected %d hex digits, got %d", 2*len(h), len(s))
	}
	if _, err := hex.Decode(h[:], []byte(s)); err != nil {
		return Zero, fmt.Errorf("commitment: %w", err)
	}
	return h, nil
}

// HashBytes commits to arbitrary bytes. Input is absorbed in 31-byte
// chunks, each left-padded to 32 bytes, so every block is strictly
// below the field modulus.
func HashBytes(data []byte) Hash {
	hasher := mimc.NewMiMC()
	var block [mimc.BlockSize]byte
	for len(data) > 0 {
		n := len(data)
		if n > mimc.BlockSize-1 {
			n = mimc.BlockSize - 1
		}
		for i := range block {
			block[i] = 0
		}
		copy(block[mimc.BlockSize-n:], data[:n])
		hasher.Write(block[:])
		data = data[n:]
	}
	var h Hash
	copy(h[:], hasher.Sum(nil))
	return h
}

// HashCleartext commits to a cleartext string.
func HashCleartext(cleartext string) Hash {
	return HashBytes([]byte(cleartext))
}
