// Package types defines the primitive identifiers shared by the wallet,
// the sync engine and the chain view: hashes, coin ids and addresses.
package types

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// HashSize is the length of a hash in bytes.
const HashSize = 32

// Hash represents a 256-bit hash value.
type Hash [HashSize]byte

// CoinID identifies one transaction output at one height.
// It is derived from (txid, height, index); see tx.Transaction.CoinID.
type CoinID Hash

// IsZero returns true if the hash is all zeros.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// String returns the hex-encoded hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Short returns the first 8 bytes in hex, for log lines.
func (h Hash) Short() string {
	return hex.EncodeToString(h[:8])
}

// Bytes returns a copy of the hash as a byte slice.
func (h Hash) Bytes() []byte {
	b := make([]byte, HashSize)
	copy(b, h[:])
	return b
}

// MarshalJSON encodes the hash as a hex string.
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON decodes a hex string into a hash.
func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*h = Hash{}
		return nil
	}
	parsed, err := HexToHash(s)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// HexToHash converts a hex string to a Hash.
// Returns an error if the string is not exactly 64 hex characters.
func HexToHash(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != HashSize {
		return Hash{}, fmt.Errorf("hash must be %d bytes, got %d", HashSize, len(b))
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// IsZero returns true if the coin id is all zeros.
func (c CoinID) IsZero() bool {
	return Hash(c).IsZero()
}

// String returns the hex-encoded coin id.
func (c CoinID) String() string {
	return Hash(c).String()
}

// Compare orders coin ids bytewise. Used to break ties deterministically.
func (c CoinID) Compare(other CoinID) int {
	return bytes.Compare(c[:], other[:])
}

// MarshalJSON encodes the coin id as a hex string.
func (c CoinID) MarshalJSON() ([]byte, error) {
	return Hash(c).MarshalJSON()
}

// UnmarshalJSON decodes a hex string into a coin id.
func (c *CoinID) UnmarshalJSON(data []byte) error {
	return (*Hash)(c).UnmarshalJSON(data)
}

// HexToCoinID parses a 64-character hex coin id.
func HexToCoinID(s string) (CoinID, error) {
	h, err := HexToHash(s)
	if err != nil {
		return CoinID{}, fmt.Errorf("coin id: %w", err)
	}
	return CoinID(h), nil
}
