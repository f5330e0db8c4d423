// Package crypto holds the hashing and signing primitives used for
// transaction ids, block ids, coin ids and input signatures.
package crypto

import (
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
	"github.com/zeebo/blake3"
)

// Hash computes the BLAKE3-256 digest of data.
func Hash(data []byte) types.Hash {
	return blake3.Sum256(data)
}

// HashConcat hashes a‖b. Merkle tree nodes are built with it.
func HashConcat(a, b types.Hash) types.Hash {
	h := blake3.New()
	h.Write(a[:])
	h.Write(b[:])
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// AddressFromPubKey derives an address as BLAKE3(compressed_pubkey)[:20].
func AddressFromPubKey(pubKey []byte) types.Address {
	h := Hash(pubKey)
	var addr types.Address
	copy(addr[:], h[:types.AddressSize])
	return addr
}
