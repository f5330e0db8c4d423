// Package tx defines coins, inputs and transactions along with the
// coin id derivation that ties an output to the height it was mined at.
package tx

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"

	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// Coin is a transaction output: an amount locked to an owner.
type Coin struct {
	Value uint64        `json:"value"`
	Owner types.Address `json:"owner"`
}

// Signature is the witness attached to an input. The wallet only records
// the claimed owner; Sig and PubKey are filled when a signing key is known.
type Signature struct {
	Owner  types.Address
	Sig    []byte
	PubKey []byte
}

// signatureJSON is the JSON representation of Signature with hex-encoded
// byte fields.
type signatureJSON struct {
	Owner  types.Address `json:"owner"`
	Sig    string        `json:"sig,omitempty"`
	PubKey string        `json:"pubkey,omitempty"`
}

// MarshalJSON encodes the signature with hex-encoded sig and pubkey.
func (s Signature) MarshalJSON() ([]byte, error) {
	return json.Marshal(signatureJSON{
		Owner:  s.Owner,
		Sig:    hex.EncodeToString(s.Sig),
		PubKey: hex.EncodeToString(s.PubKey),
	})
}

// UnmarshalJSON decodes a signature with hex-encoded sig and pubkey.
func (s *Signature) UnmarshalJSON(data []byte) error {
	var j signatureJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	s.Owner = j.Owner
	s.Sig, s.PubKey = nil, nil
	if j.Sig != "" {
		b, err := hex.DecodeString(j.Sig)
		if err != nil {
			return fmt.Errorf("signature: %w", err)
		}
		s.Sig = b
	}
	if j.PubKey != "" {
		b, err := hex.DecodeString(j.PubKey)
		if err != nil {
			return fmt.Errorf("pubkey: %w", err)
		}
		s.PubKey = b
	}
	return nil
}

// Input spends the coin identified by CoinID.
type Input struct {
	CoinID    types.CoinID `json:"coin_id"`
	Signature Signature    `json:"signature"`
}

// DummyInput returns an input referencing the zero coin id with an empty
// signature. It never matches a stored coin.
func DummyInput() Input {
	return Input{}
}

// Transaction consumes inputs and creates outputs. A transaction without
// inputs mints its outputs.
type Transaction struct {
	Inputs  []Input `json:"inputs"`
	Outputs []Coin  `json:"outputs"`
}

// Hash computes the transaction id: BLAKE3 of the signing bytes.
func (tx *Transaction) Hash() types.Hash {
	return crypto.Hash(tx.SigningBytes())
}

// SigningBytes returns the canonical bytes hashed into the transaction id.
// Signatures are excluded so inputs can sign the id itself.
// Format: input_count(4) | [coin_id(32)]... | output_count(4) | [value(8) + owner(20)]...
func (tx *Transaction) SigningBytes() []byte {
	buf := make([]byte, 0, 8+len(tx.Inputs)*types.HashSize+len(tx.Outputs)*(8+types.AddressSize))

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		buf = append(buf, in.CoinID[:]...)
	}

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		buf = binary.LittleEndian.AppendUint64(buf, out.Value)
		buf = append(buf, out.Owner[:]...)
	}
	return buf
}

// CoinID returns the id of output index when the transaction is mined at
// height: BLAKE3(txid | height(8) | index(4)). The same transaction mined
// at another height yields different ids.
func (tx *Transaction) CoinID(height uint64, index uint32) types.CoinID {
	return CoinIDOf(tx.Hash(), height, index)
}

// CoinIDOf derives a coin id from an already computed transaction id.
func CoinIDOf(txID types.Hash, height uint64, index uint32) types.CoinID {
	var buf [types.HashSize + 12]byte
	copy(buf[:], txID[:])
	binary.LittleEndian.PutUint64(buf[types.HashSize:], height)
	binary.LittleEndian.PutUint32(buf[types.HashSize+8:], index)
	return types.CoinID(crypto.Hash(buf[:]))
}

// TotalOutputValue returns the sum of all output values.
// Returns an error if the sum overflows uint64.
func (tx *Transaction) TotalOutputValue() (uint64, error) {
	var total uint64
	for _, out := range tx.Outputs {
		if total > math.MaxUint64-out.Value {
			return 0, fmt.Errorf("output value overflow")
		}
		total += out.Value
	}
	return total, nil
}
