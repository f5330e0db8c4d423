// Package block defines blocks and their headers. A block id commits to
// the parent id, the height and the merkle root of its transaction ids.
package block

import (
	"encoding/binary"

	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-wallet/pkg/tx"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// HeaderVersion is the only header version produced.
const HeaderVersion uint32 = 1

// Header contains block metadata.
type Header struct {
	Version  uint32     `json:"version"`
	ParentID types.Hash `json:"parent_id"`
	Height   uint64     `json:"height"`
	TxRoot   types.Hash `json:"tx_root"`
	Nonce    uint64     `json:"nonce"`
}

// ID computes the block id from the header signing bytes.
func (h *Header) ID() types.Hash {
	return crypto.Hash(h.SigningBytes())
}

// SigningBytes returns the canonical header bytes.
// Format: version(4) | parent_id(32) | height(8) | tx_root(32) | nonce(8)
func (h *Header) SigningBytes() []byte {
	buf := make([]byte, 0, 84)
	buf = binary.LittleEndian.AppendUint32(buf, h.Version)
	buf = append(buf, h.ParentID[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, h.Height)
	buf = append(buf, h.TxRoot[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, h.Nonce)
	return buf
}

// Block is a header plus its ordered transactions.
type Block struct {
	Header       *Header           `json:"header"`
	Transactions []*tx.Transaction `json:"transactions"`
}

// NewBlock builds a block on top of parentID at height, filling in the
// transaction root. The nonce lets callers mint distinct blocks with the
// same parent and transactions.
func NewBlock(parentID types.Hash, height uint64, txs []*tx.Transaction, nonce uint64) *Block {
	return &Block{
		Header: &Header{
			Version:  HeaderVersion,
			ParentID: parentID,
			Height:   height,
			TxRoot:   TxRoot(txs),
			Nonce:    nonce,
		},
		Transactions: txs,
	}
}

// ID returns the block id.
func (b *Block) ID() types.Hash {
	return b.Header.ID()
}

// Height returns the block height.
func (b *Block) Height() uint64 {
	return b.Header.Height
}

// Genesis returns the height-0 block every chain starts from. It has a zero
// parent, no transactions and therefore a fixed id.
func Genesis() *Block {
	return NewBlock(types.Hash{}, 0, nil, 0)
}

// TxRoot is the merkle root of the transaction ids.
func TxRoot(txs []*tx.Transaction) types.Hash {
	ids := make([]types.Hash, len(txs))
	for i, t := range txs {
		ids[i] = t.Hash()
	}
	return ComputeMerkleRoot(ids)
}
