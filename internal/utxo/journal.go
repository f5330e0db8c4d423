package utxo

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// ErrEmptyJournal is returned when undoing with only genesis left.
var ErrEmptyJournal = errors.New("undo journal is empty")

// UndoRecord holds what one applied block changed in the store, enough to
// reverse it without consulting the chain again.
type UndoRecord struct {
	BlockHash types.Hash     `json:"block_hash"`
	Height    uint64         `json:"height"`
	Spent     []Entry        `json:"spent"`   // in spend order
	Created   []types.CoinID `json:"created"` // in creation order
}

// Journal is the stack of undo records for the wallet's own chain, one per
// block above genesis, plus a hash to height index over that chain.
type Journal struct {
	genesis types.Hash
	records []*UndoRecord
	heights map[types.Hash]uint64
}

// NewJournal returns a journal whose chain is just genesis.
func NewJournal(genesis types.Hash) *Journal {
	return &Journal{
		genesis: genesis,
		heights: map[types.Hash]uint64{genesis: 0},
	}
}

// Genesis returns the genesis block id.
func (j *Journal) Genesis() types.Hash {
	return j.genesis
}

// Len returns the number of records, which equals the tip height.
func (j *Journal) Len() int {
	return len(j.records)
}

// Tip returns the id and height of the last applied block.
func (j *Journal) Tip() (types.Hash, uint64) {
	if len(j.records) == 0 {
		return j.genesis, 0
	}
	top := j.records[len(j.records)-1]
	return top.BlockHash, top.Height
}

// HashAt returns the id of the wallet's block at height h.
func (j *Journal) HashAt(h uint64) (types.Hash, bool) {
	if h == 0 {
		return j.genesis, true
	}
	if h > uint64(len(j.records)) {
		return types.Hash{}, false
	}
	return j.records[h-1].BlockHash, true
}

// HeightOf returns the height of id if it is on the wallet's chain.
func (j *Journal) HeightOf(id types.Hash) (uint64, bool) {
	h, ok := j.heights[id]
	return h, ok
}

// Push appends a record. Its height must be exactly one above the tip.
func (j *Journal) Push(rec *UndoRecord) error {
	if want := uint64(len(j.records)) + 1; rec.Height != want {
		return fmt.Errorf("journal push: height %d, want %d", rec.Height, want)
	}
	if _, dup := j.heights[rec.BlockHash]; dup {
		return fmt.Errorf("journal push: block %s already on chain", rec.BlockHash)
	}
	j.records = append(j.records, rec)
	j.heights[rec.BlockHash] = rec.Height
	return nil
}

// Peek returns the top record without removing it.
func (j *Journal) Peek() (*UndoRecord, error) {
	if len(j.records) == 0 {
		return nil, ErrEmptyJournal
	}
	return j.records[len(j.records)-1], nil
}

// Pop removes and returns the top record.
func (j *Journal) Pop() (*UndoRecord, error) {
	rec, err := j.Peek()
	if err != nil {
		return nil, err
	}
	j.records[len(j.records)-1] = nil
	j.records = j.records[:len(j.records)-1]
	delete(j.heights, rec.BlockHash)
	return rec, nil
}
