// Package chainsync moves a wallet ledger from its current tip to the best
// tip of a node. It finds the common ancestor by walking the node's chain
// back only as far as needed, rolls back the abandoned blocks and replays
// the new ones.
package chainsync

import (
	"github.com/Klingon-tech/klingnet-wallet/internal/utxo"
	"github.com/Klingon-tech/klingnet-wallet/pkg/tx"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// ChainView is the read-only window onto the node the engine follows.
// Every method counts as one query.
type ChainView interface {
	// BestBlock returns the id of the node's current best tip.
	BestBlock() (types.Hash, error)
	// BlockHeight returns the height of a known block.
	BlockHeight(id types.Hash) (uint64, error)
	// BlockParent returns the parent of a known block. Genesis has none.
	BlockParent(id types.Hash) (types.Hash, error)
	// BlockTransactions returns the ordered transactions of a known block.
	BlockTransactions(id types.Hash) ([]*tx.Transaction, error)
}

// Ledger is the state the engine drives. *utxo.Ledger implements it.
type Ledger interface {
	Tip() (types.Hash, uint64)
	HashAt(h uint64) (types.Hash, bool)
	HeightOf(id types.Hash) (uint64, bool)
	ApplyBlock(id types.Hash, height uint64, txs []*tx.Transaction) (*utxo.UndoRecord, error)
	UndoLastBlock() (*utxo.UndoRecord, error)
}

var _ Ledger = (*utxo.Ledger)(nil)

// countingView forwards to a ChainView and counts the calls.
type countingView struct {
	view    ChainView
	queries int
}

func (c *countingView) BestBlock() (types.Hash, error) {
	c.queries++
	return c.view.BestBlock()
}

func (c *countingView) BlockHeight(id types.Hash) (uint64, error) {
	c.queries++
	return c.view.BlockHeight(id)
}

func (c *countingView) BlockParent(id types.Hash) (types.Hash, error) {
	c.queries++
	return c.view.BlockParent(id)
}

func (c *countingView) BlockTransactions(id types.Hash) ([]*tx.Transaction, error) {
	c.queries++
	return c.view.BlockTransactions(id)
}
