// Package chain is an in-process node that produces blocks on demand and
// lets callers pick which one is the best tip. It serves the chain-view
// queries the wallet sync engine issues and counts them.
package chain

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Klingon-tech/klingnet-wallet/internal/log"
	"github.com/Klingon-tech/klingnet-wallet/internal/storage"
	"github.com/Klingon-tech/klingnet-wallet/pkg/block"
	"github.com/Klingon-tech/klingnet-wallet/pkg/tx"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// Errors returned by the node.
var (
	ErrUnknownBlock = errors.New("unknown block")
	ErrNoParent     = errors.New("genesis has no parent")
	ErrHeightAbove  = errors.New("height above best tip")
)

// Chain holds every block ever added, on any fork, plus the best tip.
// There is no fork choice: the best tip is whatever the caller sets.
type Chain struct {
	mu      sync.RWMutex
	blocks  *BlockStore
	genesis types.Hash
	best    types.Hash
	height  uint64

	queries atomic.Uint64
}

// New opens a node on db. An empty database is seeded with the genesis
// block; a used one resumes at its stored best tip.
func New(db storage.DB) (*Chain, error) {
	if db == nil {
		return nil, fmt.Errorf("storage db is nil")
	}
	c := &Chain{
		blocks:  NewBlockStore(db),
		genesis: block.Genesis().ID(),
	}

	best, ok, err := c.blocks.GetBest()
	if err != nil {
		return nil, fmt.Errorf("recover best tip: %w", err)
	}
	if !ok {
		if err := c.blocks.PutBlock(block.Genesis()); err != nil {
			return nil, fmt.Errorf("store genesis: %w", err)
		}
		if err := c.blocks.SetBest(c.genesis); err != nil {
			return nil, err
		}
		c.best = c.genesis
		return c, nil
	}

	blk, err := c.blocks.GetBlock(best)
	if err != nil {
		return nil, fmt.Errorf("recover best tip: %w", err)
	}
	c.best, c.height = best, blk.Height()
	log.Chain.Debug().Str("best", best.Short()).Uint64("height", c.height).Msg("Resumed node")
	return c, nil
}

// Genesis returns the genesis block id.
func (c *Chain) Genesis() types.Hash {
	return c.genesis
}

// Best returns the best tip id and height.
func (c *Chain) Best() (types.Hash, uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.best, c.height
}

// AddBlock stores a block with txs on top of parent without changing the
// best tip and returns its id. Adding a block that already exists returns
// the existing id.
func (c *Chain) AddBlock(parent types.Hash, txs []*tx.Transaction) (types.Hash, error) {
	return c.AddBlockWithNonce(parent, txs, 0)
}

// AddBlockWithNonce is AddBlock with an explicit header nonce, for minting
// distinct siblings that carry the same transactions.
func (c *Chain) AddBlockWithNonce(parent types.Hash, txs []*tx.Transaction, nonce uint64) (types.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	blk, err := c.addBlock(parent, txs, nonce)
	if err != nil {
		return types.Hash{}, err
	}
	return blk.ID(), nil
}

// AddBlockAsBest adds a block on top of parent and makes it the best tip.
func (c *Chain) AddBlockAsBest(parent types.Hash, txs []*tx.Transaction) (types.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	blk, err := c.addBlock(parent, txs, 0)
	if err != nil {
		return types.Hash{}, err
	}
	if err := c.setBest(blk); err != nil {
		return types.Hash{}, err
	}
	return blk.ID(), nil
}

func (c *Chain) addBlock(parent types.Hash, txs []*tx.Transaction, nonce uint64) (*block.Block, error) {
	p, err := c.blocks.GetBlock(parent)
	if err != nil {
		return nil, fmt.Errorf("add block: parent: %w", err)
	}
	blk := block.NewBlock(parent, p.Height()+1, txs, nonce)
	id := blk.ID()

	exists, err := c.blocks.HasBlock(id)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := c.blocks.PutBlock(blk); err != nil {
			return nil, err
		}
		log.Chain.Debug().
			Str("block", id.Short()).
			Str("parent", parent.Short()).
			Uint64("height", blk.Height()).
			Int("txs", len(txs)).
			Msg("Added block")
	}
	return blk, nil
}

// SetBest makes a known block the best tip. Any stored block qualifies,
// including genesis and blocks lower than the current tip.
func (c *Chain) SetBest(id types.Hash) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	blk, err := c.blocks.GetBlock(id)
	if err != nil {
		return fmt.Errorf("set best: %w", err)
	}
	return c.setBest(blk)
}

func (c *Chain) setBest(blk *block.Block) error {
	id := blk.ID()
	if err := c.blocks.SetBest(id); err != nil {
		return err
	}
	c.best, c.height = id, blk.Height()
	log.Chain.Debug().Str("best", id.Short()).Uint64("height", c.height).Msg("Best tip changed")
	return nil
}

// BestBlockAtHeight walks back from the best tip to height h.
func (c *Chain) BestBlockAtHeight(h uint64) (types.Hash, error) {
	c.mu.RLock()
	cur, height := c.best, c.height
	c.mu.RUnlock()

	if h > height {
		return types.Hash{}, fmt.Errorf("%w: %d > %d", ErrHeightAbove, h, height)
	}
	for height > h {
		blk, err := c.blocks.GetBlock(cur)
		if err != nil {
			return types.Hash{}, err
		}
		cur, height = blk.Header.ParentID, height-1
	}
	return cur, nil
}

// GetBlock returns a stored block. It is not counted as a query.
func (c *Chain) GetBlock(id types.Hash) (*block.Block, error) {
	return c.blocks.GetBlock(id)
}

// BlockCount returns the number of stored blocks on every fork, genesis
// included. It is not counted as a query.
func (c *Chain) BlockCount() (int, error) {
	return c.blocks.CountBlocks()
}

// QueryCount returns the number of chain-view queries served so far.
func (c *Chain) QueryCount() uint64 {
	return c.queries.Load()
}

// ResetQueryCount zeroes the query counter.
func (c *Chain) ResetQueryCount() {
	c.queries.Store(0)
}

// BestBlock returns the best tip id.
func (c *Chain) BestBlock() (types.Hash, error) {
	c.queries.Add(1)
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.best, nil
}

// BlockHeight returns the height of a stored block.
func (c *Chain) BlockHeight(id types.Hash) (uint64, error) {
	c.queries.Add(1)
	blk, err := c.blocks.GetBlock(id)
	if err != nil {
		return 0, err
	}
	return blk.Height(), nil
}

// BlockParent returns the parent of a stored block.
func (c *Chain) BlockParent(id types.Hash) (types.Hash, error) {
	c.queries.Add(1)
	if id == c.genesis {
		return types.Hash{}, ErrNoParent
	}
	blk, err := c.blocks.GetBlock(id)
	if err != nil {
		return types.Hash{}, err
	}
	return blk.Header.ParentID, nil
}

// BlockTransactions returns the transactions of a stored block.
func (c *Chain) BlockTransactions(id types.Hash) ([]*tx.Transaction, error) {
	c.queries.Add(1)
	blk, err := c.blocks.GetBlock(id)
	if err != nil {
		return nil, err
	}
	return blk.Transactions, nil
}
