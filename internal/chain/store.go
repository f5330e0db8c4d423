package chain

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-wallet/internal/storage"
	"github.com/Klingon-tech/klingnet-wallet/pkg/block"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// Key prefixes and state keys for the block store.
var (
	prefixBlock = []byte("b/") // b/<hash(32)> -> block JSON
	keyBest     = []byte("s/best")
)

// BlockStore persists blocks and the best-tip pointer to a storage.DB.
type BlockStore struct {
	db storage.DB
}

// NewBlockStore creates a block store backed by the given database.
func NewBlockStore(db storage.DB) *BlockStore {
	return &BlockStore{db: db}
}

func blockKey(id types.Hash) []byte {
	key := make([]byte, 0, len(prefixBlock)+types.HashSize)
	key = append(key, prefixBlock...)
	return append(key, id[:]...)
}

// PutBlock stores a block under its id.
func (bs *BlockStore) PutBlock(blk *block.Block) error {
	data, err := json.Marshal(blk)
	if err != nil {
		return fmt.Errorf("block marshal: %w", err)
	}
	if err := bs.db.Put(blockKey(blk.ID()), data); err != nil {
		return fmt.Errorf("block put: %w", err)
	}
	return nil
}

// GetBlock loads a block by id. Unknown ids yield ErrUnknownBlock.
func (bs *BlockStore) GetBlock(id types.Hash) (*block.Block, error) {
	data, err := bs.db.Get(blockKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBlock, id)
	}
	if err != nil {
		return nil, fmt.Errorf("block get: %w", err)
	}
	var blk block.Block
	if err := json.Unmarshal(data, &blk); err != nil {
		return nil, fmt.Errorf("block unmarshal: %w", err)
	}
	if blk.Header == nil {
		return nil, fmt.Errorf("block %s: missing header", id)
	}
	return &blk, nil
}

// HasBlock reports whether id is stored.
func (bs *BlockStore) HasBlock(id types.Hash) (bool, error) {
	return bs.db.Has(blockKey(id))
}

// SetBest records the best tip.
func (bs *BlockStore) SetBest(id types.Hash) error {
	if err := bs.db.Put(keyBest, id[:]); err != nil {
		return fmt.Errorf("best put: %w", err)
	}
	return nil
}

// GetBest returns the recorded best tip and whether one exists.
func (bs *BlockStore) GetBest() (types.Hash, bool, error) {
	data, err := bs.db.Get(keyBest)
	if errors.Is(err, storage.ErrNotFound) {
		return types.Hash{}, false, nil
	}
	if err != nil {
		return types.Hash{}, false, fmt.Errorf("best get: %w", err)
	}
	if len(data) != types.HashSize {
		return types.Hash{}, false, fmt.Errorf("best tip: corrupt value of %d bytes", len(data))
	}
	var id types.Hash
	copy(id[:], data)
	return id, true, nil
}

// CountBlocks returns the number of stored blocks.
func (bs *BlockStore) CountBlocks() (int, error) {
	var n int
	err := bs.db.ForEach(prefixBlock, func(_, _ []byte) error {
		n++
		return nil
	})
	return n, err
}
