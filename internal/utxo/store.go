// Package utxo keeps the wallet's view of unspent coins together with the
// undo journal that lets applied blocks be rolled back exactly.
package utxo

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-wallet/internal/storage"
	"github.com/Klingon-tech/klingnet-wallet/pkg/block"
	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-wallet/pkg/tx"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// ErrUnknownCoin is returned when a coin id is not in the store.
var ErrUnknownCoin = errors.New("unknown coin")

// Key prefixes for the coin store.
var (
	prefixCoin = []byte("c/") // c/<coinid(32)> -> Coin JSON
	prefixAddr = []byte("a/") // a/<address(20)><coinid(32)> -> empty (index)
)

// Entry pairs a coin with its id.
type Entry struct {
	ID   types.CoinID `json:"id"`
	Coin tx.Coin      `json:"coin"`
}

// writer is satisfied by both storage.DB and storage.Batch.
type writer interface {
	Put(key, value []byte) error
	Delete(key []byte) error
}

// Store maps coin ids to coins and indexes them by owner.
type Store struct {
	db storage.DB
}

// NewStore creates a new coin store backed by the given database.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

func coinKey(id types.CoinID) []byte {
	key := make([]byte, 0, len(prefixCoin)+types.HashSize)
	key = append(key, prefixCoin...)
	return append(key, id[:]...)
}

func addrPrefix(addr types.Address) []byte {
	key := make([]byte, 0, len(prefixAddr)+types.AddressSize+types.HashSize)
	key = append(key, prefixAddr...)
	return append(key, addr[:]...)
}

func addrKey(addr types.Address, id types.CoinID) []byte {
	return append(addrPrefix(addr), id[:]...)
}

// Get returns the coin stored under id, or ErrUnknownCoin.
func (s *Store) Get(id types.CoinID) (*tx.Coin, error) {
	data, err := s.db.Get(coinKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCoin, id)
	}
	if err != nil {
		return nil, fmt.Errorf("utxo get: %w", err)
	}
	var c tx.Coin
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("utxo unmarshal: %w", err)
	}
	return &c, nil
}

// has reports whether id is in the store.
func (s *Store) has(id types.CoinID) (bool, error) {
	return s.db.Has(coinKey(id))
}

// put stores a coin and its address index entry.
func (s *Store) put(id types.CoinID, c tx.Coin) error {
	return putCoin(s.db, id, c)
}

// remove deletes a coin and its index entry. Removing an unknown id is a
// no-op.
func (s *Store) remove(id types.CoinID) error {
	c, err := s.Get(id)
	if errors.Is(err, ErrUnknownCoin) {
		return nil
	}
	if err != nil {
		return err
	}
	return deleteCoin(s.db, id, c.Owner)
}

func putCoin(w writer, id types.CoinID, c tx.Coin) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("utxo marshal: %w", err)
	}
	if err := w.Put(coinKey(id), data); err != nil {
		return fmt.Errorf("utxo put: %w", err)
	}
	if err := w.Put(addrKey(c.Owner, id), []byte{}); err != nil {
		return fmt.Errorf("utxo index put: %w", err)
	}
	return nil
}

func deleteCoin(w writer, id types.CoinID, owner types.Address) error {
	if err := w.Delete(addrKey(owner, id)); err != nil {
		return fmt.Errorf("utxo index delete: %w", err)
	}
	if err := w.Delete(coinKey(id)); err != nil {
		return fmt.Errorf("utxo delete: %w", err)
	}
	return nil
}

// ForEach visits every coin in coin id order.
func (s *Store) ForEach(fn func(id types.CoinID, c tx.Coin) error) error {
	return s.db.ForEach(prefixCoin, func(key, value []byte) error {
		if len(key) != len(prefixCoin)+types.HashSize {
			return nil
		}
		var id types.CoinID
		copy(id[:], key[len(prefixCoin):])
		var c tx.Coin
		if err := json.Unmarshal(value, &c); err != nil {
			return fmt.Errorf("utxo unmarshal %s: %w", id, err)
		}
		return fn(id, c)
	})
}

// GetByAddress returns the coins owned by addr in coin id order.
func (s *Store) GetByAddress(addr types.Address) ([]Entry, error) {
	prefix := addrPrefix(addr)
	var entries []Entry
	err := s.db.ForEach(prefix, func(key, _ []byte) error {
		if len(key) != len(prefix)+types.HashSize {
			return nil
		}
		var id types.CoinID
		copy(id[:], key[len(prefix):])
		c, err := s.Get(id)
		if err != nil {
			return fmt.Errorf("address index %s: %w", addr, err)
		}
		entries = append(entries, Entry{ID: id, Coin: *c})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Commitment is a merkle root over every (id, value, owner) in the store.
// Two stores holding the same coins have the same commitment. An empty
// store commits to the zero hash.
func (s *Store) Commitment() (types.Hash, error) {
	var leaves []types.Hash
	err := s.ForEach(func(id types.CoinID, c tx.Coin) error {
		leaves = append(leaves, entryHash(id, c))
		return nil
	})
	if err != nil {
		return types.Hash{}, fmt.Errorf("utxo commitment: %w", err)
	}
	return block.ComputeMerkleRoot(leaves), nil
}

// entryHash is BLAKE3(coinid(32) | value(8) | owner(20)).
func entryHash(id types.CoinID, c tx.Coin) types.Hash {
	buf := make([]byte, 0, types.HashSize+8+types.AddressSize)
	buf = append(buf, id[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, c.Value)
	buf = append(buf, c.Owner[:]...)
	return crypto.Hash(buf)
}
