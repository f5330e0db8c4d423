package utxo

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/Klingon-tech/klingnet-wallet/internal/storage"
	"github.com/Klingon-tech/klingnet-wallet/pkg/tx"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// Ledger errors.
var (
	ErrHeightGap      = errors.New("block does not extend the ledger tip")
	ErrGenesisChanged = errors.New("ledger was built on a different genesis")
	ErrOwnedChanged   = errors.New("ledger was built for a different owned address set")
)

var (
	prefixJournal = []byte("j/") // j/<height(8,BE)> -> UndoRecord JSON
	keyGenesis    = []byte("m/genesis")
	keyOwned      = []byte("m/owned") // sorted owned addresses, concatenated
)

func journalKey(height uint64) []byte {
	key := make([]byte, 0, len(prefixJournal)+8)
	key = append(key, prefixJournal...)
	return binary.BigEndian.AppendUint64(key, height)
}

// Ledger is the owned-address coin store plus its undo journal. Only
// outputs paying an owned address are ever stored. Each block is written
// to the database in one batch together with its undo record.
type Ledger struct {
	db      storage.DB
	store   *Store
	journal *Journal
	owned   map[types.Address]struct{}
}

// NewLedger opens a ledger on db for the given owned addresses. Records
// left in db by an earlier ledger are reloaded only when it was built on
// the same genesis for the same owned set; otherwise ErrGenesisChanged or
// ErrOwnedChanged is returned and db is left untouched.
func NewLedger(db storage.DB, genesis types.Hash, owned []types.Address) (*Ledger, error) {
	l := &Ledger{
		db:      db,
		store:   NewStore(db),
		journal: NewJournal(genesis),
		owned:   make(map[types.Address]struct{}, len(owned)),
	}
	for _, a := range owned {
		l.owned[a] = struct{}{}
	}
	ownedKey := l.ownedSetBytes()

	stored, err := db.Get(keyGenesis)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		batch := storage.NewBatch(db)
		if err := batch.Put(keyGenesis, genesis[:]); err != nil {
			return nil, fmt.Errorf("ledger init: %w", err)
		}
		if err := batch.Put(keyOwned, ownedKey); err != nil {
			return nil, fmt.Errorf("ledger init: %w", err)
		}
		if err := batch.Commit(); err != nil {
			return nil, fmt.Errorf("ledger init: %w", err)
		}
		return l, nil
	case err != nil:
		return nil, fmt.Errorf("ledger init: %w", err)
	}
	if len(stored) != types.HashSize || types.Hash(stored) != genesis {
		return nil, fmt.Errorf("%w: stored %x", ErrGenesisChanged, stored)
	}
	storedOwned, err := db.Get(keyOwned)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("ledger init: %w", err)
	}
	if !bytes.Equal(storedOwned, ownedKey) {
		return nil, fmt.Errorf("%w: stored %d addresses, opening with %d",
			ErrOwnedChanged, len(storedOwned)/types.AddressSize, len(l.owned))
	}

	err = db.ForEach(prefixJournal, func(_, value []byte) error {
		var rec UndoRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return fmt.Errorf("decode undo record: %w", err)
		}
		return l.journal.Push(&rec)
	})
	if err != nil {
		return nil, fmt.Errorf("ledger reload: %w", err)
	}
	return l, nil
}

// ownedSetBytes encodes the owned set independent of the order and
// duplicates it was given in.
func (l *Ledger) ownedSetBytes() []byte {
	addrs := make([]types.Address, 0, len(l.owned))
	for a := range l.owned {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return bytes.Compare(addrs[i][:], addrs[j][:]) < 0
	})
	out := make([]byte, 0, len(addrs)*types.AddressSize)
	for _, a := range addrs {
		out = append(out, a[:]...)
	}
	return out
}

// Owns reports whether addr is one of the ledger's owned addresses.
func (l *Ledger) Owns(addr types.Address) bool {
	_, ok := l.owned[addr]
	return ok
}

// Genesis returns the genesis block id.
func (l *Ledger) Genesis() types.Hash { return l.journal.Genesis() }

// Tip returns the id and height of the last applied block.
func (l *Ledger) Tip() (types.Hash, uint64) { return l.journal.Tip() }

// HashAt returns the ledger's block id at height h.
func (l *Ledger) HashAt(h uint64) (types.Hash, bool) { return l.journal.HashAt(h) }

// HeightOf returns the height of id if it is on the ledger's chain.
func (l *Ledger) HeightOf(id types.Hash) (uint64, bool) { return l.journal.HeightOf(id) }

// ApplyBlock applies txs in order as block id at height, which must be
// one above the tip. Inputs found in the store are spent, owned outputs
// are created under tx.CoinIDOf(txid, height, index). Because
// transactions are processed strictly in order, a later transaction can
// spend an output of an earlier one in the same block.
func (l *Ledger) ApplyBlock(id types.Hash, height uint64, txs []*tx.Transaction) (*UndoRecord, error) {
	if _, tip := l.journal.Tip(); height != tip+1 {
		return nil, fmt.Errorf("%w: height %d on tip %d", ErrHeightGap, height, tip)
	}
	if _, known := l.journal.HeightOf(id); known {
		return nil, fmt.Errorf("apply block %s: already on the ledger chain", id)
	}

	rec := &UndoRecord{BlockHash: id, Height: height}
	ov := newOverlay(l.store)

	for _, t := range txs {
		for _, in := range t.Inputs {
			c, ok, err := ov.get(in.CoinID)
			if err != nil {
				return nil, fmt.Errorf("apply block %s: %w", id, err)
			}
			if !ok {
				continue
			}
			rec.Spent = append(rec.Spent, Entry{ID: in.CoinID, Coin: c})
			ov.remove(in.CoinID, c)
		}

		txID := t.Hash()
		for i, out := range t.Outputs {
			if !l.Owns(out.Owner) {
				continue
			}
			cid := tx.CoinIDOf(txID, height, uint32(i))
			ov.add(cid, out)
			rec.Created = append(rec.Created, cid)
		}
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode undo record: %w", err)
	}
	batch := storage.NewBatch(l.db)
	if err := ov.flush(batch); err != nil {
		return nil, err
	}
	if err := batch.Put(journalKey(height), data); err != nil {
		return nil, err
	}
	if err := batch.Commit(); err != nil {
		return nil, fmt.Errorf("apply block %s: %w", id, err)
	}
	if err := l.journal.Push(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// UndoLastBlock reverts the top block: spent coins are restored in reverse
// spend order, then created coins are removed in reverse creation order.
// A coin created and spent inside the same block therefore ends up absent.
func (l *Ledger) UndoLastBlock() (*UndoRecord, error) {
	rec, err := l.journal.Peek()
	if err != nil {
		return nil, err
	}

	ov := newOverlay(l.store)
	for i := len(rec.Spent) - 1; i >= 0; i-- {
		ov.add(rec.Spent[i].ID, rec.Spent[i].Coin)
	}
	for i := len(rec.Created) - 1; i >= 0; i-- {
		c, ok, err := ov.get(rec.Created[i])
		if err != nil {
			return nil, fmt.Errorf("undo block %s: %w", rec.BlockHash, err)
		}
		if ok {
			ov.remove(rec.Created[i], c)
		}
	}

	batch := storage.NewBatch(l.db)
	if err := ov.flush(batch); err != nil {
		return nil, err
	}
	if err := batch.Delete(journalKey(rec.Height)); err != nil {
		return nil, err
	}
	if err := batch.Commit(); err != nil {
		return nil, fmt.Errorf("undo block %s: %w", rec.BlockHash, err)
	}
	return l.journal.Pop()
}

// CoinDetails returns the stored coin for id or ErrUnknownCoin.
func (l *Ledger) CoinDetails(id types.CoinID) (tx.Coin, error) {
	c, err := l.store.Get(id)
	if err != nil {
		return tx.Coin{}, err
	}
	return *c, nil
}

// CoinsOf returns the coins owned by addr in coin id order.
func (l *Ledger) CoinsOf(addr types.Address) ([]Entry, error) {
	return l.store.GetByAddress(addr)
}

// TotalOf sums the coins owned by addr, saturating at math.MaxUint64.
func (l *Ledger) TotalOf(addr types.Address) (uint64, error) {
	entries, err := l.store.GetByAddress(addr)
	if err != nil {
		return 0, err
	}
	var total uint64
	for _, e := range entries {
		total = SaturatingAdd(total, e.Coin.Value)
	}
	return total, nil
}

// NetWorth sums every stored coin, saturating at math.MaxUint64.
func (l *Ledger) NetWorth() (uint64, error) {
	var total uint64
	err := l.store.ForEach(func(_ types.CoinID, c tx.Coin) error {
		total = SaturatingAdd(total, c.Value)
		return nil
	})
	return total, err
}

// Unspent returns every stored coin in coin id order.
func (l *Ledger) Unspent() ([]Entry, error) {
	var out []Entry
	err := l.store.ForEach(func(id types.CoinID, c tx.Coin) error {
		out = append(out, Entry{ID: id, Coin: c})
		return nil
	})
	return out, err
}

// Commitment returns the merkle commitment of the stored coins.
func (l *Ledger) Commitment() (types.Hash, error) {
	return l.store.Commitment()
}

// overlay stages coin changes for one block so later transactions see the
// effects of earlier ones before anything is written.
type overlay struct {
	store   *Store
	pending map[types.CoinID]pendingCoin
}

type pendingCoin struct {
	coin tx.Coin
	live bool
}

func newOverlay(s *Store) *overlay {
	return &overlay{store: s, pending: make(map[types.CoinID]pendingCoin)}
}

func (o *overlay) get(id types.CoinID) (tx.Coin, bool, error) {
	if p, ok := o.pending[id]; ok {
		return p.coin, p.live, nil
	}
	c, err := o.store.Get(id)
	if errors.Is(err, ErrUnknownCoin) {
		return tx.Coin{}, false, nil
	}
	if err != nil {
		return tx.Coin{}, false, err
	}
	return *c, true, nil
}

func (o *overlay) add(id types.CoinID, c tx.Coin) {
	o.pending[id] = pendingCoin{coin: c, live: true}
}

func (o *overlay) remove(id types.CoinID, c tx.Coin) {
	o.pending[id] = pendingCoin{coin: c}
}

func (o *overlay) flush(w writer) error {
	ids := make([]types.CoinID, 0, len(o.pending))
	for id := range o.pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Compare(ids[j]) < 0 })

	for _, id := range ids {
		p := o.pending[id]
		var err error
		if p.live {
			err = putCoin(w, id, p.coin)
		} else {
			err = deleteCoin(w, id, p.coin.Owner)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
