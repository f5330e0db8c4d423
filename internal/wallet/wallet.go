// Package wallet follows a node's best chain for a fixed set of owned
// addresses and builds spend transactions from the coins they hold.
package wallet

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Klingon-tech/klingnet-wallet/internal/chainsync"
	"github.com/Klingon-tech/klingnet-wallet/internal/log"
	"github.com/Klingon-tech/klingnet-wallet/internal/storage"
	"github.com/Klingon-tech/klingnet-wallet/internal/utxo"
	"github.com/Klingon-tech/klingnet-wallet/pkg/block"
	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-wallet/pkg/tx"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
	"github.com/rs/zerolog"
)

// Wallet is safe for concurrent use. Sync holds the write lock for its
// whole duration; builders and accessors share the read lock.
type Wallet struct {
	mu      sync.RWMutex
	owned   []types.Address
	ledger  *utxo.Ledger
	engine  *chainsync.Engine
	signers map[types.Address]crypto.Signer
	logger  zerolog.Logger
}

type options struct {
	db      storage.DB
	genesis types.Hash
	logger  zerolog.Logger
	keys    []*crypto.PrivateKey
}

// Option configures a Wallet.
type Option func(*options)

// WithDB keeps the wallet's coins and undo journal in db under the
// "wallet/" prefix. The default is an in-memory database. Records left by
// a wallet with a different owned set are refused with ErrOwnedChanged.
func WithDB(db storage.DB) Option {
	return func(o *options) { o.db = db }
}

// WithGenesis sets the genesis block id the wallet starts from. The
// default is block.Genesis().
func WithGenesis(id types.Hash) Option {
	return func(o *options) { o.genesis = id }
}

// WithLogger overrides the wallet component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithKeys supplies signing keys. Inputs spending a coin whose owner has
// a key get a Schnorr signature over the transaction id.
func WithKeys(keys ...*crypto.PrivateKey) Option {
	return func(o *options) { o.keys = append(o.keys, keys...) }
}

// New creates a wallet owning the given addresses. The owned set never
// changes afterwards.
func New(owned []types.Address, opts ...Option) (*Wallet, error) {
	o := options{
		genesis: block.Genesis().ID(),
		logger:  log.Wallet,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.db == nil {
		o.db = storage.NewMemory()
	}

	seen := make(map[types.Address]struct{}, len(owned))
	addrs := make([]types.Address, 0, len(owned))
	for _, a := range owned {
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		addrs = append(addrs, a)
	}

	signers := make(map[types.Address]crypto.Signer, len(o.keys))
	for _, k := range o.keys {
		addr := k.Address()
		if _, ok := seen[addr]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrForeignKey, addr)
		}
		signers[addr] = k
	}

	ledger, err := utxo.NewLedger(storage.NewPrefixDB(o.db, []byte("wallet/")), o.genesis, addrs)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	w := &Wallet{
		owned:   addrs,
		ledger:  ledger,
		signers: signers,
		logger:  o.logger,
	}
	w.engine = chainsync.New(ledger, chainsync.WithLogger(o.logger))

	tip, height := ledger.Tip()
	w.logger.Debug().
		Int("addresses", len(addrs)).
		Int("keys", len(signers)).
		Str("tip", tip.Short()).
		Uint64("height", height).
		Msg("Wallet opened")
	return w, nil
}

// Sync brings the wallet to the view's best tip. A failed chain query
// leaves the wallet as it was. A storage failure while writing blocks
// leaves it at the last block written; syncing again converges.
func (w *Wallet) Sync(ctx context.Context, view chainsync.ChainView) (*chainsync.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.engine.Sync(ctx, view)
}

// CreateManualTransaction spends exactly the given coins into exactly the
// given outputs. Inputs and outputs need not balance.
func (w *Wallet) CreateManualTransaction(inputs []types.CoinID, outputs []tx.Coin) (*tx.Transaction, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if len(inputs) == 0 {
		return nil, ErrZeroInputs
	}

	b := tx.NewBuilder()
	seen := make(map[types.CoinID]struct{}, len(inputs))
	for i, id := range inputs {
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: input %d repeats %s", ErrUnknownCoin, i, id)
		}
		seen[id] = struct{}{}

		c, err := w.ledger.CoinDetails(id)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		b.AddInput(id, c.Owner)
	}
	for i, out := range outputs {
		if out.Value == 0 {
			return nil, fmt.Errorf("%w: output %d", ErrZeroCoinValue, i)
		}
		b.AddOutput(out.Value, out.Owner)
	}
	return w.finish(b)
}

// CreateAutomaticTransaction pays amount to dest and burns tip, funding
// both from the smallest coins first. Any surplus returns as change to
// the owner of the largest selected coin. amount+tip is funded in full
// even when it exceeds math.MaxUint64, so exactly tip is burned.
func (w *Wallet) CreateAutomaticTransaction(dest types.Address, amount, tip uint64) (*tx.Transaction, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if len(w.owned) == 0 {
		return nil, ErrNoOwnedAddresses
	}
	if amount == 0 {
		return nil, ErrZeroCoinValue
	}

	coins, err := w.ledger.Unspent()
	if err != nil {
		return nil, fmt.Errorf("list coins: %w", err)
	}
	sel, err := SelectCoinsFor(coins, amount, tip)
	if err != nil {
		return nil, err
	}

	b := tx.NewBuilder()
	for _, in := range sel.Inputs {
		b.AddInput(in.ID, in.Coin.Owner)
	}
	b.AddOutput(amount, dest)
	if sel.Change > 0 {
		b.AddOutput(sel.Change, sel.Largest().Coin.Owner)
	}

	w.logger.Debug().
		Int("inputs", len(sel.Inputs)).
		Uint64("amount", amount).
		Uint64("tip", tip).
		Uint64("change", sel.Change).
		Msg("Built transaction")
	return w.finish(b)
}

func (w *Wallet) finish(b *tx.Builder) (*tx.Transaction, error) {
	if err := b.Sign(w.signers); err != nil {
		return nil, err
	}
	return b.Build(), nil
}

// BestHeight returns the height of the wallet's tip.
func (w *Wallet) BestHeight() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, h := w.ledger.Tip()
	return h
}

// BestHash returns the id of the wallet's tip.
func (w *Wallet) BestHash() types.Hash {
	w.mu.RLock()
	defer w.mu.RUnlock()
	id, _ := w.ledger.Tip()
	return id
}

// TotalAssetsOf sums the coins held by addr, saturating at
// math.MaxUint64.
func (w *Wallet) TotalAssetsOf(addr types.Address) (uint64, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.ledger.Owns(addr) {
		return 0, fmt.Errorf("%w: %s", ErrForeignAddress, addr)
	}
	return w.ledger.TotalOf(addr)
}

// NetWorth sums every coin the wallet holds, saturating at
// math.MaxUint64. A storage failure reads as zero and is logged.
func (w *Wallet) NetWorth() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	total, err := w.ledger.NetWorth()
	if err != nil {
		w.logger.Error().Err(err).Msg("Net worth unavailable")
		return 0
	}
	return total
}

// AllCoinsOf returns the value of every coin held by addr, keyed by id.
func (w *Wallet) AllCoinsOf(addr types.Address) (map[types.CoinID]uint64, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.ledger.Owns(addr) {
		return nil, fmt.Errorf("%w: %s", ErrForeignAddress, addr)
	}
	entries, err := w.ledger.CoinsOf(addr)
	if err != nil {
		return nil, err
	}
	out := make(map[types.CoinID]uint64, len(entries))
	for _, e := range entries {
		out[e.ID] = e.Coin.Value
	}
	return out, nil
}

// CoinDetails returns the unspent owned coin id, or ErrUnknownCoin.
func (w *Wallet) CoinDetails(id types.CoinID) (tx.Coin, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.ledger.CoinDetails(id)
}

// Coins returns every unspent coin the wallet holds, ordered by owner
// and then by value.
func (w *Wallet) Coins() ([]utxo.Entry, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	entries, err := w.ledger.Unspent()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Coin.Owner != b.Coin.Owner {
			return a.Coin.Owner.Hex() < b.Coin.Owner.Hex()
		}
		return a.Coin.Value < b.Coin.Value
	})
	return entries, nil
}

// Addresses returns the owned addresses in the order given to New.
func (w *Wallet) Addresses() []types.Address {
	out := make([]types.Address, len(w.owned))
	copy(out, w.owned)
	return out
}

// Owns reports whether addr is one of the wallet's addresses.
func (w *Wallet) Owns(addr types.Address) bool {
	return w.ledger.Owns(addr)
}

// Commitment returns the merkle commitment of the wallet's unspent set.
// Two wallets with the same owned coins share a commitment.
func (w *Wallet) Commitment() (types.Hash, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.ledger.Commitment()
}
