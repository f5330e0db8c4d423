package wallet

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/Klingon-tech/klingnet-wallet/internal/chain"
	"github.com/Klingon-tech/klingnet-wallet/internal/chainsync"
	"github.com/Klingon-tech/klingnet-wallet/internal/log"
	"github.com/Klingon-tech/klingnet-wallet/internal/storage"
	"github.com/Klingon-tech/klingnet-wallet/pkg/block"
	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-wallet/pkg/tx"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

var (
	alice   = types.Address{0xa1}
	bob     = types.Address{0xb0}
	charlie = types.Address{0xc4}
	eve     = types.Address{0xe5}
)

func newNode(t *testing.T) *chain.Chain {
	t.Helper()
	node, err := chain.New(storage.NewMemory())
	if err != nil {
		t.Fatalf("chain.New: %v", err)
	}
	return node
}

func newWallet(t *testing.T, owned ...types.Address) *Wallet {
	t.Helper()
	w, err := New(owned, WithLogger(log.Nop()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w
}

func syncWallet(t *testing.T, w *Wallet, node *chain.Chain) *chainsync.Result {
	t.Helper()
	node.ResetQueryCount()
	res, err := w.Sync(context.Background(), node)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	return res
}

func addBest(t *testing.T, node *chain.Chain, parent types.Hash, txs ...*tx.Transaction) types.Hash {
	t.Helper()
	id, err := node.AddBlockAsBest(parent, txs)
	if err != nil {
		t.Fatalf("AddBlockAsBest: %v", err)
	}
	return id
}

func mint(outputs ...tx.Coin) *tx.Transaction {
	return &tx.Transaction{Inputs: []tx.Input{tx.DummyInput()}, Outputs: outputs}
}

func spend(id types.CoinID, owner types.Address, outputs ...tx.Coin) *tx.Transaction {
	b := tx.NewBuilder().AddInput(id, owner)
	for _, out := range outputs {
		b.AddOutput(out.Value, out.Owner)
	}
	return b.Build()
}

func assetsOf(t *testing.T, w *Wallet, addr types.Address) uint64 {
	t.Helper()
	v, err := w.TotalAssetsOf(addr)
	if err != nil {
		t.Fatalf("TotalAssetsOf: %v", err)
	}
	return v
}

// oneBlockWallet syncs a wallet owning alice and bob to a node whose best
// chain is a single block paying alice 100 and 15, bob 120 and charlie 50.
func oneBlockWallet(t *testing.T) (*chain.Chain, *Wallet, *tx.Transaction) {
	t.Helper()
	node := newNode(t)
	w := newWallet(t, alice, bob)
	m := mint(
		tx.Coin{Value: 100, Owner: alice},
		tx.Coin{Value: 15, Owner: alice},
		tx.Coin{Value: 120, Owner: bob},
		tx.Coin{Value: 50, Owner: charlie},
	)
	addBest(t, node, node.Genesis(), m)
	syncWallet(t, w, node)
	return node, w, m
}

func TestNew_EmptyWallet(t *testing.T) {
	w := newWallet(t)

	if _, err := w.CreateAutomaticTransaction(charlie, 10, 3); !errors.Is(err, ErrNoOwnedAddresses) {
		t.Errorf("automatic on empty wallet: got %v, want ErrNoOwnedAddresses", err)
	}
	if _, err := w.TotalAssetsOf(alice); !errors.Is(err, ErrForeignAddress) {
		t.Errorf("TotalAssetsOf: got %v, want ErrForeignAddress", err)
	}
	if _, err := w.AllCoinsOf(alice); !errors.Is(err, ErrForeignAddress) {
		t.Errorf("AllCoinsOf: got %v, want ErrForeignAddress", err)
	}
	if got := w.NetWorth(); got != 0 {
		t.Errorf("NetWorth = %d, want 0", got)
	}
	if w.BestHeight() != 0 || w.BestHash() != block.Genesis().ID() {
		t.Errorf("tip = %s@%d, want genesis", w.BestHash().Short(), w.BestHeight())
	}
}

func TestNew_DeduplicatesAddresses(t *testing.T) {
	w := newWallet(t, alice, bob, alice)
	addrs := w.Addresses()
	if len(addrs) != 2 || addrs[0] != alice || addrs[1] != bob {
		t.Errorf("Addresses = %v, want [alice bob]", addrs)
	}
	if !w.Owns(bob) || w.Owns(charlie) {
		t.Error("Owns reports the wrong set")
	}
}

func TestNew_ForeignKey(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	_, err = New([]types.Address{alice}, WithKeys(key), WithLogger(log.Nop()))
	if !errors.Is(err, ErrForeignKey) {
		t.Errorf("got %v, want ErrForeignKey", err)
	}
}

func TestSync_OwnedTotals(t *testing.T) {
	_, w, m := oneBlockWallet(t)

	if got := assetsOf(t, w, alice); got != 115 {
		t.Errorf("alice = %d, want 115", got)
	}
	if got := assetsOf(t, w, bob); got != 120 {
		t.Errorf("bob = %d, want 120", got)
	}
	if got := w.NetWorth(); got != 235 {
		t.Errorf("NetWorth = %d, want 235", got)
	}
	if _, err := w.TotalAssetsOf(charlie); !errors.Is(err, ErrForeignAddress) {
		t.Errorf("charlie: got %v, want ErrForeignAddress", err)
	}
	if _, err := w.CoinDetails(m.CoinID(1, 3)); !errors.Is(err, ErrUnknownCoin) {
		t.Errorf("foreign coin: got %v, want ErrUnknownCoin", err)
	}

	coins, err := w.AllCoinsOf(alice)
	if err != nil {
		t.Fatalf("AllCoinsOf: %v", err)
	}
	want := map[types.CoinID]uint64{m.CoinID(1, 0): 100, m.CoinID(1, 1): 15}
	if len(coins) != len(want) {
		t.Fatalf("AllCoinsOf = %v, want %v", coins, want)
	}
	for id, v := range want {
		if coins[id] != v {
			t.Errorf("coin %s = %d, want %d", id.String()[:8], coins[id], v)
		}
	}

	c, err := w.CoinDetails(m.CoinID(1, 2))
	if err != nil {
		t.Fatalf("CoinDetails: %v", err)
	}
	if c.Value != 120 || c.Owner != bob {
		t.Errorf("CoinDetails = %+v, want 120 to bob", c)
	}
}

func TestSync_SpendInSameBlock(t *testing.T) {
	node := newNode(t)
	w := newWallet(t, alice, bob)

	m := mint(tx.Coin{Value: 100, Owner: alice})
	move := spend(m.CoinID(1, 0), alice, tx.Coin{Value: 100, Owner: bob})
	addBest(t, node, node.Genesis(), m, move)
	syncWallet(t, w, node)

	if got := assetsOf(t, w, alice); got != 0 {
		t.Errorf("alice = %d, want 0", got)
	}
	if got := assetsOf(t, w, bob); got != 100 {
		t.Errorf("bob = %d, want 100", got)
	}
	if _, err := w.CoinDetails(m.CoinID(1, 0)); !errors.Is(err, ErrUnknownCoin) {
		t.Errorf("spent coin: got %v, want ErrUnknownCoin", err)
	}
}

func TestSync_SpendIntoForeignOutputInSameBlock(t *testing.T) {
	node := newNode(t)
	w := newWallet(t, alice)

	m := mint(tx.Coin{Value: 100, Owner: alice})
	gift := spend(m.CoinID(1, 0), alice, tx.Coin{Value: 100, Owner: charlie})
	addBest(t, node, node.Genesis(), m, gift)
	syncWallet(t, w, node)

	if got := w.NetWorth(); got != 0 {
		t.Errorf("NetWorth = %d, want 0", got)
	}
	if _, err := w.CoinDetails(gift.CoinID(1, 0)); !errors.Is(err, ErrUnknownCoin) {
		t.Errorf("foreign output: got %v, want ErrUnknownCoin", err)
	}
}

func TestSync_ReorgRestoresSpentCoin(t *testing.T) {
	node := newNode(t)
	w := newWallet(t, alice)

	m := mint(tx.Coin{Value: 100, Owner: alice})
	b1 := addBest(t, node, node.Genesis(), m)
	addBest(t, node, b1, spend(m.CoinID(1, 0), alice, tx.Coin{Value: 90, Owner: charlie}))
	syncWallet(t, w, node)
	if got := assetsOf(t, w, alice); got != 0 {
		t.Fatalf("alice after spend = %d, want 0", got)
	}

	b2 := addBest(t, node, b1)
	res := syncWallet(t, w, node)
	if res.Reverted != 1 || res.Applied != 1 {
		t.Errorf("reverted %d applied %d, want 1/1", res.Reverted, res.Applied)
	}
	if res.Queries != 4 || node.QueryCount() != 4 {
		t.Errorf("queries = %d (node %d), want 4", res.Queries, node.QueryCount())
	}
	if got := assetsOf(t, w, alice); got != 100 {
		t.Errorf("alice after reorg = %d, want 100", got)
	}
	if w.BestHash() != b2 || w.BestHeight() != 2 {
		t.Errorf("tip = %s@%d, want b2@2", w.BestHash().Short(), w.BestHeight())
	}
}

func TestSync_ReorgToShorterChain(t *testing.T) {
	node := newNode(t)
	w := newWallet(t, alice)

	old := []types.Hash{node.Genesis()}
	for i := 0; i < 9; i++ {
		old = append(old, addBest(t, node, old[len(old)-1]))
	}
	if _, err := node.AddBlock(old[9], []*tx.Transaction{mint(tx.Coin{Value: 1, Owner: eve})}); err != nil {
		t.Fatalf("AddBlock: %v", err)
	}
	addBest(t, node, old[9], mint(tx.Coin{Value: 5, Owner: alice}))
	syncWallet(t, w, node)
	if w.BestHeight() != 10 {
		t.Fatalf("height = %d, want 10", w.BestHeight())
	}

	b8 := addBest(t, node, old[7], mint(tx.Coin{Value: 2, Owner: eve}))
	b9 := addBest(t, node, b8)
	res := syncWallet(t, w, node)

	if w.BestHeight() != 9 || w.BestHash() != b9 {
		t.Errorf("tip = %s@%d, want b9'@9", w.BestHash().Short(), w.BestHeight())
	}
	if res.Reverted != 3 || res.Applied != 2 {
		t.Errorf("reverted %d applied %d, want 3/2", res.Reverted, res.Applied)
	}
	if got := assetsOf(t, w, alice); got != 0 {
		t.Errorf("alice = %d, want 0", got)
	}
}

func TestSync_CoinReappearsAfterReorgAndBack(t *testing.T) {
	node := newNode(t)
	w := newWallet(t, alice)

	b1 := addBest(t, node, node.Genesis(), mint(tx.Coin{Value: 50, Owner: alice}))
	m := mint(tx.Coin{Value: 10, Owner: alice})
	b2a := addBest(t, node, b1, m)
	syncWallet(t, w, node)
	coin := m.CoinID(2, 0)
	if _, err := w.CoinDetails(coin); err != nil {
		t.Fatalf("CoinDetails on branch a: %v", err)
	}
	before, err := w.Commitment()
	if err != nil {
		t.Fatalf("Commitment: %v", err)
	}

	addBest(t, node, b1, mint(tx.Coin{Value: 7, Owner: alice}))
	syncWallet(t, w, node)
	if _, err := w.CoinDetails(coin); !errors.Is(err, ErrUnknownCoin) {
		t.Errorf("branch b: got %v, want ErrUnknownCoin", err)
	}
	if got := assetsOf(t, w, alice); got != 57 {
		t.Errorf("alice on branch b = %d, want 57", got)
	}

	if err := node.SetBest(b2a); err != nil {
		t.Fatalf("SetBest: %v", err)
	}
	syncWallet(t, w, node)
	if _, err := w.CoinDetails(coin); err != nil {
		t.Errorf("back on branch a: %v", err)
	}
	after, err := w.Commitment()
	if err != nil {
		t.Fatalf("Commitment: %v", err)
	}
	if after != before {
		t.Error("unspent set differs after switching back")
	}
}

func TestSync_SameTransactionAtDifferentHeights(t *testing.T) {
	node := newNode(t)
	w := newWallet(t, alice)
	m := mint(tx.Coin{Value: 10, Owner: alice})

	addBest(t, node, node.Genesis(), m)
	syncWallet(t, w, node)
	if _, err := w.CoinDetails(m.CoinID(1, 0)); err != nil {
		t.Fatalf("coin at height 1: %v", err)
	}

	b1 := addBest(t, node, node.Genesis(), mint(tx.Coin{Value: 1, Owner: eve}))
	addBest(t, node, b1, m)
	syncWallet(t, w, node)
	if _, err := w.CoinDetails(m.CoinID(1, 0)); !errors.Is(err, ErrUnknownCoin) {
		t.Errorf("height-1 id: got %v, want ErrUnknownCoin", err)
	}
	if _, err := w.CoinDetails(m.CoinID(2, 0)); err != nil {
		t.Errorf("height-2 id: %v", err)
	}
	if got := assetsOf(t, w, alice); got != 10 {
		t.Errorf("alice = %d, want 10", got)
	}
}

func TestSync_Idempotent(t *testing.T) {
	node, w, _ := oneBlockWallet(t)
	before, err := w.Commitment()
	if err != nil {
		t.Fatalf("Commitment: %v", err)
	}
	hash, height := w.BestHash(), w.BestHeight()

	res := syncWallet(t, w, node)
	if res.Queries != 1 || node.QueryCount() != 1 {
		t.Errorf("queries = %d, want 1", node.QueryCount())
	}
	after, err := w.Commitment()
	if err != nil {
		t.Fatalf("Commitment: %v", err)
	}
	if after != before || w.BestHash() != hash || w.BestHeight() != height {
		t.Error("second sync changed wallet state")
	}
}

func TestSync_GenesisMismatch(t *testing.T) {
	node := newNode(t)
	addBest(t, node, node.Genesis(), mint(tx.Coin{Value: 10, Owner: alice}))

	other := types.Hash{0x42}
	w, err := New([]types.Address{alice}, WithGenesis(other), WithLogger(log.Nop()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := w.Sync(context.Background(), node); !errors.Is(err, chainsync.ErrGenesisMismatch) {
		t.Fatalf("Sync: got %v, want ErrGenesisMismatch", err)
	}
	if w.BestHash() != other || w.BestHeight() != 0 || w.NetWorth() != 0 {
		t.Error("failed sync changed wallet state")
	}
}

func TestSync_SaturatingTotals(t *testing.T) {
	node := newNode(t)
	w := newWallet(t, alice, bob)
	addBest(t, node, node.Genesis(), mint(
		tx.Coin{Value: math.MaxUint64, Owner: alice},
		tx.Coin{Value: 10, Owner: alice},
		tx.Coin{Value: 3, Owner: bob},
	))
	syncWallet(t, w, node)

	if got := assetsOf(t, w, alice); got != math.MaxUint64 {
		t.Errorf("alice = %d, want MaxUint64", got)
	}
	if got := w.NetWorth(); got != math.MaxUint64 {
		t.Errorf("NetWorth = %d, want MaxUint64", got)
	}
}

// A thousand blocks, each minting 10 to alice and splitting that coin into
// 2 for bob and 3 for alice in the same block.
func TestSync_ThousandBlocksAndReorg(t *testing.T) {
	node := newNode(t)
	w := newWallet(t, alice, bob)

	last := node.Genesis()
	var at850 types.Hash
	for i := uint64(1); i <= 1000; i++ {
		m := mint(tx.Coin{Value: 10, Owner: alice})
		split := spend(m.CoinID(i, 0), alice,
			tx.Coin{Value: 2, Owner: bob},
			tx.Coin{Value: 3, Owner: alice},
		)
		last = addBest(t, node, last, m, split)
		if i == 850 {
			at850 = last
		}
	}

	syncWallet(t, w, node)
	if w.BestHeight() != 1000 || w.BestHash() != last {
		t.Fatalf("tip = %s@%d, want block 1000", w.BestHash().Short(), w.BestHeight())
	}
	if got := assetsOf(t, w, alice); got != 3000 {
		t.Errorf("alice = %d, want 3000", got)
	}
	if got := assetsOf(t, w, bob); got != 2000 {
		t.Errorf("bob = %d, want 2000", got)
	}

	if err := node.SetBest(at850); err != nil {
		t.Fatalf("SetBest: %v", err)
	}
	syncWallet(t, w, node)
	if node.QueryCount() != 1 {
		t.Errorf("rollback queries = %d, want 1", node.QueryCount())
	}
	if w.BestHeight() != 850 || w.BestHash() != at850 {
		t.Errorf("tip = %s@%d, want block 850", w.BestHash().Short(), w.BestHeight())
	}
	if got := assetsOf(t, w, alice); got != 2550 {
		t.Errorf("alice = %d, want 2550", got)
	}
	if got := assetsOf(t, w, bob); got != 1700 {
		t.Errorf("bob = %d, want 1700", got)
	}
	if got := w.NetWorth(); got != 4250 {
		t.Errorf("NetWorth = %d, want 4250", got)
	}

	if err := node.SetBest(last); err != nil {
		t.Fatalf("SetBest: %v", err)
	}
	syncWallet(t, w, node)
	if got, want := node.QueryCount(), uint64(2+2*150); got != want {
		t.Errorf("forward queries = %d, want %d", got, want)
	}
	if got := w.NetWorth(); got != 5000 {
		t.Errorf("NetWorth = %d, want 5000", got)
	}
}

func TestCreateManualTransaction(t *testing.T) {
	_, w, m := oneBlockWallet(t)
	aliceCoin := m.CoinID(1, 0)
	bobCoin := m.CoinID(1, 2)
	out := []tx.Coin{{Value: 10, Owner: eve}}

	tests := []struct {
		name    string
		inputs  []types.CoinID
		outputs []tx.Coin
		wantErr error
	}{
		{"no inputs", nil, out, ErrZeroInputs},
		{"duplicate input", []types.CoinID{aliceCoin, aliceCoin}, nil, ErrUnknownCoin},
		{"foreign coin", []types.CoinID{m.CoinID(1, 3)}, out, ErrUnknownCoin},
		{"wrong height", []types.CoinID{m.CoinID(2, 0)}, out, ErrUnknownCoin},
		{"zero output", []types.CoinID{aliceCoin}, []tx.Coin{{Value: 0, Owner: eve}}, ErrZeroCoinValue},
		{"unknown before zero output", []types.CoinID{{0x99}}, []tx.Coin{{Value: 0, Owner: eve}}, ErrUnknownCoin},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := w.CreateManualTransaction(tt.inputs, tt.outputs)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}

	// No balance enforcement: outputs may exceed inputs.
	big := []tx.Coin{{Value: 1000, Owner: eve}, {Value: 1, Owner: alice}}
	got, err := w.CreateManualTransaction([]types.CoinID{aliceCoin, bobCoin}, big)
	if err != nil {
		t.Fatalf("CreateManualTransaction: %v", err)
	}
	if len(got.Inputs) != 2 || got.Inputs[0].CoinID != aliceCoin || got.Inputs[1].CoinID != bobCoin {
		t.Errorf("inputs = %+v", got.Inputs)
	}
	if got.Inputs[0].Signature.Owner != alice || got.Inputs[1].Signature.Owner != bob {
		t.Error("inputs should claim the coin owners")
	}
	if len(got.Outputs) != 2 || got.Outputs[0] != big[0] || got.Outputs[1] != big[1] {
		t.Errorf("outputs = %+v, want %+v", got.Outputs, big)
	}

	empty, err := w.CreateManualTransaction([]types.CoinID{aliceCoin}, nil)
	if err != nil {
		t.Fatalf("empty outputs: %v", err)
	}
	if len(empty.Outputs) != 0 {
		t.Errorf("outputs = %d, want 0", len(empty.Outputs))
	}
}

func TestCreateAutomaticTransaction_SmallCoinsFirst(t *testing.T) {
	node := newNode(t)
	w := newWallet(t, alice, bob)
	m := mint(
		tx.Coin{Value: 100, Owner: alice},
		tx.Coin{Value: 50, Owner: bob},
		tx.Coin{Value: 12, Owner: bob},
		tx.Coin{Value: 500, Owner: alice},
		tx.Coin{Value: 5, Owner: bob},
		tx.Coin{Value: 150, Owner: bob},
		tx.Coin{Value: 3, Owner: alice},
	)
	addBest(t, node, node.Genesis(), m)
	syncWallet(t, w, node)

	got, err := w.CreateAutomaticTransaction(eve, 17, 3)
	if err != nil {
		t.Fatalf("CreateAutomaticTransaction: %v", err)
	}
	want := map[types.CoinID]bool{m.CoinID(1, 2): true, m.CoinID(1, 4): true, m.CoinID(1, 6): true}
	if len(got.Inputs) != len(want) {
		t.Fatalf("inputs = %d, want %d", len(got.Inputs), len(want))
	}
	for _, in := range got.Inputs {
		if !want[in.CoinID] {
			t.Errorf("unexpected input %s", in.CoinID.String()[:8])
		}
	}
	if len(got.Outputs) != 1 || got.Outputs[0] != (tx.Coin{Value: 17, Owner: eve}) {
		t.Errorf("outputs = %+v, want one payment of 17 to eve", got.Outputs)
	}
}

func TestCreateAutomaticTransaction_ChangeToLargestInputOwner(t *testing.T) {
	node := newNode(t)
	w := newWallet(t, alice, bob)
	addBest(t, node, node.Genesis(), mint(
		tx.Coin{Value: 4, Owner: alice},
		tx.Coin{Value: 30, Owner: bob},
		tx.Coin{Value: 1000, Owner: alice},
	))
	syncWallet(t, w, node)

	got, err := w.CreateAutomaticTransaction(charlie, 20, 2)
	if err != nil {
		t.Fatalf("CreateAutomaticTransaction: %v", err)
	}
	if len(got.Inputs) != 2 {
		t.Fatalf("inputs = %d, want 2", len(got.Inputs))
	}
	if len(got.Outputs) != 2 {
		t.Fatalf("outputs = %d, want payment and change", len(got.Outputs))
	}
	if got.Outputs[0] != (tx.Coin{Value: 20, Owner: charlie}) {
		t.Errorf("payment = %+v", got.Outputs[0])
	}
	if got.Outputs[1] != (tx.Coin{Value: 12, Owner: bob}) {
		t.Errorf("change = %+v, want 12 to bob", got.Outputs[1])
	}
}

func TestCreateAutomaticTransaction_Errors(t *testing.T) {
	_, w, _ := oneBlockWallet(t)

	if _, err := w.CreateAutomaticTransaction(charlie, 0, 0); !errors.Is(err, ErrZeroCoinValue) {
		t.Errorf("zero amount: got %v, want ErrZeroCoinValue", err)
	}
	if _, err := w.CreateAutomaticTransaction(charlie, w.NetWorth()-3, 4); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("one over: got %v, want ErrInsufficientFunds", err)
	}
	if _, err := w.CreateAutomaticTransaction(charlie, math.MaxUint64, math.MaxUint64); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("target beyond uint64: got %v, want ErrInsufficientFunds", err)
	}
}

func TestCreateAutomaticTransaction_ExactFundsNoChange(t *testing.T) {
	_, w, _ := oneBlockWallet(t)
	got, err := w.CreateAutomaticTransaction(charlie, w.NetWorth()-3, 3)
	if err != nil {
		t.Fatalf("CreateAutomaticTransaction: %v", err)
	}
	if len(got.Inputs) != 3 {
		t.Errorf("inputs = %d, want 3", len(got.Inputs))
	}
	if len(got.Outputs) != 1 {
		t.Errorf("outputs = %d, want 1", len(got.Outputs))
	}
}

func TestCreateAutomaticTransaction_AppliedOnlyAfterSync(t *testing.T) {
	node, w, _ := oneBlockWallet(t)

	spendTx, err := w.CreateAutomaticTransaction(charlie, 26, 2)
	if err != nil {
		t.Fatalf("CreateAutomaticTransaction: %v", err)
	}
	if got := w.NetWorth(); got != 235 {
		t.Errorf("NetWorth before inclusion = %d, want 235", got)
	}

	b1, err := node.BestBlockAtHeight(1)
	if err != nil {
		t.Fatalf("BestBlockAtHeight: %v", err)
	}
	addBest(t, node, b1, spendTx)
	syncWallet(t, w, node)
	if got := w.NetWorth(); got != 235-26-2 {
		t.Errorf("NetWorth = %d, want %d", got, 235-26-2)
	}

	// The payment went to charlie, who is not owned.
	if _, err := w.CreateManualTransaction([]types.CoinID{spendTx.CoinID(2, 0)}, nil); !errors.Is(err, ErrUnknownCoin) {
		t.Errorf("spending charlie's coin: got %v, want ErrUnknownCoin", err)
	}
}

func TestCreateAutomaticTransaction_HugeCoin(t *testing.T) {
	node := newNode(t)
	w := newWallet(t, alice)
	b1 := addBest(t, node, node.Genesis(), mint(
		tx.Coin{Value: 16, Owner: alice},
		tx.Coin{Value: math.MaxUint64, Owner: alice},
	))
	syncWallet(t, w, node)

	got, err := w.CreateAutomaticTransaction(bob, 17, 3)
	if err != nil {
		t.Fatalf("CreateAutomaticTransaction: %v", err)
	}
	addBest(t, node, b1, got)
	syncWallet(t, w, node)

	if v := assetsOf(t, w, alice); v != math.MaxUint64-4 {
		t.Errorf("alice = %d, want %d", v, uint64(math.MaxUint64-4))
	}
}

func TestCreateAutomaticTransaction_BurnsExactTipBeyondUint64(t *testing.T) {
	node := newNode(t)
	w := newWallet(t, alice)
	b1 := addBest(t, node, node.Genesis(), mint(
		tx.Coin{Value: math.MaxUint64, Owner: alice},
		tx.Coin{Value: math.MaxUint64, Owner: alice},
	))
	syncWallet(t, w, node)

	got, err := w.CreateAutomaticTransaction(bob, math.MaxUint64, 5)
	if err != nil {
		t.Fatalf("CreateAutomaticTransaction: %v", err)
	}
	if len(got.Inputs) != 2 {
		t.Fatalf("inputs = %d, want 2", len(got.Inputs))
	}
	if len(got.Outputs) != 2 {
		t.Fatalf("outputs = %d, want 2", len(got.Outputs))
	}
	if got.Outputs[0].Value != math.MaxUint64 || got.Outputs[0].Owner != bob {
		t.Errorf("payment = %+v", got.Outputs[0])
	}
	if got.Outputs[1].Value != math.MaxUint64-5 || got.Outputs[1].Owner != alice {
		t.Errorf("change = %+v, want %d to alice", got.Outputs[1], uint64(math.MaxUint64-5))
	}

	addBest(t, node, b1, got)
	syncWallet(t, w, node)
	if v := assetsOf(t, w, alice); v != math.MaxUint64-5 {
		t.Errorf("alice = %d, want %d", v, uint64(math.MaxUint64-5))
	}

	// One huge coin cannot cover amount plus tip.
	if _, err := w.CreateAutomaticTransaction(bob, math.MaxUint64-5, 1); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("over by tip: got %v, want ErrInsufficientFunds", err)
	}
}

func TestCreateAutomaticTransaction_Signed(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	owner := key.Address()

	node := newNode(t)
	w, err := New([]types.Address{owner, bob}, WithKeys(key), WithLogger(log.Nop()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	addBest(t, node, node.Genesis(), mint(
		tx.Coin{Value: 5, Owner: owner},
		tx.Coin{Value: 6, Owner: bob},
	))
	syncWallet(t, w, node)

	got, err := w.CreateAutomaticTransaction(charlie, 10, 0)
	if err != nil {
		t.Fatalf("CreateAutomaticTransaction: %v", err)
	}
	if len(got.Inputs) != 2 {
		t.Fatalf("inputs = %d, want 2", len(got.Inputs))
	}
	hash := got.Hash()
	for _, in := range got.Inputs {
		sig := in.Signature
		switch sig.Owner {
		case owner:
			if !crypto.VerifySignature(hash[:], sig.Sig, sig.PubKey) {
				t.Error("signature for keyed owner does not verify")
			}
		case bob:
			if len(sig.Sig) != 0 || len(sig.PubKey) != 0 {
				t.Error("input without a key should carry only the owner claim")
			}
		default:
			t.Errorf("unexpected owner %s", sig.Owner)
		}
	}
}

func TestWallet_ReopenFromDB(t *testing.T) {
	db := storage.NewMemory()
	node := newNode(t)
	b1 := addBest(t, node, node.Genesis(), mint(tx.Coin{Value: 40, Owner: alice}))
	addBest(t, node, b1, mint(tx.Coin{Value: 2, Owner: alice}))

	w1, err := New([]types.Address{alice}, WithDB(db), WithLogger(log.Nop()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	syncWallet(t, w1, node)

	w2, err := New([]types.Address{alice}, WithDB(db), WithLogger(log.Nop()))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if w2.BestHeight() != 2 || w2.BestHash() != w1.BestHash() {
		t.Errorf("reopened tip = %s@%d, want %s@2", w2.BestHash().Short(), w2.BestHeight(), w1.BestHash().Short())
	}
	if got := assetsOf(t, w2, alice); got != 42 {
		t.Errorf("alice = %d, want 42", got)
	}

	res := syncWallet(t, w2, node)
	if res.Queries != 1 {
		t.Errorf("queries after reopen = %d, want 1", res.Queries)
	}

	// The reopened journal still rolls back.
	if err := node.SetBest(b1); err != nil {
		t.Fatalf("SetBest: %v", err)
	}
	syncWallet(t, w2, node)
	if got := assetsOf(t, w2, alice); got != 40 {
		t.Errorf("alice after rollback = %d, want 40", got)
	}
}

func TestWallet_ReopenWithOtherAddresses(t *testing.T) {
	db := storage.NewMemory()
	node := newNode(t)
	addBest(t, node, node.Genesis(), mint(
		tx.Coin{Value: 10, Owner: alice},
		tx.Coin{Value: 7, Owner: bob},
	))

	w1, err := New([]types.Address{alice, bob}, WithDB(db), WithLogger(log.Nop()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	syncWallet(t, w1, node)
	if got := w1.NetWorth(); got != 17 {
		t.Fatalf("net worth = %d, want 17", got)
	}

	if _, err := New([]types.Address{alice}, WithDB(db), WithLogger(log.Nop())); !errors.Is(err, ErrOwnedChanged) {
		t.Fatalf("reopen alice only: error = %v, want ErrOwnedChanged", err)
	}

	// The refused reopen left the records intact.
	w2, err := New([]types.Address{bob, alice}, WithDB(db), WithLogger(log.Nop()))
	if err != nil {
		t.Fatalf("reopen same set: %v", err)
	}
	if got := w2.NetWorth(); got != 17 {
		t.Errorf("net worth after reopen = %d, want 17", got)
	}
}

func TestWallet_Coins(t *testing.T) {
	_, w, _ := oneBlockWallet(t)
	coins, err := w.Coins()
	if err != nil {
		t.Fatalf("Coins: %v", err)
	}
	if len(coins) != 3 {
		t.Fatalf("coins = %d, want 3", len(coins))
	}
	if coins[0].Coin.Owner != alice || coins[0].Coin.Value != 15 || coins[1].Coin.Value != 100 {
		t.Errorf("coins not ordered by owner then value: %+v", coins)
	}
	if coins[2].Coin.Owner != bob {
		t.Errorf("last coin owner = %s, want bob", coins[2].Coin.Owner)
	}
}
