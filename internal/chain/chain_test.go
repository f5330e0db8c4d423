package chain

import (
	"errors"
	"testing"

	"github.com/Klingon-tech/klingnet-wallet/internal/storage"
	"github.com/Klingon-tech/klingnet-wallet/pkg/block"
	"github.com/Klingon-tech/klingnet-wallet/pkg/tx"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

func newTestChain(t *testing.T) *Chain {
	t.Helper()
	c, err := New(storage.NewMemory())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func mintTx(value uint64) *tx.Transaction {
	return tx.NewBuilder().AddOutput(value, types.Address{0x01}).Build()
}

func TestNew_SeedsGenesis(t *testing.T) {
	c := newTestChain(t)
	best, h := c.Best()
	if best != block.Genesis().ID() || h != 0 {
		t.Errorf("best = %s@%d, want genesis@0", best.Short(), h)
	}
	if c.Genesis() != block.Genesis().ID() {
		t.Error("Genesis() mismatch")
	}
	if _, err := c.BlockParent(c.Genesis()); !errors.Is(err, ErrNoParent) {
		t.Errorf("BlockParent(genesis) error = %v, want ErrNoParent", err)
	}
}

func TestAddBlock_DoesNotMoveBest(t *testing.T) {
	c := newTestChain(t)
	id, err := c.AddBlock(c.Genesis(), []*tx.Transaction{mintTx(5)})
	if err != nil {
		t.Fatalf("AddBlock: %v", err)
	}
	if best, _ := c.Best(); best != c.Genesis() {
		t.Error("AddBlock moved the best tip")
	}

	again, err := c.AddBlock(c.Genesis(), []*tx.Transaction{mintTx(5)})
	if err != nil {
		t.Fatalf("AddBlock again: %v", err)
	}
	if again != id {
		t.Error("same parent and transactions should give the same block")
	}
	sibling, _ := c.AddBlockWithNonce(c.Genesis(), []*tx.Transaction{mintTx(5)}, 1)
	if sibling == id {
		t.Error("nonce should give a distinct sibling")
	}

	if h, err := c.BlockHeight(id); err != nil || h != 1 {
		t.Errorf("BlockHeight = %d, %v; want 1", h, err)
	}
	txs, err := c.BlockTransactions(id)
	if err != nil {
		t.Fatalf("BlockTransactions: %v", err)
	}
	if len(txs) != 1 || txs[0].Hash() != mintTx(5).Hash() {
		t.Error("stored transactions differ")
	}
}

func TestBlockCount_IncludesForks(t *testing.T) {
	c := newTestChain(t)
	if n, err := c.BlockCount(); err != nil || n != 1 {
		t.Fatalf("BlockCount = %d, %v; want 1", n, err)
	}
	main, _ := c.AddBlockAsBest(c.Genesis(), []*tx.Transaction{mintTx(1)})
	c.AddBlock(c.Genesis(), []*tx.Transaction{mintTx(2)})
	c.AddBlock(main, []*tx.Transaction{mintTx(3)})
	c.AddBlock(main, []*tx.Transaction{mintTx(3)}) // duplicate
	if n, _ := c.BlockCount(); n != 4 {
		t.Errorf("BlockCount = %d, want 4", n)
	}
}

func TestAddBlock_UnknownParent(t *testing.T) {
	c := newTestChain(t)
	if _, err := c.AddBlock(types.Hash{0xde}, nil); !errors.Is(err, ErrUnknownBlock) {
		t.Errorf("error = %v, want ErrUnknownBlock", err)
	}
	if err := c.SetBest(types.Hash{0xde}); !errors.Is(err, ErrUnknownBlock) {
		t.Errorf("SetBest error = %v, want ErrUnknownBlock", err)
	}
	if _, err := c.BlockHeight(types.Hash{0xde}); !errors.Is(err, ErrUnknownBlock) {
		t.Errorf("BlockHeight error = %v, want ErrUnknownBlock", err)
	}
}

func TestSetBestAndBestBlockAtHeight(t *testing.T) {
	c := newTestChain(t)
	ids := []types.Hash{c.Genesis()}
	for i := 1; i <= 5; i++ {
		id, err := c.AddBlockAsBest(ids[i-1], []*tx.Transaction{mintTx(uint64(i))})
		if err != nil {
			t.Fatalf("AddBlockAsBest %d: %v", i, err)
		}
		ids = append(ids, id)
	}
	if best, h := c.Best(); best != ids[5] || h != 5 {
		t.Fatalf("best = %s@%d, want block 5", best.Short(), h)
	}

	for h := uint64(0); h <= 5; h++ {
		got, err := c.BestBlockAtHeight(h)
		if err != nil {
			t.Fatalf("BestBlockAtHeight(%d): %v", h, err)
		}
		if got != ids[h] {
			t.Errorf("BestBlockAtHeight(%d) = %s, want %s", h, got.Short(), ids[h].Short())
		}
	}
	if _, err := c.BestBlockAtHeight(6); !errors.Is(err, ErrHeightAbove) {
		t.Errorf("error = %v, want ErrHeightAbove", err)
	}

	if err := c.SetBest(ids[2]); err != nil {
		t.Fatalf("SetBest: %v", err)
	}
	if _, h := c.Best(); h != 2 {
		t.Errorf("height after SetBest = %d, want 2", h)
	}
	if err := c.SetBest(c.Genesis()); err != nil {
		t.Fatalf("SetBest(genesis): %v", err)
	}
}

func TestQueryCount(t *testing.T) {
	c := newTestChain(t)
	id, _ := c.AddBlockAsBest(c.Genesis(), nil)
	c.GetBlock(id)
	c.BestBlockAtHeight(0)
	c.BlockCount()
	if n := c.QueryCount(); n != 0 {
		t.Fatalf("non-view calls counted: %d", n)
	}

	c.BestBlock()
	c.BlockHeight(id)
	c.BlockParent(id)
	c.BlockTransactions(id)
	c.BlockHeight(types.Hash{0x01})
	if n := c.QueryCount(); n != 5 {
		t.Errorf("QueryCount = %d, want 5", n)
	}
	c.ResetQueryCount()
	if n := c.QueryCount(); n != 0 {
		t.Errorf("QueryCount after reset = %d", n)
	}
}

func TestChain_BadgerResume(t *testing.T) {
	dir := t.TempDir()
	db, err := storage.NewBadger(dir)
	if err != nil {
		t.Fatalf("NewBadger: %v", err)
	}
	c, err := New(db)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	id, err := c.AddBlockAsBest(c.Genesis(), []*tx.Transaction{mintTx(9)})
	if err != nil {
		t.Fatalf("AddBlockAsBest: %v", err)
	}
	db.Close()

	db2, err := storage.NewBadger(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db2.Close()
	c2, err := New(db2)
	if err != nil {
		t.Fatalf("New after reopen: %v", err)
	}
	if best, h := c2.Best(); best != id || h != 1 {
		t.Errorf("resumed best = %s@%d, want %s@1", best.Short(), h, id.Short())
	}
	if n, _ := c2.BlockCount(); n != 2 {
		t.Errorf("stored blocks = %d, want 2", n)
	}
}

func TestChain_ResetNamespace(t *testing.T) {
	inner := storage.NewMemory()
	nodeDB := storage.NewPrefixDB(inner, []byte("node/"))
	c, err := New(nodeDB)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.AddBlockAsBest(c.Genesis(), []*tx.Transaction{mintTx(1)})
	inner.Put([]byte("wallet/keep"), []byte{1})

	if err := nodeDB.DeleteAll(); err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	c2, err := New(nodeDB)
	if err != nil {
		t.Fatalf("New after reset: %v", err)
	}
	if best, h := c2.Best(); best != block.Genesis().ID() || h != 0 {
		t.Errorf("best after reset = %s@%d, want genesis@0", best.Short(), h)
	}
	if n, _ := c2.BlockCount(); n != 1 {
		t.Errorf("BlockCount after reset = %d, want 1", n)
	}
	if ok, _ := inner.Has([]byte("wallet/keep")); !ok {
		t.Error("reset removed keys outside the node namespace")
	}
}
