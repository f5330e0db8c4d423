package chainsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-wallet/pkg/tx"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// ErrGenesisMismatch is returned when the node's chain does not share the
// ledger's genesis block.
var ErrGenesisMismatch = errors.New("node chain does not share the wallet genesis")

// pendingBlock is a block fetched from the node but not yet applied.
type pendingBlock struct {
	id     types.Hash
	height uint64
	txs    []*tx.Transaction
}

// Plan describes how to move the ledger to the node's best tip.
type Plan struct {
	Best           types.Hash
	BestHeight     uint64
	Ancestor       types.Hash
	AncestorHeight uint64
	// Rollback is the number of ledger blocks above the ancestor to undo.
	Rollback uint64
	// apply is the new branch, newest first.
	apply []pendingBlock
}

// Noop reports whether the ledger is already at the best tip.
func (p *Plan) Noop() bool {
	return p.Rollback == 0 && len(p.apply) == 0
}

// Apply returns the number of blocks to apply.
func (p *Plan) Apply() int {
	return len(p.apply)
}

// buildPlan queries the view and decides the rollback and apply sets
// without touching the ledger. Cost in queries: one when the best tip is
// the ledger tip or already on the ledger's chain, otherwise two plus two
// per block on the new branch.
func buildPlan(ctx context.Context, ledger Ledger, view ChainView) (*Plan, error) {
	tip, tipHeight := ledger.Tip()

	best, err := view.BestBlock()
	if err != nil {
		return nil, fmt.Errorf("best block: %w", err)
	}
	plan := &Plan{Best: best, Ancestor: best}

	if best == tip {
		plan.BestHeight, plan.AncestorHeight = tipHeight, tipHeight
		return plan, nil
	}

	// The node moved back onto a block the ledger already has.
	if h, ok := ledger.HeightOf(best); ok {
		plan.BestHeight, plan.AncestorHeight = h, h
		plan.Rollback = tipHeight - h
		return plan, nil
	}

	h, err := view.BlockHeight(best)
	if err != nil {
		return nil, fmt.Errorf("height of %s: %w", best, err)
	}
	plan.BestHeight = h

	cur := best
	for {
		if h <= tipHeight {
			if ours, _ := ledger.HashAt(h); ours == cur {
				break
			}
		}
		if h == 0 {
			return nil, fmt.Errorf("%w: node genesis %s", ErrGenesisMismatch, cur)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		txs, err := view.BlockTransactions(cur)
		if err != nil {
			return nil, fmt.Errorf("transactions of %s: %w", cur, err)
		}
		plan.apply = append(plan.apply, pendingBlock{id: cur, height: h, txs: txs})

		parent, err := view.BlockParent(cur)
		if err != nil {
			return nil, fmt.Errorf("parent of %s: %w", cur, err)
		}
		cur = parent
		h--
	}

	plan.Ancestor, plan.AncestorHeight = cur, h
	plan.Rollback = tipHeight - h
	return plan, nil
}
