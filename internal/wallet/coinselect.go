package wallet

import (
	"errors"
	"fmt"
	"math/bits"
	"sort"

	"github.com/Klingon-tech/klingnet-wallet/internal/utxo"
)

// Coin selection errors.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrZeroTarget        = errors.New("target must be positive")
)

// CoinSelection holds the result of coin selection.
type CoinSelection struct {
	Inputs []utxo.Entry // Selected coins, smallest first.
	Total  uint64       // Sum of selected values, saturating.
	Change uint64       // Exact surplus over the target.
}

// Largest returns the selected coin with the highest value. Ties keep the
// later coin, which has the larger id.
func (s *CoinSelection) Largest() utxo.Entry {
	best := s.Inputs[0]
	for _, e := range s.Inputs[1:] {
		if e.Coin.Value >= best.Coin.Value {
			best = e
		}
	}
	return best
}

// SelectCoins funds target by taking coins in ascending value order,
// ties broken by coin id, until the running sum reaches the target.
// Change is computed against the last coin taken so it stays exact even
// when the total would not fit in a uint64.
func SelectCoins(coins []utxo.Entry, target uint64) (*CoinSelection, error) {
	return selectCoins(coins, target, 0)
}

// SelectCoinsFor funds amount plus tip without capping their sum, so the
// surplus burned over amount and change is always exactly tip.
func SelectCoinsFor(coins []utxo.Entry, amount, tip uint64) (*CoinSelection, error) {
	return selectCoins(coins, amount, tip)
}

func selectCoins(coins []utxo.Entry, amount, tip uint64) (*CoinSelection, error) {
	// need is the 128-bit remainder still to fund.
	needLo, needHi := bits.Add64(amount, tip, 0)
	if needLo == 0 && needHi == 0 {
		return nil, ErrZeroTarget
	}

	candidates := make([]utxo.Entry, 0, len(coins))
	for _, c := range coins {
		if c.Coin.Value > 0 {
			candidates = append(candidates, c)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Coin.Value != b.Coin.Value {
			return a.Coin.Value < b.Coin.Value
		}
		return a.ID.Compare(b.ID) < 0
	})

	sel := &CoinSelection{}
	for _, c := range candidates {
		v := c.Coin.Value
		sel.Inputs = append(sel.Inputs, c)
		sel.Total = utxo.SaturatingAdd(sel.Total, v)
		if needHi == 0 && v >= needLo {
			sel.Change = v - needLo
			return sel, nil
		}
		var borrow uint64
		needLo, borrow = bits.Sub64(needLo, v, 0)
		needHi -= borrow
	}
	if tip == 0 {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, sel.Total, amount)
	}
	return nil, fmt.Errorf("%w: have %d, need %d plus tip %d", ErrInsufficientFunds, sel.Total, amount, tip)
}
