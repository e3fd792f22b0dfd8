package account

import (
	"math/big"
	"sort"
)

// SelectCoverage selects unspent coins whose combined value meets or
// exceeds target. If the account balance cannot cover the target, a
// *ErrInsufficientFunds is returned and no selection is made.
//
// Coins are considered in ascending value order. As long as no single
// remaining coin covers what is still missing, the smallest coin is taken
// and the missing amount reduced; once a coin can cover the remainder on
// its own, the smallest such coin completes the selection. The result is a
// simple coverage heuristic, not a minimal-input-count optimization. Coins
// of equal value are considered in coin-reference order, so the selection
// is fully deterministic for a given unspent set.
func (a *Account) SelectCoverage(target *big.Int) ([]*Spendable, error) {
	if target == nil || target.Sign() <= 0 {
		return []*Spendable{}, nil
	}

	if a.balance.Cmp(target) < 0 {
		return nil, &ErrInsufficientFunds{
			Available: a.Balance(),
			Needed:    new(big.Int).Set(target),
		}
	}

	// Unspent already enumerates in coin-reference order, which the
	// stable sort preserves across equal values.
	coins := a.Unspent()
	sort.SliceStable(coins, func(i, j int) bool {
		return coins[i].TxOut.Value < coins[j].TxOut.Value
	})

	var (
		selected  []*Spendable
		remaining = new(big.Int).Set(target)
	)
	for i := 0; remaining.Sign() > 0 && i < len(coins); {
		// The smallest coin covering the remainder on its own
		// completes the selection.
		idx := i + sort.Search(len(coins)-i, func(j int) bool {
			return coins[i+j].Value().Cmp(remaining) >= 0
		})
		if idx < len(coins) {
			selected = append(selected, coins[idx])
			remaining.SetInt64(0)
			break
		}

		// No single coin suffices, so take the smallest and keep
		// accumulating.
		selected = append(selected, coins[i])
		remaining.Sub(remaining, coins[i].Value())
		i++
	}

	// Unreachable while the coherence invariant holds, since the
	// balance equals the sum over all unspent coins.
	if remaining.Sign() > 0 {
		return nil, &ErrInsufficientFunds{
			Available: a.Balance(),
			Needed:    new(big.Int).Set(target),
		}
	}

	log.Tracef("Covered target %v with %d of %d unspent coins", target,
		len(selected), len(coins))

	return selected, nil
}
