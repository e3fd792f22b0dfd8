package account

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// ChainIndex answers whether a block is currently known to the chain. It
// is the single predicate the account consumes from the surrounding block
// index when reconciling its history against a reorganized chain.
type ChainIndex interface {
	// Contains reports whether the block is known, restricted to the
	// currently active chain when activeOnly is set.
	Contains(block chainhash.Hash, activeOnly bool) bool
}

// InChain scans the processed history and returns, per coin reference, the
// most recent entry whose originating block's active-chain membership
// equals wantInChain:
//
//   - an income entry counts while its coin is still unspent
//   - a chain-correction entry counts once its coin is no longer unspent,
//     meaning the coin was spent or the correction itself removed it
//
// Entries without an originating block never count. Later entries for the
// same coin reference overwrite earlier ones, so the result holds exactly
// the events a caller needs to neutralize (wantInChain=false, after blocks
// dropped out of the active chain) or restore (wantInChain=true) to bring
// the account back in line with the chain.
//
// The scan re-reads the stream up to the processed count and therefore
// moves the shared stream cursor.
func (a *Account) InChain(chain ChainIndex,
	wantInChain bool) (map[wire.OutPoint]*AccountEntry, error) {

	result := make(map[wire.OutPoint]*AccountEntry)
	err := a.forEachProcessed(func(entry *AccountEntry) error {
		if entry.Block.IsNone() {
			return nil
		}
		block := entry.Block.UnwrapOr(chainhash.Hash{})
		if chain.Contains(block, true) != wantInChain {
			return nil
		}

		outPoint := entry.Spendable.OutPoint
		_, unspent := a.unspent[outPoint]

		switch {
		case entry.Reason == ReasonIncome && unspent:
			result[outPoint] = entry

		case entry.Reason == ReasonChainBlockChanged && !unspent:
			result[outPoint] = entry
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}
