package account

import (
	"math/big"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
)

// testChainIndex is a ChainIndex over two explicit block sets.
type testChainIndex struct {
	known  map[chainhash.Hash]bool
	active map[chainhash.Hash]bool
}

func newTestChainIndex() *testChainIndex {
	return &testChainIndex{
		known:  make(map[chainhash.Hash]bool),
		active: make(map[chainhash.Hash]bool),
	}
}

// add marks the block as known, and as part of the active chain when
// active is set.
func (c *testChainIndex) add(block fn.Option[chainhash.Hash], active bool) {
	hash := block.UnwrapOr(chainhash.Hash{})
	c.known[hash] = true
	c.active[hash] = active
}

func (c *testChainIndex) Contains(block chainhash.Hash,
	activeOnly bool) bool {

	if activeOnly {
		return c.active[block]
	}
	return c.known[block]
}

// TestInChain walks a small reorg: two income entries from different
// blocks, one of which drops off the active chain, and asserts the scan
// singles out exactly the entries needing correction.
func TestInChain(t *testing.T) {
	t.Parallel()

	a, err := NewAccount(nil)
	require.NoError(t, err)

	chain := newTestChainIndex()

	blockGood := testBlock(1)
	blockStale := testBlock(2)
	chain.add(blockGood, true)
	chain.add(blockStale, false)

	coinA := testSpendable(t, 1, 1000)
	coinB := testSpendable(t, 2, 2000)

	entryA := incomeEntry(t, coinA, blockGood)
	entryB := incomeEntry(t, coinB, blockStale)
	appendEntry(t, a, entryA)
	appendEntry(t, a, entryB)

	// An entry with no originating block never participates.
	appendEntry(t, a, incomeEntry(
		t, testSpendable(t, 3, 1), fn.None[chainhash.Hash](),
	))

	// Coin B's income came from the stale block, so it's the one entry
	// that needs neutralizing.
	stale, err := a.InChain(chain, false)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	require.Equal(t, entryB, stale[coinB.OutPoint])

	inChain, err := a.InChain(chain, true)
	require.NoError(t, err)
	require.Len(t, inChain, 1)
	require.Equal(t, entryA, inChain[coinA.OutPoint])

	// Neutralize the stale income. The coin leaves the unspent set, so
	// the income entry stops counting and the correction entry takes
	// its place as coin B's representative.
	appendEntry(t, a, entryB.Neutralize())
	require.Equal(t, big.NewInt(1001), a.Balance())

	stale, err = a.InChain(chain, false)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	rep := stale[coinB.OutPoint]
	require.Equal(t, ReasonChainBlockChanged, rep.Reason)
	require.Equal(t, coinB.OutPoint, rep.Spendable.OutPoint)
}

// TestInChainSpentIncome asserts that an income entry stops representing
// its coin once the coin is spent, even when its block stays active.
func TestInChainSpentIncome(t *testing.T) {
	t.Parallel()

	a, err := NewAccount(nil)
	require.NoError(t, err)

	chain := newTestChainIndex()
	block := testBlock(5)
	chain.add(block, true)

	coin := testSpendable(t, 5, 700)
	appendEntry(t, a, incomeEntry(t, coin, block))
	appendEntry(t, a, outcomeEntry(t, coin, block))

	// The income no longer counts (the coin is spent), and the outcome
	// isn't a correction entry, so nothing represents the coin.
	inChain, err := a.InChain(chain, true)
	require.NoError(t, err)
	require.Empty(t, inChain)
}
