package account

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/fatihkck/coinledger/txoutcodec"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// appendEntry folds an entry into the account and asserts it was accepted.
func appendEntry(t *testing.T, a *Account, entry *AccountEntry) {
	t.Helper()

	accepted, err := a.Append(entry)
	require.NoError(t, err)
	require.True(t, accepted)
}

// incomeEntry builds an income entry crediting the coin's full value.
func incomeEntry(t *testing.T, coin *Spendable,
	block fn.Option[chainhash.Hash]) *AccountEntry {

	t.Helper()

	entry, err := NewBalanceChangeEntry(block, coin, coin.Value())
	require.NoError(t, err)

	return entry
}

// outcomeEntry builds an outcome entry debiting the coin's full value.
func outcomeEntry(t *testing.T, coin *Spendable,
	block fn.Option[chainhash.Hash]) *AccountEntry {

	t.Helper()

	entry, err := NewBalanceChangeEntry(
		block, coin, new(big.Int).Neg(coin.Value()),
	)
	require.NoError(t, err)

	return entry
}

// TestAccountScenario walks the canonical receive/spend/double-spend
// sequence and checks balance and unspent set after every step.
func TestAccountScenario(t *testing.T) {
	t.Parallel()

	a, err := NewAccount(nil)
	require.NoError(t, err)
	require.Zero(t, a.Balance().Sign())

	coinA := testSpendable(t, 1, 100)

	// Receiving coin A credits its value and adds it to the unspent
	// set.
	appendEntry(t, a, incomeEntry(t, coinA, testBlock(1)))
	require.Equal(t, big.NewInt(100), a.Balance())
	require.Len(t, a.Unspent(), 1)
	_, ok := a.UnspentCoin(coinA.OutPoint)
	require.True(t, ok)

	// Spending it debits the value and empties the set.
	appendEntry(t, a, outcomeEntry(t, coinA, testBlock(2)))
	require.Zero(t, a.Balance().Sign())
	require.Empty(t, a.Unspent())

	// Spending it again is rejected and changes nothing.
	accepted, err := a.Append(outcomeEntry(t, coinA, testBlock(2)))
	require.NoError(t, err)
	require.False(t, accepted)
	require.Zero(t, a.Balance().Sign())
	require.Equal(t, 2, a.Processed())
}

// TestIdempotentIncome asserts that re-appending an income entry for a
// coin already held is rejected without side effects.
func TestIdempotentIncome(t *testing.T) {
	t.Parallel()

	a, err := NewAccount(nil)
	require.NoError(t, err)

	coin := testSpendable(t, 2, 4200)
	entry := incomeEntry(t, coin, testBlock(1))
	appendEntry(t, a, entry)

	accepted, err := a.Append(entry)
	require.NoError(t, err)
	require.False(t, accepted)

	require.Equal(t, big.NewInt(4200), a.Balance())
	require.Len(t, a.Unspent(), 1)
	require.Equal(t, 1, a.Processed())
}

// TestSpendBeforeReceive asserts that an outcome for a never-received coin
// is rejected.
func TestSpendBeforeReceive(t *testing.T) {
	t.Parallel()

	a, err := NewAccount(nil)
	require.NoError(t, err)

	accepted, err := a.Append(
		outcomeEntry(t, testSpendable(t, 3, 77), testBlock(1)),
	)
	require.NoError(t, err)
	require.False(t, accepted)
	require.Zero(t, a.Processed())
}

// TestZeroBalanceChange asserts that zero-change entries are only valid as
// chain corrections.
func TestZeroBalanceChange(t *testing.T) {
	t.Parallel()

	a, err := NewAccount(nil)
	require.NoError(t, err)

	coin := testSpendable(t, 4, 900)

	for _, reason := range []EntryReason{ReasonIncome, ReasonOutcome} {
		entry, err := NewAccountEntry(
			reason, testBlock(1), coin, new(big.Int),
		)
		require.NoError(t, err)

		accepted, err := a.Append(entry)
		require.NoError(t, err)
		require.False(t, accepted, "zero-change %v accepted", reason)
	}

	entry, err := NewAccountEntry(
		ReasonChainBlockChanged, testBlock(1), coin, new(big.Int),
	)
	require.NoError(t, err)

	accepted, err := a.Append(entry)
	require.NoError(t, err)
	require.True(t, accepted)
	require.Zero(t, a.Balance().Sign())
	require.Empty(t, a.Unspent())
}

// TestNeutralizationRoundTrip asserts that appending an entry followed by
// its neutralization restores the prior balance and unspent set exactly.
func TestNeutralizationRoundTrip(t *testing.T) {
	t.Parallel()

	a, err := NewAccount(nil)
	require.NoError(t, err)

	base := testSpendable(t, 5, 1000)
	appendEntry(t, a, incomeEntry(t, base, testBlock(1)))

	balanceBefore := a.Balance()
	unspentBefore := a.Unspent()

	entry := incomeEntry(t, testSpendable(t, 6, 2500), testBlock(2))
	appendEntry(t, a, entry)
	require.Equal(t, big.NewInt(3500), a.Balance())

	appendEntry(t, a, entry.Neutralize())
	require.Equal(t, balanceBefore, a.Balance())
	require.Equal(t, unspentBefore, a.Unspent())
}

// TestIngest asserts the classified-event convenience path: income always
// appends, outcome silently no-ops unless the coin is currently unspent.
func TestIngest(t *testing.T) {
	t.Parallel()

	a, err := NewAccount(nil)
	require.NoError(t, err)

	coin := testSpendable(t, 7, 600)

	// An outcome for a coin we never received is dropped without
	// growing the log.
	accepted, err := a.Ingest(testBlock(1), EventOutcome, coin)
	require.NoError(t, err)
	require.False(t, accepted)
	require.Zero(t, a.Processed())

	accepted, err = a.Ingest(testBlock(1), EventIncome, coin)
	require.NoError(t, err)
	require.True(t, accepted)
	require.Equal(t, big.NewInt(600), a.Balance())

	accepted, err = a.Ingest(testBlock(2), EventOutcome, coin)
	require.NoError(t, err)
	require.True(t, accepted)
	require.Zero(t, a.Balance().Sign())
	require.Equal(t, 2, a.Processed())
}

// TestReplayDeterminism serializes an account's history entry by entry,
// decodes it into a fresh stream, and asserts the replayed account matches
// the original.
func TestReplayDeterminism(t *testing.T) {
	t.Parallel()

	a, err := NewAccount(nil)
	require.NoError(t, err)

	coinA := testSpendable(t, 1, 1000)
	coinB := testSpendable(t, 2, 2000)
	coinC := testSpendable(t, 3, 3000)

	appendEntry(t, a, incomeEntry(t, coinA, testBlock(1)))
	appendEntry(t, a, incomeEntry(t, coinB, testBlock(1)))
	appendEntry(t, a, outcomeEntry(t, coinA, testBlock(2)))
	appendEntry(t, a, incomeEntry(t, coinC, fn.None[chainhash.Hash]()))

	// Round-trip the full history through the binary form.
	codec := &txoutcodec.CompressedCodec{}
	replayed := NewMemoryStream()
	require.NoError(t, a.stream.Rewind())
	for i := 0; i < a.Processed(); i++ {
		entry, err := a.stream.ReadNext()
		require.NoError(t, err)

		var b bytes.Buffer
		require.NoError(t, entry.Serialize(&b, codec))
		decoded, err := DeserializeEntry(&b, codec)
		require.NoError(t, err)

		require.NoError(t, replayed.WriteNext(decoded))
	}

	b, err := NewAccount(replayed)
	require.NoError(t, err)

	require.Equal(t, a.Balance(), b.Balance())
	require.Equal(t, a.Unspent(), b.Unspent())
	require.Equal(t, a.Processed(), b.Processed())
}

// TestTruncatedLog asserts that enumerating processed history over a log
// that shrank after initialization surfaces ErrTruncatedLog.
func TestTruncatedLog(t *testing.T) {
	t.Parallel()

	stream := NewMemoryStream()
	a, err := NewAccount(stream)
	require.NoError(t, err)

	appendEntry(t, a, incomeEntry(t, testSpendable(t, 1, 10), testBlock(1)))
	appendEntry(t, a, incomeEntry(t, testSpendable(t, 2, 20), testBlock(1)))

	// Chop the log behind the account's back.
	stream.entries = stream.entries[:1]

	err = a.forEachProcessed(func(*AccountEntry) error {
		return nil
	})
	require.ErrorIs(t, err, ErrTruncatedLog)
}

// TestBalanceInvariant exercises random entry sequences and asserts the
// balance always equals the sum of unspent coin values after every append,
// accepted or not.
func TestBalanceInvariant(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		a, err := NewAccount(nil)
		require.NoError(rt, err)

		var history []*AccountEntry
		numOps := rapid.IntRange(1, 60).Draw(rt, "numOps")
		for i := 0; i < numOps; i++ {
			// A coin reference determines its value, so derive
			// the value from the tag: replaying income for a
			// reference always credits the same amount.
			tag := byte(rapid.IntRange(1, 8).Draw(rt, "coin"))
			coin := testSpendable(t, tag, int64(tag)*1000)

			var entry *AccountEntry
			switch rapid.IntRange(0, 2).Draw(rt, "op") {
			case 0:
				entry = incomeEntry(t, coin, testBlock(tag))
			case 1:
				entry = outcomeEntry(t, coin, testBlock(tag))
			default:
				if len(history) == 0 {
					continue
				}
				pick := rapid.IntRange(
					0, len(history)-1,
				).Draw(rt, "pick")
				entry = history[pick].Neutralize()
			}

			accepted, err := a.Append(entry)
			require.NoError(rt, err)
			if accepted {
				history = append(history, entry)
			}

			// The always-on coherence check already ran inside
			// Append; recompute independently anyway.
			sum := new(big.Int)
			for _, c := range a.Unspent() {
				sum.Add(sum, c.Value())
			}
			require.Zero(rt, sum.Cmp(a.Balance()))
			require.Equal(rt, len(history), a.Processed())
		}
	})
}
