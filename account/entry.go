package account

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/big"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/fatihkck/coinledger/txoutcodec"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// EntryReason describes why an entry was recorded in the account log. The
// numeric values are part of the persisted binary format and must never
// change.
type EntryReason uint8

const (
	// ReasonChainBlockChanged marks a correction entry recorded because a
	// block joined or left the active chain.
	ReasonChainBlockChanged EntryReason = 0

	// ReasonIncome marks a coin received by the wallet.
	ReasonIncome EntryReason = 1

	// ReasonOutcome marks a coin spent by the wallet.
	ReasonOutcome EntryReason = 2
)

// String returns a human-readable name for the reason.
func (r EntryReason) String() string {
	switch r {
	case ReasonChainBlockChanged:
		return "ChainBlockChanged"
	case ReasonIncome:
		return "Income"
	case ReasonOutcome:
		return "Outcome"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(r))
	}
}

// Spendable pairs a coin reference with the output it refers to. Instances
// are treated as immutable once constructed: neither the outpoint nor the
// txout may be mutated afterwards.
type Spendable struct {
	// OutPoint uniquely identifies the coin by originating transaction
	// and output index.
	OutPoint wire.OutPoint

	// TxOut carries the coin's value and spending condition.
	TxOut *wire.TxOut
}

// NewSpendable constructs a Spendable from the given outpoint and output.
// Both arguments are required.
func NewSpendable(outPoint *wire.OutPoint, txOut *wire.TxOut) (*Spendable,
	error) {

	if outPoint == nil {
		return nil, ErrNoOutPoint
	}
	if txOut == nil {
		return nil, ErrNoTxOut
	}

	return &Spendable{
		OutPoint: *outPoint,
		TxOut:    txOut,
	}, nil
}

// Value returns the coin's value as an arbitrary-precision integer.
func (s *Spendable) Value() *big.Int {
	return big.NewInt(s.TxOut.Value)
}

// String returns a compact representation of the coin for log lines.
func (s *Spendable) String() string {
	return fmt.Sprintf("%v worth %v", s.OutPoint,
		btcutil.Amount(s.TxOut.Value))
}

// AccountEntry is one immutable balance-affecting event in the account's
// history: a coin received, a coin spent, or a correction recorded when a
// chain reorganization invalidated a previously seen block.
type AccountEntry struct {
	// Reason describes why the entry was recorded.
	Reason EntryReason

	// Block is the hash of the block that gave rise to this entry, if
	// any. Entries that don't originate from a specific block (for
	// example manually injected events) leave it unset.
	Block fn.Option[chainhash.Hash]

	// Spendable is the coin this entry is about.
	Spendable *Spendable

	// BalanceChange is the signed effect on the account balance:
	// positive for received coins, negative for spent coins, zero only
	// for correction entries.
	BalanceChange *big.Int
}

// NewAccountEntry constructs an entry with an explicit reason.
func NewAccountEntry(reason EntryReason, block fn.Option[chainhash.Hash],
	spendable *Spendable, balanceChange *big.Int) (*AccountEntry, error) {

	if spendable == nil {
		return nil, fmt.Errorf("entry requires a spendable coin")
	}
	if balanceChange == nil {
		return nil, fmt.Errorf("entry requires a balance change")
	}

	return &AccountEntry{
		Reason:        reason,
		Block:         block,
		Spendable:     spendable,
		BalanceChange: balanceChange,
	}, nil
}

// NewBalanceChangeEntry constructs an entry whose reason is inferred from
// the sign of the balance change: negative changes are spends, everything
// else is income.
func NewBalanceChangeEntry(block fn.Option[chainhash.Hash],
	spendable *Spendable, balanceChange *big.Int) (*AccountEntry, error) {

	reason := ReasonIncome
	if balanceChange != nil && balanceChange.Sign() < 0 {
		reason = ReasonOutcome
	}

	return NewAccountEntry(reason, block, spendable, balanceChange)
}

// Neutralize produces the entry that exactly reverses this entry's effect
// on the account: same coin, same block, negated balance change, tagged as
// a chain correction. Appending an entry followed by its neutralization
// restores the balance and unspent set to their prior values.
func (e *AccountEntry) Neutralize() *AccountEntry {
	return &AccountEntry{
		Reason:        ReasonChainBlockChanged,
		Block:         e.Block,
		Spendable:     e.Spendable,
		BalanceChange: new(big.Int).Neg(e.BalanceChange),
	}
}

// String returns a compact representation of the entry for log lines.
func (e *AccountEntry) String() string {
	return fmt.Sprintf("%v(%v, change=%v)", e.Reason, e.Spendable,
		e.BalanceChange)
}

// maxBalanceChangeSize bounds the serialized balance change blob. 1024
// bytes holds integers far beyond any representable coin supply while
// keeping decoding safe against hostile input.
const maxBalanceChangeSize = 1024

// Serialize writes the binary form of the entry to w:
//
//   - 32-byte originating block hash, all zero when absent
//   - 1-byte reason tag
//   - 32-byte originating txid followed by the 4-byte little-endian output
//     index
//   - the txout through the supplied codec
//   - the balance change as a var-bytes blob holding its minimal
//     two's-complement little-endian representation
//
// The layout is stable across versions: entries written by any conforming
// implementation replay identically in any other.
func (e *AccountEntry) Serialize(w io.Writer, codec txoutcodec.Codec) error {
	block := e.Block.UnwrapOr(chainhash.Hash{})
	if _, err := w.Write(block[:]); err != nil {
		return err
	}

	if _, err := w.Write([]byte{byte(e.Reason)}); err != nil {
		return err
	}

	if _, err := w.Write(e.Spendable.OutPoint.Hash[:]); err != nil {
		return err
	}
	var index [4]byte
	binary.LittleEndian.PutUint32(index[:], e.Spendable.OutPoint.Index)
	if _, err := w.Write(index[:]); err != nil {
		return err
	}

	if err := codec.PutTxOut(w, e.Spendable.TxOut); err != nil {
		return err
	}

	return wire.WriteVarBytes(w, 0, serializeBigInt(e.BalanceChange))
}

// DeserializeEntry reads a single entry from r, undoing Serialize. The
// codec must match the one the entry was written with.
func DeserializeEntry(r io.Reader, codec txoutcodec.Codec) (*AccountEntry,
	error) {

	var blockHash chainhash.Hash
	if _, err := io.ReadFull(r, blockHash[:]); err != nil {
		return nil, err
	}
	block := fn.None[chainhash.Hash]()
	if blockHash != (chainhash.Hash{}) {
		block = fn.Some(blockHash)
	}

	var reason [1]byte
	if _, err := io.ReadFull(r, reason[:]); err != nil {
		return nil, err
	}
	if reason[0] > uint8(ReasonOutcome) {
		return nil, fmt.Errorf("unknown entry reason %d", reason[0])
	}

	var outPoint wire.OutPoint
	if _, err := io.ReadFull(r, outPoint.Hash[:]); err != nil {
		return nil, err
	}
	var index [4]byte
	if _, err := io.ReadFull(r, index[:]); err != nil {
		return nil, err
	}
	outPoint.Index = binary.LittleEndian.Uint32(index[:])

	txOut, err := codec.TxOut(r)
	if err != nil {
		return nil, err
	}

	changeBytes, err := wire.ReadVarBytes(
		r, 0, maxBalanceChangeSize, "balance change",
	)
	if err != nil {
		return nil, err
	}

	return &AccountEntry{
		Reason: EntryReason(reason[0]),
		Block:  block,
		Spendable: &Spendable{
			OutPoint: outPoint,
			TxOut:    txOut,
		},
		BalanceChange: deserializeBigInt(changeBytes),
	}, nil
}
