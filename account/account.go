// Package account implements an append-only, event-sourced ledger of a
// wallet's spendable coins. Balance-affecting events are recorded as
// immutable entries in a sequential stream and folded into a derived state
// holding the unspent coin set and the running balance, which can always be
// rebuilt by replaying the stream. On top of the fold engine the package
// offers coverage selection over the unspent set, reconciliation of history
// against a reorganized chain, and cloning of accounts across streams.
package account

import (
	"bytes"
	"errors"
	"math/big"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/davecgh/go-spew/spew"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// EventKind classifies an already-categorized wallet event handed to
// Ingest.
type EventKind uint8

const (
	// EventIncome is a coin paid to the wallet.
	EventIncome EventKind = iota

	// EventOutcome is a coin spent by the wallet.
	EventOutcome
)

// Account is an append-only, event-sourced ledger of a wallet's spendable
// coins. Every balance-affecting event is recorded as an immutable entry in
// the backing stream, and the account folds those entries into its derived
// state: the current unspent coin set and the running balance. The derived
// state is never persisted directly, it is rebuilt by replaying the stream.
//
// An Account is not safe for concurrent use. The backing stream carries a
// single shared cursor that appends, replays, and history scans all move;
// callers needing concurrency must serialize access externally.
type Account struct {
	stream EntryStream

	// balance is the running sum of all accepted balance changes. It is
	// always equal to the sum of the values in unspent.
	balance *big.Int

	// unspent maps each live coin reference to its descriptor.
	unspent map[wire.OutPoint]*Spendable

	// processed counts the entries of the stream that have been folded
	// into the derived state. Entries at stream index < processed were
	// all accepted at append time.
	processed int
}

// NewAccount builds an account over the given stream, replaying any
// existing entries from the start to reconstruct the derived state. A nil
// stream starts a fresh account over an in-memory stream.
func NewAccount(stream EntryStream) (*Account, error) {
	if stream == nil {
		stream = NewMemoryStream()
	}

	a := &Account{
		stream:  stream,
		balance: new(big.Int),
		unspent: make(map[wire.OutPoint]*Spendable),
	}
	if err := a.Resync(); err != nil {
		return nil, err
	}

	return a, nil
}

// Resync discards the derived state and rebuilds it by replaying the whole
// stream. Replay is deterministic: the same stream always produces the same
// balance and unspent set.
func (a *Account) Resync() error {
	a.balance.SetInt64(0)
	a.unspent = make(map[wire.OutPoint]*Spendable)
	a.processed = 0

	if err := a.stream.Rewind(); err != nil {
		return err
	}

	for {
		entry, err := a.stream.ReadNext()
		if errors.Is(err, ErrEndOfStream) {
			break
		}
		if err != nil {
			return err
		}

		accepted, err := a.fold(entry)
		if err != nil {
			return err
		}
		if accepted {
			a.processed++
		}
	}

	log.Debugf("Replayed %d entries, balance=%v, %d unspent coins",
		a.processed, a.balance, len(a.unspent))

	return nil
}

// fold attempts to apply one entry to the derived state, reporting whether
// it was accepted. A returned error means the internal consistency check
// failed after an accepted fold, which is fatal.
func (a *Account) fold(entry *AccountEntry) (bool, error) {
	if !a.apply(entry) {
		log.Debugf("Rejected entry %v against current state", entry)
		return false, nil
	}

	if err := a.checkCoherence(); err != nil {
		return false, err
	}

	return true, nil
}

// apply performs the state transition for a single entry:
//
//   - a negative balance change removes the referenced coin, and is
//     rejected if the coin isn't currently unspent
//   - a positive balance change inserts the coin, and is rejected if the
//     coin is already present
//   - a zero balance change touches nothing, and is only allowed on
//     correction entries
//
// The reason tag plays no role here beyond the zero-change rule: chain
// corrections move coins through exactly the same transitions as ordinary
// income and spend entries.
func (a *Account) apply(entry *AccountEntry) bool {
	outPoint := entry.Spendable.OutPoint

	switch sign := entry.BalanceChange.Sign(); {
	case sign < 0:
		if _, ok := a.unspent[outPoint]; !ok {
			return false
		}
		delete(a.unspent, outPoint)

	case sign > 0:
		if _, ok := a.unspent[outPoint]; ok {
			return false
		}
		a.unspent[outPoint] = entry.Spendable

	default:
		if entry.Reason == ReasonIncome ||
			entry.Reason == ReasonOutcome {

			return false
		}
	}

	a.balance.Add(a.balance, entry.BalanceChange)

	return true
}

// checkCoherence asserts that the running balance equals the sum of the
// unspent coin values. The check runs after every accepted fold; a mismatch
// is a logic defect, surfaced as ErrStateCorrupted rather than silently
// carried forward.
func (a *Account) checkCoherence() error {
	sum := new(big.Int)
	for _, coin := range a.unspent {
		sum.Add(sum, coin.Value())
	}

	if sum.Cmp(a.balance) != 0 {
		log.Criticalf("Account state corrupted: balance=%v but "+
			"unspent coins sum to %v", a.balance, sum)
		return ErrStateCorrupted
	}

	return nil
}

// Append folds the entry into the derived state and, only if the fold is
// accepted, persists it at the end of the stream. The returned boolean
// reports acceptance; rejected entries are not persisted and leave the
// account untouched. A non-nil error is a fatal condition, not a rejection.
func (a *Account) Append(entry *AccountEntry) (bool, error) {
	if entry == nil {
		return false, ErrNilEntry
	}

	accepted, err := a.fold(entry)
	if err != nil {
		return false, err
	}
	if !accepted {
		return false, nil
	}

	if err := a.stream.WriteNext(entry); err != nil {
		// Unwind the fold so the derived state keeps matching the
		// persisted log.
		a.apply(entry.Neutralize())
		return false, err
	}
	a.processed++

	log.Tracef("Appended entry %d: %v", a.processed-1,
		newLogClosure(func() string {
			return spew.Sdump(entry)
		}))

	return true, nil
}

// Ingest records an already-classified wallet event. Income events append
// an entry crediting the coin's full value. Outcome events are silently
// dropped unless the coin is currently unspent (it was never ours, or a
// chain correction already removed it), and otherwise append an entry
// debiting the coin's full value.
func (a *Account) Ingest(block fn.Option[chainhash.Hash], kind EventKind,
	coin *Spendable) (bool, error) {

	if coin == nil {
		return false, ErrNoTxOut
	}

	change := coin.Value()
	if kind == EventOutcome {
		if _, ok := a.unspent[coin.OutPoint]; !ok {
			log.Debugf("Ignoring outcome event for unknown "+
				"coin %v", coin)
			return false, nil
		}
		change.Neg(change)
	}

	entry, err := NewBalanceChangeEntry(block, coin, change)
	if err != nil {
		return false, err
	}

	return a.Append(entry)
}

// Balance returns the current running balance. The returned value is a
// copy; mutating it does not affect the account.
func (a *Account) Balance() *big.Int {
	return new(big.Int).Set(a.balance)
}

// Unspent returns the current unspent coin set, ordered by coin reference
// so repeated calls over the same state enumerate identically.
func (a *Account) Unspent() []*Spendable {
	coins := make([]*Spendable, 0, len(a.unspent))
	for _, coin := range a.unspent {
		coins = append(coins, coin)
	}
	sort.Slice(coins, func(i, j int) bool {
		return lessOutPoint(coins[i].OutPoint, coins[j].OutPoint)
	})

	return coins
}

// UnspentCoin returns the descriptor of the given coin reference if it is
// currently unspent.
func (a *Account) UnspentCoin(outPoint wire.OutPoint) (*Spendable, bool) {
	coin, ok := a.unspent[outPoint]
	return coin, ok
}

// Processed returns the number of stream entries folded into the derived
// state.
func (a *Account) Processed() int {
	return a.processed
}

// forEachProcessed rewinds the stream and invokes f for every entry that
// has been folded into the derived state, in log order. Hitting the end of
// the stream before the processed count is reached means the log shrank
// underneath us, which is fatal. The scan moves the shared stream cursor
// and must not overlap an in-flight Append.
func (a *Account) forEachProcessed(f func(*AccountEntry) error) error {
	if err := a.stream.Rewind(); err != nil {
		return err
	}

	for i := 0; i < a.processed; i++ {
		entry, err := a.stream.ReadNext()
		if errors.Is(err, ErrEndOfStream) {
			return ErrTruncatedLog
		}
		if err != nil {
			return err
		}

		if err := f(entry); err != nil {
			return err
		}
	}

	return nil
}

// Clone copies the account's history into target and returns the
// independent account built over it. Entries the source has already folded
// are routed through the clone's own Append, re-validating each one, while
// any unprocessed tail beyond that boundary is copied to the target stream
// verbatim. The target must be empty; a nil target clones into a fresh
// in-memory stream. With no unprocessed tail present the clone's balance
// and unspent set equal the source's exactly.
func (a *Account) Clone(target EntryStream) (*Account, error) {
	if target == nil {
		target = NewMemoryStream()
	}

	clone := &Account{
		stream:  target,
		balance: new(big.Int),
		unspent: make(map[wire.OutPoint]*Spendable),
	}

	if err := a.stream.Rewind(); err != nil {
		return nil, err
	}

	for i := 0; ; i++ {
		entry, err := a.stream.ReadNext()
		if errors.Is(err, ErrEndOfStream) {
			break
		}
		if err != nil {
			return nil, err
		}

		if i < a.processed {
			if _, err := clone.Append(entry); err != nil {
				return nil, err
			}
			continue
		}

		if err := target.WriteNext(entry); err != nil {
			return nil, err
		}
	}

	return clone, nil
}

// lessOutPoint orders coin references by txid bytes, then output index.
func lessOutPoint(a, b wire.OutPoint) bool {
	if cmp := bytes.Compare(a.Hash[:], b.Hash[:]); cmp != 0 {
		return cmp < 0
	}
	return a.Index < b.Index
}
