package account

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	// ErrEndOfStream is returned by EntryStream.ReadNext once the cursor
	// has moved past the last entry.
	ErrEndOfStream = errors.New("end of entry stream")

	// ErrTruncatedLog is returned when enumerating already-processed
	// entries hits the end of the stream before the processed count is
	// reached. The log was truncated or corrupted after the account was
	// initialized and the account can no longer be trusted.
	ErrTruncatedLog = errors.New("entry log shorter than processed count")

	// ErrStateCorrupted is returned when the running balance no longer
	// matches the sum of the unspent coin values after a fold. This is
	// always a programming fault, never an expected runtime condition.
	ErrStateCorrupted = errors.New("balance diverged from unspent set")

	// ErrNoOutPoint is returned when constructing a Spendable without an
	// outpoint.
	ErrNoOutPoint = errors.New("spendable requires an outpoint")

	// ErrNoTxOut is returned when constructing a Spendable without an
	// output descriptor.
	ErrNoTxOut = errors.New("spendable requires a txout")

	// ErrNilEntry is returned when a nil entry is handed to an account
	// operation.
	ErrNilEntry = errors.New("nil account entry")
)

// ErrInsufficientFunds is a type matching the error interface which is
// returned when coverage selection fails because the account balance cannot
// meet the requested target amount.
type ErrInsufficientFunds struct {
	// Available is the account balance at selection time.
	Available *big.Int

	// Needed is the requested target amount.
	Needed *big.Int
}

// Error returns a human-readable string describing the error.
func (e *ErrInsufficientFunds) Error() string {
	return fmt.Sprintf("not enough unspent coins to cover target, need "+
		"%v only have %v available", e.Needed, e.Available)
}
