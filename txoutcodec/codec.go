// Package txoutcodec provides interchangeable binary codecs for
// transaction outputs: the plain wire form, and a compressed form suited
// to long-lived coin databases.
package txoutcodec

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/btcsuite/btcd/wire"
)

// ErrNilTxOut is returned when a codec is asked to encode a nil output.
var ErrNilTxOut = errors.New("txoutcodec: nil txout")

// Codec encodes and decodes a transaction output to and from a binary
// stream. Implementations must be deterministic: encoding the same output
// twice yields the same bytes, and decoding is the exact inverse. Ledgers
// persisted with one codec must be reopened with the same codec.
type Codec interface {
	// PutTxOut writes the binary form of txOut to w.
	PutTxOut(w io.Writer, txOut *wire.TxOut) error

	// TxOut reads a single output from r.
	TxOut(r io.Reader) (*wire.TxOut, error)
}

// WireCodec serializes an output in the plain Bitcoin wire form: the value
// as an 8-byte little-endian integer followed by the pkScript as a
// var-bytes blob.
type WireCodec struct{}

// A compile-time assertion that WireCodec satisfies the Codec interface.
var _ Codec = (*WireCodec)(nil)

// maxScriptSize is the largest pkScript we'll deserialize. This mirrors the
// consensus limit on script element size with generous headroom for
// non-standard scripts.
const maxScriptSize = 11000

// PutTxOut writes the wire form of txOut to w.
func (*WireCodec) PutTxOut(w io.Writer, txOut *wire.TxOut) error {
	if txOut == nil {
		return ErrNilTxOut
	}

	var value [8]byte
	binary.LittleEndian.PutUint64(value[:], uint64(txOut.Value))
	if _, err := w.Write(value[:]); err != nil {
		return err
	}

	return wire.WriteVarBytes(w, 0, txOut.PkScript)
}

// TxOut reads a single wire-form output from r.
func (*WireCodec) TxOut(r io.Reader) (*wire.TxOut, error) {
	var value [8]byte
	if _, err := io.ReadFull(r, value[:]); err != nil {
		return nil, err
	}

	pkScript, err := wire.ReadVarBytes(r, 0, maxScriptSize, "pkscript")
	if err != nil {
		return nil, err
	}

	return &wire.TxOut{
		Value:    int64(binary.LittleEndian.Uint64(value[:])),
		PkScript: pkScript,
	}, nil
}
