package txoutcodec

import (
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

const (
	// scriptTagP2PKH marks a compressed pay-to-pubkey-hash script. The 20
	// byte hash follows the tag.
	scriptTagP2PKH = 0

	// scriptTagP2SH marks a compressed pay-to-script-hash script. The 20
	// byte hash follows the tag.
	scriptTagP2SH = 1

	// scriptTagPubKeyEven and scriptTagPubKeyOdd mark a pay-to-pubkey
	// script whose key was already in compressed form. The tag doubles as
	// the key's parity prefix, with the 32-byte X coordinate following.
	scriptTagPubKeyEven = 2
	scriptTagPubKeyOdd  = 3

	// scriptTagUncompEven and scriptTagUncompOdd mark a pay-to-pubkey
	// script whose key was in uncompressed form. Only the X coordinate is
	// stored; decompression recovers the full point.
	scriptTagUncompEven = 4
	scriptTagUncompOdd  = 5

	// numSpecialScripts is the count of reserved script tags. Scripts
	// that don't fit any special form store their raw length offset by
	// this value.
	numSpecialScripts = 6
)

// CompressedCodec serializes an output in the compressed form used for
// long-lived coin databases: the amount is run through an invertible
// exponent/digit packing that exploits the round numbers typical of real
// payments, and standard script classes collapse to a one-byte tag plus
// their minimal payload. Non-standard scripts are stored verbatim behind a
// length marker.
type CompressedCodec struct{}

var _ Codec = (*CompressedCodec)(nil)

// PutTxOut writes the compressed form of txOut to w.
func (*CompressedCodec) PutTxOut(w io.Writer, txOut *wire.TxOut) error {
	if txOut == nil {
		return ErrNilTxOut
	}

	err := putVarInt(w, compressAmount(uint64(txOut.Value)))
	if err != nil {
		return err
	}

	return putCompressedScript(w, txOut.PkScript)
}

// TxOut reads a single compressed output from r.
func (*CompressedCodec) TxOut(r io.Reader) (*wire.TxOut, error) {
	amount, err := readVarInt(r)
	if err != nil {
		return nil, err
	}

	pkScript, err := readCompressedScript(r)
	if err != nil {
		return nil, err
	}

	return &wire.TxOut{
		Value:    int64(decompressAmount(amount)),
		PkScript: pkScript,
	}, nil
}

// compressAmount packs a satoshi amount into a smaller integer by factoring
// out trailing decimal zeros into an exponent and folding the last non-zero
// digit in. The packing is a bijection, so decompressAmount recovers the
// amount exactly.
func compressAmount(n uint64) uint64 {
	if n == 0 {
		return 0
	}

	var e uint64
	for n%10 == 0 && e < 9 {
		n /= 10
		e++
	}

	if e < 9 {
		d := n % 10
		n /= 10
		return 1 + (n*9+d-1)*10 + e
	}

	return 1 + (n-1)*10 + 9
}

// decompressAmount is the inverse of compressAmount.
func decompressAmount(x uint64) uint64 {
	if x == 0 {
		return 0
	}

	x--
	e := x % 10
	x /= 10

	var n uint64
	if e < 9 {
		d := x%10 + 1
		x /= 10
		n = x*10 + d
	} else {
		n = x + 1
	}

	for ; e > 0; e-- {
		n *= 10
	}

	return n
}

// putVarInt writes n in the base-128 form with a continuation bit and an
// offset on each continuation group, matching the variable-length integers
// used by compressed coin serialization.
func putVarInt(w io.Writer, n uint64) error {
	var tmp [10]byte
	i := 0
	for {
		tmp[i] = byte(n & 0x7f)
		if i > 0 {
			tmp[i] |= 0x80
		}
		if n <= 0x7f {
			break
		}
		n = (n >> 7) - 1
		i++
	}

	for ; i >= 0; i-- {
		if _, err := w.Write(tmp[i : i+1]); err != nil {
			return err
		}
	}

	return nil
}

// readVarInt is the inverse of putVarInt.
func readVarInt(r io.Reader) (uint64, error) {
	var n uint64
	var b [1]byte
	for {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, err
		}
		if n > (^uint64(0))>>7 {
			return 0, fmt.Errorf("txoutcodec: varint overflow")
		}
		n = n<<7 | uint64(b[0]&0x7f)
		if b[0]&0x80 == 0 {
			return n, nil
		}
		if n == ^uint64(0) {
			return 0, fmt.Errorf("txoutcodec: varint overflow")
		}
		n++
	}
}

// putCompressedScript writes pkScript in its compact form: standard script
// classes reduce to a tag byte plus hash or X coordinate, everything else
// stores the raw script behind its length offset by numSpecialScripts.
func putCompressedScript(w io.Writer, pkScript []byte) error {
	switch {
	case txscript.IsPayToPubKeyHash(pkScript):
		if err := putVarInt(w, scriptTagP2PKH); err != nil {
			return err
		}
		_, err := w.Write(pkScript[3:23])
		return err

	case txscript.IsPayToScriptHash(pkScript):
		if err := putVarInt(w, scriptTagP2SH); err != nil {
			return err
		}
		_, err := w.Write(pkScript[2:22])
		return err

	case isCompressedPubKeyScript(pkScript):
		// The key's own parity prefix (0x02 or 0x03) is a valid tag,
		// so the whole compressed key minus the push opcodes is the
		// payload.
		_, err := w.Write(pkScript[1:34])
		return err

	case isUncompressedPubKeyScript(pkScript):
		// Recompress: tag 4/5 carries the Y parity, followed by the
		// X coordinate. Only well-formed points compress; anything
		// else falls through to the raw form.
		if _, err := btcec.ParsePubKey(pkScript[1:66]); err == nil {
			tag := byte(scriptTagUncompEven | pkScript[65]&1)
			if _, err := w.Write([]byte{tag}); err != nil {
				return err
			}
			_, err := w.Write(pkScript[2:34])
			return err
		}
		fallthrough

	default:
		err := putVarInt(w, uint64(len(pkScript))+numSpecialScripts)
		if err != nil {
			return err
		}
		_, err = w.Write(pkScript)
		return err
	}
}

// readCompressedScript is the inverse of putCompressedScript.
func readCompressedScript(r io.Reader) ([]byte, error) {
	tag, err := readVarInt(r)
	if err != nil {
		return nil, err
	}

	switch tag {
	case scriptTagP2PKH:
		var hash [20]byte
		if _, err := io.ReadFull(r, hash[:]); err != nil {
			return nil, err
		}
		return payToPubKeyHashScript(hash), nil

	case scriptTagP2SH:
		var hash [20]byte
		if _, err := io.ReadFull(r, hash[:]); err != nil {
			return nil, err
		}
		return payToScriptHashScript(hash), nil

	case scriptTagPubKeyEven, scriptTagPubKeyOdd:
		var x [32]byte
		if _, err := io.ReadFull(r, x[:]); err != nil {
			return nil, err
		}
		script := make([]byte, 35)
		script[0] = 33
		script[1] = byte(tag)
		copy(script[2:34], x[:])
		script[34] = txscript.OP_CHECKSIG
		return script, nil

	case scriptTagUncompEven, scriptTagUncompOdd:
		var x [32]byte
		if _, err := io.ReadFull(r, x[:]); err != nil {
			return nil, err
		}
		compressed := make([]byte, 33)
		compressed[0] = byte(tag - 2)
		copy(compressed[1:], x[:])

		key, err := btcec.ParsePubKey(compressed)
		if err != nil {
			return nil, fmt.Errorf("txoutcodec: invalid "+
				"compressed point: %w", err)
		}

		script := make([]byte, 67)
		script[0] = 65
		copy(script[1:66], key.SerializeUncompressed())
		script[66] = txscript.OP_CHECKSIG
		return script, nil

	default:
		size := tag - numSpecialScripts
		if size > maxScriptSize {
			return nil, fmt.Errorf("txoutcodec: script of %d "+
				"bytes exceeds max of %d", size,
				maxScriptSize)
		}
		script := make([]byte, size)
		if _, err := io.ReadFull(r, script); err != nil {
			return nil, err
		}
		return script, nil
	}
}

// isCompressedPubKeyScript reports whether pkScript is a canonical
// pay-to-pubkey script over a compressed key.
func isCompressedPubKeyScript(pkScript []byte) bool {
	return len(pkScript) == 35 &&
		pkScript[0] == 33 &&
		(pkScript[1] == 0x02 || pkScript[1] == 0x03) &&
		pkScript[34] == txscript.OP_CHECKSIG
}

// isUncompressedPubKeyScript reports whether pkScript is a canonical
// pay-to-pubkey script over an uncompressed key.
func isUncompressedPubKeyScript(pkScript []byte) bool {
	return len(pkScript) == 67 &&
		pkScript[0] == 65 &&
		pkScript[1] == 0x04 &&
		pkScript[66] == txscript.OP_CHECKSIG
}

func payToPubKeyHashScript(hash [20]byte) []byte {
	script := make([]byte, 25)
	script[0] = txscript.OP_DUP
	script[1] = txscript.OP_HASH160
	script[2] = 20
	copy(script[3:23], hash[:])
	script[23] = txscript.OP_EQUALVERIFY
	script[24] = txscript.OP_CHECKSIG
	return script
}

func payToScriptHashScript(hash [20]byte) []byte {
	script := make([]byte, 23)
	script[0] = txscript.OP_HASH160
	script[1] = 20
	copy(script[2:22], hash[:])
	script[22] = txscript.OP_EQUAL
	return script
}
