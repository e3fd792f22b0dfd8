package account

import (
	"math/big"
)

// serializeBigInt returns the minimal two's-complement little-endian byte
// representation of n. The most significant bit of the final byte carries
// the sign, so a positive value whose top bit would be set gains a zero pad
// byte and a negative value whose top bit would be clear gains a 0xff pad
// byte. Zero serializes as a single zero byte.
func serializeBigInt(n *big.Int) []byte {
	if n.Sign() == 0 {
		return []byte{0}
	}

	if n.Sign() > 0 {
		b := reverseBytes(n.Bytes())
		if b[len(b)-1]&0x80 != 0 {
			b = append(b, 0x00)
		}
		return b
	}

	// For a negative value, produce 2^(8*size) + n over the minimal
	// number of bytes holding the absolute value, then pad if the sign
	// bit didn't land.
	abs := new(big.Int).Neg(n)
	size := len(abs.Bytes())

	comp := new(big.Int).Lsh(big.NewInt(1), uint(8*size))
	comp.Sub(comp, abs)

	b := make([]byte, size)
	comp.FillBytes(b)
	b = reverseBytes(b)
	if b[len(b)-1]&0x80 == 0 {
		b = append(b, 0xff)
	}

	return b
}

// deserializeBigInt reconstructs a signed integer from its two's-complement
// little-endian byte representation. It is the exact inverse of
// serializeBigInt, and also tolerates non-minimal encodings.
func deserializeBigInt(b []byte) *big.Int {
	if len(b) == 0 {
		return new(big.Int)
	}

	n := new(big.Int).SetBytes(reverseBytes(b))
	if b[len(b)-1]&0x80 != 0 {
		mod := new(big.Int).Lsh(big.NewInt(1), uint(8*len(b)))
		n.Sub(n, mod)
	}

	return n
}

// reverseBytes returns a new slice holding b in reverse order.
func reverseBytes(b []byte) []byte {
	r := make([]byte, len(b))
	for i, c := range b {
		r[len(b)-1-i] = c
	}
	return r
}
