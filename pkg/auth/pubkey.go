package auth

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math/big"
)

// Android public key wire format.
//
// Devices store authorized host keys in a fixed binary layout inherited
// from libcrypto_utils, base64-encoded with a trailing comment:
//
//	uint32  modulus_size_words   always 64
//	uint32  n0inv                -1/n[0] mod 2^32
//	uint8   modulus[256]         little-endian
//	uint8   rr[256]              R^2 mod n, R = 2^2048, little-endian
//	uint32  exponent
//
// The pre-computed n0inv and rr fields feed the device's Montgomery
// multiplication; a key without them is rejected even if the modulus is
// valid.
const (
	// ModulusSize is the modulus size in bytes. Only 2048-bit keys are
	// accepted by adbd.
	ModulusSize = 256

	modulusWords   = ModulusSize / 4
	encodedKeySize = 4 + 4 + ModulusSize + ModulusSize + 4
)

// EncodePublicKey renders the key in the AUTH(RSAPUBLICKEY) payload
// format: base64 of the binary layout above, a space, and the comment.
func EncodePublicKey(pub *rsa.PublicKey, comment string) ([]byte, error) {
	if pub.Size() != ModulusSize {
		return nil, fmt.Errorf("%w: %d-bit modulus", ErrUnsupportedKeySize, pub.N.BitLen())
	}

	buf := make([]byte, encodedKeySize)
	binary.LittleEndian.PutUint32(buf[0:], modulusWords)
	binary.LittleEndian.PutUint32(buf[4:], n0inv(pub.N))
	putLittleEndian(buf[8:8+ModulusSize], pub.N)

	// rr = (2^2048)^2 mod n
	rr := new(big.Int).Lsh(big.NewInt(1), ModulusSize*8*2)
	rr.Mod(rr, pub.N)
	putLittleEndian(buf[8+ModulusSize:8+2*ModulusSize], rr)

	binary.LittleEndian.PutUint32(buf[8+2*ModulusSize:], uint32(pub.E))

	encoded := make([]byte, base64.StdEncoding.EncodedLen(encodedKeySize))
	base64.StdEncoding.Encode(encoded, buf)
	out := make([]byte, 0, len(encoded)+1+len(comment))
	out = append(out, encoded...)
	out = append(out, ' ')
	out = append(out, comment...)
	return out, nil
}

// n0inv computes -1/n mod 2^32 for the low word of the modulus.
func n0inv(n *big.Int) uint32 {
	low := new(big.Int).And(n, new(big.Int).SetUint64(0xFFFFFFFF))
	mod := new(big.Int).Lsh(big.NewInt(1), 32)
	inv := new(big.Int).ModInverse(low, mod)
	return uint32(mod.Uint64() - inv.Uint64())
}

// putLittleEndian writes v into buf as a little-endian integer,
// zero-padded to len(buf).
func putLittleEndian(buf []byte, v *big.Int) {
	be := v.Bytes()
	for i := range buf {
		buf[i] = 0
	}
	for i, b := range be {
		buf[len(be)-1-i] = b
	}
}
