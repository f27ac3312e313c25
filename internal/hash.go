package internal

import (
	"encoding/binary"
	"math"

	"github.com/twmb/murmur3"
)

// DefaultSeed is the murmur3 seed shared by every HLL sketch and, unless told otherwise, every CPC
// sketch. Sketches built with different seeds cannot be merged.
const DefaultSeed uint64 = 9001

// Hash returns the two 64-bit halves of MurmurHash3_x64_128(data, seed).
func Hash(data []byte, seed uint64) (h1, h2 uint64) {
	return murmur3.SeedSum128(seed, seed, data)
}

// HashUint64 hashes the little-endian encoding of v. Signed integers of any width are sign
// extended to 64 bits by the callers before reaching this function.
func HashUint64(v uint64, seed uint64) (h1, h2 uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return Hash(buf[:], seed)
}

// HashFloat64 hashes v after canonicalizing -0.0 to 0.0 and every NaN to the single quiet NaN
// 0x7ff8000000000000, so that equal values always land on the same coupon.
func HashFloat64(v float64, seed uint64) (h1, h2 uint64) {
	return HashUint64(CanonicalFloat64Bits(v), seed)
}

func CanonicalFloat64Bits(v float64) uint64 {
	if v == 0 {
		return 0
	}
	if math.IsNaN(v) {
		return 0x7ff8000000000000
	}
	return math.Float64bits(v)
}

// ComputeSeedHash returns the 16-bit fingerprint of a seed that is stored in serialized images and
// checked before merging. A seed whose fingerprint is zero is rejected.
func ComputeSeedHash(seed uint64) (uint16, error) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], seed)
	h1, _ := murmur3.Sum128(buf[:])
	seedHash := uint16(h1 & 0xFFFF)
	if seedHash == 0 {
		return 0, Configf("the seed %d produces a seed hash of zero, choose another seed", seed)
	}
	return seedHash, nil
}
