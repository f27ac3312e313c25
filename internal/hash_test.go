package internal

import (
	"math"
	"testing"

	"github.com/bmizerany/assert"
)

func TestHashUint64MatchesBytes(t *testing.T) {
	h1, h2 := HashUint64(0x0102030405060708, DefaultSeed)
	b1, b2 := Hash([]byte{8, 7, 6, 5, 4, 3, 2, 1}, DefaultSeed)
	assert.Equal(t, b1, h1)
	assert.Equal(t, b2, h2)

	o1, _ := HashUint64(0x0102030405060708, DefaultSeed+1)
	assert.NotEqual(t, h1, o1)
}

func TestCanonicalFloat64Bits(t *testing.T) {
	assert.Equal(t, uint64(0), CanonicalFloat64Bits(math.Copysign(0, -1)))
	assert.Equal(t, uint64(0x7ff8000000000000), CanonicalFloat64Bits(math.NaN()))
	assert.Equal(t, uint64(0x7ff8000000000000), CanonicalFloat64Bits(math.Float64frombits(0x7ff0000000000001)))
	assert.Equal(t, math.Float64bits(1.5), CanonicalFloat64Bits(1.5))

	a1, a2 := HashFloat64(0, DefaultSeed)
	b1, b2 := HashFloat64(math.Copysign(0, -1), DefaultSeed)
	assert.Equal(t, a1, b1)
	assert.Equal(t, a2, b2)
}

func TestComputeSeedHash(t *testing.T) {
	a, err := ComputeSeedHash(DefaultSeed)
	assert.Equal(t, nil, err)
	assert.NotEqual(t, uint16(0), a)

	again, _ := ComputeSeedHash(DefaultSeed)
	assert.Equal(t, a, again)

	other, err := ComputeSeedHash(123)
	assert.Equal(t, nil, err)
	assert.NotEqual(t, a, other)
}
