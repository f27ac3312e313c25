package internal

import (
	crand "crypto/rand"
	"errors"
	mrand "math/rand"
	"testing"

	"github.com/bmizerany/assert"
)

func TestCompression(t *testing.T) {
	const numTests = 1000

	for i := 0; i < numTests; i++ {
		numToRead := mrand.Intn(100)
		buf := make([]byte, numToRead)
		n, err := crand.Read(buf)
		assert.Equal(t, nil, err)
		assert.Equal(t, n, numToRead)

		roundTripped, err := UnsnappyB64(SnappyB64(buf))
		assert.Equal(t, nil, err)

		assert.Equal(t, buf, roundTripped)
	}
}

func TestQuotedSnappyB64(t *testing.T) {
	in := []byte("some sketch bytes, some sketch bytes")
	quoted := QuotedSnappyB64(in)
	assert.Equal(t, byte('"'), quoted[0])
	assert.Equal(t, byte('"'), quoted[len(quoted)-1])

	out, err := UnquoteSnappyB64(quoted)
	assert.Equal(t, nil, err)
	assert.Equal(t, in, out)

	_, err = UnquoteSnappyB64([]byte(`"`))
	assert.T(t, errors.Is(err, ErrFormat))
	_, err = UnquoteSnappyB64([]byte(`"!!!"`))
	assert.T(t, errors.Is(err, ErrFormat))
}
