package cpc

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"encoding/json"
	mrand "math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSerializeRoundTrip(t *testing.T) {
	for _, count := range []int{0, 1, 50, 200, 1500, 10000, 100000} {
		s := sketchOfRange(t, 11, 0, count)
		image := s.Serialize()
		require.Equal(t, len(image), s.SerializedSizeBytes())

		rt, err := Deserialize(image, DefaultSeed)
		require.NoError(t, err, "n=%d", count)
		require.Equal(t, s.NumCoupons(), rt.NumCoupons())
		require.Equal(t, s.Flavor(), rt.Flavor())
		require.Equal(t, s.Estimate(), rt.Estimate())
		require.Equal(t, image, rt.Serialize())
		checkInvariants(t, rt)

		// Both keep evolving identically.
		for i := count; i < count+20000; i++ {
			s.UpdateInt64(int64(i))
			rt.UpdateInt64(int64(i))
		}
		require.Equal(t, s.Estimate(), rt.Estimate())
		require.Equal(t, s.Serialize(), rt.Serialize())
	}
}

func TestSerializePreamble(t *testing.T) {
	empty := newTestSketch(t, 11)
	b := empty.Serialize()
	require.Len(t, b, 8)
	require.Equal(t, []byte{2, serVer, familyID, 11, 0, 0}, b[:6])
	require.Equal(t, uint16(0x93cc), binary.LittleEndian.Uint16(b[seedHashShort:]))

	sparse := sketchOfRange(t, 11, 0, 10)
	b = sparse.Serialize()
	require.Equal(t, byte(hasHipFlag|hasTableFlag), b[flagsByte])
	require.Equal(t, byte(2+1+2+4), b[preambleIntsByte])
	require.Equal(t, uint32(10), binary.LittleEndian.Uint32(b[lowPreambleBytes:]))

	windowed := sketchOfRange(t, 11, 0, 20000)
	b = windowed.Serialize()
	require.Equal(t, byte(hasHipFlag|hasTableFlag|hasWindowFlag), b[flagsByte])
	require.Zero(t, b[flagsByte]&compressedFlag)
}

func TestDeserializeSeedMismatch(t *testing.T) {
	s := sketchOfRange(t, 11, 0, 1000)
	_, err := Deserialize(s.Serialize(), 123)
	require.ErrorIs(t, err, ErrSeedMismatch)

	other, err := NewSketch(11, 123)
	require.NoError(t, err)
	other.UpdateString("x")
	rt, err := Deserialize(other.Serialize(), 123)
	require.NoError(t, err)
	require.Equal(t, uint64(123), rt.Seed())
}

func TestDeserializeMalformed(t *testing.T) {
	good := sketchOfRange(t, 10, 0, 5000).Serialize()
	corrupt := func(f func(b []byte) []byte) []byte {
		return f(append([]byte(nil), good...))
	}
	testCases := map[string][]byte{
		"empty":      {},
		"short":      good[:7],
		"truncated":  good[:len(good)-1],
		"trailing":   append(append([]byte(nil), good...), 0),
		"serVer":     corrupt(func(b []byte) []byte { b[serVerByte] = 2; return b }),
		"family":     corrupt(func(b []byte) []byte { b[familyByte] = 7; return b }),
		"lgK":        corrupt(func(b []byte) []byte { b[lgKByte] = 27; return b }),
		"compressed": corrupt(func(b []byte) []byte { b[flagsByte] |= compressedFlag; return b }),
		"noWindow":   corrupt(func(b []byte) []byte { b[flagsByte] &^= hasWindowFlag; return b }),
		"preInts":    corrupt(func(b []byte) []byte { b[preambleIntsByte]++; return b }),
		"ficol":      corrupt(func(b []byte) []byte { b[ficolByte] = 60; return b }),
		"numCoupons": corrupt(func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[lowPreambleBytes:], binary.LittleEndian.Uint32(b[lowPreambleBytes:])+1)
			return b
		}),
	}
	for name, b := range testCases {
		_, err := Deserialize(b, DefaultSeed)
		require.ErrorIs(t, err, ErrFormat, name)
	}
}

// Random byte flips must surface as errors, never as panics.
func TestDeserializeFuzz(t *testing.T) {
	var images [][]byte
	for _, count := range []int{5, 300, 3000, 40000} {
		images = append(images, sketchOfRange(t, 8, 0, count).Serialize())
	}
	rng := mrand.New(mrand.NewSource(7))
	for i := 0; i < 5000; i++ {
		b := append([]byte(nil), images[i%len(images)]...)
		for j := 0; j < 1+rng.Intn(3); j++ {
			b[rng.Intn(len(b))] ^= byte(1 + rng.Intn(255))
		}
		s, err := Deserialize(b, DefaultSeed)
		if err != nil {
			continue
		}
		s.Estimate()
		s.Serialize()
		s.UpdateInt64(int64(i))
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	s := newTestSketch(t, 10)
	for i := 0; i <= 100000; i++ {
		if i%5000 == 0 {
			jBuf, err := json.Marshal(s)
			require.NoError(t, err)
			rt := &Sketch{}
			require.NoError(t, json.Unmarshal(jBuf, rt))
			require.Equal(t, s.Estimate(), rt.Estimate())

			var val bytes.Buffer
			require.NoError(t, gob.NewEncoder(&val).Encode(s))
			rt = &Sketch{}
			require.NoError(t, gob.NewDecoder(&val).Decode(rt))
			require.Equal(t, s.Estimate(), rt.Estimate())
		}
		s.UpdateInt64(int64(i))
	}
}
