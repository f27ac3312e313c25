package internal

import (
	"errors"
	"testing"

	"github.com/bmizerany/assert"
)

func TestDeltaListIterator(t *testing.T) {
	s := NewDeltaList(5)
	inputs := []uint64{3, 5, 6, 6, 10, 1 << 40}
	for _, x := range inputs {
		s.Add(x)
	}
	assert.Equal(t, uint64(len(inputs)), s.Len())
	// Five one-byte deltas, then 1<<40-10 takes six.
	assert.Equal(t, 11, s.SizeInBytes())
	assert.Equal(t, len(s.Bytes()), s.SizeInBytes())

	iter := s.Iterator()
	for _, elem := range inputs {
		iterOutput, ok := iter()
		assert.T(t, ok)
		assert.Equal(t, elem, iterOutput)
	}
	_, ok := iter()
	assert.T(t, !ok) // iterator should be exhausted
}

func TestParseStrictDeltaList(t *testing.T) {
	s := NewDeltaList(0)
	for _, x := range []uint64{0, 64, 65, 4096} {
		s.Add(x)
	}

	parsed, err := ParseStrictDeltaList(s.Bytes(), 4)
	assert.Equal(t, nil, err)
	assert.Equal(t, s.Bytes(), parsed.Bytes())

	testCases := []struct {
		name  string
		buf   []byte
		count uint64
	}{
		{"short", s.Bytes(), 5},
		{"trailing", append(append([]byte{}, s.Bytes()...), 1), 4},
		{"repeat", []byte{5, 0}, 2},
		{"overflow", []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x01, 0x02}, 2},
	}
	for _, testCase := range testCases {
		_, err := ParseStrictDeltaList(testCase.buf, testCase.count)
		assert.T(t, errors.Is(err, ErrFormat), testCase.name, err)
	}
}
