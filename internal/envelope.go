package internal

import (
	"encoding/base64"
	"fmt"

	"github.com/golang/snappy"
)

// Compress the input using snappy and encode the result using URL-safe base64.
func SnappyB64(in []byte) []byte {
	compressed := snappy.Encode(nil, in)
	outBuf := make([]byte, base64.URLEncoding.EncodedLen(len(compressed)))
	base64.URLEncoding.Encode(outBuf, compressed)
	return outBuf
}

// The inverse of SnappyB64.
func UnsnappyB64(in []byte) ([]byte, error) {
	unBase64ed := make([]byte, base64.URLEncoding.DecodedLen(len(in)))
	n, err := base64.URLEncoding.Decode(unBase64ed, in)
	if err != nil {
		return nil, err
	}

	uncompressed, err := snappy.Decode(nil, unBase64ed[:n])
	if err != nil {
		return nil, err
	}

	// snappy returns nil when the output length is zero.
	if uncompressed == nil {
		uncompressed = []byte{}
	}
	return uncompressed, nil
}

// QuotedSnappyB64 wraps SnappyB64 output in quotes so it's a valid JSON string.
func QuotedSnappyB64(in []byte) []byte {
	compressed := SnappyB64(in)
	buf := make([]byte, len(compressed)+2)
	buf[0] = '"'
	copy(buf[1:], compressed)
	buf[len(buf)-1] = '"'
	return buf
}

// UnquoteSnappyB64 is the inverse of QuotedSnappyB64.
func UnquoteSnappyB64(buf []byte) ([]byte, error) {
	if len(buf) < 2 || buf[0] != '"' || buf[len(buf)-1] != '"' {
		return nil, fmt.Errorf("%w: a marshaled sketch should be a quoted string", ErrFormat)
	}
	out, err := UnsnappyB64(buf[1 : len(buf)-1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return out, nil
}
