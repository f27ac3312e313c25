package internal

import "math"

const all1s uint64 = 1<<64 - 1

// OnesFromTo returns a mask with bits startPos through endPos set, both inclusive and in [0,63],
// startPos <= endPos.
func OnesFromTo(startPos, endPos uint) uint64 {
	return all1s << startPos & (all1s >> (63 - endPos))
}

// ExtractShift returns x[startPos:endPos] (inclusive) moved down to bit 0.
func ExtractShift(x uint64, startPos, endPos uint) uint64 {
	return (x & OnesFromTo(startPos, endPos)) >> startPos
}

// InvPow2 holds 2^-i for i in [0,64].
var InvPow2 = func() [65]float64 {
	var t [65]float64
	for i := range t {
		t[i] = math.Ldexp(1, -i)
	}
	return t
}()
