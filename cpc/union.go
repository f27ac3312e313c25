package cpc

import (
	"slices"

	"github.com/lytics/datasketches/internal"
)

// Union merges CPC sketches that share a seed. While every input is sparse it accumulates into a
// sketch; after that it keeps a k×64 bit matrix and ORs inputs into it. Inputs with a smaller lgK
// lower the union's lgK to match, and inputs with a larger lgK are folded onto its rows.
type Union struct {
	lgK      int
	seed     uint64
	seedHash uint16

	// Exactly one of accumulator and matrix is set.
	accumulator *Sketch
	matrix      []uint64
}

// NewUnion returns an empty union of at most 2^lgK rows for sketches built with seed.
func NewUnion(lgK int, seed uint64) (*Union, error) {
	if err := checkLgK(lgK); err != nil {
		return nil, err
	}
	seedHash, err := internal.ComputeSeedHash(seed)
	if err != nil {
		return nil, err
	}
	return &Union{
		lgK:         lgK,
		seed:        seed,
		seedHash:    seedHash,
		accumulator: newSketch(lgK, seed, seedHash),
	}, nil
}

func (u *Union) LgK() int     { return u.lgK }
func (u *Union) Seed() uint64 { return u.seed }

func (u *Union) Copy() *Union {
	out := *u
	if u.accumulator != nil {
		out.accumulator = u.accumulator.Copy()
	}
	out.matrix = slices.Clone(u.matrix)
	return &out
}

// Update folds src into the union. A sketch built with another seed is rejected with an error
// wrapping ErrSeedMismatch and the union is left unchanged.
func (u *Union) Update(src *Sketch) error {
	if src == nil {
		return nil
	}
	if src.seedHash != u.seedHash {
		return internal.SeedMismatchf("union seed hash 0x%04x, sketch seed hash 0x%04x", u.seedHash, src.seedHash)
	}
	srcFlavor := src.Flavor()
	if srcFlavor == Empty {
		return nil
	}
	if src.lgK < u.lgK {
		u.reduceK(src.lgK)
	}

	if srcFlavor == Sparse {
		if u.accumulator != nil {
			if u.accumulator.IsEmpty() && u.lgK == src.lgK {
				u.accumulator = src.Copy()
				return nil
			}
			walkTableUpdatingSketch(u.accumulator, src.table)
			if u.accumulator.Flavor() > Sparse {
				u.switchToBitMatrix()
			}
			return nil
		}
		u.orTableIntoMatrix(src.table)
		return nil
	}

	if u.accumulator != nil {
		u.switchToBitMatrix()
	}
	if srcFlavor == Hybrid || srcFlavor == Pinned {
		u.orWindowIntoMatrix(src.window, src.windowOffset)
		u.orTableIntoMatrix(src.table)
		return nil
	}
	// Sliding sketches store early-zone zeros inverted, so their table cannot simply be ORed in.
	orMatrixIntoMatrix(u.matrix, src.buildBitMatrix())
	return nil
}

// Result returns a sketch of everything merged so far. Its estimate is ICON, since HIP cannot
// survive a merge. The union is left as it was.
func (u *Union) Result() *Sketch {
	if u.accumulator != nil {
		out := u.accumulator.Copy()
		if !out.IsEmpty() {
			out.mergeFlag = true
		}
		return out
	}

	out := newSketch(u.lgK, u.seed, u.seedHash)
	out.numCoupons = countBits(u.matrix)
	out.mergeFlag = true
	if out.Flavor() == Sparse {
		// Folding onto fewer rows can leave too few coupons for a window.
		var pairs []uint32
		for row, bits := range u.matrix {
			for col := 0; col < 64; col++ {
				if bits&(1<<col) != 0 {
					pairs = append(pairs, uint32(row)<<6|uint32(col))
				}
			}
		}
		out.table = pairTableFor(pairs, u.lgK)
		return out
	}
	out.windowOffset = determineCorrectOffset(u.lgK, out.numCoupons)
	out.window = make([]byte, out.k())
	out.firstInterestingColumn = out.fillWindowAndTable(u.matrix, out.windowOffset, out.table)
	return out
}

func (u *Union) switchToBitMatrix() {
	DebugLogger.Printf("cpc union lgK=%d: switching to a bit matrix at C=%d", u.lgK, u.accumulator.numCoupons)
	u.matrix = u.accumulator.buildBitMatrix()
	u.accumulator = nil
}

// walkTableUpdatingSketch replays the pairs of table into dst, folding rows onto dst's lgK. A
// golden-ratio stride visits the slots out of row order, so dst's own table does not fill up in
// one long run.
func walkTableUpdatingSketch(dst *Sketch, table *pairTable) {
	dstMask := uint32(dst.k()-1)<<6 | 63
	const golden = 0.6180339887498949025
	size := len(table.slots)
	stride := int(golden * float64(size))
	if stride%2 == 0 {
		stride++
	}
	for i, j := 0, 0; i < size; i, j = i+1, (j+stride)&(size-1) {
		if rowCol := table.slots[j]; rowCol != emptySlot {
			dst.rowColUpdate(rowCol & dstMask)
		}
	}
}

func (u *Union) orTableIntoMatrix(table *pairTable) {
	destMask := uint32(len(u.matrix) - 1)
	for _, rowCol := range table.slots {
		if rowCol != emptySlot {
			u.matrix[(rowCol>>6)&destMask] |= 1 << (rowCol & 63)
		}
	}
}

func (u *Union) orWindowIntoMatrix(window []byte, offset int) {
	destMask := len(u.matrix) - 1
	for i, b := range window {
		u.matrix[i&destMask] |= uint64(b) << offset
	}
}

// orMatrixIntoMatrix folds src, which has at least as many rows as dst, into dst.
func orMatrixIntoMatrix(dst, src []uint64) {
	destMask := len(dst) - 1
	for i, row := range src {
		dst[i&destMask] |= row
	}
}

// reduceK lowers the union to 2^newLgK rows.
func (u *Union) reduceK(newLgK int) {
	DebugLogger.Printf("cpc union: reducing lgK from %d to %d", u.lgK, newLgK)
	if u.matrix != nil {
		folded := make([]uint64, 1<<newLgK)
		orMatrixIntoMatrix(folded, u.matrix)
		u.matrix = folded
		u.lgK = newLgK
		return
	}

	next := newSketch(newLgK, u.seed, u.seedHash)
	walkTableUpdatingSketch(next, u.accumulator.table)
	u.lgK = newLgK
	if next.Flavor() > Sparse {
		u.matrix = next.buildBitMatrix()
		u.accumulator = nil
		return
	}
	u.accumulator = next
}
