package hll

import (
	"encoding/binary"
	"math"

	"github.com/lytics/datasketches/internal"
)

// Preamble layout shared by all three modes. Multi-byte fields are little-endian.
const (
	serVer   = 1
	familyID = 7

	listPreInts = 2
	setPreInts  = 3
	hllPreInts  = 10

	preambleIntsByte = 0
	serVerByte       = 1
	familyByte       = 2
	lgKByte          = 3
	lgArrByte        = 4
	flagsByte        = 5
	listCountByte    = 6
	hllCurMinByte    = 6
	modeByte         = 7

	listIntArrStart    = 8
	hashSetCountInt    = 8
	hashSetIntArrStart = 12

	hipAccumDouble  = 8
	kxq0Double      = 16
	kxq1Double      = 24
	curMinCountInt  = 32
	auxCountInt     = 36
	hllByteArrStart = 40

	emptyFlagMask      = 4
	compactFlagMask    = 8
	outOfOrderFlagMask = 16
	fullSizeFlagMask   = 32
)

func (s *Sketch) dataStart() int {
	switch s.mode {
	case ModeList:
		return listIntArrStart
	case ModeSet:
		return hashSetIntArrStart
	}
	return hllByteArrStart
}

func (s *Sketch) preInts() byte {
	switch s.mode {
	case ModeList:
		return listPreInts
	case ModeSet:
		return setPreInts
	}
	return hllPreInts
}

func (r *registers) imageLgAuxArr() int {
	if r.tgt != Hll4 {
		return 0
	}
	if r.aux != nil {
		return r.aux.lgAuxArrInts
	}
	return lgAuxArrInts[r.lgConfigK]
}

// CompactSerializationBytes is the length of SerializeCompact(0).
func (s *Sketch) CompactSerializationBytes() int {
	if s.mode != ModeHll {
		return s.dataStart() + 4*s.coupons.count()
	}
	n := hllByteArrStart + len(s.regs.data)
	if s.regs.aux != nil {
		n += 4 * s.regs.aux.auxCount
	}
	return n
}

// UpdatableSerializationBytes is the length of SerializeUpdatable().
func (s *Sketch) UpdatableSerializationBytes() int {
	if s.mode != ModeHll {
		return s.dataStart() + 4<<s.coupons.lgArr
	}
	n := hllByteArrStart + len(s.regs.data)
	if s.tgt == Hll4 {
		n += 4 << s.regs.imageLgAuxArr()
	}
	return n
}

// MaxUpdatableSerializationBytes bounds the updatable image of any sketch with this configuration,
// for callers that preallocate storage.
func MaxUpdatableSerializationBytes(lgConfigK int, tgt TargetType) (int, error) {
	if err := checkLgK(lgConfigK); err != nil {
		return 0, err
	}
	if err := checkTargetType(tgt); err != nil {
		return 0, err
	}
	n := hllByteArrStart + registerBytes(lgConfigK, tgt)
	if tgt == Hll4 {
		n += 4 << lgAuxArrInts[lgConfigK]
	}
	// A SET image is never larger than the HLL image it turns into.
	return n, nil
}

// SerializeCompact returns the smallest image of the sketch, preceded by headerSizeBytes zero
// bytes that the sketch never reads. A negative header size is treated as zero.
func (s *Sketch) SerializeCompact(headerSizeBytes int) []byte {
	return s.serialize(true, max(headerSizeBytes, 0))
}

// SerializeUpdatable returns an image whose tables keep their in-memory layout, so a sketch
// rebuilt from it resumes updating without resizing.
func (s *Sketch) SerializeUpdatable() []byte {
	return s.serialize(false, 0)
}

func (s *Sketch) serialize(compact bool, header int) []byte {
	var size int
	if compact {
		size = s.CompactSerializationBytes()
	} else {
		size = s.UpdatableSerializationBytes()
	}
	buf := make([]byte, header+size)
	b := buf[header:]

	b[preambleIntsByte] = s.preInts()
	b[serVerByte] = serVer
	b[familyByte] = familyID
	b[lgKByte] = byte(s.lgConfigK)
	b[flagsByte] = s.flagsByte(compact)
	b[modeByte] = byte(s.mode) | byte(s.tgt)<<2

	if s.mode != ModeHll {
		s.writeCoupons(b, compact)
		return buf
	}

	r := s.regs
	r.checkRebuild()
	b[lgArrByte] = byte(r.imageLgAuxArr())
	b[hllCurMinByte] = r.curMin
	binary.LittleEndian.PutUint64(b[hipAccumDouble:], math.Float64bits(r.hipAccum))
	binary.LittleEndian.PutUint64(b[kxq0Double:], math.Float64bits(r.kxq0))
	binary.LittleEndian.PutUint64(b[kxq1Double:], math.Float64bits(r.kxq1))
	binary.LittleEndian.PutUint32(b[curMinCountInt:], uint32(r.numAtCurMin))
	auxStart := hllByteArrStart + copy(b[hllByteArrStart:], r.data)
	if r.aux == nil {
		return buf
	}
	binary.LittleEndian.PutUint32(b[auxCountInt:], uint32(r.aux.auxCount))
	entries := r.aux.entries
	if compact {
		entries = r.aux.pairs()
	}
	for i, p := range entries {
		binary.LittleEndian.PutUint32(b[auxStart+4*i:], p)
	}
	return buf
}

func (s *Sketch) flagsByte(compact bool) byte {
	var flags byte
	if s.IsEmpty() {
		flags |= emptyFlagMask
	}
	if compact {
		flags |= compactFlagMask
	}
	if s.IsOutOfOrder() {
		flags |= outOfOrderFlagMask
	}
	if s.startFullSize {
		flags |= fullSizeFlagMask
	}
	return flags
}

func (s *Sketch) writeCoupons(b []byte, compact bool) {
	c := s.coupons
	b[lgArrByte] = byte(c.lgArr)
	if s.mode == ModeList {
		b[listCountByte] = byte(c.count())
	} else {
		binary.LittleEndian.PutUint32(b[hashSetCountInt:], uint32(c.count()))
	}

	var entries []uint32
	switch {
	case compact:
		entries = c.sorted()
	case s.mode == ModeList:
		entries = c.list // the remaining slots stay zero
	default:
		entries = probeTable(c.sorted(), c.lgArr)
	}
	start := s.dataStart()
	for i, v := range entries {
		binary.LittleEndian.PutUint32(b[start+4*i:], v)
	}
}

// Deserialize rebuilds a sketch from an image produced by SerializeCompact (with the caller's
// header stripped) or SerializeUpdatable. The image is validated in full and never aliased.
func Deserialize(b []byte) (*Sketch, error) {
	if len(b) < listIntArrStart {
		return nil, internal.Formatf("image of %d bytes is shorter than the %d byte preamble", len(b), listIntArrStart)
	}
	if b[serVerByte] != serVer {
		return nil, internal.Formatf("unsupported serial version %d", b[serVerByte])
	}
	if b[familyByte] != familyID {
		return nil, internal.Formatf("family %d is not HLL (%d)", b[familyByte], familyID)
	}
	lgK := int(b[lgKByte])
	if lgK < MinLgK || lgK > MaxLgK {
		return nil, internal.Formatf("lgConfigK %d outside [%d,%d]", lgK, MinLgK, MaxLgK)
	}
	mode := Mode(b[modeByte] & 3)
	tgt := TargetType((b[modeByte] >> 2) & 3)
	if mode > ModeHll || tgt > Hll8 {
		return nil, internal.Formatf("invalid mode byte 0x%02x", b[modeByte])
	}
	s := &Sketch{lgConfigK: lgK, tgt: tgt, mode: mode}
	if int(b[preambleIntsByte]) != int(s.preInts()) {
		return nil, internal.Formatf("%s image declares %d preamble ints, want %d", mode, b[preambleIntsByte], s.preInts())
	}

	flags := b[flagsByte]
	compact := flags&compactFlagMask != 0
	s.startFullSize = flags&fullSizeFlagMask != 0
	if s.startFullSize && mode != ModeHll {
		return nil, internal.Formatf("full-size sketch serialized in %s mode", mode)
	}

	var err error
	switch mode {
	case ModeList:
		s.coupons, err = readList(b, compact)
	case ModeSet:
		s.coupons, err = readSet(b, lgK, compact)
	default:
		s.regs, err = readRegisters(b, lgK, tgt, compact)
	}
	if err != nil {
		return nil, err
	}
	if mode != ModeHll {
		s.coupons.outOfOrder = flags&outOfOrderFlagMask != 0
		if (flags&emptyFlagMask != 0) != (s.coupons.count() == 0) {
			return nil, internal.Formatf("empty flag disagrees with %d coupons", s.coupons.count())
		}
	} else {
		s.regs.outOfOrder = flags&outOfOrderFlagMask != 0
	}
	return s, nil
}

// readCoupons reads n slots starting at start. Zero slots are skipped; the coupons found are
// validated and checked for duplicates.
func readCoupons(b []byte, start, n int) ([]uint32, error) {
	if len(b) < start+4*n {
		return nil, internal.Formatf("image of %d bytes truncates %d coupon slots", len(b), n)
	}
	out := make([]uint32, 0, n)
	seen := make(map[uint32]struct{}, n)
	for i := 0; i < n; i++ {
		c := binary.LittleEndian.Uint32(b[start+4*i:])
		if c == 0 {
			continue
		}
		if v := couponValue(c); v < 1 || v > maxRegisterValue {
			return nil, internal.Formatf("coupon 0x%08x has value %d", c, v)
		}
		if _, dup := seen[c]; dup {
			return nil, internal.Formatf("coupon 0x%08x appears twice", c)
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out, nil
}

func readList(b []byte, compact bool) (*couponStore, error) {
	count := int(b[listCountByte])
	if count >= 1<<lgInitListSize {
		return nil, internal.Formatf("list of %d coupons should have been promoted", count)
	}
	n := count
	if !compact {
		if int(b[lgArrByte]) != lgInitListSize {
			return nil, internal.Formatf("list table of 2^%d slots, want 2^%d", b[lgArrByte], lgInitListSize)
		}
		n = 1 << lgInitListSize
	}
	coupons, err := readCoupons(b, listIntArrStart, n)
	if err != nil {
		return nil, err
	}
	if len(coupons) != count {
		return nil, internal.Formatf("list declares %d coupons but holds %d", count, len(coupons))
	}
	list := newCouponList()
	list.list = append(list.list, coupons...)
	return list, nil
}

func readSet(b []byte, lgK int, compact bool) (*couponStore, error) {
	if len(b) < hashSetIntArrStart {
		return nil, internal.Formatf("set image of %d bytes is shorter than its preamble", len(b))
	}
	if lgK < 8 {
		return nil, internal.Formatf("lgConfigK %d sketches have no set mode", lgK)
	}
	lgArr := int(b[lgArrByte])
	if lgArr < lgInitSetSize || lgArr > lgK-3 {
		return nil, internal.Formatf("set table of 2^%d slots outside [2^%d,2^%d]", lgArr, lgInitSetSize, lgK-3)
	}
	count64 := uint64(binary.LittleEndian.Uint32(b[hashSetCountInt:]))
	if count64 == 0 || resizeDenom*count64 > resizeNumer*(uint64(1)<<lgArr) {
		return nil, internal.Formatf("set of %d coupons does not fit a table of 2^%d", count64, lgArr)
	}
	count := int(count64)
	n := count
	if !compact {
		n = 1 << lgArr
	}
	coupons, err := readCoupons(b, hashSetIntArrStart, n)
	if err != nil {
		return nil, err
	}
	if len(coupons) != count {
		return nil, internal.Formatf("set declares %d coupons but holds %d", count, len(coupons))
	}
	set := promoteListToSet(newCouponList())
	set.lgArr = lgArr
	for _, c := range coupons {
		set.set.Add(c)
	}
	return set, nil
}

func readRegisters(b []byte, lgK int, tgt TargetType, compact bool) (*registers, error) {
	if len(b) < hllByteArrStart {
		return nil, internal.Formatf("HLL image of %d bytes is shorter than its preamble", len(b))
	}
	r := newRegisters(lgK, tgt)
	regEnd := hllByteArrStart + len(r.data)
	if len(b) < regEnd {
		return nil, internal.Formatf("HLL image of %d bytes truncates %d register bytes", len(b), len(r.data))
	}
	copy(r.data, b[hllByteArrStart:regEnd])
	r.curMin = b[hllCurMinByte]
	r.hipAccum = math.Float64frombits(binary.LittleEndian.Uint64(b[hipAccumDouble:]))
	r.kxq0 = math.Float64frombits(binary.LittleEndian.Uint64(b[kxq0Double:]))
	r.kxq1 = math.Float64frombits(binary.LittleEndian.Uint64(b[kxq1Double:]))
	numAtCurMin := binary.LittleEndian.Uint32(b[curMinCountInt:])
	auxCount := binary.LittleEndian.Uint32(b[auxCountInt:])

	for _, f := range []float64{r.hipAccum, r.kxq0, r.kxq1} {
		if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
			return nil, internal.Formatf("estimator field %v out of range", f)
		}
	}
	if r.curMin > maxRegisterValue || uint64(numAtCurMin) > uint64(r.k()) {
		return nil, internal.Formatf("curMin %d / numAtCurMin %d out of range", r.curMin, numAtCurMin)
	}
	r.numAtCurMin = int(numAtCurMin)

	if tgt != Hll4 {
		if auxCount != 0 {
			return nil, internal.Formatf("%s image declares %d aux entries", tgt, auxCount)
		}
		if tgt == Hll8 {
			for _, v := range r.data {
				if v > maxRegisterValue {
					return nil, internal.Formatf("register value %d out of range", v)
				}
			}
		}
		if r.curMin != 0 {
			return nil, internal.Formatf("%s image with curMin %d", tgt, r.curMin)
		}
		zeros := 0
		for slot := 0; slot < r.k(); slot++ {
			if r.value(slot) == 0 {
				zeros++
			}
		}
		if zeros != r.numAtCurMin {
			return nil, internal.Formatf("numAtCurMin %d but %d registers are zero", r.numAtCurMin, zeros)
		}
		return r, nil
	}
	if err := readAux(r, b[regEnd:], int(b[lgArrByte]), auxCount, compact); err != nil {
		return nil, err
	}
	return r, nil
}

// readAux fills the exception map of an HLL_4 array and checks it against the nibble array.
func readAux(r *registers, b []byte, lgAuxArr int, auxCount uint32, compact bool) error {
	tokens, zeros := 0, 0
	for slot := 0; slot < r.k(); slot++ {
		switch nib := r.nibble(slot); {
		case nib == auxToken:
			tokens++
		case nib == 0:
			zeros++
		case nib+r.curMin > maxRegisterValue:
			return internal.Formatf("register %d holds %d above curMin %d", slot, nib, r.curMin)
		}
	}
	if zeros != r.numAtCurMin {
		return internal.Formatf("numAtCurMin %d but %d registers sit at curMin", r.numAtCurMin, zeros)
	}
	if uint64(auxCount) != uint64(tokens) {
		return internal.Formatf("%d aux entries for %d aux tokens", auxCount, tokens)
	}

	n := int(auxCount)
	if !compact {
		if lgAuxArr < 2 || lgAuxArr > r.lgConfigK+1 {
			return internal.Allocationf("aux table of 2^%d entries for lgConfigK %d", lgAuxArr, r.lgConfigK)
		}
		n = 1 << lgAuxArr
	}
	if len(b) < 4*n {
		return internal.Formatf("image truncates %d aux entries", n)
	}
	if auxCount == 0 {
		return nil
	}

	lgArr := lgAuxArrInts[r.lgConfigK]
	if !compact {
		lgArr = lgAuxArr
	}
	r.aux = newAuxMap(lgArr, r.lgConfigK)
	for i := 0; i < n; i++ {
		p := binary.LittleEndian.Uint32(b[4*i:])
		if p == 0 {
			continue
		}
		slot, v := int(couponAddr(p)), couponValue(p)
		if slot >= r.k() || r.nibble(slot) != auxToken {
			return internal.Formatf("aux entry for slot %d without an aux token", slot)
		}
		if v < r.curMin+auxToken || v > maxRegisterValue {
			return internal.Formatf("aux value %d out of range for curMin %d", v, r.curMin)
		}
		if r.aux.find(slot) >= 0 {
			return internal.Formatf("aux slot %d appears twice", slot)
		}
		r.aux.mustAdd(slot, v)
	}
	if r.aux.auxCount != int(auxCount) {
		return internal.Formatf("aux table holds %d entries, preamble declares %d", r.aux.auxCount, auxCount)
	}
	return nil
}
