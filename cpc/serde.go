package cpc

import (
	"encoding/binary"
	"math"

	"github.com/golang/snappy"

	"github.com/lytics/datasketches/internal"
)

const (
	serVer   = 1
	familyID = 16

	preambleIntsByte = 0
	serVerByte       = 1
	familyByte       = 2
	lgKByte          = 3
	ficolByte        = 4
	flagsByte        = 5
	seedHashShort    = 6
	lowPreambleBytes = 8

	bigEndianFlag  = 1 << 0
	compressedFlag = 1 << 1
	hasHipFlag     = 1 << 2
	hasTableFlag   = 1 << 3
	hasWindowFlag  = 1 << 4
	knownFlags     = bigEndianFlag | compressedFlag | hasHipFlag | hasTableFlag | hasWindowFlag
)

// header is the decoded form of everything ahead of the streams.
type header struct {
	lgK         int
	ficol       int
	flags       byte
	seedHash    uint16
	numCoupons  uint64
	numSurprise uint64
	surpriseLen int
	windowLen   int
	kxp, hip    float64
}

func (h *header) has(flag byte) bool { return h.flags&flag != 0 }

func (h *header) preInts() int {
	n := lowPreambleBytes
	if h.numCoupons > 0 {
		n += 4
	}
	if h.has(hasTableFlag) {
		n += 8
	}
	if h.has(hasWindowFlag) {
		n += 4
	}
	if h.has(hasHipFlag) {
		n += 16
	}
	return n / 4
}

// Serialize returns a self-describing image of the sketch. Surprises are stored as ascending
// uvarint deltas and the window, when present, as a snappy block.
func (s *Sketch) Serialize() []byte {
	h := header{
		lgK:        s.lgK,
		ficol:      s.firstInterestingColumn,
		seedHash:   s.seedHash,
		numCoupons: s.numCoupons,
		kxp:        s.kxp,
		hip:        s.hipAccum,
	}

	var surprises, window []byte
	if s.table.numItems > 0 {
		h.flags |= hasTableFlag
		items := s.table.items()
		dl := internal.NewDeltaList(len(items) * 2)
		for _, item := range items {
			dl.Add(uint64(item))
		}
		surprises = dl.Bytes()
		h.numSurprise = dl.Len()
		h.surpriseLen = dl.SizeInBytes()
	}
	if s.window != nil {
		h.flags |= hasWindowFlag
		window = snappy.Encode(nil, s.window)
		h.windowLen = len(window)
	}
	if s.numCoupons > 0 && !s.mergeFlag {
		h.flags |= hasHipFlag
	}

	headerLen := 4 * h.preInts()
	b := make([]byte, headerLen, headerLen+len(surprises)+len(window))
	b[preambleIntsByte] = byte(h.preInts())
	b[serVerByte] = serVer
	b[familyByte] = familyID
	b[lgKByte] = byte(h.lgK)
	b[ficolByte] = byte(h.ficol)
	b[flagsByte] = h.flags
	binary.LittleEndian.PutUint16(b[seedHashShort:], h.seedHash)

	pos := lowPreambleBytes
	put32 := func(v uint32) {
		binary.LittleEndian.PutUint32(b[pos:], v)
		pos += 4
	}
	if h.numCoupons > 0 {
		put32(uint32(h.numCoupons))
	}
	if h.has(hasTableFlag) {
		put32(uint32(h.numSurprise))
		put32(uint32(h.surpriseLen))
	}
	if h.has(hasWindowFlag) {
		put32(uint32(h.windowLen))
	}
	if h.has(hasHipFlag) {
		binary.LittleEndian.PutUint64(b[pos:], math.Float64bits(h.kxp))
		binary.LittleEndian.PutUint64(b[pos+8:], math.Float64bits(h.hip))
	}

	b = append(b, surprises...)
	return append(b, window...)
}

// Deserialize rebuilds a sketch from an image produced by Serialize. The seed must be the one the
// sketch was built with. Every field is validated and the result never aliases b.
func Deserialize(b []byte, seed uint64) (*Sketch, error) {
	seedHash, err := internal.ComputeSeedHash(seed)
	if err != nil {
		return nil, err
	}
	h, err := readHeader(b)
	if err != nil {
		return nil, err
	}
	if h.seedHash != seedHash {
		return nil, internal.SeedMismatchf("image seed hash 0x%04x, seed %d hashes to 0x%04x", h.seedHash, seed, seedHash)
	}

	s := newSketch(h.lgK, seed, seedHash)
	s.numCoupons = h.numCoupons
	if h.numCoupons == 0 {
		return s, nil
	}
	s.mergeFlag = !h.has(hasHipFlag)
	if !s.mergeFlag {
		s.kxp, s.hipAccum = h.kxp, h.hip
	}

	flavor := determineFlavor(h.lgK, h.numCoupons)
	if h.has(hasWindowFlag) != (flavor >= Hybrid) {
		return nil, internal.Formatf("%s sketch with window flag %t", flavor, h.has(hasWindowFlag))
	}
	if flavor == Sparse && h.numSurprise != h.numCoupons {
		return nil, internal.Formatf("sparse sketch holds %d of %d coupons", h.numSurprise, h.numCoupons)
	}
	if flavor == Sparse && h.ficol != 0 {
		return nil, internal.Formatf("sparse sketch with first interesting column %d", h.ficol)
	}
	offset := 0
	if flavor >= Hybrid {
		offset = determineCorrectOffset(h.lgK, h.numCoupons)
		if offset > maxWindowOffset || h.ficol > offset {
			return nil, internal.Formatf("window offset %d with first interesting column %d", offset, h.ficol)
		}
	}
	s.windowOffset = offset
	s.firstInterestingColumn = h.ficol

	body := b[4*h.preInts():]
	if len(body) != h.surpriseLen+h.windowLen {
		return nil, internal.Formatf("image body of %d bytes, preamble declares %d", len(body), h.surpriseLen+h.windowLen)
	}

	pairs, err := readSurprises(body[:h.surpriseLen], h, offset)
	if err != nil {
		return nil, err
	}
	s.table = pairTableFor(pairs, h.lgK)

	if h.has(hasWindowFlag) {
		if s.window, err = readWindow(body[h.surpriseLen:], s.k()); err != nil {
			return nil, err
		}
	}

	if got := countBits(s.buildBitMatrix()); got != h.numCoupons {
		return nil, internal.Formatf("bit matrix holds %d coupons, preamble declares %d", got, h.numCoupons)
	}
	return s, nil
}

func readHeader(b []byte) (*header, error) {
	if len(b) < lowPreambleBytes {
		return nil, internal.Formatf("image of %d bytes is shorter than the %d byte preamble", len(b), lowPreambleBytes)
	}
	if b[serVerByte] != serVer {
		return nil, internal.Formatf("unsupported serial version %d", b[serVerByte])
	}
	if b[familyByte] != familyID {
		return nil, internal.Formatf("family %d is not CPC (%d)", b[familyByte], familyID)
	}
	h := &header{
		lgK:      int(b[lgKByte]),
		ficol:    int(b[ficolByte]),
		flags:    b[flagsByte],
		seedHash: binary.LittleEndian.Uint16(b[seedHashShort:]),
	}
	if err := checkLgK(h.lgK); err != nil {
		return nil, internal.Formatf("lgK %d outside [%d,%d]", h.lgK, MinLgK, MaxLgK)
	}
	if h.flags&^knownFlags != 0 || h.has(bigEndianFlag) {
		return nil, internal.Formatf("unsupported flags 0x%02x", h.flags)
	}
	if h.has(compressedFlag) {
		return nil, internal.Formatf("compressed CPC images are not supported")
	}
	if h.ficol > 63 {
		return nil, internal.Formatf("first interesting column %d", h.ficol)
	}

	// The coupon count is present exactly when any of the other sections are, and the preamble
	// int count has to agree with the flags.
	if len(b) < 4*int(b[preambleIntsByte]) || int(b[preambleIntsByte]) < lowPreambleBytes/4 {
		return nil, internal.Formatf("image of %d bytes truncates %d preamble ints", len(b), b[preambleIntsByte])
	}
	pos := lowPreambleBytes
	get32 := func() uint32 {
		v := binary.LittleEndian.Uint32(b[pos:])
		pos += 4
		return v
	}
	if int(b[preambleIntsByte]) > lowPreambleBytes/4 {
		h.numCoupons = uint64(get32())
	}
	if h.numCoupons == 0 {
		if h.flags&(hasHipFlag|hasTableFlag|hasWindowFlag) != 0 || h.ficol != 0 {
			return nil, internal.Formatf("empty sketch with flags 0x%02x", h.flags)
		}
	}
	if int(b[preambleIntsByte]) != h.preInts() {
		return nil, internal.Formatf("image declares %d preamble ints, flags imply %d", b[preambleIntsByte], h.preInts())
	}
	if h.numCoupons > 64*(uint64(1)<<h.lgK) {
		return nil, internal.Formatf("%d coupons exceed the %d bit matrix", h.numCoupons, 64<<h.lgK)
	}
	if h.has(hasTableFlag) {
		h.numSurprise = uint64(get32())
		h.surpriseLen = int(get32())
		if h.numSurprise == 0 {
			return nil, internal.Formatf("surprise stream flagged but empty")
		}
	}
	if h.has(hasWindowFlag) {
		h.windowLen = int(get32())
	}
	if h.has(hasHipFlag) {
		h.kxp = math.Float64frombits(binary.LittleEndian.Uint64(b[pos:]))
		h.hip = math.Float64frombits(binary.LittleEndian.Uint64(b[pos+8:]))
		for _, f := range []float64{h.kxp, h.hip} {
			if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
				return nil, internal.Formatf("HIP field %v out of range", f)
			}
		}
	}
	if h.surpriseLen < 0 || h.windowLen < 0 || h.surpriseLen > len(b) || h.windowLen > len(b) {
		return nil, internal.Formatf("stream lengths %d and %d exceed the image", h.surpriseLen, h.windowLen)
	}
	return h, nil
}

// readSurprises decodes the ascending rowCol list and checks each pair against the layout: rows
// within k, and in windowed sketches no pair inside the window or left of the first interesting
// column.
func readSurprises(stream []byte, h *header, offset int) ([]uint32, error) {
	if !h.has(hasTableFlag) {
		return nil, nil
	}
	if h.numSurprise > uint64(len(stream)) {
		return nil, internal.Formatf("%d surprises cannot fit in %d bytes", h.numSurprise, len(stream))
	}
	dl, err := internal.ParseStrictDeltaList(stream, h.numSurprise)
	if err != nil {
		return nil, err
	}
	k := uint64(1) << h.lgK
	windowed := h.has(hasWindowFlag)
	pairs := make([]uint32, 0, h.numSurprise)
	it := dl.Iterator()
	for v, ok := it(); ok; v, ok = it() {
		if v >= emptySlotU64 || v>>6 >= k {
			return nil, internal.Formatf("surprise 0x%x is outside a %d row matrix", v, k)
		}
		col := int(v & 63)
		if windowed && (col < h.ficol || (col >= offset && col < offset+8)) {
			return nil, internal.Formatf("surprise in column %d with window at %d", col, offset)
		}
		pairs = append(pairs, uint32(v))
	}
	return pairs, nil
}

const emptySlotU64 = uint64(emptySlot)

func readWindow(stream []byte, k uint64) ([]byte, error) {
	n, err := snappy.DecodedLen(stream)
	if err != nil {
		return nil, internal.Formatf("window stream: %v", err)
	}
	if uint64(n) != k {
		return nil, internal.Allocationf("window stream decodes to %d bytes, want %d", n, k)
	}
	window, err := snappy.Decode(nil, stream)
	if err != nil {
		return nil, internal.Formatf("window stream: %v", err)
	}
	return window, nil
}

// SerializedSizeBytes is the length of Serialize().
func (s *Sketch) SerializedSizeBytes() int {
	return len(s.Serialize())
}
