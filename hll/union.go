package hll

// Union merges HLL sketches of any precision and width. Its working sketch always uses HLL_8
// registers; Result re-encodes at the caller's chosen width.
//
// Coupons carry full 26-bit addresses, so while the union holds only coupons it keeps lgMaxK. Once
// it holds registers, folding in a coarser register array lowers its precision to match, because
// registers cannot be split back into finer ones. Finer inputs are folded down to the union's
// precision.
type Union struct {
	lgMaxK int
	gadget *Sketch
}

// NewUnion returns an empty union that will not exceed 2^lgMaxK registers.
func NewUnion(lgMaxK int) (*Union, error) {
	gadget, err := NewSketch(lgMaxK, Hll8, false)
	if err != nil {
		return nil, err
	}
	return &Union{lgMaxK: lgMaxK, gadget: gadget}, nil
}

func (u *Union) Copy() *Union {
	return &Union{lgMaxK: u.lgMaxK, gadget: u.gadget.Copy()}
}

func (u *Union) Reset() {
	u.gadget, _ = NewSketch(u.lgMaxK, Hll8, false)
}

func (u *Union) LgMaxK() int { return u.lgMaxK }

// LgConfigK is the union's current working precision.
func (u *Union) LgConfigK() int { return u.gadget.lgConfigK }

func (u *Union) IsEmpty() bool              { return u.gadget.IsEmpty() }
func (u *Union) Estimate() float64          { return u.gadget.Estimate() }
func (u *Union) CompositeEstimate() float64 { return u.gadget.CompositeEstimate() }

func (u *Union) LowerBound(numStdDev int) (float64, error) { return u.gadget.LowerBound(numStdDev) }
func (u *Union) UpperBound(numStdDev int) (float64, error) { return u.gadget.UpperBound(numStdDev) }

func (u *Union) String() string { return u.gadget.String() }

// The item updates feed the working sketch directly.
func (u *Union) UpdateUint64(datum uint64)   { u.gadget.UpdateUint64(datum) }
func (u *Union) UpdateInt64(datum int64)     { u.gadget.UpdateInt64(datum) }
func (u *Union) UpdateInt32(datum int32)     { u.gadget.UpdateInt32(datum) }
func (u *Union) UpdateInt16(datum int16)     { u.gadget.UpdateInt16(datum) }
func (u *Union) UpdateInt8(datum int8)       { u.gadget.UpdateInt8(datum) }
func (u *Union) UpdateUint32(datum uint32)   { u.gadget.UpdateUint32(datum) }
func (u *Union) UpdateUint16(datum uint16)   { u.gadget.UpdateUint16(datum) }
func (u *Union) UpdateUint8(datum uint8)     { u.gadget.UpdateUint8(datum) }
func (u *Union) UpdateFloat64(datum float64) { u.gadget.UpdateFloat64(datum) }
func (u *Union) UpdateFloat32(datum float32) { u.gadget.UpdateFloat32(datum) }
func (u *Union) UpdateString(datum string)   { u.gadget.UpdateString(datum) }
func (u *Union) UpdateBytes(datum []byte)    { u.gadget.UpdateBytes(datum) }

// Result returns an independent sketch of the merged state with the given register width. The
// union is left as it was and keeps accepting updates.
func (u *Union) Result(tgt TargetType) (*Sketch, error) {
	if err := checkTargetType(tgt); err != nil {
		return nil, err
	}
	if u.gadget.mode == ModeHll {
		u.gadget.regs.checkRebuild()
	}
	out := u.gadget.CopyAs(tgt)
	out.startFullSize = false
	return out, nil
}

// Update folds a sketch into the union. The sketch is not modified.
func (u *Union) Update(src *Sketch) {
	if src == nil || src.IsEmpty() {
		return
	}
	g := u.gadget

	if src.mode != ModeHll {
		if src.mode == ModeSet && g.IsEmpty() && src.lgConfigK == g.lgConfigK {
			u.gadget = src.CopyAs(Hll8)
			u.gadget.startFullSize = false
			return
		}
		// Replayed coupons arrive after data the HIP accumulator never saw in order.
		if !g.IsEmpty() || src.IsOutOfOrder() {
			g.markOutOfOrder()
		}
		mergeCoupons(src, g)
		return
	}

	switch {
	case g.mode != ModeHll:
		// Reverse merge: start from the source's registers and replay our coupons into them.
		var regs *registers
		if src.lgConfigK > u.lgMaxK {
			regs = downsample(src.regs, u.lgMaxK)
		} else {
			regs = src.regs.convert(Hll8)
		}
		if !g.IsEmpty() {
			regs.outOfOrder = true
		}
		next := &Sketch{lgConfigK: regs.lgConfigK, tgt: Hll8, mode: ModeHll, regs: regs}
		mergeCoupons(g, next)
		u.gadget = next
	case src.lgConfigK < g.lgConfigK:
		DebugLogger.Printf("hll union: lowering precision from lgK=%d to lgK=%d", g.lgConfigK, src.lgConfigK)
		regs := downsample(g.regs, src.lgConfigK)
		regs.mergeMax(src.regs)
		u.gadget = &Sketch{lgConfigK: regs.lgConfigK, tgt: Hll8, mode: ModeHll, regs: regs}
	default:
		g.regs.mergeMax(src.regs)
	}
}

func (s *Sketch) markOutOfOrder() {
	if s.mode == ModeHll {
		s.regs.outOfOrder = true
		return
	}
	s.coupons.outOfOrder = true
}

// mergeCoupons replays the coupons of a LIST or SET sketch into dst.
func mergeCoupons(src, dst *Sketch) {
	for _, c := range src.coupons.sorted() {
		dst.couponUpdate(c)
	}
}
