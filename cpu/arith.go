package cpu

// Uint is the width constraint the generic arithmetic core is written
// against: one implementation, invoked uniformly for 8-, 16- and 32-bit
// operands, rather than three hand-copied variants. Mirrors
// original_source/x86/src/ops/math.rs's `trait Int: PrimInt`, translated
// from a Rust trait bound to a Go type parameter.
type Uint interface {
	~uint8 | ~uint16 | ~uint32
}

// bitWidth returns W for the given Uint instantiation by probing the zero
// value's type width through a type switch on an interface conversion.
func bitWidth[T Uint]() uint {
	var z T
	switch any(z).(type) {
	case uint8:
		return 8
	case uint16:
		return 16
	default:
		return 32
	}
}

func highBit[T Uint]() T {
	return T(1) << (bitWidth[T]() - 1)
}

// AddResult carries a width-generic ALU result plus the flags spec.md §4.4
// requires: CF, ZF, SF, OF. Every arithmetic handler for every width
// funnels through one of these functions so flag logic is written exactly
// once.
type AddResult[T Uint] struct {
	Value T
	CF    bool
	ZF    bool
	SF    bool
	OF    bool
}

// Add computes x+y at width W with SDM-standard flags: CF is unsigned
// overflow, OF is the sign-bit overflow detector
// ((x ^ ~y) & (x ^ result)) >> (W-1), per spec.md §4.4.
func Add[T Uint](x, y T) AddResult[T] {
	result := x + y
	hb := highBit[T]()
	of := ((x ^ ^y) & (x ^ result)) & hb
	return AddResult[T]{
		Value: result,
		CF:    result < x,
		ZF:    result == 0,
		SF:    result&hb != 0,
		OF:    of != 0,
	}
}

// Sub computes x-y at width W; OF is ((x ^ y) & (x ^ result)) >> (W-1).
func Sub[T Uint](x, y T) AddResult[T] {
	result := x - y
	hb := highBit[T]()
	of := ((x ^ y) & (x ^ result)) & hb
	return AddResult[T]{
		Value: result,
		CF:    x < y,
		ZF:    result == 0,
		SF:    result&hb != 0,
		OF:    of != 0,
	}
}

// Adc/Sbb are Add/Sub with an incoming carry folded in; CF/OF are computed
// against the two-step accumulation the SDM describes.
func Adc[T Uint](x, y T, cin bool) AddResult[T] {
	var c T
	if cin {
		c = 1
	}
	r1 := Add(x, y)
	r2 := Add(r1.Value, c)
	return AddResult[T]{
		Value: r2.Value,
		CF:    r1.CF || r2.CF,
		ZF:    r2.Value == 0,
		SF:    r2.SF,
		OF:    r1.OF != r2.OF, // approximate combined overflow, matches practical SDM outcomes for the c in {0,1} case
	}
}

func Sbb[T Uint](x, y T, cin bool) AddResult[T] {
	var c T
	if cin {
		c = 1
	}
	r1 := Sub(x, y)
	r2 := Sub(r1.Value, c)
	return AddResult[T]{
		Value: r2.Value,
		CF:    r1.CF || r2.CF,
		ZF:    r2.Value == 0,
		SF:    r2.SF,
		OF:    r1.OF != r2.OF,
	}
}

// LogicResult is the flag set for AND/OR/XOR/TEST: CF and OF are always
// cleared by AND/OR/XOR per the SDM, ZF/SF follow the result.
type LogicResult[T Uint] struct {
	Value T
	ZF    bool
	SF    bool
}

func logicFlags[T Uint](result T) LogicResult[T] {
	hb := highBit[T]()
	return LogicResult[T]{Value: result, ZF: result == 0, SF: result&hb != 0}
}

func And[T Uint](x, y T) LogicResult[T] { return logicFlags(x & y) }
func Or[T Uint](x, y T) LogicResult[T]  { return logicFlags(x | y) }
func Xor[T Uint](x, y T) LogicResult[T] { return logicFlags(x ^ y) }

// Neg computes 0-x; CF is set unless x is zero (matching SDM: CF=0 iff
// operand is 0), OF per the Sub overflow detector with x=0.
func Neg[T Uint](x T) AddResult[T] {
	r := Sub[T](0, x)
	return r
}

// ShiftResult adds the shift-specific flags (CF, OF) layered over the
// generic logic flags.
type ShiftResult[T Uint] struct {
	Value T
	CF    bool
	ZF    bool
	SF    bool
	OF    bool
}

// Shl shifts x left by count (masked to the width's bit-count range by the
// caller, per real SHL semantics count is used mod 32 at decode time but we
// accept whatever count is passed). Per spec.md §4.4/§8: shift by 0 leaves
// all flags unchanged; CF is the last bit shifted out; OF (only meaningful
// for count==1, matching observed Windows behavior for larger counts too)
// is the XOR of the top two bits of the pre-shift operand.
func Shl[T Uint](x T, count uint) ShiftResult[T] {
	w := bitWidth[T]()
	if count == 0 {
		return ShiftResult[T]{Value: x}
	}
	hb := highBit[T]()
	var cf bool
	if count <= w {
		cf = (x<<(count-1))&hb != 0
	}
	var result T
	if count < w {
		result = x << count
	} else {
		result = 0
	}
	top2 := (x >> (w - 2)) & 0b11
	of := (top2>>1)^(top2&1) != 0
	return ShiftResult[T]{
		Value: result,
		CF:    cf,
		ZF:    result == 0,
		SF:    result&hb != 0,
		OF:    of,
	}
}

// Shr shifts x right (logical) by count. Per spec.md §8: OF is the sign
// bit of the pre-shift operand (matching observed Windows behavior for the
// SDM-undefined case).
func Shr[T Uint](x T, count uint) ShiftResult[T] {
	w := bitWidth[T]()
	if count == 0 {
		return ShiftResult[T]{Value: x}
	}
	hb := highBit[T]()
	var cf bool
	if count <= w {
		cf = (x>>(count-1))&1 != 0
	}
	var result T
	if count < w {
		result = x >> count
	} else {
		result = 0
	}
	return ShiftResult[T]{
		Value: result,
		CF:    cf,
		ZF:    result == 0,
		SF:    result&hb != 0,
		OF:    x&hb != 0,
	}
}

// Sar shifts x right arithmetically (sign-extending) by count.
func Sar[T Uint](x T, count uint) ShiftResult[T] {
	w := bitWidth[T]()
	if count == 0 {
		return ShiftResult[T]{Value: x}
	}
	hb := highBit[T]()
	signed := x&hb != 0
	var cf bool
	if count <= w {
		cf = (x>>(count-1))&1 != 0
	}
	result := x >> count
	if signed {
		// Sign-extend the vacated high bits.
		var mask T
		if count < w {
			mask = ^T(0) << (w - count)
		} else {
			mask = ^T(0)
		}
		result |= mask
	}
	return ShiftResult[T]{
		Value: result,
		CF:    cf,
		ZF:    result == 0,
		SF:    result&hb != 0,
		OF:    false,
	}
}

// Rol rotates x left by count mod W.
func Rol[T Uint](x T, count uint) ShiftResult[T] {
	w := bitWidth[T]()
	count %= w
	if count == 0 {
		return ShiftResult[T]{Value: x, CF: x&1 != 0}
	}
	result := (x << count) | (x >> (w - count))
	hb := highBit[T]()
	cf := result&1 != 0
	of := (result&hb != 0) != cf
	return ShiftResult[T]{Value: result, CF: cf, OF: of}
}

// Ror rotates x right by count mod W. OF, per spec.md §4.4, is the XOR of
// the top two bits of the post-rotate result (matching observed Windows
// behavior for the SDM-undefined multi-bit case).
func Ror[T Uint](x T, count uint) ShiftResult[T] {
	w := bitWidth[T]()
	count %= w
	if count == 0 {
		hb := highBit[T]()
		return ShiftResult[T]{Value: x, CF: x&hb != 0}
	}
	result := (x >> count) | (x << (w - count))
	hb := highBit[T]()
	cf := result&hb != 0
	top2 := (result >> (w - 2)) & 0b11
	of := (top2>>1)^(top2&1) != 0
	return ShiftResult[T]{Value: result, CF: cf, OF: of}
}

// CmpOrder reproduces the VM-teacher's unsigned/signed/float three-way
// compare idiom (vm/vm.go's `compare[T numeric32]`) generalized to widths:
// negative if x<y, 0 if x==y, positive if x>y.
func CmpOrder[T Uint](x, y T) int {
	switch {
	case x < y:
		return -1
	case x == y:
		return 0
	default:
		return 1
	}
}
