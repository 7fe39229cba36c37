package cpu

import (
	"fmt"
	"testing"
)

func assert(t *testing.T, cond bool, format string, args ...any) {
	if !cond {
		t.Fatalf(fmt.Sprintf("%v %s", cond, format), args...)
	}
}

func TestAddFlags32(t *testing.T) {
	r := Add(uint32(1), uint32(1))
	assert(t, r.Value == 2, "got %d", r.Value)
	assert(t, !r.CF && !r.ZF && !r.SF && !r.OF, "unexpected flags %+v", r)

	r = Add(uint32(0xffffffff), uint32(1))
	assert(t, r.Value == 0, "got %d", r.Value)
	assert(t, r.CF && r.ZF, "expected CF+ZF, got %+v", r)

	r = Add(uint32(0x7fffffff), uint32(1))
	assert(t, r.OF, "expected signed overflow, got %+v", r)
}

func TestSubFlags32(t *testing.T) {
	r := Sub(uint32(1), uint32(1))
	assert(t, r.Value == 0 && r.ZF, "got %+v", r)

	r = Sub(uint32(0), uint32(1))
	assert(t, r.CF && r.Value == 0xffffffff, "expected borrow, got %+v", r)

	r = Sub(uint32(0x80000000), uint32(1))
	assert(t, r.OF, "expected signed overflow on INT_MIN-1, got %+v", r)
}

func TestAddFlags8Wraparound(t *testing.T) {
	r := Add(uint8(0xff), uint8(0x01))
	assert(t, r.Value == 0, "8-bit add should wrap, got %d", r.Value)
	assert(t, r.CF && r.ZF, "expected CF+ZF at 8-bit width, got %+v", r)
}

func TestLogicFlagsFollowResult(t *testing.T) {
	r := And(uint32(0xff00ff00), uint32(0x00ff00ff))
	assert(t, r.Value == 0, "got %#x", r.Value)
	assert(t, r.ZF, "expected ZF")

	orR := Or(uint32(0), uint32(0x80000000))
	assert(t, orR.SF, "expected SF from high bit")
}

func TestShlBasic(t *testing.T) {
	r := Shl(uint32(1), 4)
	assert(t, r.Value == 16, "got %d", r.Value)
	assert(t, !r.CF, "no bit should have shifted into CF")

	r = Shl(uint32(0x80000000), 1)
	assert(t, r.Value == 0 && r.CF, "expected shift-out carry, got %+v", r)
}

func TestShlZeroCountIsIdentity(t *testing.T) {
	r := Shl(uint32(5), 0)
	assert(t, r.Value == 5, "shift by 0 must be identity, got %d", r.Value)
}

func TestSarSignExtends(t *testing.T) {
	r := Sar(uint32(0x80000000), 4)
	assert(t, r.Value == 0xf8000000, "got %#x", r.Value)
}

func TestRorOverflowFlagTwoTopBits(t *testing.T) {
	r := Ror(uint32(1), 1)
	assert(t, r.Value == 0x80000000, "got %#x", r.Value)
	assert(t, r.CF, "expected CF from the rotated-out bit")
	assert(t, r.OF, "expected OF from the XOR of the result's top two bits (1^0)")
}

func TestNegZeroHasNoCarry(t *testing.T) {
	r := Neg(uint32(0))
	assert(t, r.Value == 0, "neg(0) must be 0")
	assert(t, !r.CF, "neg(0) must not set CF")

	r = Neg(uint32(1))
	assert(t, r.Value == 0xffffffff, "got %#x", r.Value)
	assert(t, r.CF, "neg of nonzero must set CF")
}

func TestCmpOrder(t *testing.T) {
	assert(t, CmpOrder(uint32(1), uint32(2)) < 0, "1<2")
	assert(t, CmpOrder(uint32(2), uint32(2)) == 0, "2==2")
	assert(t, CmpOrder(uint32(3), uint32(2)) > 0, "3>2")
}
