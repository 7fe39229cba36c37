package cpu

import (
	"errors"
	"fmt"
)

// Sentinel error kinds, all fatal to the current Step and propagated to the
// driver; none are retried inside the core. Named in the teacher's idiom
// (vm/vm.go's errProgramFinished/errSegmentationFault/... package-level
// sentinels) rather than a custom error interface hierarchy.
var (
	errUnimplementedInstruction = errors.New("unimplemented instruction")
	errUnsupportedPrefix        = errors.New("unsupported prefix")
	errDivideByZero              = errors.New("divide by zero")
	errBadMemoryAccess           = errors.New("bad memory access")
	errMalformedImage            = errors.New("malformed image")
	errDecodeFailed              = errors.New("instruction decode failed")

	// errHalt is returned by HLT; Step translates it into a Halted
	// StepResult rather than an Errored one.
	errHalt = errors.New("halt")
)

// UnimplementedInstructionError carries the decoded opcode identity and the
// eip it was fetched from.
type UnimplementedInstructionError struct {
	Opcode string
	EIP    uint32
}

func (e *UnimplementedInstructionError) Error() string {
	return fmt.Sprintf("%s: opcode %s at eip=%#x", errUnimplementedInstruction, e.Opcode, e.EIP)
}

func (e *UnimplementedInstructionError) Unwrap() error { return errUnimplementedInstruction }

// UnsupportedPrefixError carries the offending prefix name and eip.
type UnsupportedPrefixError struct {
	Prefix string
	EIP    uint32
}

func (e *UnsupportedPrefixError) Error() string {
	return fmt.Sprintf("%s: %s at eip=%#x", errUnsupportedPrefix, e.Prefix, e.EIP)
}

func (e *UnsupportedPrefixError) Unwrap() error { return errUnsupportedPrefix }

// BadMemoryAccessError carries the offending guest address and eip.
type BadMemoryAccessError struct {
	Addr uint32
	EIP  uint32
}

func (e *BadMemoryAccessError) Error() string {
	return fmt.Sprintf("%s: addr=%#x at eip=%#x", errBadMemoryAccess, e.Addr, e.EIP)
}

func (e *BadMemoryAccessError) Unwrap() error { return errBadMemoryAccess }

// MalformedImageError wraps a loader-fatal reason.
type MalformedImageError struct {
	Reason string
}

func (e *MalformedImageError) Error() string {
	return fmt.Sprintf("%s: %s", errMalformedImage, e.Reason)
}

func (e *MalformedImageError) Unwrap() error { return errMalformedImage }

// DivideByZeroError carries the eip of the faulting div/idiv.
type DivideByZeroError struct {
	EIP uint32
}

func (e *DivideByZeroError) Error() string {
	return fmt.Sprintf("%s at eip=%#x", errDivideByZero, e.EIP)
}

func (e *DivideByZeroError) Unwrap() error { return errDivideByZero }
