package boundary

import (
	"errors"
	"fmt"
)

// ErrorCode is the numeric form of a boundary error as it crosses into the host.
type ErrorCode uint32

const (
	CodeOK ErrorCode = iota
	CodeEncoding
	CodeMemory
	CodeAllocation
	CodeFailed
)

func (c ErrorCode) String() string {
	switch c {
	case CodeOK:
		return "ok"
	case CodeEncoding:
		return "encoding"
	case CodeMemory:
		return "memory"
	case CodeAllocation:
		return "allocation"
	case CodeFailed:
		return "failed"
	default:
		return fmt.Sprintf("code(%d)", uint32(c))
	}
}

// EncodingError occurs when text handed across the boundary is not valid UTF-8.
type EncodingError struct {
	// Offset of the first invalid byte, -1 if unknown.
	Offset int
	Length uint32
}

func (e *EncodingError) Error() string {
	if e.Offset < 0 {
		return "text is not valid UTF-8"
	}
	return fmt.Sprintf("text is not valid UTF-8 (invalid byte at offset %d of %d)", e.Offset, e.Length)
}

// MemoryAccessError occurs when a pointer/length pair falls outside linear memory.
type MemoryAccessError struct {
	Operation string
	Address   uint32
	Length    uint32
}

func (e *MemoryAccessError) Error() string {
	return fmt.Sprintf("memory access out of range (op=%s, addr=%d, len=%d)",
		e.Operation, e.Address, e.Length)
}

// AllocationError occurs when the module cannot provide a buffer.
type AllocationError struct {
	Size uint32
	Err  error
}

func (e *AllocationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("failed to allocate %d bytes", e.Size)
	}
	return fmt.Sprintf("failed to allocate %d bytes: %v", e.Size, e.Err)
}

func (e *AllocationError) Unwrap() error {
	return e.Err
}

// CallError is a failure code reported by the other side that has no richer form.
type CallError struct {
	Code ErrorCode
}

func (e *CallError) Error() string {
	return fmt.Sprintf("call failed: %s", e.Code)
}

// CodeOf maps an error to the code transmitted across the boundary.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return CodeOK
	}

	var encErr *EncodingError
	var memErr *MemoryAccessError
	var allocErr *AllocationError
	var callErr *CallError
	switch {
	case errors.As(err, &encErr):
		return CodeEncoding
	case errors.As(err, &memErr):
		return CodeMemory
	case errors.As(err, &allocErr):
		return CodeAllocation
	case errors.As(err, &callErr):
		return callErr.Code
	default:
		return CodeFailed
	}
}

// ErrorFromCode rebuilds a typed error from a transmitted code.
// The detail fields of the original error do not cross the boundary.
func ErrorFromCode(code ErrorCode) error {
	switch code {
	case CodeOK:
		return nil
	case CodeEncoding:
		return &EncodingError{Offset: -1}
	case CodeAllocation:
		return &AllocationError{}
	default:
		return &CallError{Code: code}
	}
}
