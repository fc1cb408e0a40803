// Package boundary moves values between a module's linear memory and its host.
//
// Every exported operation goes through this package; operations never touch
// linear memory themselves. The rules are:
//
//   - Text in: the caller owns the bytes. They are validated as UTF-8 and
//     copied into a Go string before use; nothing retains the pointer.
//   - Text out: a new buffer is allocated, filled and handed over. The receiver
//     owns it from then on and releases it through Allocator.Deallocate.
//   - Scalars travel by value.
package boundary

import (
	"context"
	"unicode/utf8"
)

// LinearMemory is the byte-addressable memory shared across the boundary.
// wazero's api.Memory satisfies it.
//
// Read may return a view of the memory rather than a copy.
type LinearMemory interface {
	Read(offset, byteCount uint32) ([]byte, bool)
	Write(offset uint32, v []byte) bool
}

// Allocator hands out buffers inside linear memory.
type Allocator interface {
	Allocate(ctx context.Context, size uint32) (uint32, error)
	Deallocate(ctx context.Context, ptr, size uint32) error
}

// ReadText borrows length bytes at ptr and returns them as a string.
// The bytes must be valid UTF-8.
func ReadText(mem LinearMemory, ptr, length uint32) (string, error) {
	if length == 0 {
		return "", nil
	}
	if ptr == 0 {
		return "", &MemoryAccessError{Operation: "read", Address: ptr, Length: length}
	}

	buf, ok := mem.Read(ptr, length)
	if !ok || uint32(len(buf)) != length {
		return "", &MemoryAccessError{Operation: "read", Address: ptr, Length: length}
	}

	if !utf8.Valid(buf) {
		return "", &EncodingError{Offset: invalidOffset(buf), Length: length}
	}

	// string(buf) copies, so buf is not referenced after return.
	return string(buf), nil
}

// WriteText allocates a buffer, copies s into it and returns its location.
// Ownership of the buffer passes to the caller of WriteText's result.
func WriteText(ctx context.Context, mem LinearMemory, alloc Allocator, s string) (ptr, length uint32, err error) {
	if len(s) == 0 {
		return 0, 0, nil
	}
	if !utf8.ValidString(s) {
		return 0, 0, &EncodingError{Offset: invalidOffset([]byte(s)), Length: uint32(len(s))}
	}

	length = uint32(len(s))
	ptr, err = alloc.Allocate(ctx, length)
	if err != nil {
		return 0, 0, &AllocationError{Size: length, Err: err}
	}
	if ptr == 0 {
		return 0, 0, &AllocationError{Size: length}
	}

	if !mem.Write(ptr, []byte(s)) {
		// Never handed over, so it is still ours to release.
		_ = alloc.Deallocate(ctx, ptr, length)
		return 0, 0, &MemoryAccessError{Operation: "write", Address: ptr, Length: length}
	}

	return ptr, length, nil
}

func invalidOffset(b []byte) int {
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return -1
}
