package boundary

import "context"

// TextFunc is an operation from text to text.
type TextFunc func(string) string

// TextCallFunc is an operation consuming text with no result.
type TextCallFunc func(ctx context.Context, s string) error

// ExportText runs fn on the text at (ptr, length) and returns the packed
// location of its result. Marshaling failures are returned as a packed
// failure and fn is not run.
func ExportText(ctx context.Context, mem LinearMemory, alloc Allocator, fn TextFunc, ptr, length uint32) uint64 {
	in, err := ReadText(mem, ptr, length)
	if err != nil {
		return PackFailure(CodeOf(err))
	}

	outPtr, outLen, err := WriteText(ctx, mem, alloc, fn(in))
	if err != nil {
		return PackFailure(CodeOf(err))
	}
	return PackPtrLen(outPtr, outLen)
}

// ExportTextCall runs fn on the text at (ptr, length) and returns a status code.
func ExportTextCall(ctx context.Context, mem LinearMemory, fn TextCallFunc, ptr, length uint32) uint32 {
	in, err := ReadText(mem, ptr, length)
	if err != nil {
		return uint32(CodeOf(err))
	}
	return uint32(CodeOf(fn(ctx, in)))
}

// CallOut passes s to a host import taking one text argument.
// The argument is marshaled like any text result: the host owns the buffer
// once call is invoked and is responsible for releasing it.
func CallOut(ctx context.Context, mem LinearMemory, alloc Allocator, s string, call func(ptr, length uint32)) error {
	ptr, length, err := WriteText(ctx, mem, alloc, s)
	if err != nil {
		return err
	}
	call(ptr, length)
	return nil
}
