package boundary

// PtrHighBits is the shift of the pointer half of a packed value.
const PtrHighBits = 32

// PackPtrLen packs a pointer and length into a single uint64.
// The pointer is stored in the high 32 bits, the length in the low 32 bits.
func PackPtrLen(ptr, length uint32) uint64 {
	return uint64(ptr)<<PtrHighBits | uint64(length)
}

// UnpackPtrLen splits a packed value into pointer and length.
func UnpackPtrLen(packed uint64) (ptr, length uint32) {
	return uint32(packed >> PtrHighBits), uint32(packed)
}

// PackFailure encodes a failed text result.
// A null pointer with a non-zero length never describes a real buffer,
// so the length slot carries the error code.
func PackFailure(code ErrorCode) uint64 {
	if code == CodeOK {
		code = CodeFailed
	}
	return PackPtrLen(0, uint32(code))
}

// DecodeResult unpacks a text result, returning the error it carries if any.
func DecodeResult(packed uint64) (ptr, length uint32, err error) {
	ptr, length = UnpackPtrLen(packed)
	if ptr == 0 && length != 0 {
		return 0, 0, ErrorFromCode(ErrorCode(length))
	}
	return ptr, length, nil
}
