package boundary

import "math"

// EncodeF32 converts a float32 into its wasm stack representation: the IEEE
// 754 bits in the low 32 bits of the slot.
// Scalars need no validation; every bit pattern is a valid f32.
func EncodeF32(v float32) uint64 {
	return uint64(math.Float32bits(v))
}

// DecodeF32 converts a wasm stack value back into a float32.
func DecodeF32(v uint64) float32 {
	return math.Float32frombits(uint32(v))
}
