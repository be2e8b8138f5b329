package utils

import (
	"encoding/binary"
	"math"
)

// BytesToT32 reinterprets little-endian raw tensor bytes as a slice of
// 32-bit values, the layout Triton uses for RawOutputContents.
func BytesToT32[T float32 | int32 | uint32](raw []byte) []T {
	n := len(raw) / 4
	out := make([]T, n)
	for i := range n {
		bits := binary.LittleEndian.Uint32(raw[i*4:])
		switch p := any(&out[i]).(type) {
		case *float32:
			*p = math.Float32frombits(bits)
		case *int32:
			*p = int32(bits)
		case *uint32:
			*p = bits
		}
	}
	return out
}
