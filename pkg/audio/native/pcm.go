package native

import (
	"encoding/binary"
	"math"
)

// decodeFloat32 converts up to frames little-endian float32 samples.
func decodeFloat32(data []byte, frames int) []float32 {
	n := min(frames, len(data)/4)
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}
