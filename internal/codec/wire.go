package codec

import (
	"encoding/binary"
	"math"
)

// cells views a byte region as an array of 32-bit cells (spec §3.4: "a
// byte region interpreted in parallel as an array of 32-bit signed
// integers and floats sharing the same backing bytes"). Rather than
// aliasing the region as both an []int32 and an []float32 (which would
// need unsafe and native-endian assumptions), each cell is read and
// written directly against the underlying bytes with encoding/binary
// plus math.Float32bits/Float32frombits for the float reinterpretation.
// This keeps the wire format little-endian and portable regardless of
// host byte order, the same tradeoff the teacher's uapi marshal layer
// makes for its own fixed-layout structures.
type cells []byte

func (c cells) getInt(pos int) int32 {
	return int32(binary.LittleEndian.Uint32(c[pos*4:]))
}

func (c cells) putInt(pos int, v int32) {
	binary.LittleEndian.PutUint32(c[pos*4:], uint32(v))
}

func (c cells) getFloat(pos int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(c[pos*4:]))
}

func (c cells) putFloat(pos int, v float32) {
	binary.LittleEndian.PutUint32(c[pos*4:], math.Float32bits(v))
}

// len32 returns the capacity of the region in cells.
func (c cells) len32() int { return len(c) / 4 }
