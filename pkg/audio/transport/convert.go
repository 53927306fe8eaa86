// ABOUTME: Frame to device-buffer sample conversions
// ABOUTME: Little-endian 16/32-bit packing around the 24-bit frame range
package transport

import (
	"encoding/binary"

	"github.com/bloom-audio/bloom-go/pkg/audio"
)

// Frames travel through the double buffer as int32 in the 24-bit range;
// device buffers use whatever width the backend negotiated. These
// helpers convert in place into caller-owned slices so the data
// callbacks never allocate.

func encodeS16LE(dst []byte, frames []int32) {
	for i, s := range frames {
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(audio.SampleToInt16(s)))
	}
}

func decodeS16LE(frames []int32, src []byte) {
	for i := range frames {
		frames[i] = audio.SampleFromInt16(int16(binary.LittleEndian.Uint16(src[i*2:])))
	}
}

func encodeS32LE(dst []byte, frames []int32) {
	for i, s := range frames {
		binary.LittleEndian.PutUint32(dst[i*4:], uint32(s<<8))
	}
}

func decodeS32LE(frames []int32, src []byte) {
	for i := range frames {
		frames[i] = int32(binary.LittleEndian.Uint32(src[i*4:])) >> 8
	}
}
