// ABOUTME: Tests for device sample packing
// ABOUTME: Round trips frames through 16-bit and 32-bit device layouts
package transport

import "testing"

func TestS32RoundTrip(t *testing.T) {
	frames := []int32{0, 1, -1, 8388607, -8388608, 0x123456}
	buf := make([]byte, len(frames)*4)
	out := make([]int32, len(frames))

	encodeS32LE(buf, frames)
	decodeS32LE(out, buf)

	for i := range frames {
		if out[i] != frames[i] {
			t.Errorf("sample %d: expected %d, got %d", i, frames[i], out[i])
		}
	}
}

func TestS16RoundTripLosesLowBits(t *testing.T) {
	frames := []int32{100 << 8, -100 << 8, 32767 << 8, -32768 << 8}
	buf := make([]byte, len(frames)*2)
	out := make([]int32, len(frames))

	encodeS16LE(buf, frames)
	decodeS16LE(out, buf)

	for i := range frames {
		if out[i] != frames[i] {
			t.Errorf("sample %d: expected %d, got %d", i, frames[i], out[i])
		}
	}
}

func TestTransportImplementations(t *testing.T) {
	var _ Transport = (*Miniaudio)(nil)
	var _ Transport = (*Oto)(nil)
}
