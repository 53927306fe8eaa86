// ABOUTME: Stream configuration and sample conversion helpers
// ABOUTME: Single source of truth for rate, block size, channels, bit depth
package audio

import (
	"fmt"
	"time"
)

const (
	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23
)

// Supported stream parameters. The codec clock dividers only exist for
// these rates with the board's 12.288 MHz master clock, and the serial
// port only frames these widths.
var (
	SupportedRates     = []int{8000, 32000, 48000, 96000}
	SupportedBitDepths = []int{16, 24, 32}
)

// MaxBlockSize bounds the per-callback block so a half-buffer never
// exceeds what the DMA controller can address in one circular transfer.
const MaxBlockSize = 1024

// StreamConfig describes one audio stream. It is fixed at start and
// immutable for the life of the stream; every mismatch between DMA
// sizing, codec clocking and buffer allocation is a config error caught
// by Validate, never a runtime one.
type StreamConfig struct {
	SampleRate int // frames per second
	BlockSize  int // frames per half-buffer, i.e. per callback
	Channels   int // interleaved channels per frame
	BitDepth   int // significant bits per sample
}

// DefaultStreamConfig returns the board's native format: 48 kHz stereo,
// 24-bit, 48-frame blocks (1 ms per callback).
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		SampleRate: 48000,
		BlockSize:  48,
		Channels:   2,
		BitDepth:   24,
	}
}

// Validate checks the config against hardware capability.
// All failures wrap ErrConfigMismatch.
func (c StreamConfig) Validate() error {
	if !containsInt(SupportedRates, c.SampleRate) {
		return fmt.Errorf("%w: sample rate %d (supported: %v)", ErrConfigMismatch, c.SampleRate, SupportedRates)
	}
	if !containsInt(SupportedBitDepths, c.BitDepth) {
		return fmt.Errorf("%w: bit depth %d (supported: %v)", ErrConfigMismatch, c.BitDepth, SupportedBitDepths)
	}
	if c.Channels != 2 {
		return fmt.Errorf("%w: %d channels (codec is stereo only)", ErrConfigMismatch, c.Channels)
	}
	if c.BlockSize <= 0 || c.BlockSize > MaxBlockSize {
		return fmt.Errorf("%w: block size %d (1..%d)", ErrConfigMismatch, c.BlockSize, MaxBlockSize)
	}
	return nil
}

// SamplesPerBlock returns the interleaved sample count of one block.
func (c StreamConfig) SamplesPerBlock() int {
	return c.BlockSize * c.Channels
}

// BlockDuration returns the wall time one block spans. This is also the
// processing deadline of the user callback.
func (c StreamConfig) BlockDuration() time.Duration {
	return time.Duration(c.BlockSize) * time.Second / time.Duration(c.SampleRate)
}

// BytesPerSample returns the payload width of one sample on disk or on
// a device buffer.
func (c StreamConfig) BytesPerSample() int {
	return (c.BitDepth + 7) / 8
}

func (c StreamConfig) String() string {
	return fmt.Sprintf("%dHz/%dch/%dbit, block %d", c.SampleRate, c.Channels, c.BitDepth, c.BlockSize)
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// SampleToInt16 converts int32 sample to int16 (for 16-bit playback)
func SampleToInt16(sample int32) int16 {
	// Right-shift to convert 24-bit (or 16-bit) to 16-bit range
	return int16(sample >> 8)
}

// SampleFromInt16 converts int16 sample to int32 (left-justified in 24-bit)
func SampleFromInt16(sample int16) int32 {
	// Left-shift to position 16-bit value in upper bits
	return int32(sample) << 8
}

// SampleTo24Bit converts int32 to 24-bit packed bytes (little-endian)
func SampleTo24Bit(sample int32) [3]byte {
	return [3]byte{
		byte(sample),
		byte(sample >> 8),
		byte(sample >> 16),
	}
}

// SampleFrom24Bit converts 24-bit packed bytes to int32 (little-endian)
func SampleFrom24Bit(b [3]byte) int32 {
	val := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	// Sign extend from 24-bit to 32-bit
	if val&0x800000 != 0 {
		val |= ^0xFFFFFF
	}
	return val
}
