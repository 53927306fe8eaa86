// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines StreamConfig, error taxonomy and sample conversion functions
// Package audio provides fundamental types shared by every layer of the
// bloom audio stack.
//
// This package defines the types the rest of the library is built on:
//   - StreamConfig: the single source of truth for sample rate, block size,
//     channel count and bit depth. DMA transfer sizing, codec clocking and
//     buffer allocation all derive from one StreamConfig value.
//   - XrunError, ErrConfigMismatch: the stream error taxonomy.
//
// It also provides utilities for converting between sample widths:
//   - 16-bit ↔ int32 conversions
//   - 24-bit packed bytes ↔ int32 conversions
//
// Example:
//
//	cfg := audio.StreamConfig{
//	    SampleRate: 48000,
//	    BlockSize:  48,
//	    Channels:   2,
//	    BitDepth:   24,
//	}
//	if err := cfg.Validate(); err != nil {
//	    // rejected before any hardware is touched
//	}
package audio
