// ABOUTME: Sample block double-buffer with ownership instrumentation
// ABOUTME: Two statically allocated halves exchanged between DMA, engine and callback
package block

import (
	"fmt"
	"sync/atomic"

	"github.com/bloom-audio/bloom-go/pkg/audio"
)

// Owner identifies which party currently holds a buffer half. Exactly
// one party owns a half at any instant; transfers are atomic compare
// and swaps, never locks, because the producer is a hardware DMA engine
// that cannot participate in a lock.
type Owner uint32

const (
	OwnerDMA Owner = iota
	OwnerEngine
	OwnerCallback

	// OwnerEcho marks a half a duplex backend has pinned while it
	// encodes the processed frames for device playback. The pin lasts
	// for one encode and always releases back to OwnerDMA.
	OwnerEcho
)

func (o Owner) String() string {
	switch o {
	case OwnerDMA:
		return "dma"
	case OwnerEngine:
		return "engine"
	case OwnerCallback:
		return "callback"
	case OwnerEcho:
		return "echo"
	}
	return fmt.Sprintf("owner(%d)", uint32(o))
}

// Half indexes one of the two buffer halves.
type Half int

const (
	HalfA Half = 0
	HalfB Half = 1
)

// Other returns the opposite half.
func (h Half) Other() Half {
	return h ^ 1
}

// Block is a fixed-length run of interleaved sample frames, the unit of
// one processing callback invocation. Frames are int32, left-justified
// for bit depths below 32.
type Block struct {
	frames   []int32
	channels int
}

// Frames exposes the interleaved samples for in-place processing.
func (b *Block) Frames() []int32 {
	return b.frames
}

// Len returns the frame count of the block.
func (b *Block) Len() int {
	return len(b.frames) / b.channels
}

// Channels returns the interleaved channel count.
func (b *Block) Channels() int {
	return b.channels
}

// Zero clears the block to silence.
func (b *Block) Zero() {
	for i := range b.frames {
		b.frames[i] = 0
	}
}

// DoubleBuffer holds the two sample block halves the DMA engine cycles
// through. It is allocated once at startup and never resized; only the
// ownership of its halves changes. The backing storage is a single
// contiguous region, matching the circular hardware buffer it models.
type DoubleBuffer struct {
	backing []int32
	halves  [2]Block
	owners  [2]atomic.Uint32
}

// New allocates a double buffer sized by cfg: two halves of
// BlockSize*Channels samples each. Both halves start DMA-owned.
func New(cfg audio.StreamConfig) *DoubleBuffer {
	n := cfg.SamplesPerBlock()
	d := &DoubleBuffer{backing: make([]int32, 2*n)}
	d.halves[HalfA] = Block{frames: d.backing[:n], channels: cfg.Channels}
	d.halves[HalfB] = Block{frames: d.backing[n:], channels: cfg.Channels}
	return d
}

// Transfer moves ownership of half h from one party to the next and
// returns the block. A transfer from a party that does not hold the
// half is a protocol violation, not a runtime condition, and panics:
// the exclusive-access invariant is enforced by construction and this
// check only exists to catch broken drivers during development.
func (d *DoubleBuffer) Transfer(h Half, from, to Owner) *Block {
	if !d.owners[h].CompareAndSwap(uint32(from), uint32(to)) {
		panic(fmt.Sprintf("block: half %d owned by %v, not %v", h, Owner(d.owners[h].Load()), from))
	}
	return &d.halves[h]
}

// TryTransfer is the checking form of Transfer for parties that must
// degrade instead of crash (the DMA side reports an xrun when the
// consumer is late). It reports whether ownership moved.
func (d *DoubleBuffer) TryTransfer(h Half, from, to Owner) (*Block, bool) {
	if !d.owners[h].CompareAndSwap(uint32(from), uint32(to)) {
		return nil, false
	}
	return &d.halves[h], true
}

// Owner reports the current holder of half h.
func (d *DoubleBuffer) Owner(h Half) Owner {
	return Owner(d.owners[h].Load())
}

// Reset returns both halves to DMA ownership. Called between streams;
// never during one.
func (d *DoubleBuffer) Reset() {
	d.owners[HalfA].Store(uint32(OwnerDMA))
	d.owners[HalfB].Store(uint32(OwnerDMA))
}
