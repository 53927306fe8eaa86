// ABOUTME: Debug WAV capture of a running stream
// ABOUTME: Copies processed blocks through a ring buffer to a wav encoder
// Package tap records the output of a running stream to a WAV file for
// debugging. The steady-state path stays zero-copy: only when a tap is
// attached does each processed block get copied — once, into a ring
// buffer the callback never blocks on. A writer goroutine drains the
// ring to disk at its own pace; if disk falls behind, blocks are
// dropped and counted rather than stalling the audio path.
package tap

import (
	"encoding/binary"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/bloom-audio/bloom-go/pkg/audio"
	"github.com/bloom-audio/bloom-go/pkg/audio/block"
	"github.com/bloom-audio/bloom-go/pkg/engine"
	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
	"github.com/smallnest/ringbuffer"
)

// ringBlocks is the tap's headroom in blocks before it starts dropping.
const ringBlocks = 64

// drainInterval paces the disk writer.
const drainInterval = 10 * time.Millisecond

// Tap captures processed blocks to a WAV file.
type Tap struct {
	id   string
	path string
	cfg  audio.StreamConfig

	f   *os.File
	enc *wav.Encoder
	rb  *ringbuffer.RingBuffer

	scratch []byte // callback-side staging, one block
	drops   atomic.Uint64

	quit chan struct{}
	done chan struct{}
}

// New opens path for writing and starts the drain goroutine.
func New(path string, cfg audio.StreamConfig) (*Tap, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("tap: create %s: %w", path, err)
	}

	blockBytes := cfg.SamplesPerBlock() * cfg.BytesPerSample()
	t := &Tap{
		id:      uuid.NewString()[:8],
		path:    path,
		cfg:     cfg,
		f:       f,
		enc:     wav.NewEncoder(f, cfg.SampleRate, cfg.BitDepth, cfg.Channels, 1),
		rb:      ringbuffer.New(blockBytes * ringBlocks),
		scratch: make([]byte, blockBytes),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go t.writer()

	log.Printf("Tap %s: recording %s to %s", t.id, cfg, path)
	return t, nil
}

// Wrap chains the tap behind a processing callback: the user callback
// runs first, then whatever it left in the block — the frames the
// hardware will play — is captured.
func (t *Tap) Wrap(cb engine.Callback) engine.Callback {
	return func(b *block.Block) {
		cb(b)
		t.capture(b.Frames())
	}
}

// Drops reports how many blocks were lost because the disk writer fell
// behind.
func (t *Tap) Drops() uint64 {
	return t.drops.Load()
}

// Close drains what is buffered and finalizes the WAV header.
func (t *Tap) Close() error {
	close(t.quit)
	<-t.done

	if d := t.drops.Load(); d > 0 {
		log.Printf("Tap %s: dropped %d blocks", t.id, d)
	}
	if err := t.enc.Close(); err != nil {
		t.f.Close()
		return fmt.Errorf("tap: finalize %s: %w", t.path, err)
	}
	if err := t.f.Close(); err != nil {
		return fmt.Errorf("tap: close %s: %w", t.path, err)
	}
	log.Printf("Tap %s: closed %s", t.id, t.path)
	return nil
}

// capture runs in callback context: pack one block into the staging
// buffer and push it to the ring without blocking.
func (t *Tap) capture(frames []int32) {
	switch t.cfg.BitDepth {
	case 16:
		for i, s := range frames {
			binary.LittleEndian.PutUint16(t.scratch[i*2:], uint16(audio.SampleToInt16(s)))
		}
	case 24:
		for i, s := range frames {
			p := audio.SampleTo24Bit(s)
			copy(t.scratch[i*3:], p[:])
		}
	case 32:
		for i, s := range frames {
			binary.LittleEndian.PutUint32(t.scratch[i*4:], uint32(s<<8))
		}
	}
	// A partial write would break block alignment in the ring, so a
	// block is dropped whole when there is no room for all of it.
	if t.rb.Free() < len(t.scratch) {
		t.drops.Add(1)
		return
	}
	if _, err := t.rb.Write(t.scratch); err != nil {
		t.drops.Add(1)
	}
}

// writer drains whole blocks from the ring to the encoder.
func (t *Tap) writer() {
	defer close(t.done)

	blockBytes := len(t.scratch)
	chunk := make([]byte, blockBytes)
	buf := &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: t.cfg.Channels, SampleRate: t.cfg.SampleRate},
		SourceBitDepth: t.cfg.BitDepth,
		Data:           make([]int, t.cfg.SamplesPerBlock()),
	}

	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.drain(chunk, buf)
		case <-t.quit:
			t.drain(chunk, buf)
			return
		}
	}
}

func (t *Tap) drain(chunk []byte, buf *gaudio.IntBuffer) {
	for t.rb.Length() >= len(chunk) {
		n, err := t.rb.Read(chunk)
		if err != nil || n != len(chunk) {
			return
		}
		t.unpack(chunk, buf.Data)
		if err := t.enc.Write(buf); err != nil {
			log.Printf("Tap %s: write: %v", t.id, err)
			return
		}
	}
}

// unpack reverses capture's packing back into encoder integers.
func (t *Tap) unpack(chunk []byte, data []int) {
	switch t.cfg.BitDepth {
	case 16:
		for i := range data {
			data[i] = int(int16(binary.LittleEndian.Uint16(chunk[i*2:])))
		}
	case 24:
		for i := range data {
			var p [3]byte
			copy(p[:], chunk[i*3:])
			data[i] = int(audio.SampleFrom24Bit(p))
		}
	case 32:
		for i := range data {
			data[i] = int(int32(binary.LittleEndian.Uint32(chunk[i*4:])))
		}
	}
}
