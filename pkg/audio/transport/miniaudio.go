// ABOUTME: Full-duplex transport backed by miniaudio (malgo)
// ABOUTME: The device data callback plays the role of the DMA engine
package transport

import (
	"fmt"
	"log"

	"github.com/bloom-audio/bloom-go/pkg/audio"
	"github.com/bloom-audio/bloom-go/pkg/audio/block"
	"github.com/gen2brain/malgo"
)

// Miniaudio drives a full-duplex host audio device as if it were the
// board's serial audio port: the miniaudio data callback copies device
// input into the half it currently owns, echoes the previously
// completed half to device output, and posts a boundary event each
// time a half fills. The device period is pinned to the block size so
// one callback cycle corresponds to one half-transfer.
type Miniaudio struct {
	notifier *Notifier

	ctx    *malgo.AllocatedContext
	device *malgo.Device

	buf *block.DoubleBuffer
	cfg audio.StreamConfig

	// Callback-context state. miniaudio serializes the data callback,
	// so these need no synchronization.
	capture block.Half // half being filled
	fill    int        // frames filled so far in the capture half
	faulted bool

	started bool
}

func NewMiniaudio() *Miniaudio {
	return &Miniaudio{notifier: NewNotifier()}
}

// Start opens the duplex device at the configured rate and begins
// cycling buf. Device samples run as signed 32-bit regardless of the
// stream bit depth; the codec-facing width only matters on real
// hardware.
func (m *Miniaudio) Start(cfg audio.StreamConfig, buf *block.DoubleBuffer) error {
	if m.started {
		return fmt.Errorf("miniaudio: already started")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("miniaudio: init context: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Duplex)
	deviceConfig.Capture.Format = malgo.FormatS32
	deviceConfig.Capture.Channels = uint32(cfg.Channels)
	deviceConfig.Playback.Format = malgo.FormatS32
	deviceConfig.Playback.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(cfg.BlockSize)
	deviceConfig.Alsa.NoMMap = 1

	m.buf = buf
	m.cfg = cfg
	m.capture = block.HalfA
	m.fill = 0
	m.faulted = false

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, pInput []byte, frameCount uint32) {
			m.dataCallback(pOutput, pInput, int(frameCount))
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("miniaudio: init device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("miniaudio: start device: %w", err)
	}

	m.ctx = ctx
	m.device = device
	m.started = true
	log.Printf("Serial audio started: %s (miniaudio duplex)", cfg)
	return nil
}

// Stop halts the device. No event is posted after Stop returns.
func (m *Miniaudio) Stop() error {
	if !m.started {
		return nil
	}
	m.device.Uninit()
	if err := m.ctx.Uninit(); err != nil {
		m.ctx.Free()
		m.started = false
		return fmt.Errorf("miniaudio: uninit context: %w", err)
	}
	m.ctx.Free()
	m.started = false
	log.Printf("Serial audio stopped (miniaudio)")
	return nil
}

func (m *Miniaudio) Events() <-chan Event {
	return m.notifier.Events()
}

// dataCallback runs on miniaudio's device thread. It is the producer
// side of the latest-wins notifier and must never block.
func (m *Miniaudio) dataCallback(out, in []byte, frames int) {
	if m.faulted {
		zeroBytes(out)
		return
	}
	ch := m.cfg.Channels
	pos := 0
	for pos < frames {
		capBlk, ok := m.buf.TryTransfer(m.capture, block.OwnerDMA, block.OwnerDMA)
		if !ok {
			// The consumer is a full cycle late and still holds the half
			// the hardware clock says we must overwrite now.
			m.notifier.PostXrun(m.capture)
			m.faulted = true
			zeroBytes(out[pos*ch*4:])
			return
		}

		n := min(frames-pos, m.cfg.BlockSize-m.fill)
		lo, hi := m.fill*ch, (m.fill+n)*ch
		decodeS32LE(capBlk.Frames()[lo:hi], in[pos*ch*4:(pos+n)*ch*4])

		// Echo the opposite half: it finished one period ago and the
		// callback processes it in place during this period. Pin it as
		// OwnerEcho for the encode so the engine cannot hand it to the
		// callback while we read it; if the processing is still in
		// flight, play silence for this slice.
		if playBlk, ok := m.buf.TryTransfer(m.capture.Other(), block.OwnerDMA, block.OwnerEcho); ok {
			encodeS32LE(out[pos*ch*4:(pos+n)*ch*4], playBlk.Frames()[lo:hi])
			m.buf.Transfer(m.capture.Other(), block.OwnerEcho, block.OwnerDMA)
		} else {
			zeroBytes(out[pos*ch*4 : (pos+n)*ch*4])
		}

		m.fill += n
		pos += n
		if m.fill == m.cfg.BlockSize {
			done := m.capture
			m.capture = m.capture.Other()
			m.fill = 0
			m.notifier.Post(Event{Half: done})
		}
	}
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
