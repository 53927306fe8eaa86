// ABOUTME: Playback-only transport backed by oto
// ABOUTME: Paces the half-buffer cycle off the host output clock
package transport

import (
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/bloom-audio/bloom-go/pkg/audio"
	"github.com/bloom-audio/bloom-go/pkg/audio/block"
	"github.com/ebitengine/oto/v3"
)

// Oto is an output-only transport for generator-style callbacks: the
// "captured" half is always silence, and whatever the callback wrote
// into the half one cycle earlier is played back. The cycle is paced by
// the host output clock through a blocking feed into the oto player.
type Oto struct {
	notifier *Notifier

	ctx    *oto.Context
	player *oto.Player

	buf *block.DoubleBuffer
	cfg audio.StreamConfig

	feed chan []byte
	quit chan struct{}
	done chan struct{}

	started bool
}

// oto contexts are process-wide singletons: once created with a format
// they live for the rest of the process. Cache one per process and
// reject a later format change.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoRate int
	otoChan int
	otoErr  error
)

func otoContext(sampleRate, channels int) (*oto.Context, error) {
	otoOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channels,
			Format:       oto.FormatSignedInt16LE,
		}
		ctx, ready, err := oto.NewContext(op)
		if err != nil {
			otoErr = err
			return
		}
		<-ready
		otoCtx, otoRate, otoChan = ctx, sampleRate, channels
	})
	if otoErr != nil {
		return nil, otoErr
	}
	if otoRate != sampleRate || otoChan != channels {
		return nil, fmt.Errorf("%w: oto context already opened at %dHz/%dch", audio.ErrConfigMismatch, otoRate, otoChan)
	}
	return otoCtx, nil
}

func NewOto() *Oto {
	return &Oto{notifier: NewNotifier()}
}

func (o *Oto) Start(cfg audio.StreamConfig, buf *block.DoubleBuffer) error {
	if o.started {
		return fmt.Errorf("oto: already started")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, err := otoContext(cfg.SampleRate, cfg.Channels)
	if err != nil {
		return fmt.Errorf("oto: context: %w", err)
	}

	o.ctx = ctx
	o.buf = buf
	o.cfg = cfg
	o.feed = make(chan []byte)
	o.quit = make(chan struct{})
	o.done = make(chan struct{})

	o.player = ctx.NewPlayer(&feedReader{feed: o.feed, quit: o.quit})
	o.player.Play()
	go o.run()

	o.started = true
	log.Printf("Serial audio started: %s (oto playback)", cfg)
	return nil
}

func (o *Oto) Stop() error {
	if !o.started {
		return nil
	}
	close(o.quit)
	<-o.done
	if err := o.player.Close(); err != nil {
		o.started = false
		return fmt.Errorf("oto: close player: %w", err)
	}
	o.started = false
	log.Printf("Serial audio stopped (oto)")
	return nil
}

func (o *Oto) Events() <-chan Event {
	return o.notifier.Events()
}

// run is the DMA stand-in: it alternates halves forever, playing each
// half's processed contents and zeroing it for the next "capture".
// Rotating scratch buffers keep the loop allocation free; four are
// enough because at most two are in flight through the feed.
func (o *Oto) run() {
	defer close(o.done)

	byteLen := o.cfg.SamplesPerBlock() * 2
	var scratch [4][]byte
	for i := range scratch {
		scratch[i] = make([]byte, byteLen)
	}

	h := block.HalfA
	for i := 0; ; i++ {
		select {
		case <-o.quit:
			return
		default:
		}

		blk, ok := o.buf.TryTransfer(h, block.OwnerDMA, block.OwnerDMA)
		if !ok {
			// Callback missed a full cycle; the half the clock demands
			// is still out for processing.
			o.notifier.PostXrun(h)
			return
		}

		b := scratch[i%len(scratch)]
		encodeS16LE(b, blk.Frames())
		select {
		case o.feed <- b:
		case <-o.quit:
			return
		}

		blk.Zero()
		o.notifier.Post(Event{Half: h})
		h = h.Other()
	}
}

// feedReader adapts the transport's block feed to the io.Reader the
// oto player pulls from at the hardware rate.
type feedReader struct {
	feed    chan []byte
	quit    chan struct{}
	pending []byte
}

func (r *feedReader) Read(p []byte) (int, error) {
	if len(r.pending) == 0 {
		select {
		case b := <-r.feed:
			r.pending = b
		case <-r.quit:
			return 0, io.EOF
		}
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}
