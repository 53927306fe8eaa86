// ABOUTME: Audio engine state machine and steady-state processing loop
// ABOUTME: Codec bring-up, transport lifecycle, per-half callback dispatch
package engine

import (
	"errors"
	"fmt"
	"log"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/bloom-audio/bloom-go/pkg/audio"
	"github.com/bloom-audio/bloom-go/pkg/audio/block"
	"github.com/bloom-audio/bloom-go/pkg/audio/transport"
)

// State is the engine lifecycle.
type State int32

const (
	StateIdle State = iota
	StateAwaitingCodec
	StateStreaming
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingCodec:
		return "awaiting-codec"
	case StateStreaming:
		return "streaming"
	case StateFaulted:
		return "faulted"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// ErrNotIdle is returned by Start when a stream is already running or
// a previous fault has not been cleared with Stop.
var ErrNotIdle = errors.New("engine: not idle")

// Callback processes one completed buffer half in place: the block
// holds freshly captured frames on entry and whatever the callback
// leaves in it is what the hardware plays. It must return within
// StreamConfig.BlockDuration or the stream faults with an xrun.
type Callback func(*block.Block)

// Codec is the control sequencer the engine drives before accepting any
// DMA events. Initialize blocks until the codec streams or fails.
type Codec interface {
	Initialize(audio.StreamConfig) error
}

// Config assembles an engine from board-init handles.
type Config struct {
	Stream    audio.StreamConfig
	Codec     Codec
	Transport transport.Transport

	// OnStateChange is called on every lifecycle transition. Optional.
	OnStateChange func(State)

	// OnFault is called once when the stream dies on an xrun or codec
	// fault, with the error that Err() will keep returning. Optional.
	OnFault func(error)
}

// Engine owns one audio stream. Not safe for concurrent Start/Stop from
// multiple goroutines; one owner drives the lifecycle, as with the
// underlying hardware.
type Engine struct {
	cfg Config
	buf *block.DoubleBuffer

	state  atomic.Int32
	blocks atomic.Uint64

	callback Callback
	quit     chan struct{}
	done     chan struct{}
	stopOnce *sync.Once

	// transportStop gates Transport.Stop: the fault path and the
	// owner's Stop can race, and the device backends do not tolerate
	// a second or concurrent Stop.
	transportStop *sync.Once

	faultMu  sync.Mutex
	faultErr error
}

// New allocates the engine and its double buffer. The buffer is created
// once here and reused across every Start/Stop cycle; nothing on the
// streaming path allocates after this point.
func New(cfg Config) (*Engine, error) {
	if cfg.Codec == nil {
		return nil, errors.New("engine: nil codec")
	}
	if cfg.Transport == nil {
		return nil, errors.New("engine: nil transport")
	}
	if err := cfg.Stream.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		cfg: cfg,
		buf: block.New(cfg.Stream),
	}, nil
}

// State reports the current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Blocks reports how many buffer halves have been processed since the
// engine was created.
func (e *Engine) Blocks() uint64 {
	return e.blocks.Load()
}

// Err returns the fault that killed the stream, or nil.
func (e *Engine) Err() error {
	e.faultMu.Lock()
	defer e.faultMu.Unlock()
	return e.faultErr
}

// Start brings the stream up: config check, full codec sequence,
// transport start, then the processing loop. On any failure the caller
// decides whether to retry; the engine never retries on its own.
func (e *Engine) Start(cb Callback) error {
	if cb == nil {
		return errors.New("engine: nil callback")
	}
	if !e.state.CompareAndSwap(int32(StateIdle), int32(StateAwaitingCodec)) {
		return fmt.Errorf("%w: %v", ErrNotIdle, e.State())
	}
	e.notifyState(StateAwaitingCodec)
	e.transportStop = &sync.Once{}

	if err := e.cfg.Stream.Validate(); err != nil {
		// Nothing was started; back to idle so the caller can fix the
		// config and try again.
		e.setState(StateIdle)
		return err
	}

	if err := e.cfg.Codec.Initialize(e.cfg.Stream); err != nil {
		e.recordFault(fmt.Errorf("engine: codec bring-up: %w", err))
		e.setState(StateFaulted)
		return err
	}

	e.buf.Reset()
	if err := e.cfg.Transport.Start(e.cfg.Stream, e.buf); err != nil {
		e.recordFault(fmt.Errorf("engine: transport start: %w", err))
		e.setState(StateFaulted)
		return err
	}

	e.callback = cb
	e.quit = make(chan struct{})
	e.done = make(chan struct{})
	e.stopOnce = &sync.Once{}
	e.faultMu.Lock()
	e.faultErr = nil
	e.faultMu.Unlock()

	go e.run(e.cfg.Transport.Events(), e.quit, e.done)

	e.setState(StateStreaming)
	log.Printf("Audio engine streaming: %s", e.cfg.Stream)
	return nil
}

// Stop halts the stream deterministically: after Stop returns no
// callback invocation can be observed, even for an event that was
// already in flight. Idempotent; must not be called from inside the
// callback itself. Buffers stay allocated for the next Start.
func (e *Engine) Stop() {
	if e.State() == StateIdle {
		return
	}
	// Stop the producer first so no new events appear, then cut the
	// loop and wait for it to drain out.
	e.stopTransport()
	if e.stopOnce != nil {
		e.stopOnce.Do(func() { close(e.quit) })
		<-e.done
	}
	e.setState(StateIdle)
	log.Printf("Audio engine stopped")
}

// run is the cooperative processing task: the only consumer of the
// transport's event channel, and the only code that moves buffer
// ownership. One event, one callback, no copies.
func (e *Engine) run(events <-chan transport.Event, quit chan struct{}, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-quit:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			// An event already queued when Stop closed quit must not be
			// observed; re-check before touching the buffer.
			select {
			case <-quit:
				return
			default:
			}

			if ev.Xrun {
				e.fault(&audio.XrunError{Half: int(ev.Half)})
				return
			}

			// The duplex backend pins a returned half as OwnerEcho for
			// the few microseconds of its playback encode; wait the pin
			// out rather than treating it as a protocol violation.
			blk, ok := e.buf.TryTransfer(ev.Half, block.OwnerDMA, block.OwnerEngine)
			for !ok {
				select {
				case <-quit:
					return
				default:
					runtime.Gosched()
				}
				blk, ok = e.buf.TryTransfer(ev.Half, block.OwnerDMA, block.OwnerEngine)
			}
			e.buf.Transfer(ev.Half, block.OwnerEngine, block.OwnerCallback)
			e.callback(blk)
			e.buf.Transfer(ev.Half, block.OwnerCallback, block.OwnerDMA)
			e.blocks.Add(1)
		}
	}
}

// fault kills the stream from inside the processing loop. The opposite
// half is untouched: ownership stays wherever it was, and no further
// callback runs.
func (e *Engine) fault(err error) {
	e.stopTransport()
	e.recordFault(err)
	e.setState(StateFaulted)
	log.Printf("Audio engine faulted: %v", err)
	if e.cfg.OnFault != nil {
		e.cfg.OnFault(err)
	}
}

// stopTransport funnels every shutdown path through one gate. A late
// caller blocks until the first Stop has finished, so the transport
// never sees a concurrent or repeated Stop.
func (e *Engine) stopTransport() {
	if e.transportStop == nil {
		return
	}
	e.transportStop.Do(func() {
		if err := e.cfg.Transport.Stop(); err != nil {
			log.Printf("Audio engine: transport stop: %v", err)
		}
	})
}

func (e *Engine) recordFault(err error) {
	e.faultMu.Lock()
	e.faultErr = err
	e.faultMu.Unlock()
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
	e.notifyState(s)
}

func (e *Engine) notifyState(s State) {
	if e.cfg.OnStateChange != nil {
		e.cfg.OnStateChange(s)
	}
}
