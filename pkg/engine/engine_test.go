// ABOUTME: Tests for the audio engine lifecycle and steady-state loop
// ABOUTME: Covers the reference scenario, stop races, xruns and codec faults
package engine

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bloom-audio/bloom-go/internal/sim"
	"github.com/bloom-audio/bloom-go/pkg/audio"
	"github.com/bloom-audio/bloom-go/pkg/audio/block"
	"github.com/bloom-audio/bloom-go/pkg/audio/transport"
	"github.com/bloom-audio/bloom-go/pkg/codec/wm8731"
)

type fakeSleeper struct{}

func (fakeSleeper) Sleep(time.Duration) {}

func testConfig() audio.StreamConfig {
	return audio.StreamConfig{SampleRate: 48000, BlockSize: 48, Channels: 2, BitDepth: 24}
}

// rig is a complete simulated board: scripted control bus, WM8731
// sequencer, simulated serial audio peripheral.
type rig struct {
	bus *sim.Bus
	sai *sim.SAI
	eng *Engine
}

func newRig(t *testing.T, cfg Config) *rig {
	t.Helper()
	bus := sim.NewBus()
	sai := sim.NewSAI()
	cfg.Stream = testConfig()
	cfg.Codec = wm8731.New(bus, wm8731.WithSleeper(fakeSleeper{}))
	cfg.Transport = sai

	eng, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return &rig{bus: bus, sai: sai, eng: eng}
}

func waitBlock(t *testing.T, ch <-chan *block.Block) *block.Block {
	t.Helper()
	select {
	case b := <-ch:
		return b
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for callback")
		return nil
	}
}

// The reference scenario: 48kHz/48/2/24, scripted codec success, 100
// half-transfer events at alternating halves, each invoking the
// callback exactly once with a 48-frame block; stop suppresses all
// further callbacks.
func TestStreamingScenario(t *testing.T) {
	processed := make(chan *block.Block, 1)
	r := newRig(t, Config{})

	if err := r.eng.Start(func(b *block.Block) { processed <- b }); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if r.eng.State() != StateStreaming {
		t.Fatalf("expected streaming, got %v", r.eng.State())
	}
	if got := len(r.bus.Writes()); got == 0 {
		t.Fatal("codec sequence never ran")
	}

	var prev *block.Block
	for i := 0; i < 100; i++ {
		if !r.sai.Advance() {
			t.Fatalf("event %d: peripheral refused to advance", i)
		}
		b := waitBlock(t, processed)

		if b.Len() != 48 || b.Channels() != 2 {
			t.Fatalf("event %d: got %d frames / %d channels", i, b.Len(), b.Channels())
		}
		// Strict alternation: consecutive events hand over opposite
		// halves, so the same block comes back every second event.
		if prev != nil && b == prev {
			t.Fatalf("event %d: half did not alternate", i)
		}
		prev = b
	}

	// The last release/accounting step may still be in flight when the
	// callback hands the block over; give it a moment.
	deadline := time.Now().Add(time.Second)
	for r.eng.Blocks() != 100 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := r.eng.Blocks(); got != 100 {
		t.Errorf("expected 100 processed blocks, got %d", got)
	}

	r.eng.Stop()
	if r.eng.State() != StateIdle {
		t.Errorf("expected idle after stop, got %v", r.eng.State())
	}
	if r.sai.Advance() {
		t.Error("peripheral should be stopped")
	}
	select {
	case <-processed:
		t.Error("callback invoked after stop")
	default:
	}
}

func TestCapturedPatternReachesCallback(t *testing.T) {
	processed := make(chan *block.Block, 1)
	r := newRig(t, Config{})

	if err := r.eng.Start(func(b *block.Block) { processed <- b }); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer r.eng.Stop()

	r.sai.Advance()
	b := waitBlock(t, processed)

	// The simulated DMA fills with a counting pattern; the engine must
	// hand over the same memory without copying.
	for i, s := range b.Frames() {
		if s != int32(i) {
			t.Fatalf("sample %d: expected %d, got %d", i, i, s)
		}
	}
}

func TestStopSuppressesQueuedEvent(t *testing.T) {
	gate := make(chan struct{})
	entered := make(chan struct{}, 2)
	var calls atomic.Int32

	r := newRig(t, Config{})
	err := r.eng.Start(func(b *block.Block) {
		calls.Add(1)
		entered <- struct{}{}
		<-gate
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// First event: callback is now in flight and holding its half.
	r.sai.Advance()
	<-entered

	// Second event queues behind the busy consumer.
	if !r.sai.Advance() {
		t.Fatal("second advance failed")
	}

	stopped := make(chan struct{})
	go func() {
		r.eng.Stop()
		close(stopped)
	}()

	// Let Stop cut the loop before the callback is released.
	time.Sleep(50 * time.Millisecond)
	close(gate)

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}

	if got := calls.Load(); got != 1 {
		t.Errorf("queued event ran after stop: %d calls", got)
	}
	if r.eng.State() != StateIdle {
		t.Errorf("expected idle, got %v", r.eng.State())
	}
}

func TestXrunFaultsTheStream(t *testing.T) {
	processed := make(chan *block.Block, 1)
	faulted := make(chan error, 1)

	r := newRig(t, Config{OnFault: func(err error) { faulted <- err }})
	if err := r.eng.Start(func(b *block.Block) { processed <- b }); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	r.sai.Advance()
	waitBlock(t, processed)

	r.sai.InjectXrun(block.HalfB)

	var err error
	select {
	case err = <-faulted:
	case <-time.After(time.Second):
		t.Fatal("fault never surfaced")
	}

	if !errors.Is(err, audio.ErrXrun) {
		t.Fatalf("expected xrun, got %v", err)
	}
	var xe *audio.XrunError
	if !errors.As(err, &xe) || xe.Half != int(block.HalfB) {
		t.Errorf("expected half B in xrun, got %v", err)
	}
	if r.eng.State() != StateFaulted {
		t.Errorf("expected faulted, got %v", r.eng.State())
	}
	if r.eng.Err() == nil {
		t.Error("Err should report the fault")
	}
	if got := r.eng.Blocks(); got != 1 {
		t.Errorf("expected 1 processed block, got %d", got)
	}

	// No auto-restart: the peripheral is down until an explicit cycle.
	if r.sai.Advance() {
		t.Error("transport should be stopped after fault")
	}
	r.eng.Stop()
	if r.eng.State() != StateIdle {
		t.Errorf("expected idle after stop, got %v", r.eng.State())
	}
}

func TestCodecFaultAbortsStart(t *testing.T) {
	r := newRig(t, Config{})
	r.bus.FailAt(0)

	err := r.eng.Start(func(*block.Block) {})
	if !errors.Is(err, audio.ErrBusFailure) {
		t.Fatalf("expected ErrBusFailure, got %v", err)
	}
	if r.eng.State() != StateFaulted {
		t.Errorf("expected faulted, got %v", r.eng.State())
	}
	if r.sai.Advance() {
		t.Error("transport must not start when the codec faults")
	}

	// Explicit stop + start retries the whole codec sequence.
	r.eng.Stop()
	r.bus.FailAt(-1)
	if err := r.eng.Start(func(*block.Block) {}); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	r.eng.Stop()
}

func TestStartWhileStreaming(t *testing.T) {
	r := newRig(t, Config{})
	if err := r.eng.Start(func(*block.Block) {}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer r.eng.Stop()

	if err := r.eng.Start(func(*block.Block) {}); !errors.Is(err, ErrNotIdle) {
		t.Errorf("expected ErrNotIdle, got %v", err)
	}
}

func TestStopIdempotent(t *testing.T) {
	r := newRig(t, Config{})

	// Stop before any start is a no-op.
	r.eng.Stop()

	if err := r.eng.Start(func(*block.Block) {}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	r.eng.Stop()
	r.eng.Stop()
	if r.eng.State() != StateIdle {
		t.Errorf("expected idle, got %v", r.eng.State())
	}
}

func TestRestartRerunsCodecSequence(t *testing.T) {
	processed := make(chan *block.Block, 1)
	r := newRig(t, Config{})
	cb := func(b *block.Block) { processed <- b }

	if err := r.eng.Start(cb); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	firstRun := len(r.bus.Writes())
	r.sai.Advance()
	waitBlock(t, processed)
	r.eng.Stop()

	if err := r.eng.Start(cb); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}
	defer r.eng.Stop()
	if got := len(r.bus.Writes()); got != 2*firstRun {
		t.Errorf("restart must re-run the full sequence: %d writes, expected %d", got, 2*firstRun)
	}
	r.sai.Advance()
	waitBlock(t, processed)
}

// slowStopTransport holds Transport.Stop open long enough to expose
// overlapping shutdown paths. Real device backends crash on a second
// or concurrent Stop, so the fake flags both.
type slowStopTransport struct {
	notifier *transport.Notifier
	inStop   atomic.Int32
	overlap  atomic.Bool
	stops    atomic.Int32
}

func newSlowStopTransport() *slowStopTransport {
	return &slowStopTransport{notifier: transport.NewNotifier()}
}

func (s *slowStopTransport) Start(audio.StreamConfig, *block.DoubleBuffer) error { return nil }

func (s *slowStopTransport) Stop() error {
	if s.inStop.Add(1) > 1 {
		s.overlap.Store(true)
	}
	time.Sleep(50 * time.Millisecond)
	s.inStop.Add(-1)
	s.stops.Add(1)
	return nil
}

func (s *slowStopTransport) Events() <-chan transport.Event { return s.notifier.Events() }

func newFakeTransportRig(t *testing.T, tr transport.Transport) *Engine {
	t.Helper()
	eng, err := New(Config{
		Stream:    testConfig(),
		Codec:     wm8731.New(sim.NewBus(), wm8731.WithSleeper(fakeSleeper{})),
		Transport: tr,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return eng
}

// An xrun faulting the stream while the owner calls Stop: both paths
// reach the transport, which must see exactly one Stop and never a
// concurrent one.
func TestFaultAndStopShutTransportOnce(t *testing.T) {
	tr := newSlowStopTransport()
	eng := newFakeTransportRig(t, tr)

	if err := eng.Start(func(*block.Block) {}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	tr.notifier.PostXrun(block.HalfA)

	// Wait until the fault path is inside Transport.Stop, then stop
	// from the owner's side while it is still in there.
	deadline := time.Now().Add(time.Second)
	for tr.inStop.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if tr.inStop.Load() == 0 {
		t.Fatal("fault path never reached the transport")
	}
	eng.Stop()

	if tr.overlap.Load() {
		t.Error("Transport.Stop entered concurrently")
	}
	if got := tr.stops.Load(); got != 1 {
		t.Errorf("expected exactly one transport stop, got %d", got)
	}
	if !errors.Is(eng.Err(), audio.ErrXrun) {
		t.Errorf("expected xrun fault, got %v", eng.Err())
	}
	if eng.State() != StateIdle {
		t.Errorf("expected idle after stop, got %v", eng.State())
	}
}

// An event for a half the duplex backend has pinned for its playback
// encode: the engine waits the pin out instead of panicking, and the
// callback runs once the pin releases.
func TestEventWaitsForPinnedHalf(t *testing.T) {
	processed := make(chan *block.Block, 1)
	tr := newSlowStopTransport()
	eng := newFakeTransportRig(t, tr)

	if err := eng.Start(func(b *block.Block) { processed <- b }); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer eng.Stop()

	eng.buf.Transfer(block.HalfA, block.OwnerDMA, block.OwnerEcho)
	tr.notifier.Post(transport.Event{Half: block.HalfA})

	select {
	case <-processed:
		t.Fatal("callback ran while the half was pinned")
	case <-time.After(20 * time.Millisecond):
	}

	eng.buf.Transfer(block.HalfA, block.OwnerEcho, block.OwnerDMA)
	waitBlock(t, processed)
}

func TestStateChangeHook(t *testing.T) {
	var states []State
	r := newRig(t, Config{OnStateChange: func(s State) { states = append(states, s) }})

	if err := r.eng.Start(func(*block.Block) {}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	r.eng.Stop()

	want := []State{StateAwaitingCodec, StateStreaming, StateIdle}
	if len(states) != len(want) {
		t.Fatalf("expected states %v, got %v", want, states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("transition %d: expected %v, got %v", i, want[i], states[i])
		}
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	bus := sim.NewBus()
	_, err := New(Config{
		Stream:    audio.StreamConfig{SampleRate: 44100, BlockSize: 48, Channels: 2, BitDepth: 24},
		Codec:     wm8731.New(bus, wm8731.WithSleeper(fakeSleeper{})),
		Transport: sim.NewSAI(),
	})
	if !errors.Is(err, audio.ErrConfigMismatch) {
		t.Errorf("expected ErrConfigMismatch, got %v", err)
	}
}
