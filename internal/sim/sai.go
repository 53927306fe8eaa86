// ABOUTME: Simulated serial audio peripheral
// ABOUTME: Manually clocked or ticker-driven half-transfer event source
package sim

import (
	"fmt"
	"sync"
	"time"

	"github.com/bloom-audio/bloom-go/pkg/audio"
	"github.com/bloom-audio/bloom-go/pkg/audio/block"
	"github.com/bloom-audio/bloom-go/pkg/audio/transport"
)

// SAI is a deterministic stand-in for the serial audio DMA driver.
// Each Advance fills the half the simulated DMA currently owns with a
// counting pattern and posts the boundary event, alternating halves
// exactly as circular DMA hardware does. Tests clock it by hand;
// demos can let RunEvery clock it at the block period.
type SAI struct {
	notifier *transport.Notifier

	mu      sync.Mutex
	buf     *block.DoubleBuffer
	cfg     audio.StreamConfig
	half    block.Half
	seq     int32
	started bool

	tickQuit chan struct{}
	tickDone chan struct{}
}

func NewSAI() *SAI {
	return &SAI{notifier: transport.NewNotifier()}
}

func (s *SAI) Start(cfg audio.StreamConfig, buf *block.DoubleBuffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("sim: sai already started")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.buf = buf
	s.cfg = cfg
	s.half = block.HalfA
	s.seq = 0
	s.started = true
	return nil
}

func (s *SAI) Stop() error {
	s.mu.Lock()
	quit, done := s.tickQuit, s.tickDone
	s.tickQuit, s.tickDone = nil, nil
	s.started = false
	s.mu.Unlock()

	if quit != nil {
		close(quit)
		<-done
	}
	return nil
}

func (s *SAI) Events() <-chan transport.Event {
	return s.notifier.Events()
}

// Advance completes one half-transfer: the current half is filled with
// a counting pattern and announced as input-ready. Reports false once
// the peripheral has faulted or stopped.
func (s *SAI) Advance() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return false
	}

	blk, ok := s.buf.TryTransfer(s.half, block.OwnerDMA, block.OwnerDMA)
	if !ok {
		// Consumer still holds the half the sample clock demands.
		s.notifier.PostXrun(s.half)
		s.started = false
		return false
	}

	frames := blk.Frames()
	for i := range frames {
		frames[i] = s.seq
		s.seq++
	}

	done := s.half
	s.half = s.half.Other()
	s.notifier.Post(transport.Event{Half: done})
	return true
}

// InjectXrun reports a hardware overrun on the given half, as the real
// peripheral does when its FIFO trips.
func (s *SAI) InjectXrun(h block.Half) {
	s.notifier.PostXrun(h)
}

// RunEvery clocks Advance at the given period until Stop. Used by soak
// runs and host demos that want wall-clock pacing.
func (s *SAI) RunEvery(period time.Duration) {
	s.mu.Lock()
	if !s.started || s.tickQuit != nil {
		s.mu.Unlock()
		return
	}
	quit := make(chan struct{})
	done := make(chan struct{})
	s.tickQuit, s.tickDone = quit, done
	s.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if !s.Advance() {
					return
				}
			case <-quit:
				return
			}
		}
	}()
}
