// ABOUTME: Scripted I2C control bus for tests and host demos
// ABOUTME: Records every write and NACKs on command
package sim

import (
	"errors"
	"sync"
)

// ErrNack is what a real bus driver returns when the device does not
// acknowledge a transfer.
var ErrNack = errors.New("i2c: no acknowledge")

// Write is one recorded bus transfer.
type Write struct {
	Addr uint16
	Data []byte
}

// Bus is a scripted control bus: it acknowledges every write and keeps
// a transcript, unless told to NACK at a given transfer index. On a
// host there is no codec to talk to, so demo binaries use it as the
// always-acknowledging stand-in.
type Bus struct {
	mu     sync.Mutex
	writes []Write
	failAt int // transfer index that NACKs; -1 for never
}

func NewBus() *Bus {
	return &Bus{failAt: -1}
}

// FailAt arranges for the n-th transfer (0-based) to go unacknowledged.
func (b *Bus) FailAt(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failAt = n
}

func (b *Bus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failAt >= 0 && len(b.writes) == b.failAt {
		return ErrNack
	}
	data := make([]byte, len(w))
	copy(data, w)
	b.writes = append(b.writes, Write{Addr: addr, Data: data})
	return nil
}

// Writes returns the transcript of acknowledged transfers.
func (b *Bus) Writes() []Write {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Write, len(b.writes))
	copy(out, b.writes)
	return out
}
