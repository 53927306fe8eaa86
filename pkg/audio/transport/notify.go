// ABOUTME: Latest-wins boundary event notifier
// ABOUTME: Single-producer single-consumer channel with no queue growth
package transport

import (
	"sync/atomic"

	"github.com/bloom-audio/bloom-go/pkg/audio/block"
)

// Notifier carries boundary events from the interrupt-like producer
// context (a device data callback) to the single consumer task. It is
// latest-wins with capacity one: the queue can never grow, because a
// second unconsumed event means the consumer already missed a deadline
// and the older half's data is gone. In that case the stale event is
// replaced by an xrun event naming the half that was lost.
type Notifier struct {
	ch      chan Event
	dropped atomic.Uint64
}

func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan Event, 1)}
}

// Post publishes ev. Never blocks; safe to call from a device callback.
func (n *Notifier) Post(ev Event) {
	for {
		select {
		case n.ch <- ev:
			return
		default:
		}
		select {
		case stale := <-n.ch:
			n.dropped.Add(1)
			ev = Event{Half: stale.Half, Xrun: true}
		default:
			// Consumer drained between our two selects; retry the send.
		}
	}
}

// PostXrun publishes an explicit overrun for the given half.
func (n *Notifier) PostXrun(h block.Half) {
	n.Post(Event{Half: h, Xrun: true})
}

// Events returns the consumer side. There must be exactly one consumer.
func (n *Notifier) Events() <-chan Event {
	return n.ch
}

// Dropped reports how many events were overwritten before consumption.
func (n *Notifier) Dropped() uint64 {
	return n.dropped.Load()
}
