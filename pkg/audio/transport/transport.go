// ABOUTME: Transport interface and boundary event type
// ABOUTME: Contract between DMA-driven backends and the audio engine
package transport

import (
	"github.com/bloom-audio/bloom-go/pkg/audio"
	"github.com/bloom-audio/bloom-go/pkg/audio/block"
)

// Event is one half/full-transfer notification. Half identifies the
// half that just finished filling and is now safe to consume; the
// backend is concurrently filling the other half. Xrun marks a missed
// deadline: the data of Half was overwritten before it was consumed.
type Event struct {
	Half block.Half
	Xrun bool
}

// Transport drives the serial audio port and its DMA channels. Start
// begins continuous circular transfer through buf and must reject a
// config the backend cannot honor with audio.ErrConfigMismatch. After
// Start the transport runs at the sample clock until Stop; it never
// pauses itself. Events delivers boundary notifications to exactly one
// consumer.
type Transport interface {
	Start(cfg audio.StreamConfig, buf *block.DoubleBuffer) error
	Stop() error
	Events() <-chan Event
}
