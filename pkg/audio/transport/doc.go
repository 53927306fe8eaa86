// ABOUTME: Serial audio DMA driver boundary and backends
// ABOUTME: Defines Transport, boundary events and the latest-wins notifier
// Package transport is the serial audio DMA driver layer. A Transport
// cycles autonomously between the two halves of a DoubleBuffer at the
// hardware sample clock and posts a boundary Event each time one half
// finishes. There is no backpressure at this layer: if the consumer is
// too slow the next cycle overwrites stale data and the late half is
// reported as an xrun.
//
// Two production backends are provided:
//   - Miniaudio: full-duplex host audio via miniaudio (malgo), the
//     closest host analogue of a circular-DMA serial audio port.
//   - Oto: playback-only host audio via oto, for generator callbacks.
//
// Deterministic tests and soak runs use the simulated peripheral in
// internal/sim instead.
package transport
