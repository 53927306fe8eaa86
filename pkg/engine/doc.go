// ABOUTME: Real-time audio engine package
// ABOUTME: Owns the double buffer and hands halves to the user callback
// Package engine is the real-time core of the bloom audio stack. An
// Engine owns the sample double buffer, sequences the codec to its
// streaming state, starts the serial audio transport, and invokes the
// user callback exactly once per completed buffer half — in place,
// zero copy, with no locks anywhere on the steady-state path.
//
// The processing callback runs on a single goroutine fed by the
// transport's latest-wins event channel, so invocations are strictly
// ordered and never overlap. The callback must finish within one
// block's worth of sample time; a miss surfaces as an xrun fault, the
// stream stops cleanly, and restarting requires an explicit Start that
// re-runs the whole codec sequence.
package engine
