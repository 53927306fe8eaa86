// ABOUTME: Hardware abstraction boundary for board peripherals
// ABOUTME: Control bus and delay interfaces handed in by board init
// Package hal declares the narrow hardware interfaces the audio stack
// is written against. Board init owns pin and clock configuration and
// hands initialized implementations in; the core never touches either.
package hal

import "time"

// I2C is the control bus used to configure the codec's internal
// registers. It is distinct from the audio data path. Tx writes w to
// the device at addr, then reads len(r) bytes; either slice may be nil.
// An error means the transfer was not acknowledged.
type I2C interface {
	Tx(addr uint16, w, r []byte) error
}

// Sleeper provides the inter-step settle delays some codec sequences
// require. Production code uses RealSleeper; tests substitute a fake so
// datasheet delays don't slow the suite down.
type Sleeper interface {
	Sleep(d time.Duration)
}

// RealSleeper sleeps on the wall clock.
type RealSleeper struct{}

func (RealSleeper) Sleep(d time.Duration) { time.Sleep(d) }
