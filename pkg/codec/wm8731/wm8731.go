// ABOUTME: WM8731 codec control sequencer over I2C
// ABOUTME: Drives reset/configure/activate register writes to the streaming state
// Package wm8731 brings the board's WM8731 stereo codec from power-on
// to its streaming state. The register sequence is strictly ordered per
// the datasheet: activating or un-muting before the clocks and paths
// are configured is the classic source of audible pops, so the order
// below must not be rearranged.
package wm8731

import (
	"fmt"
	"time"

	"github.com/bloom-audio/bloom-go/pkg/audio"
	"github.com/bloom-audio/bloom-go/pkg/hal"
)

// Address is the codec's 7-bit I2C address with CSB tied low.
const Address uint16 = 0x1A

// Register is a 7-bit WM8731 control register address. Values are
// 9 bits wide; address and value share two bytes on the wire.
type Register uint8

const (
	RegLeftLineIn        Register = 0x00
	RegRightLineIn       Register = 0x01
	RegLeftHeadphoneOut  Register = 0x02
	RegRightHeadphoneOut Register = 0x03
	RegAnaloguePath      Register = 0x04
	RegDigitalPath       Register = 0x05
	RegPowerDown         Register = 0x06
	RegInterfaceFormat   Register = 0x07
	RegSampling          Register = 0x08
	RegActive            Register = 0x09
	RegReset             Register = 0x0F
)

// State is the codec bring-up state machine. Only Initialize drives it
// forward; a failed bus transfer parks it in StateFault until the whole
// sequence is retried.
type State uint8

const (
	StateUninitialized State = iota
	StateResetting
	StateConfiguring
	StateStreaming
	StateFault
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateResetting:
		return "resetting"
	case StateConfiguring:
		return "configuring"
	case StateStreaming:
		return "streaming"
	case StateFault:
		return "fault"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// step is one ordered register write, with an optional settle delay the
// datasheet requires before the next write may be issued.
type step struct {
	reg    Register
	value  uint16
	settle time.Duration
}

// Device is one WM8731 behind a control bus handle.
type Device struct {
	bus   hal.I2C
	addr  uint16
	sleep hal.Sleeper
	state State
}

// Option configures a Device.
type Option func(*Device)

// WithAddress selects the alternate I2C address (CSB high).
func WithAddress(addr uint16) Option {
	return func(d *Device) { d.addr = addr }
}

// WithSleeper substitutes the settle-delay clock, for tests.
func WithSleeper(s hal.Sleeper) Option {
	return func(d *Device) { d.sleep = s }
}

// New wraps an initialized control bus handle. Board init owns the bus;
// the device only issues transfers on it.
func New(bus hal.I2C, opts ...Option) *Device {
	d := &Device{
		bus:   bus,
		addr:  Address,
		sleep: hal.RealSleeper{},
		state: StateUninitialized,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// State reports the bring-up state.
func (d *Device) State() State {
	return d.state
}

// Initialize runs the full power-up sequence and leaves the codec
// streaming. Config problems are rejected before any bus traffic. A
// single unacknowledged transfer aborts the sequence immediately with
// audio.ErrBusFailure and StateFault; there is no partial retry — the
// caller restarts the whole sequence or not at all.
func (d *Device) Initialize(cfg audio.StreamConfig) error {
	steps, err := sequence(cfg)
	if err != nil {
		return err
	}

	d.state = StateResetting
	for i, s := range steps {
		if err := d.write(s.reg, s.value); err != nil {
			d.state = StateFault
			return fmt.Errorf("wm8731: step %d (reg 0x%02X): %v: %w", i, uint8(s.reg), err, audio.ErrBusFailure)
		}
		if s.settle > 0 {
			d.sleep.Sleep(s.settle)
		}
		if s.reg == RegReset {
			d.state = StateConfiguring
		}
	}
	d.state = StateStreaming
	return nil
}

// write issues one register write: 7-bit address and the value's ninth
// bit share the first byte, the low eight value bits fill the second.
func (d *Device) write(reg Register, value uint16) error {
	w := []byte{byte(reg)<<1 | byte(value>>8&0x01), byte(value)}
	return d.bus.Tx(d.addr, w, nil)
}

// sequence derives the ordered write list from the stream config. The
// order is: reset, input levels, output mute, signal routing, power
// management, digital interface format, sampling control, then
// deactivate/activate. Settle delays: 10 ms after reset for the
// internal registers to load defaults, 1 ms between deactivate and
// activate for the digital core to quiesce.
func sequence(cfg audio.StreamConfig) ([]step, error) {
	iface, err := interfaceFormat(cfg.BitDepth)
	if err != nil {
		return nil, err
	}
	srate, err := samplingControl(cfg.SampleRate)
	if err != nil {
		return nil, err
	}
	if cfg.Channels != 2 {
		return nil, fmt.Errorf("%w: wm8731 is stereo only, got %d channels", audio.ErrConfigMismatch, cfg.Channels)
	}

	return []step{
		{RegReset, 0x000, 10 * time.Millisecond},
		// Line inputs at 0 dB, unmuted.
		{RegLeftLineIn, 0x017, 0},
		{RegRightLineIn, 0x017, 0},
		// Headphone outputs muted through bring-up.
		{RegLeftHeadphoneOut, 0x000, 0},
		{RegRightHeadphoneOut, 0x000, 0},
		// DAC selected into the output mixer, line input to ADC.
		{RegAnaloguePath, 0x012, 0},
		// DAC un-muted, ADC high-pass filter disabled.
		{RegDigitalPath, 0x001, 0},
		// Everything on except mic path and clock output.
		{RegPowerDown, 0x042, 0},
		{RegInterfaceFormat, iface, 0},
		{RegSampling, srate, 0},
		{RegActive, 0x000, time.Millisecond},
		{RegActive, 0x001, 0},
	}, nil
}

// interfaceFormat returns the digital interface register value: I2S
// slave mode with the input word length matching the stream bit depth.
func interfaceFormat(bitDepth int) (uint16, error) {
	switch bitDepth {
	case 16:
		return 0x002, nil
	case 24:
		return 0x00A, nil
	case 32:
		return 0x00E, nil
	}
	return 0, fmt.Errorf("%w: wm8731 word length %d", audio.ErrConfigMismatch, bitDepth)
}

// samplingControl returns the sampling register value for a 12.288 MHz
// master clock in normal mode.
func samplingControl(rate int) (uint16, error) {
	switch rate {
	case 8000:
		return 0x00C, nil
	case 32000:
		return 0x018, nil
	case 48000:
		return 0x000, nil
	case 96000:
		return 0x01C, nil
	}
	return 0, fmt.Errorf("%w: wm8731 sample rate %d with 12.288MHz MCLK", audio.ErrConfigMismatch, rate)
}
