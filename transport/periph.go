package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// PeriphGPIO bit-bangs the data and clock lines through periph.io pins.
type PeriphGPIO struct {
	DataPin    string
	ClockPin   string
	HalfPeriod time.Duration

	mu     sync.Mutex
	fixed  bool
	data   gpio.PinOut
	clock  gpio.PinOut
	active bool
}

// NewPeriphGPIO looks pins up by name (e.g. "GPIO23") on Setup.
func NewPeriphGPIO(dataPin, clockPin string, halfPeriod time.Duration) *PeriphGPIO {
	return &PeriphGPIO{DataPin: dataPin, ClockPin: clockPin, HalfPeriod: halfPeriod}
}

// NewPeriphGPIOPins drives pins that are already resolved.
func NewPeriphGPIOPins(data, clock gpio.PinOut, halfPeriod time.Duration) *PeriphGPIO {
	return &PeriphGPIO{
		DataPin:    data.Name(),
		ClockPin:   clock.Name(),
		HalfPeriod: halfPeriod,
		fixed:      true,
		data:       data,
		clock:      clock,
	}
}

func (p *PeriphGPIO) String() string {
	return fmt.Sprintf("gpio{data=%s clock=%s}", p.DataPin, p.ClockPin)
}

func (p *PeriphGPIO) Setup() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active {
		return nil
	}
	if !p.fixed {
		if err := hostInit(); err != nil {
			return errors.Wrap(err, "gpio setup")
		}
		data := gpioreg.ByName(p.DataPin)
		if data == nil {
			return errors.Wrapf(ErrNoPin, "gpio setup %s", p.DataPin)
		}
		clock := gpioreg.ByName(p.ClockPin)
		if clock == nil {
			return errors.Wrapf(ErrNoPin, "gpio setup %s", p.ClockPin)
		}
		p.data, p.clock = data, clock
	}
	if err := p.data.Out(gpio.Low); err != nil {
		return errors.Wrap(err, "gpio setup data")
	}
	if err := p.clock.Out(gpio.Low); err != nil {
		return errors.Wrap(err, "gpio setup clock")
	}
	p.active = true
	log.Info().Str("data", p.DataPin).Str("clock", p.ClockPin).Msg("gpio transport ready")
	return nil
}

// Teardown drives both pins low and halts them. Every step runs even when
// an earlier one fails; on failure the transport stays active so Teardown
// can be retried.
func (p *PeriphGPIO) Teardown() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.active {
		return nil
	}
	var first error
	keep := func(err error, msg string) {
		if err != nil && first == nil {
			first = errors.Wrap(err, msg)
		}
	}
	keep(p.data.Out(gpio.Low), "gpio teardown data")
	keep(p.clock.Out(gpio.Low), "gpio teardown clock")
	keep(p.data.Halt(), "gpio teardown data")
	keep(p.clock.Halt(), "gpio teardown clock")
	if first != nil {
		log.Error().Err(first).Str("data", p.DataPin).Str("clock", p.ClockPin).Msg("gpio teardown incomplete")
		return first
	}
	p.active = false
	log.Info().Str("data", p.DataPin).Str("clock", p.ClockPin).Msg("gpio transport released")
	return nil
}

func (p *PeriphGPIO) SetLine(v bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.active {
		return errors.Wrap(ErrClosed, "gpio set line")
	}
	return errors.Wrap(p.data.Out(gpio.Level(v)), "gpio set line")
}

// ClockPulse drives the clock low, waits, drives it high and waits again.
// The device latches data on the rising edge.
func (p *PeriphGPIO) ClockPulse() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.active {
		return errors.Wrap(ErrClosed, "gpio clock")
	}
	if err := p.clock.Out(gpio.Low); err != nil {
		return errors.Wrap(err, "gpio clock")
	}
	wait(p.HalfPeriod)
	if err := p.clock.Out(gpio.High); err != nil {
		return errors.Wrap(err, "gpio clock")
	}
	wait(p.HalfPeriod)
	return nil
}

var _ Transport = (*PeriphGPIO)(nil)
