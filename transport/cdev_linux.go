//go:build linux

package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/warthog618/go-gpiocdev"
)

// CdevGPIO bit-bangs the lines through the Linux GPIO character device.
type CdevGPIO struct {
	Chip       string
	DataLine   int
	ClockLine  int
	HalfPeriod time.Duration

	mu    sync.Mutex
	data  *gpiocdev.Line
	clock *gpiocdev.Line
}

func NewCdevGPIO(chip string, dataLine, clockLine int, halfPeriod time.Duration) (*CdevGPIO, error) {
	if chip == "" {
		return nil, errors.Wrap(ErrNoChip, "cdev")
	}
	return &CdevGPIO{Chip: chip, DataLine: dataLine, ClockLine: clockLine, HalfPeriod: halfPeriod}, nil
}

func (c *CdevGPIO) String() string {
	return fmt.Sprintf("cdev{%s data=%d clock=%d}", c.Chip, c.DataLine, c.ClockLine)
}

func (c *CdevGPIO) Setup() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data != nil {
		return nil
	}
	data, err := gpiocdev.RequestLine(c.Chip, c.DataLine, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("blinkt"))
	if err != nil {
		return errors.Wrapf(err, "cdev setup line %d", c.DataLine)
	}
	clock, err := gpiocdev.RequestLine(c.Chip, c.ClockLine, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("blinkt"))
	if err != nil {
		_ = data.Close()
		return errors.Wrapf(err, "cdev setup line %d", c.ClockLine)
	}
	c.data, c.clock = data, clock
	log.Info().Str("chip", c.Chip).Int("data", c.DataLine).Int("clock", c.ClockLine).Msg("cdev transport ready")
	return nil
}

func (c *CdevGPIO) Teardown() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		return nil
	}
	derr := c.data.Close()
	cerr := c.clock.Close()
	c.data, c.clock = nil, nil
	if derr != nil {
		return errors.Wrap(derr, "cdev teardown data")
	}
	if cerr != nil {
		return errors.Wrap(cerr, "cdev teardown clock")
	}
	log.Info().Str("chip", c.Chip).Msg("cdev transport released")
	return nil
}

func (c *CdevGPIO) SetLine(v bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		return errors.Wrap(ErrClosed, "cdev set line")
	}
	return errors.Wrap(c.data.SetValue(level(v)), "cdev set line")
}

func (c *CdevGPIO) ClockPulse() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.clock == nil {
		return errors.Wrap(ErrClosed, "cdev clock")
	}
	if err := c.clock.SetValue(0); err != nil {
		return errors.Wrap(err, "cdev clock")
	}
	wait(c.HalfPeriod)
	if err := c.clock.SetValue(1); err != nil {
		return errors.Wrap(err, "cdev clock")
	}
	wait(c.HalfPeriod)
	return nil
}

var _ Transport = (*CdevGPIO)(nil)
