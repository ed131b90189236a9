//go:build !linux

package transport

import "time"

type CdevGPIO struct{}

func NewCdevGPIO(chip string, dataLine, clockLine int, halfPeriod time.Duration) (*CdevGPIO, error) {
	return nil, ErrUnsupported
}

func (c *CdevGPIO) Setup() error { return ErrUnsupported }
func (c *CdevGPIO) Teardown() error { return nil }
func (c *CdevGPIO) SetLine(v bool) error { return ErrUnsupported }
func (c *CdevGPIO) ClockPulse() error { return ErrUnsupported }
func (c *CdevGPIO) String() string { return "cdev{unsupported}" }
