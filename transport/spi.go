package transport

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
)

// DefaultSPISpeed is well inside what the chain accepts.
const DefaultSPISpeed = 4 * physic.MegaHertz

// SPI hands the bitstream to a hardware SPI controller, which generates
// the clock itself. Bits are buffered and sent in one transaction on Flush.
type SPI struct {
	Port  string
	Speed physic.Frequency

	mu      sync.Mutex
	port    spi.PortCloser
	fixed   bool
	conn    spi.Conn
	pending bool
	bits    []bool
}

// NewSPI opens the named port (empty for the first one) on Setup.
func NewSPI(port string, speed physic.Frequency) *SPI {
	if speed <= 0 {
		speed = DefaultSPISpeed
	}
	return &SPI{Port: port, Speed: speed}
}

// NewSPIPort uses an already opened port.
func NewSPIPort(p spi.PortCloser, speed physic.Frequency) *SPI {
	s := NewSPI(p.String(), speed)
	s.port, s.fixed = p, true
	return s
}

func (s *SPI) String() string {
	return fmt.Sprintf("spi{%s %s}", s.Port, s.Speed)
}

func (s *SPI) Setup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return nil
	}
	if !s.fixed {
		if err := hostInit(); err != nil {
			return errors.Wrap(err, "spi setup")
		}
		p, err := spireg.Open(s.Port)
		if err != nil {
			return errors.Wrap(err, "spi setup")
		}
		s.port = p
	}
	c, err := s.port.Connect(s.Speed, spi.Mode0, 8)
	if err != nil {
		if !s.fixed {
			_ = s.port.Close()
		}
		return errors.Wrap(err, "spi connect")
	}
	s.conn = c
	s.bits = s.bits[:0]
	log.Info().Str("port", s.port.String()).Stringer("speed", s.Speed).Msg("spi transport ready")
	return nil
}

func (s *SPI) Teardown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	s.conn = nil
	s.bits = nil
	if err := s.port.Close(); err != nil {
		return errors.Wrap(err, "spi teardown")
	}
	log.Info().Str("port", s.Port).Msg("spi transport released")
	return nil
}

func (s *SPI) SetLine(v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return errors.Wrap(ErrClosed, "spi set line")
	}
	s.pending = v
	return nil
}

// ClockPulse commits the current data bit to the outgoing buffer.
func (s *SPI) ClockPulse() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return errors.Wrap(ErrClosed, "spi clock")
	}
	s.bits = append(s.bits, s.pending)
	return nil
}

// Flush writes every committed bit in a single transaction.
func (s *SPI) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return errors.Wrap(ErrClosed, "spi flush")
	}
	if len(s.bits) == 0 {
		return nil
	}
	buf := Pack(s.bits)
	s.bits = s.bits[:0]
	return errors.Wrap(s.conn.Tx(buf, nil), "spi flush")
}

var (
	_ Transport = (*SPI)(nil)
	_ Flusher   = (*SPI)(nil)
)
