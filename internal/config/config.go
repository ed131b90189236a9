package config

import (
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/coreman2200/funtimes-blinkt/transport"
)

const (
	DriverGPIO    = "gpio"
	DriverCdev    = "cdev"
	DriverSPI     = "spi"
	DriverConsole = "console"
)

type SPI struct {
	Port    string `yaml:"port"`     // e.g. /dev/spidev0.0, empty picks the first
	SpeedHz int64  `yaml:"speed_hz"` // e.g. 4000000
}

type Config struct {
	Driver   string `yaml:"driver" env:"BLINKT_DRIVER"` // "gpio" | "cdev" | "spi" | "console"
	DataPin  string `yaml:"data_pin" env:"BLINKT_DATA_PIN"`
	ClockPin string `yaml:"clock_pin" env:"BLINKT_CLOCK_PIN"`

	Chip      string `yaml:"chip" env:"BLINKT_CHIP"`
	DataLine  int    `yaml:"data_line" env:"BLINKT_DATA_LINE"`
	ClockLine int    `yaml:"clock_line" env:"BLINKT_CLOCK_LINE"`

	SPI SPI `yaml:"spi,omitempty"`

	ClockPeriod time.Duration `yaml:"clock_period"`
	ClearOnExit bool          `yaml:"clear_on_exit" env:"BLINKT_CLEAR_ON_EXIT"`
	Brightness  float64       `yaml:"brightness" env:"BLINKT_BRIGHTNESS"`
	FPS         int           `yaml:"fps" env:"BLINKT_FPS"`

	Addr     string `yaml:"addr" env:"BLINKT_ADDR"` // websocket listen address, empty disables
	LogLevel string `yaml:"log_level" env:"BLINKT_LOG_LEVEL"`
}

func Default() *Config {
	return &Config{
		Driver:      DriverGPIO,
		DataPin:     "GPIO23",
		ClockPin:    "GPIO24",
		Chip:        "gpiochip0",
		DataLine:    23,
		ClockLine:   24,
		SPI:         SPI{SpeedHz: 4000000},
		ClockPeriod: 2 * transport.DefaultHalfPeriod,
		ClearOnExit: true,
		Brightness:  0.2,
		FPS:         30,
		LogLevel:    "info",
	}
}

// Load reads a YAML file over Default(), so missing keys keep their
// default values.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	return c, nil
}

func Save(path string, c *Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "encode config")
	}
	return errors.Wrap(os.WriteFile(path, b, 0644), "write config")
}

// FromEnv applies BLINKT_* environment overrides to c. Unset variables
// leave the field alone.
func FromEnv(c *Config) error {
	return errors.Wrap(env.Parse(c), "config from env")
}

func (c *Config) Validate() error {
	c.Driver = strings.ToLower(strings.TrimSpace(c.Driver))
	switch c.Driver {
	case DriverGPIO, DriverCdev, DriverSPI, DriverConsole:
	default:
		return errors.Errorf("unknown driver %q", c.Driver)
	}
	if c.FPS <= 0 {
		return errors.Errorf("fps must be positive, got %d", c.FPS)
	}
	if c.ClockPeriod < 0 {
		return errors.Errorf("clock_period must not be negative, got %s", c.ClockPeriod)
	}
	return nil
}

// HalfPeriod is the software clock half-period derived from ClockPeriod.
func (c *Config) HalfPeriod() time.Duration {
	return c.ClockPeriod / 2
}
