package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, "GPIO23", c.DataPin)
	assert.Equal(t, "GPIO24", c.ClockPin)
	assert.Equal(t, 500*time.Nanosecond, c.HalfPeriod())
	assert.True(t, c.ClearOnExit)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	c := Default()
	c.Driver = DriverSPI
	c.SPI.Port = "/dev/spidev0.0"
	c.ClockPeriod = 4 * time.Microsecond
	c.Addr = ":8080"
	require.NoError(t, Save(path, c))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("driver: console\nfps: 10\n"), 0644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DriverConsole, c.Driver)
	assert.Equal(t, 10, c.FPS)
	assert.Equal(t, "GPIO23", c.DataPin)
	assert.Equal(t, time.Microsecond, c.ClockPeriod)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fps: [1, 2"), 0644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("BLINKT_DRIVER", "cdev")
	t.Setenv("BLINKT_FPS", "12")
	t.Setenv("BLINKT_BRIGHTNESS", "0.75")
	t.Setenv("BLINKT_CLEAR_ON_EXIT", "false")

	c := Default()
	require.NoError(t, FromEnv(c))
	assert.Equal(t, DriverCdev, c.Driver)
	assert.Equal(t, 12, c.FPS)
	assert.Equal(t, 0.75, c.Brightness)
	assert.False(t, c.ClearOnExit)
	assert.Equal(t, "GPIO23", c.DataPin, "unset variables leave fields alone")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		edit func(c *Config)
		ok   bool
	}{
		{"default", func(c *Config) {}, true},
		{"upper case driver", func(c *Config) { c.Driver = " SPI " }, true},
		{"unknown driver", func(c *Config) { c.Driver = "pwm" }, false},
		{"zero fps", func(c *Config) { c.FPS = 0 }, false},
		{"negative period", func(c *Config) { c.ClockPeriod = -time.Second }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.edit(c)
			err := c.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
