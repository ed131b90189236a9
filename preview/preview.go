// Package preview draws led array snapshots on a periph display.Drawer,
// by default an ANSI terminal strip.
package preview

import (
	"image"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/display"
	"periph.io/x/extra/devices/screen"

	"github.com/coreman2200/funtimes-blinkt/model"
)

type Preview struct {
	drawer display.Drawer
}

func New(d display.Drawer) *Preview {
	return &Preview{drawer: d}
}

// NewScreen previews on the terminal, one cell per led.
func NewScreen() *Preview {
	var d display.Drawer = screen.New(model.NumLeds)
	return New(d)
}

func (p *Preview) String() string {
	return "preview{" + p.drawer.String() + "}"
}

// Image renders states as a one pixel high strip. Each pixel is the led
// colour scaled by its brightness.
func Image(states []model.LedState) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, len(states), 1))
	for i, s := range states {
		img.SetNRGBA(i, 0, s.Color.Scale(s.Brightness).NRGBA())
	}
	return img
}

func (p *Preview) Draw(states []model.LedState) error {
	img := Image(states)
	if err := p.drawer.Draw(p.drawer.Bounds(), img, image.Point{}); err != nil {
		return errors.Wrap(err, "preview draw")
	}
	return nil
}

func (p *Preview) Halt() error {
	return errors.Wrap(p.drawer.Halt(), "preview halt")
}
