package model

import (
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// LedState is a torn-free snapshot of a single led.
type LedState struct {
	Color      Color
	Brightness float64
}

// Led is one addressable element of the array. Reads are always allowed;
// writes only exist on LedGuard, obtained through the array's ownership.
type Led struct {
	index int

	// own is the ownership lock. Only LedArray takes it, after the array's
	// own lock.
	own *semaphore.Weighted

	// mu guards color and brightness.
	mu         sync.Mutex
	color      Color
	brightness float64
}

func newLed(i int) *Led {
	return &Led{index: i, own: semaphore.NewWeighted(1)}
}

// Index is the led's position, 0 being the first on the wire.
func (l *Led) Index() int {
	return l.index
}

// Get returns the color and brightness as one consistent pair.
func (l *Led) Get() (Color, float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.color, l.brightness
}

func (l *Led) State() LedState {
	c, b := l.Get()
	return LedState{Color: c, Brightness: b}
}

func (l *Led) Color() Color {
	c, _ := l.Get()
	return c
}

func (l *Led) Brightness() float64 {
	_, b := l.Get()
	return b
}

func (l *Led) String() string {
	c, b := l.Get()
	return fmt.Sprintf("<Led %d color=%s brightness=%g>", l.index+1, c, b)
}

func (l *Led) setColor(c Color) {
	l.mu.Lock()
	l.color = c
	l.mu.Unlock()
}

func (l *Led) setBrightness(b float64) {
	b = clampUnit(b)
	l.mu.Lock()
	l.brightness = b
	l.mu.Unlock()
}

// LedGuard is exclusive possession of one led. Led guards only come from
// an ArrayGuard, so led ownership is never taken ahead of the array's.
// A borrowed guard is valid while its ArrayGuard is held and releasing it
// is a no-op; a guard from Own holds its own nesting level.
type LedGuard struct {
	led      *Led
	parent   *ArrayGuard
	nested   bool
	released atomic.Bool
}

func (g *LedGuard) check() {
	if g.released.Load() || g.parent.released.Load() {
		panic("model: use of released led guard")
	}
}

func (g *LedGuard) Led() *Led {
	return g.led
}

// Owner returns the array guard this led guard was taken from.
func (g *LedGuard) Owner() *ArrayGuard {
	g.check()
	return g.parent
}

// Own re-enters ownership of the led. The returned guard must be released
// on its own; ownership ends when every level is released.
func (g *LedGuard) Own() *LedGuard {
	g.check()
	return &LedGuard{led: g.led, parent: g.parent.Own(), nested: true}
}

func (g *LedGuard) Get() (Color, float64) {
	return g.led.Get()
}

func (g *LedGuard) SetColor(c Color) {
	g.check()
	g.led.setColor(c)
}

// SetBrightness stores b clamped to 0..1.
func (g *LedGuard) SetBrightness(b float64) {
	g.check()
	g.led.setBrightness(b)
}

// ResetColor turns the led off without touching its brightness.
func (g *LedGuard) ResetColor() {
	g.SetColor(Off)
}

// Release gives up this level of ownership. It is safe to call more than
// once.
func (g *LedGuard) Release() {
	if !g.nested {
		return
	}
	if g.released.CompareAndSwap(false, true) {
		g.parent.Release()
	}
}
