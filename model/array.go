package model

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// NumLeds is the fixed length of a LedArray.
const NumLeds = 8

// LedArray is the fixed, ordered set of leds on the board.
//
// Locks are always taken in this order: array ownership, array state, led
// ownership by ascending index, led state. Callers never take them by hand:
// ownership is only handed out as an ArrayGuard, and led guards are
// borrowed from it. A goroutine already holding a guard re-enters through
// the guard (ArrayGuard.Own, LedGuard.Own), never through the array.
type LedArray struct {
	leds [NumLeds]*Led

	own *semaphore.Weighted

	// mu makes broadcast writes atomic with respect to snapshots.
	mu sync.RWMutex
}

var shared = sync.OnceValue(NewLedArray)

// Shared returns the process-wide array. Every caller gets the same one.
func Shared() *LedArray {
	return shared()
}

// NewLedArray builds a standalone array with every led off at brightness 0.
// Code driving the physical board should use Shared.
func NewLedArray() *LedArray {
	a := &LedArray{own: semaphore.NewWeighted(1)}
	for i := range a.leds {
		a.leds[i] = newLed(i)
	}
	return a
}

func (a *LedArray) Len() int {
	return NumLeds
}

// Led returns the led at index i. It panics if i is out of range.
func (a *LedArray) Led(i int) *Led {
	return a.leds[i]
}

// Leds returns every led in wire order.
func (a *LedArray) Leds() []*Led {
	out := make([]*Led, NumLeds)
	copy(out, a.leds[:])
	return out
}

// Snapshot returns the state of every led, taken so that no broadcast
// write is half visible.
func (a *LedArray) Snapshot() []LedState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshot()
}

func (a *LedArray) snapshot() []LedState {
	out := make([]LedState, NumLeds)
	for i, l := range a.leds {
		out[i] = l.State()
	}
	return out
}

func (a *LedArray) Colors() []Color {
	s := a.Snapshot()
	out := make([]Color, len(s))
	for i := range s {
		out[i] = s[i].Color
	}
	return out
}

func (a *LedArray) Brightness() []float64 {
	s := a.Snapshot()
	out := make([]float64, len(s))
	for i := range s {
		out[i] = s[i].Brightness
	}
	return out
}

// SetColor writes colors cyclically: led i gets colors[i%len(colors)].
// A single color paints every led; an empty list changes nothing. It takes
// array ownership, so a goroutine holding a guard uses the guard's
// SetColor instead.
func (a *LedArray) SetColor(colors ...Color) {
	g := a.Own()
	defer g.Release()
	g.SetColor(colors...)
}

// SetBrightness is SetColor for brightness. Values are clamped to 0..1.
func (a *LedArray) SetBrightness(values ...float64) {
	g := a.Own()
	defer g.Release()
	g.SetBrightness(values...)
}

// Clear turns every led off. Brightness is left alone.
func (a *LedArray) Clear() {
	a.SetColor(Off)
}

func (a *LedArray) String() string {
	parts := make([]string, NumLeds)
	for i, l := range a.leds {
		parts[i] = l.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Own blocks until the caller owns the array and every led in it.
func (a *LedArray) Own() *ArrayGuard {
	g, _ := a.OwnContext(context.Background())
	return g
}

// OwnContext is Own with a bounded wait. Nothing stays held on error.
func (a *LedArray) OwnContext(ctx context.Context) (*ArrayGuard, error) {
	if err := a.own.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	for i, l := range a.leds {
		if err := l.own.Acquire(ctx, 1); err != nil {
			a.rollback(i)
			return nil, err
		}
	}
	return newArrayGuard(a), nil
}

// TryOwn takes ownership only if nobody holds it.
func (a *LedArray) TryOwn() (*ArrayGuard, bool) {
	if !a.own.TryAcquire(1) {
		return nil, false
	}
	for i, l := range a.leds {
		if !l.own.TryAcquire(1) {
			a.rollback(i)
			return nil, false
		}
	}
	return newArrayGuard(a), true
}

// rollback releases leds below n and the array lock.
func (a *LedArray) rollback(n int) {
	for j := n - 1; j >= 0; j-- {
		a.leds[j].own.Release(1)
	}
	a.own.Release(1)
}

// With runs fn while owning the whole array. Ownership is released when fn
// returns or panics.
func (a *LedArray) With(fn func(g *ArrayGuard) error) error {
	g := a.Own()
	defer g.Release()
	return fn(g)
}

// WithLed runs fn while owning led i.
func (a *LedArray) WithLed(i int, fn func(g *LedGuard) error) error {
	return a.With(func(g *ArrayGuard) error {
		return fn(g.Led(i))
	})
}

// Holder is a live guard over the whole array: an ArrayGuard or a
// LedGuard borrowed from one.
type Holder interface {
	Owner() *ArrayGuard
}

// ArrayGuard is exclusive possession of the array and all of its leds.
// Guards from Own share one hold; the locks go back when the last level is
// released.
type ArrayGuard struct {
	arr      *LedArray
	depth    *atomic.Int32
	released atomic.Bool
}

func newArrayGuard(a *LedArray) *ArrayGuard {
	g := &ArrayGuard{arr: a, depth: new(atomic.Int32)}
	g.depth.Store(1)
	return g
}

func (g *ArrayGuard) check() {
	if g.released.Load() {
		panic("model: use of released array guard")
	}
}

func (g *ArrayGuard) Array() *LedArray {
	return g.arr
}

func (g *ArrayGuard) Owner() *ArrayGuard {
	g.check()
	return g
}

// Own re-enters ownership without touching the locks.
func (g *ArrayGuard) Own() *ArrayGuard {
	g.check()
	g.depth.Add(1)
	return &ArrayGuard{arr: g.arr, depth: g.depth}
}

// Depth is the number of live nesting levels.
func (g *ArrayGuard) Depth() int {
	return int(g.depth.Load())
}

// Led borrows the already owned led at index i.
func (g *ArrayGuard) Led(i int) *LedGuard {
	g.check()
	return &LedGuard{led: g.arr.leds[i], parent: g}
}

func (g *ArrayGuard) Snapshot() []LedState {
	g.check()
	return g.arr.Snapshot()
}

func (g *ArrayGuard) SetColor(colors ...Color) {
	g.check()
	if len(colors) == 0 {
		return
	}
	g.arr.mu.Lock()
	defer g.arr.mu.Unlock()
	for i, l := range g.arr.leds {
		l.setColor(colors[i%len(colors)])
	}
}

func (g *ArrayGuard) SetBrightness(values ...float64) {
	g.check()
	if len(values) == 0 {
		return
	}
	g.arr.mu.Lock()
	defer g.arr.mu.Unlock()
	for i, l := range g.arr.leds {
		l.setBrightness(values[i%len(values)])
	}
}

func (g *ArrayGuard) Clear() {
	g.SetColor(Off)
}

// Release gives up this level. The last level gives the leds back in
// reverse index order, then the array. It is safe to call more than once.
func (g *ArrayGuard) Release() {
	if !g.released.CompareAndSwap(false, true) {
		return
	}
	if g.depth.Add(-1) > 0 {
		return
	}
	for i := NumLeds - 1; i >= 0; i-- {
		g.arr.leds[i].own.Release(1)
	}
	g.arr.own.Release(1)
}
