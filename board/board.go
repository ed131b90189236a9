// Package board is the session around the led array: it owns the
// transport lifecycle and pushes frames to it.
package board

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/funtimes-blinkt/model"
	"github.com/coreman2200/funtimes-blinkt/transport"
)

var (
	ErrNotAttached  = errors.New("board has no open session")
	ErrForeignGuard = errors.New("guard belongs to another array")
)

type State int

const (
	Detached State = iota
	Attached
)

func (s State) String() string {
	if s == Attached {
		return "attached"
	}
	return "detached"
}

type Option func(*Board)

// WithClear sets the clear-on-release flag.
func WithClear(clear bool) Option {
	return func(b *Board) { b.clear.Store(clear) }
}

// WithArray drives a given array instead of model.Shared().
func WithArray(a *model.LedArray) Option {
	return func(b *Board) { b.array = a }
}

// Board is a reference counted session over one LedArray and one
// transport. Sessions nest: the transport is set up when the first one
// opens and torn down when the last one closes.
//
// Lock order: session mutex, array ownership, wire mutex. Display paths
// never take the session mutex, so a caller holding array ownership can
// display without waiting on Acquire or Release. Acquire and Release take
// the session mutex and so are not called while holding array ownership.
type Board struct {
	array *model.LedArray
	t     transport.Transport
	clear atomic.Bool

	// mu serializes session transitions.
	mu       sync.Mutex
	sessions atomic.Int64

	// wire serializes frame output and the transport lifecycle.
	wire   sync.Mutex
	frames atomic.Uint64
}

// New builds a board over its own standalone array unless WithArray says
// otherwise. The process-wide board on model.Shared() comes from Default.
func New(t transport.Transport, opts ...Option) *Board {
	b := &Board{array: model.NewLedArray(), t: t}
	for _, o := range opts {
		o(b)
	}
	return b
}

var (
	defaultOnce  sync.Once
	defaultBoard *Board
)

// Default returns the process-wide board, built on the first call from t
// and opts and bound to model.Shared(). Later arguments are ignored.
func Default(t transport.Transport, opts ...Option) *Board {
	defaultOnce.Do(func() {
		defaultBoard = New(t, append(opts, WithArray(model.Shared()))...)
	})
	return defaultBoard
}

func (b *Board) Leds() *model.LedArray {
	return b.array
}

// Clear reports whether the leds are switched off when the last session
// closes.
func (b *Board) Clear() bool {
	return b.clear.Load()
}

func (b *Board) SetClear(v bool) {
	b.clear.Store(v)
}

func (b *Board) ResetClear() {
	b.clear.Store(false)
}

// State reports whether a session is open and how many are. It never
// blocks.
func (b *Board) State() (State, int) {
	if n := b.sessions.Load(); n > 0 {
		return Attached, int(n)
	}
	return Detached, 0
}

// Frames counts frames pushed to the transport since construction.
func (b *Board) Frames() uint64 {
	return b.frames.Load()
}

func (b *Board) String() string {
	return fmt.Sprintf("<Blinkt %s>", b.array)
}

// Acquire opens a session. The first one sets the transport up; if that
// fails the board stays detached and the error is returned.
func (b *Board) Acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sessions.Load() == 0 {
		b.wire.Lock()
		err := b.t.Setup()
		b.wire.Unlock()
		if err != nil {
			log.Error().Err(err).Msg("transport setup failed")
			return errors.Wrap(err, "board acquire")
		}
		log.Info().Msg("board attached")
	}
	n := b.sessions.Add(1)
	log.Debug().Int64("sessions", n).Msg("session opened")
	return nil
}

// Release closes a session. When the last one closes the leds are blanked
// if Clear is set, then the transport is torn down, all without letting
// another Acquire in between. Blanking takes array ownership, so the last
// Release must come after the caller's guards are released.
func (b *Board) Release() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.sessions.Load()
	if n == 0 {
		return ErrNotAttached
	}
	b.sessions.Store(n - 1)
	log.Debug().Int64("sessions", n-1).Msg("session closed")
	if n > 1 {
		return nil
	}

	var g *model.ArrayGuard
	if b.clear.Load() {
		g = b.array.Own()
		defer g.Release()
		g.Clear()
	}

	b.wire.Lock()
	defer b.wire.Unlock()
	var pushErr error
	if g != nil {
		pushErr = b.push(g.Snapshot())
	}
	if err := b.t.Teardown(); err != nil {
		log.Error().Err(err).Msg("transport teardown failed")
		if pushErr == nil {
			return errors.Wrap(err, "board release")
		}
	}
	log.Info().Msg("board detached")
	return errors.Wrap(pushErr, "board release")
}

// Session runs fn inside Acquire/Release. A release error is returned only
// when fn succeeded.
func (b *Board) Session(fn func(b *Board) error) (err error) {
	if err := b.Acquire(); err != nil {
		return err
	}
	defer func() {
		if rerr := b.Release(); err == nil {
			err = rerr
		}
	}()
	return fn(b)
}

// Display pushes the current array state to the transport. Without an open
// session it does nothing. It takes array ownership for the snapshot; a
// caller already holding a guard uses DisplayHeld.
func (b *Board) Display() error {
	if b.sessions.Load() == 0 {
		log.Debug().Msg("display skipped, board detached")
		return nil
	}
	g := b.array.Own()
	defer g.Release()
	return b.DisplayHeld(g)
}

// DisplayHeld is Display for a caller that already owns the array, through
// an ArrayGuard or a LedGuard borrowed from one. The snapshot is taken
// under that ownership.
func (b *Board) DisplayHeld(h model.Holder) error {
	g := h.Owner()
	if g.Array() != b.array {
		return errors.Wrap(ErrForeignGuard, "display")
	}
	states := g.Snapshot()

	b.wire.Lock()
	defer b.wire.Unlock()
	if b.sessions.Load() == 0 {
		log.Debug().Msg("display skipped, board detached")
		return nil
	}
	return b.push(states)
}

// Update runs fn while owning the whole array and displays the result
// under the same ownership. Nothing is displayed if fn fails.
func (b *Board) Update(ctx context.Context, fn func(g *model.ArrayGuard) error) error {
	g, err := b.array.OwnContext(ctx)
	if err != nil {
		return err
	}
	defer g.Release()
	if err := fn(g); err != nil {
		return err
	}
	return b.DisplayHeld(g)
}

// push writes one frame. Callers hold b.wire, which keeps frames from
// interleaving.
func (b *Board) push(states []model.LedState) error {
	for _, bit := range Encode(states) {
		if err := b.t.SetLine(bit); err != nil {
			log.Error().Err(err).Msg("frame write failed")
			return errors.Wrap(err, "display")
		}
		if err := b.t.ClockPulse(); err != nil {
			log.Error().Err(err).Msg("frame write failed")
			return errors.Wrap(err, "display")
		}
	}
	if f, ok := b.t.(transport.Flusher); ok {
		if err := f.Flush(); err != nil {
			return errors.Wrap(err, "display flush")
		}
	}
	b.frames.Add(1)
	return nil
}
