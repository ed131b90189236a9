package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"periph.io/x/conn/v3/physic"

	"github.com/coreman2200/funtimes-blinkt/board"
	"github.com/coreman2200/funtimes-blinkt/internal/config"
	"github.com/coreman2200/funtimes-blinkt/internal/ws"
	"github.com/coreman2200/funtimes-blinkt/model"
	"github.com/coreman2200/funtimes-blinkt/preview"
	"github.com/coreman2200/funtimes-blinkt/transport"
)

type options struct {
	configPath string
	driver     string
	addr       string
	preview    bool
	speed      float64
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "config.yaml", "path to config.yaml")
	flag.StringVar(&o.driver, "driver", "", "driver override: gpio | cdev | spi | console")
	flag.StringVar(&o.addr, "addr", "", "websocket listen address override")
	flag.BoolVar(&o.preview, "preview", false, "draw the leds on the terminal")
	flag.Float64Var(&o.speed, "speed", 0.25, "rainbow revolutions per second")
	flag.Parse()

	// ---- Logging ----
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	cfg, err := loadConfig(o)
	if err != nil {
		log.Fatal().Err(err).Msg("bad configuration")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && cfg.LogLevel != "" {
		zerolog.SetGlobalLevel(lvl)
	}

	if err := run(cfg, o); err != nil {
		log.Fatal().Err(err).Msg("blinkt stopped")
	}
}

// loadConfig layers config.yaml, BLINKT_* variables and flags, in that
// order.
func loadConfig(o options) (*config.Config, error) {
	cfg := config.Default()
	if c, err := config.Load(o.configPath); err != nil {
		log.Warn().Err(err).Str("path", o.configPath).Msg("config load failed; using defaults")
	} else {
		cfg = c
	}
	if err := config.FromEnv(cfg); err != nil {
		return nil, err
	}
	if o.driver != "" {
		cfg.Driver = o.driver
	}
	if o.addr != "" {
		cfg.Addr = o.addr
	}
	return cfg, cfg.Validate()
}

func newTransport(cfg *config.Config) (transport.Transport, error) {
	switch cfg.Driver {
	case config.DriverGPIO:
		return transport.NewPeriphGPIO(cfg.DataPin, cfg.ClockPin, cfg.HalfPeriod()), nil
	case config.DriverCdev:
		c, err := transport.NewCdevGPIO(cfg.Chip, cfg.DataLine, cfg.ClockLine, cfg.HalfPeriod())
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.DriverSPI:
		return transport.NewSPI(cfg.SPI.Port, physic.Frequency(cfg.SPI.SpeedHz)*physic.Hertz), nil
	case config.DriverConsole:
		return transport.NewConsole(os.Stdout), nil
	}
	return nil, errors.Errorf("unknown driver %q", cfg.Driver)
}

func run(cfg *config.Config, o options) (err error) {
	t, err := newTransport(cfg)
	if err != nil {
		return err
	}
	b := board.Default(t, board.WithClear(cfg.ClearOnExit))
	b.Leds().SetBrightness(cfg.Brightness)

	if err := b.Acquire(); err != nil {
		return err
	}
	defer func() {
		if rerr := b.Release(); err == nil {
			err = rerr
		}
	}()
	log.Info().Str("driver", cfg.Driver).Str("transport", fmt.Sprint(t)).Int("fps", cfg.FPS).Msg("board ready")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	var srv *ws.Server
	if cfg.Addr != "" {
		srv = ws.NewServer(b)
		httpSrv := &http.Server{
			Addr:         cfg.Addr,
			Handler:      withCORS(srv.Handler()),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		g.Go(func() error {
			log.Info().Str("addr", cfg.Addr).Msg("HTTP server starting")
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return errors.Wrap(err, "http server")
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			return httpSrv.Close()
		})
	}

	var pv *preview.Preview
	if o.preview {
		pv = preview.NewScreen()
		defer pv.Halt()
	}

	g.Go(func() error {
		return animate(ctx, b, cfg.FPS, o.speed, pv, srv)
	})

	err = g.Wait()
	log.Info().Uint64("frames", b.Frames()).Msg("shutting down")
	return err
}

// animate runs a rotating rainbow until ctx is done.
func animate(ctx context.Context, b *board.Board, fps int, speed float64, pv *preview.Preview, srv *ws.Server) error {
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()
	start := time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			phase := now.Sub(start).Seconds() * speed
			err := b.Update(ctx, func(g *model.ArrayGuard) error {
				for i := 0; i < model.NumLeds; i++ {
					g.Led(i).SetColor(model.HSV(phase+float64(i)/model.NumLeds, 1, 1))
				}
				return nil
			})
			if ctx.Err() != nil {
				return nil
			}
			if err != nil {
				return err
			}

			states := b.Leds().Snapshot()
			if pv != nil {
				if err := pv.Draw(states); err != nil {
					log.Warn().Err(err).Msg("preview draw failed")
				}
			}
			if srv != nil {
				srv.Broadcast(states)
			}
		}
	}
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(200)
			return
		}
		h.ServeHTTP(w, r)
	})
}
