package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/funtimes-blinkt/board"
	"github.com/coreman2200/funtimes-blinkt/model"
)

const writeWait = 200 * time.Millisecond

// Command is one /control message.
//
//	{"op":"color","colors":[[255,0,0],[0,0,255]],"display":true}
//	{"op":"brightness","index":3,"brightness":[0.5]}
//	{"op":"clear"}
//	{"op":"display"}
//
// Without an index the values cycle across the array.
type Command struct {
	Op         string    `json:"op"`
	Index      *int      `json:"index,omitempty"`
	Colors     [][3]int  `json:"colors,omitempty"`
	Brightness []float64 `json:"brightness,omitempty"`
	Display    bool      `json:"display,omitempty"`
}

type Reply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type LedJSON struct {
	R          uint8   `json:"r"`
	G          uint8   `json:"g"`
	B          uint8   `json:"b"`
	Brightness float64 `json:"brightness"`
}

type Frame struct {
	T      int64     `json:"t"`
	Frames uint64    `json:"frames"`
	Leds   []LedJSON `json:"leds"`
}

type Server struct {
	Board *board.Board

	// OwnTimeout bounds the wait for array ownership per command.
	OwnTimeout time.Duration

	up        websocket.Upgrader
	mu        sync.Mutex
	clients   map[*websocket.Conn]bool
	startTime time.Time
}

func NewServer(b *board.Board) *Server {
	return &Server{
		Board:      b,
		OwnTimeout: time.Second,
		up:         websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:    map[*websocket.Conn]bool{},
		startTime:  time.Now(),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/control", s.HandleControlWS)
	mux.HandleFunc("/state", s.HandleStateWS)
	mux.HandleFunc("/health", s.HandleHealth)
	return mux
}

func (s *Server) HandleStateWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.clients[conn] = true
	s.mu.Unlock()
	log.Debug().Str("remote", r.RemoteAddr).Msg("state client connected")

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.clients, conn)
			s.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) HandleControlWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd Command
		reply := Reply{OK: true}
		if err := json.Unmarshal(data, &cmd); err != nil {
			reply = Reply{Error: errors.Wrap(err, "decode command").Error()}
		} else if err := s.Apply(r.Context(), cmd); err != nil {
			log.Warn().Err(err).Str("op", cmd.Op).Msg("control command failed")
			reply = Reply{Error: err.Error()}
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(reply); err != nil {
			return
		}
	}
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	state, sessions := s.Board.State()
	s.mu.Lock()
	clients := len(s.clients)
	s.mu.Unlock()
	resp := map[string]any{
		"state":    state.String(),
		"sessions": sessions,
		"frames":   s.Board.Frames(),
		"clear":    s.Board.Clear(),
		"clients":  clients,
		"uptime_s": time.Since(s.startTime).Seconds(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// Apply runs one command against the board. Mutations happen under array
// ownership; "display" or Display=true pushes the result and broadcasts it.
func (s *Server) Apply(ctx context.Context, cmd Command) error {
	if cmd.Index != nil && (*cmd.Index < 0 || *cmd.Index >= model.NumLeds) {
		return errors.Errorf("index %d out of range", *cmd.Index)
	}

	var mutate func(g *model.ArrayGuard)
	switch cmd.Op {
	case "color":
		colors := make([]model.Color, len(cmd.Colors))
		for i, c := range cmd.Colors {
			colors[i] = model.RGB(c[0], c[1], c[2])
		}
		if len(colors) == 0 {
			return errors.New("color needs at least one value")
		}
		mutate = func(g *model.ArrayGuard) {
			if cmd.Index != nil {
				g.Led(*cmd.Index).SetColor(colors[0])
				return
			}
			g.SetColor(colors...)
		}
	case "brightness":
		if len(cmd.Brightness) == 0 {
			return errors.New("brightness needs at least one value")
		}
		mutate = func(g *model.ArrayGuard) {
			if cmd.Index != nil {
				g.Led(*cmd.Index).SetBrightness(cmd.Brightness[0])
				return
			}
			g.SetBrightness(cmd.Brightness...)
		}
	case "clear":
		mutate = func(g *model.ArrayGuard) { g.Clear() }
	case "display":
		cmd.Display = true
		mutate = func(*model.ArrayGuard) {}
	default:
		return errors.Errorf("unknown op %q", cmd.Op)
	}

	ctx, cancel := context.WithTimeout(ctx, s.OwnTimeout)
	defer cancel()
	fn := func(g *model.ArrayGuard) error {
		mutate(g)
		return nil
	}
	if !cmd.Display {
		g, err := s.Board.Leds().OwnContext(ctx)
		if err != nil {
			return errors.Wrap(err, "own leds")
		}
		defer g.Release()
		return fn(g)
	}
	if err := s.Board.Update(ctx, fn); err != nil {
		return err
	}
	s.Broadcast(s.Board.Leds().Snapshot())
	return nil
}

// Broadcast sends a snapshot to every /state client.
func (s *Server) Broadcast(states []model.LedState) {
	f := Frame{T: time.Now().UnixNano(), Frames: s.Board.Frames(), Leds: make([]LedJSON, len(states))}
	for i, st := range states {
		f.Leds[i] = LedJSON{R: st.Color.R(), G: st.Color.G(), B: st.Color.B(), Brightness: st.Brightness}
	}
	b, err := json.Marshal(f)
	if err != nil {
		log.Debug().Err(err).Msg("encode state")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		c.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
			log.Debug().Err(err).Msg("write state")
		}
	}
}
