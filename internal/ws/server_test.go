package ws

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/funtimes-blinkt/board"
	"github.com/coreman2200/funtimes-blinkt/model"
	"github.com/coreman2200/funtimes-blinkt/transport/transporttest"
)

func newTestServer(t *testing.T) (*Server, *transporttest.Recorder, *httptest.Server) {
	t.Helper()
	rec := &transporttest.Recorder{}
	b := board.New(rec, board.WithArray(model.NewLedArray()))
	require.NoError(t, b.Acquire())
	t.Cleanup(func() { b.Release() })

	s := NewServer(b)
	hs := httptest.NewServer(s.Handler())
	t.Cleanup(hs.Close)
	return s, rec, hs
}

func dial(t *testing.T, hs *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(hs.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func health(t *testing.T, hs *httptest.Server) map[string]any {
	t.Helper()
	resp, err := http.Get(hs.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func send(t *testing.T, conn *websocket.Conn, cmd string) Reply {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(cmd)))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var r Reply
	require.NoError(t, conn.ReadJSON(&r))
	return r
}

func TestControlDisplaysAndStreamsState(t *testing.T) {
	s, rec, hs := newTestServer(t)
	state := dial(t, hs, "/state")
	require.Eventually(t, func() bool {
		return health(t, hs)["clients"] == float64(1)
	}, 2*time.Second, 10*time.Millisecond)

	ctl := dial(t, hs, "/control")
	r := send(t, ctl, `{"op":"brightness","brightness":[1]}`)
	require.True(t, r.OK, r.Error)
	assert.Equal(t, 0, rec.Calls(), "no display requested")

	r = send(t, ctl, `{"op":"color","colors":[[255,0,0],[0,0,255]],"display":true}`)
	require.True(t, r.OK, r.Error)
	assert.Equal(t, board.FrameBits(model.NumLeds), len(rec.Bits()))

	state.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f Frame
	require.NoError(t, state.ReadJSON(&f))
	require.Len(t, f.Leds, model.NumLeds)
	assert.Equal(t, uint64(1), f.Frames)
	assert.Equal(t, LedJSON{R: 255, Brightness: 1}, f.Leds[0])
	assert.Equal(t, LedJSON{B: 255, Brightness: 1}, f.Leds[1])
	assert.Equal(t, LedJSON{R: 255, Brightness: 1}, f.Leds[6])

	assert.Equal(t, model.RGB(0, 0, 255), s.Board.Leds().Led(7).Color())
}

func TestControlSingleLedAndClear(t *testing.T) {
	s, _, hs := newTestServer(t)
	ctl := dial(t, hs, "/control")

	r := send(t, ctl, `{"op":"color","index":2,"colors":[[1,2,3],[9,9,9]]}`)
	require.True(t, r.OK, r.Error)
	assert.Equal(t, model.RGB(1, 2, 3), s.Board.Leds().Led(2).Color())
	assert.Equal(t, model.Off, s.Board.Leds().Led(3).Color())

	r = send(t, ctl, `{"op":"clear","display":true}`)
	require.True(t, r.OK, r.Error)
	assert.Equal(t, model.Off, s.Board.Leds().Led(2).Color())
}

func TestControlRejectsBadCommands(t *testing.T) {
	_, rec, hs := newTestServer(t)
	ctl := dial(t, hs, "/control")

	for _, cmd := range []string{
		`not json`,
		`{"op":"explode"}`,
		`{"op":"color"}`,
		`{"op":"brightness"}`,
		`{"op":"color","index":8,"colors":[[1,1,1]]}`,
		`{"op":"color","index":-1,"colors":[[1,1,1]]}`,
	} {
		r := send(t, ctl, cmd)
		assert.False(t, r.OK, cmd)
		assert.NotEmpty(t, r.Error, cmd)
	}
	assert.Equal(t, 0, rec.Calls())
}

func TestApplyTimesOutWhileArrayOwned(t *testing.T) {
	s, _, _ := newTestServer(t)
	s.OwnTimeout = 20 * time.Millisecond

	g := s.Board.Leds().Own()
	defer g.Release()
	err := s.Apply(context.Background(), Command{Op: "clear"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHealth(t *testing.T) {
	_, _, hs := newTestServer(t)
	h := health(t, hs)
	assert.Equal(t, "attached", h["state"])
	assert.Equal(t, float64(1), h["sessions"])
	assert.Equal(t, float64(0), h["frames"])
	assert.Equal(t, false, h["clear"])
}

func TestBroadcastSkipsUnencodableState(t *testing.T) {
	s, _, hs := newTestServer(t)
	state := dial(t, hs, "/state")
	require.Eventually(t, func() bool {
		return health(t, hs)["clients"] == float64(1)
	}, 2*time.Second, 10*time.Millisecond)

	s.Broadcast([]model.LedState{{Color: model.RGB(1, 1, 1), Brightness: math.NaN()}})
	s.Broadcast([]model.LedState{{Color: model.RGB(2, 2, 2), Brightness: 0.5}})

	state.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f Frame
	require.NoError(t, state.ReadJSON(&f))
	require.Len(t, f.Leds, 1)
	assert.Equal(t, LedJSON{R: 2, G: 2, B: 2, Brightness: 0.5}, f.Leds[0])
}
