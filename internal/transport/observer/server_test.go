package observer

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trafficsim.ai/internal/sim/world"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + Path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMsg(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, b, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, v))
}

func TestHubStreamsHelloSpeedAndTicks(t *testing.T) {
	hub := NewHub(Info{WorldID: "sim", MapName: "tiny", Scenario: "small_spawn"}, Options{})
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	conn := dial(t, srv)

	var hello HelloMsg
	readMsg(t, conn, &hello)
	assert.Equal(t, TypeHello, hello.Type)
	assert.Equal(t, Version, hello.ProtocolVersion)
	assert.Equal(t, hub.RunID(), hello.RunID)
	assert.NotEmpty(t, hello.RunID)
	assert.Equal(t, "tiny", hello.MapName)
	assert.Equal(t, 1, hub.ClientCount())

	hub.ObserveSpeed(world.SpeedReport{Tick: 600, Ratio: 3.5, Summary: "At 0:01:00.0"})
	var speed SpeedMsg
	readMsg(t, conn, &speed)
	assert.Equal(t, TypeSpeed, speed.Type)
	assert.Equal(t, 3.5, speed.Ratio)

	ev := world.PedReachedBorder(4, 2)
	hub.ObserveTick(world.TickLogEntry{Tick: 601, Events: []world.Event{ev}, Digest: "abc"})
	var tick TickMsg
	readMsg(t, conn, &tick)
	assert.Equal(t, TypeTick, tick.Type)
	require.Len(t, tick.Events, 1)
	assert.Equal(t, ev, tick.Events[0])
}

func TestHubReplaysLastSpeedOnConnect(t *testing.T) {
	hub := NewHub(Info{RunID: "run-1"}, Options{})
	hub.ObserveSpeed(world.SpeedReport{Tick: 1200, Ratio: 2})
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	var hello HelloMsg
	readMsg(t, conn, &hello)
	assert.Equal(t, "run-1", hello.RunID)

	var speed SpeedMsg
	readMsg(t, conn, &speed)
	assert.Equal(t, TypeSpeed, speed.Type)
	assert.EqualValues(t, 1200, speed.Tick)
}

func TestHubCloseDisconnectsClients(t *testing.T) {
	hub := NewHub(Info{}, Options{})
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	var hello HelloMsg
	readMsg(t, conn, &hello)

	hub.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestEmptyTicksAreThrottled(t *testing.T) {
	hub := NewHub(Info{}, Options{TickHz: 0.001, Queue: 16})
	_, out, _, ok := hub.register()
	require.True(t, ok)

	hub.ObserveTick(world.TickLogEntry{Tick: 1})
	hub.ObserveTick(world.TickLogEntry{Tick: 2})
	hub.ObserveTick(world.TickLogEntry{Tick: 3, Events: []world.Event{world.PedReachedBuilding(1, 0)}})

	require.Len(t, out, 2)
	var first, second TickMsg
	require.NoError(t, json.Unmarshal(<-out, &first))
	require.NoError(t, json.Unmarshal(<-out, &second))
	assert.EqualValues(t, 1, first.Tick)
	assert.EqualValues(t, 3, second.Tick)
}

func TestTicksWithoutClientsAreDropped(t *testing.T) {
	hub := NewHub(Info{}, Options{TickHz: 0.001, Queue: 16})
	assert.False(t, hub.NeedsDigest(world.TickLogEntry{Tick: 1}))

	// Nobody listens, so this must not spend the only tick-frame token.
	hub.ObserveTick(world.TickLogEntry{Tick: 1})
	hub.ObserveTick(world.TickLogEntry{Tick: 2, Events: []world.Event{world.PedReachedBuilding(1, 0)}})

	_, out, _, ok := hub.register()
	require.True(t, ok)
	assert.True(t, hub.NeedsDigest(world.TickLogEntry{Tick: 3}))

	hub.ObserveTick(world.TickLogEntry{Tick: 3, Digest: "d3"})
	require.Len(t, out, 1)
	var msg TickMsg
	require.NoError(t, json.Unmarshal(<-out, &msg))
	assert.EqualValues(t, 3, msg.Tick)
	assert.Equal(t, "d3", msg.Digest)
}

func TestSendLatestDropsOldest(t *testing.T) {
	ch := make(chan []byte, 2)
	sendLatest(ch, []byte("a"))
	sendLatest(ch, []byte("b"))
	sendLatest(ch, []byte("c"))
	assert.Equal(t, "b", string(<-ch))
	assert.Equal(t, "c", string(<-ch))
}

func TestIsLoopbackRemote(t *testing.T) {
	assert.True(t, isLoopbackRemote("127.0.0.1:5555"))
	assert.True(t, isLoopbackRemote("[::1]:80"))
	assert.False(t, isLoopbackRemote("10.0.0.2:80"))
	assert.False(t, isLoopbackRemote("garbage"))
}
