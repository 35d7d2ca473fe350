// Package observer streams a running simulation to websocket clients.
package observer

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"trafficsim.ai/internal/sim/simtime"
	"trafficsim.ai/internal/sim/world"
)

const (
	Path = "/v1/observe"

	defaultQueue  = 64
	defaultTickHz = 10
	writeTimeout  = 5 * time.Second
	readTimeout   = 60 * time.Second
)

// Info describes the run announced in HELLO.
type Info struct {
	RunID    string
	WorldID  string
	MapName  string
	Scenario string
}

type Options struct {
	// TickHz caps how many event-free TICK frames are broadcast per second. Frames
	// carrying events are never throttled.
	TickHz float64
	// Queue is the per-client frame buffer; the oldest frame is dropped when full.
	Queue int
	// AllowRemote accepts non-loopback clients.
	AllowRemote bool
	Logger      *log.Logger
}

// Hub fans world ticks and speed reports out to connected observers. ObserveTick and
// ObserveSpeed are called from the simulation goroutine; Handler serves clients.
type Hub struct {
	info  Info
	opts  Options
	log   *log.Logger
	limit *rate.Limiter

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
	tick     atomic.Int64

	mu        sync.Mutex
	clients   map[uint64]chan []byte
	lastSpeed []byte
	closed    bool
}

var (
	_ world.StepObserver = (*Hub)(nil)
	_ world.DigestFilter = (*Hub)(nil)
)

func NewHub(info Info, opts Options) *Hub {
	if info.RunID == "" {
		info.RunID = uuid.NewString()
	}
	if opts.TickHz <= 0 {
		opts.TickHz = defaultTickHz
	}
	if opts.Queue <= 0 {
		opts.Queue = defaultQueue
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	return &Hub{
		info:  info,
		opts:  opts,
		log:   opts.Logger,
		limit: rate.NewLimiter(rate.Limit(opts.TickHz), 1),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		clients: map[uint64]chan []byte{},
	}
}

func (h *Hub) RunID() string { return h.info.RunID }

func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) ObserveTick(entry world.TickLogEntry) {
	h.tick.Store(int64(entry.Tick))
	if h.ClientCount() == 0 {
		return
	}
	if len(entry.Events) == 0 && !h.limit.Allow() {
		return
	}
	b, err := json.Marshal(TickMsg{Type: TypeTick, Tick: entry.Tick, Digest: entry.Digest, Events: entry.Events})
	if err != nil {
		h.log.Error("encode tick", "tick", entry.Tick, "err", err)
		return
	}
	h.broadcast(b)
}

// NeedsDigest is true only while someone is watching.
func (h *Hub) NeedsDigest(world.TickLogEntry) bool { return h.ClientCount() > 0 }

func (h *Hub) ObserveSpeed(report world.SpeedReport) {
	b, err := json.Marshal(SpeedMsg{Type: TypeSpeed, Tick: report.Tick, Ratio: report.Ratio, Summary: report.Summary})
	if err != nil {
		h.log.Error("encode speed", "tick", report.Tick, "err", err)
		return
	}
	h.mu.Lock()
	h.lastSpeed = b
	h.mu.Unlock()
	h.broadcast(b)
}

func (h *Hub) broadcast(b []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, out := range h.clients {
		sendLatest(out, b)
	}
}

// Close disconnects every client. Later connections are refused.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, out := range h.clients {
		close(out)
		delete(h.clients, id)
	}
}

func (h *Hub) register() (uint64, chan []byte, []byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, nil, nil, false
	}
	id := h.nextID.Add(1)
	out := make(chan []byte, h.opts.Queue)
	h.clients[id] = out
	return id, out, h.lastSpeed, true
}

func (h *Hub) unregister(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if out, ok := h.clients[id]; ok {
		close(out)
		delete(h.clients, id)
	}
}

func (h *Hub) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !h.opts.AllowRemote && !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		conn, err := h.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		id, out, lastSpeed, ok := h.register()
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "run finished"), time.Now().Add(time.Second))
			return
		}
		defer h.unregister(id)
		h.log.Debug("observer connected", "client", id, "remote", r.RemoteAddr)

		hello := HelloMsg{
			Type:            TypeHello,
			ProtocolVersion: Version,
			RunID:           h.info.RunID,
			WorldID:         h.info.WorldID,
			MapName:         h.info.MapName,
			Scenario:        h.info.Scenario,
			Tick:            simtime.Tick(h.tick.Load()),
		}
		if err := writeJSON(conn, hello); err != nil {
			return
		}
		if lastSpeed != nil {
			if err := writeFrame(conn, lastSpeed); err != nil {
				return
			}
		}

		writeErr := make(chan error, 1)
		go func() {
			for b := range out {
				if err := writeFrame(conn, b); err != nil {
					writeErr <- err
					return
				}
			}
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
			writeErr <- nil
		}()

		// Reader loop: clients don't send anything meaningful; reading detects close.
		readDone := make(chan struct{})
		go func() {
			defer close(readDone)
			for {
				_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		select {
		case <-readDone:
		case <-writeErr:
		}
		h.log.Debug("observer disconnected", "client", id)
	}
}

// sendLatest enqueues b, dropping the oldest queued frame when ch is full.
func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return writeFrame(conn, b)
}

func writeFrame(conn *websocket.Conn, b []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
