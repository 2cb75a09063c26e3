// Package observer streams simulation frames to websocket clients.
package observer

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pthm-cable/brawl/telemetry"
)

const (
	writeWait    = 5 * time.Second
	readWait     = 60 * time.Second
	clientBuffer = 16
)

// Options configures a Hub.
type Options struct {
	// Every broadcasts one frame in Every ticks. Values below 1 mean every tick.
	Every int
	// IncludeMoves keeps move events in broadcast frames.
	IncludeMoves bool
}

type client struct {
	id  uint64
	out chan []byte
}

// Hub fans frames out to connected observers. Slow clients lose frames
// rather than stalling the tick loop.
type Hub struct {
	opts     Options
	upgrader websocket.Upgrader
	nextID   atomic.Uint64
	dropped  atomic.Uint64

	mu      sync.Mutex
	clients map[uint64]*client
	last    []byte
}

// NewHub creates a hub with no clients.
func NewHub(opts Options) *Hub {
	if opts.Every < 1 {
		opts.Every = 1
	}
	return &Hub{
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[uint64]*client),
	}
}

// Handler returns the routes: /ws streams frames, /snapshot returns the
// latest one.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.serveWS)
	mux.HandleFunc("/snapshot", h.serveSnapshot)
	return mux
}

// Clients returns the number of connected observers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Dropped returns how many frames were discarded for slow clients.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Consume implements the simulation's sink. The frame is encoded once and
// queued to every client without blocking.
func (h *Hub) Consume(frame *telemetry.Snapshot) error {
	if int(frame.Tick)%h.opts.Every != 0 {
		return nil
	}

	out := *frame
	if !h.opts.IncludeMoves {
		out.Events = make([]telemetry.Event, 0, len(frame.Events))
		for _, ev := range frame.Events {
			if ev.Type != telemetry.EventMove {
				out.Events = append(out.Events, ev)
			}
		}
	}
	b, err := json.Marshal(&out)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = b
	for _, c := range h.clients {
		select {
		case c.out <- b:
		default:
			h.dropped.Add(1)
		}
	}
	return nil
}

func (h *Hub) serveSnapshot(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	h.mu.Lock()
	b := h.last
	h.mu.Unlock()
	if b == nil {
		http.Error(rw, "no frame yet", http.StatusServiceUnavailable)
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	_, _ = rw.Write(b)
}

func (h *Hub) serveWS(rw http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	c := &client{id: h.nextID.Add(1), out: make(chan []byte, clientBuffer)}
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	slog.Info("observer_joined", "client", c.id, "remote", r.RemoteAddr)

	defer func() {
		h.mu.Lock()
		delete(h.clients, c.id)
		h.mu.Unlock()
		slog.Info("observer_left", "client", c.id)
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Writer goroutine.
	writeErr := make(chan error, 1)
	go func() {
		for {
			select {
			case <-ctx.Done():
				writeErr <- ctx.Err()
				return
			case b := <-c.out:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					writeErr <- err
					return
				}
			}
		}
	}()

	// Reader loop: observers only send control frames; any read error ends
	// the session.
	for {
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	cancel()
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

	select {
	case <-writeErr:
	case <-time.After(500 * time.Millisecond):
	}
}
