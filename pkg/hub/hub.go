package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Hub fans messages out to its clients from a single goroutine (Run).
// Clients only join, leave and receive through channels owned by Run.
type Hub struct {
	name   string
	logger *slog.Logger

	joins    chan *Client
	leaves   chan *Client
	outbound chan Message

	mu       sync.RWMutex // Guards clients and retained for readers outside Run
	clients  map[*Client]struct{}
	retained *Message

	running atomic.Bool
	done    chan struct{}
}

// New creates a hub. A nil logger uses slog.Default().
func New(name string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		name:     name,
		logger:   logger.With("component", "hub", "hub", name),
		joins:    make(chan *Client),
		leaves:   make(chan *Client),
		outbound: make(chan Message, 256),
		clients:  make(map[*Client]struct{}),
		done:     make(chan struct{}),
	}
}

// Run serves the hub until ctx is done. On return every client's send
// channel is closed, which ends its write pump.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer h.stop()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.joins:
			h.join(c)
		case c := <-h.leaves:
			h.leave(c)
		case m := <-h.outbound:
			h.fanout(m)
		}
	}
}

func (h *Hub) join(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	if h.retained != nil {
		c.send <- *h.retained
	}
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("client connected", "clients", n)
}

func (h *Hub) leave(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		h.dropLocked(c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("client disconnected", "clients", n)
}

func (h *Hub) fanout(m Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if m.Retain {
		h.retained = &m
	}
	for c := range h.clients {
		select {
		case c.send <- m:
		default:
			h.dropLocked(c)
			h.logger.Warn("dropped slow client")
		}
	}
}

func (h *Hub) dropLocked(c *Client) {
	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) stop() {
	h.running.Store(false)

	h.mu.Lock()
	for c := range h.clients {
		h.dropLocked(c)
	}
	h.mu.Unlock()

	close(h.done)
}

// Broadcast queues msg for every client without blocking. When the queue
// is full the message is dropped; that is only worth a warning while Run
// is draining the queue.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.outbound <- msg:
	default:
		if h.running.Load() {
			h.logger.Warn("outbound queue full, dropping message")
		}
	}
}

// BroadcastJSON sends v to the current clients without retaining it.
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(NewJSONMessage(data))
	return nil
}

// PublishJSON sends v and keeps it as the value new clients receive first.
func (h *Hub) PublishJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(NewStateMessage(data))
	return nil
}

// Retained returns the last retained payload.
func (h *Hub) Retained() ([]byte, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.retained == nil {
		return nil, false
	}
	return h.retained.Data, true
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// IsRunning reports whether Run is active.
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}

// Done is closed when Run returns.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// add hands c to Run; false once the hub has stopped.
func (h *Hub) add(c *Client) bool {
	select {
	case h.joins <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.leaves <- c:
	case <-h.done:
	}
}
